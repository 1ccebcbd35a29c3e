package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/usecase"
)

// maxTelegramText Telegram rejects longer messages
const maxTelegramText = 4096

// sender the part of the Bot API the handlers reply through
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// BotHandler Telegram front end, one triage session per chat
type BotHandler struct {
	bot             *tgbotapi.BotAPI
	sender          sender
	triageUseCase   usecase.TriageUseCase
	medicineUseCase usecase.MedicineUseCase

	// profileMu serialises read-modify-write of profiles
	profileMu sync.Mutex
}

// NewBotHandler connects to the Bot API with token
func NewBotHandler(
	token string,
	triageUseCase usecase.TriageUseCase,
	medicineUseCase usecase.MedicineUseCase,
) (*BotHandler, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	h := newBotHandler(bot, triageUseCase, medicineUseCase)
	h.bot = bot
	return h, nil
}

func newBotHandler(s sender, triageUseCase usecase.TriageUseCase, medicineUseCase usecase.MedicineUseCase) *BotHandler {
	return &BotHandler{
		sender:          s,
		triageUseCase:   triageUseCase,
		medicineUseCase: medicineUseCase,
	}
}

// Start long-polls updates until ctx is cancelled
func (h *BotHandler) Start(ctx context.Context) error {
	slog.Info("Telegram bot started", slog.String("username", h.bot.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := h.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Telegram bot stopping")
			h.bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go h.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage routes commands and plain text
func (h *BotHandler) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.IsCommand() {
		h.handleCommand(ctx, message)
		return
	}

	if message.Text != "" {
		h.handleTextMessage(ctx, message.Chat.ID, message.Text)
	}
}

// handleCommand dispatches slash commands
func (h *BotHandler) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start":
		h.sendMessage(chatID, welcomeMessage)
	case "help":
		h.sendMessage(chatID, helpMessage)
	case "age":
		h.handleAgeCommand(ctx, chatID, args)
	case "gender":
		h.handleGenderCommand(ctx, chatID, args)
	case "history":
		h.handleHistoryCommand(ctx, chatID, args)
	case "profile":
		h.handleProfileCommand(ctx, chatID)
	case "clear":
		h.handleClearCommand(ctx, chatID)
	case "medicines":
		h.handleMedicinesCommand(ctx, chatID)
	default:
		h.sendMessage(chatID, "Unknown command. Send /help for the list.")
	}
}

// handleTextMessage one triage turn
func (h *BotHandler) handleTextMessage(ctx context.Context, chatID int64, text string) {
	session, err := h.triageUseCase.EnsureSession(ctx, sessionIDForChat(chatID))
	if err != nil {
		slog.Error("Failed to open session", slog.Int64("chat_id", chatID), slog.Any("error", err))
		h.sendMessage(chatID, "Sorry, something went wrong. Please try again.")
		return
	}

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := h.sender.Request(typing); err != nil {
		slog.Warn("Failed to send typing action", slog.Any("error", err))
	}

	// profile edits from concurrent commands must not be overwritten here
	result, err := h.triageUseCase.ProcessMessageWithStoredProfile(ctx, session.ID, text)
	if err != nil {
		h.sendMessage(chatID, replyForError(err))
		return
	}

	h.sendMessage(chatID, result.Reply)
}

func (h *BotHandler) handleAgeCommand(ctx context.Context, chatID int64, args string) {
	age, err := parseAge(args)
	if err != nil {
		h.sendMessage(chatID, fmt.Sprintf("Usage: /age N (0-%d)", entity.MaxAge))
		return
	}
	h.updateProfile(ctx, chatID, func(p *entity.Profile) { p.Age = age })
}

func (h *BotHandler) handleGenderCommand(ctx context.Context, chatID int64, args string) {
	gender, err := parseGender(args)
	if err != nil {
		h.sendMessage(chatID, "Usage: /gender "+strings.Join(genderChoices(), " | "))
		return
	}
	h.updateProfile(ctx, chatID, func(p *entity.Profile) { p.Gender = gender })
}

// handleHistoryCommand sets medical history, or shows the transcript without arguments
func (h *BotHandler) handleHistoryCommand(ctx context.Context, chatID int64, args string) {
	if args != "" {
		h.updateProfile(ctx, chatID, func(p *entity.Profile) { p.MedicalHistory = args })
		return
	}

	session, err := h.triageUseCase.EnsureSession(ctx, sessionIDForChat(chatID))
	if err != nil {
		h.sendMessage(chatID, "Could not load the conversation.")
		return
	}
	if len(session.Messages) == 0 {
		h.sendMessage(chatID, "No messages yet. Describe your symptoms to start.")
		return
	}
	h.sendMessage(chatID, formatTranscript(session.Messages, maxTelegramText))
}

func (h *BotHandler) handleProfileCommand(ctx context.Context, chatID int64) {
	session, err := h.triageUseCase.EnsureSession(ctx, sessionIDForChat(chatID))
	if err != nil {
		h.sendMessage(chatID, "Could not load your profile.")
		return
	}
	h.sendMessage(chatID, formatProfile(session.Profile))
}

func (h *BotHandler) handleClearCommand(ctx context.Context, chatID int64) {
	id := sessionIDForChat(chatID)
	if _, err := h.triageUseCase.EnsureSession(ctx, id); err != nil {
		h.sendMessage(chatID, "Could not clear the conversation.")
		return
	}
	if err := h.triageUseCase.Clear(ctx, id); err != nil {
		slog.Error("Failed to clear session", slog.String("session_id", id), slog.Any("error", err))
		h.sendMessage(chatID, "Could not clear the conversation.")
		return
	}
	h.sendMessage(chatID, "✅ Conversation and profile cleared.")
}

func (h *BotHandler) handleMedicinesCommand(ctx context.Context, chatID int64) {
	info, err := h.medicineUseCase.CatalogInfo(ctx)
	if err != nil {
		h.sendMessage(chatID, "Could not read the medicine list.")
		return
	}
	h.sendMessage(chatID, info)
}

// updateProfile read-modify-write of the chat's profile
func (h *BotHandler) updateProfile(ctx context.Context, chatID int64, change func(*entity.Profile)) {
	h.profileMu.Lock()
	defer h.profileMu.Unlock()

	session, err := h.triageUseCase.EnsureSession(ctx, sessionIDForChat(chatID))
	if err != nil {
		h.sendMessage(chatID, "Could not load your profile.")
		return
	}

	profile := session.Profile
	change(&profile)
	if err := h.triageUseCase.UpdateProfile(ctx, session.ID, profile); err != nil {
		h.sendMessage(chatID, replyForError(err))
		return
	}
	h.sendMessage(chatID, "Profile updated.\n\n"+formatProfile(profile))
}

// sendMessage plain text message
func (h *BotHandler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, truncate(text, maxTelegramText))
	if _, err := h.sender.Send(msg); err != nil {
		slog.Error("Failed to send message", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

// GetBotUsername bot username
func (h *BotHandler) GetBotUsername() string {
	return h.bot.Self.UserName
}

func sessionIDForChat(chatID int64) string {
	return "tg-" + strconv.FormatInt(chatID, 10)
}

func parseAge(arg string) (int, error) {
	age, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, entity.ErrInvalidAge
	}
	if age < 0 || age > entity.MaxAge {
		return 0, entity.ErrInvalidAge
	}
	return age, nil
}

// parseGender case-insensitive match against the allowed options; "-" clears
func parseGender(arg string) (entity.Gender, error) {
	arg = strings.TrimSpace(arg)
	if arg == "-" {
		return entity.GenderUnset, nil
	}
	for _, g := range entity.Genders {
		if g != entity.GenderUnset && strings.EqualFold(string(g), arg) {
			return g, nil
		}
	}
	return "", entity.ErrInvalidGender
}

func genderChoices() []string {
	choices := make([]string, 0, len(entity.Genders))
	for _, g := range entity.Genders {
		if g == entity.GenderUnset {
			choices = append(choices, "-")
			continue
		}
		choices = append(choices, string(g))
	}
	return choices
}

func formatProfile(p entity.Profile) string {
	gender := string(p.Gender)
	if gender == "" {
		gender = "not set"
	}
	history := p.MedicalHistory
	if history == "" {
		history = "none"
	}
	return fmt.Sprintf("👤 Profile\nAge: %d\nGender: %s\nMedical history: %s", p.Age, gender, history)
}

// formatTranscript newest messages win when the text does not fit
func formatTranscript(msgs []entity.Message, maxLen int) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		who := "You"
		if m.Role == entity.RoleAssistant {
			who = "VisitWise"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", who, m.Content))
	}

	out := strings.Join(lines, "\n\n")
	for len(out) > maxLen && len(lines) > 1 {
		lines = lines[1:]
		out = strings.Join(lines, "\n\n")
	}
	return truncate(out, maxLen)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func replyForError(err error) string {
	switch {
	case errors.Is(err, usecase.ErrEmptyMessage):
		return "Please describe your symptoms."
	case errors.Is(err, usecase.ErrSessionBusy):
		return "⏳ Still thinking about your previous message."
	case errors.Is(err, entity.ErrInvalidAge):
		return fmt.Sprintf("Age must be between 0 and %d.", entity.MaxAge)
	case errors.Is(err, entity.ErrInvalidGender):
		return "Gender must be one of: " + strings.Join(genderChoices(), ", ")
	case isQuotaError(err):
		slog.Warn("Model quota reached", slog.Any("error", err))
		return "The assistant is temporarily rate limited. Please try again in 30 seconds."
	default:
		slog.Error("Triage failed", slog.Any("error", err))
		return "Sorry, something went wrong. Please try again."
	}
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "retry in") || strings.Contains(msg, "rate limit")
}

const welcomeMessage = `Hello! 👋 I'm VisitWise, an AI-powered triage assistant and symptom educator.

Describe how you feel and I'll give short general guidance. I never diagnose.

Optionally tell me about yourself first:
/age 34
/gender Female
/history asthma, penicillin allergy

For emergencies call local services (999 / 112 / 911).`

const helpMessage = `Commands:
/start - Welcome message
/help - This list
/age N - Set your age (0-120)
/gender X - Female, Male, Non-binary, Other, or - to clear
/history <text> - Set your medical history
/history - Show this conversation
/profile - Show your profile
/clear - Clear conversation and profile
/medicines - Non-prescription items I know about

Any other message is treated as a symptom description.`
