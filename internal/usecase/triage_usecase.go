package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/domain/repository"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrSessionBusy  = repository.ErrSessionBusy
)

// TriageResult outcome of one submitted message
type TriageResult struct {
	SessionID string
	Reply     string
	Emergency bool
}

// TriageUseCase turn-taking triage chat
type TriageUseCase interface {
	// StartSession creates an empty session with a fresh id
	StartSession(ctx context.Context) (*entity.Session, error)

	// EnsureSession returns the session with id, creating it when missing
	EnsureSession(ctx context.Context, id string) (*entity.Session, error)

	// ProcessMessage stores the profile, appends the message and produces a reply.
	// An empty sessionID starts a new session.
	ProcessMessage(ctx context.Context, sessionID, text string, profile entity.Profile) (*TriageResult, error)

	// ProcessMessageWithStoredProfile is ProcessMessage using whatever profile the
	// session holds once the turn has started
	ProcessMessageWithStoredProfile(ctx context.Context, sessionID, text string) (*TriageResult, error)

	// GetSession returns the session snapshot
	GetSession(ctx context.Context, id string) (*entity.Session, error)

	// UpdateProfile validates and stores the profile without sending a message
	UpdateProfile(ctx context.Context, id string, profile entity.Profile) error

	// Clear resets messages and profile; ErrSessionBusy while a reply is pending
	Clear(ctx context.Context, id string) error

	// ListSessions most recently used first; limit <= 0 means all
	ListSessions(ctx context.Context, limit int) ([]entity.Session, error)

	// DeleteSession removes the session; ErrSessionBusy while a reply is pending
	DeleteSession(ctx context.Context, id string) error

	// PruneIdle deletes idle sessions unused for longer than idleFor
	PruneIdle(ctx context.Context, idleFor time.Duration) (int, error)
}

type triageUseCase struct {
	aiRepo       repository.AIRepository
	sessionRepo  repository.SessionRepository
	medicineRepo repository.MedicineRepository
	timeout      time.Duration
	now          func() time.Time
}

// NewTriageUseCase timeout bounds each model call, zero means no limit
func NewTriageUseCase(
	aiRepo repository.AIRepository,
	sessionRepo repository.SessionRepository,
	medicineRepo repository.MedicineRepository,
	timeout time.Duration,
) TriageUseCase {
	return &triageUseCase{
		aiRepo:       aiRepo,
		sessionRepo:  sessionRepo,
		medicineRepo: medicineRepo,
		timeout:      timeout,
		now:          time.Now,
	}
}

// StartSession creates a session with a random id
func (u *triageUseCase) StartSession(ctx context.Context) (*entity.Session, error) {
	return u.createSession(ctx, uuid.New().String())
}

func (u *triageUseCase) createSession(ctx context.Context, id string) (*entity.Session, error) {
	now := u.now()
	session := entity.Session{
		ID:        id,
		State:     entity.StateIdle,
		CreatedAt: now,
		LastUsed:  now,
	}
	if err := u.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &session, nil
}

// EnsureSession get-or-create by id
func (u *triageUseCase) EnsureSession(ctx context.Context, id string) (*entity.Session, error) {
	session, err := u.sessionRepo.Get(ctx, id)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}
	return u.createSession(ctx, id)
}

// ProcessMessage runs one input -> thinking -> reply cycle
func (u *triageUseCase) ProcessMessage(ctx context.Context, sessionID, text string, profile entity.Profile) (*TriageResult, error) {
	return u.process(ctx, sessionID, text, &profile)
}

// ProcessMessageWithStoredProfile same cycle, profile read inside the turn
func (u *triageUseCase) ProcessMessageWithStoredProfile(ctx context.Context, sessionID, text string) (*TriageResult, error) {
	return u.process(ctx, sessionID, text, nil)
}

// process stores profile when given, otherwise uses the stored one
func (u *triageUseCase) process(ctx context.Context, sessionID, text string, profile *entity.Profile) (*TriageResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if profile != nil {
		if err := profile.Validate(); err != nil {
			return nil, err
		}
	}

	if sessionID == "" {
		session, err := u.StartSession(ctx)
		if err != nil {
			return nil, err
		}
		sessionID = session.ID
	}

	ok, err := u.sessionRepo.SetState(ctx, sessionID, entity.StateIdle, entity.StateThinking)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionBusy
	}
	defer func() {
		// the request context may already be cancelled here
		if _, err := u.sessionRepo.SetState(context.WithoutCancel(ctx), sessionID, entity.StateThinking, entity.StateIdle); err != nil {
			slog.Error("Failed to reset session state", slog.String("session_id", sessionID), slog.Any("error", err))
		}
	}()

	if profile != nil {
		if err := u.sessionRepo.UpdateProfile(ctx, sessionID, *profile); err != nil {
			return nil, fmt.Errorf("failed to save profile: %w", err)
		}
	} else {
		session, err := u.sessionRepo.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		profile = &session.Profile
	}

	if err := u.append(ctx, sessionID, entity.RoleUser, text); err != nil {
		return nil, err
	}

	result := &TriageResult{SessionID: sessionID}
	if IsEmergency(text) {
		slog.Info("Emergency phrase matched, skipping model", slog.String("session_id", sessionID))
		result.Reply = EmergencyReply
		result.Emergency = true
	} else {
		reply, err := u.generate(ctx, text, *profile)
		if err != nil {
			return nil, err
		}
		result.Reply = reply
	}

	if err := u.append(ctx, sessionID, entity.RoleAssistant, result.Reply); err != nil {
		return nil, err
	}
	return result, nil
}

func (u *triageUseCase) generate(ctx context.Context, text string, profile entity.Profile) (string, error) {
	catalog, err := u.medicineRepo.Catalog(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read medicine catalog: %w", err)
	}

	prompt := BuildPrompt(text, profile, catalog)
	slog.Debug("Prompt for model", slog.String("user", prompt.User))

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	reply, err := u.aiRepo.GenerateReply(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	return reply, nil
}

func (u *triageUseCase) append(ctx context.Context, sessionID string, role entity.Role, content string) error {
	msg := entity.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: u.now(),
	}
	if err := u.sessionRepo.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to save %s message: %w", role, err)
	}
	return nil
}

// GetSession returns the session snapshot
func (u *triageUseCase) GetSession(ctx context.Context, id string) (*entity.Session, error) {
	return u.sessionRepo.Get(ctx, id)
}

// UpdateProfile validates then stores
func (u *triageUseCase) UpdateProfile(ctx context.Context, id string, profile entity.Profile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	return u.sessionRepo.UpdateProfile(ctx, id, profile)
}

// Clear resets messages and profile
func (u *triageUseCase) Clear(ctx context.Context, id string) error {
	return u.sessionRepo.Clear(ctx, id)
}

// ListSessions most recently used first
func (u *triageUseCase) ListSessions(ctx context.Context, limit int) ([]entity.Session, error) {
	return u.sessionRepo.List(ctx, limit)
}

// DeleteSession removes an idle session
func (u *triageUseCase) DeleteSession(ctx context.Context, id string) error {
	return u.sessionRepo.Delete(ctx, id)
}

// PruneIdle busy sessions are skipped, they are in use
func (u *triageUseCase) PruneIdle(ctx context.Context, idleFor time.Duration) (int, error) {
	sessions, err := u.sessionRepo.List(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	cutoff := u.now().Add(-idleFor)
	removed := 0
	for _, session := range sessions {
		if session.State != entity.StateIdle || session.LastUsed.After(cutoff) {
			continue
		}
		err := u.sessionRepo.Delete(ctx, session.ID)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, repository.ErrSessionBusy), errors.Is(err, repository.ErrSessionNotFound):
		default:
			return removed, fmt.Errorf("failed to delete session %s: %w", session.ID, err)
		}
	}
	return removed, nil
}
