package web

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/domain/repository"
	"github.com/visitwise/visitwise/internal/usecase"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	serviceName      = "visitwise"
	defaultListLimit = 50
)

// Handler HTTP front end of the triage assistant
type Handler struct {
	triageUseCase   usecase.TriageUseCase
	medicineUseCase usecase.MedicineUseCase
}

// NewHandler yields a handler over the two use cases
func NewHandler(triageUseCase usecase.TriageUseCase, medicineUseCase usecase.MedicineUseCase) *Handler {
	return &Handler{
		triageUseCase:   triageUseCase,
		medicineUseCase: medicineUseCase,
	}
}

type chatRequest struct {
	Message        string `json:"message"`
	Age            int    `json:"age"`
	Gender         string `json:"gender"`
	MedicalHistory string `json:"medical_history"`
	SessionID      string `json:"session_id"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
	Emergency bool   `json:"emergency"`
}

type sessionResponse struct {
	SessionID string           `json:"session_id"`
	Profile   entity.Profile   `json:"profile"`
	Messages  []entity.Message `json:"messages"`
	LastReply string           `json:"last_reply"`
	State     string           `json:"state"`
}

type sessionSummary struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// Router builds the gin engine with every route registered
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())

	tmpl := template.Must(template.ParseFS(templatesFS, "templates/*.html"))
	r.SetHTMLTemplate(tmpl)

	r.GET("/", h.Index)
	r.GET("/health", h.Health)
	r.POST("/chat", h.Chat)

	sessions := r.Group("/sessions")
	{
		sessions.GET("", h.ListSessions)
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.DeleteSession)
		sessions.POST("/:id/clear", h.ClearSession)
	}

	return r
}

// Index serves the chat page
func (h *Handler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Genders": entity.Genders,
		"MaxAge":  entity.MaxAge,
	})
}

// Health liveness plus catalog size
func (h *Handler) Health(c *gin.Context) {
	count, err := h.medicineUseCase.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"medicines": count,
		"timestamp": time.Now(),
	})
}

// Chat one triage turn
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	profile := entity.Profile{
		Age:            req.Age,
		Gender:         entity.Gender(req.Gender),
		MedicalHistory: req.MedicalHistory,
	}

	result, err := h.triageUseCase.ProcessMessage(c.Request.Context(), req.SessionID, req.Message, profile)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, chatResponse{
		Reply:     result.Reply,
		SessionID: result.SessionID,
		Emergency: result.Emergency,
	})
}

// CreateSession starts an empty session
func (h *Handler) CreateSession(c *gin.Context) {
	session, err := h.triageUseCase.StartSession(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(session))
}

// GetSession profile, messages and last reply
func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.triageUseCase.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// ClearSession resets profile and messages
func (h *Handler) ClearSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.triageUseCase.Clear(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	session, err := h.triageUseCase.GetSession(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// ListSessions summaries without transcripts, ?limit=N (default 50, 0 for all)
func (h *Handler) ListSessions(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	sessions, err := h.triageUseCase.ListSessions(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]sessionSummary, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, sessionSummary{
			SessionID: session.ID,
			State:     string(session.State),
			Messages:  len(session.Messages),
			CreatedAt: session.CreatedAt,
			LastUsed:  session.LastUsed,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// DeleteSession removes the session
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.triageUseCase.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func toSessionResponse(session *entity.Session) sessionResponse {
	messages := session.Messages
	if messages == nil {
		messages = []entity.Message{}
	}
	return sessionResponse{
		SessionID: session.ID,
		Profile:   session.Profile,
		Messages:  messages,
		LastReply: session.LastReply(),
		State:     string(session.State),
	}
}

// writeError maps use case errors to status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is empty"})
	case errors.Is(err, entity.ErrInvalidAge), errors.Is(err, entity.ErrInvalidGender):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, usecase.ErrSessionBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "Still thinking about the previous message"})
	default:
		slog.Error("Chat request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not get a reply, please try again"})
	}
}

// requestLogger gin access log through slog
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		slog.Info("HTTP request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}
