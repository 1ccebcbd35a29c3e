package repository

import (
	"context"
	"errors"

	"github.com/visitwise/visitwise/internal/domain/entity"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session is still waiting for a reply")
)

// SessionRepository conversation state per visitor
type SessionRepository interface {
	// Create stores a new empty session
	Create(ctx context.Context, session entity.Session) error

	// Get returns a copy of the session or ErrSessionNotFound
	Get(ctx context.Context, id string) (*entity.Session, error)

	// AppendMessage adds a message at the end of the session history
	AppendMessage(ctx context.Context, message entity.Message) error

	// UpdateProfile overwrites the session profile
	UpdateProfile(ctx context.Context, id string, profile entity.Profile) error

	// SetState moves the session to state; when from is non-empty the
	// transition only happens if the current state equals from
	SetState(ctx context.Context, id string, from, to entity.SessionState) (bool, error)

	// Clear drops messages and resets profile; ErrSessionBusy while thinking
	Clear(ctx context.Context, id string) error

	// Delete removes the session entirely; ErrSessionBusy while thinking
	Delete(ctx context.Context, id string) error

	// List returns all sessions, most recently used first
	List(ctx context.Context, limit int) ([]entity.Session, error)
}
