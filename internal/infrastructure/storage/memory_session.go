package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/domain/repository"
)

type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entity.Session
}

// NewMemorySessionRepository in-memory session repository, lives as long as the process
func NewMemorySessionRepository() repository.SessionRepository {
	return &memorySessionRepository{
		sessions: make(map[string]*entity.Session),
	}
}

// Create stores a new session
func (m *memorySessionRepository) Create(ctx context.Context, session entity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	if session.State == "" {
		session.State = entity.StateIdle
	}
	session.Messages = append([]entity.Message(nil), session.Messages...)
	m.sessions[session.ID] = &session
	return nil
}

// Get returns a copy of the session
func (m *memorySessionRepository) Get(ctx context.Context, id string) (*entity.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrSessionNotFound, id)
	}
	return cloneSession(session), nil
}

// AppendMessage adds the message to the end of the history
func (m *memorySessionRepository) AppendMessage(ctx context.Context, message entity.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[message.SessionID]
	if !exists {
		return fmt.Errorf("%w: %s", repository.ErrSessionNotFound, message.SessionID)
	}
	session.Messages = append(session.Messages, message)
	session.LastUsed = time.Now()
	return nil
}

// UpdateProfile overwrites the profile
func (m *memorySessionRepository) UpdateProfile(ctx context.Context, id string, profile entity.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[id]
	if !exists {
		return fmt.Errorf("%w: %s", repository.ErrSessionNotFound, id)
	}
	session.Profile = profile
	session.LastUsed = time.Now()
	return nil
}

// SetState compare-and-set of the session state
func (m *memorySessionRepository) SetState(ctx context.Context, id string, from, to entity.SessionState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[id]
	if !exists {
		return false, fmt.Errorf("%w: %s", repository.ErrSessionNotFound, id)
	}
	if from != "" && session.State != from {
		return false, nil
	}
	session.State = to
	return true, nil
}

// Clear resets history and profile of an idle session
func (m *memorySessionRepository) Clear(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.idleSession(id)
	if err != nil {
		return err
	}
	session.Messages = nil
	session.Profile = entity.Profile{}
	session.LastUsed = time.Now()
	return nil
}

// Delete removes an idle session
func (m *memorySessionRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.idleSession(id); err != nil {
		return err
	}
	delete(m.sessions, id)
	return nil
}

// idleSession caller holds mu
func (m *memorySessionRepository) idleSession(id string) (*entity.Session, error) {
	session, exists := m.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrSessionNotFound, id)
	}
	if session.State == entity.StateThinking {
		return nil, fmt.Errorf("%w: %s", repository.ErrSessionBusy, id)
	}
	return session, nil
}

// List sessions, most recently used first
func (m *memorySessionRepository) List(ctx context.Context, limit int) ([]entity.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]entity.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		all = append(all, *cloneSession(session))
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].LastUsed.After(all[j].LastUsed)
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func cloneSession(s *entity.Session) *entity.Session {
	c := *s
	c.Messages = append([]entity.Message(nil), s.Messages...)
	return &c
}
