package entity

import "time"

// SessionState where a session is in the input -> thinking -> reply cycle
type SessionState string

const (
	StateIdle     SessionState = "idle"
	StateThinking SessionState = "thinking"
)

// Session per-visitor conversation and profile
type Session struct {
	ID        string
	Profile   Profile
	Messages  []Message
	State     SessionState
	CreatedAt time.Time
	LastUsed  time.Time
}

// LastReply content of the newest assistant message, "" if there is none
func (s *Session) LastReply() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}
