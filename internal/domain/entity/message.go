package entity

import (
	"fmt"
	"strings"
	"time"
)

// Role who wrote a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole accepts "user", "assistant" and the older "bot" spelling
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, nil
	case "assistant", "bot":
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Message one turn of a triage conversation
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"-"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Prompt system/user pair sent to the model
type Prompt struct {
	System string
	User   string
}
