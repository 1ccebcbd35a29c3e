package repository

import (
	"context"

	"github.com/visitwise/visitwise/internal/domain/entity"
)

// AIRepository hosted chat-completion model
type AIRepository interface {
	// GenerateReply sends the system/user pair and returns the trimmed reply text
	GenerateReply(ctx context.Context, prompt entity.Prompt) (string, error)

	// Close releases the underlying client
	Close() error
}
