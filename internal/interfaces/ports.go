package interfaces

import (
	"context"
	"io"

	"reqforge/internal/infrastructure"
)

// ChatCompleter is the outbound chat-completion surface used by the
// generation and chat services.
type ChatCompleter interface {
	GenerateCompletion(ctx context.Context, messages []infrastructure.ChatMessage, temperature float64) (string, error)
	StreamCompletion(ctx context.Context, messages []infrastructure.ChatMessage, temperature float64) (io.ReadCloser, error)
}
