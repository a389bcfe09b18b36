package usecases

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"reqforge/internal/entities"
	"reqforge/internal/infrastructure"
	"reqforge/internal/interfaces"
	"reqforge/internal/repository"
)

const (
	chatHistoryLimit       = 24
	chatListLimit          = 200
	maxContextChars        = 12000
	maxAssistantReplyChars = 16000
	chatTemperature        = 0.3

	chatSystemPrompt = "You are a focused product requirements assistant. " +
		"Ask concise follow-up questions and avoid implementation details."
)

// ChatService runs one chat turn: persist the user message, window the
// history, relay the streamed assistant reply, and persist it.
type ChatService struct {
	ai       interfaces.ChatCompleter
	messages *repository.MessageRepository
	log      *zap.Logger
}

func NewChatService(ai interfaces.ChatCompleter, messages *repository.MessageRepository, log *zap.Logger) *ChatService {
	return &ChatService{ai: ai, messages: messages, log: log}
}

func (s *ChatService) ListMessages(ctx context.Context, projectID, userID string) ([]entities.Message, error) {
	return s.messages.List(ctx, projectID, userID, chatListLimit)
}

func mapRole(role entities.MessageRole) string {
	switch role {
	case entities.RoleUser:
		return "user"
	case entities.RoleAssistant:
		return "assistant"
	default:
		return "system"
	}
}

// StartReply persists the user's message and opens the upstream stream. The
// returned body is ready for RelayReply; the caller must not write any
// response bytes before this succeeds so a failure can still surface as a
// clean 502.
func (s *ChatService) StartReply(ctx context.Context, projectID, userID, content string) (io.ReadCloser, error) {
	if _, err := s.messages.Create(ctx, projectID, entities.RoleUser, content); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	history, err := s.messages.ListRecent(ctx, projectID, userID, chatHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	window := make([]infrastructure.ChatMessage, 0, len(history))
	for _, m := range history {
		window = append(window, infrastructure.ChatMessage{Role: mapRole(m.Role), Content: m.Content})
	}
	window = SelectMessagesForContext(window, maxContextChars)

	upstream := make([]infrastructure.ChatMessage, 0, len(window)+1)
	upstream = append(upstream, infrastructure.ChatMessage{Role: "system", Content: chatSystemPrompt})
	upstream = append(upstream, window...)

	body, err := s.ai.StreamCompletion(ctx, upstream, chatTemperature)
	if err != nil {
		return nil, fmt.Errorf("open chat stream: %w", err)
	}
	return body, nil
}

// RelayReply drains the upstream stream through sink and persists the
// accumulated assistant text. Persistence is best-effort even when the relay
// errors partway, so partial output is not lost; it runs on a fresh context
// because the client may already be gone.
func (s *ChatService) RelayReply(projectID string, body io.ReadCloser, sink func(delta string) error) {
	defer body.Close()

	text, err := infrastructure.ScanStreamDeltas(body, maxAssistantReplyChars, sink)
	if err != nil {
		s.log.Error("chat: streaming error", zap.String("project_id", projectID), zap.Error(err))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.messages.Create(persistCtx, projectID, entities.RoleAssistant, text); err != nil {
		s.log.Error("chat: failed to persist assistant message",
			zap.String("project_id", projectID), zap.Error(err))
		return
	}
	s.log.Info("chat: assistant message saved", zap.String("project_id", projectID))
}
