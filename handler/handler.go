// Package handler exposes the chat service over HTTP and WebSocket.
package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"docchat/internal/usecase"
)

const internalErrorReply = "Internal error."

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type SessionRegistry interface {
	OnConnect(key string)
	OnDisconnect(key string)
	Has(key string) bool
}

type Handler struct {
	chat     ChatUseCase
	sessions SessionRegistry
	logger   *slog.Logger
	newID    func() string
}

// inboundMessage is the client frame {"Messages": {"content": "..."}}.
type inboundMessage struct {
	Messages struct {
		Content string `json:"content"`
	} `json:"Messages"`
}

type responseEvent struct {
	Event    string `json:"event"`
	Response string `json:"response"`
}

func NewHandler(chat ChatUseCase, sessions SessionRegistry, logger *slog.Logger) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("handler: session registry must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		chat:     chat,
		sessions: sessions,
		logger:   logger,
		newID:    uuid.NewString,
	}, nil
}

// reply runs one turn and always produces text for the client; errors are
// turned into fixed notices.
func (h *Handler) reply(ctx context.Context, sessionKey, content string) string {
	out, err := h.chat.Chat(ctx, usecase.ChatInput{SessionKey: sessionKey, Query: content})
	if err == nil {
		return out.Reply
	}
	h.logger.Error("chat turn failed", "session", sessionKey, "err", err)
	return replyForError(err)
}

func replyForError(err error) string {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return internalErrorReply
	}
	switch ucErr.Code {
	case usecase.ErrorRetrieval:
		if ucErr.Err != nil {
			return "Retrieval failed: " + ucErr.Err.Error()
		}
		return "Retrieval failed."
	default:
		return internalErrorReply
	}
}
