package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"docchat/internal/domain"
	"docchat/internal/telemetry"
)

const (
	// NoContentReply answers a message without usable content.
	NoContentReply = "No message content received."

	defaultTopK = 5
)

// RetrievalPolicy decides what a turn does when the search collaborator fails.
type RetrievalPolicy string

const (
	// RetrievalAbort fails the turn when the search collaborator fails.
	RetrievalAbort RetrievalPolicy = "abort"
	// RetrievalDegrade continues the turn with no context chunks.
	RetrievalDegrade RetrievalPolicy = "degrade"
)

// ParseRetrievalPolicy maps a config value to a policy. Empty means abort.
func ParseRetrievalPolicy(s string) (RetrievalPolicy, error) {
	switch RetrievalPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RetrievalAbort:
		return RetrievalAbort, nil
	case RetrievalDegrade:
		return RetrievalDegrade, nil
	default:
		return "", fmt.Errorf("usecase: unknown retrieval failure policy %q", s)
	}
}

// Retriever returns up to k chunks matching the raw query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// Completer submits one prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// SessionStore serializes turns per session and keeps their bounded history.
type SessionStore interface {
	Acquire(ctx context.Context, key string) (func(), error)
	History(key string) []domain.Turn
	AppendTurn(key string, turn domain.Turn) bool
}

// ParamGetter reads the system directive from a parameter store.
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type ChatConfig struct {
	TopK int
	// Directive is used verbatim when DirectiveParam is empty. Empty means DefaultDirective.
	Directive string
	// DirectiveParam names a parameter store entry holding the directive.
	DirectiveParam    string
	RetrievalPolicy   RetrievalPolicy
	CompletionTimeout time.Duration
}

type ChatOption func(*ChatService)

func WithLogger(l *slog.Logger) ChatOption {
	return func(s *ChatService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *telemetry.Metrics) ChatOption {
	return func(s *ChatService) {
		s.metrics = m
	}
}

func WithParamGetter(p ParamGetter) ChatOption {
	return func(s *ChatService) {
		s.params = p
	}
}

type ChatService struct {
	retriever Retriever
	completer Completer
	sessions  SessionStore
	params    ParamGetter
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	cfg       ChatConfig

	cacheMu     sync.RWMutex
	cacheLoaded bool
	directive   string
}

type ChatInput struct {
	SessionKey string
	Query      string
}

type ChatOutput struct {
	Reply string
	// Recorded reports whether the turn was appended to session history.
	Recorded bool
}

func NewChatService(r Retriever, c Completer, s SessionStore, cfg ChatConfig, opts ...ChatOption) (*ChatService, error) {
	if r == nil {
		return nil, errors.New("usecase: retriever must not be nil")
	}
	if c == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.RetrievalPolicy == "" {
		cfg.RetrievalPolicy = RetrievalAbort
	}
	if cfg.RetrievalPolicy != RetrievalAbort && cfg.RetrievalPolicy != RetrievalDegrade {
		return nil, fmt.Errorf("usecase: unknown retrieval failure policy %q", cfg.RetrievalPolicy)
	}
	cfg.DirectiveParam = strings.TrimSpace(cfg.DirectiveParam)

	svc := &ChatService{
		retriever: r,
		completer: c,
		sessions:  s,
		logger:    slog.Default(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.cfg.DirectiveParam != "" && svc.params == nil {
		return nil, errors.New("usecase: directive parameter set without a param getter")
	}
	return svc, nil
}

// Chat runs one conversation turn for a session. Turns of the same session run
// one at a time in arrival order. A completion failure still produces a reply
// and is recorded as a turn.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	ctx, span := telemetry.Tracer("usecase").Start(ctx, "chat.turn")
	defer span.End()

	query := in.Query
	if strings.TrimSpace(query) == "" {
		s.metrics.RecordTurn(ctx, telemetry.OutcomeEmpty)
		return ChatOutput{Reply: NoContentReply}, nil
	}

	directive, err := s.ensureDirective(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "directive load failed")
		return ChatOutput{}, newError(ErrorInternal, "directive_load_error", err)
	}

	release, err := s.sessions.Acquire(ctx, in.SessionKey)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "session_acquire_error", err)
	}
	defer release()

	chunks, err := s.retrieve(ctx, query)
	if err != nil {
		s.metrics.RecordRetrievalFailure(ctx)
		if s.cfg.RetrievalPolicy == RetrievalAbort {
			s.metrics.RecordTurn(ctx, telemetry.OutcomeRetrievalFailed)
			span.RecordError(err)
			span.SetStatus(codes.Error, "retrieval failed")
			return ChatOutput{}, newError(ErrorRetrieval, "search_error", err)
		}
		s.logger.Warn("retrieval failed, continuing without context", "session", in.SessionKey, "err", err)
		chunks = nil
	}

	prompt := AssemblePrompt(chunks, query, directive, s.sessions.History(in.SessionKey))

	reply, err := s.complete(ctx, prompt)
	if err != nil {
		s.logger.Error("completion failed", "session", in.SessionKey, "err", err)
		s.metrics.RecordTurn(ctx, telemetry.OutcomeModelFailed)
		reply = fmt.Sprintf("Model processing failed: %v", err)
	} else {
		s.metrics.RecordTurn(ctx, telemetry.OutcomeAnswered)
	}

	recorded := s.sessions.AppendTurn(in.SessionKey, domain.Turn{Query: query, Response: reply})
	span.SetAttributes(
		attribute.Int("chat.chunks", len(chunks)),
		attribute.Bool("chat.recorded", recorded),
	)
	return ChatOutput{Reply: reply, Recorded: recorded}, nil
}

func (s *ChatService) retrieve(ctx context.Context, query string) ([]string, error) {
	ctx, span := telemetry.Tracer("usecase").Start(ctx, "chat.retrieve")
	defer span.End()

	chunks, err := s.retriever.Retrieve(ctx, query, s.cfg.TopK)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieve.hits", len(chunks)))
	return chunks, nil
}

func (s *ChatService) complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := telemetry.Tracer("usecase").Start(ctx, "chat.complete")
	defer span.End()

	if s.cfg.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CompletionTimeout)
		defer cancel()
	}

	reply, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return reply, nil
}

// ensureDirective resolves the directive once. The lookup runs without the
// lock held; a failed lookup is not cached, so the next turn retries it.
func (s *ChatService) ensureDirective(ctx context.Context) (string, error) {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		d := s.directive
		s.cacheMu.RUnlock()
		return d, nil
	}
	s.cacheMu.RUnlock()

	directive := s.cfg.Directive
	if s.cfg.DirectiveParam != "" {
		v, err := s.params.GetParameter(ctx, s.cfg.DirectiveParam)
		if err != nil {
			return "", fmt.Errorf("usecase: load directive: %w", err)
		}
		directive = v
	}
	if strings.TrimSpace(directive) == "" {
		directive = DefaultDirective
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return s.directive, nil
	}
	s.directive = directive
	s.cacheLoaded = true
	return directive, nil
}
