// Package bootstrap assembles the application's components from configuration.
// It is shared by the server and the ingestion binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"docchat/internal/config"
	"docchat/internal/ingest"
	"docchat/internal/integrations/breaker"
	"docchat/internal/integrations/ollama"
	"docchat/internal/integrations/openai"
	"docchat/internal/integrations/paramstore"
	"docchat/internal/repository"
	"docchat/internal/search"
	"docchat/internal/session"
	"docchat/internal/telemetry"
	"docchat/internal/usecase"
)

const ServiceName = "docchat"

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *telemetry.Metrics
	Search   *search.Client
	Sessions *session.Store
	Chat     *usecase.ChatService
	Ingest   *ingest.Service
	// Ledger is nil unless an ingestion ledger table is configured.
	Ledger *repository.Client

	shutdownTracing func(context.Context) error
}

// AWSLoader loads AWS SDK configuration. Replaced in tests.
var AWSLoader = func(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	shutdown, err := telemetry.Setup(ctx, ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:          cfg,
		Logger:          logger,
		Metrics:         metrics,
		Sessions:        session.NewStore(cfg.Chat.ConversationLength),
		shutdownTracing: shutdown,
	}

	app.Search, err = search.NewClient(search.Config{
		Addresses:   cfg.Search.Hosts,
		Username:    cfg.Search.User,
		Password:    cfg.Search.Password,
		VerifyCerts: cfg.Search.VerifyCerts,
		Index:       cfg.Search.Index,
	}, logger)
	if err != nil {
		return nil, err
	}

	var params paramstore.Getter
	if cfg.NeedsAWS() {
		awsCfg, err := AWSLoader(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load AWS config: %w", err)
		}
		if cfg.Chat.DirectiveParam != "" || cfg.LLM.OpenAIKeyParam != "" {
			ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg), paramstore.WithPrefix(cfg.ParamPrefix))
			if err != nil {
				return nil, err
			}
			params = ps
		}
		if cfg.Ingest.LedgerTable != "" {
			app.Ledger, err = repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Ingest.LedgerTable)
			if err != nil {
				return nil, err
			}
		}
	}

	completer, err := NewCompleter(cfg, params, logger)
	if err != nil {
		return nil, err
	}

	policy, err := usecase.ParseRetrievalPolicy(cfg.Chat.RetrievalPolicy)
	if err != nil {
		return nil, err
	}
	chatOpts := []usecase.ChatOption{usecase.WithLogger(logger), usecase.WithMetrics(metrics)}
	if params != nil {
		chatOpts = append(chatOpts, usecase.WithParamGetter(params))
	}
	app.Chat, err = usecase.NewChatService(app.Search, completer, app.Sessions, usecase.ChatConfig{
		TopK:              cfg.Chat.TopK,
		Directive:         cfg.Chat.Directive,
		DirectiveParam:    cfg.Chat.DirectiveParam,
		RetrievalPolicy:   policy,
		CompletionTimeout: cfg.CompletionTimeout(),
	}, chatOpts...)
	if err != nil {
		return nil, err
	}

	ingestOpts := []ingest.Option{ingest.WithLogger(logger), ingest.WithMetrics(metrics)}
	if app.Ledger != nil {
		ingestOpts = append(ingestOpts, ingest.WithLedger(app.Ledger))
	}
	app.Ingest, err = ingest.NewService(app.Search, ingest.NewPDFExtractor(logger), ingest.Config{
		Folder:    cfg.Ingest.PDFFolder,
		ChunkSize: cfg.Ingest.ChunkSize,
	}, ingestOpts...)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// NewCompleter builds the configured completion backend, wrapped in a circuit
// breaker when enabled.
func NewCompleter(cfg *config.Config, params paramstore.Getter, logger *slog.Logger) (usecase.Completer, error) {
	var c usecase.Completer
	switch cfg.LLM.Backend {
	case config.BackendOllama:
		oc, err := ollama.NewClient(cfg.LLM.OllamaHost, cfg.LLM.OllamaModel,
			ollama.WithKeepAliveForever(cfg.LLM.KeepAliveForever))
		if err != nil {
			return nil, err
		}
		c = oc
	case config.BackendOpenAI:
		var opts []openai.Option
		if cfg.LLM.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.OpenAIBaseURL))
		}
		if cfg.LLM.OpenAIAPIKey != "" {
			opts = append(opts, openai.WithAPIKey(cfg.LLM.OpenAIAPIKey))
		}
		if cfg.LLM.OpenAIKeyParam != "" {
			if params == nil {
				return nil, errors.New("bootstrap: OPENAI_KEY_PARAM set without a parameter store")
			}
			opts = append(opts, openai.WithParamStore(params, cfg.LLM.OpenAIKeyParam))
		}
		oc, err := openai.NewClient(cfg.LLM.OpenAIModel, opts...)
		if err != nil {
			return nil, err
		}
		c = oc
	default:
		return nil, fmt.Errorf("bootstrap: unknown LLM backend %q", cfg.LLM.Backend)
	}

	if !cfg.LLM.Breaker {
		return c, nil
	}
	settings := breaker.DefaultSettings(cfg.LLM.Backend)
	settings.RatePerSecond = cfg.LLM.RatePerSecond
	return breaker.New(c, settings, logger)
}

// Shutdown flushes telemetry.
func (a *App) Shutdown(ctx context.Context) error {
	if a.shutdownTracing == nil {
		return nil
	}
	return a.shutdownTracing(ctx)
}
