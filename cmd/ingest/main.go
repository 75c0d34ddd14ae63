// Command ingest builds the search index from the PDF folder. It runs as an
// AWS Lambda function when started by the Lambda runtime and as a one-shot
// command otherwise.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"docchat/internal/bootstrap"
	"docchat/internal/config"
	"docchat/internal/domain"
	"docchat/internal/ingest"
	"docchat/internal/logger"
)

type indexer interface {
	EnsureIndexed(ctx context.Context) (ingest.Result, error)
}

type runHistory interface {
	LatestRun(ctx context.Context, index string) (domain.IngestionRun, bool, error)
	ListRuns(ctx context.Context, index string, limit int) ([]domain.IngestionRun, error)
}

type response struct {
	Index   string `json:"index"`
	Skipped bool   `json:"skipped"`
	Files   int    `json:"files"`
	Chunks  int    `json:"chunks"`
	Indexed int    `json:"indexed"`
	// LastRun is set when ingestion was skipped and the ledger knows the run
	// that built the index.
	LastRun *time.Time `json:"last_run,omitempty"`
}

// handle returns the Lambda handler. history may be nil.
func handle(svc indexer, history runHistory, index string) func(context.Context, json.RawMessage) (response, error) {
	return func(ctx context.Context, _ json.RawMessage) (response, error) {
		res, err := svc.EnsureIndexed(ctx)
		if err != nil {
			return response{}, err
		}
		out := response{
			Index:   index,
			Skipped: res.Skipped,
			Files:   len(res.Files),
			Chunks:  res.Chunks,
			Indexed: res.Indexed,
		}
		if res.Skipped && history != nil {
			run, ok, err := history.LatestRun(ctx, index)
			if err != nil {
				slog.WarnContext(ctx, "latest ingestion run lookup failed", "err", err)
			} else if ok {
				out.LastRun = &run.FinishedAt
			}
		}
		return out, nil
	}
}

func printRuns(ctx context.Context, history runHistory, index string, limit int, w *json.Encoder) error {
	runs, err := history.ListRuns(ctx, index, limit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if err := w.Encode(run); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	listRuns := flag.Int("runs", 0, "print the last N recorded ingestion runs and exit")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	slog.SetDefault(log)

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build application", "err", err)
		os.Exit(1)
	}
	defer func() { _ = app.Shutdown(context.Background()) }()

	var history runHistory
	if app.Ledger != nil {
		history = app.Ledger
	}
	index := app.Search.Index()

	if *listRuns > 0 {
		if history == nil {
			log.Error("no ingestion ledger configured")
			os.Exit(1)
		}
		if err := printRuns(ctx, history, index, *listRuns, json.NewEncoder(os.Stdout)); err != nil {
			log.Error("listing ingestion runs failed", "err", err)
			os.Exit(1)
		}
		return
	}

	h := handle(app.Ingest, history, index)

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		lambda.Start(h)
		return
	}

	out, err := h(ctx, nil)
	if err != nil {
		log.Error("ingestion failed", "err", err)
		os.Exit(1)
	}
	log.Info("ingestion finished", "index", out.Index, "skipped", out.Skipped, "files", out.Files, "chunks", out.Chunks, "indexed", out.Indexed)
}
