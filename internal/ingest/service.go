// Package ingest builds the search index from a folder of PDF documents the
// first time the process finds the index missing.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"docchat/internal/chunker"
	"docchat/internal/domain"
	"docchat/internal/telemetry"
)

type Indexer interface {
	Index() string
	IndexExists(ctx context.Context, name string) (bool, error)
	IndexAll(ctx context.Context, chunks []string) int
}

type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

type Ledger interface {
	RecordRun(ctx context.Context, run domain.IngestionRun) error
}

type Config struct {
	Folder    string
	ChunkSize int
}

type Result struct {
	// Skipped is true when the index already existed and nothing was written.
	Skipped bool
	Files   []string
	Chunks  int
	Indexed int
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLedger records every completed ingestion run.
func WithLedger(l Ledger) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

type Service struct {
	indexer   Indexer
	extractor TextExtractor
	chunker   *chunker.Chunker
	ledger    Ledger
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	folder    string
	now       func() time.Time
}

func NewService(idx Indexer, ex TextExtractor, cfg Config, opts ...Option) (*Service, error) {
	if idx == nil {
		return nil, errors.New("ingest: indexer must not be nil")
	}
	if ex == nil {
		return nil, errors.New("ingest: text extractor must not be nil")
	}
	if strings.TrimSpace(cfg.Folder) == "" {
		return nil, errors.New("ingest: folder must not be empty")
	}
	if cfg.ChunkSize <= 0 {
		return nil, errors.New("ingest: chunk size must be positive")
	}
	s := &Service{
		indexer:   idx,
		extractor: ex,
		chunker:   chunker.New(cfg.ChunkSize),
		logger:    slog.Default(),
		folder:    cfg.Folder,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureIndexed populates the index from the folder unless the index already
// exists, in which case it performs no writes.
func (s *Service) EnsureIndexed(ctx context.Context) (Result, error) {
	ctx, span := telemetry.Tracer("ingest").Start(ctx, "ingest.ensure_indexed")
	defer span.End()

	index := s.indexer.Index()
	exists, err := s.indexer.IndexExists(ctx, index)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("ingest: EnsureIndexed: %w", err)
	}
	if exists {
		s.logger.Info("index already exists, skipping indexing", "index", index)
		span.SetAttributes(attribute.Bool("ingest.skipped", true))
		return Result{Skipped: true}, nil
	}

	s.logger.Info("index does not exist, creating and indexing", "index", index, "folder", s.folder)
	started := s.now()

	files, err := ListPDFs(s.folder)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("ingest: EnsureIndexed: %w", err)
	}

	var chunks []string
	for _, path := range files {
		text, err := s.extractor.ExtractText(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("ingest: EnsureIndexed: %w", ctx.Err())
			}
			s.logger.Error("pdf extraction failed, skipping file", "path", path, "err", err)
			continue
		}
		chunks = append(chunks, s.chunker.Chunk(text)...)
	}
	s.logger.Info("chunks created", "count", len(chunks))

	indexed := s.indexer.IndexAll(ctx, chunks)
	s.metrics.RecordChunksIndexed(ctx, indexed)

	res := Result{Files: files, Chunks: len(chunks), Indexed: indexed}
	span.SetAttributes(
		attribute.Int("ingest.files", len(files)),
		attribute.Int("ingest.chunks", res.Chunks),
		attribute.Int("ingest.indexed", res.Indexed),
	)

	if s.ledger != nil {
		run := domain.IngestionRun{
			Index:      index,
			Files:      baseNames(files),
			Chunks:     res.Chunks,
			Indexed:    res.Indexed,
			StartedAt:  started,
			FinishedAt: s.now(),
		}
		if err := s.ledger.RecordRun(ctx, run); err != nil {
			s.logger.Error("failed to record ingestion run", "index", index, "err", err)
		}
	}
	return res, nil
}

// ListPDFs returns the paths of the *.pdf files directly inside folder, sorted
// by name.
func ListPDFs(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read folder %q: %w", folder, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pdf") {
			continue
		}
		out = append(out, filepath.Join(folder, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func baseNames(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.Base(p))
	}
	return out
}
