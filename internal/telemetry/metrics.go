package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Turn outcomes recorded on the chat.turns counter.
const (
	OutcomeAnswered        = "answered"
	OutcomeModelFailed     = "model_failed"
	OutcomeRetrievalFailed = "retrieval_failed"
	OutcomeEmpty           = "empty"
)

// Metrics holds the counters emitted by the chat and ingestion paths. A nil
// *Metrics records nothing.
type Metrics struct {
	Turns             metric.Int64Counter
	RetrievalFailures metric.Int64Counter
	ChunksIndexed     metric.Int64Counter
}

// NewMetrics registers the counters on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	turns, err := meter.Int64Counter(
		"chat.turns",
		metric.WithDescription("Conversation turns handled, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: chat.turns: %w", err)
	}

	retrievalFailures, err := meter.Int64Counter(
		"chat.retrieval.failures",
		metric.WithDescription("Search collaborator failures during retrieval"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: chat.retrieval.failures: %w", err)
	}

	chunksIndexed, err := meter.Int64Counter(
		"ingest.chunks.indexed",
		metric.WithDescription("Chunks successfully written to the search index"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: ingest.chunks.indexed: %w", err)
	}

	return &Metrics{
		Turns:             turns,
		RetrievalFailures: retrievalFailures,
		ChunksIndexed:     chunksIndexed,
	}, nil
}

func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordRetrievalFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.RetrievalFailures.Add(ctx, 1)
}

func (m *Metrics) RecordChunksIndexed(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.ChunksIndexed.Add(ctx, int64(n))
}
