package syncer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/dmitrijs2005/catchkeeper/internal/client/syncer"

// Operation results.
const (
	resultCommitted = "committed"
	resultFailed    = "failed"
	resultMalformed = "malformed"
)

// Cycle outcomes.
const (
	outcomeOK              = "ok"
	outcomeError           = "error"
	outcomeSkipped         = "skipped"
	outcomeUnauthenticated = "unauthenticated"
)

type syncMetrics struct {
	operations metric.Int64Counter
	cycles     metric.Int64Counter
	conflicts  metric.Int64Counter
	pulled     metric.Int64Counter
}

func newSyncMetrics(mp metric.MeterProvider) (*syncMetrics, error) {
	meter := mp.Meter(instrumentationName)

	operations, err := meter.Int64Counter(
		"catchkeeper.sync.operations",
		metric.WithDescription("Queued operations processed by push, by result"),
		metric.WithUnit("{operations}"),
	)
	if err != nil {
		return nil, err
	}

	cycles, err := meter.Int64Counter(
		"catchkeeper.sync.cycles",
		metric.WithDescription("Push cycles, by outcome"),
		metric.WithUnit("{cycles}"),
	)
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter(
		"catchkeeper.sync.conflicts",
		metric.WithDescription("Records that differed locally and remotely during a full sync"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	pulled, err := meter.Int64Counter(
		"catchkeeper.sync.pulled",
		metric.WithDescription("Remote-only records added to the local store"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	return &syncMetrics{
		operations: operations,
		cycles:     cycles,
		conflicts:  conflicts,
		pulled:     pulled,
	}, nil
}

func (m *syncMetrics) recordOperations(ctx context.Context, result string, n int) {
	if n == 0 {
		return
	}
	m.operations.Add(ctx, int64(n), metric.WithAttributes(attribute.String("result", result)))
}

func (m *syncMetrics) recordCycle(ctx context.Context, outcome string) {
	m.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *syncMetrics) recordConflicts(ctx context.Context, n int) {
	if n == 0 {
		return
	}
	m.conflicts.Add(ctx, int64(n))
}

func (m *syncMetrics) recordPulled(ctx context.Context, source string, n int) {
	if n == 0 {
		return
	}
	m.pulled.Add(ctx, int64(n), metric.WithAttributes(attribute.String("source", source)))
}
