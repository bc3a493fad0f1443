// Package command contains the write operations of the recomputation pipeline.
// Every handler reads a snapshot, recomputes derived fields in memory and
// persists only the changed columns through the batch writer.
package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/pkg/logger"
	"github.com/beatrank/ppcron/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// MetricsRecorder receives pipeline counters. *metrics.Manager implements it.
type MetricsRecorder interface {
	RowsWritten(table string, n int)
	BatchFailed(table string)
	BatchDropped(table string)
	ScoresNormalized(n int)
	AccuracyOverflow()
	OracleNaN()
	RowSkipped(stage string)
}

type noopMetrics struct{}

func (noopMetrics) RowsWritten(string, int) {}
func (noopMetrics) BatchFailed(string)      {}
func (noopMetrics) BatchDropped(string)     {}
func (noopMetrics) ScoresNormalized(int)    {}
func (noopMetrics) AccuracyOverflow()       {}
func (noopMetrics) OracleNaN()              {}
func (noopMetrics) RowSkipped(string)       {}

func metricsOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// BatchResult is the outcome of writing one batch.
type BatchResult struct {
	Table    string
	Rows     int
	Attempts int
	Dropped  bool
	Err      error
}

// BatchSummary folds batch results of a run.
type BatchSummary struct {
	Batches        int
	RowsWritten    int
	BatchesDropped int
	RowsDropped    int
}

// Add folds one result into the summary.
func (s *BatchSummary) Add(r BatchResult) {
	if r.Rows == 0 {
		return
	}
	s.Batches++
	if r.Dropped {
		s.BatchesDropped++
		s.RowsDropped += r.Rows
		return
	}
	s.RowsWritten += r.Rows
}

// Merge folds another summary into s.
func (s *BatchSummary) Merge(other BatchSummary) {
	s.Batches += other.Batches
	s.RowsWritten += other.RowsWritten
	s.BatchesDropped += other.BatchesDropped
	s.RowsDropped += other.RowsDropped
}

// ══════════════════════════════════════════════════════════════════════════════
// PENDING BATCH
// ══════════════════════════════════════════════════════════════════════════════

// pendingBatch accumulates row updates of one table and column set.
type pendingBatch struct {
	table   string
	columns []string
	rows    []scoring.RowUpdate
}

func newPendingBatch(table string, columns ...string) *pendingBatch {
	return &pendingBatch{table: table, columns: columns}
}

func (b *pendingBatch) add(key any, values map[string]any) {
	b.rows = append(b.rows, scoring.RowUpdate{Key: key, Values: values})
}

func (b *pendingBatch) len() int {
	return len(b.rows)
}

// take returns the pending rows and resets the batch.
func (b *pendingBatch) take() []scoring.RowUpdate {
	rows := b.rows
	b.rows = nil
	return rows
}

// ══════════════════════════════════════════════════════════════════════════════
// FLUSHER
// ══════════════════════════════════════════════════════════════════════════════

// batchFlusher writes batches with one retry. A batch that fails twice is
// dropped and logged; the caller moves on to its next unit of work.
type batchFlusher struct {
	writer  scoring.BatchWriter
	retrier *retry.Retrier
	metrics MetricsRecorder
	log     *slog.Logger
}

func newBatchFlusher(writer scoring.BatchWriter, retryDelay time.Duration, m MetricsRecorder, log *slog.Logger) *batchFlusher {
	log = logger.OrDefault(log)
	onRetry := retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		log.Warn("batch write failed, retrying", "attempt", attempt, "delay", delay.String(), logger.Err(err))
	})
	return &batchFlusher{
		writer:  writer,
		retrier: retry.BatchRetrier(retryDelay, onRetry),
		metrics: metricsOrNoop(m),
		log:     log,
	}
}

// flush writes and clears the pending batch.
func (f *batchFlusher) flush(ctx context.Context, b *pendingBatch) BatchResult {
	return f.write(ctx, b.table, b.columns, b.take())
}

func (f *batchFlusher) write(ctx context.Context, table string, columns []string, rows []scoring.RowUpdate) BatchResult {
	result := BatchResult{Table: table, Rows: len(rows)}
	if len(rows) == 0 {
		return result
	}

	attempts, err := f.retrier.Do(ctx, func(ctx context.Context) error {
		err := f.writer.UpdateColumns(ctx, table, columns, rows)
		if err != nil {
			f.metrics.BatchFailed(table)
		}
		return err
	})
	result.Attempts = attempts

	if err != nil {
		result.Dropped = true
		result.Err = err
		f.metrics.BatchDropped(table)
		f.log.Error("batch write failed, dropping batch",
			logger.Table(table),
			"rows", len(rows),
			"attempts", attempts,
			logger.Err(err),
		)
		return result
	}

	f.metrics.RowsWritten(table, len(rows))
	f.log.Debug("batch written", logger.Table(table), "rows", len(rows), "attempts", attempts)
	return result
}
