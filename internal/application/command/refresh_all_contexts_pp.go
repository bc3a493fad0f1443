package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH ALL CONTEXTS PP COMMAND (RefreshAllContextsPp)
// AllContextsPp = General PP + PP of every other context except the joke one.
// ══════════════════════════════════════════════════════════════════════════════

// RefreshAllContextsPpResult summarizes a run.
type RefreshAllContextsPpResult struct {
	RunID    string
	Players  int
	Changed  int
	Batches  BatchSummary
	Duration time.Duration
}

// RefreshAllContextsPpHandler recomputes players.all_contexts_pp.
type RefreshAllContextsPpHandler struct {
	players   scoring.PlayerRepository
	flusher   *batchFlusher
	chunkSize int
	log       *slog.Logger
}

// NewRefreshAllContextsPpHandler creates a new handler.
func NewRefreshAllContextsPpHandler(
	players scoring.PlayerRepository,
	writer scoring.BatchWriter,
	m MetricsRecorder,
	chunkSize int,
	retryDelay time.Duration,
	log *slog.Logger,
) *RefreshAllContextsPpHandler {
	if chunkSize <= 0 {
		chunkSize = DefaultRefreshPlayersContextConfig().ChunkSize
	}
	log = logger.OrDefault(log).With("command", "refresh_all_contexts_pp")
	return &RefreshAllContextsPpHandler{
		players:   players,
		flusher:   newBatchFlusher(writer, retryDelay, m, log),
		chunkSize: chunkSize,
		log:       log,
	}
}

// Handle executes the command.
func (h *RefreshAllContextsPpHandler) Handle(ctx context.Context) (*RefreshAllContextsPpResult, error) {
	start := time.Now()
	result := &RefreshAllContextsPpResult{RunID: uuid.NewString()}

	totals, err := h.players.ListPpTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh_all_contexts_pp: failed to load totals: %w", err)
	}
	result.Players = len(totals)

	pending := newPendingBatch(scoring.TablePlayers, scoring.ColAllContextsPp)
	for _, t := range totals {
		pp := scoring.AllContextsPp(t)
		if pp == t.AllContextsPp {
			continue
		}
		result.Changed++
		pending.add(t.PlayerID, map[string]any{scoring.ColAllContextsPp: pp})
		if pending.len() >= h.chunkSize {
			result.Batches.Add(h.flusher.flush(ctx, pending))
		}
	}
	result.Batches.Add(h.flusher.flush(ctx, pending))
	result.Duration = time.Since(start)

	h.log.Info("all contexts pp refreshed",
		"run_id", result.RunID,
		"players", result.Players,
		"changed", result.Changed,
		"batches_dropped", result.Batches.BatchesDropped,
		"duration", result.Duration,
	)
	return result, nil
}
