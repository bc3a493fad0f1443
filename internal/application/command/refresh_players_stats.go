package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/internal/domain/shared"
	"github.com/beatrank/ppcron/pkg/logger"
	"github.com/beatrank/ppcron/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH PLAYERS STATS COMMAND
// Batch driver of RefreshStats: walks players in chunks, fetches their scores
// once per chunk and saves the records chunk by chunk.
// ══════════════════════════════════════════════════════════════════════════════

// RefreshPlayersStatsCommand selects the contexts to recompute.
type RefreshPlayersStatsCommand struct {
	// Context to recompute. Zero means General.
	Context scoring.Context

	// AllContexts recomputes every known context in turn.
	AllContexts bool
}

// Validate validates the command.
func (c RefreshPlayersStatsCommand) Validate() error {
	if c.AllContexts || c.Context == scoring.ContextNone || c.Context.IsValid() {
		return nil
	}
	return fmt.Errorf("refresh_players_stats: %w", shared.ErrInvalidContext)
}

func (c RefreshPlayersStatsCommand) contexts() []scoring.Context {
	if c.AllContexts {
		return scoring.AllContexts
	}
	if c.Context == scoring.ContextNone {
		return []scoring.Context{scoring.ContextGeneral}
	}
	return []scoring.Context{c.Context}
}

// RefreshPlayersStatsResult summarizes a run.
type RefreshPlayersStatsResult struct {
	RunID         string
	Players       int
	Chunks        int
	ChunksSkipped int
	Duration      time.Duration
}

// RefreshPlayersStatsHandler handles RefreshPlayersStatsCommand.
type RefreshPlayersStatsHandler struct {
	scores    scoring.ScoreRepository
	players   scoring.PlayerRepository
	retrier   *retry.Retrier
	metrics   MetricsRecorder
	chunkSize int
	log       *slog.Logger
}

// NewRefreshPlayersStatsHandler creates a new handler.
func NewRefreshPlayersStatsHandler(
	scores scoring.ScoreRepository,
	players scoring.PlayerRepository,
	m MetricsRecorder,
	chunkSize int,
	retryDelay time.Duration,
	log *slog.Logger,
) *RefreshPlayersStatsHandler {
	if chunkSize <= 0 {
		chunkSize = DefaultRefreshPlayersContextConfig().ChunkSize
	}
	return &RefreshPlayersStatsHandler{
		scores:    scores,
		players:   players,
		retrier:   retry.BatchRetrier(retryDelay),
		metrics:   metricsOrNoop(m),
		chunkSize: chunkSize,
		log:       logger.OrDefault(log).With("command", "refresh_players_stats"),
	}
}

// Handle executes the command.
func (h *RefreshPlayersStatsHandler) Handle(ctx context.Context, cmd RefreshPlayersStatsCommand) (*RefreshPlayersStatsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &RefreshPlayersStatsResult{RunID: uuid.NewString()}
	log := h.log.With("run_id", result.RunID)

	for _, c := range cmd.contexts() {
		if err := h.refreshContext(ctx, log.With(logger.Context(c)), c, result); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(start)
	log.Info("players stats refreshed",
		"players", result.Players,
		"chunks", result.Chunks,
		"chunks_skipped", result.ChunksSkipped,
		"duration", result.Duration,
	)
	return result, nil
}

func (h *RefreshPlayersStatsHandler) refreshContext(ctx context.Context, log *slog.Logger, c scoring.Context, result *RefreshPlayersStatsResult) error {
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := h.players.ListIDs(ctx, c, afterID, h.chunkSize)
		if err != nil {
			return fmt.Errorf("refresh_players_stats: failed to list players for %s: %w", c, err)
		}
		if len(ids) == 0 {
			return nil
		}
		afterID = ids[len(ids)-1]
		result.Chunks++

		if err := h.refreshChunk(ctx, c, ids); err != nil {
			result.ChunksSkipped++
			log.Error("stats chunk skipped", "last_id", afterID, logger.Err(err))
		} else {
			result.Players += len(ids)
		}

		if len(ids) < h.chunkSize {
			return nil
		}
	}
}

// refreshChunk computes and saves one chunk. A failed save is retried once;
// either way an error means the chunk is skipped.
func (h *RefreshPlayersStatsHandler) refreshChunk(ctx context.Context, c scoring.Context, ids []string) error {
	scores, err := h.scores.ListForStatsBatch(ctx, c, ids)
	if err != nil {
		return err
	}
	states, err := h.players.StatsStates(ctx, c, ids)
	if err != nil {
		return err
	}

	records := make([]*scoring.PlayerScoreStats, 0, len(ids))
	for _, id := range ids {
		records = append(records, computeStats(id, c, scores[id], states[id], nil))
	}

	attempts, err := h.retrier.Do(ctx, func(ctx context.Context) error {
		return h.players.SaveStats(ctx, records)
	})
	if err != nil {
		h.metrics.BatchDropped("player_score_stats")
		return fmt.Errorf("save failed after %d attempts: %w", attempts, err)
	}
	h.metrics.RowsWritten("player_score_stats", len(records))
	return nil
}
