package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/internal/domain/shared"
	"github.com/beatrank/ppcron/pkg/logger"
	"github.com/beatrank/ppcron/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH STATS COMMAND (RefreshStats)
// Folds one player's scores in one context into a fresh stats record.
// ══════════════════════════════════════════════════════════════════════════════

// RefreshStatsCommand identifies the player and context.
type RefreshStatsCommand struct {
	PlayerID string

	// Context of the stats. Zero means General.
	Context scoring.Context

	// Scores, when non-nil, are used instead of fetching them.
	Scores []scoring.StatScore

	// Percentiles, when set, are stored verbatim.
	Percentiles *scoring.Percentiles
}

// Validate validates the command.
func (c RefreshStatsCommand) Validate() error {
	if c.PlayerID == "" {
		return errors.New("refresh_stats: player_id must be provided")
	}
	if c.Context != scoring.ContextNone && !c.Context.IsValid() {
		return fmt.Errorf("refresh_stats: %w", shared.ErrInvalidContext)
	}
	return nil
}

func (c RefreshStatsCommand) context() scoring.Context {
	if c.Context == scoring.ContextNone {
		return scoring.ContextGeneral
	}
	return c.Context
}

// RefreshStatsResult carries the stored record.
type RefreshStatsResult struct {
	Stats    *scoring.PlayerScoreStats
	Attempts int
}

// RefreshStatsHandler handles RefreshStatsCommand.
type RefreshStatsHandler struct {
	scores  scoring.ScoreRepository
	players scoring.PlayerRepository
	retrier *retry.Retrier
	log     *slog.Logger
}

// NewRefreshStatsHandler creates a new handler.
func NewRefreshStatsHandler(
	scores scoring.ScoreRepository,
	players scoring.PlayerRepository,
	retryDelay time.Duration,
	log *slog.Logger,
) *RefreshStatsHandler {
	return &RefreshStatsHandler{
		scores:  scores,
		players: players,
		retrier: retry.BatchRetrier(retryDelay),
		log:     logger.OrDefault(log).With("command", "refresh_stats"),
	}
}

// Handle executes the command.
func (h *RefreshStatsHandler) Handle(ctx context.Context, cmd RefreshStatsCommand) (*RefreshStatsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	c := cmd.context()

	scores := cmd.Scores
	if scores == nil {
		var err error
		scores, err = h.scores.ListForStats(ctx, c, cmd.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("refresh_stats: failed to load scores: %w", err)
		}
	}

	states, err := h.players.StatsStates(ctx, c, []string{cmd.PlayerID})
	if err != nil {
		return nil, fmt.Errorf("refresh_stats: failed to load player state: %w", err)
	}

	stats := computeStats(cmd.PlayerID, c, scores, states[cmd.PlayerID], cmd.Percentiles)

	attempts, err := h.retrier.Do(ctx, func(ctx context.Context) error {
		return h.players.SaveStats(ctx, []*scoring.PlayerScoreStats{stats})
	})
	if err != nil {
		return nil, fmt.Errorf("refresh_stats: failed to save stats after %d attempts: %w", attempts, err)
	}

	h.log.Debug("player stats refreshed",
		logger.Player(cmd.PlayerID),
		logger.Context(c),
		"scores", stats.All.Count,
		"ranked", stats.Ranked.Count,
	)
	return &RefreshStatsResult{Stats: stats, Attempts: attempts}, nil
}

func computeStats(
	playerID string,
	c scoring.Context,
	scores []scoring.StatScore,
	state scoring.StatsState,
	percentiles *scoring.Percentiles,
) *scoring.PlayerScoreStats {
	return scoring.ComputeScoreStats(scoring.StatsInput{
		PlayerID:    playerID,
		Context:     c,
		Scores:      scores,
		CurrentRank: state.CurrentRank,
		PeakRank:    state.PeakRank,
		Percentiles: percentiles,
	})
}
