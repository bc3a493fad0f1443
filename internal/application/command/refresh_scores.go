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
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH SCORES COMMAND (BulkRefreshScores)
// Recomputes modified score, accuracy, priority and PP of every score on the
// selected leaderboards, then re-ranks them in the General context.
// ══════════════════════════════════════════════════════════════════════════════

// RefreshScoresCommand selects the leaderboards to normalize.
type RefreshScoresCommand struct {
	// LeaderboardID restricts the run to one leaderboard.
	LeaderboardID string

	// Statuses selects leaderboards by status when LeaderboardID is empty.
	// Empty means the handler default (qualified).
	Statuses []scoring.DifficultyStatus
}

// Validate validates the command.
func (c RefreshScoresCommand) Validate() error {
	for _, s := range c.Statuses {
		if s < scoring.StatusUnranked || s > scoring.StatusInEvent {
			return fmt.Errorf("refresh_scores: %w", shared.ErrInvalidStatus)
		}
	}
	return nil
}

// RefreshScoresResult summarizes a run.
type RefreshScoresResult struct {
	RunID string

	Leaderboards        int
	LeaderboardsSkipped int

	ScoresProcessed int
	ScoresChanged   int

	// Corrected counts scores recomputed with the note-count max score.
	Corrected int
	// Overflows counts scores whose accuracy stayed above 1.
	Overflows int
	// Skipped counts scores left untouched because of inconsistent data.
	Skipped int

	Batches  BatchSummary
	Duration time.Duration
}

// RefreshScoresConfig tunes the handler.
type RefreshScoresConfig struct {
	// FlushThreshold flushes pending rows once exceeded.
	FlushThreshold int
	// PageSize is how many leaderboards are listed per query.
	PageSize int
	// DefaultStatuses applies when the command names none.
	DefaultStatuses []scoring.DifficultyStatus
	// RetryDelay is the pause before retrying a failed batch.
	RetryDelay time.Duration
}

// DefaultRefreshScoresConfig returns default configuration.
func DefaultRefreshScoresConfig() RefreshScoresConfig {
	return RefreshScoresConfig{
		FlushThreshold:  100000,
		PageSize:        1000,
		DefaultStatuses: []scoring.DifficultyStatus{scoring.StatusQualified},
		RetryDelay:      time.Second,
	}
}

// RefreshScoresHandler handles RefreshScoresCommand.
type RefreshScoresHandler struct {
	leaderboards scoring.LeaderboardRepository
	scores       scoring.ScoreRepository
	normalizer   *scoring.Normalizer
	flusher      *batchFlusher
	metrics      MetricsRecorder
	config       RefreshScoresConfig
	log          *slog.Logger
}

// NewRefreshScoresHandler creates a new handler.
func NewRefreshScoresHandler(
	leaderboards scoring.LeaderboardRepository,
	scores scoring.ScoreRepository,
	oracle scoring.RatingOracle,
	writer scoring.BatchWriter,
	m MetricsRecorder,
	config RefreshScoresConfig,
	log *slog.Logger,
) *RefreshScoresHandler {
	defaults := DefaultRefreshScoresConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.FlushThreshold <= 0 {
		config.FlushThreshold = defaults.FlushThreshold
	}
	if len(config.DefaultStatuses) == 0 {
		config.DefaultStatuses = defaults.DefaultStatuses
	}

	log = logger.OrDefault(log).With("command", "refresh_scores")
	return &RefreshScoresHandler{
		leaderboards: leaderboards,
		scores:       scores,
		normalizer:   scoring.NewNormalizer(oracle),
		flusher:      newBatchFlusher(writer, config.RetryDelay, m, log),
		metrics:      metricsOrNoop(m),
		config:       config,
		log:          log,
	}
}

// Handle executes the command.
func (h *RefreshScoresHandler) Handle(ctx context.Context, cmd RefreshScoresCommand) (*RefreshScoresResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &RefreshScoresResult{RunID: uuid.NewString()}
	log := h.log.With("run_id", result.RunID)

	pending := newPendingBatch(scoring.TableScores, scoring.NormalizedScoreColumns...)

	err := h.eachLeaderboard(ctx, cmd, func(lb *scoring.Leaderboard) {
		h.refreshLeaderboard(ctx, log, lb, pending, result)
		if pending.len() > h.config.FlushThreshold {
			result.Batches.Add(h.flusher.flush(ctx, pending))
		}
	})
	if err != nil {
		return nil, err
	}

	result.Batches.Add(h.flusher.flush(ctx, pending))
	result.Duration = time.Since(start)
	h.metrics.ScoresNormalized(result.ScoresProcessed)

	log.Info("scores refreshed",
		"leaderboards", result.Leaderboards,
		"scores", result.ScoresProcessed,
		"changed", result.ScoresChanged,
		"overflows", result.Overflows,
		"rows_written", result.Batches.RowsWritten,
		"batches_dropped", result.Batches.BatchesDropped,
		"duration", result.Duration,
	)
	return result, nil
}

// eachLeaderboard pages through the selected leaderboards.
func (h *RefreshScoresHandler) eachLeaderboard(ctx context.Context, cmd RefreshScoresCommand, fn func(*scoring.Leaderboard)) error {
	if cmd.LeaderboardID != "" {
		lbs, err := h.leaderboards.List(ctx, scoring.LeaderboardFilter{ID: cmd.LeaderboardID, Limit: 1})
		if err != nil {
			return fmt.Errorf("refresh_scores: failed to load leaderboard: %w", err)
		}
		if len(lbs) == 0 {
			return fmt.Errorf("refresh_scores: %s: %w", cmd.LeaderboardID, shared.ErrLeaderboardNotFound)
		}
		fn(lbs[0])
		return nil
	}

	statuses := cmd.Statuses
	if len(statuses) == 0 {
		statuses = h.config.DefaultStatuses
	}

	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		lbs, err := h.leaderboards.List(ctx, scoring.LeaderboardFilter{
			Statuses: statuses,
			AfterID:  afterID,
			Limit:    h.config.PageSize,
		})
		if err != nil {
			return fmt.Errorf("refresh_scores: failed to list leaderboards: %w", err)
		}
		for _, lb := range lbs {
			fn(lb)
		}
		if len(lbs) < h.config.PageSize {
			return nil
		}
		afterID = lbs[len(lbs)-1].ID
	}
}

func (h *RefreshScoresHandler) refreshLeaderboard(
	ctx context.Context,
	log *slog.Logger,
	lb *scoring.Leaderboard,
	pending *pendingBatch,
	result *RefreshScoresResult,
) {
	scores, err := h.scores.ListForRefresh(ctx, lb.ID)
	if err != nil {
		result.LeaderboardsSkipped++
		log.Error("failed to load scores, skipping leaderboard", logger.Leaderboard(lb.ID), logger.Err(err))
		return
	}
	result.Leaderboards++
	scores = generalScores(scores)

	before := make(map[int64]scoring.ScoreDerived, len(scores))
	for _, s := range scores {
		before[s.ID] = s.Derived()

		out, err := h.normalizer.Normalize(lb, s)
		if err != nil {
			result.Skipped++
			h.metrics.RowSkipped("normalize")
			log.Warn("score not normalized", logger.Leaderboard(lb.ID), "score_id", s.ID, logger.Err(err))
			continue
		}
		if out.Corrected {
			result.Corrected++
		}
		if out.Overflow {
			result.Overflows++
			h.metrics.AccuracyOverflow()
			log.Warn("accuracy above 1 after max score correction",
				logger.Leaderboard(lb.ID),
				"score_id", s.ID,
				"base_score", s.BaseScore,
				"notes", lb.Notes,
				"accuracy", s.Accuracy,
			)
		}
		if out.NaN {
			h.metrics.OracleNaN()
			log.Debug("rating oracle returned NaN", logger.Leaderboard(lb.ID), "score_id", s.ID)
		}
	}

	scoring.AssignRanks(scores, lb.Status.HasPp(), scoring.ScoreRankKey, func(s *scoring.Score, rank int) {
		s.Rank = rank
	})

	for _, s := range scores {
		result.ScoresProcessed++
		if s.Derived() == before[s.ID] {
			continue
		}
		result.ScoresChanged++
		pending.add(s.ID, normalizedValues(s))
	}
}

// generalScores keeps the scores valid in the General context. Only those
// hold a General rank.
func generalScores(scores []*scoring.Score) []*scoring.Score {
	kept := scores[:0]
	for _, s := range scores {
		if s.ValidContexts.Has(scoring.ContextGeneral) {
			kept = append(kept, s)
		}
	}
	return kept
}

func normalizedValues(s *scoring.Score) map[string]any {
	return map[string]any{
		scoring.ColRank:          s.Rank,
		scoring.ColModifiedScore: s.ModifiedScore,
		scoring.ColAccuracy:      s.Accuracy,
		scoring.ColPp:            s.Pp,
		scoring.ColFcPp:          s.FcPp,
		scoring.ColBonusPp:       s.BonusPp,
		scoring.ColPassPP:        s.PassPP,
		scoring.ColAccPP:         s.AccPP,
		scoring.ColTechPP:        s.TechPP,
		scoring.ColQualification: s.Qualification,
		scoring.ColPriority:      s.Priority,
	}
}
