package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/internal/domain/shared"
	"github.com/beatrank/ppcron/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH LEADERBOARD RANKS COMMAND
// (RefreshLeaderboardsRank / RefreshLeaderboardsRankAllContexts)
// Re-ranks every leaderboard page by page, in one context or in all of them.
// ══════════════════════════════════════════════════════════════════════════════

// RefreshLeaderboardRanksCommand selects what to re-rank.
type RefreshLeaderboardRanksCommand struct {
	// LeaderboardID restricts the run to one leaderboard.
	LeaderboardID string

	// Context to rank in. Zero means General.
	Context scoring.Context

	// AllContexts ranks every known context; Context is ignored.
	AllContexts bool
}

// Validate validates the command.
func (c RefreshLeaderboardRanksCommand) Validate() error {
	if c.AllContexts || c.Context == scoring.ContextNone {
		return nil
	}
	if !c.Context.IsValid() {
		return fmt.Errorf("refresh_leaderboard_ranks: %w", shared.ErrInvalidContext)
	}
	return nil
}

// contexts returns the contexts the command covers.
func (c RefreshLeaderboardRanksCommand) contexts() []scoring.Context {
	if c.AllContexts {
		return scoring.AllContexts
	}
	if c.Context == scoring.ContextNone {
		return []scoring.Context{scoring.ContextGeneral}
	}
	return []scoring.Context{c.Context}
}

// ContextRankResult summarizes one context.
type ContextRankResult struct {
	Context       scoring.Context
	Pages         int
	PagesSkipped  int
	Leaderboards  int
	RowsRanked    int
	RanksChanged  int
	PlaysChanged  int
	Batches       BatchSummary
	PagesDropped  int
	Duration      time.Duration
}

// RefreshLeaderboardRanksResult summarizes a run.
type RefreshLeaderboardRanksResult struct {
	RunID    string
	Contexts []ContextRankResult
	Duration time.Duration
}

// Totals folds the per-context batch summaries.
func (r *RefreshLeaderboardRanksResult) Totals() BatchSummary {
	var total BatchSummary
	for _, c := range r.Contexts {
		total.Merge(c.Batches)
	}
	return total
}

// RefreshLeaderboardRanksConfig tunes the handler.
type RefreshLeaderboardRanksConfig struct {
	// PageSize is how many leaderboards are ranked per page.
	PageSize int
	// Parallelism bounds how many contexts are ranked at once.
	Parallelism int
	// RetryDelay is the pause before retrying a failed batch.
	RetryDelay time.Duration
}

// DefaultRefreshLeaderboardRanksConfig returns default configuration.
func DefaultRefreshLeaderboardRanksConfig() RefreshLeaderboardRanksConfig {
	return RefreshLeaderboardRanksConfig{
		PageSize:    1000,
		Parallelism: 2,
		RetryDelay:  time.Second,
	}
}

// RefreshLeaderboardRanksHandler handles RefreshLeaderboardRanksCommand.
type RefreshLeaderboardRanksHandler struct {
	leaderboards scoring.LeaderboardRepository
	scores       scoring.ScoreRepository
	flusher      *batchFlusher
	config       RefreshLeaderboardRanksConfig
	log          *slog.Logger
}

// NewRefreshLeaderboardRanksHandler creates a new handler.
func NewRefreshLeaderboardRanksHandler(
	leaderboards scoring.LeaderboardRepository,
	scores scoring.ScoreRepository,
	writer scoring.BatchWriter,
	m MetricsRecorder,
	config RefreshLeaderboardRanksConfig,
	log *slog.Logger,
) *RefreshLeaderboardRanksHandler {
	defaults := DefaultRefreshLeaderboardRanksConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 1
	}

	log = logger.OrDefault(log).With("command", "refresh_leaderboard_ranks")
	return &RefreshLeaderboardRanksHandler{
		leaderboards: leaderboards,
		scores:       scores,
		flusher:      newBatchFlusher(writer, config.RetryDelay, m, log),
		config:       config,
		log:          log,
	}
}

// Handle executes the command. Contexts write disjoint rows and run
// concurrently up to the configured parallelism.
func (h *RefreshLeaderboardRanksHandler) Handle(ctx context.Context, cmd RefreshLeaderboardRanksCommand) (*RefreshLeaderboardRanksResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &RefreshLeaderboardRanksResult{RunID: uuid.NewString()}
	log := h.log.With("run_id", result.RunID)

	contexts := cmd.contexts()
	perContext := make([]ContextRankResult, len(contexts))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Parallelism)
	for i, c := range contexts {
		g.Go(func() error {
			res, err := h.rankContext(gctx, log.With(logger.Context(c)), cmd.LeaderboardID, c)
			if err != nil {
				return err
			}
			mu.Lock()
			perContext[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Contexts = perContext
	result.Duration = time.Since(start)
	return result, nil
}

func (h *RefreshLeaderboardRanksHandler) rankContext(
	ctx context.Context,
	log *slog.Logger,
	leaderboardID string,
	c scoring.Context,
) (ContextRankResult, error) {
	start := time.Now()
	res := ContextRankResult{Context: c}
	tables := scoring.TablesFor(c)

	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		lbs, err := h.leaderboards.List(ctx, scoring.LeaderboardFilter{
			ID:      leaderboardID,
			AfterID: afterID,
			Limit:   h.config.PageSize,
		})
		if err != nil {
			return res, fmt.Errorf("refresh_leaderboard_ranks: failed to list leaderboards: %w", err)
		}
		if len(lbs) == 0 {
			break
		}
		res.Pages++
		afterID = lbs[len(lbs)-1].ID

		ranks := newPendingBatch(tables.Scores, scoring.ColRank)
		plays := newPendingBatch(scoring.TableLeaderboards, scoring.ColPlays)
		if err := h.rankPage(ctx, c, lbs, ranks, plays, &res); err != nil {
			res.PagesSkipped++
			log.Error("failed to load rank candidates, skipping page", "last_id", afterID, logger.Err(err))
		} else if r := h.flusher.flush(ctx, ranks); r.Dropped {
			res.Batches.Add(r)
			res.PagesDropped++
		} else {
			res.Batches.Add(r)
			res.Batches.Add(h.flusher.flush(ctx, plays))
		}

		if leaderboardID != "" || len(lbs) < h.config.PageSize {
			break
		}
	}

	res.Duration = time.Since(start)
	log.Info("leaderboard ranks refreshed",
		"pages", res.Pages,
		"leaderboards", res.Leaderboards,
		"rows", res.RowsRanked,
		"changed", res.RanksChanged,
		"pages_dropped", res.PagesDropped,
		"duration", res.Duration,
	)
	return res, nil
}

func (h *RefreshLeaderboardRanksHandler) rankPage(
	ctx context.Context,
	c scoring.Context,
	lbs []*scoring.Leaderboard,
	ranks, plays *pendingBatch,
	res *ContextRankResult,
) error {
	ids := make([]string, len(lbs))
	for i, lb := range lbs {
		ids[i] = lb.ID
	}

	candidates, err := h.scores.ListRankCandidates(ctx, c, ids)
	if err != nil {
		return err
	}

	for _, lb := range lbs {
		rows := candidates[lb.ID]
		res.Leaderboards++
		res.RowsRanked += len(rows)

		scoring.AssignRanks(rows, lb.Status.HasPp(), scoring.CandidateRankKey, func(row *scoring.RankCandidate, rank int) {
			if row.Rank != rank {
				row.Rank = rank
				res.RanksChanged++
				ranks.add(row.ID, map[string]any{scoring.ColRank: rank})
			}
		})

		if c.IsGeneral() && lb.Plays != len(rows) {
			lb.Plays = len(rows)
			res.PlaysChanged++
			plays.add(lb.ID, map[string]any{scoring.ColPlays: lb.Plays})
		}
	}
	return nil
}
