// Package jobs wraps the recomputation commands as scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/beatrank/ppcron/internal/application/command"
	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type ScoresRefresher interface {
	Handle(ctx context.Context, cmd command.RefreshScoresCommand) (*command.RefreshScoresResult, error)
}

type LeaderboardRanksRefresher interface {
	Handle(ctx context.Context, cmd command.RefreshLeaderboardRanksCommand) (*command.RefreshLeaderboardRanksResult, error)
}

type PlayersContextRefresher interface {
	Handle(ctx context.Context, cmd command.RefreshPlayersContextCommand) (*command.RefreshPlayersContextResult, error)
}

type RanksRefresher interface {
	Handle(ctx context.Context, cmd command.RefreshRanksCommand) (*command.RefreshRanksResult, error)
}

type AllContextsPpRefresher interface {
	Handle(ctx context.Context) (*command.RefreshAllContextsPpResult, error)
}

type PlayersStatsRefresher interface {
	Handle(ctx context.Context, cmd command.RefreshPlayersStatsCommand) (*command.RefreshPlayersStatsResult, error)
}

// Pipeline bundles the stage handlers in the order they must run.
type Pipeline struct {
	Scores           ScoresRefresher
	LeaderboardRanks LeaderboardRanksRefresher
	PlayersContext   PlayersContextRefresher
	Ranks            RanksRefresher
	AllContextsPp    AllContextsPpRefresher
	PlayersStats     PlayersStatsRefresher
}

// ══════════════════════════════════════════════════════════════════════════════
// STAGE JOB
// ══════════════════════════════════════════════════════════════════════════════

// RunStats describes the last run of a job.
type RunStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Summary     map[string]any
	Err         error
}

// stageFunc runs a stage and reports its counters.
type stageFunc func(ctx context.Context) (map[string]any, error)

// StageJob runs one pipeline stage.
type StageJob struct {
	name        string
	description string
	run         stageFunc
	log         *slog.Logger

	last atomic.Pointer[RunStats]
}

func newStageJob(name, description string, run stageFunc, log *slog.Logger) *StageJob {
	return &StageJob{
		name:        name,
		description: description,
		run:         run,
		log:         logger.OrDefault(log).With("job", name),
	}
}

// Name returns the job name.
func (j *StageJob) Name() string { return j.name }

// Description returns a human-readable description.
func (j *StageJob) Description() string { return j.description }

// Run executes the stage.
func (j *StageJob) Run(ctx context.Context) error {
	stats := &RunStats{StartedAt: time.Now()}
	j.log.Info("starting " + j.name + " job")

	summary, err := j.run(ctx)
	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	stats.Summary = summary
	stats.Err = err
	j.last.Store(stats)

	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	return nil
}

// Summary returns the counters of the last run.
func (j *StageJob) Summary() map[string]any {
	if stats := j.last.Load(); stats != nil {
		return stats.Summary
	}
	return nil
}

// LastRunStats returns statistics from the last run.
func (j *StageJob) LastRunStats() *RunStats {
	return j.last.Load()
}

// ══════════════════════════════════════════════════════════════════════════════
// STAGES
// ══════════════════════════════════════════════════════════════════════════════

const (
	JobRefreshScores           = "refresh_scores"
	JobRefreshLeaderboardRanks = "refresh_leaderboard_ranks"
	JobRefreshPlayersContext   = "refresh_players_context"
	JobRefreshRanks            = "refresh_ranks"
	JobRefreshAllContextsPp    = "refresh_all_contexts_pp"
	JobRefreshPlayersStats     = "refresh_players_stats"
	JobRecomputeAll            = "recompute_all"
)

// NewRefreshScoresJob normalizes scores of leaderboards in the given statuses.
func NewRefreshScoresJob(h ScoresRefresher, statuses []scoring.DifficultyStatus, log *slog.Logger) *StageJob {
	return newStageJob(JobRefreshScores,
		"Recomputes accuracy, PP and General ranks of scores",
		func(ctx context.Context) (map[string]any, error) {
			return refreshScores(ctx, h, statuses)
		}, log)
}

// NewRefreshLeaderboardRanksJob re-ranks every leaderboard in every context.
func NewRefreshLeaderboardRanksJob(h LeaderboardRanksRefresher, log *slog.Logger) *StageJob {
	return newStageJob(JobRefreshLeaderboardRanks,
		"Re-ranks scores on every leaderboard in every context",
		func(ctx context.Context) (map[string]any, error) {
			return refreshLeaderboardRanks(ctx, h)
		}, log)
}

// NewRefreshPlayersContextJob recomputes weights and weighted PP in every context.
func NewRefreshPlayersContextJob(h PlayersContextRefresher, log *slog.Logger) *StageJob {
	return newStageJob(JobRefreshPlayersContext,
		"Recomputes score weights and weighted player PP in every context",
		func(ctx context.Context) (map[string]any, error) {
			return refreshPlayersContext(ctx, h)
		}, log)
}

// NewRefreshRanksJob re-ranks players globally and per country in every context.
func NewRefreshRanksJob(h RanksRefresher, log *slog.Logger) *StageJob {
	return newStageJob(JobRefreshRanks,
		"Recomputes global and country ranks of players in every context",
		func(ctx context.Context) (map[string]any, error) {
			return refreshRanks(ctx, h)
		}, log)
}

// NewRefreshAllContextsPpJob recomputes the cross-context PP total.
func NewRefreshAllContextsPpJob(h AllContextsPpRefresher, log *slog.Logger) *StageJob {
	return newStageJob(JobRefreshAllContextsPp,
		"Recomputes the all-contexts PP total of players",
		func(ctx context.Context) (map[string]any, error) {
			return refreshAllContextsPp(ctx, h)
		}, log)
}

// NewRefreshPlayersStatsJob recomputes score statistics of every player.
func NewRefreshPlayersStatsJob(h PlayersStatsRefresher, log *slog.Logger) *StageJob {
	return newStageJob(JobRefreshPlayersStats,
		"Recomputes score statistics of every player in every context",
		func(ctx context.Context) (map[string]any, error) {
			return refreshPlayersStats(ctx, h)
		}, log)
}

func refreshScores(ctx context.Context, h ScoresRefresher, statuses []scoring.DifficultyStatus) (map[string]any, error) {
	res, err := h.Handle(ctx, command.RefreshScoresCommand{Statuses: statuses})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"run_id":           res.RunID,
		"leaderboards":     res.Leaderboards,
		"scores_processed": res.ScoresProcessed,
		"scores_changed":   res.ScoresChanged,
		"overflows":        res.Overflows,
		"rows_written":     res.Batches.RowsWritten,
		"batches_dropped":  res.Batches.BatchesDropped,
	}, nil
}

func refreshLeaderboardRanks(ctx context.Context, h LeaderboardRanksRefresher) (map[string]any, error) {
	res, err := h.Handle(ctx, command.RefreshLeaderboardRanksCommand{AllContexts: true})
	if err != nil {
		return nil, err
	}
	changed := 0
	for _, c := range res.Contexts {
		changed += c.RanksChanged
	}
	totals := res.Totals()
	return map[string]any{
		"run_id":          res.RunID,
		"contexts":        len(res.Contexts),
		"ranks_changed":   changed,
		"rows_written":    totals.RowsWritten,
		"batches_dropped": totals.BatchesDropped,
	}, nil
}

func refreshPlayersContext(ctx context.Context, h PlayersContextRefresher) (map[string]any, error) {
	res, err := h.Handle(ctx, command.RefreshPlayersContextCommand{AllContexts: true})
	if err != nil {
		return nil, err
	}
	var players, weights int
	var totals command.BatchSummary
	for _, c := range res.Contexts {
		players += c.Players
		weights += c.WeightsChanged
		totals.Merge(c.Batches)
	}
	return map[string]any{
		"run_id":          res.RunID,
		"players":         players,
		"weights_changed": weights,
		"rows_written":    totals.RowsWritten,
		"batches_dropped": totals.BatchesDropped,
	}, nil
}

func refreshRanks(ctx context.Context, h RanksRefresher) (map[string]any, error) {
	res, err := h.Handle(ctx, command.RefreshRanksCommand{AllContexts: true})
	if err != nil {
		return nil, err
	}
	var ranked, changed, published int
	var totals command.BatchSummary
	for _, c := range res.Contexts {
		ranked += c.Ranked
		changed += c.Changed
		if c.Published {
			published++
		}
		totals.Merge(c.Batches)
	}
	return map[string]any{
		"run_id":             res.RunID,
		"players_ranked":     ranked,
		"ranks_changed":      changed,
		"contexts_published": published,
		"rows_written":       totals.RowsWritten,
		"batches_dropped":    totals.BatchesDropped,
	}, nil
}

func refreshAllContextsPp(ctx context.Context, h AllContextsPpRefresher) (map[string]any, error) {
	res, err := h.Handle(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"run_id":          res.RunID,
		"players":         res.Players,
		"changed":         res.Changed,
		"rows_written":    res.Batches.RowsWritten,
		"batches_dropped": res.Batches.BatchesDropped,
	}, nil
}

func refreshPlayersStats(ctx context.Context, h PlayersStatsRefresher) (map[string]any, error) {
	res, err := h.Handle(ctx, command.RefreshPlayersStatsCommand{AllContexts: true})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"run_id":         res.RunID,
		"players":        res.Players,
		"chunks":         res.Chunks,
		"chunks_skipped": res.ChunksSkipped,
	}, nil
}
