package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE ALL JOB
// ══════════════════════════════════════════════════════════════════════════════

// RecomputeAllJob runs every stage in dependency order: normalize, rank
// leaderboards, weight player PP, rank players, sum all-contexts PP, then
// stats. A failing stage stops the run since later stages read its output.
type RecomputeAllJob struct {
	pipeline Pipeline
	config   RecomputeAllConfig
	log      *slog.Logger

	last atomic.Pointer[RecomputeStats]
}

// RecomputeAllConfig contains configuration for the job.
type RecomputeAllConfig struct {
	// Statuses selects the leaderboards to normalize.
	Statuses []scoring.DifficultyStatus

	// SkipStats leaves player statistics to their own schedule.
	SkipStats bool
}

// StageStats describes one stage of a recompute run.
type StageStats struct {
	Name     string
	Duration time.Duration
	Summary  map[string]any
	Err      error
}

// RecomputeStats contains statistics from a recompute run.
type RecomputeStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Stages      []StageStats
}

// NewRecomputeAllJob creates a new recompute job.
func NewRecomputeAllJob(pipeline Pipeline, config RecomputeAllConfig, log *slog.Logger) *RecomputeAllJob {
	return &RecomputeAllJob{
		pipeline: pipeline,
		config:   config,
		log:      logger.OrDefault(log).With("job", JobRecomputeAll),
	}
}

// Name returns the job name.
func (j *RecomputeAllJob) Name() string {
	return JobRecomputeAll
}

// Description returns a human-readable description.
func (j *RecomputeAllJob) Description() string {
	return "Runs the whole recomputation pipeline in order"
}

type stage struct {
	name string
	run  stageFunc
}

func (j *RecomputeAllJob) stages() []stage {
	p := j.pipeline
	stages := []stage{
		{JobRefreshScores, func(ctx context.Context) (map[string]any, error) {
			return refreshScores(ctx, p.Scores, j.config.Statuses)
		}},
		{JobRefreshLeaderboardRanks, func(ctx context.Context) (map[string]any, error) {
			return refreshLeaderboardRanks(ctx, p.LeaderboardRanks)
		}},
		{JobRefreshPlayersContext, func(ctx context.Context) (map[string]any, error) {
			return refreshPlayersContext(ctx, p.PlayersContext)
		}},
		{JobRefreshRanks, func(ctx context.Context) (map[string]any, error) {
			return refreshRanks(ctx, p.Ranks)
		}},
		{JobRefreshAllContextsPp, func(ctx context.Context) (map[string]any, error) {
			return refreshAllContextsPp(ctx, p.AllContextsPp)
		}},
	}
	if !j.config.SkipStats {
		stages = append(stages, stage{JobRefreshPlayersStats, func(ctx context.Context) (map[string]any, error) {
			return refreshPlayersStats(ctx, p.PlayersStats)
		}})
	}
	return stages
}

// Run executes every stage.
func (j *RecomputeAllJob) Run(ctx context.Context) error {
	stats := &RecomputeStats{StartedAt: time.Now()}
	defer func() {
		stats.CompletedAt = time.Now()
		stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
		j.last.Store(stats)
	}()

	j.log.Info("starting recompute_all job")

	for _, s := range j.stages() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("recompute_all: cancelled before %s: %w", s.name, err)
		}

		start := time.Now()
		summary, err := s.run(ctx)
		stats.Stages = append(stats.Stages, StageStats{
			Name:     s.name,
			Duration: time.Since(start),
			Summary:  summary,
			Err:      err,
		})
		if err != nil {
			j.log.Error("stage failed", "stage", s.name, logger.Err(err))
			return fmt.Errorf("recompute_all: %s: %w", s.name, err)
		}
		j.log.Info("stage completed", "stage", s.name, "duration", time.Since(start).String())
	}
	return nil
}

// Summary returns the per-stage counters of the last run.
func (j *RecomputeAllJob) Summary() map[string]any {
	stats := j.last.Load()
	if stats == nil {
		return nil
	}
	summary := make(map[string]any, len(stats.Stages))
	for _, s := range stats.Stages {
		summary[s.Name] = s.Summary
	}
	return summary
}

// LastRunStats returns statistics from the last run.
func (j *RecomputeAllJob) LastRunStats() *RecomputeStats {
	return j.last.Load()
}
