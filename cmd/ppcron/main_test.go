package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatrank/ppcron/config"
	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/internal/infrastructure/scheduler"
	"github.com/beatrank/ppcron/pkg/logger"
)

func TestParseStatuses(t *testing.T) {
	statuses, err := parseStatuses([]string{"ranked", "qualified"})
	require.NoError(t, err)
	assert.Equal(t, []scoring.DifficultyStatus{scoring.StatusRanked, scoring.StatusQualified}, statuses)

	_, err = parseStatuses([]string{"bogus"})
	assert.Error(t, err)
}

func TestRegisterJobs(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.RefreshPlayersStats = ""
	a := &app{cfg: cfg, log: logger.Nop()}
	sched := scheduler.New(scheduler.Config{Logger: logger.Nop(), DefaultTimeout: time.Minute})

	require.NoError(t, registerJobs(sched, a))

	infos := sched.ListJobs()
	require.Len(t, infos, 7)
	byName := map[string]scheduler.JobInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.True(t, byName["refresh_scores"].Enabled)
	assert.Equal(t, "*/30 * * * *", byName["refresh_scores"].Schedule)
	assert.False(t, byName["refresh_players_stats"].Enabled)
	assert.False(t, byName["recompute_all"].Enabled)
}

func TestRegisterJobs_BadSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.RefreshRanks = "every tuesday"
	a := &app{cfg: cfg, log: logger.Nop()}

	err := registerJobs(scheduler.New(scheduler.Config{Logger: logger.Nop()}), a)
	assert.ErrorIs(t, err, scheduler.ErrInvalidSchedule)
}

func TestCLI_Commands(t *testing.T) {
	cliApp := newCLI()
	for _, name := range []string{
		"run", "migrate", "refresh-scores", "refresh-leaderboard-ranks", "refresh-players-context",
		"refresh-ranks", "refresh-all-contexts-pp", "refresh-stats", "recompute-all",
	} {
		assert.NotNil(t, cliApp.Command(name), name)
	}
}
