package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/internal/domain/shared"
	"github.com/beatrank/ppcron/pkg/logger"
)

func newScoresHandler(lbs *fakeLeaderboards, scores *fakeScores, w *recordingWriter, m MetricsRecorder) *RefreshScoresHandler {
	return NewRefreshScoresHandler(lbs, scores, linearOracle, w, m, RefreshScoresConfig{PageSize: 2}, logger.Nop())
}

// inGeneral marks fixtures as valid in the General context.
func inGeneral(scores []*scoring.Score) []*scoring.Score {
	for _, s := range scores {
		s.ValidContexts |= scoring.ContextGeneral
	}
	return scores
}

func TestRefreshScores_NormalizesAndRanks(t *testing.T) {
	lbs := &fakeLeaderboards{items: []*scoring.Leaderboard{
		{ID: "lb1", Status: scoring.StatusRanked, MaxScore: 1000},
	}}
	scores := newFakeScores()
	scores.byLeaderboard["lb1"] = inGeneral([]*scoring.Score{
		{ID: 1, LeaderboardID: "lb1", BaseScore: 900, Timepost: 300},
		{ID: 2, LeaderboardID: "lb1", BaseScore: 950, Timepost: 200},
		{ID: 3, LeaderboardID: "lb1", BaseScore: 900, Timepost: 100},
	})
	w := newRecordingWriter()

	res, err := newScoresHandler(lbs, scores, w, nil).Handle(context.Background(), RefreshScoresCommand{
		Statuses: []scoring.DifficultyStatus{scoring.StatusRanked},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Leaderboards)
	assert.Equal(t, 3, res.ScoresProcessed)
	assert.Equal(t, 3, res.ScoresChanged)
	assert.Equal(t, 3, res.Batches.RowsWritten)

	ranks := w.values(scoring.TableScores, scoring.ColRank)
	assert.Equal(t, 1, ranks[int64(2)])
	assert.Equal(t, 2, ranks[int64(3)], "equal pp and accuracy: earlier submission ranks higher")
	assert.Equal(t, 3, ranks[int64(1)])

	acc := w.values(scoring.TableScores, scoring.ColAccuracy)
	assert.InDelta(t, 0.95, acc[int64(2)], 1e-9)
	assert.Equal(t, 950, w.values(scoring.TableScores, scoring.ColModifiedScore)[int64(2)])
	assert.InDelta(t, 95.0, w.values(scoring.TableScores, scoring.ColPp)[int64(2)], 1e-9)
}

func TestRefreshScores_UnchangedScoreNotWritten(t *testing.T) {
	lbs := &fakeLeaderboards{items: []*scoring.Leaderboard{
		{ID: "lb1", Status: scoring.StatusRanked, MaxScore: 1000},
	}}
	scores := newFakeScores()
	scores.byLeaderboard["lb1"] = inGeneral([]*scoring.Score{{
		ID: 1, LeaderboardID: "lb1", BaseScore: 500,
		ModifiedScore: 500, Accuracy: 0.5, Pp: 50, AccPP: 25, Rank: 1,
	}})
	w := newRecordingWriter()

	res, err := newScoresHandler(lbs, scores, w, nil).Handle(context.Background(), RefreshScoresCommand{LeaderboardID: "lb1"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ScoresProcessed)
	assert.Zero(t, res.ScoresChanged)
	assert.Empty(t, w.calls)
}

func TestRefreshScores_UnrankedZeroesPp(t *testing.T) {
	lbs := &fakeLeaderboards{items: []*scoring.Leaderboard{
		{ID: "lb1", Status: scoring.StatusUnranked, MaxScore: 1000},
	}}
	scores := newFakeScores()
	scores.byLeaderboard["lb1"] = inGeneral([]*scoring.Score{
		{ID: 1, BaseScore: 800, Pp: 120, PassPP: 10, Modifiers: "NF"},
		{ID: 2, BaseScore: 700, Pp: 80},
	})
	w := newRecordingWriter()

	_, err := newScoresHandler(lbs, scores, w, nil).Handle(context.Background(), RefreshScoresCommand{LeaderboardID: "lb1"})
	require.NoError(t, err)

	pp := w.values(scoring.TableScores, scoring.ColPp)
	assert.Equal(t, 0.0, pp[int64(1)])
	assert.Equal(t, 0.0, pp[int64(2)])

	// NF carries the lowest priority, so it ranks below the plain score.
	ranks := w.values(scoring.TableScores, scoring.ColRank)
	assert.Equal(t, 1, ranks[int64(2)])
	assert.Equal(t, 2, ranks[int64(1)])
	assert.Equal(t, 3, w.values(scoring.TableScores, scoring.ColPriority)[int64(1)])
}

func TestRefreshScores_OverflowIsKeptAndCounted(t *testing.T) {
	lbs := &fakeLeaderboards{items: []*scoring.Leaderboard{
		{ID: "lb1", Status: scoring.StatusRanked, MaxScore: 100, Notes: 1},
	}}
	scores := newFakeScores()
	scores.byLeaderboard["lb1"] = inGeneral([]*scoring.Score{{ID: 1, BaseScore: 1000}})
	w := newRecordingWriter()
	m := &countingMetrics{}

	res, err := newScoresHandler(lbs, scores, w, m).Handle(context.Background(), RefreshScoresCommand{LeaderboardID: "lb1"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Corrected)
	assert.Equal(t, 1, res.Overflows)
	assert.Equal(t, 1, m.overflows)
	assert.InDelta(t, 1000.0/115.0, w.values(scoring.TableScores, scoring.ColAccuracy)[int64(1)], 1e-9)
}

func TestRefreshScores_SkipsLeaderboardWithoutMaxScore(t *testing.T) {
	lbs := &fakeLeaderboards{items: []*scoring.Leaderboard{
		{ID: "lb1", Status: scoring.StatusRanked},
	}}
	scores := newFakeScores()
	scores.byLeaderboard["lb1"] = inGeneral([]*scoring.Score{{ID: 1, BaseScore: 1000, Rank: 1}})
	w := newRecordingWriter()

	res, err := newScoresHandler(lbs, scores, w, nil).Handle(context.Background(), RefreshScoresCommand{LeaderboardID: "lb1"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.ScoresChanged)
	assert.Empty(t, w.calls)
}

func TestRefreshScores_UnknownLeaderboard(t *testing.T) {
	_, err := newScoresHandler(&fakeLeaderboards{}, newFakeScores(), newRecordingWriter(), nil).
		Handle(context.Background(), RefreshScoresCommand{LeaderboardID: "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrLeaderboardNotFound)
}

func TestRefreshScores_DefaultsToQualified(t *testing.T) {
	lbs := &fakeLeaderboards{items: []*scoring.Leaderboard{
		{ID: "a", Status: scoring.StatusRanked, MaxScore: 1000},
		{ID: "b", Status: scoring.StatusQualified, MaxScore: 1000},
		{ID: "c", Status: scoring.StatusQualified, MaxScore: 1000},
		{ID: "d", Status: scoring.StatusQualified, MaxScore: 1000},
	}}
	scores := newFakeScores()
	for i, id := range []string{"a", "b", "c", "d"} {
		scores.byLeaderboard[id] = inGeneral([]*scoring.Score{{ID: int64(i + 1), BaseScore: 900}})
	}
	w := newRecordingWriter()

	res, err := newScoresHandler(lbs, scores, w, nil).Handle(context.Background(), RefreshScoresCommand{})
	require.NoError(t, err)

	// Three qualified leaderboards over two pages.
	assert.Equal(t, 3, res.Leaderboards)
	assert.Equal(t, 3, res.ScoresChanged)
	qualification := w.values(scoring.TableScores, scoring.ColQualification)
	for _, q := range qualification {
		assert.Equal(t, true, q)
	}
}

func TestRefreshScores_ReadFailureSkipsLeaderboard(t *testing.T) {
	lbs := &fakeLeaderboards{items: []*scoring.Leaderboard{
		{ID: "a", Status: scoring.StatusRanked, MaxScore: 1000},
		{ID: "b", Status: scoring.StatusRanked, MaxScore: 1000},
	}}
	scores := newFakeScores()
	scores.failLeaderboards["a"] = true
	scores.byLeaderboard["b"] = inGeneral([]*scoring.Score{{ID: 7, BaseScore: 900}})
	w := newRecordingWriter()

	res, err := newScoresHandler(lbs, scores, w, nil).Handle(context.Background(), RefreshScoresCommand{
		Statuses: []scoring.DifficultyStatus{scoring.StatusRanked},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.LeaderboardsSkipped)
	assert.Equal(t, 1, res.Leaderboards)
	assert.Contains(t, w.values(scoring.TableScores, scoring.ColRank), any(int64(7)))
}

func TestRefreshScores_BatchRetriedOnce(t *testing.T) {
	lbs := &fakeLeaderboards{items: []*scoring.Leaderboard{
		{ID: "lb1", Status: scoring.StatusRanked, MaxScore: 1000},
	}}
	scores := newFakeScores()
	scores.byLeaderboard["lb1"] = inGeneral([]*scoring.Score{{ID: 1, BaseScore: 900}})

	t.Run("second attempt succeeds", func(t *testing.T) {
		w := newRecordingWriter()
		w.failNext(scoring.TableScores, 1)

		res, err := newScoresHandler(lbs, scores, w, nil).Handle(context.Background(), RefreshScoresCommand{LeaderboardID: "lb1"})
		require.NoError(t, err)

		assert.Len(t, w.calls, 2)
		assert.Equal(t, 1, res.Batches.RowsWritten)
		assert.Zero(t, res.Batches.BatchesDropped)
	})

	t.Run("second failure drops the batch", func(t *testing.T) {
		w := newRecordingWriter()
		w.failNext(scoring.TableScores, 2)
		m := &countingMetrics{}

		res, err := newScoresHandler(lbs, scores, w, m).Handle(context.Background(), RefreshScoresCommand{LeaderboardID: "lb1"})
		require.NoError(t, err)

		assert.Len(t, w.calls, 2)
		assert.Equal(t, 1, res.Batches.BatchesDropped)
		assert.Equal(t, 1, res.Batches.RowsDropped)
		assert.Equal(t, 1, m.dropped[scoring.TableScores])
	})
}

func TestRefreshScoresCommand_Validate(t *testing.T) {
	assert.NoError(t, RefreshScoresCommand{}.Validate())
	assert.Error(t, RefreshScoresCommand{Statuses: []scoring.DifficultyStatus{42}}.Validate())
}

func TestRefreshScores_IgnoresScoresOutsideGeneral(t *testing.T) {
	lbs := &fakeLeaderboards{items: []*scoring.Leaderboard{
		{ID: "lb1", Status: scoring.StatusRanked, MaxScore: 1000},
	}}
	scores := newFakeScores()
	scores.byLeaderboard["lb1"] = []*scoring.Score{
		{ID: 1, BaseScore: 900, ValidContexts: scoring.ContextGeneral | scoring.ContextNoMods},
		{ID: 2, BaseScore: 950, ValidContexts: scoring.ContextNoMods, Rank: 1},
	}
	w := newRecordingWriter()

	res, err := newScoresHandler(lbs, scores, w, nil).Handle(context.Background(), RefreshScoresCommand{LeaderboardID: "lb1"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ScoresProcessed)
	ranks := w.values(scoring.TableScores, scoring.ColRank)
	assert.Equal(t, map[any]any{int64(1): 1}, ranks)
}

func TestRefreshScores_FlushesMidRun(t *testing.T) {
	lbs := &fakeLeaderboards{}
	scores := newFakeScores()
	for i, id := range []string{"a", "b", "c"} {
		lbs.items = append(lbs.items, &scoring.Leaderboard{ID: id, Status: scoring.StatusRanked, MaxScore: 1000})
		scores.byLeaderboard[id] = inGeneral([]*scoring.Score{
			{ID: int64(2*i + 1), BaseScore: 900},
			{ID: int64(2*i + 2), BaseScore: 800},
		})
	}
	w := newRecordingWriter()
	config := RefreshScoresConfig{PageSize: 2, FlushThreshold: 3}

	res, err := NewRefreshScoresHandler(lbs, scores, linearOracle, w, nil, config, logger.Nop()).
		Handle(context.Background(), RefreshScoresCommand{Statuses: []scoring.DifficultyStatus{scoring.StatusRanked}})
	require.NoError(t, err)

	batches := w.writtenTo(scoring.TableScores)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Rows, 4, "flushed once the pending rows exceed the threshold")
	assert.Len(t, batches[1].Rows, 2)
	assert.Equal(t, 2, res.Batches.Batches)
	assert.Equal(t, 6, res.Batches.RowsWritten)
}
