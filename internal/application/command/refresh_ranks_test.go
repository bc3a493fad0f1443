package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/pkg/logger"
)

func TestRefreshRanks_GlobalAndCountry(t *testing.T) {
	players := newFakePlayers()
	players.rankable[scoring.ContextGeneral] = []*scoring.RankablePlayer{
		{Key: "a", PlayerID: "a", Country: "US", Pp: 100, Rank: 2, CountryRank: 1},
		{Key: "b", PlayerID: "b", Country: "DE", Pp: 300, Rank: 1, CountryRank: 1},
		{Key: "c", PlayerID: "c", Country: "US", Pp: 200, Rank: 3, CountryRank: 2},
		{Key: "d", PlayerID: "d", Country: "US", Pp: 0, Rank: 9, CountryRank: 9},
	}
	w := newRecordingWriter()
	pub := &fakePublisher{}

	res, err := NewRefreshRanksHandler(players, pub, w, nil, 100, 0, logger.Nop()).
		Handle(context.Background(), RefreshRanksCommand{})
	require.NoError(t, err)
	require.Len(t, res.Contexts, 1)

	ctxRes := res.Contexts[0]
	assert.Equal(t, 3, ctxRes.Ranked)
	assert.Equal(t, 2, ctxRes.Changed, "b keeps 1/1")
	assert.True(t, ctxRes.Published)

	ranks := w.values(scoring.TablePlayers, scoring.ColRank)
	country := w.values(scoring.TablePlayers, scoring.ColCountryRank)
	assert.Equal(t, map[any]any{"c": 2, "a": 3}, ranks)
	assert.Equal(t, map[any]any{"c": 1, "a": 2}, country)

	published := pub.published[scoring.ContextGeneral]
	require.Len(t, published, 3)
	assert.Equal(t, "b", published[0].PlayerID)
}

func TestRefreshRanks_PublishFailureIsNotFatal(t *testing.T) {
	players := newFakePlayers()
	players.rankable[scoring.ContextSCPM] = []*scoring.RankablePlayer{
		{Key: int64(1), PlayerID: "a", Country: "US", Pp: 10},
	}
	w := newRecordingWriter()
	pub := &fakePublisher{err: errors.New("redis down")}

	res, err := NewRefreshRanksHandler(players, pub, w, nil, 100, 0, logger.Nop()).
		Handle(context.Background(), RefreshRanksCommand{Context: scoring.ContextSCPM})
	require.NoError(t, err)

	assert.False(t, res.Contexts[0].Published)
	assert.Error(t, res.Contexts[0].PublishError)
	assert.Equal(t, 1, w.values(scoring.TablePlayerContextExtensions, scoring.ColRank)[int64(1)])
}

func TestRefreshRanks_NilPublisher(t *testing.T) {
	players := newFakePlayers()
	players.rankable[scoring.ContextGeneral] = []*scoring.RankablePlayer{
		{Key: "a", PlayerID: "a", Pp: 10},
	}

	res, err := NewRefreshRanksHandler(players, nil, newRecordingWriter(), nil, 0, 0, nil).
		Handle(context.Background(), RefreshRanksCommand{})
	require.NoError(t, err)
	assert.False(t, res.Contexts[0].Published)
	assert.NoError(t, res.Contexts[0].PublishError)
}

func TestRefreshAllContextsPp(t *testing.T) {
	players := newFakePlayers()
	players.totals = []*scoring.PlayerPpTotals{
		{
			PlayerID: "a",
			Pp:       100,
			Contexts: []scoring.ContextPp{
				{Context: scoring.ContextNoMods, Pp: 50},
				{Context: scoring.ContextGolf, Pp: 1000},
				{Context: scoring.ContextSCPM, Pp: 25},
			},
		},
		{PlayerID: "b", Pp: 10, AllContextsPp: 10},
	}
	w := newRecordingWriter()

	res, err := NewRefreshAllContextsPpHandler(players, w, nil, 0, 0, logger.Nop()).Handle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Players)
	assert.Equal(t, 1, res.Changed)
	assert.Equal(t, map[any]any{"a": 175.0}, w.values(scoring.TablePlayers, scoring.ColAllContextsPp))
}
