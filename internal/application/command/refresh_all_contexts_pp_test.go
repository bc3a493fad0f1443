package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/pkg/logger"
)

func TestRefreshAllContextsPp_SkipsJokeContext(t *testing.T) {
	players := newFakePlayers()
	players.totals = []*scoring.PlayerPpTotals{
		{
			PlayerID: "a",
			Pp:       100,
			Contexts: []scoring.ContextPp{
				{Context: scoring.ContextNoMods, Pp: 50},
				{Context: scoring.ContextGolf, Pp: 999},
				{Context: scoring.ContextSCPM, Pp: 25},
			},
		},
		{PlayerID: "b", Pp: 40, AllContextsPp: 40},
	}
	w := newRecordingWriter()

	res, err := NewRefreshAllContextsPpHandler(players, w, nil, 100, 0, logger.Nop()).
		Handle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Players)
	assert.Equal(t, 1, res.Changed, "b is already up to date")
	assert.Equal(t, map[any]any{"a": 175.0}, w.values(scoring.TablePlayers, scoring.ColAllContextsPp))
}

func TestRefreshAllContextsPp_DropsFailedBatch(t *testing.T) {
	players := newFakePlayers()
	players.totals = []*scoring.PlayerPpTotals{{PlayerID: "a", Pp: 10}}
	w := newRecordingWriter()
	w.failNext(scoring.TablePlayers, 2)

	res, err := NewRefreshAllContextsPpHandler(players, w, nil, 100, 0, logger.Nop()).
		Handle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Batches.BatchesDropped)
	assert.Equal(t, 1, res.Batches.RowsDropped)
	assert.Len(t, w.calls, 2, "one attempt plus one retry")
	assert.Empty(t, w.values(scoring.TablePlayers, scoring.ColAllContextsPp))
}
