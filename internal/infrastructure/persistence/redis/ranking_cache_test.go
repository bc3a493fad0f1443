package redis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/pkg/circuitbreaker"
	"github.com/beatrank/ppcron/pkg/logger"
)

func TestRankingKeys(t *testing.T) {
	assert.Equal(t, "ranking:pp:general", RankingKey(scoring.ContextGeneral))
	assert.Equal(t, "ranking:country:golf", CountryRankKey(scoring.ContextGolf))
}

func TestRankingEntries(t *testing.T) {
	members, countryRanks := rankingEntries([]*scoring.RankablePlayer{
		{PlayerID: "a", Country: "DE", Pp: 300, Rank: 1, CountryRank: 1},
		nil,
		{PlayerID: "", Pp: 10},
		{PlayerID: "b", Country: "", Pp: 200, Rank: 2},
	})

	assert.Equal(t, []redis.Z{
		{Score: 300, Member: "a"},
		{Score: 200, Member: "b"},
	}, members)
	assert.Equal(t, map[string]any{"a": "1"}, countryRanks)
}

func TestPublishRanking_InvalidContext(t *testing.T) {
	r := NewRankingCache(nil, circuitbreaker.CacheBreaker(nil), nil, logger.Nop())

	err := r.PublishRanking(context.Background(), scoring.Context(3), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidContext)
}

func TestPublishRanking_OpenCircuit(t *testing.T) {
	breaker := circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(1))
	_ = breaker.Execute(context.Background(), func(context.Context) error { return ErrCacheConnection })
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	r := NewRankingCache(nil, breaker, nil, logger.Nop())
	err := r.PublishRanking(context.Background(), scoring.ContextGeneral, []*scoring.RankablePlayer{{PlayerID: "a", Pp: 1}})
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}
