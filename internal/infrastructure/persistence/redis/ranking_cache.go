package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/pkg/circuitbreaker"
)

// zaddChunk bounds the members sent per ZADD.
const zaddChunk = 1000

// RankingMetrics is the part of the metrics manager the mirror reports to.
type RankingMetrics interface {
	RankingPublished(context string, players int)
}

// RankingCache mirrors a context's player ranking into Redis. Each publish
// rebuilds staging keys and renames them over the live ones in one
// transaction, so readers never see a half-written ranking.
type RankingCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
	metrics RankingMetrics
	log     *slog.Logger
}

// NewRankingCache creates a RankingCache. A nil breaker gets the cache preset.
func NewRankingCache(cache *Cache, breaker *circuitbreaker.CircuitBreaker, metrics RankingMetrics, log *slog.Logger) *RankingCache {
	if log == nil {
		log = slog.Default()
	}
	if breaker == nil {
		breaker = circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
	}
	return &RankingCache{cache: cache, breaker: breaker, metrics: metrics, log: log}
}

// RankingKey returns the sorted set key of a context.
func RankingKey(c scoring.Context) string {
	return PrefixRankingPp + c.String()
}

// CountryRankKey returns the country rank hash key of a context.
func CountryRankKey(c scoring.Context) string {
	return PrefixRankingCountry + c.String()
}

// PublishRanking replaces the mirrored ranking of a context.
func (r *RankingCache) PublishRanking(ctx context.Context, c scoring.Context, players []*scoring.RankablePlayer) error {
	if !c.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidContext, int(c))
	}

	members, countryRanks := rankingEntries(players)
	key, countryKey := RankingKey(c), CountryRankKey(c)

	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		pipe := r.cache.Client().TxPipeline()

		if len(members) == 0 {
			pipe.Del(ctx, key, countryKey)
			_, err := pipe.Exec(ctx)
			return err
		}

		stagingKey, stagingCountryKey := key+suffixStaging, countryKey+suffixStaging
		pipe.Del(ctx, stagingKey, stagingCountryKey)
		for start := 0; start < len(members); start += zaddChunk {
			end := min(start+zaddChunk, len(members))
			pipe.ZAdd(ctx, stagingKey, members[start:end]...)
		}
		if len(countryRanks) > 0 {
			pipe.HSet(ctx, stagingCountryKey, countryRanks)
		} else {
			pipe.Del(ctx, countryKey)
		}
		pipe.Rename(ctx, stagingKey, key)
		if len(countryRanks) > 0 {
			pipe.Rename(ctx, stagingCountryKey, countryKey)
		}

		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("publish %s ranking: %w", c, err)
	}

	if r.metrics != nil {
		r.metrics.RankingPublished(c.String(), len(members))
	}
	r.log.Debug("ranking published", "context", c.String(), "players", len(members))
	return nil
}

// rankingEntries builds the sorted set members and the country rank fields.
// Players without a country rank are left out of the hash.
func rankingEntries(players []*scoring.RankablePlayer) ([]redis.Z, map[string]any) {
	members := make([]redis.Z, 0, len(players))
	countryRanks := make(map[string]any)
	for _, p := range players {
		if p == nil || p.PlayerID == "" {
			continue
		}
		members = append(members, redis.Z{Score: p.Pp, Member: p.PlayerID})
		if p.CountryRank > 0 {
			countryRanks[p.PlayerID] = strconv.Itoa(p.CountryRank)
		}
	}
	return members, countryRanks
}
