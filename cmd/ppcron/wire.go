package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/beatrank/ppcron/config"
	"github.com/beatrank/ppcron/internal/application/command"
	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/internal/infrastructure/persistence/postgres"
	"github.com/beatrank/ppcron/internal/infrastructure/persistence/redis"
	"github.com/beatrank/ppcron/internal/infrastructure/rating"
	"github.com/beatrank/ppcron/internal/infrastructure/scheduler/jobs"
	"github.com/beatrank/ppcron/pkg/logger"
	"github.com/beatrank/ppcron/pkg/metrics"
)

// app holds the wired dependencies shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	db      *postgres.Connection
	cache   *redis.Cache
	metrics *metrics.Manager

	leaderboardRanks *command.RefreshLeaderboardRanksHandler
	scores           *command.RefreshScoresHandler
	playersContext   *command.RefreshPlayersContextHandler
	ranks            *command.RefreshRanksHandler
	allContextsPp    *command.RefreshAllContextsPpHandler
	playersStats     *command.RefreshPlayersStatsHandler
	stats            *command.RefreshStatsHandler
}

func newLogger(cfg *config.Config) *slog.Logger {
	log := logger.New(logger.Config{
		Level:   cfg.Observability.LogLevel,
		Format:  logger.Format(cfg.Observability.LogFormat),
		Service: cfg.App.Name,
	})
	slog.SetDefault(log)
	return log
}

// newApp connects to PostgreSQL and, when enabled, Redis, then builds the
// command handlers. A Redis outage only disables the ranking mirror.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		cfg: cfg,
		log: log,
		metrics: metrics.NewManager(
			metrics.WithEnabled(cfg.Observability.MetricsEnabled),
		),
	}

	dbCfg := postgres.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	dbCfg.QueryTimeout = cfg.Database.QueryTimeout

	log.Info("connecting to database")
	db, err := postgres.NewConnection(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db

	var publisher scoring.RankingPublisher
	if cfg.Redis.Enabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Addr = cfg.Redis.Addr
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize

		cache, err := redis.NewCache(ctx, redisCfg)
		if err != nil {
			log.Warn("redis unavailable, ranking mirror disabled", logger.Err(err))
		} else {
			a.cache = cache
			publisher = redis.NewRankingCache(cache, nil, a.metrics, log)
			log.Info("redis connection established", slog.String("addr", redisCfg.Addr))
		}
	}

	leaderboards := postgres.NewLeaderboardRepository(db)
	scores := postgres.NewScoreRepository(db)
	players := postgres.NewPlayerRepository(db)
	writer := postgres.NewBatchWriter(db, cfg.Database.StatementRows, log)

	statuses, err := cfg.Pipeline.Statuses()
	if err != nil {
		a.close()
		return nil, err
	}
	p := cfg.Pipeline

	a.scores = command.NewRefreshScoresHandler(leaderboards, scores, rating.NewCurveOracle(), writer, a.metrics,
		command.RefreshScoresConfig{
			FlushThreshold:  p.FlushThreshold,
			PageSize:        p.LeaderboardPageSize,
			DefaultStatuses: statuses,
			RetryDelay:      p.RetryDelay,
		}, log)
	a.leaderboardRanks = command.NewRefreshLeaderboardRanksHandler(leaderboards, scores, writer, a.metrics,
		command.RefreshLeaderboardRanksConfig{
			PageSize:    p.LeaderboardPageSize,
			Parallelism: p.Parallelism,
			RetryDelay:  p.RetryDelay,
		}, log)
	a.playersContext = command.NewRefreshPlayersContextHandler(scores, players, writer, a.metrics,
		command.RefreshPlayersContextConfig{
			ChunkSize:   p.PlayerChunkSize,
			Parallelism: p.Parallelism,
			RetryDelay:  p.RetryDelay,
		}, log)
	a.ranks = command.NewRefreshRanksHandler(players, publisher, writer, a.metrics, p.PlayerChunkSize, p.RetryDelay, log)
	a.allContextsPp = command.NewRefreshAllContextsPpHandler(players, writer, a.metrics, p.PlayerChunkSize, p.RetryDelay, log)
	a.playersStats = command.NewRefreshPlayersStatsHandler(scores, players, a.metrics, p.StatsChunkSize, p.RetryDelay, log)
	a.stats = command.NewRefreshStatsHandler(scores, players, p.RetryDelay, log)

	return a, nil
}

func (a *app) pipeline() jobs.Pipeline {
	return jobs.Pipeline{
		Scores:           a.scores,
		LeaderboardRanks: a.leaderboardRanks,
		PlayersContext:   a.playersContext,
		Ranks:            a.ranks,
		AllContextsPp:    a.allContextsPp,
		PlayersStats:     a.playersStats,
	}
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("close redis", logger.Err(err))
		}
	}
	if a.db != nil {
		a.log.Info("closing database connection")
		a.db.Close()
	}
}
