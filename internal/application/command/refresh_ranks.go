package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/internal/domain/shared"
	"github.com/beatrank/ppcron/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH RANKS COMMAND (RefreshRanks)
// Global and per-country re-rank of players within a context.
// ══════════════════════════════════════════════════════════════════════════════

// RefreshRanksCommand selects the context.
type RefreshRanksCommand struct {
	// Context to rank. Zero means General.
	Context scoring.Context

	// AllContexts ranks every known context in turn.
	AllContexts bool
}

// Validate validates the command.
func (c RefreshRanksCommand) Validate() error {
	if c.AllContexts || c.Context == scoring.ContextNone || c.Context.IsValid() {
		return nil
	}
	return fmt.Errorf("refresh_ranks: %w", shared.ErrInvalidContext)
}

func (c RefreshRanksCommand) contexts() []scoring.Context {
	if c.AllContexts {
		return scoring.AllContexts
	}
	if c.Context == scoring.ContextNone {
		return []scoring.Context{scoring.ContextGeneral}
	}
	return []scoring.Context{c.Context}
}

// ContextRanksResult summarizes one context.
type ContextRanksResult struct {
	Context      scoring.Context
	Ranked       int
	Changed      int
	Published    bool
	PublishError error
	Batches      BatchSummary
}

// RefreshRanksResult summarizes a run.
type RefreshRanksResult struct {
	RunID    string
	Contexts []ContextRanksResult
	Duration time.Duration
}

// RefreshRanksHandler handles RefreshRanksCommand.
type RefreshRanksHandler struct {
	players   scoring.PlayerRepository
	publisher scoring.RankingPublisher
	flusher   *batchFlusher
	chunkSize int
	log       *slog.Logger
}

// NewRefreshRanksHandler creates a new handler. publisher may be nil.
func NewRefreshRanksHandler(
	players scoring.PlayerRepository,
	publisher scoring.RankingPublisher,
	writer scoring.BatchWriter,
	m MetricsRecorder,
	chunkSize int,
	retryDelay time.Duration,
	log *slog.Logger,
) *RefreshRanksHandler {
	if chunkSize <= 0 {
		chunkSize = DefaultRefreshPlayersContextConfig().ChunkSize
	}
	log = logger.OrDefault(log).With("command", "refresh_ranks")
	return &RefreshRanksHandler{
		players:   players,
		publisher: publisher,
		flusher:   newBatchFlusher(writer, retryDelay, m, log),
		chunkSize: chunkSize,
		log:       log,
	}
}

// Handle executes the command.
func (h *RefreshRanksHandler) Handle(ctx context.Context, cmd RefreshRanksCommand) (*RefreshRanksResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &RefreshRanksResult{RunID: uuid.NewString()}
	log := h.log.With("run_id", result.RunID)

	for _, c := range cmd.contexts() {
		res, err := h.rankContext(ctx, log.With(logger.Context(c)), c)
		if err != nil {
			return nil, err
		}
		result.Contexts = append(result.Contexts, res)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (h *RefreshRanksHandler) rankContext(ctx context.Context, log *slog.Logger, c scoring.Context) (ContextRanksResult, error) {
	res := ContextRanksResult{Context: c}

	players, err := h.players.ListRankable(ctx, c)
	if err != nil {
		return res, fmt.Errorf("refresh_ranks: failed to load players for %s: %w", c, err)
	}

	type previous struct{ rank, countryRank int }
	before := make(map[*scoring.RankablePlayer]previous, len(players))
	for _, p := range players {
		before[p] = previous{p.Rank, p.CountryRank}
	}

	ranked := scoring.RankPlayers(players)
	res.Ranked = len(ranked)

	pending := newPendingBatch(scoring.TablesFor(c).Players, scoring.ColRank, scoring.ColCountryRank)
	for _, p := range ranked {
		if prev := before[p]; prev.rank == p.Rank && prev.countryRank == p.CountryRank {
			continue
		}
		res.Changed++
		pending.add(p.Key, map[string]any{
			scoring.ColRank:        p.Rank,
			scoring.ColCountryRank: p.CountryRank,
		})
		if pending.len() >= h.chunkSize {
			res.Batches.Add(h.flusher.flush(ctx, pending))
		}
	}
	res.Batches.Add(h.flusher.flush(ctx, pending))

	if h.publisher != nil {
		if err := h.publisher.PublishRanking(ctx, c, ranked); err != nil {
			res.PublishError = err
			log.Warn("failed to publish ranking", logger.Err(err))
		} else {
			res.Published = true
		}
	}

	log.Info("player ranks refreshed",
		"ranked", res.Ranked,
		"changed", res.Changed,
		"batches_dropped", res.Batches.BatchesDropped,
	)
	return res, nil
}
