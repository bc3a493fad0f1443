package command

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/internal/domain/shared"
	"github.com/beatrank/ppcron/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH PLAYERS CONTEXT COMMAND (RefreshPlayersContext)
// Recomputes score weights and the weighted PP totals of players in a context.
// ══════════════════════════════════════════════════════════════════════════════

// RefreshPlayersContextCommand selects the context and players.
type RefreshPlayersContextCommand struct {
	// Context to aggregate. Zero means General.
	Context scoring.Context

	// AllContexts aggregates every known context; Context is ignored.
	AllContexts bool

	// PlayerIDs restricts the run. Players listed here without any eligible
	// score get zero totals.
	PlayerIDs []string
}

// Validate validates the command.
func (c RefreshPlayersContextCommand) Validate() error {
	if c.AllContexts || c.Context == scoring.ContextNone || c.Context.IsValid() {
		return nil
	}
	return fmt.Errorf("refresh_players_context: %w", shared.ErrInvalidContext)
}

func (c RefreshPlayersContextCommand) contexts() []scoring.Context {
	if c.AllContexts {
		return scoring.AllContexts
	}
	if c.Context == scoring.ContextNone {
		return []scoring.Context{scoring.ContextGeneral}
	}
	return []scoring.Context{c.Context}
}

// ContextPlayersResult summarizes one context.
type ContextPlayersResult struct {
	Context        scoring.Context
	Players        int
	Scores         int
	WeightsChanged int
	// MissingExtensions counts players without a context row.
	MissingExtensions int
	Chunks            int
	Batches           BatchSummary
}

// RefreshPlayersContextResult summarizes a run.
type RefreshPlayersContextResult struct {
	RunID    string
	Contexts []ContextPlayersResult
	Duration time.Duration
}

// RefreshPlayersContextConfig tunes the handler.
type RefreshPlayersContextConfig struct {
	// ChunkSize is how many player groups are written per batch.
	ChunkSize int
	// Parallelism bounds how many contexts are aggregated at once.
	Parallelism int
	// RetryDelay is the pause before retrying a failed batch.
	RetryDelay time.Duration
}

// DefaultRefreshPlayersContextConfig returns default configuration.
func DefaultRefreshPlayersContextConfig() RefreshPlayersContextConfig {
	return RefreshPlayersContextConfig{
		ChunkSize:   5000,
		Parallelism: 2,
		RetryDelay:  time.Second,
	}
}

// RefreshPlayersContextHandler handles RefreshPlayersContextCommand.
type RefreshPlayersContextHandler struct {
	scores  scoring.ScoreRepository
	players scoring.PlayerRepository
	flusher *batchFlusher
	metrics MetricsRecorder
	config  RefreshPlayersContextConfig
	log     *slog.Logger
}

// NewRefreshPlayersContextHandler creates a new handler.
func NewRefreshPlayersContextHandler(
	scores scoring.ScoreRepository,
	players scoring.PlayerRepository,
	writer scoring.BatchWriter,
	m MetricsRecorder,
	config RefreshPlayersContextConfig,
	log *slog.Logger,
) *RefreshPlayersContextHandler {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultRefreshPlayersContextConfig().ChunkSize
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 1
	}

	log = logger.OrDefault(log).With("command", "refresh_players_context")
	return &RefreshPlayersContextHandler{
		scores:  scores,
		players: players,
		flusher: newBatchFlusher(writer, config.RetryDelay, m, log),
		metrics: metricsOrNoop(m),
		config:  config,
		log:     log,
	}
}

// Handle executes the command.
func (h *RefreshPlayersContextHandler) Handle(ctx context.Context, cmd RefreshPlayersContextCommand) (*RefreshPlayersContextResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &RefreshPlayersContextResult{RunID: uuid.NewString()}
	log := h.log.With("run_id", result.RunID)

	contexts := cmd.contexts()
	perContext := make([]ContextPlayersResult, len(contexts))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Parallelism)
	for i, c := range contexts {
		g.Go(func() error {
			res, err := h.refreshContext(gctx, log.With(logger.Context(c)), c, cmd.PlayerIDs)
			if err != nil {
				return err
			}
			mu.Lock()
			perContext[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Contexts = perContext
	result.Duration = time.Since(start)
	return result, nil
}

func (h *RefreshPlayersContextHandler) refreshContext(
	ctx context.Context,
	log *slog.Logger,
	c scoring.Context,
	playerIDs []string,
) (ContextPlayersResult, error) {
	res := ContextPlayersResult{Context: c}
	tables := scoring.TablesFor(c)

	rows, err := h.scores.ListWeighted(ctx, c, playerIDs)
	if err != nil {
		return res, fmt.Errorf("refresh_players_context: failed to load scores for %s: %w", c, err)
	}
	extIDs, err := h.players.ContextExtensionIDs(ctx, c, playerIDs)
	if err != nil {
		return res, fmt.Errorf("refresh_players_context: failed to load player rows for %s: %w", c, err)
	}
	res.Scores = len(rows)

	groups := make(map[string][]*scoring.WeightedScore)
	for _, row := range rows {
		groups[row.PlayerID] = append(groups[row.PlayerID], row)
	}
	for _, id := range playerIDs {
		if _, ok := groups[id]; !ok {
			groups[id] = nil
		}
	}

	order := make([]string, 0, len(groups))
	for id := range groups {
		order = append(order, id)
	}
	sort.Strings(order)

	for from := 0; from < len(order); from += h.config.ChunkSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		to := min(from+h.config.ChunkSize, len(order))

		weights := newPendingBatch(tables.Scores, scoring.ColWeight)
		totals := newPendingBatch(tables.Players, scoring.PlayerPpColumns...)

		for _, playerID := range order[from:to] {
			sum, changed := scoring.ApplyWeights(groups[playerID])
			for _, s := range changed {
				weights.add(s.ID, map[string]any{scoring.ColWeight: s.Weight})
			}
			res.WeightsChanged += len(changed)

			key, ok := extIDs[playerID]
			if !ok {
				res.MissingExtensions++
				h.metrics.RowSkipped("players_context")
				log.Debug("player has no row in context", logger.Player(playerID))
				continue
			}
			res.Players++
			totals.add(key, map[string]any{
				scoring.ColPp:     sum.Pp,
				scoring.ColAccPP:  sum.AccPp,
				scoring.ColTechPP: sum.TechPp,
				scoring.ColPassPP: sum.PassPp,
			})
		}

		res.Chunks++
		res.Batches.Add(h.flusher.flush(ctx, weights))
		res.Batches.Add(h.flusher.flush(ctx, totals))
	}

	log.Info("players context refreshed",
		"players", res.Players,
		"scores", res.Scores,
		"weights_changed", res.WeightsChanged,
		"missing_rows", res.MissingExtensions,
		"batches_dropped", res.Batches.BatchesDropped,
	)
	return res, nil
}
