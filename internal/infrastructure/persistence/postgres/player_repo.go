package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/beatrank/ppcron/internal/domain/scoring"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLAYER REPOSITORY IMPLEMENTATION
// General rows live in players and are keyed by player id; alternate contexts
// live in player_context_extensions and are keyed by the extension id.
// ══════════════════════════════════════════════════════════════════════════════

// PlayerRepository implements scoring.PlayerRepository for PostgreSQL.
type PlayerRepository struct {
	conn *Connection
}

// NewPlayerRepository creates a new PlayerRepository.
func NewPlayerRepository(conn *Connection) *PlayerRepository {
	return &PlayerRepository{conn: conn}
}

// ContextExtensionIDs maps player id to the row key of the context.
func (r *PlayerRepository) ContextExtensionIDs(ctx context.Context, c scoring.Context, playerIDs []string) (map[string]any, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	result := make(map[string]any)
	if c.IsGeneral() {
		rows, err := r.conn.Query(ctx, `
			SELECT id FROM players
			WHERE cardinality($1::text[]) = 0 OR id = ANY($1)
		`, playerIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to query players: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, fmt.Errorf("failed to scan player id: %w", err)
			}
			result[id] = id
		}
		return result, rows.Err()
	}

	rows, err := r.conn.Query(ctx, `
		SELECT player_id, id FROM player_context_extensions
		WHERE context = $2 AND (cardinality($1::text[]) = 0 OR player_id = ANY($1))
	`, playerIDs, int(c))
	if err != nil {
		return nil, fmt.Errorf("failed to query player context rows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var playerID string
		var id int64
		if err := rows.Scan(&playerID, &id); err != nil {
			return nil, fmt.Errorf("failed to scan player context row: %w", err)
		}
		result[playerID] = id
	}
	return result, rows.Err()
}

// ListRankable returns non-banned rows with PP > 0.
func (r *PlayerRepository) ListRankable(ctx context.Context, c scoring.Context) ([]*scoring.RankablePlayer, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if c.IsGeneral() {
		rows, err = r.conn.Query(ctx, `
			SELECT id, id, country, pp, rank, country_rank
			FROM players
			WHERE NOT banned AND pp > 0
		`)
	} else {
		rows, err = r.conn.Query(ctx, `
			SELECT id, player_id, country, pp, rank, country_rank
			FROM player_context_extensions
			WHERE context = $1 AND NOT banned AND pp > 0
		`, int(c))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rankable players: %w", err)
	}
	defer rows.Close()

	var result []*scoring.RankablePlayer
	for rows.Next() {
		var p scoring.RankablePlayer
		var key any
		if c.IsGeneral() {
			key = new(string)
		} else {
			key = new(int64)
		}
		if err := rows.Scan(key, &p.PlayerID, &p.Country, &p.Pp, &p.Rank, &p.CountryRank); err != nil {
			return nil, fmt.Errorf("failed to scan rankable player: %w", err)
		}
		switch k := key.(type) {
		case *string:
			p.Key = *k
		case *int64:
			p.Key = *k
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

// ListPpTotals returns every player's General PP with the PP of each context row.
func (r *PlayerRepository) ListPpTotals(ctx context.Context) ([]*scoring.PlayerPpTotals, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, `
		SELECT p.id, p.pp, p.all_contexts_pp, e.context, e.pp
		FROM players p
		LEFT JOIN player_context_extensions e ON e.player_id = p.id
		ORDER BY p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pp totals: %w", err)
	}
	defer rows.Close()

	var result []*scoring.PlayerPpTotals
	var current *scoring.PlayerPpTotals
	for rows.Next() {
		var (
			id         string
			pp, allPp  float64
			extContext *int
			extPp      *float64
		)
		if err := rows.Scan(&id, &pp, &allPp, &extContext, &extPp); err != nil {
			return nil, fmt.Errorf("failed to scan pp totals: %w", err)
		}
		if current == nil || current.PlayerID != id {
			current = &scoring.PlayerPpTotals{PlayerID: id, Pp: pp, AllContextsPp: allPp}
			result = append(result, current)
		}
		if extContext != nil && extPp != nil {
			current.Contexts = append(current.Contexts, scoring.ContextPp{
				Context: scoring.Context(*extContext),
				Pp:      *extPp,
			})
		}
	}
	return result, rows.Err()
}

// ListIDs pages through the player ids that have a row in the context.
func (r *PlayerRepository) ListIDs(ctx context.Context, c scoring.Context, afterID string, limit int) ([]string, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if c.IsGeneral() {
		rows, err = r.conn.Query(ctx, `
			SELECT id FROM players WHERE id > $1 ORDER BY id LIMIT $2
		`, afterID, limit)
	} else {
		rows, err = r.conn.Query(ctx, `
			SELECT player_id FROM player_context_extensions
			WHERE context = $3 AND player_id > $1
			ORDER BY player_id LIMIT $2
		`, afterID, limit, int(c))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query player ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan player id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StatsStates returns the current rank and stored peak rank of players.
func (r *PlayerRepository) StatsStates(ctx context.Context, c scoring.Context, playerIDs []string) (map[string]scoring.StatsState, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if c.IsGeneral() {
		rows, err = r.conn.Query(ctx, `
			SELECT p.id, p.rank, COALESCE(s.peak_rank, 0)
			FROM players p
			LEFT JOIN player_score_stats s ON s.player_id = p.id AND s.context = $2
			WHERE p.id = ANY($1)
		`, playerIDs, int(c))
	} else {
		rows, err = r.conn.Query(ctx, `
			SELECT e.player_id, e.rank, COALESCE(s.peak_rank, 0)
			FROM player_context_extensions e
			LEFT JOIN player_score_stats s ON s.player_id = e.player_id AND s.context = e.context
			WHERE e.player_id = ANY($1) AND e.context = $2
		`, playerIDs, int(c))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stats state: %w", err)
	}
	defer rows.Close()

	result := make(map[string]scoring.StatsState, len(playerIDs))
	for rows.Next() {
		var id string
		var state scoring.StatsState
		if err := rows.Scan(&id, &state.CurrentRank, &state.PeakRank); err != nil {
			return nil, fmt.Errorf("failed to scan stats state: %w", err)
		}
		result[id] = state
	}
	return result, rows.Err()
}

// SaveStats upserts stats records in one transaction. A record without
// percentiles keeps the stored ones.
func (r *PlayerRepository) SaveStats(ctx context.Context, stats []*scoring.PlayerScoreStats) error {
	if len(stats) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range stats {
		args, err := statsArgs(s)
		if err != nil {
			return fmt.Errorf("player %s: %w", s.PlayerID, err)
		}
		batch.Queue(upsertStatsSQL, args...)
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for _, s := range stats {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to save stats of %s: %w", s.PlayerID, err)
			}
		}
		return nil
	})
}

const upsertStatsSQL = `
	INSERT INTO player_score_stats (
		player_id, context, all_stats, ranked_stats, unranked_stats, tiers,
		top_pp, top_bonus_pp, top_pass_pp, top_acc_pp, top_tech_pp,
		average_weighted_ranked_accuracy, average_weighted_ranked_rank,
		top_platform, top_hmd, all_hmds, peak_rank, percentiles, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW())
	ON CONFLICT (player_id, context) DO UPDATE SET
		all_stats = EXCLUDED.all_stats,
		ranked_stats = EXCLUDED.ranked_stats,
		unranked_stats = EXCLUDED.unranked_stats,
		tiers = EXCLUDED.tiers,
		top_pp = EXCLUDED.top_pp,
		top_bonus_pp = EXCLUDED.top_bonus_pp,
		top_pass_pp = EXCLUDED.top_pass_pp,
		top_acc_pp = EXCLUDED.top_acc_pp,
		top_tech_pp = EXCLUDED.top_tech_pp,
		average_weighted_ranked_accuracy = EXCLUDED.average_weighted_ranked_accuracy,
		average_weighted_ranked_rank = EXCLUDED.average_weighted_ranked_rank,
		top_platform = EXCLUDED.top_platform,
		top_hmd = EXCLUDED.top_hmd,
		all_hmds = EXCLUDED.all_hmds,
		peak_rank = EXCLUDED.peak_rank,
		percentiles = COALESCE(EXCLUDED.percentiles, player_score_stats.percentiles),
		updated_at = NOW()
`

func statsArgs(s *scoring.PlayerScoreStats) ([]any, error) {
	docs := make([][]byte, 0, 4)
	for _, v := range []any{s.All, s.Ranked, s.Unranked, s.Tiers} {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		docs = append(docs, raw)
	}

	var percentiles []byte
	if s.Percentiles != nil {
		raw, err := json.Marshal(s.Percentiles)
		if err != nil {
			return nil, err
		}
		percentiles = raw
	}

	return []any{
		s.PlayerID, int(s.Context), docs[0], docs[1], docs[2], docs[3],
		s.TopPp, s.TopBonusPp, s.TopPassPP, s.TopAccPP, s.TopTechPP,
		s.AverageWeightedRankedAccuracy, s.AverageWeightedRankedRank,
		s.TopPlatform, s.TopHmd, s.AllHmds, s.PeakRank, percentiles,
	}, nil
}
