package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/beatrank/ppcron/internal/domain/scoring"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRepository implements scoring.LeaderboardRepository for PostgreSQL.
type LeaderboardRepository struct {
	conn *Connection
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(conn *Connection) *LeaderboardRepository {
	return &LeaderboardRepository{conn: conn}
}

// List returns leaderboards matching the filter, ordered by id.
// A zero Limit means no limit.
func (r *LeaderboardRepository) List(ctx context.Context, filter scoring.LeaderboardFilter) ([]*scoring.Leaderboard, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	statuses := make([]int16, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = int16(s)
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id, status, acc_rating, pass_rating, tech_rating, modifier_values, modifiers_rating,
		       max_score, notes, plays
		FROM leaderboards
		WHERE ($1 = '' OR id = $1)
		  AND (cardinality($2::smallint[]) = 0 OR status = ANY($2))
		  AND id > $3
		ORDER BY id
		LIMIT NULLIF($4, 0)
	`, filter.ID, statuses, filter.AfterID, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboards: %w", err)
	}
	defer rows.Close()

	var result []*scoring.Leaderboard
	for rows.Next() {
		var lb scoring.Leaderboard
		var status int16
		var modifierValues, modifiersRating []byte
		if err := rows.Scan(
			&lb.ID, &status, &lb.AccRating, &lb.PassRating, &lb.TechRating, &modifierValues, &modifiersRating,
			&lb.MaxScore, &lb.Notes, &lb.Plays,
		); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard: %w", err)
		}
		lb.Status = scoring.DifficultyStatus(status)

		if lb.ModifierValues, err = decodeJSON[scoring.ModifiersMap](modifierValues); err != nil {
			return nil, fmt.Errorf("leaderboard %s: modifier_values: %w", lb.ID, err)
		}
		if lb.ModifiersRating, err = decodeJSON[scoring.ModifiersRating](modifiersRating); err != nil {
			return nil, fmt.Errorf("leaderboard %s: modifiers_rating: %w", lb.ID, err)
		}
		result = append(result, &lb)
	}
	return result, rows.Err()
}

// decodeJSON returns nil for SQL NULL.
func decodeJSON[T any](raw []byte) (*T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
