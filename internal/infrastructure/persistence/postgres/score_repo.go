package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/beatrank/ppcron/internal/domain/scoring"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ScoreRepository implements scoring.ScoreRepository for PostgreSQL.
type ScoreRepository struct {
	conn *Connection
}

// NewScoreRepository creates a new ScoreRepository.
func NewScoreRepository(conn *Connection) *ScoreRepository {
	return &ScoreRepository{conn: conn}
}

// ListForRefresh returns the non-banned, non-bot scores of a leaderboard that
// are valid in the General context.
func (r *ScoreRepository) ListForRefresh(ctx context.Context, leaderboardID string) ([]*scoring.Score, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, `
		SELECT id, player_id, leaderboard_id, base_score, modified_score, accuracy, fc_accuracy, modifiers,
		       pp, fc_pp, bonus_pp, pass_pp, acc_pp, tech_pp, rank, weight, priority, qualification,
		       valid_contexts, timepost
		FROM scores
		WHERE leaderboard_id = $1 AND NOT banned AND NOT bot AND (valid_contexts & $2) <> 0
	`, leaderboardID, int(scoring.ContextGeneral))
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var scores []*scoring.Score
	for rows.Next() {
		var s scoring.Score
		var validContexts int
		if err := rows.Scan(
			&s.ID, &s.PlayerID, &s.LeaderboardID, &s.BaseScore, &s.ModifiedScore, &s.Accuracy, &s.FcAccuracy, &s.Modifiers,
			&s.Pp, &s.FcPp, &s.BonusPp, &s.PassPP, &s.AccPP, &s.TechPP, &s.Rank, &s.Weight, &s.Priority, &s.Qualification,
			&validContexts, &s.Timepost,
		); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		s.ValidContexts = scoring.Context(validContexts)
		scores = append(scores, &s)
	}
	return scores, rows.Err()
}

// ListRankCandidates returns rankable rows grouped by leaderboard id.
func (r *ScoreRepository) ListRankCandidates(ctx context.Context, c scoring.Context, leaderboardIDs []string) (map[string][]*scoring.RankCandidate, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if c.IsGeneral() {
		rows, err = r.conn.Query(ctx, `
			SELECT id, leaderboard_id, pp, accuracy, modified_score, priority, timepost, rank
			FROM scores
			WHERE leaderboard_id = ANY($1) AND NOT banned AND (valid_contexts & $2) <> 0
		`, leaderboardIDs, int(scoring.ContextGeneral))
	} else {
		rows, err = r.conn.Query(ctx, `
			SELECT id, leaderboard_id, pp, accuracy, modified_score, priority, timepost, rank
			FROM score_context_extensions
			WHERE leaderboard_id = ANY($1) AND context = $2 AND NOT banned
		`, leaderboardIDs, int(c))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rank candidates: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]*scoring.RankCandidate, len(leaderboardIDs))
	for rows.Next() {
		var cand scoring.RankCandidate
		if err := rows.Scan(
			&cand.ID, &cand.LeaderboardID, &cand.Pp, &cand.Accuracy,
			&cand.ModifiedScore, &cand.Priority, &cand.Timepost, &cand.Rank,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rank candidate: %w", err)
		}
		result[cand.LeaderboardID] = append(result[cand.LeaderboardID], &cand)
	}
	return result, rows.Err()
}

// ListWeighted returns rows eligible for the weighted PP aggregate.
func (r *ScoreRepository) ListWeighted(ctx context.Context, c scoring.Context, playerIDs []string) ([]*scoring.WeightedScore, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if c.IsGeneral() {
		rows, err = r.conn.Query(ctx, `
			SELECT id, player_id, pp, acc_pp, pass_pp, tech_pp, weight
			FROM scores
			WHERE pp <> 0 AND NOT banned AND NOT qualification AND (valid_contexts & $2) <> 0
			  AND (cardinality($1::text[]) = 0 OR player_id = ANY($1))
		`, playerIDs, int(scoring.ContextGeneral))
	} else {
		rows, err = r.conn.Query(ctx, `
			SELECT id, player_id, pp, acc_pp, pass_pp, tech_pp, weight
			FROM score_context_extensions
			WHERE context = $2 AND pp <> 0 AND NOT banned AND NOT qualification AND score_id IS NOT NULL
			  AND (cardinality($1::text[]) = 0 OR player_id = ANY($1))
		`, playerIDs, int(c))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query weighted scores: %w", err)
	}
	defer rows.Close()

	var result []*scoring.WeightedScore
	for rows.Next() {
		var s scoring.WeightedScore
		if err := rows.Scan(&s.ID, &s.PlayerID, &s.Pp, &s.AccPP, &s.PassPP, &s.TechPP, &s.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan weighted score: %w", err)
		}
		result = append(result, &s)
	}
	return result, rows.Err()
}

// ListForStats returns a player's non-ignored scores in a context.
func (r *ScoreRepository) ListForStats(ctx context.Context, c scoring.Context, playerID string) ([]scoring.StatScore, error) {
	batch, err := r.ListForStatsBatch(ctx, c, []string{playerID})
	if err != nil {
		return nil, err
	}
	return batch[playerID], nil
}

// ListForStatsBatch returns the stats rows of many players, grouped by player id.
// Alternate contexts take PP fields from the extension and gameplay fields
// from the joined score.
func (r *ScoreRepository) ListForStatsBatch(ctx context.Context, c scoring.Context, playerIDs []string) (map[string][]scoring.StatScore, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if c.IsGeneral() {
		rows, err = r.conn.Query(ctx, `
			SELECT player_id, id, pp, bonus_pp, pass_pp, acc_pp, tech_pp, accuracy, modified_score, rank,
			       qualification, timepost, platform, hmd, max_streak, acc_left, acc_right
			FROM scores
			WHERE player_id = ANY($1) AND NOT ignore_for_stats AND (valid_contexts & $2) <> 0
		`, playerIDs, int(scoring.ContextGeneral))
	} else {
		rows, err = r.conn.Query(ctx, `
			SELECT e.player_id, e.score_id, e.pp, e.bonus_pp, e.pass_pp, e.acc_pp, e.tech_pp, e.accuracy,
			       e.modified_score, e.rank, e.qualification, e.timepost, s.platform, s.hmd, s.max_streak,
			       s.acc_left, s.acc_right
			FROM score_context_extensions e
			JOIN scores s ON s.id = e.score_id
			WHERE e.player_id = ANY($1) AND e.context = $2 AND NOT s.ignore_for_stats
		`, playerIDs, int(c))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stats scores: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]scoring.StatScore, len(playerIDs))
	for rows.Next() {
		var playerID string
		var s scoring.StatScore
		if err := rows.Scan(
			&playerID, &s.ScoreID, &s.Pp, &s.BonusPp, &s.PassPP, &s.AccPP, &s.TechPP, &s.Accuracy,
			&s.ModifiedScore, &s.Rank, &s.Qualification, &s.Timepost, &s.Platform, &s.Hmd, &s.MaxStreak,
			&s.AccLeft, &s.AccRight,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stats score: %w", err)
		}
		result[playerID] = append(result[playerID], s)
	}
	return result, rows.Err()
}
