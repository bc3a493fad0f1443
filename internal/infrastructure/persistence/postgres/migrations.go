package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/beatrank/ppcron/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one embedded schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	log        *slog.Logger
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection, log *slog.Logger) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: Migrations(),
		log:        logger.OrDefault(log),
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		count++
		m.log.Info("migration applied", "version", mig.Version, "name", mig.Name)
	}
	return count, nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		last = max(last, v)
	}
	if last == 0 {
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("failed to roll back migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", last)
		return err
	})
}

// Status lists the embedded migrations with their applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// Migrations returns the embedded migrations in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_leaderboards", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_players", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_scores", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_player_score_stats", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: LEADERBOARDS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS leaderboards (
    id TEXT PRIMARY KEY,
    status SMALLINT NOT NULL DEFAULT 0,
    acc_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
    pass_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
    tech_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
    modifier_values JSONB,
    modifiers_rating JSONB,
    max_score INTEGER NOT NULL DEFAULT 0,
    notes INTEGER NOT NULL DEFAULT 0,
    plays INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_status CHECK (status BETWEEN 0 AND 6)
);

CREATE INDEX IF NOT EXISTS idx_leaderboards_status ON leaderboards(status, id);
`

const migration001Down = `
DROP TABLE IF EXISTS leaderboards;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PLAYERS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS players (
    id TEXT PRIMARY KEY,
    country VARCHAR(8) NOT NULL DEFAULT 'not set',
    banned BOOLEAN NOT NULL DEFAULT FALSE,
    pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    acc_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    tech_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    pass_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    rank INTEGER NOT NULL DEFAULT 0,
    country_rank INTEGER NOT NULL DEFAULT 0,
    all_contexts_pp DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_players_pp ON players(pp DESC) WHERE NOT banned;

CREATE TABLE IF NOT EXISTS player_context_extensions (
    id BIGSERIAL PRIMARY KEY,
    player_id TEXT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
    context INTEGER NOT NULL,
    country VARCHAR(8) NOT NULL DEFAULT 'not set',
    banned BOOLEAN NOT NULL DEFAULT FALSE,
    pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    acc_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    tech_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    pass_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    rank INTEGER NOT NULL DEFAULT 0,
    country_rank INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT unique_player_context UNIQUE (player_id, context)
);

CREATE INDEX IF NOT EXISTS idx_player_context_extensions_pp ON player_context_extensions(context, pp DESC) WHERE NOT banned;
`

const migration002Down = `
DROP TABLE IF EXISTS player_context_extensions;
DROP TABLE IF EXISTS players;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: SCORES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS scores (
    id BIGSERIAL PRIMARY KEY,
    player_id TEXT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
    leaderboard_id TEXT NOT NULL REFERENCES leaderboards(id) ON DELETE CASCADE,
    base_score INTEGER NOT NULL DEFAULT 0,
    modified_score INTEGER NOT NULL DEFAULT 0,
    accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
    fc_accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
    modifiers TEXT NOT NULL DEFAULT '',
    pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    fc_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    bonus_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    pass_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    acc_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    tech_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    rank INTEGER NOT NULL DEFAULT 0,
    weight DOUBLE PRECISION NOT NULL DEFAULT 0,
    priority INTEGER NOT NULL DEFAULT 0,
    qualification BOOLEAN NOT NULL DEFAULT FALSE,
    banned BOOLEAN NOT NULL DEFAULT FALSE,
    bot BOOLEAN NOT NULL DEFAULT FALSE,
    ignore_for_stats BOOLEAN NOT NULL DEFAULT FALSE,
    valid_contexts INTEGER NOT NULL DEFAULT 2,
    timepost BIGINT NOT NULL DEFAULT 0,
    platform TEXT NOT NULL DEFAULT '',
    hmd INTEGER NOT NULL DEFAULT 0,
    max_streak INTEGER NOT NULL DEFAULT 0,
    acc_left DOUBLE PRECISION NOT NULL DEFAULT 0,
    acc_right DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_scores_leaderboard ON scores(leaderboard_id);
CREATE INDEX IF NOT EXISTS idx_scores_player ON scores(player_id);
CREATE INDEX IF NOT EXISTS idx_scores_player_pp ON scores(player_id, pp DESC) WHERE pp <> 0 AND NOT banned;

CREATE TABLE IF NOT EXISTS score_context_extensions (
    id BIGSERIAL PRIMARY KEY,
    score_id BIGINT REFERENCES scores(id) ON DELETE SET NULL,
    player_id TEXT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
    leaderboard_id TEXT NOT NULL REFERENCES leaderboards(id) ON DELETE CASCADE,
    context INTEGER NOT NULL,
    base_score INTEGER NOT NULL DEFAULT 0,
    modified_score INTEGER NOT NULL DEFAULT 0,
    accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
    modifiers TEXT NOT NULL DEFAULT '',
    priority INTEGER NOT NULL DEFAULT 0,
    pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    bonus_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    pass_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    acc_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    tech_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    rank INTEGER NOT NULL DEFAULT 0,
    weight DOUBLE PRECISION NOT NULL DEFAULT 0,
    qualification BOOLEAN NOT NULL DEFAULT FALSE,
    banned BOOLEAN NOT NULL DEFAULT FALSE,
    timepost BIGINT NOT NULL DEFAULT 0,

    CONSTRAINT unique_score_context UNIQUE (score_id, context)
);

CREATE INDEX IF NOT EXISTS idx_score_context_extensions_leaderboard ON score_context_extensions(context, leaderboard_id);
CREATE INDEX IF NOT EXISTS idx_score_context_extensions_player ON score_context_extensions(context, player_id);
`

const migration003Down = `
DROP TABLE IF EXISTS score_context_extensions;
DROP TABLE IF EXISTS scores;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: PLAYER SCORE STATS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS player_score_stats (
    player_id TEXT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
    context INTEGER NOT NULL,
    all_stats JSONB NOT NULL,
    ranked_stats JSONB NOT NULL,
    unranked_stats JSONB NOT NULL,
    tiers JSONB NOT NULL,
    top_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    top_bonus_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    top_pass_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    top_acc_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    top_tech_pp DOUBLE PRECISION NOT NULL DEFAULT 0,
    average_weighted_ranked_accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
    average_weighted_ranked_rank DOUBLE PRECISION NOT NULL DEFAULT 0,
    top_platform TEXT NOT NULL DEFAULT '',
    top_hmd INTEGER NOT NULL DEFAULT 0,
    all_hmds VARCHAR(50) NOT NULL DEFAULT '',
    peak_rank INTEGER NOT NULL DEFAULT 0,
    percentiles JSONB,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (player_id, context)
);
`

const migration004Down = `
DROP TABLE IF EXISTS player_score_stats;
`
