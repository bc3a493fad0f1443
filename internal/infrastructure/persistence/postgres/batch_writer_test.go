package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/internal/domain/shared"
)

func TestBuildUpdate_Scores(t *testing.T) {
	rows := []scoring.RowUpdate{
		{Key: int64(1), Values: map[string]any{scoring.ColRank: 2, scoring.ColPp: 101.5}},
		{Key: int64(2), Values: map[string]any{scoring.ColRank: 1, scoring.ColPp: 250.0}},
	}

	stmt, err := buildUpdate(scoring.TableScores, []string{scoring.ColRank, scoring.ColPp}, rows)
	require.NoError(t, err)

	assert.Equal(t,
		"UPDATE scores AS t SET rank = v.rank, pp = v.pp FROM unnest($1::bigint[], $2::bigint[], $3::double precision[]) AS v(id, rank, pp) WHERE t.id = v.id",
		stmt.sql,
	)
	require.Len(t, stmt.args, 3)
	assert.Equal(t, []int64{1, 2}, stmt.args[0])
	assert.Equal(t, []int64{2, 1}, stmt.args[1])
	assert.Equal(t, []float64{101.5, 250}, stmt.args[2])
}

func TestBuildUpdate_TextKeysAndBools(t *testing.T) {
	stmt, err := buildUpdate(scoring.TableLeaderboards, []string{scoring.ColPlays}, []scoring.RowUpdate{
		{Key: "lb1", Values: map[string]any{scoring.ColPlays: 12}},
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.sql, "$1::text[]")
	assert.Equal(t, []string{"lb1"}, stmt.args[0])

	stmt, err = buildUpdate(scoring.TableScores, []string{scoring.ColQualification}, []scoring.RowUpdate{
		{Key: int64(5), Values: map[string]any{scoring.ColQualification: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, stmt.args[1])
}

func TestBuildUpdate_Rejects(t *testing.T) {
	row := []scoring.RowUpdate{{Key: int64(1), Values: map[string]any{scoring.ColRank: 1}}}

	tests := []struct {
		name    string
		table   string
		columns []string
		rows    []scoring.RowUpdate
		want    error
	}{
		{"unknown table", "students", []string{scoring.ColRank}, row, shared.ErrUnknownTable},
		{"unknown column", scoring.TableScores, []string{"player_id"}, row, shared.ErrUnknownColumn},
		{"fc_pp on extensions", scoring.TableScoreContextExtensions, []string{scoring.ColFcPp}, row, shared.ErrUnknownColumn},
		{"all_contexts_pp on extensions", scoring.TablePlayerContextExtensions, []string{scoring.ColAllContextsPp}, row, shared.ErrUnknownColumn},
		{"no columns", scoring.TableScores, nil, row, shared.ErrUnknownColumn},
		{"missing value", scoring.TableScores, []string{scoring.ColPp}, row, shared.ErrMissingValue},
		{
			"wrong key type", scoring.TableScores, []string{scoring.ColRank},
			[]scoring.RowUpdate{{Key: "1", Values: map[string]any{scoring.ColRank: 1}}},
			shared.ErrInvalidInput,
		},
		{
			"wrong value type", scoring.TableScores, []string{scoring.ColRank},
			[]scoring.RowUpdate{{Key: int64(1), Values: map[string]any{scoring.ColRank: 1.5}}},
			shared.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildUpdate(tt.table, tt.columns, tt.rows)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSchemas_CoverHandlerColumns(t *testing.T) {
	for _, col := range scoring.NormalizedScoreColumns {
		assert.Contains(t, schemas[scoring.TableScores].columns, col)
	}
	for _, c := range scoring.AllContexts {
		tables := scoring.TablesFor(c)
		assert.Contains(t, schemas[tables.Scores].columns, scoring.ColRank)
		assert.Contains(t, schemas[tables.Scores].columns, scoring.ColWeight)
		for _, col := range scoring.PlayerPpColumns {
			assert.Contains(t, schemas[tables.Players].columns, col)
		}
		assert.Contains(t, schemas[tables.Players].columns, scoring.ColCountryRank)
	}
}

func TestMigrations_Ordered(t *testing.T) {
	migrations := Migrations()
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}

func TestIsIntegrityViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	deadlock := &pgconn.PgError{Code: "40P01"}

	assert.True(t, IsIntegrityViolation(unique))
	assert.True(t, IsIntegrityViolation(shared.WrapError("batch", "UpdateColumns", shared.ErrStorage, "update scores", unique)))
	assert.True(t, IsIntegrityViolation(&pgconn.PgError{Code: "23502"}))
	assert.False(t, IsIntegrityViolation(deadlock))
	assert.False(t, IsIntegrityViolation(errors.New("broken pipe")))
}
