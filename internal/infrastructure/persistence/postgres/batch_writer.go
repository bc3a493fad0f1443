package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/internal/domain/shared"
	"github.com/beatrank/ppcron/pkg/logger"
	"github.com/beatrank/ppcron/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLUMN REGISTRY
// Only registered columns may be written. Values are converted to typed
// slices and joined with unnest, one statement per chunk.
// ══════════════════════════════════════════════════════════════════════════════

type columnKind int

const (
	kindInt columnKind = iota
	kindFloat
	kindBool
	kindText
)

func (k columnKind) arrayType() string {
	switch k {
	case kindInt:
		return "bigint[]"
	case kindFloat:
		return "double precision[]"
	case kindBool:
		return "boolean[]"
	default:
		return "text[]"
	}
}

type tableSchema struct {
	key     columnKind
	columns map[string]columnKind
}

var (
	scoreColumns = map[string]columnKind{
		scoring.ColRank:          kindInt,
		scoring.ColWeight:        kindFloat,
		scoring.ColModifiedScore: kindInt,
		scoring.ColAccuracy:      kindFloat,
		scoring.ColPp:            kindFloat,
		scoring.ColFcPp:          kindFloat,
		scoring.ColBonusPp:       kindFloat,
		scoring.ColPassPP:        kindFloat,
		scoring.ColAccPP:         kindFloat,
		scoring.ColTechPP:        kindFloat,
		scoring.ColQualification: kindBool,
		scoring.ColPriority:      kindInt,
	}

	playerColumns = map[string]columnKind{
		scoring.ColPp:          kindFloat,
		scoring.ColAccPP:       kindFloat,
		scoring.ColTechPP:      kindFloat,
		scoring.ColPassPP:      kindFloat,
		scoring.ColRank:        kindInt,
		scoring.ColCountryRank: kindInt,
	}

	schemas = map[string]tableSchema{
		scoring.TableScores:                  {key: kindInt, columns: scoreColumns},
		scoring.TableScoreContextExtensions:  {key: kindInt, columns: without(scoreColumns, scoring.ColFcPp)},
		scoring.TableLeaderboards:            {key: kindText, columns: map[string]columnKind{scoring.ColPlays: kindInt}},
		scoring.TablePlayers:                 {key: kindText, columns: with(playerColumns, scoring.ColAllContextsPp, kindFloat)},
		scoring.TablePlayerContextExtensions: {key: kindInt, columns: playerColumns},
	}
)

func without(m map[string]columnKind, drop string) map[string]columnKind {
	out := make(map[string]columnKind, len(m))
	for k, v := range m {
		if k != drop {
			out[k] = v
		}
	}
	return out
}

func with(m map[string]columnKind, name string, kind columnKind) map[string]columnKind {
	out := make(map[string]columnKind, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[name] = kind
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH WRITER
// ══════════════════════════════════════════════════════════════════════════════

// DefaultStatementRows bounds the rows sent in one UPDATE statement.
const DefaultStatementRows = 10000

// BatchWriter implements scoring.BatchWriter. All statements of one call run
// in a single transaction, so a batch is written entirely or not at all.
type BatchWriter struct {
	conn          *Connection
	statementRows int
	log           *slog.Logger
}

// NewBatchWriter creates a batch writer. statementRows <= 0 uses the default.
func NewBatchWriter(conn *Connection, statementRows int, log *slog.Logger) *BatchWriter {
	if statementRows <= 0 {
		statementRows = DefaultStatementRows
	}
	return &BatchWriter{
		conn:          conn,
		statementRows: statementRows,
		log:           logger.OrDefault(log).With("component", "batch_writer"),
	}
}

// UpdateColumns writes the given columns of every row, keyed by id.
// Invalid input is reported as a permanent error so it is not retried.
func (w *BatchWriter) UpdateColumns(ctx context.Context, table string, columns []string, rows []scoring.RowUpdate) error {
	if len(rows) == 0 {
		return nil
	}

	var statements []updateStatement
	for from := 0; from < len(rows); from += w.statementRows {
		to := min(from+w.statementRows, len(rows))
		stmt, err := buildUpdate(table, columns, rows[from:to])
		if err != nil {
			return retry.Permanent(err)
		}
		statements = append(statements, stmt)
	}

	ctx, cancel := w.conn.withTimeout(ctx)
	defer cancel()

	err := w.conn.WithTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt.sql, stmt.args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		err = shared.WrapError("batch", "UpdateColumns", shared.ErrStorage, "update "+table, err)
		if IsIntegrityViolation(err) {
			return retry.Permanent(err)
		}
		return err
	}

	w.log.Debug("columns updated", logger.Table(table), "rows", len(rows), "statements", len(statements))
	return nil
}

type updateStatement struct {
	sql  string
	args []any
}

// buildUpdate renders
//
//	UPDATE t SET c = v.c FROM unnest($1::bigint[], $2::...[]) AS v(id, c) WHERE t.id = v.id
//
// with one typed array argument per column.
func buildUpdate(table string, columns []string, rows []scoring.RowUpdate) (updateStatement, error) {
	schema, ok := schemas[table]
	if !ok {
		return updateStatement{}, fmt.Errorf("%w: %s", shared.ErrUnknownTable, table)
	}
	if len(columns) == 0 {
		return updateStatement{}, fmt.Errorf("%w: no columns for %s", shared.ErrUnknownColumn, table)
	}

	kinds := make([]columnKind, len(columns))
	for i, col := range columns {
		kind, ok := schema.columns[col]
		if !ok {
			return updateStatement{}, fmt.Errorf("%w: %s.%s", shared.ErrUnknownColumn, table, col)
		}
		kinds[i] = kind
	}

	keys, err := newArray(schema.key, len(rows))
	if err != nil {
		return updateStatement{}, err
	}
	values := make([]*array, len(columns))
	for i, kind := range kinds {
		values[i], _ = newArray(kind, len(rows))
	}

	for _, row := range rows {
		if err := keys.append(row.Key); err != nil {
			return updateStatement{}, fmt.Errorf("%s key: %w", table, err)
		}
		for i, col := range columns {
			v, ok := row.Values[col]
			if !ok {
				return updateStatement{}, fmt.Errorf("%w: %s.%s for key %v", shared.ErrMissingValue, table, col, row.Key)
			}
			if err := values[i].append(v); err != nil {
				return updateStatement{}, fmt.Errorf("%s.%s: %w", table, col, err)
			}
		}
	}

	var (
		sets    = make([]string, len(columns))
		unnests = make([]string, 0, len(columns)+1)
		aliases = make([]string, 0, len(columns)+1)
		args    = make([]any, 0, len(columns)+1)
	)
	unnests = append(unnests, "$1::"+schema.key.arrayType())
	aliases = append(aliases, "id")
	args = append(args, keys.value())
	for i, col := range columns {
		sets[i] = fmt.Sprintf("%s = v.%s", col, col)
		unnests = append(unnests, fmt.Sprintf("$%d::%s", i+2, kinds[i].arrayType()))
		aliases = append(aliases, col)
		args = append(args, values[i].value())
	}

	sql := fmt.Sprintf(
		"UPDATE %s AS t SET %s FROM unnest(%s) AS v(%s) WHERE t.id = v.id",
		table,
		strings.Join(sets, ", "),
		strings.Join(unnests, ", "),
		strings.Join(aliases, ", "),
	)
	return updateStatement{sql: sql, args: args}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Typed arrays
// ─────────────────────────────────────────────────────────────────────────────

type array struct {
	kind   columnKind
	ints   []int64
	floats []float64
	bools  []bool
	texts  []string
}

func newArray(kind columnKind, capacity int) (*array, error) {
	a := &array{kind: kind}
	switch kind {
	case kindInt:
		a.ints = make([]int64, 0, capacity)
	case kindFloat:
		a.floats = make([]float64, 0, capacity)
	case kindBool:
		a.bools = make([]bool, 0, capacity)
	case kindText:
		a.texts = make([]string, 0, capacity)
	default:
		return nil, fmt.Errorf("%w: column kind %d", shared.ErrInvalidInput, kind)
	}
	return a, nil
}

func (a *array) append(v any) error {
	switch a.kind {
	case kindInt:
		switch n := v.(type) {
		case int:
			a.ints = append(a.ints, int64(n))
		case int32:
			a.ints = append(a.ints, int64(n))
		case int64:
			a.ints = append(a.ints, n)
		default:
			return fmt.Errorf("%w: want integer, got %T", shared.ErrInvalidInput, v)
		}
	case kindFloat:
		switch n := v.(type) {
		case float64:
			a.floats = append(a.floats, n)
		case float32:
			a.floats = append(a.floats, float64(n))
		case int:
			a.floats = append(a.floats, float64(n))
		default:
			return fmt.Errorf("%w: want float, got %T", shared.ErrInvalidInput, v)
		}
	case kindBool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: want bool, got %T", shared.ErrInvalidInput, v)
		}
		a.bools = append(a.bools, b)
	case kindText:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: want string, got %T", shared.ErrInvalidInput, v)
		}
		a.texts = append(a.texts, s)
	}
	return nil
}

func (a *array) value() any {
	switch a.kind {
	case kindInt:
		return a.ints
	case kindFloat:
		return a.floats
	case kindBool:
		return a.bools
	default:
		return a.texts
	}
}
