package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"profiler/internal/storage"
)

/*
Store implements storage.ResultStore for Postgres.

Payload columns are JSONB, so stored parameters can be queried in place:

	SELECT value->'value_range' FROM profiler_parameters
	WHERE parameter_name = '$parameter.row_count_range';
*/
type Store struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a Postgres-backed Store.
func New(ctx context.Context, cfg storage.Config) (storage.ResultStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// buildCreateSQL returns the DDL for both result tables.
func buildCreateSQL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + storage.RunsTable + ` (
	run_id TEXT PRIMARY KEY,
	profiler_name TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	record_count INTEGER NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS ` + storage.ParametersTable + ` (
	run_id TEXT NOT NULL REFERENCES ` + storage.RunsTable + `(run_id) ON DELETE CASCADE,
	rule_name TEXT NOT NULL,
	domain_id TEXT NOT NULL,
	domain_type TEXT NOT NULL,
	domain_kwargs JSONB NOT NULL,
	parameter_name TEXT NOT NULL,
	value JSONB,
	details JSONB,
	PRIMARY KEY (run_id, rule_name, domain_id, parameter_name)
);`,
	}
}

// EnsureSchema creates the result tables if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, q := range buildCreateSQL() {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

// maxParams stays under the protocol limit of 65535 bind parameters per
// statement.
const maxParams = 65000

// SaveRun replaces any earlier copy of run inside one transaction. The
// parameter rows of the earlier copy go with it through ON DELETE CASCADE.
func (s *Store) SaveRun(ctx context.Context, run storage.Run) error {
	rows, err := run.Rows()
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM `+storage.RunsTable+` WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("postgres: clear run %s: %w", run.ID, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO `+storage.RunsTable+` (run_id, profiler_name, started_at, record_count) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Profiler, run.StartedAt.UTC(), len(rows),
	); err != nil {
		return fmt.Errorf("postgres: insert run %s: %w", run.ID, err)
	}
	for _, chunk := range storage.Chunks(rows, maxParams) {
		q, args := buildInsertSQL(chunk)
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("postgres: insert parameters of run %s: %w", run.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// JSON payloads are cast explicitly so the text args land in JSONB columns.
func buildInsertSQL(rows []storage.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(storage.ParametersTable)
	b.WriteString(" (")
	for i, c := range storage.RowColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(storage.RowColumns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range storage.RowColumns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("$%d", p))
			if jsonColumns[c] {
				b.WriteString("::jsonb")
			}
			p++
		}
		b.WriteString(")")
		args = append(args, row.Args()...)
	}
	b.WriteString(";")
	return b.String(), args
}

var jsonColumns = map[string]bool{"domain_kwargs": true, "value": true, "details": true}

// LoadParameters returns the records of run runID.
func (s *Store) LoadParameters(ctx context.Context, runID string) ([]storage.Record, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM `+storage.RunsTable+` WHERE run_id = $1`, runID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: %w: %s", storage.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	rs, err := s.pool.Query(ctx,
		`SELECT rule_name, domain_id, domain_type, domain_kwargs, parameter_name, value, details FROM `+
			storage.ParametersTable+` WHERE run_id = $1 ORDER BY rule_name, domain_id, parameter_name`, runID)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var rows []storage.Row
	for rs.Next() {
		r := storage.Row{RunID: runID}
		var kwargs, value, details []byte
		if err := rs.Scan(&r.Rule, &r.DomainID, &r.DomainType, &kwargs, &r.Name, &value, &details); err != nil {
			return nil, err
		}
		r.DomainKwargs, r.Value, r.Details = string(kwargs), string(value), string(details)
		if value == nil {
			r.Value = "null"
		}
		rows = append(rows, r)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return storage.Records(rows)
}

// pgIdent quotes an identifier for Postgres.
func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
