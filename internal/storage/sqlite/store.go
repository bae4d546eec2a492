package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"profiler/internal/storage"
)

// Store implements storage.ResultStore for SQLite.
//
// SQLite has no native timestamp or JSON column types, so started_at is
// stored as an RFC3339Nano string and payloads as JSON TEXT.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database named by cfg.DSN (a file path, or ":memory:").
func New(ctx context.Context, cfg storage.Config) (storage.ResultStore, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

func schemaSQL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + storage.RunsTable + ` (
	run_id TEXT PRIMARY KEY,
	profiler_name TEXT NOT NULL,
	started_at TEXT NOT NULL,
	record_count INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS ` + storage.ParametersTable + ` (
	run_id TEXT NOT NULL REFERENCES ` + storage.RunsTable + `(run_id) ON DELETE CASCADE,
	rule_name TEXT NOT NULL,
	domain_id TEXT NOT NULL,
	domain_type TEXT NOT NULL,
	domain_kwargs TEXT NOT NULL,
	parameter_name TEXT NOT NULL,
	value TEXT,
	details TEXT,
	PRIMARY KEY (run_id, rule_name, domain_id, parameter_name)
)`,
	}
}

// EnsureSchema creates the result tables if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, q := range schemaSQL() {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("sqlite: ensure schema: %w", err)
		}
	}
	return nil
}

// maxParams stays under SQLite's default limit of 32766 bound variables.
const maxParams = 32000

// SaveRun replaces any earlier copy of run inside one transaction.
func (s *Store) SaveRun(ctx context.Context, run storage.Run) (err error) {
	rows, err := run.Rows()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM `+storage.ParametersTable+` WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("sqlite: clear run %s: %w", run.ID, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM `+storage.RunsTable+` WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("sqlite: clear run %s: %w", run.ID, err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO `+storage.RunsTable+` (run_id, profiler_name, started_at, record_count) VALUES (?, ?, ?, ?)`,
		run.ID, run.Profiler, formatSQLiteTime(run.StartedAt), len(rows),
	); err != nil {
		return fmt.Errorf("sqlite: insert run %s: %w", run.ID, err)
	}

	for _, chunk := range storage.Chunks(rows, maxParams) {
		q, args := buildInsertSQL(chunk)
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("sqlite: insert parameters of run %s: %w", run.ID, err)
		}
	}
	return tx.Commit()
}

// buildInsertSQL builds one multi-row INSERT for the parameter rows.
func buildInsertSQL(rows []storage.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(storage.ParametersTable)
	b.WriteString(" (")
	for i, c := range storage.RowColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	ph := "(" + strings.TrimRight(strings.Repeat("?,", len(storage.RowColumns)), ",") + ")"
	args := make([]any, 0, len(rows)*len(storage.RowColumns))
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ph)
		args = append(args, r.Args()...)
	}
	return b.String(), args
}

// LoadParameters returns the records of run runID.
func (s *Store) LoadParameters(ctx context.Context, runID string) ([]storage.Record, error) {
	var started string
	err := s.db.QueryRowContext(ctx, `SELECT started_at FROM `+storage.RunsTable+` WHERE run_id = ?`, runID).Scan(&started)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: %w: %s", storage.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	if _, err := parseSQLiteTime(started); err != nil {
		return nil, fmt.Errorf("sqlite: run %s: %w", runID, err)
	}

	q := `SELECT rule_name, domain_id, domain_type, domain_kwargs, parameter_name, value, details FROM ` +
		storage.ParametersTable + ` WHERE run_id = ? ORDER BY rule_name, domain_id, parameter_name`
	rs, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var rows []storage.Row
	for rs.Next() {
		r := storage.Row{RunID: runID}
		var value, details sql.NullString
		if err := rs.Scan(&r.Rule, &r.DomainID, &r.DomainType, &r.DomainKwargs, &r.Name, &value, &details); err != nil {
			return nil, err
		}
		r.Value, r.Details = value.String, details.String
		if !value.Valid {
			r.Value = "null"
		}
		rows = append(rows, r)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return storage.Records(rows)
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseSQLiteTime accepts what we write (RFC3339Nano) plus the
// "YYYY-MM-DD HH:MM:SS[+TZ]" form other SQLite tools produce. A value
// without a zone is UTC.
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
	} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
