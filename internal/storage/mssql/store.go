package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"profiler/internal/storage"
)

// Store implements storage.ResultStore for Microsoft SQL Server.
//
// JSON payloads are kept in NVARCHAR(MAX) columns; use OPENJSON or
// JSON_VALUE to query them in place.
//
// Note on driver registration:
//   - This package does NOT blank-import a SQL Server driver. The binary
//     must register the "sqlserver" driver (internal/storage/all does).
type Store struct {
	db dbConn
}

func init() {
	storage.Register("mssql", New)
}

// maxParams stays under SQL Server's limit of 2100 parameters per request.
const maxParams = 2000

// New constructs a Store using database/sql and the "sqlserver" driver.
//
// This method validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.ResultStore, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(8)
	raw.SetMaxIdleConns(8)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Store{db: &sqlDB{db: raw}}, nil
}

// Close releases database resources held by this store.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// buildCreateSQL returns the guarded DDL for both result tables.
func buildCreateSQL() []string {
	return []string{
		wrapCreateIfMissing(storage.RunsTable, `[run_id] NVARCHAR(64) NOT NULL PRIMARY KEY, `+
			`[profiler_name] NVARCHAR(256) NOT NULL, `+
			`[started_at] DATETIMEOFFSET NOT NULL, `+
			`[record_count] INT NOT NULL`),
		wrapCreateIfMissing(storage.ParametersTable, `[run_id] NVARCHAR(64) NOT NULL `+
			`REFERENCES `+mssqlIdent(storage.RunsTable)+`([run_id]) ON DELETE CASCADE, `+
			`[rule_name] NVARCHAR(256) NOT NULL, `+
			`[domain_id] NVARCHAR(64) NOT NULL, `+
			`[domain_type] NVARCHAR(32) NOT NULL, `+
			`[domain_kwargs] NVARCHAR(MAX) NOT NULL, `+
			`[parameter_name] NVARCHAR(400) NOT NULL, `+
			`[value] NVARCHAR(MAX) NULL, `+
			`[details] NVARCHAR(MAX) NULL, `+
			`PRIMARY KEY ([run_id], [rule_name], [domain_id], [parameter_name])`),
	}
}

// wrapCreateIfMissing wraps a CREATE TABLE statement in an OBJECT_ID guard.
//
// This keeps EnsureSchema idempotent without requiring IF NOT EXISTS syntax.
func wrapCreateIfMissing(tableName string, innerDefs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		tableName,
		mssqlIdent(tableName),
		innerDefs,
	)
}

// EnsureSchema creates the result tables if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, q := range buildCreateSQL() {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mssql: ensure schema: %w", err)
		}
	}
	return nil
}

// SaveRun replaces any earlier copy of run inside one transaction.
func (s *Store) SaveRun(ctx context.Context, run storage.Run) error {
	rows, err := run.Rows()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+mssqlIdent(storage.RunsTable)+` WHERE [run_id] = @p1`, run.ID); err != nil {
		return fmt.Errorf("mssql: clear run %s: %w", run.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+mssqlIdent(storage.RunsTable)+` ([run_id], [profiler_name], [started_at], [record_count]) VALUES (@p1, @p2, @p3, @p4)`,
		run.ID, run.Profiler, run.StartedAt.UTC(), len(rows),
	); err != nil {
		return fmt.Errorf("mssql: insert run %s: %w", run.ID, err)
	}

	for _, chunk := range storage.Chunks(rows, maxParams) {
		q, args := buildBulkInsertSQL(chunk)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("mssql: insert parameters of run %s: %w", run.ID, err)
		}
	}
	return tx.Commit()
}

// buildBulkInsertSQL builds one INSERT ... VALUES statement with @pN
// placeholders.
func buildBulkInsertSQL(rows []storage.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlIdent(storage.ParametersTable))
	b.WriteString(" (")
	for i, c := range storage.RowColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(storage.RowColumns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range storage.RowColumns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			p++
		}
		b.WriteString(")")
		args = append(args, row.Args()...)
	}
	b.WriteString(";")
	return b.String(), args
}

// LoadParameters returns the records of run runID.
func (s *Store) LoadParameters(ctx context.Context, runID string) ([]storage.Record, error) {
	exists, err := s.db.QueryContext(ctx, `SELECT 1 FROM `+mssqlIdent(storage.RunsTable)+` WHERE [run_id] = @p1`, runID)
	if err != nil {
		return nil, err
	}
	found := exists.Next()
	if err := errors.Join(exists.Err(), exists.Close()); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("mssql: %w: %s", storage.ErrRunNotFound, runID)
	}

	rs, err := s.db.QueryContext(ctx,
		`SELECT [rule_name], [domain_id], [domain_type], [domain_kwargs], [parameter_name], [value], [details] FROM `+
			mssqlIdent(storage.ParametersTable)+` WHERE [run_id] = @p1 ORDER BY [rule_name], [domain_id], [parameter_name]`, runID)
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

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is a small interface over *sql.Tx used for testability.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// sqlDB wraps *sql.DB to implement dbConn.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// BeginTx begins a transaction and returns a txConn wrapper.
func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var (
	_ dbConn = (*sqlDB)(nil)
	_ txConn = (*sql.Tx)(nil)
)
