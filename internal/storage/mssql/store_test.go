package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"profiler/internal/storage"
)

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

// fakeTx records statements; failOn makes the statement with that prefix fail.
type fakeTx struct {
	stmts      []string
	nargs      []int
	failOn     string
	committed  bool
	rolledBack bool
}

func (f *fakeTx) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	f.stmts = append(f.stmts, q)
	f.nargs = append(f.nargs, len(args))
	if f.failOn != "" && strings.HasPrefix(q, f.failOn) {
		return nil, errors.New("boom")
	}
	return fakeResult{}, nil
}
func (f *fakeTx) Commit() error   { f.committed = true; return nil }
func (f *fakeTx) Rollback() error { f.rolledBack = true; return nil }

type fakeDB struct {
	tx    *fakeTx
	execs []string
}

func (f *fakeDB) ExecContext(_ context.Context, q string, _ ...any) (sql.Result, error) {
	f.execs = append(f.execs, q)
	return fakeResult{}, nil
}
func (f *fakeDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}
func (f *fakeDB) BeginTx(context.Context, *sql.TxOptions) (txConn, error) { return f.tx, nil }
func (f *fakeDB) Close() error                                            { return nil }

func runWith(n int) storage.Run {
	run := storage.Run{ID: "run-1", Profiler: "taxi", StartedAt: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)}
	for i := 0; i < n; i++ {
		run.Records = append(run.Records, storage.Record{
			Rule: "r", DomainID: "d", DomainType: "table",
			Name:  fmt.Sprintf("$parameter.p%d", i),
			Value: i,
		})
	}
	return run
}

func TestSaveRun_ReplacesAndChunks(t *testing.T) {
	tx := &fakeTx{}
	s := &Store{db: &fakeDB{tx: tx}}

	if err := s.SaveRun(context.Background(), runWith(600)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if !tx.committed {
		t.Fatalf("expected commit")
	}
	// delete, insert run, then 600 rows in chunks of 250
	if len(tx.stmts) != 5 {
		t.Fatalf("statements=%d want 5", len(tx.stmts))
	}
	if !strings.HasPrefix(tx.stmts[0], "DELETE FROM [profiler_runs]") {
		t.Fatalf("first statement: %q", tx.stmts[0])
	}
	want := []int{250 * 8, 250 * 8, 100 * 8}
	for i, n := range want {
		if tx.nargs[2+i] != n {
			t.Fatalf("chunk %d args=%d want %d", i, tx.nargs[2+i], n)
		}
		if tx.nargs[2+i] > 2100 {
			t.Fatalf("chunk %d exceeds the parameter limit", i)
		}
	}
}

func TestSaveRun_FailureRollsBack(t *testing.T) {
	tx := &fakeTx{failOn: "INSERT INTO [profiler_parameters]"}
	s := &Store{db: &fakeDB{tx: tx}}

	err := s.SaveRun(context.Background(), runWith(3))
	if err == nil || !strings.Contains(err.Error(), "insert parameters of run run-1") {
		t.Fatalf("unexpected err: %v", err)
	}
	if tx.committed || !tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v", tx.committed, tx.rolledBack)
	}
}

func TestEnsureSchema_IsGuarded(t *testing.T) {
	db := &fakeDB{}
	s := &Store{db: db}
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if len(db.execs) != 2 {
		t.Fatalf("execs=%d want 2", len(db.execs))
	}
	for _, q := range db.execs {
		if !strings.HasPrefix(q, "IF OBJECT_ID(N'profiler_") {
			t.Fatalf("unguarded DDL: %q", q)
		}
	}
	if !strings.Contains(db.execs[1], "[domain_kwargs] NVARCHAR(MAX) NOT NULL") {
		t.Fatalf("parameters DDL: %q", db.execs[1])
	}
}

func TestBuildBulkInsertSQL_Placeholders(t *testing.T) {
	q, args := buildBulkInsertSQL([]storage.Row{{RunID: "a"}, {RunID: "b"}})
	if !strings.Contains(q, "(@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8), (@p9,") {
		t.Fatalf("unexpected statement: %q", q)
	}
	if len(args) != 16 || args[8] != "b" {
		t.Fatalf("args=%v", args)
	}
}

func TestMssqlIdent_Escapes(t *testing.T) {
	if got := mssqlIdent("a]b"); got != "[a]]b]" {
		t.Fatalf("mssqlIdent=%s", got)
	}
}
