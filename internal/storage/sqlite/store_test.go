package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"profiler/internal/storage"
)

func TestParseSQLiteTime_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "rfc3339nano", in: "2026-01-27T12:17:08.123456789Z", want: time.Date(2026, 1, 27, 12, 17, 8, 123456789, time.UTC)},
		{name: "rfc3339_offset", in: "2026-01-27T13:17:08+01:00", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "sqlite_space_tz", in: "2026-01-27 12:17:08+00:00", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "sqlite_no_tz_assume_utc", in: "2026-01-27 12:17:08", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "empty", in: "  ", wantErr: true},
		{name: "invalid", in: "not-a-time", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSQLiteTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSQLiteTime(%q) err=%v wantErr=%v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Equal(tt.want) {
				t.Fatalf("got=%s want=%s", got, tt.want)
			}
		})
	}
}

func TestFormatSQLiteTime_RoundTrip(t *testing.T) {
	t.Parallel()
	in := time.Date(2026, 1, 27, 12, 17, 8, 123, time.FixedZone("X", 3600))
	got, err := parseSQLiteTime(formatSQLiteTime(in))
	if err != nil {
		t.Fatalf("parseSQLiteTime(formatSQLiteTime()) err=%v", err)
	}
	if !got.Equal(in) {
		t.Fatalf("round trip mismatch: got=%s want=%s", got, in.UTC())
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()
	rows := []storage.Row{{RunID: "r"}, {RunID: "r"}}
	q, args := buildInsertSQL(rows)
	if !strings.HasPrefix(q, `INSERT INTO profiler_parameters ("run_id", "rule_name"`) {
		t.Fatalf("unexpected statement: %q", q)
	}
	if n := strings.Count(q, "?"); n != 16 {
		t.Fatalf("placeholders=%d want 16", n)
	}
	if len(args) != 16 {
		t.Fatalf("args=%d want 16", len(args))
	}
}

func openTemp(t *testing.T) storage.ResultStore {
	t.Helper()
	ctx := context.Background()
	s, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "runs.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	// idempotent
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema (second call): %v", err)
	}
	return s
}

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	run := storage.Run{
		ID:        "run-1",
		Profiler:  "taxi",
		StartedAt: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		Records: []storage.Record{
			{
				Rule: "row_count", DomainID: "d-table", DomainType: "table",
				Name:    "$parameter.row_count_range",
				Value:   map[string]any{"value_range": []any{7000.0, 9000.0}},
				Details: map[string]any{"num_batches": 3},
			},
			{
				Rule: "columns", DomainID: "d-col", DomainType: "column",
				DomainKwargs: map[string]any{"column": "passenger_count"},
				Name:         "$parameter.passenger_count_values",
				Value:        []any{0.0, 1.0, 2.0},
			},
		},
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.LoadParameters(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadParameters: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records=%d want 2", len(got))
	}
	// ordered by rule name
	if got[0].Rule != "columns" || got[1].Rule != "row_count" {
		t.Fatalf("unexpected order: %s, %s", got[0].Rule, got[1].Rule)
	}
	if got[0].DomainKwargs["column"] != "passenger_count" {
		t.Fatalf("domain kwargs=%v", got[0].DomainKwargs)
	}
	if got[1].Details["num_batches"] != 3.0 {
		t.Fatalf("details=%v", got[1].Details)
	}

	// saving again replaces the run
	run.Records = run.Records[:1]
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun (replace): %v", err)
	}
	got, err = s.LoadParameters(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadParameters: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("records after replace=%d want 1", len(got))
	}
}

func TestStore_UnknownRun(t *testing.T) {
	s := openTemp(t)
	_, err := s.LoadParameters(context.Background(), "missing")
	if !errors.Is(err, storage.ErrRunNotFound) {
		t.Fatalf("err=%v want ErrRunNotFound", err)
	}
}

func TestStore_SaveRunBeyondVariableLimit(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	const n = 4200
	run := storage.Run{ID: "wide", Profiler: "wide", StartedAt: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)}
	for i := 0; i < n; i++ {
		run.Records = append(run.Records, storage.Record{
			Rule: "columns", DomainID: fmt.Sprintf("d-%04d", i), DomainType: "column",
			DomainKwargs: map[string]any{"column": fmt.Sprintf("c%04d", i)},
			Name:         "$parameter.value_set",
			Value:        []any{float64(i)},
		})
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.LoadParameters(ctx, "wide")
	if err != nil {
		t.Fatalf("LoadParameters: %v", err)
	}
	if len(got) != n {
		t.Fatalf("records=%d want %d", len(got), n)
	}
	if got[n-1].DomainID != "d-4199" {
		t.Fatalf("last record=%s", got[n-1].DomainID)
	}
}
