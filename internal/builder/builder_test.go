package builder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profiler/internal/datasource"
	"profiler/internal/domain"
	"profiler/internal/execution"
	"profiler/internal/execution/memory"
	"profiler/internal/parameter"
)

// taxiFixture loads three monthly batches of a small trips table.
func taxiFixture(t *testing.T) (*datasource.Catalog, []*datasource.Batch) {
	t.Helper()
	c := datasource.NewCatalog()
	cols := []string{"passenger_count", "pickup_datetime", "trip_distance", "store_and_fwd_flag"}
	b0 := c.Add("taxi", "trips", cols, [][]any{
		{int64(1), "2019-01-15 10:00:00", 1.2, "N"},
		{int64(2), "2019-01-15 10:05:00", 3.4, "N"},
		{int64(3), "2019-01-16 08:30:00", 0.5, "Y"},
	})
	b1 := c.Add("taxi", "trips", cols, [][]any{
		{int64(0), "2019-02-01 00:00:01", 2.0, "N"},
		{int64(1), "2019-02-03 12:00:00", 7.1, "N"},
		{int64(5), "2019-02-03 23:59:59", 4.4, "N"},
	})
	b2 := c.Add("taxi", "trips", cols, [][]any{
		{int64(4), "2019-03-09 17:45:00", 1.0, "Y"},
		{int64(6), "2019-03-10 06:15:00", 9.8, "N"},
		{nil, nil, nil, nil},
	})
	return c, []*datasource.Batch{b0, b1, b2}
}

func taxiDeps(c *datasource.Catalog) Deps {
	return Deps{
		Engine:       memory.New(c),
		Batches:      c,
		BatchRequest: &datasource.Request{Datasource: "taxi", Asset: "trips"},
	}
}

type state struct {
	container  *parameter.Container
	variables  *parameter.Container
	parameters map[string]*parameter.Container
}

func newState(d domain.Domain, vars map[string]any) state {
	c := parameter.NewContainer()
	return state{
		container:  c,
		variables:  parameter.NewVariables(vars),
		parameters: map[string]*parameter.Container{d.ID(): c},
	}
}

func (s state) build(t *testing.T, b ParameterBuilder, d domain.Domain, deps Deps) error {
	t.Helper()
	return BuildParameters(context.Background(), b, s.container, d, s.variables, s.parameters, deps)
}

func (s state) record(t *testing.T, b ParameterBuilder) parameter.Value {
	t.Helper()
	v, err := s.container.Get(b.FullyQualifiedName())
	require.NoError(t, err)
	rec, ok := v.(parameter.Value)
	require.True(t, ok, "got %T", v)
	return rec
}

func TestBuildParameters_NoBatches(t *testing.T) {
	d := domain.Table()
	s := newState(d, nil)
	b := &MetricMultiBatch{Common: Common{Name: "rows"}, MetricName: parameter.Lit("table.row_count")}

	err := s.build(t, b, d, Deps{Engine: execution.EngineFunc(func(context.Context, []execution.Configuration) (map[string]any, error) {
		t.Fatal("engine must not be called")
		return nil, nil
	})})
	require.ErrorIs(t, err, ErrNoBatches)
	assert.Equal(t, 0, s.container.Len())

	b.BatchList = []*datasource.Batch{}
	require.ErrorIs(t, s.build(t, b, d, Deps{}), ErrNoBatches)
}

func TestBuildParameters_BatchListWinsOverRequest(t *testing.T) {
	c, batches := taxiFixture(t)
	d := domain.Table()
	s := newState(d, nil)
	b := &MetricMultiBatch{
		Common: Common{
			Name:         "rows",
			BatchList:    batches[:1],
			BatchRequest: parameter.Lit(map[string]any{"datasource_name": "taxi", "data_asset_name": "trips"}),
		},
		MetricName: parameter.Lit("table.row_count"),
	}
	require.NoError(t, s.build(t, b, d, taxiDeps(c)))

	rec := s.record(t, b)
	assert.Equal(t, []any{int64(3)}, rec.Value)
	assert.Equal(t, 1, rec.Details[DetailNumBatches])
}

func TestBuildParameters_BatchRequestFromVariables(t *testing.T) {
	c, _ := taxiFixture(t)
	d := domain.Table()
	s := newState(d, map[string]any{
		"batch_request": map[string]any{
			"datasource_name": "taxi",
			"data_asset_name": "trips",
			"indices":         []any{-1, 0},
		},
	})
	b := &MetricMultiBatch{
		Common:     Common{Name: "rows", BatchRequest: parameter.Ref[map[string]any]("$variables.batch_request")},
		MetricName: parameter.Lit("table.row_count"),
	}
	require.NoError(t, s.build(t, b, d, Deps{Engine: memory.New(c), Batches: c}))
	assert.Equal(t, 2, s.record(t, b).Details[DetailNumBatches])
}

func TestBuildParameters_MissingProvider(t *testing.T) {
	d := domain.Table()
	s := newState(d, nil)
	b := &MetricMultiBatch{
		Common:     Common{Name: "rows", BatchRequest: parameter.Lit(map[string]any{"datasource_name": "taxi", "data_asset_name": "trips"})},
		MetricName: parameter.Lit("table.row_count"),
	}
	require.Error(t, s.build(t, b, d, Deps{}))
}

func TestBuildParameters_FailureLeavesContainerUntouched(t *testing.T) {
	c, _ := taxiFixture(t)
	d := domain.Column("passenger_count")
	s := newState(d, nil)
	deps := taxiDeps(c)

	good := &MetricMultiBatch{Common: Common{Name: "counts"}, MetricName: parameter.Lit("column_values.nonnull.count")}
	require.NoError(t, s.build(t, good, d, deps))
	before := s.record(t, good)

	bad := &MetricMultiBatch{Common: Common{Name: "counts"}, MetricName: parameter.Lit("no.such.metric")}
	err := s.build(t, bad, d, deps)
	require.ErrorIs(t, err, execution.ErrUnknownMetric)
	assert.Equal(t, before, s.record(t, good))

	missing := &NumericMetricRange{
		Common:            Common{Name: "other"},
		MetricName:        parameter.Lit("column.max"),
		FalsePositiveRate: parameter.Ref[float64]("$variables.false_positive_rate"),
	}
	err = s.build(t, missing, d, deps)
	require.ErrorIs(t, err, parameter.ErrParameterNotFound)
	assert.False(t, s.container.Has("$parameter.other"))
}

func TestBuildParameters_BuilderDetailsAreNotOverwritten(t *testing.T) {
	_, batches := taxiFixture(t)
	d := domain.Table()
	s := newState(d, nil)
	b := &stubBuilder{Common: Common{Name: "stub", BatchList: batches}, details: map[string]any{DetailNumBatches: "mine"}}
	require.NoError(t, s.build(t, b, d, Deps{}))
	assert.Equal(t, "mine", s.record(t, b).Details[DetailNumBatches])
	assert.NotContains(t, s.record(t, b).Details, DetailMetricConfiguration)
}

type stubBuilder struct {
	Common
	details map[string]any
}

func (b *stubBuilder) Name() string { return b.Common.Name }

func (b *stubBuilder) Build(context.Context, *Invocation) (any, map[string]any, error) {
	return "v", b.details, nil
}

func TestGetMetrics_FanOutEquivalence(t *testing.T) {
	c, batches := taxiFixture(t)
	d := domain.Column("pickup_datetime")
	engine := memory.New(c)
	newInv := func() *Invocation {
		return &Invocation{Resolver: parameter.Resolver{Domain: d}, Batches: batches, engine: engine}
	}
	ctx := context.Background()
	const metric = "column_values.match_strftime_format.unexpected_count"
	variants := []any{
		map[string]any{"strftime_format": "%Y-%m-%d"},
		map[string]any{"strftime_format": "%Y-%m-%d %H:%M:%S"},
	}

	fanned, err := newInv().GetMetrics(ctx, metric, nil, variants)
	require.NoError(t, err)
	require.True(t, fanned.FanOut)
	require.Len(t, fanned.Attributed, 2)

	for i, vk := range variants {
		single, err := newInv().GetMetrics(ctx, metric, nil, vk)
		require.NoError(t, err)
		assert.False(t, single.FanOut)
		vals, err := single.Values()
		require.NoError(t, err)
		assert.Equal(t, vals, fanned.Attributed[i].Values)
		assert.Equal(t, vk, fanned.Attributed[i].Attributes)
	}

	_, err = fanned.Values()
	assert.Error(t, err)
}

func TestGetMetrics_DomainKwargs(t *testing.T) {
	c, batches := taxiFixture(t)
	d := domain.Column("passenger_count")
	vars := parameter.NewVariables(map[string]any{"other": map[string]any{"column": "trip_distance", "batch_id": "ignored"}})
	inv := &Invocation{Resolver: parameter.Resolver{Domain: d, Variables: vars}, Batches: batches, engine: memory.New(c)}

	res, err := inv.GetMetrics(context.Background(), "column_values.nonnull.count", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"metric_name": "column_values.nonnull.count", "domain_kwargs": map[string]any{"column": "passenger_count"}}, res.Configuration)
	vals, err := res.Values()
	require.NoError(t, err)
	assert.Equal(t, execution.Values{{int64(3)}, {int64(3)}, {int64(2)}}, vals)

	res, err = inv.GetMetrics(context.Background(), "column.max", "$variables.other", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"column": "trip_distance"}, res.Configuration["domain_kwargs"])
	vals, err = res.Values()
	require.NoError(t, err)
	assert.Equal(t, execution.Values{{3.4}, {7.1}, {9.8}}, vals)

	_, ok := inv.singleConfiguration()
	assert.False(t, ok, "two requests were made")
}

func TestGetMetrics_EngineErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	inv := &Invocation{
		Resolver: parameter.Resolver{Domain: domain.Table()},
		Batches:  []*datasource.Batch{datasource.NewBatch("ds", "a", 0, nil, nil)},
		engine: execution.EngineFunc(func(context.Context, []execution.Configuration) (map[string]any, error) {
			return nil, boom
		}),
	}
	_, err := inv.GetMetrics(context.Background(), "table.row_count", nil, nil)
	require.ErrorIs(t, err, boom)
}

func TestMetricMultiBatch(t *testing.T) {
	c, _ := taxiFixture(t)
	d := domain.Column("trip_distance")
	s := newState(d, nil)

	b := &MetricMultiBatch{
		Common:               Common{Name: "max_distance"},
		MetricName:           parameter.Lit("column.max"),
		EnforceNumericMetric: parameter.Lit(true),
	}
	require.NoError(t, s.build(t, b, d, taxiDeps(c)))
	rec := s.record(t, b)
	assert.Equal(t, []float64{3.4, 7.1, 9.8}, rec.Value)
	assert.Equal(t, 3, rec.Details[DetailNumBatches])

	flags := &MetricMultiBatch{
		Common:               Common{Name: "flags"},
		MetricName:           parameter.Lit("column.distinct_values"),
		MetricDomainKwargs:   parameter.Lit[any](map[string]any{"column": "store_and_fwd_flag"}),
		EnforceNumericMetric: parameter.Lit(true),
	}
	require.ErrorIs(t, s.build(t, flags, d, taxiDeps(c)), parameter.ErrTypeMismatch)
}

func TestDecodeBatchRequest(t *testing.T) {
	req, err := DecodeBatchRequest(map[string]any{
		"datasource_name": "taxi",
		"data_asset_name": "trips",
		"indices":         []any{0, 2.0},
		"limit":           1,
	})
	require.NoError(t, err)
	assert.Equal(t, datasource.Request{Datasource: "taxi", Asset: "trips", Indices: []int{0, 2}, Limit: 1}, req)

	_, err = DecodeBatchRequest(map[string]any{"datasource_name": "taxi"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
