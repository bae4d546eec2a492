package builder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profiler/internal/domain"
	"profiler/internal/parameter"
)

func valueRange(t *testing.T, rec parameter.Value) []float64 {
	t.Helper()
	m, ok := rec.Value.(map[string]any)
	require.True(t, ok, "got %T", rec.Value)
	r, ok := m["value_range"].([]float64)
	require.True(t, ok, "got %T", m["value_range"])
	require.Len(t, r, 2)
	return r
}

func TestNumericMetricRange_RowCountDetails(t *testing.T) {
	c, _ := taxiFixture(t)
	d := domain.Table()
	s := newState(d, map[string]any{"false_positive_rate": 0.01})

	b := &NumericMetricRange{
		Common:            Common{Name: "row_count_range"},
		MetricName:        parameter.Lit("table.row_count"),
		FalsePositiveRate: parameter.Ref[float64]("$variables.false_positive_rate"),
	}
	require.NoError(t, s.build(t, b, d, taxiDeps(c)))

	rec := s.record(t, b)
	assert.Equal(t, []float64{3, 3}, valueRange(t, rec))
	assert.Equal(t, map[string]any{
		DetailMetricConfiguration: map[string]any{
			"metric_name":   "table.row_count",
			"domain_kwargs": map[string]any{},
		},
		DetailNumBatches: 3,
	}, rec.Details)

	got, err := parameter.ValueByName("$parameter.row_count_range.value.value_range[1]", d, s.variables, s.parameters)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)
}

func TestNumericMetricRange_Idempotent(t *testing.T) {
	c, _ := taxiFixture(t)
	d := domain.Column("trip_distance")
	b := &NumericMetricRange{
		Common:        Common{Name: "max_range"},
		MetricName:    parameter.Lit("column.max"),
		RoundDecimals: parameter.Lit(2),
	}

	s1 := newState(d, nil)
	require.NoError(t, s1.build(t, b, d, taxiDeps(c)))
	first := s1.record(t, b)

	require.NoError(t, s1.build(t, b, d, taxiDeps(c)))
	assert.Equal(t, first, s1.record(t, b))

	s2 := newState(d, nil)
	require.NoError(t, s2.build(t, b, d, taxiDeps(c)))
	assert.Equal(t, first, s2.record(t, b))

	r := valueRange(t, first)
	assert.GreaterOrEqual(t, r[0], 3.4)
	assert.LessOrEqual(t, r[1], 9.8)
	assert.LessOrEqual(t, r[0], r[1])
}

func TestNumericMetricRange_Parametric(t *testing.T) {
	c, _ := taxiFixture(t)
	d := domain.Column("trip_distance")
	s := newState(d, nil)
	b := &NumericMetricRange{
		Common:         Common{Name: "max_range"},
		MetricName:     parameter.Lit("column.max"),
		SamplingMethod: parameter.Lit("PARAMETRIC"),
	}
	require.NoError(t, s.build(t, b, d, taxiDeps(c)))

	xs := []float64{3.4, 7.1, 9.8}
	mean := (xs[0] + xs[1] + xs[2]) / 3
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	std := math.Sqrt(ss / 2)
	const z = 1.959963984540054

	r := valueRange(t, s.record(t, b))
	assert.InDelta(t, mean-z*std, r[0], 1e-9)
	assert.InDelta(t, mean+z*std, r[1], 1e-9)
}

func TestNumericMetricRange_IntegralObservationsRound(t *testing.T) {
	c, _ := taxiFixture(t)
	d := domain.Column("passenger_count")
	s := newState(d, nil)
	b := &NumericMetricRange{
		Common:     Common{Name: "max_range"},
		MetricName: parameter.Lit("column.max"),
	}
	require.NoError(t, s.build(t, b, d, taxiDeps(c)))
	for _, x := range valueRange(t, s.record(t, b)) {
		assert.Equal(t, math.Trunc(x), x)
	}
}

func TestNumericMetricRange_Truncate(t *testing.T) {
	c, _ := taxiFixture(t)
	d := domain.Column("trip_distance")
	s := newState(d, nil)
	b := &NumericMetricRange{
		Common:         Common{Name: "min_range"},
		MetricName:     parameter.Lit("column.min"),
		SamplingMethod: parameter.Lit(SamplingParametric),
		TruncateValues: parameter.Lit(map[string]any{"lower_bound": 0}),
	}
	require.NoError(t, s.build(t, b, d, taxiDeps(c)))
	r := valueRange(t, s.record(t, b))
	assert.Equal(t, 0.0, r[0])
	assert.Greater(t, r[1], 2.0)
}

func TestNumericMetricRange_SingleObservation(t *testing.T) {
	c, batches := taxiFixture(t)
	d := domain.Column("trip_distance")
	for _, method := range []string{SamplingBootstrap, SamplingParametric} {
		s := newState(d, nil)
		b := &NumericMetricRange{
			Common:         Common{Name: "mean_range", BatchList: batches[1:2]},
			MetricName:     parameter.Lit("column.mean"),
			SamplingMethod: parameter.Lit(method),
			RoundDecimals:  parameter.Lit(3),
		}
		require.NoError(t, s.build(t, b, d, taxiDeps(c)), method)
		r := valueRange(t, s.record(t, b))
		assert.Equal(t, r[0], r[1], method)
		assert.InDelta(t, 4.5, r[0], 1e-9, method)
	}
}

func TestNumericMetricRange_InvalidConfig(t *testing.T) {
	c, _ := taxiFixture(t)
	d := domain.Table()
	tests := []struct {
		name string
		b    *NumericMetricRange
	}{
		{"fpr too high", &NumericMetricRange{FalsePositiveRate: parameter.Lit(1.5)}},
		{"fpr zero", &NumericMetricRange{FalsePositiveRate: parameter.Lit(0.0)}},
		{"method", &NumericMetricRange{SamplingMethod: parameter.Lit("magic")}},
		{"samples", &NumericMetricRange{NumBootstrapSamples: parameter.Lit(0)}},
		{"round", &NumericMetricRange{RoundDecimals: parameter.Lit(-1)}},
		{"truncate", &NumericMetricRange{TruncateValues: parameter.Lit(map[string]any{"lower_bound": 2, "upper_bound": 1})}},
		{"metric", &NumericMetricRange{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newState(d, nil)
			tc.b.Common.Name = "r"
			if tc.name != "metric" {
				tc.b.MetricName = parameter.Lit("table.row_count")
			}
			err := s.build(t, tc.b, d, taxiDeps(c))
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Equal(t, 0, s.container.Len())
		})
	}
}

func TestQuantile(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.0, quantile(xs, 0))
	assert.Equal(t, 4.0, quantile(xs, 1))
	assert.InDelta(t, 2.5, quantile(xs, 0.5), 1e-12)
	assert.InDelta(t, 1.075, quantile(xs, 0.025), 1e-12)
	assert.Equal(t, 7.0, quantile([]float64{7}, 0.3))
}
