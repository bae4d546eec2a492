package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"profiler/internal/builder"
	"profiler/internal/domainbuilder"
	"profiler/internal/expectation"
)

func mapping(t *testing.T, src string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(src), &m))
	return m
}

func TestNewParameterBuilder(t *testing.T) {
	b, err := NewParameterBuilder(mapping(t, `
class_name: NumericMetricRangeMultiBatchParameterBuilder
module_name: great_expectations.rule_based_profiler.parameter_builder
name: row_count_range
metric_name: table.row_count
false_positive_rate: $variables.false_positive_rate
num_bootstrap_samples: 1000
`))
	require.NoError(t, err)
	nr, ok := b.(*builder.NumericMetricRange)
	require.True(t, ok)
	assert.Equal(t, "row_count_range", nr.Name())
	assert.Equal(t, "$parameter.row_count_range", nr.FullyQualifiedName())
	assert.True(t, nr.FalsePositiveRate.IsRef())
	assert.Equal(t, 1000, nr.NumBootstrapSamples.Raw())

	b, err = NewParameterBuilder(map[string]any{
		"class_name":        "SimpleDateFormatStringParameterBuilder",
		"name":              "date_format",
		"threshold":         0.9,
		"candidate_strings": []any{"%Y-%m-%d"},
	})
	require.NoError(t, err)
	assert.IsType(t, &builder.SimpleDateFormatString{}, b)
}

func TestNewParameterBuilder_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]any
		want string
	}{
		{"no class", map[string]any{"name": "x"}, "class_name is required"},
		{"unknown class", map[string]any{"class_name": "Nope", "name": "x"}, "unknown builder class"},
		{"missing name", map[string]any{"class_name": "ValueSetMultiBatchParameterBuilder"}, "Name"},
		{"unknown key", map[string]any{"class_name": "ValueSetMultiBatchParameterBuilder", "name": "x", "colum": "a"}, "colum"},
		{"missing metric", map[string]any{"class_name": "MetricMultiBatchParameterBuilder", "name": "x"}, "metric_name is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewParameterBuilder(tc.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
	_, err := NewParameterBuilder(map[string]any{"class_name": "Nope"})
	assert.ErrorIs(t, err, ErrUnknownClass)
	_, err = NewParameterBuilder(map[string]any{"class_name": "MetricMultiBatchParameterBuilder", "name": "x"})
	assert.ErrorIs(t, err, builder.ErrInvalidConfig)
}

func TestNewDomainBuilder(t *testing.T) {
	b, err := NewDomainBuilder(map[string]any{"class_name": "TableDomainBuilder"})
	require.NoError(t, err)
	assert.IsType(t, &domainbuilder.Table{}, b)

	b, err = NewDomainBuilder(mapping(t, `
class_name: CategoricalColumnDomainBuilder
exclude_column_names: [id]
limit_mode: very_few
`))
	require.NoError(t, err)
	cc, ok := b.(*domainbuilder.CategoricalColumn)
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, cc.ExcludeColumnNames.Raw())

	_, err = NewDomainBuilder(map[string]any{"class_name": "CategoricalColumnDomainBuilder", "limit_mode": "LOTS"})
	assert.ErrorIs(t, err, domainbuilder.ErrProfilerConfiguration)

	_, err = NewDomainBuilder(map[string]any{
		"class_name":        "CategoricalColumnDomainBuilder",
		"limit_mode":        "ONE",
		"max_unique_values": 3,
	})
	assert.ErrorIs(t, err, domainbuilder.ErrProfilerConfiguration)
}

func TestNewExpectationBuilder_DefaultClass(t *testing.T) {
	b, err := NewExpectationBuilder(map[string]any{
		"expectation_type": "expect_column_values_to_be_in_set",
		"value_set":        "$parameter.values.value",
	})
	require.NoError(t, err)
	d, ok := b.(*expectation.Default)
	require.True(t, ok)
	assert.Equal(t, "expect_column_values_to_be_in_set", d.ExpectationType)
	assert.True(t, d.Kwargs["value_set"].IsRef())

	_, err = NewExpectationBuilder(map[string]any{"class_name": DefaultExpectationClass})
	assert.ErrorIs(t, err, expectation.ErrMissingType)
}

func TestClassesAndKnown(t *testing.T) {
	assert.Equal(t, []string{
		"MetricMultiBatchParameterBuilder",
		"NumericMetricRangeMultiBatchParameterBuilder",
		"RegexPatternStringParameterBuilder",
		"SimpleDateFormatStringParameterBuilder",
		"ValueSetMultiBatchParameterBuilder",
	}, Classes(KindParameter))
	assert.True(t, Known(KindDomain, "ColumnDomainBuilder"))
	assert.False(t, Known(KindDomain, "ValueSetMultiBatchParameterBuilder"))
	assert.Empty(t, Classes("nope"))
}
