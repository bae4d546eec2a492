package probe

import (
	"profiler/internal/config"
	"profiler/internal/datasource"
)

// Categorical candidates: at most this many distinct sampled values, and
// either very few of them or at most half as many as values.
const (
	categoricalMaxDistinct = 10
	categoricalMaxRatio    = 0.5
)

// Draft builds a starter profiler configuration for one asset from its
// probe report:
//
//   - table_row_count: a row count range for the table;
//   - numeric_columns: min and max ranges for integer and float columns;
//   - categorical_columns: value sets for low-cardinality columns;
//   - date_columns: the best-fitting strftime format of date columns;
//   - text_columns: the best-fitting regex of the remaining text columns.
//
// Rules without candidate columns are left out.
func Draft(name, format, path string, rep Report) config.Profiler {
	p := config.Profiler{
		Name:          name,
		ConfigVersion: 1,
		Variables: map[string]any{
			"false_positive_rate": 0.05,
			"mostly":              1.0,
		},
		BatchRequest: &datasource.Request{Datasource: name, Asset: name},
		Datasources: []config.Datasource{{
			Name: name,
			Assets: []config.Asset{{
				Name:             name,
				Format:           format,
				Paths:            []string{path},
				NormalizeHeaders: true,
			}},
		}},
		Rules: map[string]config.Rule{
			"table_row_count": {
				DomainBuilder: map[string]any{"class_name": "TableDomainBuilder"},
				ParameterBuilders: []map[string]any{
					numericRange("row_count_range", "table.row_count"),
				},
				ExpectationBuilders: []map[string]any{
					between("expect_table_row_count_to_be_between", "row_count_range"),
				},
			},
		},
	}

	var numeric, categorical, dates, text []string
	for _, c := range rep.Columns {
		if c.NonNull == 0 {
			continue
		}
		isCategorical := c.Type != datasource.TypeFloat && !c.Capped &&
			c.Distinct <= categoricalMaxDistinct &&
			(c.Distinct <= 2 || c.UniqueRatio() <= categoricalMaxRatio)
		if isCategorical {
			categorical = append(categorical, c.Name)
		}
		switch c.Type {
		case datasource.TypeInteger, datasource.TypeFloat:
			numeric = append(numeric, c.Name)
		case datasource.TypeDate, datasource.TypeTimestamp:
			dates = append(dates, c.Name)
		case datasource.TypeText:
			if !isCategorical {
				text = append(text, c.Name)
			}
		}
	}

	if len(numeric) > 0 {
		p.Rules["numeric_columns"] = config.Rule{
			DomainBuilder: columns("ColumnDomainBuilder", numeric),
			ParameterBuilders: []map[string]any{
				numericRange("min_range", "column.min"),
				numericRange("max_range", "column.max"),
			},
			ExpectationBuilders: []map[string]any{
				between("expect_column_min_to_be_between", "min_range"),
				between("expect_column_max_to_be_between", "max_range"),
			},
		}
	}
	if len(categorical) > 0 {
		db := columns("CategoricalColumnDomainBuilder", categorical)
		db["limit_mode"] = "VERY_FEW"
		p.Rules["categorical_columns"] = config.Rule{
			DomainBuilder: db,
			ParameterBuilders: []map[string]any{{
				"class_name": "ValueSetMultiBatchParameterBuilder",
				"name":       "value_set",
			}},
			ExpectationBuilders: []map[string]any{{
				"expectation_type": "expect_column_values_to_be_in_set",
				"value_set":        "$parameter.value_set.value",
				"mostly":           "$variables.mostly",
				"meta":             map[string]any{"profiler_details": "$parameter.value_set.details"},
			}},
		}
	}
	if len(dates) > 0 {
		p.Rules["date_columns"] = config.Rule{
			DomainBuilder: columns("ColumnDomainBuilder", dates),
			ParameterBuilders: []map[string]any{{
				"class_name": "SimpleDateFormatStringParameterBuilder",
				"name":       "date_format",
			}},
			ExpectationBuilders: []map[string]any{{
				"expectation_type": "expect_column_values_to_match_strftime_format",
				"strftime_format":  "$parameter.date_format.value",
				"mostly":           "$parameter.date_format.details.success_ratio",
				"meta":             map[string]any{"profiler_details": "$parameter.date_format.details"},
			}},
		}
	}
	if len(text) > 0 {
		p.Rules["text_columns"] = config.Rule{
			DomainBuilder: columns("ColumnDomainBuilder", text),
			ParameterBuilders: []map[string]any{{
				"class_name": "RegexPatternStringParameterBuilder",
				"name":       "regex",
			}},
			ExpectationBuilders: []map[string]any{{
				"expectation_type": "expect_column_values_to_match_regex",
				"regex":            "$parameter.regex.value",
				"mostly":           "$parameter.regex.details.success_ratio",
				"meta":             map[string]any{"profiler_details": "$parameter.regex.details"},
			}},
		}
	}
	return p
}

func columns(class string, names []string) map[string]any {
	return map[string]any{
		"class_name":           class,
		"include_column_names": append([]string(nil), names...),
	}
}

func numericRange(name, metric string) map[string]any {
	return map[string]any{
		"class_name":          "NumericMetricRangeMultiBatchParameterBuilder",
		"name":                name,
		"metric_name":         metric,
		"false_positive_rate": "$variables.false_positive_rate",
	}
}

func between(expectationType, param string) map[string]any {
	return map[string]any{
		"expectation_type": expectationType,
		"min_value":        "$parameter." + param + ".value.value_range[0]",
		"max_value":        "$parameter." + param + ".value.value_range[1]",
		"meta":             map[string]any{"profiler_details": "$parameter." + param + ".details"},
	}
}
