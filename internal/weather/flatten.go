package weather

import (
	"errors"
	"fmt"

	"github.com/i474232898/weather-blob-pipeline/internal/table"
)

const (
	conditionsField  = "weather"
	conditionsPrefix = "weather_"
	separator        = "_"
)

var (
	// ErrNoConditions is returned when the payload carries an empty weather list.
	ErrNoConditions = errors.New("payload has no weather conditions")
	// ErrMissingConditions is returned when the payload has no usable weather field.
	ErrMissingConditions = errors.New("payload has no weather field")
)

// Flatten converts a current-weather payload into a single table row.
//
// Nested objects are flattened with "_" as separator (main.temp becomes
// main_temp). The first element of the weather list is flattened into
// weather_* columns appended after the top-level columns, and the weather
// column itself is dropped. Extra conditions beyond the first are ignored.
func Flatten(payload table.Object) (table.Row, error) {
	raw, ok := payload.Get(conditionsField)
	if !ok {
		return table.Row{}, ErrMissingConditions
	}
	conditions, ok := raw.([]any)
	if !ok {
		return table.Row{}, fmt.Errorf("%w: got %T", ErrMissingConditions, raw)
	}
	if len(conditions) == 0 {
		return table.Row{}, ErrNoConditions
	}
	first, ok := conditions[0].(table.Object)
	if !ok {
		return table.Row{}, fmt.Errorf("weather condition is %T, not an object", conditions[0])
	}

	row := table.FlattenObject(payload, separator)
	row.Drop(conditionsField)
	row.Merge(table.FlattenObject(first, separator).Prefix(conditionsPrefix))

	return row, nil
}
