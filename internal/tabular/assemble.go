package tabular

import (
	"math"
	"math/big"
	"strings"
	"time"
)

// maxSafeInteger is the largest integer a JSON consumer using IEEE-754
// doubles can represent exactly.
const maxSafeInteger = 1<<53 - 1

// Coercer turns one native engine value into a JSON-serializable value.
type Coercer func(value any) any

// RawResult is what a reader scanned from an engine: column names in order,
// optional declared types (nil means infer from the first row) and rows.
type RawResult struct {
	Names       []string
	NativeTypes []string
	Rows        [][]any
}

// Page describes the requested window. A zero Limit means the result was not
// paginated.
type Page struct {
	Limit  int
	Offset int
}

// Assemble builds the final ParsedData. When total is nil no true count is
// available: TotalRows is the returned row count and Truncated reports
// whether the window was filled.
func Assemble(dialect Dialect, raw RawResult, total *int64, page Page, coerce Coercer) ParsedData {
	if coerce == nil {
		coerce = Materialize
	}
	inferred := len(raw.NativeTypes) != len(raw.Names)
	if inferred && len(raw.Rows) == 0 {
		return Empty()
	}

	rows := make([]Row, 0, len(raw.Rows))
	for _, values := range raw.Rows {
		row := make(Row, len(raw.Names))
		for i, name := range raw.Names {
			if i < len(values) {
				row[name] = coerce(values[i])
			} else {
				row[name] = nil
			}
		}
		rows = append(rows, row)
	}

	columns := make([]Column, 0, len(raw.Names))
	for i, name := range raw.Names {
		var columnType ColumnType
		if inferred {
			columnType = InferFromValue(rows[0][name])
		} else {
			columnType = MapNativeType(dialect, raw.NativeTypes[i])
		}
		columns = append(columns, Column{Name: name, Type: columnType})
	}

	result := ParsedData{Columns: columns, Rows: rows}
	returned := int64(len(rows))
	if total != nil {
		result.TotalRows = *total
		result.Truncated = int64(page.Offset)+returned < *total
	} else {
		result.TotalRows = returned
		result.Truncated = page.Limit > 0 && returned >= int64(page.Limit)
	}
	return result
}

// Materialize is the engine-neutral coercion: binary payloads become UTF-8
// text, temporal values ISO-8601 strings, and integers outside the safe
// double range become float64.
func Materialize(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case []byte:
		return strings.ToValidUTF8(string(typed), "�")
	case time.Time:
		return FormatTime(typed)
	case *time.Time:
		if typed == nil {
			return nil
		}
		return FormatTime(*typed)
	case int64:
		if typed > maxSafeInteger || typed < -maxSafeInteger {
			return float64(typed)
		}
		return typed
	case uint64:
		if typed > maxSafeInteger {
			return float64(typed)
		}
		return int64(typed)
	case *big.Int:
		return bigIntToNumber(typed)
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return nil
		}
		return typed
	case float32:
		return Materialize(float64(typed))
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = Materialize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = Materialize(item)
		}
		return out
	default:
		return typed
	}
}

// FormatTime renders t as a UTC ISO-8601 timestamp with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// FormatTimeOfDay renders the clock part of t for TIME columns, which carry
// no date.
func FormatTimeOfDay(t time.Time) string {
	return t.UTC().Format("15:04:05.000")
}

func bigIntToNumber(value *big.Int) any {
	if value == nil {
		return nil
	}
	if value.IsInt64() {
		return Materialize(value.Int64())
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	return f
}
