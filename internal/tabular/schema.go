package tabular

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Dialect selects the keyword priority used when mapping declared types.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectDuckDB
)

var (
	numberKeywords  = []string{"INT", "BIGINT", "HUGEINT", "REAL", "FLOAT", "DOUBLE", "DECIMAL", "NUMERIC"}
	booleanKeywords = []string{"BOOL"}
	dateKeywords    = []string{"DATE", "TIME", "TIMESTAMP"}
	stringKeywords  = []string{"TEXT", "CHAR", "CLOB", "VARCHAR", "STRING"}
	blobKeywords    = []string{"BLOB", "BYTEA", "BINARY"}

	// DuckDB nested and interval types would otherwise match INT/VARCHAR
	// through their element types.
	duckdbMixedMarkers = []string{"[]", "STRUCT", "MAP(", "UNION(", "INTERVAL"}

	isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

// MapNativeType reduces a declared engine type to the taxonomy by
// case-insensitive substring match. Binary payloads map to string.
func MapNativeType(dialect Dialect, native string) ColumnType {
	upper := strings.ToUpper(strings.TrimSpace(native))
	if upper == "" {
		return TypeMixed
	}
	if dialect == DialectDuckDB && containsAny(upper, duckdbMixedMarkers) {
		return TypeMixed
	}
	switch {
	case containsAny(upper, numberKeywords):
		return TypeNumber
	case containsAny(upper, booleanKeywords):
		return TypeBoolean
	case containsAny(upper, dateKeywords):
		return TypeDate
	case containsAny(upper, stringKeywords):
		return TypeString
	case containsAny(upper, blobKeywords):
		return TypeString
	default:
		return TypeMixed
	}
}

// InferFromValue types a single materialized value, for result sets that
// carry no declared schema.
func InferFromValue(value any) ColumnType {
	switch typed := value.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return TypeNumber
	case string:
		if isoDatePrefix.MatchString(typed) {
			return TypeDate
		}
		return TypeString
	case time.Time:
		return TypeDate
	default:
		return TypeMixed
	}
}

func containsAny(value string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(value, keyword) {
			return true
		}
	}
	return false
}
