// Package format maps file paths to the source formats the readers support.
package format

import (
	"path/filepath"
	"strings"
)

// FileFormat is derived from the file extension alone and never cached.
type FileFormat int

const (
	Unknown FileFormat = iota
	CSV
	JSON
	SQLite
	Parquet
	Excel
	Arrow
)

var extensions = map[string]FileFormat{
	".csv":     CSV,
	".tsv":     CSV,
	".json":    JSON,
	".jsonl":   JSON,
	".ndjson":  JSON,
	".db":      SQLite,
	".sqlite":  SQLite,
	".sqlite3": SQLite,
	".parquet": Parquet,
	".pq":      Parquet,
	".xlsx":    Excel,
	".xlsm":    Excel,
	".xls":     Excel,
	".arrow":   Arrow,
	".feather": Arrow,
	".ipc":     Arrow,
}

// Detect is total: every path maps to exactly one format, Unknown by default.
func Detect(path string) FileFormat {
	if f, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return Unknown
}

// IsLegacySpreadsheet reports pre-XML binary workbooks, which are not ZIP
// containers and cannot be read.
func IsLegacySpreadsheet(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xls")
}

func (f FileFormat) String() string {
	switch f {
	case CSV:
		return "csv"
	case JSON:
		return "json"
	case SQLite:
		return "sqlite"
	case Parquet:
		return "parquet"
	case Excel:
		return "excel"
	case Arrow:
		return "arrow"
	default:
		return "unknown"
	}
}

func (f FileFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}
