// Package tabular holds the data model shared by every reader: the column
// type taxonomy, the ParsedData result shape and the error taxonomy.
package tabular

// ColumnType is the closed, display-oriented type taxonomy every native
// engine type is reduced to.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
	TypeDate    ColumnType = "date"
	TypeNull    ColumnType = "null"
	TypeMixed   ColumnType = "mixed"
)

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Row maps a column name to a JSON-serializable scalar.
type Row map[string]any

// ParsedData is the only data contract returned to callers. len(Rows) never
// exceeds the requested limit.
type ParsedData struct {
	Columns   []Column `json:"columns"`
	Rows      []Row    `json:"rows"`
	TotalRows int64    `json:"totalRows"`
	Truncated bool     `json:"truncated"`
}

// Empty returns the canonical empty result.
func Empty() ParsedData {
	return ParsedData{Columns: []Column{}, Rows: []Row{}, TotalRows: 0, Truncated: false}
}

// PreviewOptions selects a window of rows. Table names a table for relational
// sources and a sheet for workbooks; it is ignored elsewhere.
type PreviewOptions struct {
	Limit  int
	Offset int
	Table  string
}

// QueryRequest is validated before any engine session is opened.
type QueryRequest struct {
	Path         string
	SQL          string
	Limit        int
	Offset       int
	TableOrSheet string
}
