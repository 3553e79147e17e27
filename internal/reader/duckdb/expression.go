package duckdb

import (
	"strings"

	"github.com/duckgrid/duckgrid/internal/format"
	"github.com/duckgrid/duckgrid/internal/tabular"
)

// Extension names loaded into a session before a read expression can run.
const (
	extensionExcel = "excel"
	extensionArrow = "arrow"
)

// extensionInstallSQL lists the INSTALL statement per extension. Arrow IPC
// support ships as a community extension.
var extensionInstallSQL = map[string]string{
	extensionExcel: "INSTALL excel",
	extensionArrow: "INSTALL arrow FROM community",
}

// Source names one file and, for workbooks, the sheet to read.
type Source struct {
	Path   string
	Format format.FileFormat
	Sheet  string
}

// readExpression returns the table function reading src and the extensions
// it depends on.
func readExpression(src Source) (string, []string, error) {
	path := quoteLiteral(src.Path)
	switch src.Format {
	case format.Parquet:
		return "read_parquet(" + path + ")", nil, nil
	case format.CSV:
		return "read_csv_auto(" + path + ")", nil, nil
	case format.JSON:
		return "read_json_auto(" + path + ")", nil, nil
	case format.Excel:
		if format.IsLegacySpreadsheet(src.Path) {
			return "", nil, tabular.ErrLegacySpreadsheet
		}
		if strings.TrimSpace(src.Sheet) == "" {
			return "read_xlsx(" + path + ")", []string{extensionExcel}, nil
		}
		return "read_xlsx(" + path + ", sheet=" + quoteLiteral(src.Sheet) + ")", []string{extensionExcel}, nil
	case format.Arrow:
		return "read_arrow(" + path + ")", []string{extensionArrow}, nil
	case format.SQLite, format.Unknown:
		return "", nil, tabular.Unsupported("%s files are not read by the analytics engine", src.Format)
	default:
		return "", nil, tabular.Unsupported("format %s", src.Format)
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
