// Package dispatch routes read operations to the reader that understands a
// file's format. It is the only entry point hosts call.
package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/duckgrid/duckgrid/internal/format"
	"github.com/duckgrid/duckgrid/internal/observability"
	"github.com/duckgrid/duckgrid/internal/reader/duckdb"
	"github.com/duckgrid/duckgrid/internal/tabular"
	"github.com/duckgrid/duckgrid/internal/xlsxzip"
)

const (
	DefaultPreviewLimit = 100
	DefaultMaxLimit     = 10000
	DefaultQueryLimit   = 1000
)

type RelationalReader interface {
	ListTables(ctx context.Context, path string) ([]string, error)
	GetColumns(ctx context.Context, path, table string) ([]tabular.Column, error)
	PreviewTable(ctx context.Context, path, table string, limit, offset int) (tabular.ParsedData, error)
	Query(ctx context.Context, path, sqlText string, limit int) (tabular.ParsedData, error)
}

type AnalyticsReader interface {
	GetSchema(ctx context.Context, src duckdb.Source) ([]tabular.Column, error)
	Preview(ctx context.Context, src duckdb.Source, limit, offset int) (tabular.ParsedData, error)
	Query(ctx context.Context, src duckdb.Source, sqlText string) (tabular.ParsedData, error)
}

// SheetLister returns the ordered sheet names of a workbook, or an empty
// list when they cannot be recovered.
type SheetLister func(logger *slog.Logger, path string) []string

type Options struct {
	Logger       *slog.Logger
	DefaultLimit int
	MaxLimit     int
	QueryLimit   int
	// SheetsFallback lets a full workbook parser list sheets when the ZIP
	// extractor finds none.
	SheetsFallback bool
	Sheets         SheetLister
	FallbackSheets SheetLister
}

type Dispatcher struct {
	relational RelationalReader
	analytics  AnalyticsReader
	opts       Options
}

func New(relational RelationalReader, analytics AnalyticsReader, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultPreviewLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = DefaultMaxLimit
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	if opts.QueryLimit <= 0 {
		opts.QueryLimit = DefaultQueryLimit
	}
	if opts.Sheets == nil {
		opts.Sheets = xlsxzip.ReadSheetNames
	}
	if opts.FallbackSheets == nil {
		opts.FallbackSheets = ExcelizeSheetNames
	}
	return &Dispatcher{relational: relational, analytics: analytics, opts: opts}
}

// ListTables lists database tables, workbook sheets, or the single query
// view every other analytics format exposes.
func (d *Dispatcher) ListTables(ctx context.Context, path string) (tables []string, err error) {
	f := format.Detect(path)
	start := time.Now()
	defer func() { observe("list_tables", f, len(tables), start, err) }()

	switch f {
	case format.SQLite:
		return d.relational.ListTables(ctx, path)
	case format.Excel:
		return d.listSheets(path)
	case format.Parquet, format.Arrow, format.CSV, format.JSON:
		return []string{duckdb.QueryView}, nil
	case format.Unknown:
		return nil, unsupported(path)
	default:
		return nil, unsupported(path)
	}
}

func (d *Dispatcher) ListSheets(ctx context.Context, path string) (sheets []string, err error) {
	f := format.Detect(path)
	start := time.Now()
	defer func() { observe("list_sheets", f, len(sheets), start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f != format.Excel {
		return nil, tabular.Unsupported("%s files have no sheets", f)
	}
	return d.listSheets(path)
}

func (d *Dispatcher) GetSchema(ctx context.Context, path, table string) (columns []tabular.Column, err error) {
	f := format.Detect(path)
	start := time.Now()
	defer func() { observe("get_schema", f, len(columns), start, err) }()

	switch f {
	case format.SQLite:
		if strings.TrimSpace(table) == "" {
			return nil, tabular.Validation("table is required for %s files", f)
		}
		return d.relational.GetColumns(ctx, path, table)
	case format.Excel:
		sheet, err := d.resolveSheet(path, table)
		if err != nil {
			return nil, err
		}
		return d.analytics.GetSchema(ctx, duckdb.Source{Path: path, Format: f, Sheet: sheet})
	case format.Parquet, format.Arrow, format.CSV, format.JSON:
		return d.analytics.GetSchema(ctx, duckdb.Source{Path: path, Format: f})
	case format.Unknown:
		return nil, unsupported(path)
	default:
		return nil, unsupported(path)
	}
}

func (d *Dispatcher) PreviewData(ctx context.Context, path string, opts tabular.PreviewOptions) (result tabular.ParsedData, err error) {
	f := format.Detect(path)
	start := time.Now()
	defer func() { observe("preview", f, len(result.Rows), start, err) }()

	if opts.Offset < 0 {
		return tabular.ParsedData{}, tabular.Validation("offset must be >= 0, got %d", opts.Offset)
	}
	limit := d.normalizeLimit(opts.Limit)

	switch f {
	case format.SQLite:
		if strings.TrimSpace(opts.Table) == "" {
			return tabular.ParsedData{}, tabular.Validation("table is required for %s files", f)
		}
		return d.relational.PreviewTable(ctx, path, opts.Table, limit, opts.Offset)
	case format.Excel:
		sheet, err := d.resolveSheet(path, opts.Table)
		if err != nil {
			return tabular.ParsedData{}, err
		}
		return d.analytics.Preview(ctx, duckdb.Source{Path: path, Format: f, Sheet: sheet}, limit, opts.Offset)
	case format.Parquet, format.Arrow, format.CSV, format.JSON:
		return d.analytics.Preview(ctx, duckdb.Source{Path: path, Format: f}, limit, opts.Offset)
	case format.Unknown:
		return tabular.ParsedData{}, unsupported(path)
	default:
		return tabular.ParsedData{}, unsupported(path)
	}
}

// RunQuery executes ad-hoc SQL. Database files are queried directly; every
// other format is exposed as the view "data", with table naming the sheet of
// a workbook.
func (d *Dispatcher) RunQuery(ctx context.Context, path, sqlText, table string) (result tabular.ParsedData, err error) {
	f := format.Detect(path)
	start := time.Now()
	defer func() { observe("query", f, len(result.Rows), start, err) }()

	if strings.TrimSpace(sqlText) == "" {
		return tabular.ParsedData{}, tabular.Validation("sql is required")
	}

	switch f {
	case format.SQLite:
		return d.relational.Query(ctx, path, sqlText, d.opts.QueryLimit)
	case format.Excel:
		sheet, err := d.resolveSheet(path, table)
		if err != nil {
			return tabular.ParsedData{}, err
		}
		return d.analytics.Query(ctx, duckdb.Source{Path: path, Format: f, Sheet: sheet}, sqlText)
	case format.Parquet, format.Arrow, format.CSV, format.JSON:
		return d.analytics.Query(ctx, duckdb.Source{Path: path, Format: f}, sqlText)
	case format.Unknown:
		return tabular.ParsedData{}, unsupported(path)
	default:
		return tabular.ParsedData{}, unsupported(path)
	}
}

// Run executes a QueryRequest: a preview when SQL is empty, a query
// otherwise.
func (d *Dispatcher) Run(ctx context.Context, request tabular.QueryRequest) (tabular.ParsedData, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return d.PreviewData(ctx, request.Path, tabular.PreviewOptions{
			Limit:  request.Limit,
			Offset: request.Offset,
			Table:  request.TableOrSheet,
		})
	}
	return d.RunQuery(ctx, request.Path, request.SQL, request.TableOrSheet)
}

func (d *Dispatcher) normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return d.opts.DefaultLimit
	case limit > d.opts.MaxLimit:
		return d.opts.MaxLimit
	default:
		return limit
	}
}

func (d *Dispatcher) listSheets(path string) ([]string, error) {
	if format.IsLegacySpreadsheet(path) {
		return nil, tabular.ErrLegacySpreadsheet
	}
	sheets := d.opts.Sheets(d.opts.Logger, path)
	if len(sheets) > 0 {
		return sheets, nil
	}
	if !d.opts.SheetsFallback {
		observability.IncrementSheetListDegraded("empty")
		return []string{}, nil
	}

	sheets = d.opts.FallbackSheets(d.opts.Logger, path)
	if len(sheets) == 0 {
		observability.IncrementSheetListDegraded("empty")
		return []string{}, nil
	}
	observability.IncrementSheetListDegraded("fallback")
	d.opts.Logger.Warn("sheet list recovered by workbook fallback",
		slog.String("path", path),
		slog.Int("sheets", len(sheets)),
	)
	return sheets, nil
}

// resolveSheet checks a requested sheet against the workbook's sheet list.
// An empty request picks the first sheet; when no sheets could be listed
// the engine's default sheet is used.
func (d *Dispatcher) resolveSheet(path, requested string) (string, error) {
	sheets, err := d.listSheets(path)
	if err != nil {
		return "", err
	}
	if requested == "" {
		if len(sheets) > 0 {
			return sheets[0], nil
		}
		return "", nil
	}
	if len(sheets) == 0 {
		return requested, nil
	}
	for _, sheet := range sheets {
		if sheet == requested {
			return sheet, nil
		}
	}
	return "", tabular.NotFound("sheet %q", requested)
}

func unsupported(path string) error {
	return tabular.Unsupported("no reader for %q", path)
}

func observe(operation string, f format.FileFormat, rows int, start time.Time, err error) {
	observability.ObserveReadOperation(operation, f.String(), Outcome(err), rows, time.Since(start))
}

// Outcome classifies err into a short label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		return "unsupported"
	case errors.Is(err, tabular.ErrNotFound):
		return "not_found"
	case errors.Is(err, tabular.ErrValidation):
		return "validation"
	case errors.Is(err, tabular.ErrEngine):
		return "engine"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
