// Package duckdb reads Parquet, workbook, Arrow IPC, CSV and JSON files
// through an ephemeral in-memory DuckDB session per call.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/duckgrid/duckgrid/internal/reader"
	"github.com/duckgrid/duckgrid/internal/sqlguard"
	"github.com/duckgrid/duckgrid/internal/tabular"
)

// QueryView is the view ad-hoc SQL runs against.
const QueryView = "data"

type Reader struct {
	logger        *slog.Logger
	extensionDir  string
	guardQueries  bool
	queryRowLimit int

	// mu serializes extension installs, which write to the process-wide
	// extension directory.
	mu        sync.Mutex
	installed map[string]bool
}

type Option func(*Reader)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) { r.logger = logger }
}

// WithExtensionDirectory points every session at a shared extension cache.
func WithExtensionDirectory(dir string) Option {
	return func(r *Reader) { r.extensionDir = dir }
}

// WithQueryGuard applies the SELECT-only keyword blocklist to ad-hoc SQL.
func WithQueryGuard(enabled bool) Option {
	return func(r *Reader) { r.guardQueries = enabled }
}

// WithQueryRowLimit caps ad-hoc results. Zero leaves them unbounded.
func WithQueryRowLimit(limit int) Option {
	return func(r *Reader) { r.queryRowLimit = limit }
}

func New(opts ...Option) *Reader {
	r := &Reader{guardQueries: true, installed: map[string]bool{}}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Warmup installs every optional extension once so later sessions only
// have to LOAD them.
func (r *Reader) Warmup(ctx context.Context) error {
	return r.withSession(ctx, nil, func(db *sql.DB) error {
		for _, name := range []string{extensionExcel, extensionArrow} {
			if err := r.install(ctx, db, name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Reader) GetSchema(ctx context.Context, src Source) ([]tabular.Column, error) {
	expr, extensions, err := readExpression(src)
	if err != nil {
		return nil, err
	}
	var columns []tabular.Column
	err = r.withSession(ctx, extensions, func(db *sql.DB) error {
		names, types, err := describe(ctx, db, expr)
		if err != nil {
			return err
		}
		columns = make([]tabular.Column, 0, len(names))
		for i, name := range names {
			columns = append(columns, tabular.Column{Name: name, Type: tabular.MapNativeType(tabular.DialectDuckDB, types[i])})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return columns, nil
}

func (r *Reader) Count(ctx context.Context, src Source) (int64, error) {
	expr, extensions, err := readExpression(src)
	if err != nil {
		return 0, err
	}
	var total int64
	err = r.withSession(ctx, extensions, func(db *sql.DB) error {
		return count(ctx, db, expr, &total)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *Reader) Preview(ctx context.Context, src Source, limit, offset int) (tabular.ParsedData, error) {
	if err := reader.CheckWindow(limit, offset); err != nil {
		return tabular.ParsedData{}, err
	}
	expr, extensions, err := readExpression(src)
	if err != nil {
		return tabular.ParsedData{}, err
	}

	var result tabular.ParsedData
	err = r.withSession(ctx, extensions, func(db *sql.DB) error {
		var total int64
		if err := count(ctx, db, expr, &total); err != nil {
			return err
		}
		names, types, err := describe(ctx, db, expr)
		if err != nil {
			return err
		}

		rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", expr, limit, offset))
		if err != nil {
			return tabular.Engine("select rows", err)
		}
		defer func() { _ = rows.Close() }()
		raw, err := scan(rows)
		if err != nil {
			return tabular.Engine("select rows", err)
		}
		raw.Names = names
		raw.NativeTypes = types

		result = tabular.Assemble(tabular.DialectDuckDB, raw, &total, tabular.Page{Limit: limit, Offset: offset}, coerceValue)
		return nil
	})
	if err != nil {
		return tabular.ParsedData{}, err
	}
	return result, nil
}

// Query exposes src as the view "data" and runs sqlText against it. The
// result is never paginated, so Truncated is always false.
func (r *Reader) Query(ctx context.Context, src Source, sqlText string) (tabular.ParsedData, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return tabular.ParsedData{}, tabular.Validation("sql is required")
	}
	if r.guardQueries {
		if err := sqlguard.ValidateDuckDBQuery(sqlText); err != nil {
			return tabular.ParsedData{}, err
		}
	}
	expr, extensions, err := readExpression(src)
	if err != nil {
		return tabular.ParsedData{}, err
	}
	if r.queryRowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, r.queryRowLimit)
	}

	var result tabular.ParsedData
	err = r.withSession(ctx, extensions, func(db *sql.DB) error {
		viewSQL := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", quoteIdent(QueryView), expr)
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return tabular.Engine("create view", err)
		}
		rows, err := db.QueryContext(ctx, sqlText)
		if err != nil {
			return tabular.Engine("execute query", err)
		}
		defer func() { _ = rows.Close() }()
		raw, err := scan(rows)
		if err != nil {
			return tabular.Engine("execute query", err)
		}
		raw.NativeTypes = nil
		result = tabular.Assemble(tabular.DialectDuckDB, raw, nil, tabular.Page{}, coerceValue)
		return nil
	})
	if err != nil {
		return tabular.ParsedData{}, err
	}
	return result, nil
}

// withSession opens an in-memory database, loads extensions and closes the
// database when fn returns.
func (r *Reader) withSession(ctx context.Context, extensions []string, fn func(db *sql.DB) error) error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return tabular.Engine("open duckdb", err)
	}
	db.SetMaxOpenConns(1)
	defer func() {
		if err := db.Close(); err != nil {
			r.logger.Warn("close duckdb session", slog.Any("error", err))
		}
	}()

	if r.extensionDir != "" {
		if _, err := db.ExecContext(ctx, "SET extension_directory = "+quoteLiteral(r.extensionDir)); err != nil {
			return tabular.Engine("set extension directory", err)
		}
	}
	for _, name := range extensions {
		if err := r.install(ctx, db, name); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, "LOAD "+name); err != nil {
			return tabular.Engine("load extension "+name, err)
		}
	}
	return fn(db)
}

func (r *Reader) install(ctx context.Context, db *sql.DB, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.installed[name] {
		return nil
	}
	if _, err := db.ExecContext(ctx, extensionInstallSQL[name]); err != nil {
		return tabular.Engine("install extension "+name, err)
	}
	r.installed[name] = true
	r.logger.Info("duckdb extension installed", slog.String("extension", name))
	return nil
}

func count(ctx context.Context, db *sql.DB, expr string, total *int64) error {
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+expr).Scan(total); err != nil {
		return tabular.Engine("count rows", err)
	}
	return nil
}

func describe(ctx context.Context, db *sql.DB, expr string) ([]string, []string, error) {
	rows, err := db.QueryContext(ctx, "DESCRIBE SELECT * FROM "+expr)
	if err != nil {
		return nil, nil, tabular.Engine("describe", err)
	}
	defer func() { _ = rows.Close() }()
	raw, err := reader.ScanAll(rows)
	if err != nil {
		return nil, nil, tabular.Engine("describe", err)
	}

	nameIndex, typeIndex := -1, -1
	for i, column := range raw.Names {
		switch column {
		case "column_name":
			nameIndex = i
		case "column_type":
			typeIndex = i
		}
	}
	if nameIndex < 0 || typeIndex < 0 {
		return nil, nil, tabular.Engine("describe", fmt.Errorf("unexpected describe columns %v", raw.Names))
	}

	names := make([]string, 0, len(raw.Rows))
	types := make([]string, 0, len(raw.Rows))
	for _, values := range raw.Rows {
		names = append(names, fmt.Sprint(values[nameIndex]))
		types = append(types, fmt.Sprint(values[typeIndex]))
	}
	return names, types, nil
}
