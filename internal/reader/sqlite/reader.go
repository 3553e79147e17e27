// Package sqlite reads embedded SQLite database files. Every operation opens
// its own read-only session and closes it before returning.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/duckgrid/duckgrid/internal/reader"
	"github.com/duckgrid/duckgrid/internal/sqlguard"
	"github.com/duckgrid/duckgrid/internal/tabular"

	// pure-Go sqlite driver.
	_ "modernc.org/sqlite"
)

const (
	DefaultQueryLimit = 1000

	listTablesSQL = `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`
	columnsSQL    = `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`
)

// Opener opens a session for one call. The returned handle is closed by the
// reader.
type Opener func(ctx context.Context, path string) (*sql.DB, error)

type Reader struct {
	open       Opener
	logger     *slog.Logger
	queryLimit int
}

type Option func(*Reader)

func WithOpener(open Opener) Option {
	return func(r *Reader) { r.open = open }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) { r.logger = logger }
}

// WithQueryLimit sets the LIMIT appended to ad-hoc queries that have none.
func WithQueryLimit(limit int) Option {
	return func(r *Reader) { r.queryLimit = limit }
}

func New(opts ...Option) *Reader {
	r := &Reader{open: OpenReadOnly, queryLimit: DefaultQueryLimit}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// OpenReadOnly opens path through a read-only file URI.
func OpenReadOnly(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fileURI(path, "ro")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// fileURI builds a SQLite URI for path. The path is percent-escaped so '?',
// '#' and '%' in file names reach SQLite as part of the name; the driver
// splits its own parameters at the first unescaped '?'.
func fileURI(path, mode string) string {
	return (&url.URL{Scheme: "file", OmitHost: true, Path: path, RawQuery: "mode=" + mode}).String()
}

func (r *Reader) ListTables(ctx context.Context, path string) ([]string, error) {
	tables := []string{}
	err := r.withSession(ctx, path, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, listTablesSQL)
		if err != nil {
			return tabular.Engine("list tables", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return tabular.Engine("scan table name", err)
			}
			tables = append(tables, name)
		}
		return tabular.Engine("list tables", rows.Err())
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

func (r *Reader) GetColumns(ctx context.Context, path, table string) ([]tabular.Column, error) {
	var columns []tabular.Column
	err := r.withSession(ctx, path, func(db *sql.DB) error {
		if err := sqlguard.ValidateTableName(ctx, db, table); err != nil {
			return err
		}
		names, types, err := declaredColumns(ctx, db, table)
		if err != nil {
			return err
		}
		columns = make([]tabular.Column, 0, len(names))
		for i, name := range names {
			columns = append(columns, tabular.Column{Name: name, Type: tabular.MapNativeType(tabular.DialectSQLite, types[i])})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return columns, nil
}

func (r *Reader) PreviewTable(ctx context.Context, path, table string, limit, offset int) (tabular.ParsedData, error) {
	if err := reader.CheckWindow(limit, offset); err != nil {
		return tabular.ParsedData{}, err
	}
	var result tabular.ParsedData
	err := r.withSession(ctx, path, func(db *sql.DB) error {
		if err := sqlguard.ValidateTableName(ctx, db, table); err != nil {
			return err
		}
		ident := sqlguard.EscapeIdentifier(table)

		var total int64
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+ident).Scan(&total); err != nil {
			return tabular.Engine("count rows", err)
		}

		names, types, err := declaredColumns(ctx, db, table)
		if err != nil {
			return err
		}
		declared := make(map[string]string, len(names))
		for i, name := range names {
			declared[name] = types[i]
		}

		rows, err := db.QueryContext(ctx, "SELECT * FROM "+ident+" LIMIT ? OFFSET ?", limit, offset)
		if err != nil {
			return tabular.Engine("select rows", err)
		}
		defer func() { _ = rows.Close() }()
		raw, err := reader.ScanAll(rows)
		if err != nil {
			return tabular.Engine("select rows", err)
		}
		raw.NativeTypes = make([]string, len(raw.Names))
		for i, name := range raw.Names {
			raw.NativeTypes[i] = declared[name]
		}

		result = tabular.Assemble(tabular.DialectSQLite, raw, &total, tabular.Page{Limit: limit, Offset: offset}, tabular.Materialize)
		return nil
	})
	if err != nil {
		return tabular.ParsedData{}, err
	}
	return result, nil
}

// Query runs a guarded ad-hoc SELECT. Columns are inferred from the first
// row; an empty result is the canonical empty ParsedData.
func (r *Reader) Query(ctx context.Context, path, sqlText string, limit int) (tabular.ParsedData, error) {
	if err := sqlguard.ValidateQuery(sqlText); err != nil {
		return tabular.ParsedData{}, err
	}
	if limit <= 0 {
		limit = r.queryLimit
	}
	bounded := sqlguard.EnsureLimit(sqlText, limit)

	var result tabular.ParsedData
	err := r.withSession(ctx, path, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, bounded)
		if err != nil {
			return tabular.Engine("execute query", err)
		}
		defer func() { _ = rows.Close() }()
		raw, err := reader.ScanAll(rows)
		if err != nil {
			return tabular.Engine("execute query", err)
		}
		result = tabular.Assemble(tabular.DialectSQLite, raw, nil, tabular.Page{Limit: limit}, tabular.Materialize)
		return nil
	})
	if err != nil {
		return tabular.ParsedData{}, err
	}
	return result, nil
}

func (r *Reader) withSession(ctx context.Context, path string, fn func(db *sql.DB) error) error {
	db, err := r.open(ctx, path)
	if err != nil {
		return tabular.Engine("open database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			r.logger.Warn("close sqlite session", slog.String("path", path), slog.Any("error", err))
		}
	}()
	return fn(db)
}

func declaredColumns(ctx context.Context, db *sql.DB, table string) ([]string, []string, error) {
	rows, err := db.QueryContext(ctx, columnsSQL, table)
	if err != nil {
		return nil, nil, tabular.Engine("read column metadata", err)
	}
	defer func() { _ = rows.Close() }()

	var names, types []string
	for rows.Next() {
		var name string
		var declared sql.NullString
		if err := rows.Scan(&name, &declared); err != nil {
			return nil, nil, tabular.Engine("scan column metadata", err)
		}
		names = append(names, name)
		types = append(types, declared.String)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, tabular.Engine("read column metadata", err)
	}
	return names, types, nil
}
