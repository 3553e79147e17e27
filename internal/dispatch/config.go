package dispatch

import (
	"log/slog"

	"github.com/duckgrid/duckgrid/internal/config"
	"github.com/duckgrid/duckgrid/internal/reader/duckdb"
	"github.com/duckgrid/duckgrid/internal/reader/sqlite"
)

// NewFromConfig wires both engine readers from cfg. The DuckDB reader is
// returned as well so hosts can warm its extensions.
func NewFromConfig(cfg config.Config, logger *slog.Logger) (*Dispatcher, *duckdb.Reader) {
	relational := sqlite.New(
		sqlite.WithLogger(logger),
		sqlite.WithQueryLimit(cfg.Reader.QueryDefaultLimit),
	)
	analytics := duckdb.New(
		duckdb.WithLogger(logger),
		duckdb.WithExtensionDirectory(cfg.DuckDB.ExtensionDirectory),
		duckdb.WithQueryGuard(cfg.DuckDB.GuardQueries),
		duckdb.WithQueryRowLimit(cfg.DuckDB.QueryRowLimit),
	)
	d := New(relational, analytics, Options{
		Logger:         logger,
		DefaultLimit:   cfg.Reader.DefaultLimit,
		MaxLimit:       cfg.Reader.MaxLimit,
		QueryLimit:     cfg.Reader.QueryDefaultLimit,
		SheetsFallback: cfg.Reader.SheetsFallback,
	})
	return d, analytics
}
