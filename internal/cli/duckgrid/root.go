// Package duckgrid is the local command-line host. It reads files on the
// machine it runs on through the same dispatcher the HTTP host uses.
package duckgrid

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/duckgrid/duckgrid/internal/cli/render"
	"github.com/duckgrid/duckgrid/internal/config"
	"github.com/duckgrid/duckgrid/internal/dispatch"
	"github.com/duckgrid/duckgrid/internal/observability"
)

// Version is set at build time.
var Version = "0.1.0"

type Options struct {
	Lookup config.LookupFunc
	Stdout io.Writer
	Stderr io.Writer
}

// session holds what PersistentPreRunE resolves for every subcommand.
type session struct {
	cfg        config.Config
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	output     string
}

func NewRootCmd(opts Options) *cobra.Command {
	var (
		output  string
		verbose bool
		sess    = &session{}
	)
	lookup := opts.Lookup
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}

	rootCmd := &cobra.Command{
		Use:   "duckgrid",
		Short: "Inspect and query local data files",
		Long: `duckgrid lists, describes, previews and queries local data files.

SQLite databases are read through a read-only SQLite session. Parquet, CSV,
JSON, Excel and Arrow files are read through an in-process DuckDB session.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			if err := render.CheckFormat(output); err != nil {
				return err
			}
			cfg, err := config.Load("duckgrid", lookup)
			if err != nil {
				return err
			}
			if !verbose && cfg.Observability.LogLevel < slog.LevelWarn {
				cfg.Observability.LogLevel = slog.LevelWarn
			}
			cfg.Observability.LogJSON = false

			sess.cfg = cfg
			sess.output = output
			sess.logger = observability.NewLogger(cfg, cmd.ErrOrStderr())
			sess.dispatcher, _ = dispatch.NewFromConfig(cfg, sess.logger)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if opts.Stdout != nil {
		rootCmd.SetOut(opts.Stdout)
	}
	if opts.Stderr != nil {
		rootCmd.SetErr(opts.Stderr)
	}

	rootCmd.PersistentFlags().StringVarP(&output, "format", "f", render.FormatTable, "Output format (table|json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log reader diagnostics to stderr")
	_ = rootCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{render.FormatTable, render.FormatJSON}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newTablesCommand(sess))
	rootCmd.AddCommand(newSheetsCommand(sess))
	rootCmd.AddCommand(newSchemaCommand(sess))
	rootCmd.AddCommand(newPreviewCommand(sess))
	rootCmd.AddCommand(newQueryCommand(sess))
	rootCmd.AddCommand(newDescribeCommand(sess))

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, args []string, opts Options) int {
	rootCmd := NewRootCmd(opts)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}
