package duckgrid

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/duckgrid/duckgrid/internal/cli/render"
	"github.com/duckgrid/duckgrid/internal/format"
	"github.com/duckgrid/duckgrid/internal/tabular"
)

func newTablesCommand(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "tables <file>",
		Short: "List tables, sheets or the query view of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			tables, err := sess.dispatcher.ListTables(cmd.Context(), path)
			if err != nil {
				return err
			}
			return render.Names(cmd.OutOrStdout(), "Tables", tables, sess.output)
		},
	}
}

func newSheetsCommand(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "sheets <workbook>",
		Short: "List the sheets of an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			sheets, err := sess.dispatcher.ListSheets(cmd.Context(), path)
			if err != nil {
				return err
			}
			return render.Names(cmd.OutOrStdout(), "Sheets", sheets, sess.output)
		},
	}
}

func newSchemaCommand(sess *session) *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "schema <file>",
		Short: "Show column names and types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			columns, err := sess.dispatcher.GetSchema(cmd.Context(), path, table)
			if err != nil {
				return err
			}
			return render.Columns(cmd.OutOrStdout(), columns, sess.output)
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "", "Table (databases) or sheet (workbooks)")
	return cmd
}

func newPreviewCommand(sess *session) *cobra.Command {
	var opts tabular.PreviewOptions
	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Show a window of rows",
		Example: `  duckgrid preview data/app.db --table users --limit 20
  duckgrid preview data/events.parquet --offset 100 -f json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			data, err := sess.dispatcher.PreviewData(cmd.Context(), path, opts)
			if err != nil {
				return err
			}
			return render.Data(cmd.OutOrStdout(), data, sess.output)
		},
	}
	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "Table (databases) or sheet (workbooks)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "Rows to return (0 uses the configured default)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Rows to skip")
	return cmd
}

func newQueryCommand(sess *session) *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "query <file> <sql>",
		Short: "Run a read-only SQL query against a file",
		Long: `Run a read-only SQL query against a file.

For SQLite databases the SQL runs against the database's own tables. For every
other format the file is exposed as a view named "data".`,
		Example: `  duckgrid query data/app.db "SELECT name FROM users"
  duckgrid query data/events.csv "SELECT kind, count(*) FROM data GROUP BY 1"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			data, err := sess.dispatcher.RunQuery(cmd.Context(), path, args[1], table)
			if err != nil {
				return err
			}
			return render.Data(cmd.OutOrStdout(), data, sess.output)
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "", "Sheet to expose as the data view (workbooks)")
	return cmd
}

func newDescribeCommand(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <file>",
		Short: "Show format, size and layout of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			stat, err := os.Stat(path)
			if err != nil {
				return err
			}

			f := format.Detect(path)
			keys := []string{"path", "format", "bytes"}
			values := map[string]any{"path": path, "format": f.String(), "bytes": stat.Size()}

			switch f {
			case format.Parquet:
				info, err := format.InspectParquet(path)
				if err != nil {
					return tabular.Engine("describe", err)
				}
				keys = append(keys, "rows", "row_groups", "columns")
				values["rows"] = info.Rows
				values["row_groups"] = info.RowGroups
				values["columns"] = len(info.Columns)
			case format.Unknown:
				return tabular.Unsupported("no reader for %s", filepath.Ext(path))
			default:
				tables, err := sess.dispatcher.ListTables(cmd.Context(), path)
				if err != nil {
					return err
				}
				keys = append(keys, "tables")
				values["tables"] = tables
			}
			return render.Fields(cmd.OutOrStdout(), keys, values, sess.output)
		},
	}
}

func absPath(raw string) (string, error) {
	path, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", raw, err)
	}
	return path, nil
}
