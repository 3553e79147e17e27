// Package sqlguard hardens the paths where a table name or user SQL is
// interpolated into query text for an engine that cannot bind identifiers.
package sqlguard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/duckgrid/duckgrid/internal/tabular"
)

const catalogLookupSQL = `SELECT name FROM sqlite_master WHERE type='table' AND name = ?`

var (
	// BaseBlocklist applies to every guarded engine.
	BaseBlocklist = []string{"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE", "REPLACE", "ATTACH", "DETACH", "PRAGMA"}

	// DuckDBBlocklist adds the statements through which an in-memory DuckDB
	// session can reach the filesystem or its own configuration.
	DuckDBBlocklist = append(append([]string{}, BaseBlocklist...), "COPY", "EXPORT", "IMPORT", "INSTALL", "LOAD", "SET", "CALL")

	baseBlocked   = blocklistPattern(BaseBlocklist)
	duckdbBlocked = blocklistPattern(DuckDBBlocklist)
	limitClause   = regexp.MustCompile(`(?i)\bLIMIT\b`)
)

// RowQuerier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type RowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ValidateTableName confirms name exists in the catalog through a bound
// parameter. Only names that pass may be interpolated, and only through
// EscapeIdentifier.
func ValidateTableName(ctx context.Context, catalog RowQuerier, name string) error {
	if strings.TrimSpace(name) == "" {
		return tabular.Validation("table name is required")
	}
	var found string
	err := catalog.QueryRowContext(ctx, catalogLookupSQL, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return tabular.NotFound("table %q", name)
	}
	if err != nil {
		return tabular.Engine("look up table", err)
	}
	return nil
}

// EscapeIdentifier double-quotes name and doubles embedded quotes.
func EscapeIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ValidateQuery accepts only statements that start with SELECT and contain
// none of BaseBlocklist as a whole word.
func ValidateQuery(sqlText string) error {
	return validate(sqlText, baseBlocked)
}

// ValidateDuckDBQuery is ValidateQuery with DuckDBBlocklist.
func ValidateDuckDBQuery(sqlText string) error {
	return validate(sqlText, duckdbBlocked)
}

// EnsureLimit appends LIMIT defaultLimit to a SELECT that has no top-level
// LIMIT clause. Any other statement is returned unchanged. The clause goes on
// its own line so a trailing line comment cannot swallow it.
func EnsureLimit(sqlText string, defaultLimit int) string {
	if defaultLimit <= 0 || limitClause.MatchString(topLevelCode(sqlText)) {
		return sqlText
	}
	trimmed := strings.TrimSpace(sqlText)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return sqlText
	}
	return fmt.Sprintf("%s\nLIMIT %d", dropTerminators(trimmed), defaultLimit)
}

// dropTerminators removes statement-ending semicolons, including ones
// followed only by comments.
func dropTerminators(sqlText string) string {
	for {
		code := strings.TrimRight(topLevelCode(sqlText), " \t\r\n")
		if !strings.HasSuffix(code, ";") {
			return strings.TrimSpace(sqlText)
		}
		end := len(code) - 1
		sqlText = sqlText[:end] + sqlText[end+1:]
	}
}

// topLevelCode blanks quoted literals, quoted identifiers, comments and
// anything nested in parentheses, leaving the keywords of the outer
// statement.
func topLevelCode(sqlText string) string {
	out := []byte(sqlText)
	depth := 0
	for i := 0; i < len(out); i++ {
		switch c := out[i]; {
		case c == '\'' || c == '"' || c == '`':
			end := i + 1
			for end < len(out) {
				if out[end] == c {
					if end+1 < len(out) && out[end+1] == c {
						end += 2
						continue
					}
					break
				}
				end++
			}
			i = blank(out, i, end)
		case c == '[':
			end := i + 1
			for end < len(out) && out[end] != ']' {
				end++
			}
			i = blank(out, i, end)
		case c == '-' && i+1 < len(out) && out[i+1] == '-':
			end := i + 2
			for end < len(out) && out[end] != '\n' {
				end++
			}
			i = blank(out, i, end-1)
		case c == '/' && i+1 < len(out) && out[i+1] == '*':
			end := i + 2
			for end+1 < len(out) && (out[end] != '*' || out[end+1] != '/') {
				end++
			}
			i = blank(out, i, end+1)
		case c == '(':
			depth++
			out[i] = ' '
		case c == ')':
			if depth > 0 {
				depth--
			}
			out[i] = ' '
		default:
			if depth > 0 {
				out[i] = ' '
			}
		}
	}
	return string(out)
}

// blank overwrites out[from:to] inclusive, clamped to the buffer, and
// returns the last index written.
func blank(out []byte, from, to int) int {
	if to >= len(out) {
		to = len(out) - 1
	}
	for j := from; j <= to; j++ {
		out[j] = ' '
	}
	return to
}

func validate(sqlText string, blocked *regexp.Regexp) error {
	normalized := strings.ToUpper(strings.TrimSpace(sqlText))
	if normalized == "" {
		return tabular.Validation("sql is required")
	}
	if !strings.HasPrefix(normalized, "SELECT") {
		return tabular.Validation("only SELECT statements are allowed")
	}
	if keyword := blocked.FindString(sqlText); keyword != "" {
		return tabular.Validation("keyword %s is not allowed", strings.ToUpper(keyword))
	}
	return nil
}

func blocklistPattern(keywords []string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(` + strings.Join(keywords, "|") + `)\b`)
}
