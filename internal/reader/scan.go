// Package reader holds what the format-specific readers share.
package reader

import (
	"database/sql"
	"fmt"

	"github.com/duckgrid/duckgrid/internal/tabular"
)

// ScanAll drains rows into a RawResult without declared types.
func ScanAll(rows *sql.Rows) (tabular.RawResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return tabular.RawResult{}, fmt.Errorf("query columns: %w", err)
	}

	result := tabular.RawResult{Names: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return tabular.RawResult{}, fmt.Errorf("scan row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return tabular.RawResult{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// CheckWindow rejects negative pagination before a session is opened.
func CheckWindow(limit, offset int) error {
	if limit < 0 {
		return tabular.Validation("limit must be >= 0, got %d", limit)
	}
	if offset < 0 {
		return tabular.Validation("offset must be >= 0, got %d", offset)
	}
	return nil
}
