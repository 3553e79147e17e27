package dispatch

import (
	"log/slog"

	"github.com/xuri/excelize/v2"
)

// ExcelizeSheetNames lists sheets through excelize, which reads the ZIP
// central directory and so handles archives written with data descriptors.
// Failures degrade to an empty list.
func ExcelizeSheetNames(logger *slog.Logger, path string) []string {
	workbook, err := excelize.OpenFile(path)
	if err != nil {
		logger.Warn("sheet extraction degraded",
			slog.String("path", path),
			slog.String("reason", "workbook fallback: "+err.Error()),
		)
		return []string{}
	}
	defer func() {
		if err := workbook.Close(); err != nil {
			logger.Warn("close workbook", slog.String("path", path), slog.Any("error", err))
		}
	}()

	sheets := workbook.GetSheetList()
	if sheets == nil {
		return []string{}
	}
	return sheets
}
