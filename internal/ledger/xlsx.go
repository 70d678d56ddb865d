package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/zeroinbox/mailsift/constants"
)

// ExportXLSX writes every stored row of a scope to an XLSX workbook with the
// same column order as the CSV export.
func (l *Ledger) ExportXLSX(ctx context.Context, scope constants.Scope, path string) (int, error) {
	rows, err := l.Rows(ctx, scope)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	const sheet = "Records"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return 0, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defIndex, _ := f.GetSheetIndex("Sheet1"); defIndex != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	header := columnOrder(rows)
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, row := range rows {
		for c, col := range header {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, row[col])
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create export dir: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("save xlsx: %w", err)
	}

	l.log.Info("ledger.export_xlsx", "scope", string(scope), "path", path, "rows", len(rows))
	return len(rows), nil
}
