package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeroinbox/mailsift/constants"
)

// metadataColumns come first in every export, in this fixed order. Domain
// columns follow, sorted by name.
var metadataColumns = []string{
	"email_id",
	"email_subject",
	"email_sender",
	"email_date",
	"email_backup_path",
	"status",
	"extracted",
	"confidence",
	"model_reasoning_before",
	"model_reasoning_after",
	"human_evaluation",
	"human_feedback",
	"processing_timestamp",
}

// columnOrder computes the export header: fixed metadata columns that actually
// occur, then the union of the remaining keys sorted.
func columnOrder(rows []map[string]string) []string {
	present := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			present[k] = true
		}
	}

	var header []string
	meta := map[string]bool{}
	for _, c := range metadataColumns {
		meta[c] = true
		if present[c] {
			header = append(header, c)
		}
	}
	var domain []string
	for k := range present {
		if !meta[k] {
			domain = append(domain, k)
		}
	}
	sort.Strings(domain)
	return append(header, domain...)
}

// ExportCSV writes every stored row of a scope to a UTF-8 CSV file with a BOM,
// so spreadsheet tools pick up the encoding. Rows missing a column get an
// empty cell.
func (l *Ledger) ExportCSV(ctx context.Context, scope constants.Scope, path string) (int, error) {
	rows, err := l.Rows(ctx, scope)
	if err != nil {
		return 0, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create export dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return 0, fmt.Errorf("write bom: %w", err)
	}

	header := columnOrder(rows)
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = row[col]
		}
		if err := w.Write(record); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}

	l.log.Info("ledger.export_csv", "scope", string(scope), "path", path, "rows", len(rows))
	return len(rows), nil
}
