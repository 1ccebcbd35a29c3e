package parser

import (
	"fmt"
	"strings"

	"github.com/visitwise/visitwise/internal/domain/entity"
)

// buildCatalog turns a header plus raw rows into records keyed by the header.
// Cells are kept verbatim; only zero-length rows are dropped.
func buildCatalog(header []string, rows [][]string) ([]string, []entity.MedicineRecord) {
	columns := make([]string, len(header))
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff")
		}
		if col == "" {
			col = fmt.Sprintf("Extra_%d", i)
		}
		columns[i] = col
	}

	records := make([]entity.MedicineRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}

		fields := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(row) {
				fields[col] = row[i]
			} else {
				fields[col] = ""
			}
		}
		// cells past the header keep their position as the key
		for i := len(columns); i < len(row); i++ {
			fields[fmt.Sprintf("Extra_%d", i)] = row[i]
		}
		records = append(records, entity.MedicineRecord{Fields: fields})
	}
	return columns, records
}

// isEmptyRow reports whether every cell is blank
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// dropBlankRows removes the padding rows spreadsheets report between data
func dropBlankRows(rows [][]string) [][]string {
	kept := rows[:0:0]
	for _, row := range rows {
		if !isEmptyRow(row) {
			kept = append(kept, row)
		}
	}
	return kept
}
