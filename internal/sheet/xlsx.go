package sheet

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSX decodes the first worksheet of a workbook. Cells are read raw so
// date cells arrive as serial numbers.
type XLSX struct{}

func (XLSX) ParseRows(data []byte) ([]map[string]any, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("sheet: open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	cells, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("sheet: read %s: %w", sheets[0], err)
	}

	// skip leading blank lines before the header
	start := 0
	for start < len(cells) && isBlank(cells[start]) {
		start++
	}
	if start == len(cells) {
		return nil, ErrNoHeader
	}
	header := cells[start]

	var rows []map[string]any
	for i := start + 1; i < len(cells); i++ {
		if row, ok := rowFromCells(header, cells[i], i+1); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
