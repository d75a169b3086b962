package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSV decodes comma-separated sheets. A leading UTF-8 BOM, as written by
// spreadsheet exports, is ignored.
type CSV struct{}

func (CSV) ParseRows(data []byte) ([]map[string]any, error) {
	cr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("sheet: csv header: %w", err)
	}

	var rows []map[string]any
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sheet: csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if row, ok := rowFromCells(header, rec, line); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
