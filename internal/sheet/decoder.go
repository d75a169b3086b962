package sheet

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
)

// RowNumberKey is set on every decoded row to its 1-based line number in
// the source sheet (the header is line 1).
const RowNumberKey = "_row"

// ErrNoHeader is returned when the sheet has no header row.
var ErrNoHeader = errors.New("sheet: missing header row")

// Decoder parses spreadsheet bytes into row mappings keyed by header.
type Decoder interface {
	ParseRows(data []byte) ([]map[string]any, error)
}

var zipMagic = []byte("PK\x03\x04")

// ForFile picks a decoder by extension, falling back to sniffing the zip
// signature of xlsx workbooks.
func ForFile(filename string, data []byte) Decoder {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return XLSX{}
	case ".csv", ".txt":
		return CSV{}
	}
	if bytes.HasPrefix(data, zipMagic) {
		return XLSX{}
	}
	return CSV{}
}

// rowFromCells zips header and cells. Blank rows report false.
func rowFromCells(header, cells []string, line int) (map[string]any, bool) {
	row := make(map[string]any, len(header)+1)
	blank := true
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		var v string
		if i < len(cells) {
			v = strings.TrimSpace(cells[i])
		}
		if v != "" {
			blank = false
		}
		row[h] = v
	}
	if blank {
		return nil, false
	}
	row[RowNumberKey] = line
	return row, true
}
