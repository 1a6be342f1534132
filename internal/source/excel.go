package source

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/seumter-tools/registry-archiver/internal/address"
)

// ExcelProvider reads addresses out of one column of an xlsx workbook.
// The worklists this tool consumes are maintained by hand in spreadsheets,
// so the reader is forgiving: blank cells are skipped and repeated
// addresses collapse to their first occurrence.
type ExcelProvider struct {
	path   string
	sheet  string
	column string
}

// NewExcelProvider creates a provider for the given workbook. An empty
// sheet name selects the workbook's first sheet. column is the header text
// of the address column.
func NewExcelProvider(path, sheet, column string) *ExcelProvider {
	return &ExcelProvider{path: path, sheet: sheet, column: column}
}

// Load opens the workbook and returns the normalized worklist.
func (p *ExcelProvider) Load(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, p.path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	sheet := p.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrUnavailable, sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q has no rows", ErrUnavailable, sheet)
	}

	want := address.Normalize(p.column)
	col := -1
	for i, header := range rows[0] {
		if address.Normalize(header) == want {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: column %q not found in sheet %q", ErrUnavailable, p.column, sheet)
	}

	raw := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		raw = append(raw, row[col])
	}
	return normalizeList(raw), nil
}
