package ingestion

import (
	"bytes"

	"github.com/xuri/excelize/v2"

	"github.com/jonathan/data-augmenter/internal/types"
)

// readExcel reads the first worksheet. The first row is the header; short rows
// are padded with nulls.
func readExcel(data []byte) (*types.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Format: FormatExcel, Message: "failed to open workbook", Cause: err}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return types.NewTable(nil, nil)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Format: FormatExcel, Message: "failed to read sheet " + sheets[0], Cause: err}
	}
	if len(records) == 0 {
		return types.NewTable(nil, nil)
	}

	header := records[0]
	rows := make([][]types.Value, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) > len(header) {
			return nil, &ParseError{Format: FormatExcel, Message: "row has more cells than the header"}
		}
		row := make([]types.Value, len(header))
		for i, field := range record {
			row[i] = textCell(field)
		}
		rows = append(rows, row)
	}
	return buildTable(FormatExcel, header, rows)
}
