package ingestion

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/jonathan/data-augmenter/internal/types"
)

func readDelimited(r io.Reader, comma rune, format Format) (*types.Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return types.NewTable(nil, nil)
	}
	if err != nil {
		return nil, &ParseError{Format: format, Message: "failed to read header", Cause: err}
	}

	var rows [][]types.Value
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Format: format, Message: "failed to read record", Cause: err}
		}
		row := make([]types.Value, len(record))
		for i, field := range record {
			row[i] = textCell(field)
		}
		rows = append(rows, row)
	}
	return buildTable(format, header, rows)
}
