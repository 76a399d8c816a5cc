package rendering

import (
	"encoding/csv"
	"io"

	"github.com/jonathan/data-augmenter/internal/types"
)

// FormatCSV and FormatParquet name the supported output formats
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// WriteCSV writes the header and every row of t. Null cells are empty fields.
func WriteCSV(w io.Writer, t *types.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.ColumnNames()); err != nil {
		return &RenderError{Format: FormatCSV, Message: "failed to write header", Cause: err}
	}
	record := make([]string, t.NumColumns())
	for r := 0; r < t.NumRows(); r++ {
		for c := range record {
			record[c] = t.Cell(r, c).Text()
		}
		if err := cw.Write(record); err != nil {
			return &RenderError{Format: FormatCSV, Message: "failed to write row", Cause: err}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return &RenderError{Format: FormatCSV, Message: "failed to flush", Cause: err}
	}
	return nil
}
