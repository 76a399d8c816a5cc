package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/jonathan/data-augmenter/internal/types"
)

// ColumnOrderKey is the key-value metadata entry holding the original column
// order of a table written by this service.
const ColumnOrderKey = "augmenter.column_order"

// readParquet reads a flat Parquet file. Nested or repeated columns are rejected.
func readParquet(data []byte) (*types.Table, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ParseError{Format: FormatParquet, Message: "failed to open file", Cause: err}
	}

	fields := f.Schema().Fields()
	names := make([]string, len(fields))
	for i, field := range fields {
		if !field.Leaf() || field.Repeated() {
			return nil, &ParseError{Format: FormatParquet, Message: "nested or repeated column " + field.Name()}
		}
		names[i] = field.Name()
	}

	var rows [][]types.Value
	reader := parquet.NewReader(f)
	defer func() { _ = reader.Close() }()
	buf := make([]parquet.Row, 256)
	for {
		n, err := reader.ReadRows(buf)
		for _, prow := range buf[:n] {
			row := make([]types.Value, len(names))
			for _, v := range prow {
				if c := v.Column(); c >= 0 && c < len(row) {
					row[c] = parquetCell(v)
				}
			}
			rows = append(rows, row)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Format: FormatParquet, Message: "failed to read rows", Cause: err}
		}
	}

	t, err := buildTable(FormatParquet, names, rows)
	if err != nil {
		return nil, err
	}
	if order, ok := f.Lookup(ColumnOrderKey); ok {
		return reorder(t, order), nil
	}
	return t, nil
}

func parquetCell(v parquet.Value) types.Value {
	if v.IsNull() {
		return types.Null()
	}
	switch v.Kind() {
	case parquet.Boolean:
		return types.Bool(v.Boolean())
	case parquet.Int32:
		return types.Number(float64(v.Int32()))
	case parquet.Int64:
		return types.Number(float64(v.Int64()))
	case parquet.Float:
		return types.Number(float64(v.Float()))
	case parquet.Double:
		return types.Number(v.Double())
	default:
		return textCell(string(v.ByteArray()))
	}
}

// reorder restores the recorded column order. The table is returned unchanged
// if the recorded order does not name exactly its columns.
func reorder(t *types.Table, encoded string) *types.Table {
	var order []string
	if err := json.Unmarshal([]byte(encoded), &order); err != nil || len(order) != t.NumColumns() {
		return t
	}
	cols := make([][]types.Value, len(order))
	for i, name := range order {
		col, ok := t.ColumnByName(name)
		if !ok {
			return t
		}
		cols[i] = col.Values
	}
	out, err := types.FromColumns(order, cols)
	if err != nil {
		return t
	}
	return out
}
