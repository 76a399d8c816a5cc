package rendering

import (
	"encoding/json"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/jonathan/data-augmenter/internal/ingestion"
	"github.com/jonathan/data-augmenter/internal/types"
)

const parquetBatchRows = 1024

// PhysicalType is the storage type chosen for a column
type PhysicalType int

const (
	PhysicalString PhysicalType = iota
	PhysicalDouble
	PhysicalBoolean
)

// ColumnTypes chooses a physical type per column: double when every present
// cell is numeric, boolean when every present cell is a bool, else string.
func ColumnTypes(t *types.Table) []PhysicalType {
	out := make([]PhysicalType, t.NumColumns())
	for c := range out {
		numeric, boolean, present := true, true, 0
		for _, v := range t.Column(c).Values {
			if v.IsMissing() {
				continue
			}
			present++
			if _, ok := v.Float(); !ok {
				numeric = false
			}
			if v.Kind() != types.KindBool {
				boolean = false
			}
		}
		switch {
		case present == 0:
			out[c] = PhysicalString
		case numeric:
			out[c] = PhysicalDouble
		case boolean:
			out[c] = PhysicalBoolean
		default:
			out[c] = PhysicalString
		}
	}
	return out
}

func leafNode(p PhysicalType) parquet.Node {
	switch p {
	case PhysicalDouble:
		return parquet.Leaf(parquet.DoubleType)
	case PhysicalBoolean:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

// WriteParquet writes t as a flat Parquet file with one optional column per
// table column. The original column order is kept in the file metadata.
func WriteParquet(w io.Writer, t *types.Table) error {
	names := t.ColumnNames()
	kinds := ColumnTypes(t)

	group := make(parquet.Group, len(names))
	for c, name := range names {
		group[name] = parquet.Optional(leafNode(kinds[c]))
	}
	schema := parquet.NewSchema("augmented", group)

	// Group fields are laid out in name order; map each table column to its leaf.
	leaf := make(map[string]int, len(names))
	for i, f := range schema.Fields() {
		leaf[f.Name()] = i
	}

	order, err := json.Marshal(names)
	if err != nil {
		return &RenderError{Format: FormatParquet, Message: "failed to encode column order", Cause: err}
	}
	pw := parquet.NewWriter(w, schema, parquet.KeyValueMetadata(ingestion.ColumnOrderKey, string(order)))

	batch := make([]parquet.Row, 0, parquetBatchRows)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.WriteRows(batch); err != nil {
			return &RenderError{Format: FormatParquet, Message: "failed to write rows", Cause: err}
		}
		batch = batch[:0]
		return nil
	}

	for r := 0; r < t.NumRows(); r++ {
		row := make(parquet.Row, len(names))
		for c, name := range names {
			idx := leaf[name]
			row[idx] = parquetValue(t.Cell(r, c), kinds[c]).Level(0, definitionLevel(t.Cell(r, c)), idx)
		}
		batch = append(batch, row)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := pw.Close(); err != nil {
		return &RenderError{Format: FormatParquet, Message: "failed to close writer", Cause: err}
	}
	return nil
}

func definitionLevel(v types.Value) int {
	if v.IsMissing() {
		return 0
	}
	return 1
}

func parquetValue(v types.Value, kind PhysicalType) parquet.Value {
	if v.IsMissing() {
		return parquet.NullValue()
	}
	switch kind {
	case PhysicalDouble:
		f, _ := v.Float()
		return parquet.DoubleValue(f)
	case PhysicalBoolean:
		return parquet.BooleanValue(v.Raw().(bool))
	default:
		return parquet.ByteArrayValue([]byte(v.Text()))
	}
}
