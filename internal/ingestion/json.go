package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jonathan/data-augmenter/internal/types"
)

// readJSON reads an array of objects, or a stream of objects when stream is set.
// Columns follow the order in which keys are first seen; keys missing from an
// object are null.
func readJSON(r io.Reader, stream bool) (*types.Table, error) {
	format := FormatJSON
	if stream {
		format = FormatNDJSON
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if !stream {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return types.NewTable(nil, nil)
		}
		if err != nil {
			return nil, &ParseError{Format: format, Message: "invalid JSON", Cause: err}
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return nil, &ParseError{Format: format, Message: "expected a top-level array of objects"}
		}
	}

	var (
		names   []string
		index   = map[string]int{}
		records []map[string]types.Value
	)
	for dec.More() {
		rec, keys, err := readObject(dec)
		if err != nil {
			return nil, &ParseError{Format: format, Message: fmt.Sprintf("record %d", len(records)), Cause: err}
		}
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = len(names)
				names = append(names, k)
			}
		}
		records = append(records, rec)
	}
	if !stream {
		if _, err := dec.Token(); err != nil {
			return nil, &ParseError{Format: format, Message: "unterminated array", Cause: err}
		}
	}

	rows := make([][]types.Value, len(records))
	for i, rec := range records {
		row := make([]types.Value, len(names))
		for k, v := range rec {
			row[index[k]] = v
		}
		rows[i] = row
	}
	return buildTable(format, names, rows)
}

// readObject decodes one JSON object, returning its cells and keys in document order
func readObject(dec *json.Decoder) (map[string]types.Value, []string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errors.New("expected an object")
	}

	rec := map[string]types.Value{}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key := normalizeHeader(tok.(string))
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		if _, dup := rec[key]; !dup {
			keys = append(keys, key)
		}
		rec[key] = jsonCell(raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return rec, keys, nil
}

func jsonCell(raw any) types.Value {
	if s, ok := raw.(string); ok {
		return textCell(s)
	}
	return types.ValueOf(raw)
}
