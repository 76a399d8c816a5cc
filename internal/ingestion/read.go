package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jonathan/data-augmenter/internal/types"
)

// MaxSourceBytes bounds the size of a source file read into memory.
const MaxSourceBytes = 512 << 20

// ReadFile opens path and reads it with the format implied by its extension
func ReadFile(ctx context.Context, path string) (*types.Table, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Read(ctx, f, format)
}

// Read parses r as format. Empty sources yield an empty table rather than an
// error; callers decide whether emptiness is acceptable.
func Read(ctx context.Context, r io.Reader, format Format) (*types.Table, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSourceBytes+1))
	if err != nil {
		return nil, &ParseError{Format: format, Message: "failed to read source", Cause: err}
	}
	if len(data) > MaxSourceBytes {
		return nil, &ParseError{Format: format, Message: fmt.Sprintf("source exceeds %d bytes", MaxSourceBytes)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		return readDelimited(decodeText(data), ',', format)
	case FormatTSV:
		return readDelimited(decodeText(data), '\t', format)
	case FormatJSON:
		return readJSON(decodeText(data), false)
	case FormatNDJSON:
		return readJSON(decodeText(data), true)
	case FormatExcel:
		return readExcel(data)
	case FormatParquet:
		return readParquet(data)
	default:
		return nil, &ParseError{Format: format, Message: "unsupported format"}
	}
}

// decodeText strips a UTF-8 byte order mark and transcodes UTF-16 input
// announced by its BOM.
func decodeText(data []byte) io.Reader {
	return transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// normalizeHeader trims a column name and puts it in Unicode NFC form
func normalizeHeader(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// buildTable converts row-major cells into a table, reporting shape problems as parse errors
func buildTable(format Format, header []string, rows [][]types.Value) (*types.Table, error) {
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = normalizeHeader(h)
	}
	t, err := types.NewTable(names, rows)
	if err != nil {
		return nil, &ParseError{Format: format, Message: "invalid table shape", Cause: err}
	}
	return t, nil
}

// textCell turns a raw text field into a cell; blank fields are null
func textCell(s string) types.Value {
	if strings.TrimSpace(s) == "" {
		return types.Null()
	}
	return types.String(s)
}
