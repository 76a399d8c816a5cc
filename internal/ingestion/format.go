package ingestion

import (
	"path/filepath"
	"strings"
)

// Format identifies a supported tabular file format
type Format string

const (
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatJSON    Format = "json"
	FormatNDJSON  Format = "ndjson"
	FormatExcel   Format = "xlsx"
	FormatParquet Format = "parquet"
)

var extensions = map[string]Format{
	".csv":     FormatCSV,
	".tsv":     FormatTSV,
	".json":    FormatJSON,
	".ndjson":  FormatNDJSON,
	".jsonl":   FormatNDJSON,
	".xlsx":    FormatExcel,
	".xlsm":    FormatExcel,
	".parquet": FormatParquet,
}

// DetectFormat infers the format from a file name's extension
func DetectFormat(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	return "", &ParseError{Message: "unsupported file type " + quoteExt(ext)}
}

func quoteExt(ext string) string {
	if ext == "" {
		return "(no extension)"
	}
	return `"` + ext + `"`
}
