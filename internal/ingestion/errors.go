// Package ingestion reads tabular files (CSV, TSV, JSON, NDJSON, Excel and
// Parquet) into tables.
package ingestion

import "fmt"

// ParseError represents a source that could not be read as a table
type ParseError struct {
	Format  Format
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	prefix := "parse error"
	if e.Format != "" {
		prefix = fmt.Sprintf("parse error (%s)", e.Format)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}
