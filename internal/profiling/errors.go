// Package profiling infers column types and summary statistics for tables.
package profiling

import "fmt"

// Error is returned when a table cannot be profiled.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}
