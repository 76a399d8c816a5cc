// Package storage persists source tables and pipeline outputs.
package storage

import "fmt"

// Error represents an I/O failure talking to the object store
type Error struct {
	Op     string
	Handle string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Handle, e.Cause)
	}
	return fmt.Sprintf("storage %s %s failed", e.Op, e.Handle)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
