// Package augmentation grows a table to a target row count with synthetic rows.
package augmentation

import "fmt"

// InvalidConfigError reports a configuration that cannot be applied to a table.
type InvalidConfigError struct {
	Field   string
	Message string
}

func (e *InvalidConfigError) Error() string {
	return e.Message
}

// EngineError reports an internal failure while generating rows.
type EngineError struct {
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}
