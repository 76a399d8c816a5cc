package augmentation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/data-augmenter/internal/types"
)

// MaxTargetRowCount bounds the size of an augmented table.
const MaxTargetRowCount = 10_000_000

// ValidateConfig checks cfg against the source table. Optional fields are
// defaulted before the check.
func ValidateConfig(src *types.Table, cfg types.AugmentationConfig) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &InvalidConfigError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("%s failed %s=%s validation (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()),
			}
		}
		return &InvalidConfigError{Message: err.Error()}
	}
	if src == nil || src.NumRows() == 0 || src.NumColumns() == 0 {
		return &InvalidConfigError{Message: "source table is empty"}
	}
	n := src.NumRows()
	if cfg.TargetRowCount <= n {
		return &InvalidConfigError{
			Field:   "target_row_count",
			Message: fmt.Sprintf("target_row_count must exceed source row count (got %d <= %d)", cfg.TargetRowCount, n),
		}
	}
	if cfg.TargetRowCount > MaxTargetRowCount {
		return &InvalidConfigError{
			Field:   "target_row_count",
			Message: fmt.Sprintf("target_row_count must not exceed %d (got %d)", MaxTargetRowCount, cfg.TargetRowCount),
		}
	}
	return nil
}
