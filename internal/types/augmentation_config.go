package types

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Method selects an augmentation algorithm.
type Method string

const (
	MethodNoiseInjection    Method = "noise_injection"
	MethodBootstrapSampling Method = "bootstrap_sampling"
	MethodInterpolation     Method = "interpolation"
)

// DefaultNoiseLevel is applied when a noise_injection config leaves NoiseLevel unset.
const DefaultNoiseLevel = 0.1

// Bounds of NoiseLevel for noise_injection
const (
	MinNoiseLevel = 0.01
	MaxNoiseLevel = 0.5
)

// Methods returns every supported method in a stable order.
func Methods() []Method {
	return []Method{MethodNoiseInjection, MethodBootstrapSampling, MethodInterpolation}
}

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	for _, known := range Methods() {
		if m == known {
			return true
		}
	}
	return false
}

// Description returns a short human-readable summary of the method.
func (m Method) Description() string {
	switch m {
	case MethodNoiseInjection:
		return "Add Gaussian noise to numeric columns"
	case MethodBootstrapSampling:
		return "Create variations through resampling"
	case MethodInterpolation:
		return "Generate synthetic rows by blending existing data"
	default:
		return ""
	}
}

// AugmentationConfig describes how a table should be grown.
type AugmentationConfig struct {
	Method         Method  `json:"method" yaml:"method" validate:"required,oneof=noise_injection bootstrap_sampling interpolation"`
	TargetRowCount int     `json:"target_row_count" yaml:"target_row_count" validate:"required,gt=0"`
	NoiseLevel     float64 `json:"noise_level,omitempty" yaml:"noise_level,omitempty"` // only read by noise_injection
	Seed           *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// WithDefaults returns a copy with unset optional fields filled in.
func (c AugmentationConfig) WithDefaults() AugmentationConfig {
	if c.Method == MethodNoiseInjection && c.NoiseLevel == 0 {
		c.NoiseLevel = DefaultNoiseLevel
	}
	return c
}

// Validate checks the config fields that do not depend on the source table.
// Field names in the returned validator.ValidationErrors are the JSON names.
func (c *AugmentationConfig) Validate() error {
	return NewValidator().Struct(c)
}

// NewValidator returns a validator that reports fields by their JSON name.
func NewValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterStructValidation(validateNoiseLevel, AugmentationConfig{})
	return validate
}

// validateNoiseLevel bounds NoiseLevel when the method uses it. Other methods
// ignore the field, so any value passes.
func validateNoiseLevel(sl validator.StructLevel) {
	var c AugmentationConfig
	switch v := sl.Current().Interface().(type) {
	case AugmentationConfig:
		c = v
	case *AugmentationConfig:
		c = *v
	default:
		return
	}
	if c.Method != MethodNoiseInjection || c.NoiseLevel == 0 {
		return
	}
	switch {
	case c.NoiseLevel < MinNoiseLevel:
		sl.ReportError(c.NoiseLevel, "noise_level", "NoiseLevel", "gte", "0.01")
	case c.NoiseLevel > MaxNoiseLevel:
		sl.ReportError(c.NoiseLevel, "noise_level", "NoiseLevel", "lte", "0.5")
	}
}
