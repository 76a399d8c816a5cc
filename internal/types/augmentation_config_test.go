package types

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAugmentationConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  AugmentationConfig
		wantErr bool
	}{
		{"bootstrap", AugmentationConfig{Method: MethodBootstrapSampling, TargetRowCount: 10}, false},
		{"noise with level", AugmentationConfig{Method: MethodNoiseInjection, TargetRowCount: 10, NoiseLevel: 0.2}, false},
		{"noise without level", AugmentationConfig{Method: MethodNoiseInjection, TargetRowCount: 10}, false},
		{"unknown method", AugmentationConfig{Method: "smote", TargetRowCount: 10}, true},
		{"missing method", AugmentationConfig{TargetRowCount: 10}, true},
		{"zero target", AugmentationConfig{Method: MethodInterpolation}, true},
		{"noise too low", AugmentationConfig{Method: MethodNoiseInjection, TargetRowCount: 10, NoiseLevel: 0.001}, true},
		{"noise too high", AugmentationConfig{Method: MethodNoiseInjection, TargetRowCount: 10, NoiseLevel: 0.9}, true},
		{"level ignored by bootstrap", AugmentationConfig{Method: MethodBootstrapSampling, TargetRowCount: 10, NoiseLevel: 0.9}, false},
		{"level ignored by interpolation", AugmentationConfig{Method: MethodInterpolation, TargetRowCount: 10, NoiseLevel: 0.001}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAugmentationConfig_NoiseLevelField(t *testing.T) {
	type request struct {
		Config AugmentationConfig `json:"config" validate:"required"`
	}
	err := NewValidator().Struct(request{Config: AugmentationConfig{Method: MethodNoiseInjection, TargetRowCount: 10, NoiseLevel: 0.9}})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, strings.HasSuffix(verrs[0].Namespace(), "config.noise_level"), verrs[0].Namespace())
	assert.Equal(t, "lte", verrs[0].Tag())
}

func TestAugmentationConfig_WithDefaults(t *testing.T) {
	cfg := AugmentationConfig{Method: MethodNoiseInjection, TargetRowCount: 5}.WithDefaults()
	assert.Equal(t, DefaultNoiseLevel, cfg.NoiseLevel)

	cfg = AugmentationConfig{Method: MethodBootstrapSampling, TargetRowCount: 5}.WithDefaults()
	assert.Zero(t, cfg.NoiseLevel)
}

func TestMethods(t *testing.T) {
	for _, m := range Methods() {
		assert.True(t, m.Valid())
		assert.NotEmpty(t, m.Description())
	}
	assert.False(t, Method("smote").Valid())
}

func TestStage_IsTerminal(t *testing.T) {
	assert.True(t, StageCompleted.IsTerminal())
	assert.True(t, StageFailed.IsTerminal())
	assert.False(t, StageAugment.IsTerminal())
	assert.False(t, StagePending.IsTerminal())
}
