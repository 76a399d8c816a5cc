package augmentation

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/jonathan/data-augmenter/internal/types"
)

// NoiseInjection samples base rows uniformly with replacement and perturbs each
// present numeric cell by N(0, noise_level * stddev). Columns with zero spread,
// null cells and non-numeric columns are copied from the base row unchanged.
// Integer-valued columns are rounded after perturbation.
func NoiseInjection(ctx context.Context, src *types.Table, profiles types.Profiles, cfg types.AugmentationConfig, opts Options) (*types.Table, error) {
	cfg.Method = types.MethodNoiseInjection
	cfg = cfg.WithDefaults()
	if err := ValidateConfig(src, cfg); err != nil {
		return nil, err
	}
	n := src.NumRows()
	stats := numericColumns(src, profiles)
	sigma := make([]float64, len(stats))
	for c, st := range stats {
		if st != nil {
			sigma[c] = cfg.NoiseLevel * st.StdDev
		}
	}

	return generate(ctx, src, cfg, opts, func(rng *rand.Rand, cols [][]types.Value, r int) {
		base := rng.IntN(n)
		for c := range cols {
			v := src.Cell(base, c)
			if sigma[c] > 0 {
				if f, ok := v.Float(); ok {
					f += rng.NormFloat64() * sigma[c]
					if stats[c].Integer {
						f = math.Round(f)
					}
					v = types.Number(f)
				}
			}
			cols[c][r] = v
		}
	})
}

// BootstrapSampling fills each synthetic row with a full copy of a source row
// drawn uniformly with replacement.
func BootstrapSampling(ctx context.Context, src *types.Table, _ types.Profiles, cfg types.AugmentationConfig, opts Options) (*types.Table, error) {
	cfg.Method = types.MethodBootstrapSampling
	if err := ValidateConfig(src, cfg); err != nil {
		return nil, err
	}
	n := src.NumRows()
	return generate(ctx, src, cfg, opts, func(rng *rand.Rand, cols [][]types.Value, r int) {
		copyRow(src, rng.IntN(n), cols, r)
	})
}

// Interpolation blends two distinct source rows with a factor t drawn from [0,1).
// Numeric cells become a+(b-a)*t; every other cell, and any numeric pair with a
// null side, is taken from the row nearer to t. A one-row table is copied.
func Interpolation(ctx context.Context, src *types.Table, profiles types.Profiles, cfg types.AugmentationConfig, opts Options) (*types.Table, error) {
	cfg.Method = types.MethodInterpolation
	if err := ValidateConfig(src, cfg); err != nil {
		return nil, err
	}
	n := src.NumRows()
	stats := numericColumns(src, profiles)

	return generate(ctx, src, cfg, opts, func(rng *rand.Rand, cols [][]types.Value, r int) {
		if n == 1 {
			copyRow(src, 0, cols, r)
			return
		}
		i := rng.IntN(n)
		j := rng.IntN(n - 1)
		if j >= i {
			j++
		}
		t := rng.Float64()
		near := i
		if t >= 0.5 {
			near = j
		}
		for c := range cols {
			v := src.Cell(near, c)
			if stats[c] != nil {
				fa, okA := src.Cell(i, c).Float()
				fb, okB := src.Cell(j, c).Float()
				if okA && okB {
					v = types.Number(fa + (fb-fa)*t)
				}
			}
			cols[c][r] = v
		}
	})
}
