package augmentation

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand/v2"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/data-augmenter/internal/types"
)

// DefaultBatchSize is the number of synthetic rows generated per batch.
const DefaultBatchSize = 1000

// seedSource supplies seeds when a config does not pin one.
var seedSource io.Reader = crand.Reader

// Options tune how rows are generated. The zero value is usable.
type Options struct {
	// Workers bounds the number of batches generated concurrently. Defaults to GOMAXPROCS.
	Workers int
	// BatchSize is the number of synthetic rows per batch. Output for a given seed
	// is reproducible only for a fixed BatchSize.
	BatchSize int
	// OnProgress is called after each batch with the number of synthetic rows
	// generated so far. Calls are serialized and done never decreases.
	OnProgress func(done, total int)
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (o Options) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return DefaultBatchSize
}

// Func is the shared signature of every augmentation method.
type Func func(ctx context.Context, src *types.Table, profiles types.Profiles, cfg types.AugmentationConfig, opts Options) (*types.Table, error)

var methods = map[types.Method]Func{
	types.MethodNoiseInjection:    NoiseInjection,
	types.MethodBootstrapSampling: BootstrapSampling,
	types.MethodInterpolation:     Interpolation,
}

// Lookup returns the implementation of m.
func Lookup(m types.Method) (Func, bool) {
	fn, ok := methods[m]
	return fn, ok
}

// Augment validates cfg and runs the selected method. The result has exactly
// cfg.TargetRowCount rows and begins with the rows of src in their original order.
func Augment(ctx context.Context, src *types.Table, profiles types.Profiles, cfg types.AugmentationConfig, opts Options) (*types.Table, error) {
	fn, ok := Lookup(cfg.Method)
	if !ok {
		return nil, &InvalidConfigError{Field: "method", Message: fmt.Sprintf("unknown augmentation method %q", cfg.Method)}
	}
	return fn(ctx, src, profiles, cfg, opts)
}

// rowFiller writes synthetic row r into cols using rng as its only source of randomness.
type rowFiller func(rng *rand.Rand, cols [][]types.Value, r int)

func resolveSeed(cfg types.AugmentationConfig) (uint64, error) {
	if cfg.Seed != nil {
		return *cfg.Seed, nil
	}
	var buf [8]byte
	if _, err := io.ReadFull(seedSource, buf[:]); err != nil {
		return 0, &EngineError{Message: "unable to seed random source", Cause: err}
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// generate copies src into the head of a table of cfg.TargetRowCount rows and fills
// the remaining rows batch by batch. Batch b draws from PCG(seed, b).
func generate(ctx context.Context, src *types.Table, cfg types.AugmentationConfig, opts Options, fill rowFiller) (*types.Table, error) {
	seed, err := resolveSeed(cfg)
	if err != nil {
		return nil, err
	}

	n := src.NumRows()
	target := cfg.TargetRowCount
	cols := make([][]types.Value, src.NumColumns())
	for c := range cols {
		cols[c] = make([]types.Value, target)
		copy(cols[c], src.Column(c).Values)
	}

	total := target - n
	size := opts.batchSize()
	batches := (total + size - 1) / size

	var (
		mu   sync.Mutex
		done int
	)
	report := func(k int) {
		if opts.OnProgress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done += k
		opts.OnProgress(done, total)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for b := 0; b < batches; b++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seed, uint64(b)))
			start := n + b*size
			end := min(start+size, target)
			for r := start; r < end; r++ {
				fill(rng, cols, r)
			}
			report(end - start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("augmentation interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("augmentation interrupted: %w", err)
	}

	out, err := types.FromColumns(src.ColumnNames(), cols)
	if err != nil {
		return nil, &EngineError{Message: "failed to assemble augmented table", Cause: err}
	}
	return out, nil
}

func copyRow(src *types.Table, from int, cols [][]types.Value, r int) {
	for c := range cols {
		cols[c][r] = src.Cell(from, c)
	}
}

func numericColumns(src *types.Table, profiles types.Profiles) []*types.NumericStats {
	stats := make([]*types.NumericStats, src.NumColumns())
	for c := range stats {
		p, ok := profiles[src.Column(c).Name]
		if ok && p.InferredType == types.ColumnNumeric {
			stats[c] = p.Numeric
		}
	}
	return stats
}
