package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/data-augmenter/internal/ingestion"
	"github.com/jonathan/data-augmenter/internal/observability"
	"github.com/jonathan/data-augmenter/internal/storage"
	"github.com/jonathan/data-augmenter/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Augment a local file end to end",
	Long: `Copy a local table into storage, run one augmentation pipeline on it and print
progress as each stage completes. Outputs are written under --out.`,
	RunE: runRun,
}

var (
	runInputFile  string
	runOutDir     string
	runMethod     string
	runTarget     int
	runNoiseLevel float64
	runSeed       uint64
	runJSON       bool
)

func init() {
	runCmd.Flags().StringVarP(&runInputFile, "in", "i", "", "Path to the source table (csv, tsv, json, ndjson, xlsx, parquet)")
	runCmd.Flags().StringVarP(&runOutDir, "out", "o", "", "Storage root for the copied source and outputs (default: config storage_root)")
	runCmd.Flags().StringVarP(&runMethod, "method", "m", string(types.MethodBootstrapSampling), "Augmentation method")
	runCmd.Flags().IntVarP(&runTarget, "target", "t", 0, "Target row count, must exceed the source row count")
	runCmd.Flags().Float64Var(&runNoiseLevel, "noise-level", 0, "Noise level for noise_injection (0.01-0.5, default 0.1)")
	runCmd.Flags().Uint64Var(&runSeed, "seed", 0, "Random seed for reproducible output")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the final pipeline record as JSON")

	_ = runCmd.MarkFlagRequired("in")
	_ = runCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	augCfg := types.AugmentationConfig{
		Method:         types.Method(runMethod),
		TargetRowCount: runTarget,
		NoiseLevel:     runNoiseLevel,
	}
	if cmd.Flags().Changed("seed") {
		seed := runSeed
		augCfg.Seed = &seed
	}
	if err := augCfg.Validate(); err != nil {
		return fmt.Errorf("invalid augmentation config: %w", err)
	}

	format, err := ingestion.DetectFormat(runInputFile)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runOutDir != "" {
		cfg.StorageRoot = runOutDir
	}
	if !cfg.Verbose {
		cfg.LogLevel = "warn"
	}
	cfg.LogFormat = "console"
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := observability.NewPrinter(os.Stdout)
	done := make(chan struct{})
	var once sync.Once
	observer := func(ev types.ProgressEvent) {
		if !runJSON {
			printer.PrintProgress(ev)
		}
		if ev.IsTerminal() {
			once.Do(func() { close(done) })
		}
	}

	a, err := newApp(ctx, cfg, logger, appOptions{inMemory: true, observer: observer})
	if err != nil {
		return err
	}
	defer a.shutdown(5 * time.Second)

	f, err := os.Open(runInputFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	src, err := a.store.Put(ctx, storage.SourceKey(filepath.Base(runInputFile)), f, string(format))
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("failed to copy input into storage: %w", err)
	}

	id, err := a.service.StartPipeline(ctx, src.Handle, augCfg)
	if err != nil {
		return err
	}

	select {
	case <-done:
	case <-ctx.Done():
		// Interrupted: ask the pipeline to stop at the next stage boundary
		_ = a.service.Cancel(context.Background(), id)
		<-done
	}

	bg := context.Background()
	p, err := a.service.Get(bg, id)
	if err != nil {
		return err
	}
	last, err := a.service.GetProgress(bg, id)
	if err != nil {
		return err
	}

	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("failed to encode pipeline: %w", err)
		}
	} else {
		printer.PrintPipeline(p, last.ResultInfo)
	}

	if p.Stage != types.StageCompleted {
		return fmt.Errorf("pipeline failed: %s", p.ErrorMessage)
	}
	return nil
}
