package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/data-augmenter/internal/ingestion"
	"github.com/jonathan/data-augmenter/internal/observability"
	"github.com/jonathan/data-augmenter/internal/profiling"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the column profiles of a table",
	Long:  "Read a local table and print its inferred column types and statistics.",
	RunE:  runProfile,
}

var (
	profileInputFile string
	profileJSON      bool
)

func init() {
	profileCmd.Flags().StringVarP(&profileInputFile, "in", "i", "", "Path to the table to profile")
	profileCmd.Flags().BoolVar(&profileJSON, "json", false, "Print the summary as JSON")
	_ = profileCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(profileCmd)
}

func runProfile(_ *cobra.Command, _ []string) error {
	t, err := ingestion.ReadFile(context.Background(), profileInputFile)
	if err != nil {
		return err
	}
	summary, err := profiling.Summarize(t)
	if err != nil {
		return fmt.Errorf("failed to profile %s: %w", profileInputFile, err)
	}

	if profileJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	observability.NewPrinter(os.Stdout).PrintSummary(summary)
	return nil
}
