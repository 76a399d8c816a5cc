package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/data-augmenter/internal/schemas"
	bundled "github.com/jonathan/data-augmenter/schemas"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a JSON file against a schema",
	Long: `Validate a pipeline request or manifest against its bundled JSON Schema.
--schema takes "request", "manifest" or the path of a schema file.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var validateSchema string

// bundledSchemas maps --schema shorthands to the bundled schema files
var bundledSchemas = map[string]string{
	"request":  bundled.PipelineRequest,
	"manifest": bundled.Manifest,
}

func init() {
	validateCmd.Flags().StringVarP(&validateSchema, "schema", "s", "manifest", "Bundled schema (request, manifest) or path to a schema file")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, args []string) error {
	path := args[0]
	var err error
	if name, ok := bundledSchemas[validateSchema]; ok {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("failed to read %s: %w", path, readErr)
		}
		err = schemas.ValidateDocument(name, data)
	} else {
		err = schemas.ValidateJSON(validateSchema, path)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", path)
	return nil
}
