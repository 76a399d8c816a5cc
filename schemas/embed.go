// Package schemas holds the JSON Schemas for API request bodies and pipeline manifests.
package schemas

import "embed"

// Names of the bundled schema files
const (
	PipelineRequest = "pipeline_request.schema.json"
	Manifest        = "manifest.schema.json"
)

// FS contains every bundled schema file.
//
//go:embed *.schema.json
var FS embed.FS
