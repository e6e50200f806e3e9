// =============================================================================
// Claims Consolidator - Main Entry Point
// =============================================================================
//
// This is the main entry point for the consolidator CLI. It delegates command
// execution to the cmd package.
//
// USAGE:
//   consolidator fetch        - Download the latest quarterly archives
//   consolidator extract      - Extract downloaded archives
//   consolidator run          - Consolidate, enrich, validate, aggregate, package
//   consolidator serve        - Serve the read-only query API
//   consolidator version      - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : pipeline stages, readers, registry, query service
//   - pkg/           : shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/claims-consolidator/cmd"
)

// main is the entry point of the application.
func main() {
	cmd.Execute()
}
