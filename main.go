// =============================================================================
// Assembly Uploader - Main Entry Point
// =============================================================================
//
// This is the main entry point of the assembly-uploader CLI. It delegates
// command execution to the cmd package.
//
// USAGE:
//   assembly-uploader study_xmls         - Generate study registration XML
//   assembly-uploader submit_study       - Register the study in ENA
//   assembly-uploader assembly_manifest  - Generate webin-cli manifests
//   assembly-uploader release_study      - Release a study to the public
//   assembly-uploader history            - List recorded drop-box receipts
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : Core logic (ENA client, XML and manifest generation)
//   - pkg/       : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ebi-metagenomics/assembly-uploader/cmd"
)

func main() {
	cmd.Execute()
}
