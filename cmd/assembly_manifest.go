// =============================================================================
// Assembly Uploader - assembly_manifest Command
// =============================================================================
//
// This file defines the 'assembly_manifest' command, which writes one
// webin-cli manifest per row of an assembly metadata sheet.
//
// COMMAND USAGE:
//   assembly-uploader assembly_manifest --study ERP125469 \
//       --assembly_study PRJEB12345 --data assemblies.csv [flags]
//
// METADATA SHEET (CSV, TSV or XLSX):
//   Run,Coverage,Assembler,Version,Filepath[,Sequencer][,Sample]
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ebi-metagenomics/assembly-uploader/internal/logger"
	"github.com/ebi-metagenomics/assembly-uploader/internal/manifest"
	"github.com/ebi-metagenomics/assembly-uploader/internal/validation"
)

// newAssemblyManifestCmd creates the 'assembly_manifest' command.
func newAssemblyManifestCmd(root *rootOptions) *cobra.Command {
	var opts manifest.Options

	assemblyManifestCmd := &cobra.Command{
		Use:   "assembly_manifest",
		Short: "Generate webin-cli manifests for assembly uploads",
		Long: `Generate one manifest per assembly listed in the metadata sheet.

Sample accessions and the sequencing platform are looked up in ENA for every
run, unless the sheet gives them in the Sample and Sequencer columns. Existing
manifests are kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			client, err := root.enaClient(opts.Private)
			if err != nil {
				return err
			}

			generator, err := manifest.NewGenerator(client, opts)
			if err != nil {
				return err
			}

			summary, err := generator.Write(ctx)
			if summary != nil {
				if len(summary.Findings) > 0 {
					fmt.Fprint(cmd.ErrOrStderr(), validation.FormatErrors(summary.Findings))
				}

				out := cmd.OutOrStdout()
				for _, entry := range summary.Entries {
					if entry.Path != "" {
						fmt.Fprintf(out, "%-8s %s\t%s\n", entry.Status, entry.Runs, entry.Path)
					} else {
						fmt.Fprintf(out, "%-8s %s\t%s\n", entry.Status, entry.Runs, entry.Reason)
					}
				}
				logger.InfoKV(ctx, "Completed",
					"written", summary.Count(manifest.StatusWritten),
					"skipped", summary.Count(manifest.StatusSkipped),
					"failed", summary.Count(manifest.StatusFailed))
			}

			return err
		},
	}

	flags := assemblyManifestCmd.Flags()
	flags.StringVar(&opts.Study, "study", "", "Raw reads study ID")
	flags.StringVar(&opts.DataFile, "data", "", "Metadata CSV/XLSX - run_id, coverage, assembler, version, filepath")
	flags.StringVar(&opts.Sheet, "sheet", "", "Sheet of an XLSX metadata file (default first sheet)")
	flags.StringVar(&opts.AssemblyStudy, "assembly_study", "",
		"Pre-existing study ID to submit to. Must exist in the webin account")
	flags.BoolVar(&opts.Force, "force", false, "Overwrite all existing manifests")
	flags.StringVar(&opts.OutputDir, "output-dir", "", "Path to output directory")
	flags.BoolVar(&opts.Private, "private", false, "Use flag if private")
	flags.BoolVar(&opts.TPA, "tpa", false, "Use this flag if the study is a third party assembly")
	flags.BoolVar(&opts.Test, "test", false, "Make assembly names unique for test submissions")
	flags.BoolVar(&opts.Strict, "strict", false, "Fail rows with metadata warnings, such as duplicate runs")

	mustMarkRequired(assemblyManifestCmd, "study", "data", "assembly_study")

	return assemblyManifestCmd
}
