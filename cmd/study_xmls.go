// =============================================================================
// Assembly Uploader - study_xmls Command
// =============================================================================
//
// This file defines the 'study_xmls' command, which writes the documents that
// register a new assembly study derived from a raw reads study.
//
// COMMAND USAGE:
//   assembly-uploader study_xmls --study ERP125469 --library metagenome --center EMG [flags]
//
// OUTPUT:
//   <output-dir>/<study>_upload/<study>_reg.xml
//   <output-dir>/<study>_upload/<study>_submission.xml
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ebi-metagenomics/assembly-uploader/internal/study"
)

// newStudyXMLsCmd creates the 'study_xmls' command.
func newStudyXMLsCmd(root *rootOptions) *cobra.Command {
	var opts study.Options

	studyXMLsCmd := &cobra.Command{
		Use:   "study_xmls",
		Short: "Generate the XML documents registering an assembly study",
		Long: `Generate the PROJECT_SET registration document and the SUBMISSION document
for an assembly study derived from a raw reads study.

Unless --hold is given, the study is held private until the release date of
the raw reads study when that date is still in the future.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if opts.Center == "" {
				opts.Center = root.config.DefaultCenter
			}

			client, err := root.enaClient(opts.Private)
			if err != nil {
				return err
			}

			generator, err := study.NewGenerator(ctx, client, opts)
			if err != nil {
				return err
			}
			if err := generator.Write(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Study:      %s\n", opts.Study)
			fmt.Fprintf(out, "Alias:      %s\n", generator.Alias())
			fmt.Fprintf(out, "Title:      %s\n", generator.Title())
			if hold := generator.HoldUntil(); hold != "" {
				fmt.Fprintf(out, "Hold until: %s\n", hold)
			} else {
				fmt.Fprintf(out, "Raw study first public: %s\n", generator.RawStudy().FirstPublic)
			}
			fmt.Fprintf(out, "Directory:  %s\n", generator.UploadDir().Path)

			return nil
		},
	}

	flags := studyXMLsCmd.Flags()
	flags.StringVar(&opts.Study, "study", "", "Raw reads study ID")
	flags.StringVar(&opts.Library, "library", "", "Library type: metagenome or metatranscriptome")
	flags.StringVar(&opts.Center, "center", "", "Center for upload e.g. EMG (default from config default_center)")
	flags.StringVar(&opts.HoldDate, "hold", "",
		"Hold date (private) in format dd-mm-yyyy. Will inherit the release date of the raw read study if not provided.")
	flags.BoolVar(&opts.TPA, "tpa", false, "Use this flag if the study is a third-party assembly")
	flags.IntVar(&opts.Publication, "publication", 0, "PubMed ID for connected publication if available")
	flags.StringVar(&opts.OutputDir, "output-dir", "", "Path to output directory")
	flags.BoolVar(&opts.Private, "private", false, "Use flag if private")
	flags.BoolVar(&opts.Test, "test", false, "Make the alias unique so the study can be registered repeatedly on the test server")

	mustMarkRequired(studyXMLsCmd, "study", "library")

	return studyXMLsCmd
}

// mustMarkRequired marks flags as required, panicking on a programming error.
func mustMarkRequired(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
}
