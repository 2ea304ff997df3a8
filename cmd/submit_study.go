// =============================================================================
// Assembly Uploader - submit_study Command
// =============================================================================
//
// This file defines the 'submit_study' command, which posts the documents
// written by study_xmls to the ENA drop-box and reports the study accession.
//
// COMMAND USAGE:
//   assembly-uploader submit_study --study ERP125469 [--directory DIR] [--test]
//
// =============================================================================

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ebi-metagenomics/assembly-uploader/internal/journal"
	"github.com/ebi-metagenomics/assembly-uploader/internal/logger"
	"github.com/ebi-metagenomics/assembly-uploader/internal/submission"
)

// newSubmitStudyCmd creates the 'submit_study' command.
func newSubmitStudyCmd(root *rootOptions) *cobra.Command {
	var (
		studyAccession string
		directory      string
		test           bool
	)

	submitStudyCmd := &cobra.Command{
		Use:   "submit_study",
		Short: "Register an assembly study in ENA",
		Long: `Submit <study>_reg.xml and <study>_submission.xml to the ENA drop-box.

The new project accession is printed. If a study with the same alias was
registered before, its accession is printed instead.

--test uses the ENA test server, which discards registrations after 24 hours.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			client, err := root.enaClient(true)
			if err != nil {
				return err
			}

			receipts := root.receiptJournal(ctx)
			defer closeJournal(ctx, receipts)

			if receipts != nil {
				previous, err := receipts.Latest(studyAccession, journal.ActionAdd)
				switch {
				case err == nil && previous.Test == test:
					logger.Infof(ctx, "%s was already registered as %s on %s",
						studyAccession, previous.Accession, previous.Time.Local().Format(time.DateTime))
				case err != nil && !journal.IsNotFound(err):
					logger.Warnf(ctx, "failed to read journal: %v", err)
				}
			}

			result, err := submission.NewSubmitter(client, root.config, receipts).
				SubmitStudy(ctx, studyAccession, directory, test)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Accession)

			return nil
		},
	}

	flags := submitStudyCmd.Flags()
	flags.StringVar(&studyAccession, "study", "", "Raw reads study ID")
	flags.StringVar(&directory, "directory", "", "Directory containing study XML (default ./<study>_upload)")
	flags.BoolVar(&test, "test", false, "Run test submission only")

	mustMarkRequired(submitStudyCmd, "study")

	return submitStudyCmd
}
