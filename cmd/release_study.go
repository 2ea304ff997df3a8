package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ebi-metagenomics/assembly-uploader/internal/submission"
)

// newReleaseStudyCmd creates the 'release_study' command, which makes a
// registered assembly study public.
func newReleaseStudyCmd(root *rootOptions) *cobra.Command {
	var (
		accession string
		test      bool
	)

	releaseStudyCmd := &cobra.Command{
		Use:   "release_study",
		Short: "Release a registered study to the public",
		Long: `Send a RELEASE action for a study to the ENA drop-box.

The study must belong to the Webin account in ENA_WEBIN.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			client, err := root.enaClient(true)
			if err != nil {
				return err
			}

			receipts := root.receiptJournal(ctx)
			defer closeJournal(ctx, receipts)

			err = submission.NewSubmitter(client, root.config, receipts).
				ReleaseStudy(ctx, accession, test)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s released\n", accession)

			return nil
		},
	}

	flags := releaseStudyCmd.Flags()
	flags.StringVar(&accession, "study", "", "Accession of the study to release")
	flags.BoolVar(&test, "test", false, "Use the ENA test server")

	mustMarkRequired(releaseStudyCmd, "study")

	return releaseStudyCmd
}
