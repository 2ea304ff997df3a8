package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ebi-metagenomics/assembly-uploader/internal/journal"
)

// newHistoryCmd creates the 'history' command, which lists the drop-box
// receipts recorded in the journal.
func newHistoryCmd(root *rootOptions) *cobra.Command {
	var studyAccession string

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded submissions and releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if root.config.Journal.Disabled {
				return fmt.Errorf("the receipt journal is disabled in the configuration")
			}

			receipts, err := journal.Open(root.config.Journal.Path)
			if err != nil {
				return err
			}
			defer closeJournal(ctx, receipts)

			records, err := receipts.Records(studyAccession)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tSTUDY\tACCESSION\tSERVER\tRESULT")
			for _, record := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					record.Time.Local().Format(time.DateTime),
					record.Action,
					record.Study,
					orDash(record.Accession),
					server(record.Test),
					result(record))
			}

			return w.Flush()
		},
	}

	historyCmd.Flags().StringVar(&studyAccession, "study", "", "Only list receipts of this study")

	return historyCmd
}

func server(test bool) string {
	if test {
		return "test"
	}
	return "prod"
}

func result(record journal.Record) string {
	if record.Success {
		return "ok"
	}
	if len(record.Messages) == 0 {
		return "failed"
	}
	return "failed: " + strings.Join(record.Messages, "; ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
