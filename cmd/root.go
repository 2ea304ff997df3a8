// =============================================================================
// Assembly Uploader - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every workflow step is
// a subcommand of it.
//
// COBRA CLI STRUCTURE:
//   assembly-uploader
//   ├── study_xmls         (build the registration and submission XML)
//   ├── submit_study       (register the assembly study in ENA)
//   ├── assembly_manifest  (write one webin-cli manifest per assembly)
//   ├── release_study      (make a registered study public)
//   ├── history            (list journaled drop-box receipts)
//   └── version
//
// The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading the configuration file
//   3. Setting up logging
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ebi-metagenomics/assembly-uploader/internal/config"
	"github.com/ebi-metagenomics/assembly-uploader/internal/ena"
	"github.com/ebi-metagenomics/assembly-uploader/internal/journal"
	"github.com/ebi-metagenomics/assembly-uploader/internal/logger"
)

// =============================================================================
// GLOBAL OPTIONS
// =============================================================================

// rootOptions holds the persistent flags and the state they produce.
type rootOptions struct {
	// configPath is the YAML configuration file. Empty means
	// config.DefaultConfigFilename, which may be absent.
	configPath string

	// verbose enables debug logging.
	verbose bool

	// config is loaded before any subcommand runs.
	config *config.Config
}

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "assembly-uploader",
		Short: "Register assembly studies and prepare assembly uploads for ENA",
		Long: `assembly-uploader prepares metagenome assemblies for submission to the
European Nucleotide Archive.

Typical workflow:
  assembly-uploader study_xmls --study ERP125469 --library metagenome --center EMG
  assembly-uploader submit_study --study ERP125469 --test
  assembly-uploader assembly_manifest --study ERP125469 --assembly_study PRJEB12345 --data assemblies.csv
  webin-cli -context genome -manifest ERP125469_upload/<alias>.manifest ...
  assembly-uploader release_study --study PRJEB12345

Webin credentials are read from the ENA_WEBIN and ENA_WEBIN_PASSWORD
environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(
		&opts.configPath,
		"config",
		"c",
		"",
		fmt.Sprintf("Path to the configuration file (default is %s, if present)", config.DefaultConfigFilename),
	)
	rootCmd.PersistentFlags().BoolVarP(
		&opts.verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)

	rootCmd.AddCommand(
		newStudyXMLsCmd(opts),
		newSubmitStudyCmd(opts),
		newAssemblyManifestCmd(opts),
		newReleaseStudyCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the CLI and exits with a non-zero status on error.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	logger.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

// init loads the configuration, sets the log level and scopes a logger
// named after the running command into its context.
func (o *rootOptions) init(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	o.config = cfg

	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	if o.verbose {
		level, ok = logger.ParseLogLevel("debug")
	}
	logger.SetLevel(level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.WithName(ctx, cmd.Name())
	cmd.SetContext(ctx)

	if !ok {
		logger.Warnf(ctx, "unknown log level %q, using info", cfg.LogLevel)
	}
	logger.DebugKV(ctx, "configuration loaded", "path", o.configPath, "level", logger.Level())

	return nil
}

// enaClient creates an ENA client. Credentials are required for private
// queries and for anything posted to the drop-box.
func (o *rootOptions) enaClient(needCredentials bool) (*ena.Client, error) {
	creds := config.LoadCredentials()
	if needCredentials {
		var err error
		if creds, err = config.EnsureCredentials(); err != nil {
			return nil, err
		}
	}

	return ena.NewClient(o.config, creds), nil
}

// openJournal opens the receipt journal. It returns a nil journal, which
// records nothing, when journaling is disabled.
func (o *rootOptions) openJournal(ctx context.Context) (*journal.Journal, error) {
	if o.config.Journal.Disabled {
		logger.Debugf(ctx, "receipt journal disabled")
		return nil, nil
	}

	return journal.Open(o.config.Journal.Path)
}

// receiptJournal opens the journal for a drop-box command. Journaling is
// optional there, so a journal that cannot be opened is logged and skipped.
func (o *rootOptions) receiptJournal(ctx context.Context) *journal.Journal {
	receipts, err := o.openJournal(ctx)
	if err != nil {
		logger.Warnf(ctx, "receipts will not be journaled: %v", err)
		return nil
	}

	return receipts
}

// closeJournal closes j, logging instead of failing the command.
func closeJournal(ctx context.Context, j *journal.Journal) {
	if err := j.Close(); err != nil {
		logger.Warnf(ctx, "failed to close journal: %v", err)
	}
}
