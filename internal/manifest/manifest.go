// =============================================================================
// Assembly Uploader - Manifest Generator
// =============================================================================
//
// This module writes one webin-cli manifest per assembly listed in a metadata
// sheet. It orchestrates the whole pipeline for a sheet, from parsing to the
// manifest files in the upload directory.
//
// PIPELINE:
//   1. Parse the metadata sheet (CSV, TSV or XLSX)
//   2. Validate every row
//   3. Look up sample and instrument of every run in ENA
//   4. Hash the FASTA file and write the manifest
//   5. Write an error log for the rows that failed
//
// MANIFEST FORMAT (tab separated, in this order):
//   STUDY          PRJEB12345
//   SAMPLE         SAMEA7687881
//   RUN_REF        ERR4918394
//   ASSEMBLYNAME   ERR4918394_d41d8cd98f00
//   ASSEMBLY_TYPE  primary metagenome
//   COVERAGE       20.0
//   PROGRAM        megahit v1.2.9
//   PLATFORM       Dnbseq-G400
//   FASTA          /data/ERR4918394.fasta.gz
//   TPA            false
//
// =============================================================================

package manifest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ebi-metagenomics/assembly-uploader/internal/csvparser"
	"github.com/ebi-metagenomics/assembly-uploader/internal/logger"
	"github.com/ebi-metagenomics/assembly-uploader/internal/types"
	"github.com/ebi-metagenomics/assembly-uploader/internal/validation"
	"github.com/ebi-metagenomics/assembly-uploader/internal/xlsxparser"
	"github.com/ebi-metagenomics/assembly-uploader/pkg/utils"
)

const (
	// AssemblyType is the only assembly type this tool submits.
	AssemblyType = "primary metagenome"

	// MixedPlatform is reported when the runs of an assembly were sequenced
	// on different instruments.
	MixedPlatform = "mixed"

	// aliasLength is the number of MD5 hex digits used as assembly alias.
	aliasLength = 12

	// maxRunsInName is the largest number of runs spelled out in an
	// assembly name.
	maxRunsInName = 4
)

// =============================================================================
// OPTIONS AND RESULTS
// =============================================================================

// Options contains the parameters of a manifest run.
type Options struct {
	// Study is the raw reads study accession. It names the upload directory.
	Study string

	// AssemblyStudy is the accession of the study the assemblies go into.
	AssemblyStudy string

	// DataFile is the assembly metadata sheet, .csv, .tsv or .xlsx.
	DataFile string

	// Sheet selects the workbook sheet for XLSX metadata. Default: first.
	Sheet string

	// OutputDir is the parent of the upload directory. Default: "."
	OutputDir string

	// Force overwrites existing manifests.
	Force bool

	// Private queries runs through the authenticated report API.
	Private bool

	// TPA marks third party assemblies.
	TPA bool

	// Test appends a random token to assembly names so they can be
	// submitted repeatedly to the ENA test server.
	Test bool

	// Strict turns metadata warnings into row failures.
	Strict bool
}

// RunFetcher retrieves run metadata from ENA.
type RunFetcher interface {
	GetRun(ctx context.Context, accession string, private bool) (*types.RunMetadata, error)
}

// Status is the outcome of one metadata row.
type Status string

const (
	StatusWritten Status = "written"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Entry reports what happened to one metadata row.
type Entry struct {
	RowNumber int
	Runs      string
	Status    Status
	Path      string
	Reason    string
}

// Summary collects the outcome of every metadata row.
type Summary struct {
	Entries []Entry

	// Findings holds every validation error and warning of the sheet.
	Findings []*validation.ValidationError

	// ErrorLog is the error log written for failed rows, if any.
	ErrorLog string
}

// Count returns the number of rows with the given status.
func (s *Summary) Count(status Status) int {
	n := 0
	for _, entry := range s.Entries {
		if entry.Status == status {
			n++
		}
	}

	return n
}

// Assembly holds everything written to one manifest.
type Assembly struct {
	Runs      []string
	Sample    string
	Platform  string
	Coverage  string
	Assembler string
	Version   string
	Fasta     string
}

// Program returns the PROGRAM manifest value.
func (a Assembly) Program() string {
	return fmt.Sprintf("%s v%s", a.Assembler, a.Version)
}

// Basename names the assembly after its runs. Co-assemblies of many runs
// are shortened to "<first>_and_<n>_others".
func (a Assembly) Basename() string {
	if len(a.Runs) > maxRunsInName {
		return fmt.Sprintf("%s_and_%d_others", a.Runs[0], len(a.Runs)-1)
	}

	return strings.Join(a.Runs, "_")
}

// =============================================================================
// GENERATOR
// =============================================================================

// Generator writes the manifests of one metadata sheet.
type Generator struct {
	opts      Options
	fetcher   RunFetcher
	validator *validation.Validator
	dir       *utils.UploadDir
	token     string
	now       func() time.Time
}

// NewGenerator creates a generator and its upload directory.
//
// PARAMETERS:
//   - fetcher: The ENA client.
//   - opts: The manifest parameters.
//
// RETURNS:
//   - The generator.
//   - An error if a required option is missing or the directory cannot be
//     created.
func NewGenerator(fetcher RunFetcher, opts Options) (*Generator, error) {
	if strings.TrimSpace(opts.AssemblyStudy) == "" {
		return nil, errMissingAssemblyStudy
	}
	if strings.TrimSpace(opts.DataFile) == "" {
		return nil, errMissingDataFile
	}

	dir, err := utils.NewUploadDir(opts.OutputDir, opts.Study)
	if err != nil {
		return nil, err
	}
	if err := dir.Ensure(); err != nil {
		return nil, err
	}

	g := &Generator{
		opts:      opts,
		fetcher:   fetcher,
		validator: validation.NewValidatorWithOptions(validation.ValidationOptions{
			TreatWarningsAsErrors: opts.Strict,
		}),
		dir:       dir,
		now:       time.Now,
	}
	if opts.Test {
		g.token = utils.TestToken()
	}

	return g, nil
}

// UploadDir returns the directory the manifests are written to.
func (g *Generator) UploadDir() *utils.UploadDir {
	return g.dir
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Write generates the manifest of every row in the metadata sheet.
//
// RETURNS:
//   - The summary of every row, also on failure.
//   - RowsFailedError if any row was invalid or could not be resolved.
func (g *Generator) Write(ctx context.Context) (*Summary, error) {
	ctx = logger.WithKV(ctx, "study", g.opts.Study)
	summary := &Summary{}

	// =========================================================================
	// STEP 1: PARSE METADATA
	// =========================================================================

	table, err := ReadMetadata(g.opts.DataFile, g.opts.Sheet)
	if err != nil {
		return summary, err
	}
	rows := table.AssemblyRows()
	logger.Debugf(ctx, "Parsed %d assemblies (%d distinct run sets) from %s",
		len(rows), len(csvparser.GetUniqueValues(table, types.ColumnRun)), g.opts.DataFile)

	// =========================================================================
	// STEP 2: VALIDATE ROWS
	// =========================================================================

	result := g.validator.Validate(table)
	summary.Findings = result.Errors
	if len(result.Errors) > 0 {
		logger.Warnf(ctx, "%d of %d rows failed validation with %d error(s) and %d warning(s)",
			result.RowsValidated-len(result.ValidRows(rows)), result.RowsValidated,
			result.ErrorCount, result.WarningCount)
	}

	var logEntries []utils.ErrorLogEntry
	if len(result.RowErrors(0)) > 0 {
		for _, finding := range result.RowErrors(0) {
			logEntries = append(logEntries, g.logEntry("validation", finding.Message, 0, finding.Field, finding.Value))
		}
		summary.ErrorLog = g.writeErrorLog(ctx, logEntries)

		return summary, RowsFailedError{Failed: len(rows), Total: len(rows), LogPath: summary.ErrorLog}
	}

	// =========================================================================
	// STEP 3-4: RESOLVE RUNS AND WRITE MANIFESTS
	// =========================================================================

	valid := make(map[int]bool, len(rows))
	for _, row := range result.ValidRows(rows) {
		valid[row.RowNumber] = true
	}

	for _, row := range rows {
		entry := Entry{RowNumber: row.RowNumber, Runs: row.RunRef()}

		if !valid[row.RowNumber] {
			rowErrors := result.RowErrors(row.RowNumber)
			entry.Status = StatusFailed
			entry.Reason = rowErrors[0].Message
			for _, finding := range rowErrors {
				logEntries = append(logEntries,
					g.logEntry("validation", finding.Message, row.RowNumber, finding.Field, finding.Value))
			}
			summary.Entries = append(summary.Entries, entry)
			continue
		}

		entry.Path, entry.Status, err = g.writeRow(ctx, row)
		if err != nil {
			entry.Status = StatusFailed
			entry.Reason = err.Error()
			logger.ErrorKV(ctx, "skipping manifest", "row", row.RowNumber, "runs", entry.Runs, "error", err)
			logEntries = append(logEntries, g.logEntry("manifest", err.Error(), row.RowNumber, types.ColumnRun, entry.Runs))
		}
		summary.Entries = append(summary.Entries, entry)
	}

	// =========================================================================
	// STEP 5: ERROR LOG
	// =========================================================================

	summary.ErrorLog = g.writeErrorLog(ctx, logEntries)

	if failed := summary.Count(StatusFailed); failed > 0 {
		return summary, RowsFailedError{Failed: failed, Total: len(rows), LogPath: summary.ErrorLog}
	}

	return summary, nil
}

// writeRow resolves the ENA metadata of a row and writes its manifest.
func (g *Generator) writeRow(ctx context.Context, row types.AssemblyRow) (string, Status, error) {
	sample, platform, err := g.resolveRuns(ctx, row)
	if err != nil {
		return "", StatusFailed, err
	}

	return g.GenerateManifest(ctx, Assembly{
		Runs:      row.Runs,
		Sample:    sample,
		Platform:  platform,
		Coverage:  row.Coverage,
		Assembler: row.Assembler,
		Version:   row.Version,
		Fasta:     row.Filepath,
	})
}

// resolveRuns returns the SAMPLE and PLATFORM values of a row. Values given
// in the sheet win over the ones reported by ENA.
func (g *Generator) resolveRuns(ctx context.Context, row types.AssemblyRow) (string, string, error) {
	samples := make(map[string]struct{})
	instruments := make(map[string]struct{})

	if row.IsCoAssembly() {
		logger.Debugf(ctx, "Row %d is a co-assembly of %d runs", row.RowNumber, len(row.Runs))
	}

	for _, run := range row.Runs {
		metadata, err := g.fetcher.GetRun(ctx, run, g.opts.Private)
		if err != nil {
			return "", "", fmt.Errorf("failed to fetch run %s: %w", run, err)
		}
		samples[metadata.SampleAccession] = struct{}{}
		instruments[strings.ToLower(metadata.InstrumentModel)] = struct{}{}
	}

	sample := row.Sample
	if sample == "" {
		sample = strings.Join(sortedKeys(samples), ",")
	}

	var platform string
	switch {
	case row.Sequencer != "":
		platform = row.Sequencer
	case len(instruments) == 1:
		platform = utils.TitleCase(sortedKeys(instruments)[0])
	default:
		platform = MixedPlatform
		logger.WarnKV(ctx, "Multiple instruments found, using mixed platform",
			"runs", row.RunRef(),
			"instruments", strings.Join(sortedKeys(instruments), ","),
			"platform", MixedPlatform)
	}

	return sample, platform, nil
}

// =============================================================================
// MANIFEST FILES
// =============================================================================

// GenerateManifest writes the manifest of one assembly.
//
// RETURNS:
//   - The manifest path.
//   - StatusWritten, or StatusSkipped when the manifest exists and Force is
//     off.
//   - An error if the FASTA file is unusable or the manifest cannot be
//     written.
func (g *Generator) GenerateManifest(ctx context.Context, assembly Assembly) (string, Status, error) {
	runRef := strings.Join(assembly.Runs, ",")
	logger.Infof(ctx, "Writing manifest for %s", runRef)

	if !utils.FileExists(assembly.Fasta) {
		return "", StatusFailed, InvalidFastaError{Path: assembly.Fasta, Reason: "does not exist"}
	}
	if !validation.IsCompressedFasta(assembly.Fasta) {
		return "", StatusFailed, InvalidFastaError{
			Path:   assembly.Fasta,
			Reason: "is either not fasta format or not compressed",
		}
	}

	digest, err := utils.MD5File(assembly.Fasta)
	if err != nil {
		return "", StatusFailed, err
	}
	alias := digest[:aliasLength]

	path := g.dir.ManifestPath(alias)
	if utils.FileExists(path) && !g.opts.Force {
		logger.Warnf(ctx, "Manifest for %s already exists at %s. Skipping", runRef, path)
		return path, StatusSkipped, nil
	}

	name := assembly.Basename() + "_" + alias
	if g.token != "" {
		name += "_" + g.token
	}

	if err := utils.WriteFile(path, Render(g.opts.AssemblyStudy, name, g.opts.TPA, assembly)); err != nil {
		return "", StatusFailed, err
	}
	logger.DebugKV(ctx, "manifest written", "runs", runRef, "path", path)

	return path, StatusWritten, nil
}

// Render returns the manifest document of an assembly.
func Render(study, name string, tpa bool, assembly Assembly) []byte {
	fields := [][2]string{
		{"STUDY", study},
		{"SAMPLE", assembly.Sample},
		{"RUN_REF", strings.Join(assembly.Runs, ",")},
		{"ASSEMBLYNAME", name},
		{"ASSEMBLY_TYPE", AssemblyType},
		{"COVERAGE", assembly.Coverage},
		{"PROGRAM", assembly.Program()},
		{"PLATFORM", assembly.Platform},
		{"FASTA", assembly.Fasta},
		{"TPA", fmt.Sprintf("%t", tpa)},
	}

	var b strings.Builder
	for _, field := range fields {
		b.WriteString(field[0])
		b.WriteByte('\t')
		b.WriteString(field[1])
		b.WriteByte('\n')
	}

	return []byte(b.String())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// ReadMetadata parses a metadata sheet, picking the parser by extension.
func ReadMetadata(path, sheet string) (*types.MetadataTable, error) {
	if xlsxparser.IsWorkbook(path) {
		return xlsxparser.ParseFile(path, sheet)
	}

	return csvparser.ParseFile(path, csvparser.SettingsFor(path))
}

func (g *Generator) logEntry(kind, message string, row int, field, value string) utils.ErrorLogEntry {
	return utils.ErrorLogEntry{
		Timestamp:    g.now(),
		FileName:     g.opts.DataFile,
		ErrorType:    kind,
		ErrorMessage: message,
		RowNumber:    row,
		FieldName:    field,
		FieldValue:   value,
	}
}

func (g *Generator) writeErrorLog(ctx context.Context, entries []utils.ErrorLogEntry) string {
	path, err := utils.WriteErrorLog(entries, g.dir.Path)
	if err != nil {
		logger.Warnf(ctx, "failed to write error log: %v", err)
		return ""
	}

	return path
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}
