// =============================================================================
// Assembly Uploader - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - ena         (metadata returned by the portal and report APIs)
//   - study       (study XML generation)
//   - manifest    (manifest generation)
//   - validation  (row validation)
//   - submission  (drop-box receipts)
//
// =============================================================================

package types

import (
	"encoding/xml"
	"strings"
)

// =============================================================================
// ENA METADATA
// =============================================================================

// StudyMetadata describes a raw reads study as reported by ENA.
type StudyMetadata struct {
	// StudyAccession is the primary (PRJ*) accession of the study.
	StudyAccession string `json:"study_accession"`

	// SecondaryAccession is the ERP/SRP/DRP accession, if known.
	SecondaryAccession string `json:"secondary_study_accession,omitempty"`

	// Title is the study title.
	Title string `json:"study_title"`

	// Description is the study abstract. It is empty for private studies.
	Description string `json:"study_description,omitempty"`

	// FirstPublic is the release date of the study (YYYY-MM-DD).
	// A date in the future means the study is still held private.
	FirstPublic string `json:"first_public"`
}

// RunMetadata describes a single sequencing run as reported by ENA.
type RunMetadata struct {
	// RunAccession is the ERR/SRR/DRR accession of the run.
	RunAccession string `json:"run_accession"`

	// SampleAccession is the accession of the sample the run belongs to.
	SampleAccession string `json:"sample_accession"`

	// InstrumentModel is the sequencer used, e.g. "Illumina HiSeq 2500".
	InstrumentModel string `json:"instrument_model"`
}

// =============================================================================
// ASSEMBLY METADATA
// =============================================================================

// Canonical column names of the assembly metadata sheet.
const (
	ColumnRun       = "Run"
	ColumnCoverage  = "Coverage"
	ColumnAssembler = "Assembler"
	ColumnVersion   = "Version"
	ColumnFilepath  = "Filepath"
	ColumnSequencer = "Sequencer"
	ColumnSample    = "Sample"
)

// RequiredColumns lists the columns every metadata row must fill.
var RequiredColumns = []string{
	ColumnRun,
	ColumnCoverage,
	ColumnAssembler,
	ColumnVersion,
	ColumnFilepath,
}

// OptionalColumns lists the columns a metadata row may leave empty.
var OptionalColumns = []string{
	ColumnSequencer,
	ColumnSample,
}

// AssemblyRow is one row of the assembly metadata sheet.
type AssemblyRow struct {
	// RowNumber is the 1-indexed row in the source file, header included.
	RowNumber int

	// Runs holds the run accessions the assembly was built from.
	// More than one run means a co-assembly.
	Runs []string

	// Coverage is the reported coverage of the assembly.
	Coverage string

	// Assembler and Version identify the assembly program.
	Assembler string
	Version   string

	// Filepath is the path to the gzipped FASTA file.
	Filepath string

	// Sequencer optionally overrides the instrument model reported by ENA.
	Sequencer string

	// Sample optionally overrides the sample accessions reported by ENA.
	Sample string

	// Fields keeps the raw column values keyed by canonical column name.
	Fields map[string]string
}

// IsCoAssembly reports whether the row was assembled from several runs.
func (r AssemblyRow) IsCoAssembly() bool {
	return len(r.Runs) > 1
}

// RunRef returns the runs as written in the RUN_REF manifest field.
func (r AssemblyRow) RunRef() string {
	return strings.Join(r.Runs, ",")
}

// columnAliases maps lower-cased header spellings to canonical columns.
var columnAliases = map[string]string{
	"run":               ColumnRun,
	"runs":              ColumnRun,
	"run_accession":     ColumnRun,
	"run_id":            ColumnRun,
	"coverage":          ColumnCoverage,
	"assembler":         ColumnAssembler,
	"version":           ColumnVersion,
	"assembler_version": ColumnVersion,
	"filepath":          ColumnFilepath,
	"file_path":         ColumnFilepath,
	"fasta":             ColumnFilepath,
	"sequencer":         ColumnSequencer,
	"instrument_model":  ColumnSequencer,
	"sample":            ColumnSample,
	"sample_accession":  ColumnSample,
}

// CanonicalColumn maps a header to its canonical column name, ignoring case
// and surrounding spaces. Unknown headers are returned trimmed.
func CanonicalColumn(header string) string {
	trimmed := strings.TrimSpace(header)
	if canonical, ok := columnAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}

	return trimmed
}

// NewAssemblyRow builds a row from values keyed by canonical column name.
// The Run column is split on commas; blank run entries are dropped.
func NewAssemblyRow(rowNumber int, fields map[string]string) AssemblyRow {
	row := AssemblyRow{
		RowNumber: rowNumber,
		Coverage:  strings.TrimSpace(fields[ColumnCoverage]),
		Assembler: strings.TrimSpace(fields[ColumnAssembler]),
		Version:   strings.TrimSpace(fields[ColumnVersion]),
		Filepath:  strings.TrimSpace(fields[ColumnFilepath]),
		Sequencer: strings.TrimSpace(fields[ColumnSequencer]),
		Sample:    strings.TrimSpace(fields[ColumnSample]),
		Fields:    fields,
	}

	for _, run := range strings.Split(fields[ColumnRun], ",") {
		if run = strings.TrimSpace(run); run != "" {
			row.Runs = append(row.Runs, run)
		}
	}

	return row
}

// MetadataTable is a parsed assembly metadata sheet, CSV or XLSX.
type MetadataTable struct {
	// SourceFile is the path of the parsed file.
	SourceFile string

	// Headers holds the canonical column names in file order.
	Headers []string

	// Rows holds the non-empty data rows keyed by canonical column name.
	Rows []map[string]string

	// RowNumbers holds the 1-indexed source row of each entry in Rows.
	RowNumbers []int
}

// HasColumn reports whether the sheet has a column.
func (t *MetadataTable) HasColumn(column string) bool {
	for _, header := range t.Headers {
		if header == column {
			return true
		}
	}

	return false
}

// AssemblyRows converts every data row to an AssemblyRow.
func (t *MetadataTable) AssemblyRows() []AssemblyRow {
	rows := make([]AssemblyRow, len(t.Rows))
	for i, fields := range t.Rows {
		rows[i] = NewAssemblyRow(t.RowNumbers[i], fields)
	}

	return rows
}

// =============================================================================
// DROP-BOX RECEIPTS
// =============================================================================

// Receipt is the XML document returned by the ENA drop-box.
type Receipt struct {
	XMLName    xml.Name        `xml:"RECEIPT"`
	Success    bool            `xml:"success,attr"`
	Projects   []ReceiptObject `xml:"PROJECT"`
	Submission ReceiptObject   `xml:"SUBMISSION"`
	Infos      []string        `xml:"MESSAGES>INFO"`
	Errors     []string        `xml:"MESSAGES>ERROR"`
}

// ReceiptObject is an object acknowledged in a receipt.
type ReceiptObject struct {
	Accession     string `xml:"accession,attr"`
	Status        string `xml:"status,attr"`
	HoldUntilDate string `xml:"holdUntilDate,attr"`
}
