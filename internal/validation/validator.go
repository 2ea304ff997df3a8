// =============================================================================
// Assembly Uploader - Validation Engine
// =============================================================================
//
// This module checks assembly metadata rows before any manifest is written.
// It validates:
//   - Required columns (Run, Coverage, Assembler, Version, Filepath)
//   - Run accessions (every entry of a co-assembly must be a run)
//   - Coverage values (non-negative numbers)
//   - FASTA file names (gzipped FASTA expected)
//   - Duplicate runs across rows
//
// ERROR HANDLING:
//   - Errors are collected, not thrown immediately
//   - Each error includes the source row, column and value
//   - Warnings are reported but do not block the row
//
// File existence is not checked here: the manifest generator checks it right
// before hashing the file.
//
// =============================================================================

package validation

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ebi-metagenomics/assembly-uploader/internal/ena"
	"github.com/ebi-metagenomics/assembly-uploader/internal/types"
)

// Severity levels of a ValidationError.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Rule names reported in ValidationError.Rule.
const (
	RuleMissingColumn = "missing_column"
	RuleRequired      = "required"
	RuleRunAccession  = "run_accession"
	RuleCoverage      = "coverage"
	RuleFastaName     = "fasta_name"
	RuleDuplicateRuns = "duplicate_runs"
)

// CompressedFastaSuffixes are the file name parts webin-cli accepts for a
// gzipped FASTA file.
var CompressedFastaSuffixes = []string{"fa.gz", "fna.gz", "fasta.gz"}

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation finding.
type ValidationError struct {
	// Severity is SeverityError (the row is rejected) or SeverityWarning.
	Severity string

	// Field is the canonical column name.
	Field string

	// Value is the offending value.
	Value string

	// Rule is the validation rule that was violated.
	Rule string

	// Message is a human-readable error message.
	Message string

	// RowNumber is the 1-indexed source row, 0 for sheet level findings.
	RowNumber int
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	location := "sheet"
	if e.RowNumber > 0 {
		location = fmt.Sprintf("row %d", e.RowNumber)
	}

	return fmt.Sprintf("[%s] %s, field '%s': %s (value: '%s')",
		strings.ToUpper(e.Severity),
		location,
		e.Field,
		e.Message,
		e.Value,
	)
}

// IsFatal reports whether the finding rejects its row.
func (e *ValidationError) IsFatal() bool {
	return e.Severity == SeverityError
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no fatal errors.
	IsValid bool

	// Errors contains all findings, warnings included.
	Errors []*ValidationError

	// ErrorCount is the number of fatal errors.
	ErrorCount int

	// WarningCount is the number of warnings.
	WarningCount int

	// RowsValidated is the number of rows checked.
	RowsValidated int
}

// RowErrors returns the fatal errors of a row.
func (r *ValidationResult) RowErrors(rowNumber int) []*ValidationError {
	var found []*ValidationError
	for _, err := range r.Errors {
		if err.RowNumber == rowNumber && err.IsFatal() {
			found = append(found, err)
		}
	}

	return found
}

// ValidRows returns the rows without fatal errors. A sheet level error,
// such as a missing column, rejects every row.
func (r *ValidationResult) ValidRows(rows []types.AssemblyRow) []types.AssemblyRow {
	if len(r.RowErrors(0)) > 0 {
		return nil
	}

	valid := make([]types.AssemblyRow, 0, len(rows))
	for _, row := range rows {
		if len(r.RowErrors(row.RowNumber)) == 0 {
			valid = append(valid, row)
		}
	}

	return valid
}

func (r *ValidationResult) add(err *ValidationError) {
	r.Errors = append(r.Errors, err)

	if err.IsFatal() {
		r.ErrorCount++
		r.IsValid = false
	} else {
		r.WarningCount++
	}
}

// =============================================================================
// VALIDATOR
// =============================================================================

// ValidationOptions contains options for validation.
type ValidationOptions struct {
	// TreatWarningsAsErrors makes every warning fatal.
	// Default: false
	TreatWarningsAsErrors bool
}

// Validator checks assembly metadata tables.
type Validator struct {
	options ValidationOptions
}

// NewValidator creates a Validator with the default options.
func NewValidator() *Validator {
	return &Validator{}
}

// NewValidatorWithOptions creates a Validator with custom options.
func NewValidatorWithOptions(options ValidationOptions) *Validator {
	return &Validator{options: options}
}

// =============================================================================
// MAIN VALIDATION FUNCTION
// =============================================================================

// Validate checks a parsed metadata table.
//
// PARAMETERS:
//   - table: The parsed CSV or XLSX sheet.
//
// RETURNS:
//   - A result holding every finding; rows whose findings are all warnings
//     can still be processed.
func (v *Validator) Validate(table *types.MetadataTable) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	for _, column := range types.RequiredColumns {
		if !table.HasColumn(column) {
			v.report(result, &ValidationError{
				Severity: SeverityError,
				Field:    column,
				Rule:     RuleMissingColumn,
				Message:  fmt.Sprintf("Required column '%s' is missing", column),
			})
		}
	}
	if !result.IsValid {
		return result
	}

	rows := table.AssemblyRows()
	result.RowsValidated = len(rows)

	for _, row := range rows {
		for _, err := range v.ValidateRow(row) {
			v.report(result, err)
		}
	}

	for _, err := range duplicateRuns(rows) {
		v.report(result, err)
	}

	return result
}

// ValidateRow checks a single row.
func (v *Validator) ValidateRow(row types.AssemblyRow) []*ValidationError {
	var errors []*ValidationError

	// =========================================================================
	// REQUIRED FIELD VALIDATION
	// =========================================================================

	for _, column := range types.RequiredColumns {
		if strings.TrimSpace(row.Fields[column]) == "" {
			errors = append(errors, &ValidationError{
				Severity:  SeverityError,
				Field:     column,
				Rule:      RuleRequired,
				Message:   fmt.Sprintf("Required field '%s' is empty", column),
				RowNumber: row.RowNumber,
			})
		}
	}

	// =========================================================================
	// RUN ACCESSIONS
	// =========================================================================

	for _, run := range row.Runs {
		if message := validateRunAccession(run); message != "" {
			errors = append(errors, &ValidationError{
				Severity:  SeverityError,
				Field:     types.ColumnRun,
				Value:     run,
				Rule:      RuleRunAccession,
				Message:   message,
				RowNumber: row.RowNumber,
			})
		}
	}

	// =========================================================================
	// COVERAGE
	// =========================================================================

	if row.Coverage != "" {
		if message := validateCoverage(row.Coverage); message != "" {
			errors = append(errors, &ValidationError{
				Severity:  SeverityError,
				Field:     types.ColumnCoverage,
				Value:     row.Coverage,
				Rule:      RuleCoverage,
				Message:   message,
				RowNumber: row.RowNumber,
			})
		}
	}

	// =========================================================================
	// FASTA FILE NAME
	// =========================================================================

	if row.Filepath != "" && !IsCompressedFasta(row.Filepath) {
		errors = append(errors, &ValidationError{
			Severity: SeverityWarning,
			Field:    types.ColumnFilepath,
			Value:    row.Filepath,
			Rule:     RuleFastaName,
			Message: fmt.Sprintf("File name should contain one of %s",
				strings.Join(CompressedFastaSuffixes, ", ")),
			RowNumber: row.RowNumber,
		})
	}

	return errors
}

func (v *Validator) report(result *ValidationResult, err *ValidationError) {
	if v.options.TreatWarningsAsErrors {
		err.Severity = SeverityError
	}
	result.add(err)
}

// =============================================================================
// FIELD VALIDATORS
// =============================================================================

// validateRunAccession returns a message if run is not a run accession.
func validateRunAccession(run string) string {
	accessionType, err := ena.ParseAccessionType(run)
	if err != nil {
		return fmt.Sprintf("'%s' is not an ENA accession", run)
	}
	if accessionType != ena.RunAccession {
		return fmt.Sprintf("'%s' is a %s, not a run accession", run, accessionType)
	}

	return ""
}

// validateCoverage returns a message if value is not a non-negative number.
func validateCoverage(value string) string {
	coverage, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(coverage) || math.IsInf(coverage, 0) {
		return fmt.Sprintf("Coverage '%s' is not a number", value)
	}
	if coverage < 0 {
		return fmt.Sprintf("Coverage '%s' is negative", value)
	}

	return ""
}

// IsCompressedFasta reports whether the file name marks a gzipped FASTA.
func IsCompressedFasta(path string) bool {
	name := filepath.Base(path)
	for _, suffix := range CompressedFastaSuffixes {
		if strings.Contains(name, suffix) {
			return true
		}
	}

	return false
}

// duplicateRuns warns about rows assembled from the same set of runs.
func duplicateRuns(rows []types.AssemblyRow) []*ValidationError {
	var errors []*ValidationError
	seen := make(map[string]int)

	for _, row := range rows {
		if len(row.Runs) == 0 {
			continue
		}

		runs := append([]string(nil), row.Runs...)
		sort.Strings(runs)
		key := strings.Join(runs, ",")

		if first, ok := seen[key]; ok {
			errors = append(errors, &ValidationError{
				Severity:  SeverityWarning,
				Field:     types.ColumnRun,
				Value:     row.RunRef(),
				Rule:      RuleDuplicateRuns,
				Message:   fmt.Sprintf("Same runs as row %d", first),
				RowNumber: row.RowNumber,
			})
			continue
		}
		seen[key] = row.RowNumber
	}

	return errors
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder

	fmt.Fprintf(&builder, "Validation completed with %d finding(s):\n\n", len(errors))
	for i, err := range errors {
		fmt.Fprintf(&builder, "%d. %s\n", i+1, err.Error())
	}

	return builder.String()
}
