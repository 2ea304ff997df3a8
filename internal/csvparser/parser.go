// =============================================================================
// Assembly Uploader - CSV Parser Module
// =============================================================================
//
// This module is responsible for parsing the assembly metadata CSV that lists
// one assembly per row:
//
//   Run,Coverage,Assembler,Version,Filepath[,Sequencer][,Sample]
//   ERR4918394,20.0,megahit,1.2.9,/data/ERR4918394.fasta.gz
//   "ERR1,ERR2",35.5,metaspades,3.15.3,/data/coassembly.fa.gz
//
// FEATURES:
//   - Header names are matched case-insensitively and common spellings are
//     accepted ("run_accession", "file_path", ...)
//   - Values are trimmed and empty rows are skipped
//   - Quoted fields, so co-assemblies can list several comma-separated runs
//   - Tab or semicolon delimited files
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ebi-metagenomics/assembly-uploader/internal/types"
)

var (
	// ErrEmptyFile is returned for a file with no header row.
	ErrEmptyFile = errors.New("CSV file is empty")
)

// utf8BOM is stripped from the first header, as spreadsheet exports add it.
const utf8BOM = "\ufeff"

// =============================================================================
// PARSER SETTINGS
// =============================================================================

// Settings contains the CSV parsing options.
type Settings struct {
	// Delimiter separates fields: ',' or '\t'. Zero means ','.
	Delimiter rune
}

// DefaultSettings returns comma separated parsing settings.
func DefaultSettings() Settings {
	return Settings{Delimiter: ','}
}

// SettingsFor guesses the settings from a file extension: .tsv files are
// tab delimited, everything else comma delimited.
func SettingsFor(path string) Settings {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return Settings{Delimiter: '\t'}
	}

	return DefaultSettings()
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseFile reads a CSV file and returns the parsed metadata table.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: The CSV parsing settings.
//
// RETURNS:
//   - The parsed table, headers canonicalized.
//   - An error if the file cannot be read or parsed.
func ParseFile(filePath string, settings Settings) (*types.MetadataTable, error) {
	file, err := os.Open(filepath.Clean(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	table, err := Parse(bufio.NewReader(file), settings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	table.SourceFile = filePath

	return table, nil
}

// Parse reads CSV data from r.
//
// PARSING PROCESS:
//   1. Configure the CSV reader with the delimiter
//   2. Read the header row and canonicalize its names
//   3. Convert each non-empty row to a map of column -> value, keeping its
//      source row number for error reports
func Parse(r io.Reader, settings Settings) (*types.MetadataTable, error) {
	csvReader := csv.NewReader(r)
	configureReader(csvReader, settings)

	allRows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	if len(allRows) == 0 {
		return nil, ErrEmptyFile
	}

	headers := cleanHeaders(allRows[0])
	table := &types.MetadataTable{Headers: headers}

	for rowIndex := 1; rowIndex < len(allRows); rowIndex++ {
		row := allRows[rowIndex]
		if isRowEmpty(row) {
			continue
		}

		table.Rows = append(table.Rows, rowMap(headers, row))
		table.RowNumbers = append(table.RowNumbers, rowIndex+1)
	}

	return table, nil
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings Settings) {
	reader.Comma = ','
	if settings.Delimiter == '\t' {
		reader.Comma = '\t'
	}

	// short rows are padded by rowMap
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// cleanHeaders trims and canonicalizes header names. Empty headers become
// Column_<n> so the column can still be reported.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))

	for i, header := range headers {
		if i == 0 {
			header = strings.TrimPrefix(header, utf8BOM)
		}

		header = types.CanonicalColumn(header)
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}

		cleaned[i] = header
	}

	return cleaned
}

// rowMap converts a row to a map of header -> trimmed value. Missing
// trailing cells map to "".
func rowMap(headers, row []string) map[string]string {
	fields := make(map[string]string, len(headers))

	for colIndex, header := range headers {
		if colIndex < len(row) {
			fields[header] = strings.TrimSpace(row[colIndex])
		} else {
			fields[header] = ""
		}
	}

	return fields
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// GetUniqueValues returns the distinct values of a column in first-seen order.
func GetUniqueValues(table *types.MetadataTable, header string) []string {
	seen := make(map[string]bool)
	var unique []string

	for _, row := range table.Rows {
		value := row[header]
		if !seen[value] {
			seen[value] = true
			unique = append(unique, value)
		}
	}

	return unique
}
