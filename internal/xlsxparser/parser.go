// =============================================================================
// Assembly Uploader - XLSX Metadata Parser
// =============================================================================
//
// This module reads assembly metadata kept in a spreadsheet instead of a CSV
// export. The workbook layout is the same as the CSV one: a header row
// followed by one assembly per row.
//
//   | Run        | Coverage | Assembler  | Version | Filepath                  | Sample  |
//   |------------|----------|------------|---------|---------------------------|---------|
//   | ERR4918394 | 20.0     | megahit    | 1.2.9   | /data/ERR4918394.fasta.gz |         |
//   | ERR1,ERR2  | 35.5     | metaspades | 3.15.3  | /data/co.fa.gz            | SAMEA1  |
//
// Only one sheet is read: the named sheet when given, otherwise the first
// visible sheet of the workbook. Sheets whose name starts with "_" are
// treated as notes and never picked by default.
//
// =============================================================================

package xlsxparser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ebi-metagenomics/assembly-uploader/internal/types"
)

var (
	// ErrNoSheets is returned for a workbook without a usable sheet.
	ErrNoSheets = errors.New("workbook has no sheets")

	// ErrEmptySheet is returned for a sheet without a header row.
	ErrEmptySheet = errors.New("sheet is empty")
)

// SheetNotFoundError is returned when a named sheet is not in the workbook.
type SheetNotFoundError struct {
	Sheet  string
	Sheets []string
}

func (e SheetNotFoundError) Error() string {
	return fmt.Sprintf("sheet %q not found (available: %s)", e.Sheet, strings.Join(e.Sheets, ", "))
}

// IsWorkbook reports whether path names an Excel workbook.
func IsWorkbook(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return true
	default:
		return false
	}
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseFile reads the assembly metadata sheet of a workbook.
//
// PARAMETERS:
//   - path: The path to the XLSX file.
//   - sheet: The sheet to read. Empty selects the first sheet.
//
// RETURNS:
//   - The parsed table, headers canonicalized.
//   - An error if the workbook cannot be opened or the sheet is missing.
func ParseFile(path, sheet string) (*types.MetadataTable, error) {
	f, err := excelize.OpenFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	table, err := parseSheet(f, sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	table.SourceFile = path

	return table, nil
}

// parseSheet reads one sheet from an open workbook.
func parseSheet(f *excelize.File, sheet string) (*types.MetadataTable, error) {
	sheetName, err := selectSheet(f, sheet)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	// Leading blank rows are allowed above the header.
	start := 0
	for start < len(rows) && isRowEmpty(rows[start]) {
		start++
	}
	if start == len(rows) {
		return nil, ErrEmptySheet
	}

	headers := cleanHeaders(rows[start])
	table := &types.MetadataTable{Headers: headers}

	for i := start + 1; i < len(rows); i++ {
		row := rows[i]
		if isRowEmpty(row) {
			continue
		}

		table.Rows = append(table.Rows, rowMap(headers, row))
		table.RowNumbers = append(table.RowNumbers, i+1)
	}

	return table, nil
}

// selectSheet resolves the sheet to read.
func selectSheet(f *excelize.File, sheet string) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", ErrNoSheets
	}

	if sheet != "" {
		for _, name := range sheets {
			if strings.EqualFold(name, sheet) {
				return name, nil
			}
		}
		return "", SheetNotFoundError{Sheet: sheet, Sheets: sheets}
	}

	for _, name := range sheets {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if visible, err := f.GetSheetVisible(name); err == nil && !visible {
			continue
		}
		return name, nil
	}

	return "", ErrNoSheets
}

// cleanHeaders canonicalizes header cells. Blank headers become Column_<n>.
func cleanHeaders(row []string) []string {
	headers := make([]string, len(row))
	for i, cell := range row {
		header := types.CanonicalColumn(cell)
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		headers[i] = header
	}

	return headers
}

// rowMap converts a row to a map of header -> trimmed value. GetRows drops
// trailing empty cells, so short rows are padded with "".
func rowMap(headers, row []string) map[string]string {
	fields := make(map[string]string, len(headers))
	for i, header := range headers {
		value := ""
		if i < len(row) {
			value = strings.TrimSpace(row[i])
		}
		fields[header] = value
	}

	return fields
}

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
