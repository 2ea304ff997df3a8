package xlsxparser

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ebi-metagenomics/assembly-uploader/internal/types"
)

// writeWorkbook saves a workbook with the given sheets. Each sheet is a list
// of rows starting at A1.
func writeWorkbook(t *testing.T, sheets map[string][][]any, order ...string) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}

		for r, row := range sheets[name] {
			for c, value := range row {
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, err)
				require.NoError(t, f.SetCellValue(name, cell, value))
			}
		}
	}

	path := filepath.Join(t.TempDir(), "assemblies.xlsx")
	require.NoError(t, f.SaveAs(path))

	return path
}

func TestParseFile(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, map[string][][]any{
		"_notes": {{"written by hand"}},
		"assemblies": {
			{"run_accession", "Coverage", "assembler", "Version", "file_path", "Sample"},
			{"ERR4918394", 20.5, "megahit", "1.2.9", "/data/ERR4918394.fasta.gz"},
			{},
			{"ERR1, ERR2", 35, "metaspades", "3.15.3", "/data/co.fa.gz", "SAMEA1"},
		},
	}, "_notes", "assemblies")

	table, err := ParseFile(path, "")
	require.NoError(t, err)

	assert.Equal(t, path, table.SourceFile)
	assert.Equal(t, []string{
		types.ColumnRun, types.ColumnCoverage, types.ColumnAssembler,
		types.ColumnVersion, types.ColumnFilepath, types.ColumnSample,
	}, table.Headers)
	assert.Equal(t, []int{2, 4}, table.RowNumbers)

	rows := table.AssemblyRows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"ERR4918394"}, rows[0].Runs)
	assert.Equal(t, "20.5", rows[0].Coverage)
	assert.Equal(t, "", rows[0].Sample)
	assert.Equal(t, []string{"ERR1", "ERR2"}, rows[1].Runs)
	assert.Equal(t, "SAMEA1", rows[1].Sample)
}

func TestParseFileNamedSheet(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, map[string][][]any{
		"first":  {{"Run"}, {"ERR1"}},
		"second": {{}, {"Run", "Coverage"}, {"ERR2", 4}},
	}, "first", "second")

	table, err := ParseFile(path, "SECOND")
	require.NoError(t, err)
	assert.Equal(t, []string{"Run", "Coverage"}, table.Headers)
	assert.Equal(t, []int{3}, table.RowNumbers)
	assert.Equal(t, "ERR2", table.Rows[0][types.ColumnRun])

	_, err = ParseFile(path, "third")
	var notFound SheetNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"first", "second"}, notFound.Sheets)
}

func TestParseFileErrors(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, map[string][][]any{"empty": {}}, "empty")
	_, err := ParseFile(path, "")
	require.ErrorIs(t, err, ErrEmptySheet)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.xlsx"), "")
	require.Error(t, err)
}

func TestIsWorkbook(t *testing.T) {
	t.Parallel()

	assert.True(t, IsWorkbook("meta.XLSX"))
	assert.True(t, IsWorkbook("/a/b/meta.xlsm"))
	assert.False(t, IsWorkbook("meta.csv"))
}
