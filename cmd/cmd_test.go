package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebi-metagenomics/assembly-uploader/internal/config"
	"github.com/ebi-metagenomics/assembly-uploader/internal/manifest"
)

// fakeENA serves the portal search API and the drop-box.
type fakeENA struct {
	mu          sync.Mutex
	submissions []string
}

func (f *fakeENA) serve(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/portal/api/search", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseForm()) {
			return
		}

		switch r.PostForm.Get("result") {
		case "study":
			_, _ = io.WriteString(w, `[{"study_accession":"PRJEB41657",`+
				`"study_title":"HoloFood Salmon Trial A+B Gut Metagenome",`+
				`"study_description":"Salmon gut metagenomes",`+
				`"first_public":"2022-08-02"}]`)
		case "read_run":
			_, _ = io.WriteString(w, `[{"run_accession":"ERR4918394",`+
				`"sample_accession":"SAMEA7687881","instrument_model":"DNBSEQ-G400"}]`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/dropbox/test", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		file, _, err := r.FormFile("SUBMISSION")
		if !assert.NoError(t, err) {
			return
		}
		submission, _ := io.ReadAll(file)
		_ = file.Close()

		f.mu.Lock()
		f.submissions = append(f.submissions, string(submission))
		f.mu.Unlock()

		if strings.Contains(string(submission), "<RELEASE") {
			_, _ = io.WriteString(w, `<RECEIPT success="true"><ACTIONS>RELEASE</ACTIONS></RECEIPT>`)
			return
		}
		_, _ = io.WriteString(w, `<RECEIPT success="true">`+
			`<PROJECT accession="PRJEB98765" alias="PRJEB41657_assembly" status="PRIVATE"/>`+
			`<ACTIONS>ADD</ACTIONS></RECEIPT>`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

// writeConfig writes a configuration pointing every endpoint at srv.
func writeConfig(t *testing.T, srv *httptest.Server, dir string) string {
	t.Helper()

	return writeConfigWithJournal(t, srv, dir, filepath.Join(dir, "journal.db"))
}

func writeConfigWithJournal(t *testing.T, srv *httptest.Server, dir, journalPath string) string {
	t.Helper()

	path := filepath.Join(dir, "assembly-uploader.yaml")
	content := fmt.Sprintf(`ena:
  portal_search_url: %[1]s/portal/api/search
  report_url: %[1]s/report/
  dropbox_test_url: %[1]s/dropbox/test
  dropbox_prod_url: %[1]s/dropbox/prod
  timeout: 5s
retry:
  attempts: 2
  backoff: 1ms
log_level: error
journal:
  path: %[2]s
`, srv.URL, journalPath)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

func TestStudyWorkflow(t *testing.T) {
	t.Setenv(config.EnvWebinUser, "Webin-1")
	t.Setenv(config.EnvWebinPassword, "secret")

	ena := &fakeENA{}
	srv := ena.serve(t)
	dir := t.TempDir()
	cfg := writeConfig(t, srv, dir)

	out, err := run(t, "--config", cfg, "study_xmls",
		"--study", "PRJEB41657", "--library", "Metagenome", "--center", "EMG", "--output-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Alias:      PRJEB41657_assembly\n")
	assert.Contains(t, out, "Metagenome assembly of PRJEB41657 data set (HoloFood Salmon Trial A+B Gut Metagenome)")

	uploadDir := filepath.Join(dir, "PRJEB41657_upload")
	assert.FileExists(t, filepath.Join(uploadDir, "PRJEB41657_reg.xml"))
	assert.FileExists(t, filepath.Join(uploadDir, "PRJEB41657_submission.xml"))

	out, err = run(t, "--config", cfg, "submit_study", "--study", "PRJEB41657", "--directory", uploadDir, "--test")
	require.NoError(t, err)
	assert.Equal(t, "PRJEB98765\n", out)

	out, err = run(t, "--config", cfg, "release_study", "--study", "PRJEB98765", "--test")
	require.NoError(t, err)
	assert.Equal(t, "PRJEB98765 released\n", out)

	require.Len(t, ena.submissions, 2)
	assert.Contains(t, ena.submissions[0], `<SUBMISSION center_name="EMG">`)
	assert.Contains(t, ena.submissions[1], `<RELEASE target="PRJEB98765"/>`)

	out, err = run(t, "--config", cfg, "history")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, `ADD\s+PRJEB41657\s+PRJEB98765\s+test\s+ok`, lines[1])
	assert.Regexp(t, `RELEASE\s+PRJEB98765\s+PRJEB98765\s+test\s+ok`, lines[2])

	out, err = run(t, "--config", cfg, "history", "--study", "prjeb41657")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestSubmitWithUnusableJournal(t *testing.T) {
	t.Setenv(config.EnvWebinUser, "Webin-1")
	t.Setenv(config.EnvWebinPassword, "secret")

	ena := &fakeENA{}
	srv := ena.serve(t)
	dir := t.TempDir()

	// a regular file where the journal directory should be
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	cfg := writeConfigWithJournal(t, srv, dir, filepath.Join(blocker, "journal.db"))

	uploadDir := filepath.Join(dir, "ERP125469_upload")
	require.NoError(t, os.MkdirAll(uploadDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(uploadDir, "ERP125469_reg.xml"), []byte("<PROJECT_SET/>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(uploadDir, "ERP125469_submission.xml"), []byte("<SUBMISSION/>"), 0o600))

	out, err := run(t, "--config", cfg, "submit_study", "--study", "ERP125469", "--directory", uploadDir, "--test")
	require.NoError(t, err)
	assert.Equal(t, "PRJEB98765\n", out)

	out, err = run(t, "--config", cfg, "release_study", "--study", "PRJEB98765", "--test")
	require.NoError(t, err)
	assert.Equal(t, "PRJEB98765 released\n", out)
	assert.Len(t, ena.submissions, 2)

	_, err = run(t, "--config", cfg, "history")
	require.Error(t, err)
}

func TestAssemblyManifestCommand(t *testing.T) {
	t.Setenv(config.EnvWebinUser, "")
	t.Setenv(config.EnvWebinPassword, "")

	srv := (&fakeENA{}).serve(t)
	dir := t.TempDir()
	cfg := writeConfig(t, srv, dir)

	fasta := filepath.Join(dir, "ERR4918394.fasta.gz")
	require.NoError(t, os.WriteFile(fasta, nil, 0o600))
	data := filepath.Join(dir, "assemblies.csv")
	require.NoError(t, os.WriteFile(data,
		[]byte("Run,Coverage,Assembler,Version,Filepath\nERR4918394,20.0,megahit,1.2.9,"+fasta+"\n"), 0o600))

	out, err := run(t, "--config", cfg, "assembly_manifest",
		"--study", "ERP125469", "--assembly_study", "PRJEB98765", "--data", data, "--output-dir", dir, "--tpa")
	require.NoError(t, err)

	manifestPath := filepath.Join(dir, "ERP125469_upload", "d41d8cd98f00.manifest")
	assert.Contains(t, out, "written")
	assert.Contains(t, out, manifestPath)

	content, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "PLATFORM\tDnbseq-G400\n")
	assert.Contains(t, string(content), "STUDY\tPRJEB98765\n")
	assert.True(t, strings.HasSuffix(string(content), "TPA\ttrue\n"))

	duplicated := filepath.Join(dir, "duplicated.csv")
	row := "ERR4918394,20.0,megahit,1.2.9," + fasta + "\n"
	require.NoError(t, os.WriteFile(duplicated,
		[]byte("Run,Coverage,Assembler,Version,Filepath\n"+row+row), 0o600))

	out, err = run(t, "--config", cfg, "assembly_manifest", "--strict", "--force",
		"--study", "ERP125469", "--assembly_study", "PRJEB98765", "--data", duplicated, "--output-dir", dir)
	require.ErrorAs(t, err, new(manifest.RowsFailedError))
	assert.Contains(t, out, "Validation completed with 1 finding(s)")
	assert.Contains(t, out, "[ERROR] row 3, field 'Run': Same runs as row 2")
}

func TestCommandErrors(t *testing.T) {
	t.Setenv(config.EnvWebinUser, "")
	t.Setenv(config.EnvWebinPassword, "")

	srv := (&fakeENA{}).serve(t)
	dir := t.TempDir()
	cfg := writeConfig(t, srv, dir)

	_, err := run(t, "--config", cfg, "submit_study", "--study", "ERP125469")
	var missing config.MissingCredentialsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, config.EnvWebinUser, missing.Variable)

	_, err = run(t, "--config", cfg, "study_xmls", "--study", "ERP125469", "--library", "genome", "--center", "EMG")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "genome")

	_, err = run(t, "--config", cfg, "assembly_manifest", "--study", "ERP125469")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")

	_, err = run(t, "--config", filepath.Join(dir, "missing.yaml"), "version")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "assembly-uploader\nVersion:    "+Version+"\n"))
}
