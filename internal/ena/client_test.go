package ena

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebi-metagenomics/assembly-uploader/internal/config"
)

var testCreds = config.Credentials{Username: "fake-webin-999", Password: "fakewebinpw"}

func newTestClient(t *testing.T, srv *httptest.Server, creds config.Credentials) *Client {
	t.Helper()

	cfg := config.Default()
	cfg.ENA.PortalSearchURL = srv.URL + "/ena/portal/api/search"
	cfg.ENA.ReportURL = srv.URL + "/ena/submit/report"
	cfg.Retry.Backoff = time.Millisecond

	return NewClient(cfg, creds, WithHTTPClient(srv.Client()))
}

func TestParseAccessionType(t *testing.T) {
	t.Parallel()

	cases := map[string]AccessionType{
		"PRJEB41657": StudyAccession,
		"ERP125469":  SecondaryStudyAccession,
		"SRP000001":  SecondaryStudyAccession,
		"ERR4918394": RunAccession,
		"DRR000001":  RunAccession,
	}
	for acc, want := range cases {
		got, err := ParseAccessionType(acc)
		require.NoError(t, err, acc)
		assert.Equal(t, want, got, acc)
	}

	_, err := ParseAccessionType("SAMEA7687881")
	var invalid InvalidAccessionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "SAMEA7687881", invalid.Accession)
}

func TestGetStudyPublic(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ena/portal/api/search", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "study", r.PostForm.Get("result"))
		assert.Equal(t, `secondary_study_accession="ERP125469"`, r.PostForm.Get("query"))
		assert.Equal(t, "json", r.PostForm.Get("format"))

		_, _ = io.WriteString(w, `[{"study_accession":"PRJEB41657",`+
			`"study_title":"HoloFood Salmon Trial A+B Gut Metagenome","first_public":"2022-08-02"}]`)
	}))
	defer srv.Close()

	study, err := newTestClient(t, srv, config.Credentials{}).GetStudy(context.Background(), "ERP125469", false)
	require.NoError(t, err)
	assert.Equal(t, "PRJEB41657", study.StudyAccession)
	assert.Equal(t, "HoloFood Salmon Trial A+B Gut Metagenome", study.Title)
	assert.Equal(t, "2022-08-02", study.FirstPublic)
}

func TestGetStudyPrivate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/ena/submit/report/studies/ERP125469", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, testCreds.Username, user)
		assert.Equal(t, testCreds.Password, pass)

		_, _ = io.WriteString(w, `[{"report":{"id":"ERP125469","firstPublic":"2022-08-02T17:21:21",`+
			`"releaseStatus":"PUBLIC","secondaryId":"PRJEB41657",`+
			`"title":"HoloFood Salmon Trial A+B Gut Metagenome","holdDate":"null"},"links":[]}]`)
	}))
	defer srv.Close()

	study, err := newTestClient(t, srv, testCreds).GetStudy(context.Background(), "ERP125469", true)
	require.NoError(t, err)
	assert.Equal(t, "PRJEB41657", study.StudyAccession)
	assert.Equal(t, "ERP125469", study.SecondaryAccession)
	assert.Equal(t, "2022-08-02", study.FirstPublic)
}

func TestGetStudyPrivateNeedsCredentials(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected without credentials")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, config.Credentials{Username: "Webin-1"}).
		GetStudy(context.Background(), "ERP125469", true)

	var missing config.MissingCredentialsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, config.EnvWebinPassword, missing.Variable)
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			assert.Equal(t, "/ena/submit/report/runs/ERR4918394", r.URL.Path)
			_, _ = io.WriteString(w, `[{"report":{"id":"ERR4918394","instrumentModel":"DNBSEQ-G400",`+
				`"studyId":"ERP125469","sampleId":"ERS5444411"},"links":[]}]`)
			return
		}

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "read_run", r.PostForm.Get("result"))
		assert.Equal(t, `run_accession="ERR4918394"`, r.PostForm.Get("query"))
		_, _ = io.WriteString(w, `[{"run_accession":"ERR4918394","sample_accession":"SAMEA7687881",`+
			`"instrument_model":"DNBSEQ-G400"}]`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, testCreds)

	public, err := client.GetRun(context.Background(), "ERR4918394", false)
	require.NoError(t, err)
	assert.Equal(t, "SAMEA7687881", public.SampleAccession)
	assert.Equal(t, "DNBSEQ-G400", public.InstrumentModel)

	private, err := client.GetRun(context.Background(), "ERR4918394", true)
	require.NoError(t, err)
	assert.Equal(t, "ERR4918394", private.RunAccession)
	assert.Equal(t, "ERS5444411", private.SampleAccession)
	assert.Equal(t, "DNBSEQ-G400", private.InstrumentModel)

	_, err = client.GetRun(context.Background(), "ERP125469", false)
	require.ErrorAs(t, err, new(InvalidAccessionError))
}

func TestServerErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, testCreds).GetRun(context.Background(), "ERR1", false)

	var unavailable UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, http.StatusServiceUnavailable, unavailable.StatusCode)
	assert.Contains(t, err.Error(), "unavailable (HTTP 503)")
	assert.False(t, IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryOnConnectionError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		hijacker, ok := w.(http.Hijacker)
		if !assert.True(t, ok) {
			return
		}
		conn, _, err := hijacker.Hijack()
		if !assert.NoError(t, err) {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, testCreds).GetStudy(context.Background(), "ERP125469", false)
	require.Error(t, err)
	assert.Equal(t, "Could not find ERP125469 in ENA after 3 attempts", err.Error())
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryOnNoContentThenSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = io.WriteString(w, `[{"run_accession":"ERR1","sample_accession":"SAMEA1","instrument_model":"HiSeq"}]`)
	}))
	defer srv.Close()

	run, err := newTestClient(t, srv, testCreds).GetRun(context.Background(), "ERR1", false)
	require.NoError(t, err)
	assert.Equal(t, "SAMEA1", run.SampleAccession)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, testCreds).GetStudy(context.Background(), "ERPXYZ", true)

	var httpErr HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Equal(t, "bad query", httpErr.Body)
	assert.False(t, IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmptyResultIsNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, testCreds).GetStudy(context.Background(), "PRJEB1", false)
	require.True(t, IsNotFound(err))
	assert.Equal(t, "Could not find PRJEB1 in ENA", err.Error())
}

func TestRetryHonoursContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.ENA.PortalSearchURL = srv.URL
	cfg.Retry.Backoff = time.Hour
	client := NewClient(cfg, testCreds, WithHTTPClient(srv.Client()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetStudy(ctx, "PRJEB1", false)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPostMultipart(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, testCreds.Username, user)

		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "ADD", r.FormValue("ACTION"))

		file, header, err := r.FormFile("SUBMISSION")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "submission.xml", header.Filename)
		data, _ := io.ReadAll(file)
		assert.True(t, strings.Contains(string(data), "<SUBMISSION"))

		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `<RECEIPT success="true"/>`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, testCreds)
	resp, err := client.PostMultipart(context.Background(), srv.URL+"/submit", []FormPart{
		{Name: "SUBMISSION", FileName: "submission.xml", Content: []byte(`<SUBMISSION center_name="EMG"/>`)},
		{Name: "ACTION", Content: []byte("ADD")},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `<RECEIPT success="true"/>`, string(resp.Body))

	_, err = newTestClient(t, srv, config.Credentials{}).PostMultipart(context.Background(), srv.URL, nil)
	require.ErrorAs(t, err, new(config.MissingCredentialsError))
}

func TestSecureHTTPClientRejectsDowngrade(t *testing.T) {
	t.Parallel()

	client := SecureHTTPClient(time.Second)
	req, err := http.NewRequest(http.MethodGet, "http://example.org/a", http.NoBody)
	require.NoError(t, err)
	via, err := http.NewRequest(http.MethodGet, "https://example.org/a", http.NoBody)
	require.NoError(t, err)

	err = client.CheckRedirect(req, []*http.Request{via})
	require.ErrorAs(t, err, new(*DowngradedRedirectError))

	next, err := http.NewRequest(http.MethodGet, "https://example.org/b", http.NoBody)
	require.NoError(t, err)
	require.NoError(t, client.CheckRedirect(next, []*http.Request{via}))

	chain := make([]*http.Request, maxRedirects)
	for i := range chain {
		chain[i] = via
	}
	require.Error(t, client.CheckRedirect(next, chain))
}

func TestSecureHTTPClientFollowsRedirect(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ena/submit/report/runs/ERR4918394", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/moved/runs/ERR4918394", http.StatusFound)
	})
	mux.HandleFunc("/moved/runs/ERR4918394", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"report":{"id":"ERR4918394","instrumentModel":"DNBSEQ-G400",`+
			`"sampleId":"ERS5444411"},"links":[]}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.Default()
	cfg.ENA.ReportURL = srv.URL + "/ena/submit/report"
	client := NewClient(cfg, testCreds, WithHTTPClient(SecureHTTPClient(5*time.Second)))

	run, err := client.GetRun(context.Background(), "ERR4918394", true)
	require.NoError(t, err)
	assert.Equal(t, "ERS5444411", run.SampleAccession)
}
