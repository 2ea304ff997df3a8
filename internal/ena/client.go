// Package ena wraps the ENA web services used by the uploader: the public
// portal search API, the Webin report API for private data, and the
// drop-box XML submission endpoint.
package ena

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ebi-metagenomics/assembly-uploader/internal/config"
	"github.com/ebi-metagenomics/assembly-uploader/internal/logger"
	"github.com/ebi-metagenomics/assembly-uploader/internal/types"
)

// Client queries and submits to ENA.
type Client struct {
	httpClient *http.Client
	portalURL  string
	reportURL  string
	creds      config.Credentials
	retry      config.RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, e.g. with a test server's client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a client for the endpoints in cfg. The credentials may
// be empty; they are only required for private queries and submissions.
func NewClient(cfg *config.Config, creds config.Credentials, opts ...Option) *Client {
	c := &Client{
		httpClient: SecureHTTPClient(cfg.ENA.Timeout),
		portalURL:  cfg.ENA.PortalSearchURL,
		reportURL:  strings.TrimSuffix(cfg.ENA.ReportURL, "/") + "/",
		creds:      creds,
		retry:      cfg.Retry,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Response is the raw outcome of a request.
type Response struct {
	StatusCode int
	Body       []byte
}

// =============================================================================
// STUDIES AND RUNS
// =============================================================================

// GetStudy fetches study metadata. Public studies are looked up through the
// portal search API; private ones through the Webin report API, which needs
// credentials.
func (c *Client) GetStudy(ctx context.Context, accession string, private bool) (*types.StudyMetadata, error) {
	accType, err := ParseAccessionType(accession)
	if err != nil {
		return nil, err
	}
	if !accType.IsStudy() {
		return nil, InvalidAccessionError{Accession: accession, Expected: "study accession"}
	}

	if private {
		return c.getPrivateStudy(ctx, accession)
	}

	form := url.Values{}
	form.Set("result", "study")
	form.Set("query", fmt.Sprintf("%s=%q", accType, accession))
	form.Set("fields", "study_accession,study_title,study_description,first_public")
	form.Set("format", "json")
	form.Set("dataPortal", "ena")

	resp, err := c.withRetry(ctx, accession, func(ctx context.Context) (*http.Request, error) {
		return c.newSearchRequest(ctx, form)
	})
	if err != nil {
		return nil, err
	}

	var studies []types.StudyMetadata
	if err := json.Unmarshal(resp.Body, &studies); err != nil {
		return nil, fmt.Errorf("failed to decode study %s: %w", accession, err)
	}
	if len(studies) == 0 {
		return nil, NotFoundError{Accession: accession}
	}

	logger.Debugf(ctx, "%s public data returned from ENA", accession)

	return &studies[0], nil
}

// GetRun fetches the sample and instrument of a run.
func (c *Client) GetRun(ctx context.Context, accession string, private bool) (*types.RunMetadata, error) {
	accType, err := ParseAccessionType(accession)
	if err != nil {
		return nil, err
	}
	if accType != RunAccession {
		return nil, InvalidAccessionError{Accession: accession, Expected: "run accession"}
	}

	if private {
		return c.getPrivateRun(ctx, accession)
	}

	form := url.Values{}
	form.Set("result", "read_run")
	form.Set("query", fmt.Sprintf("%s=%q", accType, accession))
	form.Set("fields", "run_accession,sample_accession,instrument_model")
	form.Set("format", "json")

	resp, err := c.withRetry(ctx, accession, func(ctx context.Context) (*http.Request, error) {
		return c.newSearchRequest(ctx, form)
	})
	if err != nil {
		return nil, err
	}

	var runs []types.RunMetadata
	if err := json.Unmarshal(resp.Body, &runs); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", accession, err)
	}
	if len(runs) == 0 {
		return nil, NotFoundError{Accession: accession}
	}

	logger.Debugf(ctx, "%s public data returned from ENA", accession)

	return &runs[0], nil
}

// reportEntry is one element of a Webin report API answer.
type reportEntry struct {
	Report struct {
		ID              string `json:"id"`
		SecondaryID     string `json:"secondaryId"`
		Title           string `json:"title"`
		FirstPublic     string `json:"firstPublic"`
		ReleaseStatus   string `json:"releaseStatus"`
		SampleID        string `json:"sampleId"`
		InstrumentModel string `json:"instrumentModel"`
	} `json:"report"`
}

func (c *Client) getPrivateStudy(ctx context.Context, accession string) (*types.StudyMetadata, error) {
	entry, err := c.getReport(ctx, "studies", accession)
	if err != nil {
		return nil, err
	}

	study := &types.StudyMetadata{
		StudyAccession:     entry.Report.SecondaryID,
		SecondaryAccession: entry.Report.ID,
		Title:              entry.Report.Title,
		FirstPublic:        datePart(entry.Report.FirstPublic),
	}
	// project accessions come back as the id, with no secondary
	if study.StudyAccession == "" {
		study.StudyAccession = entry.Report.ID
		study.SecondaryAccession = ""
	}

	logger.Debugf(ctx, "%s private data returned from ENA", accession)

	return study, nil
}

func (c *Client) getPrivateRun(ctx context.Context, accession string) (*types.RunMetadata, error) {
	entry, err := c.getReport(ctx, "runs", accession)
	if err != nil {
		return nil, err
	}

	logger.Debugf(ctx, "%s private data returned from ENA", accession)

	return &types.RunMetadata{
		RunAccession:    accession,
		SampleAccession: entry.Report.SampleID,
		InstrumentModel: entry.Report.InstrumentModel,
	}, nil
}

func (c *Client) getReport(ctx context.Context, kind, accession string) (*reportEntry, error) {
	if !c.creds.IsSet() {
		return nil, c.missingCredentials()
	}

	resource := c.reportURL + kind + "/" + url.PathEscape(accession)
	resp, err := c.withRetry(ctx, accession, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resource, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var entries []reportEntry
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode report for %s: %w", accession, err)
	}
	if len(entries) == 0 {
		// the report API answers an empty list for objects outside the account
		return nil, NotFoundError{Accession: accession}
	}

	return &entries[0], nil
}

func (c *Client) newSearchRequest(ctx context.Context, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.portalURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "*/*")

	return req, nil
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// FormPart is one part of a multipart drop-box submission. Parts with a
// FileName are sent as file uploads, others as plain form fields.
type FormPart struct {
	Name     string
	FileName string
	Content  []byte
}

// PostMultipart sends parts to a drop-box endpoint with the Webin
// credentials. Submissions are not idempotent, so they are never retried.
// Any HTTP status is returned to the caller; only transport failures are
// errors.
func (c *Client) PostMultipart(ctx context.Context, endpoint string, parts []FormPart) (*Response, error) {
	if !c.creds.IsSet() {
		return nil, c.missingCredentials()
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, part := range parts {
		if part.FileName == "" {
			if err := writer.WriteField(part.Name, string(part.Content)); err != nil {
				return nil, fmt.Errorf("failed to write form field %s: %w", part.Name, err)
			}
			continue
		}

		fw, err := writer.CreateFormFile(part.Name, part.FileName)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file %s: %w", part.Name, err)
		}
		if _, err := fw.Write(part.Content); err != nil {
			return nil, fmt.Errorf("failed to write form file %s: %w", part.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create submission request: %w", err)
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	logger.DebugKV(ctx, "posting to drop-box", "url", endpoint, "parts", len(parts))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submission request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read submission receipt: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// =============================================================================
// RETRIES
// =============================================================================

// withRetry performs the request built by build until it succeeds or the
// configured attempts are spent. Only transport errors and HTTP 204 are
// retried, with a linear backoff. Any other failure status is returned at
// once: UnavailableError for 5xx, HTTPError otherwise.
func (c *Client) withRetry(
	ctx context.Context,
	accession string,
	build func(ctx context.Context) (*http.Request, error),
) (*Response, error) {
	attempts := c.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			logger.Debugf(ctx, "retrying %s (attempt %d of %d): %v", accession, attempt, attempts, lastErr)
			if err := sleep(ctx, time.Duration(attempt-1)*c.retry.Backoff); err != nil {
				return nil, err
			}
		}

		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create request for %s: %w", accession, err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNoContent:
			lastErr = noDataError{URL: req.URL.String()}
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return &Response{StatusCode: resp.StatusCode, Body: data}, nil
		case resp.StatusCode >= 500:
			return nil, UnavailableError{URL: req.URL.String(), StatusCode: resp.StatusCode}
		default:
			return nil, HTTPError{
				URL:        req.URL.String(),
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(data)),
			}
		}
	}

	return nil, NotFoundError{Accession: accession, Attempts: attempts, Err: lastErr}
}

func (c *Client) missingCredentials() error {
	if c.creds.Username == "" {
		return config.MissingCredentialsError{Variable: config.EnvWebinUser}
	}
	return config.MissingCredentialsError{Variable: config.EnvWebinPassword}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// datePart strips the time from an ISO timestamp.
func datePart(timestamp string) string {
	date, _, _ := strings.Cut(timestamp, "T")
	return date
}

// IsNotFound reports whether err means ENA holds no data for the accession.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
