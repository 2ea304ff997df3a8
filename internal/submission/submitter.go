// =============================================================================
// Assembly Uploader - Submission Module
// =============================================================================
//
// This module sends study documents to the ENA drop-box and interprets the
// receipts it returns.
//
// RECEIPT HANDLING (in order):
//   1. success="true"              -> the new project accession
//   2. "object ... already exists" -> the accession of the existing project
//   3. HTTP 5xx                    -> ServerUnavailableError
//   4. anything else               -> SubmissionError with the ERROR messages
//
// Every receipt, successful or not, is recorded in the journal when one is
// configured.
//
// =============================================================================

package submission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ebi-metagenomics/assembly-uploader/internal/ena"
	"github.com/ebi-metagenomics/assembly-uploader/internal/journal"
	"github.com/ebi-metagenomics/assembly-uploader/internal/logger"
	"github.com/ebi-metagenomics/assembly-uploader/internal/xmlwriter"
	"github.com/ebi-metagenomics/assembly-uploader/pkg/utils"
)

// Poster sends multipart drop-box requests.
type Poster interface {
	PostMultipart(ctx context.Context, endpoint string, parts []ena.FormPart) (*ena.Response, error)
}

// Recorder stores receipts.
type Recorder interface {
	Record(record journal.Record) (journal.Record, error)
}

// Endpoints resolves the drop-box URL for test or production mode.
type Endpoints interface {
	DropBoxURL(test bool) string
}

// Result is the outcome of a study registration.
type Result struct {
	// Accession is the project accession of the assembly study.
	Accession string

	// Existing is true when the study had been registered before.
	Existing bool

	// Test is true when the ENA test server was used.
	Test bool

	// SubmissionAccession identifies the drop-box submission, if reported.
	SubmissionAccession string

	// Status and HoldUntil describe the visibility of a new project.
	Status    string
	HoldUntil string

	// Infos holds the INFO messages of the receipt.
	Infos []string
}

// Submitter registers and releases assembly studies.
type Submitter struct {
	poster    Poster
	endpoints Endpoints
	recorder  Recorder
}

// NewSubmitter creates a submitter. recorder may be nil to skip journaling.
func NewSubmitter(poster Poster, endpoints Endpoints, recorder Recorder) *Submitter {
	return &Submitter{
		poster:    poster,
		endpoints: endpoints,
		recorder:  recorder,
	}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// SubmitStudy registers the assembly study whose documents study_xmls wrote
// for study. dir is the upload directory; empty means ./<study>_upload.
//
// PARAMETERS:
//   - ctx: Context for the request.
//   - study: The raw reads study accession the documents were built for.
//   - dir: The directory holding <study>_reg.xml and <study>_submission.xml.
//   - test: Use the ENA test server.
//
// RETURNS:
//   - The accession of the new or already registered project.
//   - An error if the documents are missing or ENA rejects them.
func (s *Submitter) SubmitStudy(ctx context.Context, study, dir string, test bool) (*Result, error) {
	uploadDir, err := utils.OpenUploadDir(dir, study)
	if err != nil {
		return nil, err
	}

	submissionXML, err := readDocument(uploadDir.SubmissionXMLPath())
	if err != nil {
		return nil, err
	}
	studyXML, err := readDocument(uploadDir.StudyXMLPath())
	if err != nil {
		return nil, err
	}

	endpoint := s.endpoints.DropBoxURL(test)
	logger.Infof(ctx, "Submitting study xml %s to %s", study, endpoint)

	resp, err := s.poster.PostMultipart(ctx, endpoint, []ena.FormPart{
		{Name: "SUBMISSION", FileName: filepath.Base(uploadDir.SubmissionXMLPath()), Content: submissionXML},
		{Name: "ACTION", Content: []byte("ADD")},
		{Name: "PROJECT", FileName: filepath.Base(uploadDir.StudyXMLPath()), Content: studyXML},
	})
	if err != nil {
		return nil, err
	}

	result, err := interpretAddReceipt(endpoint, resp)
	s.record(ctx, journal.Record{
		Study:     study,
		Accession: accessionOf(result),
		Action:    journal.ActionAdd,
		Test:      test,
		Success:   err == nil,
		Messages:  messagesOf(err),
	})
	if err != nil {
		return nil, err
	}
	result.Test = test

	for _, info := range result.Infos {
		logger.Infof(ctx, "ENA: %s", info)
	}
	if result.Existing {
		logger.Infof(ctx, "An accession with this alias already exists in project %s", result.Accession)
	} else {
		logger.Infof(ctx, "A new study accession has been created: %s. Make a note of this!", result.Accession)
		logger.InfoKV(ctx, "project registered",
			"accession", result.Accession,
			"submission", result.SubmissionAccession,
			"status", result.Status,
			"hold_until", result.HoldUntil)
	}

	return result, nil
}

func interpretAddReceipt(endpoint string, resp *ena.Response) (*Result, error) {
	switch {
	case IsSuccess(resp.Body):
		accession, ok := SuccessAccession(resp.Body)
		if !ok {
			return nil, ReceiptParseError{Message: "successful receipt holds no project accession"}
		}
		result := &Result{Accession: accession}
		if receipt := decodeReceipt(resp.Body); receipt != nil {
			result.SubmissionAccession = receipt.Submission.Accession
			result.Infos = receipt.Infos
			if project, ok := projectOf(receipt); ok {
				result.Status = project.Status
				result.HoldUntil = project.HoldUntilDate
			}
		}
		return result, nil

	case bytes.Contains(resp.Body, []byte(existsMarker)):
		accession, err := ExistingAccession(resp.Body)
		if err != nil {
			return nil, err
		}
		return &Result{Accession: accession, Existing: true}, nil

	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, ServerUnavailableError{Endpoint: endpoint, StatusCode: resp.StatusCode}

	default:
		return nil, rejection("ADD", resp)
	}
}

// =============================================================================
// RELEASE
// =============================================================================

// ReleaseStudy makes a registered study public.
//
// PARAMETERS:
//   - ctx: Context for the request.
//   - accession: The accession of the study to release.
//   - test: Use the ENA test server.
//
// RETURNS:
//   - An error if ENA does not confirm the release.
func (s *Submitter) ReleaseStudy(ctx context.Context, accession string, test bool) error {
	if accession == "" {
		return errors.New("a study accession is required")
	}

	endpoint := s.endpoints.DropBoxURL(test)
	logger.Infof(ctx, "Releasing study %s via %s", accession, endpoint)

	document := xmlwriter.Render(xmlwriter.ReleaseSubmission(accession))
	resp, err := s.poster.PostMultipart(ctx, endpoint, []ena.FormPart{
		{Name: "SUBMISSION", FileName: "release.xml", Content: document},
	})
	if err != nil {
		return err
	}

	switch {
	case IsSuccess(resp.Body):
		err = nil
	case resp.StatusCode >= http.StatusInternalServerError:
		err = ServerUnavailableError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	default:
		err = rejection("RELEASE", resp)
	}

	s.record(ctx, journal.Record{
		Study:     accession,
		Accession: accession,
		Action:    journal.ActionRelease,
		Test:      test,
		Success:   err == nil,
		Messages:  messagesOf(err),
	})
	if err != nil {
		return err
	}

	logger.Infof(ctx, "Study %s has been released", accession)

	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Submitter) record(ctx context.Context, record journal.Record) {
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Record(record); err != nil {
		logger.Warnf(ctx, "failed to journal %s receipt for %s: %v", record.Action, record.Study, err)
	}
}

func rejection(action string, resp *ena.Response) error {
	rejected := SubmissionError{
		Action:     action,
		StatusCode: resp.StatusCode,
		Body:       string(resp.Body),
	}
	if receipt := decodeReceipt(resp.Body); receipt != nil {
		rejected.Messages = receipt.Errors
	}

	return rejected
}

func readDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, MissingDocumentError{Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}

func accessionOf(result *Result) string {
	if result == nil {
		return ""
	}
	return result.Accession
}

func messagesOf(err error) []string {
	if err == nil {
		return nil
	}

	var rejected SubmissionError
	if errors.As(err, &rejected) && len(rejected.Messages) > 0 {
		return rejected.Messages
	}

	return []string{err.Error()}
}
