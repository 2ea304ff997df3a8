package submission

import (
	"fmt"
	"strings"
)

// ServerUnavailableError is returned when the drop-box answers with a
// server-side failure and no usable receipt.
type ServerUnavailableError struct {
	Endpoint   string
	StatusCode int
}

func (e ServerUnavailableError) Error() string {
	return fmt.Sprintf("Project could not be registered on ENA as the server does not respond "+
		"(HTTP %d from %s). Please try again later.", e.StatusCode, e.Endpoint)
}

// SubmissionError is returned when the drop-box rejects a submission.
type SubmissionError struct {
	Action     string
	StatusCode int
	Messages   []string
	Body       string
}

func (e SubmissionError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("%s submission was rejected by ENA (HTTP %d): %s",
			e.Action, e.StatusCode, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("%s submission was rejected by ENA (HTTP %d). HTTP response: %s",
		e.Action, e.StatusCode, e.Body)
}

// ReceiptParseError is returned when a receipt cannot be interpreted.
type ReceiptParseError struct {
	Message string
	Err     error
}

func (e ReceiptParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not parse ENA receipt: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("could not parse ENA receipt: %s", e.Message)
}

func (e ReceiptParseError) Unwrap() error {
	return e.Err
}

// MissingDocumentError is returned when a study XML document has not been
// generated yet.
type MissingDocumentError struct {
	Path string
}

func (e MissingDocumentError) Error() string {
	return fmt.Sprintf("%s does not exist; run study_xmls first", e.Path)
}
