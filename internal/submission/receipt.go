package submission

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/ebi-metagenomics/assembly-uploader/internal/types"
)

// Markers the drop-box puts in its receipts.
const (
	successMarker = `success="true"`
	existsMarker  = "The object being added already exists in the submission account"
)

var (
	successAccessionRe  = regexp.MustCompile(`accession="(PRJ[EDN][A-Z][0-9]+)"`)
	existingAccessionRe = regexp.MustCompile(
		existsMarker + ` with accession: "(PRJ[EDN][A-Z][0-9]+)"`)

	// StudyAccessionRe matches a complete project accession.
	StudyAccessionRe = regexp.MustCompile(`^PRJ[EDN][A-Z][0-9]+$`)
)

// IsSuccess reports whether a receipt body reports success.
func IsSuccess(body []byte) bool {
	return bytes.Contains(body, []byte(successMarker))
}

// SuccessAccession extracts the project accession of a successful receipt.
// The PROJECT elements are read first; a receipt that does not decode is
// searched for the accession attribute instead.
func SuccessAccession(body []byte) (string, bool) {
	if receipt := decodeReceipt(body); receipt != nil {
		if project, ok := projectOf(receipt); ok {
			return project.Accession, true
		}
	}

	match := successAccessionRe.FindSubmatch(body)
	if match == nil {
		return "", false
	}

	return string(match[1]), true
}

// ExistingAccession extracts the accession of an already registered project
// from the ERROR messages of a rejected receipt, wherever they are nested.
func ExistingAccession(body []byte) (string, error) {
	errorTexts, err := errorMessages(body)
	if err != nil {
		return "", ReceiptParseError{Message: "malformed receipt XML", Err: err}
	}

	for _, text := range errorTexts {
		if match := existingAccessionRe.FindStringSubmatch(text); match != nil {
			return match[1], nil
		}
	}

	return "", ReceiptParseError{Message: "no existing accession in ERROR messages"}
}

// errorMessages returns the text of every ERROR element in the document.
func errorMessages(body []byte) ([]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))

	var (
		messages []string
		current  *strings.Builder
		depth    int
	)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			depth++
			if t.Name.Local == "ERROR" && current == nil {
				current = &strings.Builder{}
			}
		case xml.CharData:
			if current != nil {
				current.Write(t)
			}
		case xml.EndElement:
			depth--
			if t.Name.Local == "ERROR" && current != nil {
				messages = append(messages, strings.TrimSpace(current.String()))
				current = nil
			}
		}
	}

	if depth != 0 {
		return nil, io.ErrUnexpectedEOF
	}

	return messages, nil
}

// projectOf returns the first PROJECT of a receipt holding a project accession.
func projectOf(receipt *types.Receipt) (types.ReceiptObject, bool) {
	for _, project := range receipt.Projects {
		if StudyAccessionRe.MatchString(project.Accession) {
			return project, true
		}
	}

	return types.ReceiptObject{}, false
}

// decodeReceipt decodes a receipt, returning nil when the body is not a
// RECEIPT document.
func decodeReceipt(body []byte) *types.Receipt {
	var receipt types.Receipt
	if err := xml.Unmarshal(body, &receipt); err != nil {
		return nil
	}

	return &receipt
}
