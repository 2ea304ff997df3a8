package journal

import (
	"fmt"

	"github.com/google/uuid"
)

// indicates that the journal is not open and cannot respond to the given request
type NotOpenError struct{}

func (e NotOpenError) Error() string {
	return "The receipt journal is not open for reading or writing."
}

// indicates that the journal database could not be opened
type CantOpenError struct {
	Path    string
	Message string
}

func (e CantOpenError) Error() string {
	return fmt.Sprintf("Could not open the receipt journal at %s: %s", e.Path, e.Message)
}

// indicates that the journal database could not be closed cleanly
type CantCloseError struct {
	Message string
}

func (e CantCloseError) Error() string {
	return fmt.Sprintf("Could not close the receipt journal: %s", e.Message)
}

// indicates that a new receipt record could not be created
type NewRecordError struct {
	ID      uuid.UUID
	Message string
}

func (e NewRecordError) Error() string {
	return fmt.Sprintf("Could not create a new receipt record with ID %s: %s", e.ID.String(), e.Message)
}

// indicates that a stored record could not be decoded
type InvalidRecordError struct {
	Key     string
	Message string
}

func (e InvalidRecordError) Error() string {
	return fmt.Sprintf("Invalid receipt record %s: %s", e.Key, e.Message)
}

// indicates that no successful record matches a study and action
type RecordNotFoundError struct {
	Study  string
	Action string
}

func (e RecordNotFoundError) Error() string {
	return fmt.Sprintf("No successful %s receipt was found for study %s", e.Action, e.Study)
}
