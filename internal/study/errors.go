package study

import "fmt"

// InvalidLibraryError is returned for a library other than metagenome or
// metatranscriptome.
type InvalidLibraryError struct {
	Value string
}

func (e InvalidLibraryError) Error() string {
	return fmt.Sprintf("invalid library %q: expected %s or %s", e.Value, Metagenome, Metatranscriptome)
}

// InvalidHoldDateError is returned for a hold date not in dd-mm-yyyy format.
type InvalidHoldDateError struct {
	Value string
}

func (e InvalidHoldDateError) Error() string {
	return fmt.Sprintf("invalid hold date %q: expected dd-mm-yyyy", e.Value)
}
