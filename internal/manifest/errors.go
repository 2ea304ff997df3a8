package manifest

import (
	"errors"
	"fmt"
)

var (
	// errMissingAssemblyStudy is returned when no target study is given.
	errMissingAssemblyStudy = errors.New("assembly study accession is required")
	// errMissingDataFile is returned when no metadata file is given.
	errMissingDataFile = errors.New("assembly metadata file is required")
)

// InvalidFastaError indicates an assembly file webin-cli cannot upload.
type InvalidFastaError struct {
	Path   string
	Reason string
}

func (e InvalidFastaError) Error() string {
	return fmt.Sprintf("assembly file %s %s", e.Path, e.Reason)
}

// RowsFailedError is returned when at least one metadata row produced no
// manifest.
type RowsFailedError struct {
	Failed  int
	Total   int
	LogPath string
}

func (e RowsFailedError) Error() string {
	msg := fmt.Sprintf("%d of %d assemblies failed", e.Failed, e.Total)
	if e.LogPath != "" {
		msg += fmt.Sprintf(", see %s", e.LogPath)
	}

	return msg
}
