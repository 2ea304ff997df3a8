// =============================================================================
// Assembly Uploader - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the uploader, including:
//   - Upload directory layout (<output-dir>/<study>_upload)
//   - File checksums used as assembly aliases
//   - Test-mode tokens that keep test registrations unique
//   - Error log generation for rejected metadata rows
//
// DIRECTORY LAYOUT:
//   <output-dir>/
//     <study>_upload/
//       <study>_reg.xml          <!-- study registration -->
//       <study>_submission.xml   <!-- submission actions -->
//       <alias>.manifest         <!-- one per assembly -->
//       error_log_<timestamp>.txt
//
// =============================================================================

package utils

import (
	"bufio"
	"crypto/md5" //nolint:gosec // md5 only derives file aliases
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// UPLOAD DIRECTORY
// =============================================================================

// UploadDir describes the directory holding the files of one study upload.
type UploadDir struct {
	// Study is the raw reads study accession the upload derives from.
	Study string

	// Path is the absolute directory path.
	Path string
}

// NewUploadDir returns the upload directory of study under outputDir. An
// empty outputDir means the working directory.
func NewUploadDir(outputDir, study string) (*UploadDir, error) {
	if outputDir == "" {
		outputDir = "."
	}

	path, err := filepath.Abs(filepath.Join(outputDir, study+"_upload"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload directory: %w", err)
	}

	return &UploadDir{Study: study, Path: path}, nil
}

// OpenUploadDir uses an existing directory as the upload directory of study.
// An empty dir falls back to NewUploadDir in the working directory.
func OpenUploadDir(dir, study string) (*UploadDir, error) {
	if dir == "" {
		return NewUploadDir("", study)
	}

	path, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload directory: %w", err)
	}

	return &UploadDir{Study: study, Path: path}, nil
}

// Ensure creates the directory if it doesn't exist.
func (u *UploadDir) Ensure() error {
	if err := os.MkdirAll(u.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", u.Path, err)
	}

	return nil
}

// StudyXMLPath is the registration document of the study.
func (u *UploadDir) StudyXMLPath() string {
	return filepath.Join(u.Path, u.Study+"_reg.xml")
}

// SubmissionXMLPath is the submission document of the study.
func (u *UploadDir) SubmissionXMLPath() string {
	return filepath.Join(u.Path, u.Study+"_submission.xml")
}

// ManifestPath is the manifest of the assembly with the given alias.
func (u *UploadDir) ManifestPath(alias string) string {
	return filepath.Join(u.Path, alias+".manifest")
}

// =============================================================================
// CHECKSUMS AND TOKENS
// =============================================================================

// MD5File returns the hex MD5 digest of a file's contents.
func MD5File(path string) (string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New() //nolint:gosec
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// TestToken returns a short random token appended to names in test mode,
// since the ENA test server rejects a second object with the same alias.
func TestToken() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}

// =============================================================================
// FILE HELPERS
// =============================================================================

// FileExists checks if a regular file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return !info.IsDir()
}

// WriteFile writes data to path through a temporary file in the same
// directory, so a failed write never leaves a truncated document behind.
func WriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry represents a single rejected metadata row or field.
type ErrorLogEntry struct {
	Timestamp    time.Time
	FileName     string
	ErrorType    string
	ErrorMessage string
	RowNumber    int
	FieldName    string
	FieldValue   string
}

// WriteErrorLog writes error entries to a log file in outputDir.
//
// PARAMETERS:
//   - entries: The error entries to write.
//   - outputDir: The directory to write the log file.
//
// RETURNS:
//   - The path to the error log file, empty when there was nothing to log.
//   - An error if writing fails.
func WriteErrorLog(entries []ErrorLogEntry, outputDir string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(outputDir, fmt.Sprintf("error_log_%s.txt", timestamp))

	file, err := os.Create(filepath.Clean(logPath))
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "Assembly Uploader - Error Log\n"+
		"Generated: %s\n"+
		"Total Errors: %d\n"+
		"%s\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		len(entries),
		strings.Repeat("=", 80))

	for i, entry := range entries {
		fmt.Fprintf(writer, "Error #%d\n"+
			"  Timestamp:      %s\n"+
			"  File:           %s\n"+
			"  Error Type:     %s\n"+
			"  Message:        %s\n",
			i+1,
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.FileName,
			entry.ErrorType,
			entry.ErrorMessage)

		if entry.RowNumber > 0 {
			fmt.Fprintf(writer, "  Row Number:     %d\n", entry.RowNumber)
		}
		if entry.FieldName != "" {
			fmt.Fprintf(writer, "  Field:          %s\n", entry.FieldName)
		}
		if entry.FieldValue != "" {
			fmt.Fprintf(writer, "  Value:          %s\n", entry.FieldValue)
		}

		writer.WriteString("\n")
	}

	writer.WriteString(strings.Repeat("=", 80) + "\nEnd of Error Log\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush error log: %w", err)
	}

	return logPath, nil
}
