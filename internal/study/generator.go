// =============================================================================
// Assembly Uploader - Study XML Generator
// =============================================================================
//
// This module builds the two documents that register an assembly study at
// ENA: the PROJECT_SET registration (<study>_reg.xml) and the SUBMISSION
// actions (<study>_submission.xml).
//
// GENERATION PROCESS:
//   1. Validate the library type and hold date
//   2. Fetch the raw reads study from ENA (public or private)
//   3. Derive title, description and alias from the raw study
//   4. Write both documents into <output-dir>/<study>_upload/
//
// HOLD DATES:
//   The submission holds the new study private until --hold when given.
//   Otherwise, a raw study that is not public yet passes its own release date
//   on, so the assembly is never released before its reads.
//
// =============================================================================

package study

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ebi-metagenomics/assembly-uploader/internal/logger"
	"github.com/ebi-metagenomics/assembly-uploader/internal/types"
	"github.com/ebi-metagenomics/assembly-uploader/internal/xmlwriter"
	"github.com/ebi-metagenomics/assembly-uploader/pkg/utils"
)

// Library types accepted for an assembly study.
const (
	Metagenome        = "metagenome"
	Metatranscriptome = "metatranscriptome"
)

// HoldDateLayout is the format of the --hold option.
const HoldDateLayout = "02-01-2006"

// enaDateLayout is the date format of ENA documents.
const enaDateLayout = "2006-01-02"

var errMissingCenter = errors.New("center name is required")

// =============================================================================
// GENERATOR OPTIONS
// =============================================================================

// Options contains the parameters of an assembly study registration.
type Options struct {
	// Study is the raw reads study accession, e.g. ERP125469 or PRJEB41657.
	Study string

	// Center is the submission centre name, e.g. EMG.
	Center string

	// Library is "metagenome" or "metatranscriptome" (case insensitive).
	Library string

	// HoldDate keeps the study private until this date, in dd-mm-yyyy.
	// Empty inherits the release date of the raw reads study.
	HoldDate string

	// TPA marks a third party assembly.
	TPA bool

	// Publication is a PubMed ID linked to the study, 0 for none.
	Publication int

	// OutputDir is the parent of the upload directory. Default: "."
	OutputDir string

	// Private queries the raw study through the authenticated report API.
	Private bool

	// Test appends a random token to the alias so the registration can be
	// repeated on the ENA test server.
	Test bool
}

// Fetcher retrieves study metadata from ENA.
type Fetcher interface {
	GetStudy(ctx context.Context, accession string, private bool) (*types.StudyMetadata, error)
}

// =============================================================================
// GENERATOR
// =============================================================================

// Generator writes the registration documents of one assembly study.
type Generator struct {
	opts    Options
	library string
	hold    time.Time
	raw     *types.StudyMetadata
	dir     *utils.UploadDir
	token   string
	now     func() time.Time
}

// NewGenerator validates opts and fetches the raw reads study.
//
// PARAMETERS:
//   - ctx: Context for the ENA query.
//   - fetcher: The ENA client.
//   - opts: The registration parameters.
//
// RETURNS:
//   - The generator, ready to write.
//   - An error if an option is invalid or the study cannot be fetched.
func NewGenerator(ctx context.Context, fetcher Fetcher, opts Options) (*Generator, error) {
	library, err := ParseLibrary(opts.Library)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(opts.Center) == "" {
		return nil, errMissingCenter
	}

	g := &Generator{
		opts:    opts,
		library: library,
		now:     time.Now,
	}

	if opts.HoldDate != "" {
		g.hold, err = time.Parse(HoldDateLayout, opts.HoldDate)
		if err != nil {
			return nil, InvalidHoldDateError{Value: opts.HoldDate}
		}
	}

	g.dir, err = utils.NewUploadDir(opts.OutputDir, opts.Study)
	if err != nil {
		return nil, err
	}

	g.raw, err = fetcher.GetStudy(ctx, opts.Study, opts.Private)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch study %s: %w", opts.Study, err)
	}

	if opts.Test {
		g.token = utils.TestToken()
	}

	logger.DebugKV(ctx, "study fetched",
		"study", opts.Study,
		"accession", g.raw.StudyAccession,
		"first_public", g.raw.FirstPublic)

	return g, nil
}

// ParseLibrary normalizes a library type.
func ParseLibrary(library string) (string, error) {
	switch normalized := strings.ToLower(strings.TrimSpace(library)); normalized {
	case Metagenome, Metatranscriptome:
		return normalized, nil
	default:
		return "", InvalidLibraryError{Value: library}
	}
}

// UploadDir returns the directory the documents are written to.
func (g *Generator) UploadDir() *utils.UploadDir {
	return g.dir
}

// RawStudy returns the metadata of the raw reads study.
func (g *Generator) RawStudy() types.StudyMetadata {
	return *g.raw
}

// Title is the title of the assembly study.
func (g *Generator) Title() string {
	return fmt.Sprintf("%s assembly of %s data set (%s)",
		utils.TitleCase(g.library), g.raw.StudyAccession, g.raw.Title)
}

// Description is the abstract of the assembly study.
func (g *Generator) Description() string {
	var tpa string
	if g.opts.TPA {
		tpa = "Third Party Annotation (TPA) "
	}

	return fmt.Sprintf("The %sassembly was derived from the primary data set %s",
		tpa, g.raw.StudyAccession)
}

// Alias is the project alias, unique per raw study outside of test mode.
func (g *Generator) Alias() string {
	alias := g.raw.StudyAccession + "_assembly"
	if g.token != "" {
		alias += "_" + g.token
	}

	return alias
}

// HoldUntil returns the date the study is held until, in ENA format, or an
// empty string when it can be released at once.
func (g *Generator) HoldUntil() string {
	if !g.hold.IsZero() {
		return g.hold.Format(enaDateLayout)
	}

	today := g.now().Format(enaDateLayout)
	if g.raw.FirstPublic > today {
		return g.raw.FirstPublic
	}

	return ""
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// StudyXML renders the PROJECT_SET registration document.
func (g *Generator) StudyXML() []byte {
	return xmlwriter.Render(xmlwriter.ProjectSet(xmlwriter.ProjectOptions{
		Alias:       g.Alias(),
		CenterName:  g.opts.Center,
		Title:       g.Title(),
		Description: g.Description(),
		PubMedID:    g.opts.Publication,
		TPA:         g.opts.TPA,
		StudyType:   g.library + " assembly",
	}))
}

// SubmissionXML renders the SUBMISSION document.
func (g *Generator) SubmissionXML() []byte {
	return xmlwriter.Render(xmlwriter.Submission(g.opts.Center, g.HoldUntil()))
}

// WriteStudyXML writes <study>_reg.xml.
func (g *Generator) WriteStudyXML() (string, error) {
	return g.write(g.dir.StudyXMLPath(), g.StudyXML())
}

// WriteSubmissionXML writes <study>_submission.xml.
func (g *Generator) WriteSubmissionXML() (string, error) {
	return g.write(g.dir.SubmissionXMLPath(), g.SubmissionXML())
}

// Write writes both documents.
func (g *Generator) Write(ctx context.Context) error {
	studyPath, err := g.WriteStudyXML()
	if err != nil {
		return err
	}
	logger.Infof(ctx, "Study registration written to %s", studyPath)

	submissionPath, err := g.WriteSubmissionXML()
	if err != nil {
		return err
	}
	logger.Infof(ctx, "Submission written to %s", submissionPath)

	if hold := g.HoldUntil(); hold != "" {
		logger.Infof(ctx, "Study will be held private until %s", hold)
	}

	return nil
}

func (g *Generator) write(path string, data []byte) (string, error) {
	if err := g.dir.Ensure(); err != nil {
		return "", err
	}
	if err := utils.WriteFile(path, data); err != nil {
		return "", err
	}

	return path, nil
}
