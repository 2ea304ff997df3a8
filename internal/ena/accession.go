package ena

import "strings"

// AccessionType is the ENA search field an accession is matched against.
type AccessionType string

const (
	StudyAccession          AccessionType = "study_accession"
	SecondaryStudyAccession AccessionType = "secondary_study_accession"
	RunAccession            AccessionType = "run_accession"
)

// IsStudy reports whether the type identifies a study.
func (t AccessionType) IsStudy() bool {
	return t == StudyAccession || t == SecondaryStudyAccession
}

// ParseAccessionType classifies an accession: PRJ* is a project, ?RP* a
// secondary study and ?RR* a run.
func ParseAccessionType(accession string) (AccessionType, error) {
	switch {
	case strings.HasPrefix(accession, "PRJ"):
		return StudyAccession, nil
	case strings.Contains(accession, "RP"):
		return SecondaryStudyAccession, nil
	case strings.Contains(accession, "RR"):
		return RunAccession, nil
	default:
		return "", InvalidAccessionError{Accession: accession}
	}
}
