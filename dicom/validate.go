package dicom

import (
	"fmt"
	"regexp"
	"strings"

	pacscodec "gitlab.com/medical-research/pacs-codec"
)

// Validation is pure and stateless: each function returns a list of
// human-readable violations, an empty list meaning valid. "Invalid" is an
// expected outcome for clinical data, so nothing here returns an error.

var (
	uidPattern       = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
	patientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

	// sanitizeName keeps word characters, whitespace and the PN component
	// separator; everything else is dropped.
	sanitizeName       = regexp.MustCompile(`[^\w\s^]`)
	collapseWhitespace = regexp.MustCompile(`\s+`)
)

// modalities is the fixed set of DICOM modality codes this platform
// accepts. Matching is case-insensitive; the canonical form is uppercase.
var modalities = map[string]bool{
	"CT": true, "MR": true, "US": true, "CR": true, "DX": true,
	"MG": true, "PT": true, "NM": true, "XA": true, "RF": true,
	"SC": true, "OT": true, "ES": true, "XC": true, "OP": true,
	"RTIMAGE": true, "RTDOSE": true, "RTSTRUCT": true, "RTPLAN": true,
}

// ValidateUID checks the shared UID grammar: dotted numeric segments,
// 1-64 characters, no leading/trailing/consecutive dots. Study, series and
// SOP instance UIDs all use this rule.
func ValidateUID(field, uid string) []string {
	var violations []string
	if uid == "" {
		return append(violations, field+" must not be empty")
	}
	if len(uid) > 64 {
		violations = append(violations, fmt.Sprintf("%s must be at most 64 characters, got %d", field, len(uid)))
	}
	if !uidPattern.MatchString(uid) {
		violations = append(violations, field+" must be numeric segments separated by single dots")
	}
	return violations
}

// ValidateStudyInstanceUID reports whether uid satisfies the UID grammar.
func ValidateStudyInstanceUID(uid string) bool {
	return len(ValidateUID("StudyInstanceUID", uid)) == 0
}

// ValidateSeriesInstanceUID reports whether uid satisfies the UID grammar.
func ValidateSeriesInstanceUID(uid string) bool {
	return len(ValidateUID("SeriesInstanceUID", uid)) == 0
}

// ValidateSOPInstanceUID reports whether uid satisfies the UID grammar.
func ValidateSOPInstanceUID(uid string) bool {
	return len(ValidateUID("SOPInstanceUID", uid)) == 0
}

// ValidatePatientID checks the patient identifier grammar.
func ValidatePatientID(id string) []string {
	var violations []string
	if strings.TrimSpace(id) == "" {
		return append(violations, "PatientID must not be empty")
	}
	if !patientIDPattern.MatchString(id) {
		violations = append(violations, "PatientID must be 1-64 letters, digits, underscores or hyphens")
	}
	return violations
}

// ValidateModality checks membership in the modality set, case-insensitively.
func ValidateModality(modality string) []string {
	var violations []string
	if !modalities[CanonicalModality(modality)] {
		violations = append(violations, fmt.Sprintf("modality %q is not a recognised DICOM modality", modality))
	}
	return violations
}

// CanonicalModality returns the uppercase canonical form of a modality code.
// Canonicalization happens once, here, not scattered through call sites.
func CanonicalModality(modality string) string {
	return strings.ToUpper(strings.TrimSpace(modality))
}

// ValidateDate checks a normalized YYYY-MM-DD study date string.
func ValidateDate(field, date string) []string {
	var violations []string
	if date == "" {
		return violations
	}
	if _, err := decodeDate(strings.ReplaceAll(date, "-", "")); err != nil {
		violations = append(violations, field+" must be a valid calendar date in YYYY-MM-DD form")
	}
	return violations
}

// ValidateMetadata aggregates all field-level checks on a composite record.
func ValidateMetadata(meta *pacscodec.DICOMMetadata) pacscodec.ValidationResult {
	if meta == nil {
		panic("dicom: ValidateMetadata called with nil metadata")
	}

	var violations []string
	violations = append(violations, ValidateUID("StudyInstanceUID", meta.StudyInstanceUID)...)
	violations = append(violations, ValidateUID("SeriesInstanceUID", meta.SeriesInstanceUID)...)
	violations = append(violations, ValidateUID("SOPInstanceUID", meta.SOPInstanceUID)...)
	violations = append(violations, ValidatePatientID(meta.PatientID)...)
	violations = append(violations, ValidateModality(meta.Modality)...)
	violations = append(violations, ValidateDate("StudyDate", meta.StudyDate)...)

	if strings.TrimSpace(meta.PatientName) == "" {
		violations = append(violations, "PatientName must not be empty")
	}
	if strings.TrimSpace(meta.StudyDescription) == "" {
		violations = append(violations, "StudyDescription must not be empty")
	}
	if meta.InstanceNumber < 1 {
		violations = append(violations, "InstanceNumber must be at least 1")
	}
	if meta.SeriesCount < 0 {
		violations = append(violations, "SeriesCount must not be negative")
	}
	if meta.ImageCount < 0 {
		violations = append(violations, "ImageCount must not be negative")
	}

	return pacscodec.ValidationResult{
		Valid:  len(violations) == 0,
		Errors: violations,
	}
}

// SanitizePatientName strips everything except word characters, whitespace
// and the '^' component separator, collapses whitespace and uppercases.
// Use it before persisting or logging a name, never on values compared
// against externally supplied UIDs.
func SanitizePatientName(name string) string {
	s := sanitizeName.ReplaceAllString(name, "")
	s = collapseWhitespace.ReplaceAllString(s, " ")
	return strings.ToUpper(strings.TrimSpace(s))
}
