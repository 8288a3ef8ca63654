// Package risk maintains the per-case risk score: weighted discrepancies and
// red flags accumulate points, green flags are informational only.
package risk

import (
	"errors"
	"fmt"
	"strings"

	"bgv/internal/verification/models"
	dErrors "bgv/pkg/domain-errors"
)

// Category groups risk item kinds by the check area they concern.
type Category string

const (
	CategoryIdentity    Category = "identity"
	CategoryAddress     Category = "address"
	CategoryEmployment  Category = "employment"
	CategoryEducation   Category = "education"
	CategoryCriminal    Category = "criminal"
	CategoryReference   Category = "reference"
	CategorySocialMedia Category = "social_media"
	CategoryGeneral     Category = "general"
)

// KindInfo is the fixed weighting of one discrepancy or red flag kind.
type KindInfo struct {
	Kind     models.RiskItemKind
	Category Category
	Points   int
}

const (
	// identity
	NameSpellingVariation models.RiskItemKind = "NAME_SPELLING_VARIATION"
	NameMismatch          models.RiskItemKind = "NAME_MISMATCH"
	DOBMismatch           models.RiskItemKind = "DOB_MISMATCH"
	IDNumberMismatch      models.RiskItemKind = "ID_NUMBER_MISMATCH"
	FakeIdentityDocument  models.RiskItemKind = "FAKE_IDENTITY_DOCUMENT"

	// address
	AddressMinorVariation models.RiskItemKind = "ADDRESS_MINOR_VARIATION"
	AddressNotVerified    models.RiskItemKind = "ADDRESS_NOT_VERIFIED"
	AddressMismatch       models.RiskItemKind = "ADDRESS_MISMATCH"
	AddressNonExistent    models.RiskItemKind = "ADDRESS_NON_EXISTENT"

	// employment
	EmploymentDateMismatchMinor models.RiskItemKind = "EMPLOYMENT_DATE_MISMATCH_MINOR"
	EmploymentDateMismatchMajor models.RiskItemKind = "EMPLOYMENT_DATE_MISMATCH_MAJOR"
	DesignationMismatch         models.RiskItemKind = "DESIGNATION_MISMATCH"
	SalaryMismatchMinor         models.RiskItemKind = "SALARY_MISMATCH_MINOR"
	SalaryMismatchMajor         models.RiskItemKind = "SALARY_MISMATCH_MAJOR"
	EmployerNotContactable      models.RiskItemKind = "EMPLOYER_NOT_CONTACTABLE"
	UndisclosedEmployment       models.RiskItemKind = "UNDISCLOSED_EMPLOYMENT"
	TerminatedForCause          models.RiskItemKind = "TERMINATED_FOR_CAUSE"
	EmployerDeniedEmployment    models.RiskItemKind = "EMPLOYER_DENIED_EMPLOYMENT"
	FakeExperienceLetter        models.RiskItemKind = "FAKE_EXPERIENCE_LETTER"

	// education
	GraduationYearMismatch   models.RiskItemKind = "GRADUATION_YEAR_MISMATCH"
	GradeMismatch            models.RiskItemKind = "GRADE_MISMATCH"
	DegreeNotVerified        models.RiskItemKind = "DEGREE_NOT_VERIFIED"
	InstitutionNotRecognized models.RiskItemKind = "INSTITUTION_NOT_RECOGNIZED"
	FakeDegree               models.RiskItemKind = "FAKE_DEGREE"

	// criminal
	MinorOffence          models.RiskItemKind = "MINOR_OFFENCE"
	PendingCriminalCase   models.RiskItemKind = "PENDING_CRIMINAL_CASE"
	CriminalRecord        models.RiskItemKind = "CRIMINAL_RECORD"
	SeriousCriminalRecord models.RiskItemKind = "SERIOUS_CRIMINAL_RECORD"

	// reference
	ReferenceUnreachable models.RiskItemKind = "REFERENCE_UNREACHABLE"
	NegativeReference    models.RiskItemKind = "NEGATIVE_REFERENCE"
	FakeReference        models.RiskItemKind = "FAKE_REFERENCE"

	// social media
	InappropriateContent  models.RiskItemKind = "INAPPROPRIATE_CONTENT"
	ConfidentialityBreach models.RiskItemKind = "CONFIDENTIALITY_BREACH"
	HateSpeech            models.RiskItemKind = "HATE_SPEECH"

	// general
	UnexplainedGap          models.RiskItemKind = "UNEXPLAINED_GAP"
	InconsistentInformation models.RiskItemKind = "INCONSISTENT_INFORMATION"
	CandidateNonCooperative models.RiskItemKind = "CANDIDATE_NON_COOPERATIVE"
	DocumentTampered        models.RiskItemKind = "DOCUMENT_TAMPERED"
)

// DefaultKinds is the fixed point table.
var DefaultKinds = []KindInfo{
	{NameSpellingVariation, CategoryIdentity, 3},
	{NameMismatch, CategoryIdentity, 15},
	{DOBMismatch, CategoryIdentity, 15},
	{IDNumberMismatch, CategoryIdentity, 25},
	{FakeIdentityDocument, CategoryIdentity, 60},

	{AddressMinorVariation, CategoryAddress, 3},
	{AddressNotVerified, CategoryAddress, 10},
	{AddressMismatch, CategoryAddress, 15},
	{AddressNonExistent, CategoryAddress, 30},

	{EmploymentDateMismatchMinor, CategoryEmployment, 5},
	{EmploymentDateMismatchMajor, CategoryEmployment, 15},
	{DesignationMismatch, CategoryEmployment, 10},
	{SalaryMismatchMinor, CategoryEmployment, 8},
	{SalaryMismatchMajor, CategoryEmployment, 20},
	{EmployerNotContactable, CategoryEmployment, 10},
	{UndisclosedEmployment, CategoryEmployment, 15},
	{TerminatedForCause, CategoryEmployment, 30},
	{EmployerDeniedEmployment, CategoryEmployment, 40},
	{FakeExperienceLetter, CategoryEmployment, 50},

	{GraduationYearMismatch, CategoryEducation, 8},
	{GradeMismatch, CategoryEducation, 10},
	{DegreeNotVerified, CategoryEducation, 25},
	{InstitutionNotRecognized, CategoryEducation, 30},
	{FakeDegree, CategoryEducation, 60},

	{MinorOffence, CategoryCriminal, 20},
	{PendingCriminalCase, CategoryCriminal, 35},
	{CriminalRecord, CategoryCriminal, 50},
	{SeriousCriminalRecord, CategoryCriminal, 60},

	{ReferenceUnreachable, CategoryReference, 5},
	{NegativeReference, CategoryReference, 20},
	{FakeReference, CategoryReference, 40},

	{InappropriateContent, CategorySocialMedia, 15},
	{ConfidentialityBreach, CategorySocialMedia, 30},
	{HateSpeech, CategorySocialMedia, 40},

	{UnexplainedGap, CategoryGeneral, 5},
	{InconsistentInformation, CategoryGeneral, 10},
	{CandidateNonCooperative, CategoryGeneral, 15},
	{DocumentTampered, CategoryGeneral, 60},
}

// Table is a validated, closed set of risk item kinds.
type Table struct {
	kinds map[models.RiskItemKind]KindInfo
	order []models.RiskItemKind
}

// NewTable validates kinds: every kind is named once, has a category and
// carries a positive point value.
func NewTable(kinds []KindInfo) (*Table, error) {
	t := &Table{kinds: make(map[models.RiskItemKind]KindInfo, len(kinds))}
	for _, k := range kinds {
		if k.Kind == "" {
			return nil, errors.New("risk kind without a name")
		}
		if _, dup := t.kinds[k.Kind]; dup {
			return nil, fmt.Errorf("risk kind %s listed twice", k.Kind)
		}
		if k.Category == "" {
			return nil, fmt.Errorf("risk kind %s has no category", k.Kind)
		}
		if k.Points <= 0 {
			return nil, fmt.Errorf("risk kind %s must carry positive points", k.Kind)
		}
		t.kinds[k.Kind] = k
		t.order = append(t.order, k.Kind)
	}
	return t, nil
}

// MustDefaultTable builds the default table, panicking if it is malformed.
func MustDefaultTable() *Table {
	t, err := NewTable(DefaultKinds)
	if err != nil {
		panic(fmt.Sprintf("risk: invalid default table: %v", err))
	}
	return t
}

// Parse resolves a kind name; unknown names are rejected.
func (t *Table) Parse(name string) (KindInfo, error) {
	kind := models.RiskItemKind(strings.ToUpper(strings.TrimSpace(name)))
	info, ok := t.kinds[kind]
	if !ok {
		return KindInfo{}, dErrors.Newf(dErrors.CodeUnknownDiscrepancy, "unknown discrepancy or flag type %q", name)
	}
	return info, nil
}

// Kinds lists the table in declaration order.
func (t *Table) Kinds() []KindInfo {
	out := make([]KindInfo, len(t.order))
	for i, k := range t.order {
		out[i] = t.kinds[k]
	}
	return out
}

// SeverityFor grades a point value.
func SeverityFor(points int) models.Severity {
	switch {
	case points <= 10:
		return models.SeverityLow
	case points <= 25:
		return models.SeverityMedium
	case points <= 40:
		return models.SeverityHigh
	default:
		return models.SeverityCritical
	}
}

// LevelFor maps a cumulative score to its band.
func LevelFor(score int) models.RiskLevel {
	switch {
	case score <= 0:
		return models.RiskClear
	case score <= 10:
		return models.RiskLow
	case score <= 25:
		return models.RiskModerate
	case score <= 50:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}
