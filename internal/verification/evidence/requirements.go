// Package evidence decides whether a check's uploaded documents satisfy the
// requirement configuration for its type, and verifies document integrity.
package evidence

import (
	"fmt"

	"bgv/internal/verification/models"
	dErrors "bgv/pkg/domain-errors"
)

// DocumentRequirement describes one required (or optional) document type.
type DocumentRequirement struct {
	Type      models.DocumentType `yaml:"type" json:"type"`
	Mandatory bool                `yaml:"mandatory" json:"mandatory"`
	MinCount  int                 `yaml:"min_count" json:"min_count"`
	// MaxAgeDays is zero when the document never goes stale.
	MaxAgeDays int `yaml:"max_age_days" json:"max_age_days"`
}

// minimum is the count that satisfies the requirement.
func (r DocumentRequirement) minimum() int {
	if r.MinCount < 1 {
		return 1
	}
	return r.MinCount
}

// RequirementConfig is the evidence policy for one check type.
type RequirementConfig struct {
	CheckType models.CheckType      `yaml:"-" json:"check_type"`
	Documents []DocumentRequirement `yaml:"documents" json:"documents"`
	// RequireAllMandatory false switches to at-least-one-of mode.
	RequireAllMandatory bool `yaml:"require_all_mandatory" json:"require_all_mandatory"`
	// RequireIntegrity turns a missing content hash into an error.
	RequireIntegrity bool `yaml:"require_integrity" json:"require_integrity"`
}

// MandatoryTypes lists the mandatory document types in configuration order.
func (c RequirementConfig) MandatoryTypes() []models.DocumentType {
	var out []models.DocumentType
	for _, d := range c.Documents {
		if d.Mandatory {
			out = append(out, d.Type)
		}
	}
	return out
}

// Validate rejects malformed configurations.
func (c RequirementConfig) Validate() error {
	if !c.CheckType.IsDefined() {
		return dErrors.Newf(dErrors.CodeMisconfiguredWorkflow, "unknown check type %q", c.CheckType)
	}
	seen := make(map[models.DocumentType]bool, len(c.Documents))
	for _, d := range c.Documents {
		if d.Type == "" {
			return dErrors.Newf(dErrors.CodeMisconfiguredWorkflow, "%s: document type is required", c.CheckType)
		}
		if seen[d.Type] {
			return dErrors.Newf(dErrors.CodeMisconfiguredWorkflow, "%s: document type %s listed twice", c.CheckType, d.Type)
		}
		seen[d.Type] = true
		if d.MinCount < 0 {
			return dErrors.Newf(dErrors.CodeMisconfiguredWorkflow, "%s: %s min_count must not be negative", c.CheckType, d.Type)
		}
		if d.MaxAgeDays < 0 {
			return dErrors.Newf(dErrors.CodeMisconfiguredWorkflow, "%s: %s max_age_days must not be negative", c.CheckType, d.Type)
		}
	}
	return nil
}

// Requirements maps each check type to its evidence policy.
type Requirements map[models.CheckType]RequirementConfig

// For returns the policy for a check type.
func (r Requirements) For(t models.CheckType) (RequirementConfig, error) {
	cfg, ok := r[t]
	if !ok {
		return RequirementConfig{}, dErrors.Newf(dErrors.CodeMisconfiguredWorkflow, "no evidence requirements configured for %s", t)
	}
	return cfg, nil
}

// Validate checks every configured policy.
func (r Requirements) Validate() error {
	for t, cfg := range r {
		if cfg.CheckType != t {
			return fmt.Errorf("requirements keyed %s carry check type %s", t, cfg.CheckType)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Merge returns a copy of r with every policy in overrides replacing the
// policy for the same check type.
func (r Requirements) Merge(overrides Requirements) Requirements {
	out := make(Requirements, len(r)+len(overrides))
	for t, cfg := range r {
		out[t] = cfg
	}
	for t, cfg := range overrides {
		out[t] = cfg
	}
	return out
}

// DefaultRequirements returns the built-in policy for every check type.
func DefaultRequirements() Requirements {
	return Requirements{
		models.CheckTypeIdentity: {
			CheckType: models.CheckTypeIdentity,
			Documents: []DocumentRequirement{
				{Type: models.DocAadhaar, Mandatory: true, MinCount: 1},
				{Type: models.DocPAN, Mandatory: true, MinCount: 1},
				{Type: models.DocPassport, Mandatory: true, MinCount: 1},
			},
			RequireAllMandatory: false,
		},
		models.CheckTypeAddress: {
			CheckType: models.CheckTypeAddress,
			Documents: []DocumentRequirement{
				{Type: models.DocAddressProof, Mandatory: true, MinCount: 1, MaxAgeDays: 90},
			},
			RequireAllMandatory: true,
		},
		models.CheckTypeEmployment: {
			CheckType: models.CheckTypeEmployment,
			Documents: []DocumentRequirement{
				{Type: models.DocPayslip, Mandatory: true, MinCount: 2},
				{Type: models.DocExperienceLetter, Mandatory: true, MinCount: 1},
				{Type: models.DocRelievingLetter, Mandatory: false, MinCount: 1},
			},
			RequireAllMandatory: true,
		},
		models.CheckTypeEducation: {
			CheckType: models.CheckTypeEducation,
			Documents: []DocumentRequirement{
				{Type: models.DocDegreeCertificate, Mandatory: true, MinCount: 1},
				{Type: models.DocMarksheet, Mandatory: true, MinCount: 1},
			},
			RequireAllMandatory: true,
		},
		models.CheckTypeCriminal: {
			CheckType: models.CheckTypeCriminal,
			Documents: []DocumentRequirement{
				{Type: models.DocPoliceVerification, Mandatory: true, MinCount: 1, MaxAgeDays: 180},
			},
			RequireAllMandatory: true,
		},
		models.CheckTypeReference: {
			CheckType: models.CheckTypeReference,
			Documents: []DocumentRequirement{
				{Type: models.DocReferenceForm, Mandatory: true, MinCount: 1},
			},
			RequireAllMandatory: true,
		},
		models.CheckTypeSocialMedia: {
			CheckType: models.CheckTypeSocialMedia,
			Documents: []DocumentRequirement{
				{Type: models.DocSocialMediaReport, Mandatory: true, MinCount: 1},
			},
			RequireAllMandatory: true,
		},
	}
}
