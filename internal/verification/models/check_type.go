package models

import (
	"strings"

	dErrors "bgv/pkg/domain-errors"
)

// CheckType is a verification category.
type CheckType string

const (
	CheckTypeIdentity    CheckType = "IDENTITY"
	CheckTypeAddress     CheckType = "ADDRESS"
	CheckTypeEmployment  CheckType = "EMPLOYMENT"
	CheckTypeEducation   CheckType = "EDUCATION"
	CheckTypeCriminal    CheckType = "CRIMINAL"
	CheckTypeReference   CheckType = "REFERENCE"
	CheckTypeSocialMedia CheckType = "SOCIAL_MEDIA"
)

var AllCheckTypes = []CheckType{
	CheckTypeIdentity,
	CheckTypeAddress,
	CheckTypeEmployment,
	CheckTypeEducation,
	CheckTypeCriminal,
	CheckTypeReference,
	CheckTypeSocialMedia,
}

func (t CheckType) IsDefined() bool {
	for _, known := range AllCheckTypes {
		if t == known {
			return true
		}
	}
	return false
}

func ParseCheckType(s string) (CheckType, error) {
	t := CheckType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsDefined() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown check type %q", s)
	}
	return t, nil
}

// Package names a bundle of check types selected at case initiation.
type Package string

const (
	PackageBasic         Package = "BASIC"
	PackageStandard      Package = "STANDARD"
	PackageComprehensive Package = "COMPREHENSIVE"
)

// DefaultPackages maps each built-in package to its check types.
var DefaultPackages = map[Package][]CheckType{
	PackageBasic: {
		CheckTypeIdentity,
		CheckTypeAddress,
		CheckTypeCriminal,
	},
	PackageStandard: {
		CheckTypeIdentity,
		CheckTypeAddress,
		CheckTypeEmployment,
		CheckTypeEducation,
		CheckTypeCriminal,
	},
	PackageComprehensive: AllCheckTypes,
}

func ParsePackage(s string) (Package, error) {
	p := Package(strings.ToUpper(strings.TrimSpace(s)))
	if p == "" {
		return "", dErrors.New(dErrors.CodeValidation, "package is required")
	}
	return p, nil
}
