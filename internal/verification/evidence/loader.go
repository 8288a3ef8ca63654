package evidence

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"bgv/internal/verification/models"
	bgvstrings "bgv/pkg/platform/strings"
)

// Catalog is the workflow configuration: evidence policies and packages.
type Catalog struct {
	Requirements Requirements
	Packages     map[models.Package][]models.CheckType
}

// DefaultCatalog returns the built-in requirements and packages.
func DefaultCatalog() Catalog {
	pkgs := make(map[models.Package][]models.CheckType, len(models.DefaultPackages))
	for p, types := range models.DefaultPackages {
		pkgs[p] = append([]models.CheckType(nil), types...)
	}
	return Catalog{Requirements: DefaultRequirements(), Packages: pkgs}
}

// ChecksFor resolves a package to its check types.
func (c Catalog) ChecksFor(p models.Package) ([]models.CheckType, bool) {
	types, ok := c.Packages[p]
	return types, ok
}

type fileFormat struct {
	Requirements map[string]RequirementConfig `yaml:"requirements"`
	Packages     map[string][]string          `yaml:"packages"`
}

// LoadFile reads a YAML catalog file and merges it over the defaults.
func LoadFile(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read requirements file: %w", err)
	}
	return Load(bytes.NewReader(raw))
}

// Load parses a YAML catalog and merges it over the defaults. Requirement
// entries replace the default policy for their check type; package entries
// add or replace packages.
//
//	requirements:
//	  EMPLOYMENT:
//	    require_all_mandatory: true
//	    documents:
//	      - {type: PAYSLIP, mandatory: true, min_count: 3}
//	packages:
//	  EXECUTIVE: [IDENTITY, EMPLOYMENT, CRIMINAL, REFERENCE]
func Load(r io.Reader) (Catalog, error) {
	var f fileFormat
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("decode requirements: %w", err)
	}

	cat := DefaultCatalog()
	overrides := make(Requirements, len(f.Requirements))
	for name, cfg := range f.Requirements {
		t, err := models.ParseCheckType(name)
		if err != nil {
			return Catalog{}, fmt.Errorf("requirements: %w", err)
		}
		cfg.CheckType = t
		for i := range cfg.Documents {
			dt, err := models.ParseDocumentType(string(cfg.Documents[i].Type))
			if err != nil {
				return Catalog{}, fmt.Errorf("requirements %s: %w", t, err)
			}
			cfg.Documents[i].Type = dt
		}
		overrides[t] = cfg
	}
	cat.Requirements = cat.Requirements.Merge(overrides)
	if err := cat.Requirements.Validate(); err != nil {
		return Catalog{}, err
	}

	for name, types := range f.Packages {
		p, err := models.ParsePackage(name)
		if err != nil {
			return Catalog{}, fmt.Errorf("packages: %w", err)
		}
		names := bgvstrings.DedupeAndTrimUpper(types)
		if len(names) == 0 {
			return Catalog{}, fmt.Errorf("package %s has no check types", p)
		}
		resolved := make([]models.CheckType, 0, len(names))
		for _, n := range names {
			t, err := models.ParseCheckType(n)
			if err != nil {
				return Catalog{}, fmt.Errorf("package %s: %w", p, err)
			}
			if _, ok := cat.Requirements[t]; !ok {
				return Catalog{}, fmt.Errorf("package %s: no requirements for %s", p, t)
			}
			resolved = append(resolved, t)
		}
		cat.Packages[p] = resolved
	}
	return cat, nil
}
