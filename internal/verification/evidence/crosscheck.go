package evidence

import (
	"fmt"
	"slices"

	"bgv/internal/verification/models"
	bgvstrings "bgv/pkg/platform/strings"
)

// CrossCheck compares extracted document fields against the candidate
// profile. The result is advisory: mismatches are warnings and never gate a
// transition. Fields absent from either side are skipped.
func CrossCheck(profile map[string]string, documents []models.Document) []Issue {
	issues := []Issue{}
	for _, d := range documents {
		if !d.IsActive() || len(d.ExtractedFields) == 0 {
			continue
		}
		keys := make([]string, 0, len(d.ExtractedFields))
		for k := range d.ExtractedFields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, field := range keys {
			want, ok := profile[field]
			if !ok || want == "" {
				continue
			}
			got := d.ExtractedFields[field]
			if got == "" || bgvstrings.EqualFold(got, want) {
				continue
			}
			issues = append(issues, Issue{
				Code:         IssueFieldMismatch,
				DocumentType: d.Type,
				Message:      fmt.Sprintf("%s %s: extracted %s %q does not match profile %q", d.Type, d.ID, field, got, want),
			})
		}
	}
	return issues
}
