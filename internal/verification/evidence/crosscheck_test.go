package evidence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bgv/internal/verification/evidence"
	"bgv/internal/verification/models"
	id "bgv/pkg/domain"
)

func TestCrossCheck(t *testing.T) {
	profile := map[string]string{
		"name":       "Jane O'Neil",
		"pan_number": "ABCDE1234F",
	}
	pan := models.Document{
		ID:   id.NewDocumentID(),
		Type: models.DocPAN,
		ExtractedFields: map[string]string{
			"name":       "JANE  ONEIL",
			"pan_number": "ABCDE1234X",
			"father":     "John O'Neil",
		},
	}

	issues := evidence.CrossCheck(profile, []models.Document{pan})

	require.Len(t, issues, 1)
	assert.Equal(t, evidence.IssueFieldMismatch, issues[0].Code)
	assert.Equal(t, models.DocPAN, issues[0].DocumentType)
	assert.Contains(t, issues[0].Message, "pan_number")

	t.Run("inactive documents are skipped", func(t *testing.T) {
		deleted := pan
		deleted.Deleted = true
		assert.Empty(t, evidence.CrossCheck(profile, []models.Document{deleted}))
	})

	t.Run("empty profile yields nothing", func(t *testing.T) {
		assert.Empty(t, evidence.CrossCheck(nil, []models.Document{pan}))
	})
}
