package evidence_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bgv/internal/verification/evidence"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestHash(t *testing.T) {
	// sha256("abc")
	const abc = "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

	got, err := evidence.Hash(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, abc, got)

	_, err = evidence.Hash(failingReader{})
	require.Error(t, err)
}

func TestVerifyIntegrity(t *testing.T) {
	stored, err := evidence.Hash(strings.NewReader("payslip-march.pdf bytes"))
	require.NoError(t, err)

	t.Run("matching content", func(t *testing.T) {
		res, err := evidence.VerifyIntegrity(strings.NewReader("payslip-march.pdf bytes"), stored)
		require.NoError(t, err)
		assert.True(t, res.Match)
		assert.Equal(t, stored, res.Computed)
	})

	t.Run("tampered content", func(t *testing.T) {
		res, err := evidence.VerifyIntegrity(strings.NewReader("payslip-march.pdf bytes, edited"), stored)
		require.NoError(t, err)
		assert.False(t, res.Match)
		assert.NotEqual(t, stored, res.Computed)
	})

	t.Run("stored digest without prefix", func(t *testing.T) {
		bare := strings.ToUpper(strings.TrimPrefix(stored, evidence.HashPrefix))
		res, err := evidence.VerifyIntegrity(strings.NewReader("payslip-march.pdf bytes"), bare)
		require.NoError(t, err)
		assert.True(t, res.Match)
	})

	t.Run("read failure", func(t *testing.T) {
		_, err := evidence.VerifyIntegrity(failingReader{}, stored)
		require.Error(t, err)
	})
}
