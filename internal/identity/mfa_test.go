package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianclinic/platform/internal/platform/secretbox"
)

func TestGenerateBackupCodesFormat(t *testing.T) {
	codes, err := GenerateBackupCodes(5)
	require.NoError(t, err)
	require.Len(t, codes, 5)

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.Regexp(t, `^[ABCDEFGHJKLMNPQRSTUVWXYZ23456789]{4}-[ABCDEFGHJKLMNPQRSTUVWXYZ23456789]{4}$`, code)
		assert.False(t, seen[code], "backup codes should not repeat within one batch")
		seen[code] = true
	}
}

func TestMFAServiceEnrollAndValidate(t *testing.T) {
	key, err := secretbox.GenerateKey()
	require.NoError(t, err)
	box, err := secretbox.New(key)
	require.NoError(t, err)

	svc := NewMFAService("meridian-clinic", box)

	enrolled, err := svc.Enroll("doc@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, enrolled.SealedSecret)
	assert.NotEmpty(t, enrolled.QRCodePNG)

	ok, err := svc.Validate(enrolled.SealedSecret, "000000")
	require.NoError(t, err)
	assert.False(t, ok, "an arbitrary code should not validate")
}
