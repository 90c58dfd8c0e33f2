package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := NewBcryptHasher()

	hash, err := hasher.Hash("Sup3r!Secret")
	require.NoError(t, err)
	assert.NotEqual(t, "Sup3r!Secret", hash)

	assert.NoError(t, hasher.Compare(hash, "Sup3r!Secret"))
	assert.Error(t, hasher.Compare(hash, "wrong-password"))
}

func TestValidatePasswordPolicy(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"too short", "Ab1!", true},
		{"no digit or symbol", "longenoughpassword", true},
		{"no upper case", "longenough1!", true},
		{"valid", "LongEnough1!", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePasswordPolicy(tc.password)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
