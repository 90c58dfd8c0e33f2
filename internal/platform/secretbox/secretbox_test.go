package secretbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := New("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	sealed, err := box.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	require.Contains(t, sealed, "enc:")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "JBSWY3DPEHPK3PXP", opened)
}

func TestOpenRejectsTampering(t *testing.T) {
	box, err := New("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	sealed, err := box.Seal("secret-value")
	require.NoError(t, err)

	tampered := sealed[:len(sealed)-2] + "xx"
	_, err = box.Open(tampered)
	require.Error(t, err)
}

func TestNewRejectsBadKeyLength(t *testing.T) {
	_, err := New("tooshort")
	require.Error(t, err)
}
