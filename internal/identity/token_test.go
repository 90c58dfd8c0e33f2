package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der := x509.MarshalPKCS1PrivateKey(key)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

func TestJWTProviderAccessTokenRoundTrip(t *testing.T) {
	provider, err := NewJWTProvider(testKeyPEM(t), "", "meridian-clinic", 15*time.Minute)
	require.NoError(t, err)

	user := User{ID: uuid.New(), TenantID: uuid.New(), Email: "doc@example.com", DisplayName: "Dr. Example"}
	token, err := provider.GenerateAccessToken(user, []string{"doctor"}, []string{"appointment:read"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := provider.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.TenantID, claims.TenantID)
	assert.Equal(t, "access", claims.Scope)
	assert.Contains(t, claims.Roles, "doctor")
	assert.Contains(t, claims.Permissions, "appointment:read")
}

func TestJWTProviderRejectsTamperedToken(t *testing.T) {
	provider, err := NewJWTProvider(testKeyPEM(t), "", "meridian-clinic", 15*time.Minute)
	require.NoError(t, err)

	user := User{ID: uuid.New(), TenantID: uuid.New()}
	token, err := provider.GenerateAccessToken(user, nil, nil)
	require.NoError(t, err)

	_, err = provider.ValidateToken(token + "tampered")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTProviderPreAuthTokenScope(t *testing.T) {
	provider, err := NewJWTProvider(testKeyPEM(t), "", "meridian-clinic", 15*time.Minute)
	require.NoError(t, err)

	userID := uuid.New()
	token, err := provider.GeneratePreAuthToken(userID)
	require.NoError(t, err)

	claims, err := provider.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "pre_auth", claims.Scope)
	assert.Equal(t, userID, claims.UserID)
}

func TestJWTProviderJWKSExportsPublicKey(t *testing.T) {
	provider, err := NewJWTProvider(testKeyPEM(t), "", "meridian-clinic", 15*time.Minute)
	require.NoError(t, err)

	jwks, err := provider.GetJWKS()
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "RSA", jwks.Keys[0].Kty)
	assert.Equal(t, "RS256", jwks.Keys[0].Alg)
}
