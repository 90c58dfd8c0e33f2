package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("identity: invalid token")
	ErrExpiredToken = errors.New("identity: token has expired")
)

// Claims is the custom JWT claim set spec.md §4.3 names: sub, tenantId,
// email, name, roles, permissions, plus the registered iss/iat/exp.
type Claims struct {
	UserID      uuid.UUID `json:"sub"`
	TenantID    uuid.UUID `json:"tenantId,omitempty"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	Scope       string    `json:"scope"` // "access" | "refresh" | "pre_auth"
	jwt.RegisteredClaims
}

type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// TokenProvider is the Token Service (C3) contract: issue access/refresh/
// pre-auth tokens and validate them, plus publish the public key as JWKS
// for downstream services to verify independently.
type TokenProvider interface {
	GenerateAccessToken(user User, roles, permissions []string) (string, error)
	GenerateRefreshToken(user User) (string, error)
	GeneratePreAuthToken(userID uuid.UUID) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	GetJWKS() (*JWKS, error)
}

// JWTProvider implements TokenProvider with RS256, per the Open Question
// decision recorded in SPEC_FULL.md §4.3: asymmetric signing lets the
// edge gateway and every downstream service verify tokens from the
// public key alone, without sharing the signing secret.
type JWTProvider struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	kid        string
}

func NewJWTProvider(privatePEM, publicPEM, issuer string, accessTTL time.Duration) (*JWTProvider, error) {
	priv, err := parseRSAPrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}

	pub := &priv.PublicKey
	if publicPEM != "" {
		parsed, err := parseRSAPublicKey(publicPEM)
		if err != nil {
			return nil, err
		}
		pub = parsed
	}

	return &JWTProvider{
		privateKey: priv,
		publicKey:  pub,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: 7 * 24 * time.Hour,
		kid:        "sig-1",
	}, nil
}

func parseRSAPrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("identity: failed to parse PEM block containing the private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("identity: key is not an RSA private key")
	}
	return rsaKey, nil
}

func parseRSAPublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("identity: failed to parse PEM block containing the public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: key is not an RSA public key")
	}
	return rsaKey, nil
}

func (p *JWTProvider) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.kid
	signed, err := token.SignedString(p.privateKey)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}

func (p *JWTProvider) GenerateAccessToken(user User, roles, permissions []string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      user.ID,
		TenantID:    user.TenantID,
		Email:       user.Email,
		Name:        user.DisplayName,
		Roles:       roles,
		Permissions: permissions,
		Scope:       "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(p.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    p.issuer,
			Subject:   user.ID.String(),
		},
	}
	return p.sign(claims)
}

// GenerateRefreshToken carries only the subset of claims spec.md §4.3
// names for refresh tokens: sub and tenantId, nothing role/permission
// related, so a stale refresh token can't be replayed for stale grants.
func (p *JWTProvider) GenerateRefreshToken(user User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Scope:    "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(p.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    p.issuer,
			Subject:   user.ID.String(),
		},
	}
	return p.sign(claims)
}

func (p *JWTProvider) GeneratePreAuthToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Scope:  "pre_auth",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    p.issuer,
		},
	}
	return p.sign(claims)
}

func (p *JWTProvider) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", t.Header["alg"])
		}
		return p.publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (p *JWTProvider) GetJWKS() (*JWKS, error) {
	eBuf := big.NewInt(int64(p.publicKey.E)).Bytes()
	e := base64.RawURLEncoding.EncodeToString(eBuf)
	n := base64.RawURLEncoding.EncodeToString(p.publicKey.N.Bytes())

	return &JWKS{Keys: []JWK{{
		Kty: "RSA",
		Kid: p.kid,
		Use: "sig",
		N:   n,
		E:   e,
		Alg: "RS256",
	}}}, nil
}
