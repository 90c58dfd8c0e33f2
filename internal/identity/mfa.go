package identity

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"image/png"
	"math/big"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/meridianclinic/platform/internal/platform/secretbox"
)

var ErrInvalidMFACode = errors.New("identity: invalid mfa code")

// MFAService generates and verifies TOTP second factors. Secrets are
// sealed at rest via secretbox before the caller stores them, since a
// raw TOTP seed in the database is equivalent to a second password.
type MFAService struct {
	issuer string
	box    *secretbox.Box
}

func NewMFAService(issuer string, box *secretbox.Box) *MFAService {
	return &MFAService{issuer: issuer, box: box}
}

// EnrollResult is what a client needs to finish setting up MFA: a QR code
// for authenticator apps and the sealed secret to persist. The raw secret
// is not returned.
type EnrollResult struct {
	SealedSecret string
	QRCodePNG    []byte
}

func (s *MFAService) Enroll(accountEmail string) (*EnrollResult, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("identity: generate totp key: %w", err)
	}

	img, err := key.Image(200, 200)
	if err != nil {
		return nil, fmt.Errorf("identity: render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("identity: encode qr code: %w", err)
	}

	sealed, err := s.box.Seal(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("identity: seal totp secret: %w", err)
	}

	return &EnrollResult{SealedSecret: sealed, QRCodePNG: buf.Bytes()}, nil
}

// Validate unseals the stored secret and checks code against it, allowing
// the library's default one-period clock skew.
func (s *MFAService) Validate(sealedSecret, code string) (bool, error) {
	secret, err := s.box.Open(sealedSecret)
	if err != nil {
		return false, fmt.Errorf("identity: unseal totp secret: %w", err)
	}
	return totp.Validate(code, secret), nil
}

// backupCodeAlphabet excludes visually ambiguous characters (I, O, 0, 1).
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateBackupCodes returns plaintext recovery codes in XXXX-XXXX form;
// callers hash each before storing it, the same as a password.
func GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		raw := make([]byte, 8)
		for j := range raw {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(backupCodeAlphabet))))
			if err != nil {
				return nil, fmt.Errorf("identity: generate backup code: %w", err)
			}
			raw[j] = backupCodeAlphabet[n.Int64()]
		}
		codes[i] = string(raw[:4]) + "-" + string(raw[4:])
	}
	return codes, nil
}
