package totp

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image/png"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

const (
	BackupCodeCount = 10
	backupCodeBytes = 4
	qrCodeSize      = 200
	// secrets written with a 16 byte IV are still readable
	legacyNonceSize = 16
)

var (
	ErrInvalidCiphertext = errors.New("invalid encrypted secret")
	ErrInvalidKey        = errors.New("encryption key must be exactly 32 bytes")
)

var sixDigits = regexp.MustCompile(`^\d{6}$`)

// Manager holds the pure two-factor primitives: secrets, enrollment URIs,
// code checks, secret encryption and backup codes. It does no I/O.
type Manager struct {
	key        []byte
	issuer     string
	bcryptCost int
	now        func() time.Time
}

func NewManager(key []byte, issuer string, bcryptCost int) (*Manager, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	if issuer == "" {
		issuer = "Portfolio"
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	return &Manager{key: keyCopy, issuer: issuer, bcryptCost: bcryptCost, now: time.Now}, nil
}

// GenerateSecret returns a new 160 bit base32 secret.
func (m *Manager) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: m.issuer,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key.Secret(), nil
}

func (m *Manager) BuildEnrollmentURI(email, secret string) string {
	query := url.Values{}
	query.Set("secret", secret)
	query.Set("issuer", m.issuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", "6")
	query.Set("period", "30")

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + m.issuer + ":" + email,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// RenderQRCode encodes the URI as a PNG data URL.
func (m *Manager) RenderQRCode(uri string) (string, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return "", fmt.Errorf("failed to parse enrollment URI: %w", err)
	}

	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// FormatSecretForDisplay splits a secret into space separated groups of four.
func FormatSecretForDisplay(secret string) string {
	if secret == "" {
		return secret
	}

	var b strings.Builder
	for i, r := range secret {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// VerifyCode accepts a six digit code, ignoring whitespace, that is valid
// for the current 30 second step or one step either side.
func (m *Manager) VerifyCode(code, secret string) bool {
	code = stripWhitespace(code)
	if !sixDigits.MatchString(code) {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, m.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// Encrypt seals a secret with AES-256-GCM as hex(nonce):hex(tag):hex(ciphertext).
func (m *Manager) Encrypt(secret string) (string, error) {
	gcm, err := m.gcm(0)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(secret), nil)
	ciphertext, tag := sealed[:len(sealed)-gcm.Overhead()], sealed[len(sealed)-gcm.Overhead():]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

func (m *Manager) Decrypt(blob string) (string, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return "", ErrInvalidCiphertext
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	if len(nonce) != 12 && len(nonce) != legacyNonceSize {
		return "", ErrInvalidCiphertext
	}

	gcm, err := m.gcm(len(nonce))
	if err != nil {
		return "", err
	}
	if len(tag) != gcm.Overhead() {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}

func (m *Manager) gcm(nonceSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(m.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if nonceSize == 0 || nonceSize == 12 {
		return cipher.NewGCM(block)
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// GenerateBackupCodes returns BackupCodeCount codes of eight upper-case hex
// characters each.
func (m *Manager) GenerateBackupCodes() ([]string, error) {
	codes := make([]string, 0, BackupCodeCount)
	buf := make([]byte, backupCodeBytes)
	for i := 0; i < BackupCodeCount; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes = append(codes, strings.ToUpper(hex.EncodeToString(buf)))
	}
	return codes, nil
}

func (m *Manager) HashBackupCodes(codes []string) ([]string, error) {
	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		hash, err := bcrypt.GenerateFromPassword([]byte(normalizeBackupCode(code)), m.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash backup code: %w", err)
		}
		hashes = append(hashes, string(hash))
	}
	return hashes, nil
}

// VerifyBackupCode returns the index of the first hash the code matches,
// or false and -1.
func (m *Manager) VerifyBackupCode(code string, hashes []string) (bool, int) {
	code = normalizeBackupCode(code)
	if code == "" {
		return false, -1
	}
	for i, hash := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil {
			return true, i
		}
	}
	return false, -1
}

func normalizeBackupCode(code string) string {
	return strings.ToUpper(stripWhitespace(code))
}

func stripWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
