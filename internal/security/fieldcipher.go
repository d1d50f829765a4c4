package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const (
	ivSize  = 12
	tagSize = 16
)

var ErrBadKeySize = errors.New("field cipher key must be 32 bytes")

// FieldCipher protects individual scalar values with AES-256-GCM. The
// ciphertext envelope is three colon-separated hex segments,
// IV:AUTH_TAG:CIPHERTEXT, so stored ciphertext is self-identifiable and can
// coexist with legacy plaintext in the same column.
type FieldCipher struct {
	aead cipher.AEAD
	log  *slog.Logger

	// the decrypt-failure warning is emitted once per process, not per call
	warnOnce sync.Once
}

func NewFieldCipher(key []byte, log *slog.Logger) (*FieldCipher, error) {
	if len(key) != 32 {
		return nil, ErrBadKeySize
	}

	block, err := aes.NewCipher(key)

	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)

	if err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.Default()
	}

	return &FieldCipher{aead: aead, log: log}, nil
}

// RandomKey returns a fresh 32-byte key. Used as a dev fallback when no
// ENCRYPTION_KEY is configured; anything encrypted under it is lost on
// restart.
func RandomKey() []byte {
	key := make([]byte, 32)

	if _, err := rand.Read(key); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}

	return key
}

// Encrypt seals a plaintext into the envelope format. The empty string passes
// through unchanged so callers need not special-case absent values.
func (c *FieldCipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return plain, nil
	}

	iv := make([]byte, ivSize)

	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	// Seal appends the 16-byte auth tag after the ciphertext
	sealed := c.aead.Seal(nil, iv, []byte(plain), nil)

	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens an envelope back to plaintext. Input that does not look like
// an envelope is treated as legacy plaintext and returned unchanged. When an
// envelope cannot be opened (wrong key, corrupted tag, truncated ciphertext)
// the stored string is returned as-is and a single process-lifetime warning
// is logged; the persistence layer has no per-record recovery action, so a
// hard failure here would only turn a stale field into a failed read.
func (c *FieldCipher) Decrypt(value string) string {
	if !IsEncryptedValue(value) {
		return value
	}

	plain, err := c.open(value)

	if err != nil {
		c.warnOnce.Do(func() {
			c.log.Warn("field decryption failed, returning stored ciphertext; further failures will not be logged", "err", err)
		})

		return value
	}

	return plain
}

// TryDecrypt is the strict variant for maintenance tooling that must know
// whether the plaintext was actually recovered. Non-envelope input counts as
// already-plaintext.
func (c *FieldCipher) TryDecrypt(value string) (string, error) {
	if !IsEncryptedValue(value) {
		return value, nil
	}

	return c.open(value)
}

func (c *FieldCipher) open(value string) (string, error) {
	parts := strings.Split(value, ":")

	iv, err := hex.DecodeString(parts[0])

	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}

	tag, err := hex.DecodeString(parts[1])

	if err != nil {
		return "", fmt.Errorf("decode auth tag: %w", err)
	}

	ct, err := hex.DecodeString(parts[2])

	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	plain, err := c.aead.Open(nil, iv, append(ct, tag...), nil)

	if err != nil {
		return "", err
	}

	return string(plain), nil
}

// IsEncryptedValue reports whether s is shaped like an envelope: exactly
// three hex segments with a 24-char IV and a 32-char auth tag. It is a
// detection heuristic for telling ciphertext from legacy plaintext, not a
// cryptographic check.
func IsEncryptedValue(s string) bool {
	parts := strings.Split(s, ":")

	if len(parts) != 3 {
		return false
	}

	if len(parts[0]) != ivSize*2 || len(parts[1]) != tagSize*2 || len(parts[2]) == 0 {
		return false
	}

	for _, p := range parts {
		if !isHex(p) {
			return false
		}
	}

	return true
}

func isHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}

	_, err := hex.DecodeString(s)

	return err == nil
}

// HashSHA256 returns the one-way hex digest of s, for
// equality-comparison-without-storing-plaintext use cases.
func HashSHA256(s string) string {
	sum := sha256.Sum256([]byte(s))

	return hex.EncodeToString(sum[:])
}
