package security

import (
	"crypto/rand"
	"encoding/hex"
)

// NewOpaqueToken returns a cryptographically random token for email
// verification and password reset links. These are deliberately not
// JWT-shaped: they are single-use, stored server-side with their own expiry
// column, and revoked by clearing the stored value.
func NewOpaqueToken() (string, error) {
	b := make([]byte, 32)

	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
