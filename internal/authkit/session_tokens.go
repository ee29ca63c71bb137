package authkit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const sessionIDByteLength = 32

var sessionIDRandomSource io.Reader = rand.Reader

// NewSessionID returns a random opaque session id for the cookie.
func NewSessionID() (string, error) {
	randomBytes := make([]byte, sessionIDByteLength)
	if _, err := io.ReadFull(sessionIDRandomSource, randomBytes); err != nil {
		return "", fmt.Errorf("session.random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// HashSessionID derives the storage key of a session id. Registries never persist the raw cookie value.
func HashSessionID(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
