package common

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

// GenerateRandByteArray returns n cryptographically random bytes.
// It panics only if the system random source is broken.
func GenerateRandByteArray(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// NewOpaqueToken returns an unguessable capability string built from two
// concatenated random (version 4) UUIDs with the dashes stripped: 64 hex characters.
func NewOpaqueToken() (string, error) {
	first, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	second, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(first.String()+second.String(), "-", ""), nil
}

// WipeByteArray overwrites b with zeros. Used for passwords read from a terminal.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
