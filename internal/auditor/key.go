// internal/auditor/key.go
package auditor

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveSigningKey derives the audit signing key from the configured
// secret, so the raw secret never doubles as key material directly.
func DeriveSigningKey(secret []byte) (ed25519.PrivateKey, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("auditor: signing secret is empty")
	}

	kdf := hkdf.New(sha256.New, secret, []byte("continuity-audit-v1"), []byte("ed25519-signing"))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(kdf, seed); err != nil {
		return nil, fmt.Errorf("auditor: derive signing key: %w", err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
