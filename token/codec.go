// Package token implements the secret-token codec used by the password-reset
// and email-verification flows.
//
// Every secret has two derived forms at rest:
//
//   - a slow, salted argon2id hash (the authoritative possession check), and
//   - a fast SHA-256 digest (an index key so storage can locate the candidate
//     row in O(1)).
//
// The fast digest is deterministic and unsalted. It narrows the candidate
// set; it is never a security boundary on its own, since redemption always
// re-verifies against the slow hash.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/mintlane/authcore/password"
)

// SecretBytes is the raw entropy of a generated secret: 32 bytes = 256 bits.
const SecretBytes = 32

// EncodedSecretLength is the fixed length of an encoded secret
// (base64url without padding).
const EncodedSecretLength = 43

// GenerateSecret returns a fresh random secret encoded as a fixed-length
// base64url string.
func GenerateSecret() (string, error) {
	raw := make([]byte, SecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// FastDigest returns the hex-encoded SHA-256 digest of the secret. Used only
// as a storage lookup key.
func FastDigest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Codec derives and verifies the slow hash form of a secret. It shares its
// argon2id cost configuration with the password hasher so both possession
// checks carry the same work factor.
type Codec struct {
	hasher *password.Argon2
}

// NewCodec wraps the given hasher. The hasher must be non-nil.
func NewCodec(hasher *password.Argon2) (*Codec, error) {
	if hasher == nil {
		return nil, errors.New("token codec requires a hasher")
	}
	return &Codec{hasher: hasher}, nil
}

// SlowHash produces the salted argon2id hash of the secret in PHC format.
func (c *Codec) SlowHash(secret string) (string, error) {
	return c.hasher.Hash(secret)
}

// Verify checks the secret against a stored slow hash in constant time.
func (c *Codec) Verify(secret, slowHash string) (bool, error) {
	return c.hasher.Verify(secret, slowHash)
}
