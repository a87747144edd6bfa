package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// secretIterations is the PBKDF2 iteration count. Do not lower this;
	// existing stored derivations would still verify but new ones would be
	// weaker than the floor we promise.
	secretIterations = 100_000

	// secretKeyLength is the derived key size in bytes.
	secretKeyLength = 32

	// saltLength is the raw byte length of generated salts.
	saltLength = 16
)

// ErrBadSalt reports a salt that violates the storage contract: a non-empty
// base64 string whose encoded length is a multiple of 4. The check runs at
// secret-assignment time so misconfiguration fails fast, not at verify time.
var ErrBadSalt = errors.New("cryptox: salt must be a non-empty base64 string (length multiple of 4)")

// ValidateSalt checks the salt storage contract without deriving anything.
func ValidateSalt(salt string) error {
	if len(salt) == 0 || len(salt)%4 != 0 {
		return ErrBadSalt
	}
	if _, err := base64.StdEncoding.DecodeString(salt); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSalt, err)
	}
	return nil
}

// DeriveSecret applies PBKDF2-HMAC-SHA256 to the plaintext secret with the
// given base64-encoded salt and returns the hex-encoded derivation. The same
// inputs always produce the same output, so verification is an equality check
// against the stored value and the plaintext is never persisted.
func DeriveSecret(secret, salt string) (string, error) {
	if err := ValidateSalt(salt); err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadSalt, err)
	}
	key := pbkdf2.Key([]byte(secret), raw, secretIterations, secretKeyLength, sha256.New)
	return hex.EncodeToString(key), nil
}

// VerifySecret re-derives the plaintext with the stored salt and compares it
// against the stored derivation in constant time.
func VerifySecret(plaintext, salt, derived string) bool {
	computed, err := DeriveSecret(plaintext, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(derived)) == 1
}

// NewSalt generates a random salt encoded per the storage contract.
func NewSalt() (string, error) {
	buf, err := randomBytes(saltLength)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
