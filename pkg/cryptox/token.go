package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// Opaque identifiers (client ids, client secrets, authorization codes,
// access/refresh tokens) are hex-encoded SHA-256 digests over a
// cryptographically strong random value mixed with the current timestamp.
// Uniqueness is additionally enforced by UNIQUE indexes in the store; issuers
// retry on conflict.

const entropyBytes = 32

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("cryptox: failed to read random bytes: %w", err)
	}
	return buf, nil
}

func digest(extra ...[]byte) (string, error) {
	buf, err := randomBytes(entropyBytes)
	if err != nil {
		return "", err
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixNano()))

	sum := sha256.New()
	sum.Write(buf)
	sum.Write(ts[:])
	for _, e := range extra {
		sum.Write(e)
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// NewIdentifier produces an unpredictable opaque identifier, used for client
// ids and client secrets.
func NewIdentifier() (string, error) {
	return digest()
}

// NewClientToken produces an opaque token additionally salted with the
// client's public identifier, so token values are not guessable across
// clients. Used for authorization codes and access/refresh tokens.
func NewClientToken(clientID string) (string, error) {
	return digest([]byte(clientID))
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token,
// base64url-encoded. Codes and tokens are persisted by fingerprint so the
// database never holds a directly usable credential.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
