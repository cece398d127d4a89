package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// TokenPrefix identifies opaque tokens minted by this registry.
const TokenPrefix = "reg_"

// TokenByteLength is the amount of randomness (32 bytes = 256 bits)
// backing every generated token.
const TokenByteLength = 32

// GenerateToken returns a new opaque token of the form
// reg_<base64url(32 random bytes)>. The core stores tokens verbatim —
// generation is this package's only responsibility, per the spec's
// "generation is a collaborator; the core stores them verbatim" note.
func GenerateToken() (string, error) {
	buf := make([]byte, TokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: failed to generate random token: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex-encoded SHA-256 hash of token, suitable for
// storing API tokens by hash rather than plaintext.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
