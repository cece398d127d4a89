package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashPassword deterministically hashes pwd salted with salt. It is
// sha256(pwd + salt), hex-encoded, matching the bootstrap invariant
// HashPassword("123", "salt") == "81d40d94fee4fb4eeb1a21bb7adb93c06aad35b929c1a2b024ae33b3a9b79e23".
func HashPassword(pwd, salt string) string {
	sum := sha256.Sum256([]byte(pwd + salt))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword reports whether pwd salted with salt matches the stored
// hash, using a constant-time comparison.
func VerifyPassword(pwd, salt, storedHash string) bool {
	computed := HashPassword(pwd, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
