package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// MinTokenBytes is the smallest entropy accepted for single-use tokens (256 bits).
const MinTokenBytes = 32

// DefaultSaltBytes is the salt length used for password hashes.
const DefaultSaltBytes = 16

// GenerateToken returns a hex encoded token built from length bytes of crypto/rand.
func GenerateToken(length int) (string, error) {
	return GenerateTokenFrom(rand.Reader, length)
}

// GenerateTokenFrom reads length bytes from r and hex encodes them. Lengths below
// MinTokenBytes are raised to it.
func GenerateTokenFrom(r io.Reader, length int) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	if length < MinTokenBytes {
		length = MinTokenBytes
	}
	buf, err := readBytes(r, length)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateSalt returns DefaultSaltBytes random bytes read from r.
func GenerateSalt(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	buf, err := readBytes(r, DefaultSaltBytes)
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return buf, nil
}

// HashPassword derives an Argon2id hash of password with salt and returns both hex encoded.
func HashPassword(password string, salt []byte, params Argon2Parameters) (hash string, encodedSalt string, err error) {
	if password == "" {
		return "", "", errors.New("hash password: password is required")
	}
	key, err := DeriveKeyArgon2id([]byte(password), salt, params)
	if err != nil {
		return "", "", fmt.Errorf("hash password: %w", err)
	}
	return hex.EncodeToString(key), hex.EncodeToString(salt), nil
}

// VerifyPassword recomputes the Argon2id hash for password and compares it in constant time.
func VerifyPassword(password, encodedHash, encodedSalt string, params Argon2Parameters) bool {
	salt, err := hex.DecodeString(encodedSalt)
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(encodedHash)
	if err != nil || len(expected) == 0 {
		return false
	}
	if password == "" {
		return false
	}
	params.KeyLength = uint32(len(expected))
	key, err := DeriveKeyArgon2id([]byte(password), salt, params)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, expected) == 1
}

// EqualConstantTime compares two strings without leaking where they differ.
func EqualConstantTime(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func readBytes(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
