package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced on registration and password resets
const MinPasswordLength = 8

// HashPassword hashes a password with bcrypt
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches the bcrypt hash
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NormalizeAnswer folds a security answer so that case and surrounding
// whitespace do not matter
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// HashAnswer hashes a normalized security answer
func HashAnswer(answer string) (string, error) {
	normalized := NormalizeAnswer(answer)
	if normalized == "" {
		return "", errors.New("security answer is empty")
	}
	return HashPassword(normalized)
}

// CheckAnswer compares a security answer against its hash
func CheckAnswer(hash, answer string) bool {
	return CheckPassword(hash, NormalizeAnswer(answer))
}

// NewOpaqueToken returns a random token for mailing and the SHA-256 digest
// that is stored in its place
func NewOpaqueToken() (token, digest string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, DigestToken(token), nil
}

// DigestToken hashes an opaque token for lookup
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
