package platform

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// SuffixLength is the length of the random suffix in tenant secret names.
	SuffixLength = 5
	// PasswordLength is the length of generated tenant role passwords.
	PasswordLength = 10
)

// maxUnbiased is the largest multiple of len(alphanumeric) that fits in a byte.
// Bytes at or above it are rejected so every character is equally likely.
const maxUnbiased = 256 - (256 % len(alphanumeric))

func NewID() string {
	return uuid.New().String()
}

// RandomString returns n characters drawn uniformly, with replacement, from
// the 62-character alphanumeric alphabet using crypto/rand.
func RandomString(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/2+1)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
