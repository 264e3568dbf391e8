// Package otp generates, hashes and checks the six-digit one-time codes
// used by the password-reset flow.
package otp

import (
	"crypto/rand"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"regexp"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// Length is the number of digits in a code.
	Length = 6

	maxAttempts = 10
	modulus     = 1_000_000
)

var formatRe = regexp.MustCompile(`^\d{6}$`)

// Generator produces codes from a random source. A failing source is retried
// and, after maxAttempts failures, replaced by a pseudo-random code in
// [100000, 999999].
type Generator struct {
	rand io.Reader
}

func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// NewGeneratorWithReader is used by tests to control randomness.
func NewGeneratorWithReader(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// Generate returns a zero-padded six-digit code.
func (g *Generator) Generate() string {
	buf := make([]byte, 3)
	for i := 0; i < maxAttempts; i++ {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			continue
		}
		n := (uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])) % modulus
		return fmt.Sprintf("%06d", n)
	}
	return fmt.Sprintf("%06d", 100_000+mrand.IntN(900_000))
}

// ValidFormat reports whether code is exactly six ASCII digits.
func ValidFormat(code string) bool {
	return formatRe.MatchString(code)
}

// Hash returns the bcrypt hash of code.
func Hash(code string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return "", fmt.Errorf("hash code: %w", err)
	}
	return string(h), nil
}

// Verify reports whether code matches hash. A malformed hash counts as a mismatch.
func Verify(code, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

// ExpiresAt returns the expiry instant for a code issued at now.
func ExpiresAt(now time.Time, validity time.Duration) time.Time {
	return now.Add(validity)
}
