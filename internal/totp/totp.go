// Package totp wraps time-based one-time password generation for the
// portal's second factor. Codes follow the standard profile: 30-second step,
// six digits, SHA-1, base32 shared secret.
package totp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// ErrInvalidSecret indicates the shared secret is not valid base32.
var ErrInvalidSecret = errors.New("totp secret is not valid base32")

// Generate returns the code for the current 30-second window.
func Generate(secret string) (string, error) {
	return GenerateAt(secret, time.Now())
}

// GenerateAt returns the code for the window containing t. Deterministic:
// any two calls with the same secret and the same window yield the same code.
func GenerateAt(secret string, t time.Time) (string, error) {
	secret = normalize(secret)
	if secret == "" {
		return "", ErrInvalidSecret
	}
	code, err := totp.GenerateCode(secret, t)
	if err != nil {
		// The only library failure mode for well-formed input is a secret
		// that cannot be decoded.
		return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return code, nil
}

// normalize strips whitespace and upper-cases the secret. Portals hand these
// out in groups of four with spaces; base32 decoders do not accept that.
func normalize(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
}
