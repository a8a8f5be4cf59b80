package signature

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrMissingSignature is returned when the signature header is absent.
	ErrMissingSignature = errors.New("missing signature header")
	// ErrMismatch is returned when the computed digest differs from the header.
	ErrMismatch = errors.New("signature mismatch")
)

// Compute returns the hex-encoded keccak256 digest of body || secret.
// This is the scheme used by the streams provider: the raw request bytes
// concatenated with the shared secret, hashed, hex encoded.
func Compute(body, secret []byte) string {
	buf := make([]byte, 0, len(body)+len(secret))
	buf = append(buf, body...)
	buf = append(buf, secret...)
	return hex.EncodeToString(crypto.Keccak256(buf))
}

// Verify checks the signature header against the exact raw request body.
// The header may carry an optional "0x" prefix. Comparison is constant-time.
// Verification must run before the body is ever parsed as JSON.
func Verify(body []byte, header string, secret []byte) error {
	if header == "" {
		return ErrMissingSignature
	}

	got := strings.TrimPrefix(strings.TrimSpace(header), "0x")
	want := Compute(body, secret)

	// subtle.ConstantTimeCompare leaks nothing beyond length, and an
	// attacker already knows the digest length.
	if len(got) != len(want) {
		return ErrMismatch
	}
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(want)) != 1 {
		return ErrMismatch
	}
	return nil
}
