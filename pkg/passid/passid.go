// Package passid generates the short public identifier handed out at final
// submission. Uniqueness is not guaranteed here; it is arbitrated by the
// persistence layer's unique constraint, which Issue retries against.
package passid

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// Length of an issued identifier.
const Length = 6

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxUnbiased is the largest multiple of len(alphabet) that fits a byte;
// bytes at or above it are redrawn so every symbol stays equally likely.
const maxUnbiased = 252 // 7 * 36

// ErrCollision is what an assign func must return when the candidate is
// already taken, so Issue knows to draw a fresh one.
var ErrCollision = errors.New("pass id already in use")

// The 36^6 space makes collisions vanishingly rare at expected scale; the
// cap only turns a broken constraint or assign func into a loud failure
// instead of a spin.
const maxAttempts = 100

// New returns a fresh candidate identifier, uniformly random per character.
func New() (string, error) {
	out := make([]byte, Length)
	buf := make([]byte, Length)
	filled := 0
	for filled < Length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= maxUnbiased {
				continue
			}
			out[filled] = alphabet[int(b)%len(alphabet)]
			filled++
			if filled == Length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether s has the shape of an issued identifier.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Issue draws candidates until one is accepted by assign. assign must
// persist the candidate atomically with whatever marks the record final and
// return ErrCollision (possibly wrapped) when the identifier is already
// assigned elsewhere; any other error aborts issuance.
func Issue(assign func(candidate string) error) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate, err := New()
		if err != nil {
			return "", err
		}
		err = assign(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, ErrCollision) {
			return "", err
		}
	}
	return "", fmt.Errorf("no unique pass id after %d attempts", maxAttempts)
}
