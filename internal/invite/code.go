// Package invite generates and normalizes group invite codes.
package invite

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// CodeLength is the number of symbols in a generated code, excluding the separator.
const CodeLength = 8

// alphabet omits symbols that are easy to misread (0/O, 1/I/L).
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Generate returns a random code formatted as XXXX-XXXX.
func Generate() (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(CodeLength + 1)
	for i := 0; i < CodeLength; i++ {
		if i == CodeLength/2 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize canonicalizes user input: trims, upper-cases and restores the
// separator, so "abcd efgh" and "ABCD-EFGH" are the same code.
func Normalize(code string) string {
	var raw strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		if r == '-' || r == ' ' {
			continue
		}
		raw.WriteRune(r)
	}
	s := raw.String()
	if len(s) != CodeLength {
		return s
	}
	return s[:CodeLength/2] + "-" + s[CodeLength/2:]
}

// Valid reports whether a normalized code has the generated shape.
func Valid(code string) bool {
	if len(code) != CodeLength+1 || code[CodeLength/2] != '-' {
		return false
	}
	for i, r := range code {
		if i == CodeLength/2 {
			continue
		}
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}
