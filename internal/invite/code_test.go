package invite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := Generate()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength+1)
		assert.True(t, Valid(code), "generated code %q should be valid", code)
		assert.Equal(t, code, Normalize(code))
		seen[code] = true
	}
	// 31^8 possibilities; collisions in 200 draws would indicate a broken source.
	assert.Len(t, seen, 200)
}

func TestNormalize(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"ABCD-EFGH", "ABCD-EFGH"},
		{"abcd-efgh", "ABCD-EFGH"},
		{"  abcdefgh ", "ABCD-EFGH"},
		{"abcd efgh", "ABCD-EFGH"},
		{"abc", "ABC"},
		{"", ""},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, Normalize(tc.in), "Normalize(%q)", tc.in)
	}
}

func TestValid(t *testing.T) {
	testCases := []struct {
		code  string
		valid bool
	}{
		{"ABCD-EFGH", true},
		{"2345-6789", true},
		{"ABCDEFGH", false},  // Missing separator
		{"ABCD-EFG", false},  // Too short
		{"ABCD-EFG0", false}, // Ambiguous symbol
		{"ABCD-EFGI", false}, // Ambiguous symbol
		{"abcd-efgh", false}, // Not normalized
		{"", false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.valid, Valid(tc.code), "Valid(%q)", tc.code)
	}
}
