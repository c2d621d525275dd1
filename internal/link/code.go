package link

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// CodeLength is the number of characters in a link code.
	CodeLength = 6

	// codeAlphabet omits 0/O and 1/I so codes survive being read aloud or retyped.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// CodeIssuer produces short human-typable link codes. It holds no state.
type CodeIssuer struct{}

// NewCodeIssuer creates a CodeIssuer.
func NewCodeIssuer() *CodeIssuer {
	return &CodeIssuer{}
}

// Generate returns a fresh random code of CodeLength characters.
func (c *CodeIssuer) Generate() (string, error) {
	base := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generating code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode canonicalises user input so redemption is case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code has the issued shape after normalisation.
func ValidCode(code string) bool {
	code = NormalizeCode(code)
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
