package security

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

// CodeGenerator produces one time verification codes.
type CodeGenerator interface {
	Generate() (string, error)
}

type numericCodeGenerator struct {
	digits int
	max    *big.Int
}

// NewNumericCodeGenerator returns a generator of zero padded decimal codes.
func NewNumericCodeGenerator(digits int) CodeGenerator {
	if digits < 4 || digits > 8 {
		digits = 6
	}
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	return &numericCodeGenerator{digits: digits, max: max}
}

func (g *numericCodeGenerator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, g.max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", g.digits, n.Int64()), nil
}

// CodesEqual compares two codes in constant time.
func CodesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
