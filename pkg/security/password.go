package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingFailed    = errors.New("passcode hashing failed")
	ErrPasscodeTooShort = errors.New("passcode too short")
	MinPasscodeLen      = 8
)

// PasswordHasher provides interface for passcode operations
type PasswordHasher interface {
	Hash(passcode string) (string, error)
	Compare(hashed, passcode string) error
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a new passcode hasher using bcrypt
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) Hash(passcode string) (string, error) {
	if len(passcode) < MinPasscodeLen {
		return "", ErrPasscodeTooShort
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(passcode), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptHasher) Compare(hashed, passcode string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(passcode))
}
