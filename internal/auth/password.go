package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
)

const (
	DefaultCost       = 12
	minPasswordLength = 8
	maxPasswordBytes  = 72
)

// Hasher hashes account passwords with bcrypt
type Hasher struct {
	cost int
}

// NewHasher returns a hasher; costs outside bcrypt's range fall back to DefaultCost
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash validates the password length rules and hashes it
func (h *Hasher) Hash(password string) (string, error) {
	if len([]rune(password)) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Check compares a password with its stored hash
func (h *Hasher) Check(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword hashes with the default cost
func HashPassword(password string) (string, error) {
	return NewHasher(DefaultCost).Hash(password)
}

// CheckPassword compares a password with its hash
func CheckPassword(password, hash string) bool {
	return NewHasher(DefaultCost).Check(password, hash)
}
