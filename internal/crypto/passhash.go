// Package crypto implements server-side password hashing and verification.
package crypto

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = bcrypt.DefaultCost

// ErrPasswordTooLong is returned for passwords bcrypt would otherwise truncate (over 72 bytes).
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// Hasher produces salted bcrypt hashes. The zero value uses DefaultCost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with cost clamped to bcrypt's accepted range.
// A non-positive cost selects DefaultCost.
func NewHasher(cost int) Hasher {
	switch {
	case cost <= 0:
		cost = DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return Hasher{cost: cost}
}

// Cost returns the effective work factor.
func (h Hasher) Cost() int {
	if h.cost == 0 {
		return DefaultCost
	}
	return h.cost
}

// Hash returns bcrypt(password) with a fresh random salt, so equal inputs give different outputs.
func (h Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches hash. Malformed hashes never match.
func (h Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
