// Package token issues and verifies the signed identity tokens carried by the session cookie.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/and161185/ips-auth/internal/errs"
	"github.com/and161185/ips-auth/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// TTL is the fixed validity window of an issued token.
const TTL = 7 * 24 * time.Hour

// Failure kinds. Each is returned wrapped together with errs.ErrUnauthorized,
// so callers can treat them as one outcome and logs can still tell them apart.
var (
	ErrMissing   = errors.New("token missing")
	ErrMalformed = errors.New("token malformed")
	ErrSignature = errors.New("token signature invalid")
	ErrExpired   = errors.New("token expired")
	ErrClaims    = errors.New("token claims invalid")
)

// Claims is the JWT payload: the identity plus registered claims.
type Claims struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Service signs tokens with an HS256 secret.
type Service struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs a token service. key must be non-empty.
func New(key []byte, opts ...Option) (*Service, error) {
	if len(key) == 0 {
		return nil, errors.New("token: empty signing key")
	}
	s := &Service{key: key, ttl: TTL, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Issue creates a signed token for id, valid for TTL from now.
func (s *Service) Issue(id model.Identity) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		ID:       id.ID,
		Username: id.Username,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature and expiry and returns the embedded identity.
// Any failure yields an error matching errs.ErrUnauthorized; no partial identity is returned.
func (s *Service) Verify(tok string) (model.Identity, error) {
	if tok == "" {
		return model.Identity{}, fail(ErrMissing)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return model.Identity{}, fail(classify(err))
	}
	if claims.ID == "" || claims.Username == "" || !claims.Role.Valid() {
		return model.Identity{}, fail(ErrClaims)
	}
	return model.Identity{ID: claims.ID, Username: claims.Username, Role: claims.Role}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignature
	default:
		return ErrClaims
	}
}

func fail(kind error) error {
	return fmt.Errorf("%w: %w", errs.ErrUnauthorized, kind)
}
