// Package service contains the authentication orchestrator and demo-account seeding.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/ips-auth/internal/crypto"
	"github.com/and161185/ips-auth/internal/errs"
	"github.com/and161185/ips-auth/internal/model"
	"github.com/and161185/ips-auth/internal/repository"
	"github.com/and161185/ips-auth/internal/token"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// AuthService defines the credential-based entry points used by the transport layer.
type AuthService interface {
	// Signup creates an account and issues a token for it.
	Signup(ctx context.Context, in SignupInput) (model.Tokens, model.Identity, error)
	// Login verifies credentials and issues a token.
	Login(ctx context.Context, username, password string) (model.Tokens, model.Identity, error)
	// Logout is stateless; the caller discards the token.
	Logout(ctx context.Context, tok string)
	// WhoAmI returns the identity embedded in a valid token.
	WhoAmI(ctx context.Context, tok string) (model.Identity, error)
}

// PasswordHasher hashes and verifies plaintext passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// TokenIssuer issues and verifies identity tokens.
type TokenIssuer interface {
	Issue(id model.Identity) (string, time.Time, error)
	Verify(tok string) (model.Identity, error)
}

// SignupInput is the account creation request.
type SignupInput struct {
	Username    string
	Password    string
	Role        model.Role
	DisplayName string
}

type AuthServiceImpl struct {
	users  repository.UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	log    *zap.Logger
	now    func() time.Time

	// dummyHash is compared against when the username is unknown so that
	// unknown-user and wrong-password answers take similar time.
	dummyHash string
}

// NewAuthService constructs AuthService over the active backend's user repository.
func NewAuthService(users repository.UserRepository, hasher PasswordHasher, tokens TokenIssuer, log *zap.Logger) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	s := &AuthServiceImpl{users: users, hasher: hasher, tokens: tokens, log: log, now: time.Now}
	if h, err := hasher.Hash("dummy-password-for-timing"); err == nil {
		s.dummyHash = h
	}
	return s
}

// Signup validates input, creates the user and issues a token.
func (s *AuthServiceImpl) Signup(ctx context.Context, in SignupInput) (model.Tokens, model.Identity, error) {
	u, err := s.create(ctx, in)
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			s.log.Info("signup conflict", zap.String("username", in.Username))
		}
		return model.Tokens{}, model.Identity{}, err
	}

	id := u.Identity()
	tok, err := s.issue(id)
	if err != nil {
		return model.Tokens{}, model.Identity{}, err
	}
	s.log.Info("signup", zap.String("user_id", id.ID), zap.String("role", string(id.Role)))
	return tok, id, nil
}

// Login authenticates by username and password.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (model.Tokens, model.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.Tokens{}, model.Identity{}, fmt.Errorf("%w: username and password required", errs.ErrValidation)
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// hide existence of the user
			_ = s.hasher.Verify(password, s.dummyHash)
			s.log.Info("login rejected", zap.String("reason", "unknown user"))
			return model.Tokens{}, model.Identity{}, errs.ErrUnauthorized
		}
		return model.Tokens{}, model.Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		s.log.Info("login rejected", zap.String("reason", "bad password"), zap.String("user_id", u.ID.String()))
		return model.Tokens{}, model.Identity{}, errs.ErrUnauthorized
	}

	id := u.Identity()
	tok, err := s.issue(id)
	if err != nil {
		return model.Tokens{}, model.Identity{}, err
	}
	s.log.Info("login", zap.String("user_id", id.ID), zap.String("role", string(id.Role)))
	return tok, id, nil
}

// Logout has nothing to clean up server-side; it records who left when the token is still valid.
func (s *AuthServiceImpl) Logout(_ context.Context, tok string) {
	if tok == "" {
		return
	}
	if id, err := s.tokens.Verify(tok); err == nil {
		s.log.Info("logout", zap.String("user_id", id.ID))
	}
}

// WhoAmI verifies tok and returns its identity.
func (s *AuthServiceImpl) WhoAmI(_ context.Context, tok string) (model.Identity, error) {
	id, err := s.tokens.Verify(tok)
	if err != nil {
		if !errors.Is(err, token.ErrMissing) {
			s.log.Info("token rejected", zap.Error(err))
		}
		return model.Identity{}, errs.ErrUnauthorized
	}
	return id, nil
}

// create is the single account creation path shared by Signup and Seed.
func (s *AuthServiceImpl) create(ctx context.Context, in SignupInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password required", errs.ErrValidation)
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: role must be %q or %q", errs.ErrValidation, model.RoleManufacturer, model.RoleVendor)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, pkgcrypto.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: password too long", errs.ErrValidation)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	u := &model.User{
		ID:           uid,
		Username:     in.Username,
		PasswordHash: hash,
		Role:         in.Role,
		DisplayName:  in.DisplayName,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return nil, errs.ErrAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *AuthServiceImpl) issue(id model.Identity) (model.Tokens, error) {
	access, exp, err := s.tokens.Issue(id)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, nil
}
