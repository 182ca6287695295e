package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pkgcrypto "github.com/and161185/ips-auth/internal/crypto"
	"github.com/and161185/ips-auth/internal/errs"
	"github.com/and161185/ips-auth/internal/model"
	"github.com/and161185/ips-auth/internal/repository"
	"github.com/and161185/ips-auth/internal/token"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers struct {
	mu     sync.Mutex
	byName map[string]*model.User

	createErr error
	getErr    error
	countErr  error

	createCalls int
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	if f.byName == nil {
		f.byName = map[string]*model.User{}
	}
	if _, exists := f.byName[u.Username]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byName[u.Username] = &cpy
	return nil
}
func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}
func (f *fakeUsers) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.byName), nil
}

// fakeHasher is reversible so tests can assert the stored hash is not the plaintext.
type fakeHasher struct {
	hashErr     error
	verifyCalls int
}

var _ PasswordHasher = (*fakeHasher)(nil)

func (h *fakeHasher) Hash(pw string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "h:" + pw, nil
}
func (h *fakeHasher) Verify(pw, hash string) bool {
	h.verifyCalls++
	return hash == "h:"+pw
}

func newTokens(t *testing.T) *token.Service {
	t.Helper()
	ts, err := token.New([]byte("test-secret"))
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	return ts
}

func newSvc(t *testing.T, users *fakeUsers) (*AuthServiceImpl, *fakeHasher) {
	t.Helper()
	h := &fakeHasher{}
	return NewAuthService(users, h, newTokens(t), zaptest.NewLogger(t)), h
}

func TestAuth_Signup_IssuesTokenAndStoresHash(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s, _ := newSvc(t, users)

	tok, id, err := s.Signup(context.Background(), SignupInput{
		Username: "  alice ", Password: "pw", Role: model.RoleVendor, DisplayName: " Alice ",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if id.Username != "alice" || id.Role != model.RoleVendor || id.DisplayName != "Alice" || id.ID == "" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if tok.AccessToken == "" {
		t.Fatalf("empty token")
	}
	if d := time.Until(tok.ExpiresAt); d < token.TTL-time.Minute || d > token.TTL+time.Minute {
		t.Fatalf("expiry %v not ~7d away", d)
	}

	stored := users.byName["alice"]
	if stored == nil {
		t.Fatalf("user not stored under trimmed name")
	}
	if stored.PasswordHash == "pw" || stored.PasswordHash == "" {
		t.Fatalf("plaintext or empty hash stored: %q", stored.PasswordHash)
	}
	if stored.CreatedAt.IsZero() {
		t.Fatalf("created_at not set")
	}

	who, err := s.WhoAmI(context.Background(), tok.AccessToken)
	if err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	if who.ID != id.ID || who.Username != "alice" || who.Role != model.RoleVendor {
		t.Fatalf("whoami mismatch: %+v vs %+v", who, id)
	}
}

func TestAuth_Signup_Validation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   SignupInput
	}{
		{"empty username", SignupInput{Password: "pw", Role: model.RoleVendor}},
		{"blank username", SignupInput{Username: "   ", Password: "pw", Role: model.RoleVendor}},
		{"empty password", SignupInput{Username: "bob", Role: model.RoleVendor}},
		{"missing role", SignupInput{Username: "bob", Password: "pw"}},
		{"bad role", SignupInput{Username: "bob", Password: "pw", Role: "admin"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			users := &fakeUsers{}
			s, _ := newSvc(t, users)
			_, _, err := s.Signup(context.Background(), tc.in)
			if !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
			if users.createCalls != 0 {
				t.Fatalf("store must not be touched on invalid input")
			}
		})
	}
}

func TestAuth_Signup_DuplicateIsConflict(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s, _ := newSvc(t, users)
	ctx := context.Background()

	if _, _, err := s.Signup(ctx, SignupInput{Username: "alice", Password: "pw", Role: model.RoleVendor}); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	_, _, err := s.Signup(ctx, SignupInput{Username: "alice", Password: "other", Role: model.RoleManufacturer})
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
	if users.byName["alice"].Role != model.RoleVendor {
		t.Fatalf("duplicate signup modified the stored user")
	}
}

func TestAuth_Signup_StoreAndHasherErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	s, _ := newSvc(t, &fakeUsers{createErr: boom})
	_, _, err := s.Signup(context.Background(), SignupInput{Username: "a", Password: "pw", Role: model.RoleVendor})
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped store error, got %v", err)
	}
	for _, sentinel := range []error{errs.ErrValidation, errs.ErrAlreadyExists, errs.ErrUnauthorized} {
		if errors.Is(err, sentinel) {
			t.Fatalf("store failure must not map to %v", sentinel)
		}
	}

	users := &fakeUsers{}
	s = NewAuthService(users, &fakeHasher{hashErr: pkgcrypto.ErrPasswordTooLong}, newTokens(t), zaptest.NewLogger(t))
	_, _, err = s.Signup(context.Background(), SignupInput{Username: "a", Password: "pw", Role: model.RoleVendor})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("too-long password: want ErrValidation, got %v", err)
	}
}

func TestAuth_Signup_RealHasherRejectsLongPassword(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s := NewAuthService(users, pkgcrypto.NewHasher(bcrypt.MinCost), newTokens(t), zaptest.NewLogger(t))
	_, _, err := s.Signup(context.Background(), SignupInput{
		Username: "long", Password: strings.Repeat("x", 100), Role: model.RoleVendor,
	})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestAuth_Login(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s, h := newSvc(t, users)
	ctx := context.Background()

	if _, _, err := s.Signup(ctx, SignupInput{Username: "bob", Password: "secret", Role: model.RoleManufacturer, DisplayName: "Bob"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}

	tok, id, err := s.Login(ctx, "bob", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok.AccessToken == "" || id.Username != "bob" || id.DisplayName != "Bob" || id.Role != model.RoleManufacturer {
		t.Fatalf("unexpected login result %+v %+v", tok, id)
	}

	if _, _, err := s.Login(ctx, "bob", "wrong"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("wrong password: want ErrUnauthorized, got %v", err)
	}

	before := h.verifyCalls
	if _, _, err := s.Login(ctx, "nobody", "secret"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("unknown user: want ErrUnauthorized, got %v", err)
	}
	if h.verifyCalls != before+1 {
		t.Fatalf("unknown user must still run a password comparison")
	}

	if _, _, err := s.Login(ctx, "Bob", "secret"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("usernames are case-sensitive, got %v", err)
	}
}

func TestAuth_Login_MissingFields(t *testing.T) {
	t.Parallel()
	s, _ := newSvc(t, &fakeUsers{})
	for _, tc := range [][2]string{{"", "pw"}, {"bob", ""}, {" ", "pw"}} {
		if _, _, err := s.Login(context.Background(), tc[0], tc[1]); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("Login(%q,%q): want ErrValidation, got %v", tc[0], tc[1], err)
		}
	}
}

func TestAuth_Login_StoreErrorIsInternal(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")
	s, _ := newSvc(t, &fakeUsers{getErr: boom})
	_, _, err := s.Login(context.Background(), "bob", "pw")
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped store error, got %v", err)
	}
	if errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("store failure must not look like bad credentials")
	}
}

func TestAuth_WhoAmI_Rejects(t *testing.T) {
	t.Parallel()
	s, _ := newSvc(t, &fakeUsers{})

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := s.WhoAmI(context.Background(), tok); !errors.Is(err, errs.ErrUnauthorized) {
			t.Fatalf("WhoAmI(%q): want ErrUnauthorized, got %v", tok, err)
		}
	}

	other, err := token.New([]byte("other-secret"))
	if err != nil {
		t.Fatal(err)
	}
	foreign, _, err := other.Issue(model.Identity{ID: "x", Username: "eve", Role: model.RoleVendor})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.WhoAmI(context.Background(), foreign); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("foreign-key token accepted: %v", err)
	}
}

func TestAuth_WhoAmI_DoesNotConsultStore(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s, _ := newSvc(t, users)
	tok, _, err := s.Signup(context.Background(), SignupInput{Username: "carol", Password: "pw", Role: model.RoleVendor})
	if err != nil {
		t.Fatal(err)
	}
	users.getErr = errors.New("store down")
	if _, err := s.WhoAmI(context.Background(), tok.AccessToken); err != nil {
		t.Fatalf("WhoAmI must be stateless: %v", err)
	}
}

func TestAuth_Logout_IsHarmless(t *testing.T) {
	t.Parallel()
	s, _ := newSvc(t, &fakeUsers{})
	s.Logout(context.Background(), "")
	s.Logout(context.Background(), "not-a-token")
}
