package service

import (
	"context"
	"errors"
	"testing"

	"github.com/and161185/ips-auth/internal/errs"
	"github.com/and161185/ips-auth/internal/model"
)

func TestSeed_EmptyStoreCreatesBothRoles(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s, _ := newSvc(t, users)
	ctx := context.Background()

	n, err := s.Seed(ctx, DemoAccounts)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != 2 {
		t.Fatalf("created %d, want 2", n)
	}

	for _, a := range DemoAccounts {
		_, id, err := s.Login(ctx, a.Username, "pass123")
		if err != nil {
			t.Fatalf("login %s: %v", a.Username, err)
		}
		if id.Role != a.Role || id.DisplayName != a.DisplayName {
			t.Fatalf("seeded %s has %+v", a.Username, id)
		}
	}
	if users.byName["manufacturer"].Role != model.RoleManufacturer || users.byName["vendor"].Role != model.RoleVendor {
		t.Fatalf("roles not stored as expected")
	}
}

func TestSeed_Idempotent(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s, _ := newSvc(t, users)
	ctx := context.Background()

	if _, err := s.Seed(ctx, DemoAccounts); err != nil {
		t.Fatal(err)
	}
	n, err := s.Seed(ctx, DemoAccounts)
	if err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	if n != 0 {
		t.Fatalf("second seed created %d", n)
	}
	if c, _ := users.Count(ctx); c != 2 {
		t.Fatalf("count=%d, want 2", c)
	}
}

func TestSeed_NonEmptyStoreUntouched(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s, _ := newSvc(t, users)
	ctx := context.Background()

	if _, _, err := s.Signup(ctx, SignupInput{Username: "alice", Password: "pw", Role: model.RoleVendor}); err != nil {
		t.Fatal(err)
	}
	n, err := s.Seed(ctx, DemoAccounts)
	if err != nil || n != 0 {
		t.Fatalf("Seed on non-empty store: n=%d err=%v", n, err)
	}
	if _, ok := users.byName["manufacturer"]; ok {
		t.Fatalf("demo account created in a non-empty store")
	}
}

// racingUsers reports an empty store but already holds one demo account,
// the state seen when another process seeds concurrently.
type racingUsers struct{ *fakeUsers }

func (r racingUsers) Count(context.Context) (int, error) { return 0, nil }

func TestSeed_SkipsAlreadyExisting(t *testing.T) {
	t.Parallel()
	inner := &fakeUsers{byName: map[string]*model.User{"vendor": {Username: "vendor", Role: model.RoleVendor}}}
	s := NewAuthService(racingUsers{inner}, &fakeHasher{}, newTokens(t), nil)

	n, err := s.Seed(context.Background(), DemoAccounts)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != 1 {
		t.Fatalf("created %d, want 1", n)
	}
}

func TestSeed_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s, _ := newSvc(t, &fakeUsers{countErr: boom})
	if _, err := s.Seed(context.Background(), DemoAccounts); !errors.Is(err, boom) {
		t.Fatalf("count error: got %v", err)
	}

	s, _ = newSvc(t, &fakeUsers{createErr: boom})
	if _, err := s.Seed(context.Background(), DemoAccounts); !errors.Is(err, boom) || errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("create error: got %v", err)
	}
}
