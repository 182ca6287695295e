package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/ips-auth/internal/errs"
	"github.com/and161185/ips-auth/internal/model"
	"go.uber.org/zap"
)

// DemoAccount is a fixed account created on an empty store.
type DemoAccount struct {
	Username    string
	Password    string
	Role        model.Role
	DisplayName string
}

// DemoAccounts are the accounts seeded at startup: one per role.
var DemoAccounts = []DemoAccount{
	{Username: "manufacturer", Password: "pass123", Role: model.RoleManufacturer, DisplayName: "Manufacturer"},
	{Username: "vendor", Password: "pass123", Role: model.RoleVendor, DisplayName: "Vendor"},
}

// Seed creates accounts when the store holds no users and returns how many
// were created. A non-empty store is left untouched. Accounts that already
// exist are skipped, so a race with a concurrent seeder is harmless.
func (s *AuthServiceImpl) Seed(ctx context.Context, accounts []DemoAccount) (int, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		s.log.Debug("seed skipped", zap.Int("existing", n))
		return 0, nil
	}

	created := 0
	for _, a := range accounts {
		_, err := s.create(ctx, SignupInput{
			Username:    a.Username,
			Password:    a.Password,
			Role:        a.Role,
			DisplayName: a.DisplayName,
		})
		switch {
		case err == nil:
			created++
			s.log.Info("seeded account", zap.String("username", a.Username), zap.String("role", string(a.Role)))
		case errors.Is(err, errs.ErrAlreadyExists):
		default:
			return created, fmt.Errorf("seed %s: %w", a.Username, err)
		}
	}
	return created, nil
}
