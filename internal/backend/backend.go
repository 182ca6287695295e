// Package backend selects the credential store once at startup.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/ips-auth/internal/migrate"
	"github.com/and161185/ips-auth/internal/repository"
	"github.com/and161185/ips-auth/internal/repository/filestore"
	"github.com/and161185/ips-auth/internal/repository/postgres"
	"go.uber.org/zap"
)

// Kind names the active store.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindFile     Kind = "file"
)

// Backend is the store chosen for the process lifetime.
type Backend struct {
	Kind  Kind
	Users repository.UserRepository

	close func()
}

// Close releases the backend's resources.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Options configures selection.
type Options struct {
	// DSN of the relational store; empty selects the file store directly.
	DSN string
	// FilePath of the JSON document used by the file store.
	FilePath string
	// ConnectTimeout bounds migrations and the initial ping.
	ConnectTimeout time.Duration
}

const defaultConnectTimeout = 5 * time.Second

// openRelational is a seam for tests.
var openRelational = func(ctx context.Context, dsn string, log *zap.Logger) (repository.UserRepository, func(), error) {
	if err := migrate.Up(ctx, dsn, log); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := postgres.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewUserRepo(db), db.Close, nil
}

// Open returns the relational backend when it is configured and reachable,
// otherwise the file backend. Relational failures are logged, not returned.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if opts.DSN != "" {
		timeout := opts.ConnectTimeout
		if timeout <= 0 {
			timeout = defaultConnectTimeout
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		users, closeFn, err := openRelational(cctx, opts.DSN, log)
		cancel()
		if err == nil {
			log.Info("credential store selected", zap.String("backend", string(KindPostgres)))
			return &Backend{Kind: KindPostgres, Users: users, close: closeFn}, nil
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		log.Warn("relational store unavailable, falling back to file store",
			zap.Error(err), zap.String("path", opts.FilePath))
	}

	fs, err := filestore.Open(opts.FilePath)
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	log.Info("credential store selected",
		zap.String("backend", string(KindFile)), zap.String("path", fs.Path()))
	return &Backend{Kind: KindFile, Users: fs}, nil
}
