// Package filestore implements the credential store over a single JSON document.
//
// Every query re-reads the whole document and every mutation re-writes it.
// Calls within one process are serialized by a mutex held across the
// read-modify-write cycle. There is no filesystem lock: two processes sharing
// the same file can lose each other's writes. That is a known limitation of
// this backend; run a single process per file or use the relational backend.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/and161185/ips-auth/internal/errs"
	"github.com/and161185/ips-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// document is the on-disk layout. Field names match the original db.json.
type document struct {
	Users []record `json:"users"`
}

type record struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Role         string `json:"role"`
	DisplayName  string `json:"display_name,omitempty"`
	CreatedAt    int64  `json:"created_at"` // unix millis
}

// Store implements repository.UserRepository on top of a JSON file.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open returns a store bound to path. The parent directory is created if
// needed and an existing document is parsed once so a corrupt file is reported
// at startup rather than on the first request.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("filestore: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("filestore: mkdir: %w", err)
	}
	s := &Store{path: path}
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Create appends u unless its username is already present.
func (s *Store) Create(ctx context.Context, u *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	for _, r := range doc.Users {
		if r.Username == u.Username {
			return errs.ErrAlreadyExists
		}
	}
	doc.Users = append(doc.Users, toRecord(u))
	return s.write(doc)
}

// GetByUsername scans the document for an exact username match.
func (s *Store) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, r := range doc.Users {
		if r.Username == username {
			return fromRecord(r)
		}
	}
	return nil, errs.ErrNotFound
}

// Count returns the number of users in the document.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return 0, err
	}
	return len(doc.Users), nil
}

// read loads the document. A missing or empty file is an empty store;
// unparsable content is an error so it is never overwritten.
func (s *Store) read() (document, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return document{}, nil
	}
	if err != nil {
		return document{}, fmt.Errorf("filestore: read: %w", err)
	}
	var doc document
	if len(b) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return document{}, fmt.Errorf("filestore: decode %s: %w", s.path, err)
	}
	return doc, nil
}

// write replaces the document atomically: temp file in the same directory,
// fsync, rename.
func (s *Store) write(doc document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("filestore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("filestore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("filestore: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("filestore: rename: %w", err)
	}
	return nil
}

func toRecord(u *model.User) record {
	return record{
		ID:           u.ID.String(),
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		DisplayName:  u.DisplayName,
		CreatedAt:    u.CreatedAt.UnixMilli(),
	}
}

func fromRecord(r record) (*model.User, error) {
	id, err := uuid.FromString(r.ID)
	if err != nil {
		return nil, fmt.Errorf("filestore: user %q: bad id: %w", r.Username, err)
	}
	return &model.User{
		ID:           id,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Role:         model.Role(r.Role),
		DisplayName:  r.DisplayName,
		CreatedAt:    time.UnixMilli(r.CreatedAt).UTC(),
	}, nil
}
