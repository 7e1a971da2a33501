// Package credstore persists the scale password between runs.
package credstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chaz8081/bodyscale/internal/ble/auth"
	"github.com/chaz8081/bodyscale/internal/ble/protocol"
)

// ErrInvalidPassword is returned by Load when the file does not hold a
// hex encoded password of the right length.
var ErrInvalidPassword = errors.New("credstore: invalid password file")

// FileStore keeps the password as a single hex line in a file.
type FileStore struct {
	Path string
}

var _ auth.CredentialStore = (*FileStore)(nil)

// New returns a store backed by path.
func New(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load returns the stored password, or nil if the file does not exist.
func (s *FileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: read %s: %w", s.Path, err)
	}

	password, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPassword, s.Path, err)
	}
	if len(password) != protocol.KeySize {
		return nil, fmt.Errorf("%w: %s holds %d bytes, want %d", ErrInvalidPassword, s.Path, len(password), protocol.KeySize)
	}
	return password, nil
}

// Save writes the password, replacing any previous one. The file is
// written to a temporary name and renamed into place.
func (s *FileStore) Save(password []byte) error {
	if len(password) != protocol.KeySize {
		return fmt.Errorf("credstore: password is %d bytes: %w", len(password), protocol.ErrInvalidKeyLength)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("credstore: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".password-*")
	if err != nil {
		return fmt.Errorf("credstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: chmod: %w", err)
	}
	if _, err := tmp.WriteString(hex.EncodeToString(password) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: close: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("credstore: rename: %w", err)
	}
	return nil
}
