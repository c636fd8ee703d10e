// Package credfile persists the single cached access-token record. It is a
// leaf package: the token manager owns the record, this package only moves
// it to and from disk. A missing, corrupt, or partially populated file is
// reported as absent rather than as an error, so callers never need to
// distinguish "never cached" from "cache unreadable".
package credfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/binghezhouke/123/internal/pan"
)

// FilePerms restricts the credential file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the parent directory.
const DirPerms = 0o700

// Store reads and writes one credential record at a fixed path.
type Store struct {
	path string
}

// New creates a Store for the given path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the cached credential. Returns (nil, nil) when the file does
// not exist, cannot be parsed, or lacks either field.
func (s *Store) Load() (*pan.Credential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not cached"
	}

	if err != nil {
		return nil, fmt.Errorf("credfile: reading %s: %w", s.path, err)
	}

	var cred pan.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		// Corrupt cache is the same as no cache.
		return nil, nil //nolint:nilnil // sentinel for "not cached"
	}

	if cred.AccessToken == "" || cred.ExpiresAt == 0 {
		return nil, nil //nolint:nilnil // sentinel for "not cached"
	}

	return &cred, nil
}

// Save writes the credential atomically (write-to-temp + rename) with 0600
// permissions. Never logs token values.
func (s *Store) Save(cred *pan.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("credfile: encoding: %w", err)
	}

	dir := filepath.Dir(s.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".cred-*.tmp")
	if err != nil {
		return fmt.Errorf("credfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("credfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Clear deletes the credential file. A file that is already gone is not an
// error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("credfile: removing %s: %w", s.path, err)
	}

	return nil
}

// DefaultPath returns the conventional credential location under the user
// config directory, falling back to the working directory when that cannot
// be resolved.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".pan123-token.json"
	}

	return filepath.Join(dir, "pan123", "token.json")
}
