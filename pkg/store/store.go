// Package store provides the persistence plumbing shared by the registry and
// manifest tracker: atomic JSON document writes (write-temp-then-rename) and
// a cross-process advisory file lock. A document save either lands completely
// or not at all; a crash mid-write never leaves a half-written document.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

var (
	// ErrCorrupt indicates a persisted document exists but cannot be parsed.
	// Corrupt documents are never auto-repaired.
	ErrCorrupt = errors.New("store document is corrupt")
	// ErrLocked indicates another invocation holds the store lock.
	ErrLocked = errors.New("store is locked by another invocation")
)

const lockFileName = ".lock"

// SaveJSON atomically persists v as an indented JSON document at path,
// creating parent directories as needed. The document is written to a
// temporary file and renamed into place.
func SaveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal document")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create store directory")
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write temporary document")
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, "failed to rename temporary document")
	}

	return nil
}

// LoadJSON reads the JSON document at path into v. A missing file is
// reported via os.IsNotExist on the returned error; an unparsable file is
// reported as ErrCorrupt.
func LoadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(ErrCorrupt, "%s: %v", path, err)
	}

	return nil
}

// Lock is an advisory cross-process lock scoped to a store directory.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the advisory lock for the store at dir without blocking.
// It returns ErrLocked when another invocation already holds the lock.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create store directory")
	}

	fl := flock.New(filepath.Join(dir, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire store lock")
	}
	if !locked {
		return nil, errors.Wrapf(ErrLocked, "%s", fl.Path())
	}

	return &Lock{fl: fl}, nil
}

// Release gives up the advisory lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
