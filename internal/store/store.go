// Package store persists Patch's JSON documents.
//
// A document that is missing, unreadable, or structurally wrong is replaced
// by its default rather than surfaced as an error. The in-memory value is the
// single source of truth between Load and Save; the store does no locking.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Store reads and writes whole JSON documents under a data directory.
type Store struct {
	logger zerolog.Logger
}

// New creates a Store. The logger is used only to report recoveries.
func New(logger zerolog.Logger) *Store {
	return &Store{
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// Load reads the document at path into v. When the file is absent or does not
// parse, v is left untouched and ok is false; callers fall back to defaults.
func (s *Store) Load(path string, v any) (ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", path).Msg("Unreadable document, using defaults")
		}
		return false
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Corrupt document, using defaults")
		return false
	}

	return true
}

// Save writes v as an indented JSON document, replacing the file atomically
// so a crash mid-write never leaves a torn document behind.
func (s *Store) Save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace document: %w", err)
	}

	return nil
}

// Remove deletes the document at path. A missing file is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove document: %w", err)
	}
	return nil
}
