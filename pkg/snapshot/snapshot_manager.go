// ============================================================================
// Atomic-Ledger Snapshot Manager
// ============================================================================
//
// Package: pkg/snapshot
// File: snapshot_manager.go
// Purpose: Atomic persistence of a partition's full recovery container
//
// A snapshot is the triple (last WAL index, state, idempotency filter),
// written so that at any instant either no snapshot file exists or the
// canonical file is fully valid:
//
//   1. Serialize the container to snapshot.tmp in the snapshot directory
//   2. Flush and close the temp file
//   3. os.Rename temp → snapshot.dat (atomic replace, POSIX guarantee)
//
// Recovery loads the container and replays WAL records with index greater
// than LastWALIndex. A missing file means cold start; an unreadable one is
// logged and ignored, forcing a full replay — the WAL, not the snapshot, is
// the authoritative durability.
//
// ============================================================================

package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Canonical file names inside a partition's snapshot directory.
const (
	FileName = "snapshot.dat"
	TempName = "snapshot.tmp"
)

// SchemaVersion is the current container schema.
const SchemaVersion = 1

var (
	ErrCorruptedSnapshot   = errors.New("snapshot: file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot: schema version is incompatible")
)

// Container is the serialized recovery unit of one partition.
//
// LastWALIndex is the index of the last WAL record whose effect is fully
// reflected in StateData. Replaying records after it over the decoded state
// must equal a full replay from the beginning.
type Container struct {
	SchemaVer    int    `json:"schema_ver"`
	LastWALIndex uint64 `json:"last_wal_index"`
	FilterKind   string `json:"filter_kind"`
	FilterData   []byte `json:"filter_data"`
	StateData    []byte `json:"state_data"`
}

// Manager owns the snapshot directory of one partition.
type Manager struct {
	dir    string
	logger zerolog.Logger
}

// NewManager creates a snapshot manager rooted at dir.
func NewManager(dir string, logger zerolog.Logger) *Manager {
	return &Manager{dir: dir, logger: logger}
}

// Write atomically replaces the canonical snapshot with c.
func (m *Manager) Write(c Container) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("snapshot: failed to create directory: %w", err)
	}

	c.SchemaVer = SchemaVersion
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("snapshot: failed to marshal container: %w", err)
	}

	tmpPath := filepath.Join(m.dir, TempName)
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("snapshot: failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, m.Path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: failed to replace canonical file: %w", err)
	}
	return nil
}

// Load reads the canonical snapshot.
//
// Returns ok == false with a nil error when no usable snapshot exists:
// either the file is absent (cold start) or it fails to deserialize, in
// which case the problem is logged and recovery falls back to full WAL
// replay. Only genuine I/O errors are returned.
func (m *Manager) Load() (Container, bool, error) {
	var c Container

	data, err := os.ReadFile(m.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return c, false, nil
		}
		return c, false, fmt.Errorf("snapshot: failed to read: %w", err)
	}

	if err := json.Unmarshal(data, &c); err != nil {
		m.logger.Warn().Err(err).Str("path", m.Path()).
			Msg("snapshot corrupted, falling back to full WAL replay")
		return Container{}, false, nil
	}
	if c.SchemaVer != SchemaVersion {
		m.logger.Warn().Int("schema_ver", c.SchemaVer).Str("path", m.Path()).
			Msg("snapshot schema incompatible, falling back to full WAL replay")
		return Container{}, false, nil
	}

	return c, true, nil
}

// Exists reports whether a canonical snapshot file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.Path())
	return err == nil
}

// Path returns the canonical snapshot file path.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, FileName)
}
