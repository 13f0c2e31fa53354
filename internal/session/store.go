package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store manages history snapshots, one JSON file per container
type Store struct {
	dir string
}

// NewStoreAt creates a store rooted at dir
func NewStoreAt(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(container string) string {
	return filepath.Join(s.dir, container+".json")
}

// Save persists a snapshot to disk
func (s *Store) Save(snap *Snapshot) error {
	if snap.Container == "" || strings.ContainsAny(snap.Container, `/\`) {
		return fmt.Errorf("invalid container name %q", snap.Container)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp := s.path(snap.Container) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, s.path(snap.Container)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	return nil
}

// Load reads the snapshot of a container
func (s *Store) Load(container string) (*Snapshot, error) {
	data, err := os.ReadFile(s.path(container))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot not found: %s", container)
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// List returns all saved snapshots
func (s *Store) List() ([]*Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var snaps []*Snapshot
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".json")
		snap, err := s.Load(name)
		if err != nil {
			continue // Skip unreadable snapshots
		}
		snaps = append(snaps, snap)
	}

	return snaps, nil
}

// Delete removes a snapshot file
func (s *Store) Delete(container string) error {
	if err := os.Remove(s.path(container)); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}

	return nil
}

// Dir returns the history storage directory
func (s *Store) Dir() string {
	return s.dir
}
