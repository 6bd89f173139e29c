// Package registry persists the last-applied configuration of every managed
// container as a single JSON document. It is a cache, not a liveness
// source: records are written on successful launch and removed only by
// explicit prune, so a crashed container can be recreated identically.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"agentfleet"
)

const documentVersion = 1

// document is the on-disk format of the registry.
type document struct {
	Version    int                                    `json:"version"`
	Containers map[string]agentfleet.ContainerRecord `json:"containers"`
}

// Store reads and writes the registry document. Writes follow a scoped
// load-modify-persist pattern; concurrent writers are resolved
// last-write-wins, which the fleet design accepts.
type Store struct {
	path string
}

// New creates a store backed by the document at path. The file is created
// lazily on first Upsert.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Load reads the whole document. A missing, empty, or corrupt file yields
// an empty mapping — corruption is logged, never propagated, so a damaged
// registry degrades to "no known configuration" instead of failing the
// fleet.
func (s *Store) Load() map[string]agentfleet.ContainerRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Registry unreadable, starting empty.", "path", s.path, "err", err)
		}
		return map[string]agentfleet.ContainerRecord{}
	}
	if len(data) == 0 {
		return map[string]agentfleet.ContainerRecord{}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("Registry corrupt, starting empty.", "path", s.path, "err", err)
		return map[string]agentfleet.ContainerRecord{}
	}
	if doc.Containers == nil {
		return map[string]agentfleet.ContainerRecord{}
	}
	return doc.Containers
}

// Get returns the record for name, if present.
func (s *Store) Get(name string) (agentfleet.ContainerRecord, bool) {
	rec, ok := s.Load()[name]
	return rec, ok
}

// List returns all records sorted by name.
func (s *Store) List() []agentfleet.ContainerRecord {
	m := s.Load()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]agentfleet.ContainerRecord, 0, len(names))
	for _, name := range names {
		out = append(out, m[name])
	}
	return out
}

// Upsert writes or overwrites the record under its name. Last write wins.
func (s *Store) Upsert(rec agentfleet.ContainerRecord) error {
	containers := s.Load()
	containers[rec.Name] = rec
	return s.save(containers)
}

// Delete removes a record. Removing an absent name is not an error — the
// outcome is the same. This is the manual prune path; nothing in the
// lifecycle manager calls it.
func (s *Store) Delete(name string) error {
	containers := s.Load()
	if _, ok := containers[name]; !ok {
		return nil
	}
	delete(containers, name)
	return s.save(containers)
}

func (s *Store) save(containers map[string]agentfleet.ContainerRecord) error {
	doc := document{Version: documentVersion, Containers: containers}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}
