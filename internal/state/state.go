// Package state persists the engine's record of every synced destination
// path across runs.
//
// The whole record set is one YAML document inside the destination tree.
// It is loaded once at session start and rewritten once at session end;
// an absent file is an empty set. Concurrent sessions against the same
// destination are unsupported and must be serialized by the caller.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// EntityType distinguishes the kinds of entries the engine can own.
type EntityType string

const (
	// TypeFile is an ordinary file.
	TypeFile EntityType = "file"
	// TypeSymlink is a symbolic link.
	TypeSymlink EntityType = "symlink"
)

// Record is the persisted description of one synced destination path.
// It is created or overwritten on every successful write and removed on
// purge or override.
type Record struct {
	Path        string     `yaml:"path"`
	Type        EntityType `yaml:"type"`
	EnvHash     string     `yaml:"env_hash"`
	SourcePath  string     `yaml:"source_path"`
	SourceMtime int64      `yaml:"source_mtime"` // unix nanoseconds
	SourceSize  int64      `yaml:"source_size"`
	DestMtime   int64      `yaml:"dest_mtime"` // unix nanoseconds
	DestSize    int64      `yaml:"dest_size"`
}

// Set is the full persisted state: destination path -> Record.
type Set struct {
	records map[string]Record
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{records: make(map[string]Record)}
}

// Get returns the record for a destination path.
func (s *Set) Get(path string) (Record, bool) {
	r, ok := s.records[path]
	return r, ok
}

// Put inserts or replaces the record keyed by its destination path.
func (s *Set) Put(r Record) {
	s.records[r.Path] = r
}

// Delete removes the record for a destination path, if present.
func (s *Set) Delete(path string) {
	delete(s.records, path)
}

// Len returns the number of records.
func (s *Set) Len() int {
	return len(s.records)
}

// Paths returns all destination paths in sorted order.
func (s *Set) Paths() []string {
	paths := make([]string, 0, len(s.records))
	for p := range s.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Records returns all records sorted by destination path.
func (s *Set) Records() []Record {
	recs := make([]Record, 0, len(s.records))
	for _, p := range s.Paths() {
		recs = append(recs, s.records[p])
	}
	return recs
}

// document is the on-disk shape of the state file.
type document struct {
	Entries []Record `yaml:"entries"`
}

// Store reads and writes the state document.
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore returns a Store for the state document at path.
func NewStore(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

// Path returns the location of the state document.
func (st *Store) Path() string {
	return st.path
}

// Load reads the state document. A missing file yields an empty Set.
func (st *Store) Load() (*Set, error) {
	data, err := afero.ReadFile(st.fs, st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSet(), nil
		}
		return nil, fmt.Errorf("state: read %s: %w", st.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("state: parse %s: %w", st.path, err)
	}

	set := NewSet()
	for _, r := range doc.Entries {
		set.Put(r)
	}
	return set, nil
}

// Save rewrites the whole state document deterministically. The write goes
// through a temp file and a rename so readers never observe a torn file.
func (st *Store) Save(set *Set) error {
	doc := document{Entries: set.Records()}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}

	dir := filepath.Dir(st.path)
	if err := st.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: create %s: %w", dir, err)
	}

	tmp := st.path + ".tmp"
	if err := afero.WriteFile(st.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", tmp, err)
	}
	if err := st.fs.Rename(tmp, st.path); err != nil {
		_ = st.fs.Remove(tmp)
		return fmt.Errorf("state: replace %s: %w", st.path, err)
	}
	return nil
}
