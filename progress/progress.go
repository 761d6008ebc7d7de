// Package progress implements the durable translation progress record —
// a versioned YAML sidecar stored next to the document being translated.
//
// The record is an ordered list of translated strings, one per processed
// unit. Position i corresponds to the i-th unit that consumed a progress
// slot (special units are filtered out before slot numbering). The record
// is read once at job start and rewritten wholesale after every flushed
// batch, so an interrupted job loses at most one in-flight batch.
//
// A missing or corrupt record is never fatal: it simply means "no prior
// progress".
package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version is the record format version.
const Version = 1

// Record is the on-disk progress structure.
type Record struct {
	Version int      `yaml:"version"`
	Items   []string `yaml:"items"`

	path string `yaml:"-"`
}

// PathFor derives the sidecar path for a document:
// "/books/alice.txt" -> "/books/.alice.progress.yaml".
func PathFor(docPath string) string {
	dir := filepath.Dir(docPath)
	base := filepath.Base(docPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "."+stem+".progress.yaml")
}

// Load reads the progress record for a document. A missing, unreadable,
// or unparsable file yields an empty record.
func Load(docPath string) *Record {
	r := &Record{Version: Version, path: PathFor(docPath)}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return r
	}
	var loaded Record
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return r
	}
	r.Items = loaded.Items
	return r
}

// Len returns the number of filled progress slots.
func (r *Record) Len() int { return len(r.Items) }

// Get returns the saved translation at a slot, or "" if the slot does not
// exist yet.
func (r *Record) Get(slot int) string {
	if slot < 0 || slot >= len(r.Items) {
		return ""
	}
	return r.Items[slot]
}

// Set records a translation at a slot, overwriting an existing slot or
// appending the next one. Slots are only ever extended by one at a time;
// a gap indicates a pipeline bug.
func (r *Record) Set(slot int, text string) error {
	switch {
	case slot < 0 || slot > len(r.Items):
		return fmt.Errorf("progress: slot %d out of range (have %d items)", slot, len(r.Items))
	case slot == len(r.Items):
		r.Items = append(r.Items, text)
	default:
		r.Items[slot] = text
	}
	return nil
}

// Save writes the record to disk atomically: marshal to a staging file,
// then rename into place. A crash mid-write never corrupts the record.
func (r *Record) Save() error {
	if r.path == "" {
		return fmt.Errorf("progress: record path not set")
	}
	r.Version = Version

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling progress record: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", r.path, err)
	}
	return nil
}

// Path returns the sidecar file path.
func (r *Record) Path() string { return r.path }

// Remove deletes the sidecar file. Called after a fully completed job if
// the user asked to clean up.
func (r *Record) Remove() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", r.path, err)
	}
	return nil
}
