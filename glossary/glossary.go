// Package glossary maintains the persistent proper-noun glossary that keeps
// terminology consistent across thousands of non-deterministic translate
// calls.
//
// The store is a flat JSON object of {term: translation} pairs in a
// human-editable UTF-8 file. The pipeline only ever adds terms; once a term
// is present its translation is immutable except by editing the file by
// hand. Past the entry cap, refreshes of known terms are still accepted but
// never-seen terms are dropped (and counted).
//
// Prompt integration works in both directions: before a call, Section
// returns a compact lookup list of only the terms that literally occur in
// the text about to be translated; after a call, ExtractNewTerms parses the
// trailing NEW_TERMS marker the model was instructed to emit, merges any
// unknown terms, and strips the marker from the visible translation.
package glossary

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// DefaultCap is the default hard ceiling on glossary entries.
const DefaultCap = 500

// Entry is one source term and its fixed translation.
type Entry struct {
	Term        string
	Translation string
}

// Store is a persistent, mutex-serialized glossary. Safe for use by
// multiple translation engines sharing one file.
type Store struct {
	mu      sync.Mutex
	path    string
	terms   map[string]string
	cap     int
	dropped int
}

// Open loads the glossary at path, creating an empty file if none exists.
// A cap <= 0 selects DefaultCap.
func Open(path string, cap int) (*Store, error) {
	if cap <= 0 {
		cap = DefaultCap
	}
	s := &Store{path: path, terms: make(map[string]string), cap: cap}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Create the file immediately so the user can find and edit it.
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reading glossary %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.terms); err != nil {
		return nil, fmt.Errorf("parsing glossary %s: %w", path, err)
	}
	if s.terms == nil {
		s.terms = make(map[string]string)
	}
	return s, nil
}

// Len returns the number of stored terms.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.terms)
}

// AtCap reports whether the store has reached its entry ceiling.
func (s *Store) AtCap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.terms) >= s.cap
}

// Dropped returns how many never-seen terms were rejected at the cap.
func (s *Store) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Get returns the stored translation for a term, if any.
func (s *Store) Get(term string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.terms[term]
	return t, ok
}

// Entries returns all entries sorted by term.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.terms))
	for term, tr := range s.terms {
		out = append(out, Entry{Term: term, Translation: tr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out
}

// ---------------------------------------------------------------------------
// Context-aware retrieval
// ---------------------------------------------------------------------------

// Match returns the entries whose term literally occurs in text, longest
// term first so multi-word terms win over substrings of themselves
// ("New York City" before "New York").
func (s *Store) Match(text string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.terms) == 0 || text == "" {
		return nil
	}

	keys := make([]string, 0, len(s.terms))
	for k := range s.terms {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	var out []Entry
	for _, k := range keys {
		if strings.Contains(text, k) {
			out = append(out, Entry{Term: k, Translation: s.terms[k]})
		}
	}
	return out
}

// Section formats the matching entries as a compact lookup list for prompt
// injection. Returns "" when no stored term occurs in the text, so prompt
// size is bounded by the text, not by glossary growth.
func (s *Store) Section(text string) string {
	matched := s.Match(text)
	if len(matched) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Glossary (use these translations verbatim):\n")
	for _, e := range matched {
		fmt.Fprintf(&b, "- %s → %s\n", e.Term, e.Translation)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// New-term extraction
// ---------------------------------------------------------------------------

// newTermsMarker matches a trailing "NEW_TERMS: {...}" line emitted by the
// model. Case-insensitive; the JSON object must end the response.
var newTermsMarker = regexp.MustCompile(`(?is)NEW_TERMS:\s*(\{.*\})\s*$`)

// ExtractNewTerms locates the NEW_TERMS marker in a translated text, merges
// any unknown terms into the store, and returns the text with the marker
// removed. A malformed or absent marker leaves the text unchanged — term
// learning is best-effort and never blocks translation output.
func (s *Store) ExtractNewTerms(translated string) string {
	m := newTermsMarker.FindStringSubmatchIndex(translated)
	if m == nil {
		return translated
	}

	var found map[string]string
	if err := json.Unmarshal([]byte(translated[m[2]:m[3]]), &found); err != nil {
		// Malformed marker: keep the visible translation intact.
		return translated
	}

	if len(found) > 0 {
		if _, err := s.Merge(found); err != nil {
			return strings.TrimRight(translated[:m[0]], " \t\n")
		}
	}
	return strings.TrimRight(translated[:m[0]], " \t\n")
}

// Merge adds terms to the store under the first-write-wins policy and
// persists the result. Returns the number of newly added terms. Past the
// cap only refreshes to existing terms are accepted; new terms are dropped
// and counted.
func (s *Store) Merge(terms map[string]string) (added int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for term, tr := range terms {
		if term == "" || tr == "" {
			continue
		}
		if _, known := s.terms[term]; known {
			// First write wins: the pipeline never overwrites an existing
			// mapping. (Refreshes past the cap carry the same value policy.)
			continue
		}
		if len(s.terms) >= s.cap {
			s.dropped++
			continue
		}
		s.terms[term] = tr
		added++
		changed = true
	}

	if changed {
		if err := s.save(); err != nil {
			return added, err
		}
	}
	return added, nil
}

// Refresh updates the translation of an already-known term. This is the
// out-of-band manual-edit path (glossary set command); the translation
// pipeline itself never calls it.
func (s *Store) Refresh(term, translation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.terms[term]; !known && len(s.terms) >= s.cap {
		return fmt.Errorf("glossary: at cap (%d entries), refusing new term %q", s.cap, term)
	}
	s.terms[term] = translation
	return s.save()
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// save writes the glossary atomically: staging file, then rename. Caller
// must hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.terms, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling glossary: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

// Path returns the glossary file path.
func (s *Store) Path() string { return s.path }
