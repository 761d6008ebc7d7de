package glossary

import (
	"os"
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T, cap int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "glossary.json"), cap)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Merge policy
// ---------------------------------------------------------------------------

func TestMergeFirstWriteWins(t *testing.T) {
	s := openTemp(t, 0)

	added, err := s.Merge(map[string]string{"Winterfell": "Winterfell (château)"})
	if err != nil || added != 1 {
		t.Fatalf("Merge: got (%d, %v), want (1, nil)", added, err)
	}
	// A later conflicting translation must not overwrite the first one.
	added, err = s.Merge(map[string]string{"Winterfell": "Hivernel"})
	if err != nil || added != 0 {
		t.Fatalf("second Merge: got (%d, %v), want (0, nil)", added, err)
	}
	if tr, _ := s.Get("Winterfell"); tr != "Winterfell (château)" {
		t.Errorf("got %q, want the first translation", tr)
	}
}

func TestMergeSkipsEmptyPairs(t *testing.T) {
	s := openTemp(t, 0)
	added, err := s.Merge(map[string]string{"": "x", "Term": ""})
	if err != nil || added != 0 {
		t.Errorf("Merge: got (%d, %v), want (0, nil)", added, err)
	}
}

func TestCapDropsNewTermsButAcceptsKnown(t *testing.T) {
	s := openTemp(t, 2)
	if _, err := s.Merge(map[string]string{"Alpha": "A", "Beta": "B"}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !s.AtCap() {
		t.Fatal("store should be at cap")
	}

	added, err := s.Merge(map[string]string{"Gamma": "G", "Alpha": "A2"})
	if err != nil {
		t.Fatalf("Merge at cap: %v", err)
	}
	if added != 0 {
		t.Errorf("added %d terms past the cap, want 0", added)
	}
	if s.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", s.Dropped())
	}
	if tr, _ := s.Get("Alpha"); tr != "A" {
		t.Errorf("known term changed at cap: %q", tr)
	}
	if _, ok := s.Get("Gamma"); ok {
		t.Error("new term accepted past the cap")
	}
}

func TestRefreshUpdatesKnownTerm(t *testing.T) {
	s := openTemp(t, 1)
	if _, err := s.Merge(map[string]string{"Alpha": "A"}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := s.Refresh("Alpha", "A-corrected"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tr, _ := s.Get("Alpha"); tr != "A-corrected" {
		t.Errorf("got %q, want refreshed value", tr)
	}
	// Refresh is the manual-edit path; it still refuses brand-new terms at cap.
	if err := s.Refresh("Beta", "B"); err == nil {
		t.Error("Refresh accepted a new term past the cap")
	}
}

// ---------------------------------------------------------------------------
// Context matching
// ---------------------------------------------------------------------------

func TestMatchLongestTermFirst(t *testing.T) {
	s := openTemp(t, 0)
	if _, err := s.Merge(map[string]string{
		"York":          "York",
		"New York":      "Nueva York",
		"New York City": "Ciudad de Nueva York",
	}); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	got := s.Match("He moved to New York City in spring.")
	want := []string{"New York City", "New York", "York"}
	if len(got) != len(want) {
		t.Fatalf("matched %d terms, want %d", len(got), len(want))
	}
	for i, e := range got {
		if e.Term != want[i] {
			t.Errorf("position %d: got %q, want %q", i, e.Term, want[i])
		}
	}
}

func TestSectionEmptyWithoutMatches(t *testing.T) {
	s := openTemp(t, 0)
	if _, err := s.Merge(map[string]string{"Narnia": "Narnia"}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := s.Section("nothing relevant here"); got != "" {
		t.Errorf("got %q, want empty section", got)
	}
}

// ---------------------------------------------------------------------------
// Marker extraction
// ---------------------------------------------------------------------------

func TestExtractNewTerms(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		want     string
		wantTerm bool
	}{
		{
			name:     "valid trailing marker",
			in:       "La traduction.\nNEW_TERMS: {\"Hobbiton\": \"Hobbitebourg\"}",
			want:     "La traduction.",
			wantTerm: true,
		},
		{
			name:     "case-insensitive marker",
			in:       "Texte.\nnew_terms: {\"Hobbiton\": \"Hobbitebourg\"}",
			want:     "Texte.",
			wantTerm: true,
		},
		{
			name: "malformed JSON keeps text intact",
			in:   "Texte.\nNEW_TERMS: {broken",
			want: "Texte.\nNEW_TERMS: {broken",
		},
		{
			name: "no marker",
			in:   "Une phrase ordinaire.",
			want: "Une phrase ordinaire.",
		},
		{
			name: "empty object is stripped",
			in:   "Texte.\nNEW_TERMS: {}",
			want: "Texte.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTemp(t, 0)
			got := s.ExtractNewTerms(tt.in)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if _, ok := s.Get("Hobbiton"); ok != tt.wantTerm {
				t.Errorf("term stored = %v, want %v", ok, tt.wantTerm)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

func TestOpenCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.json")
	if _, err := Open(path, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("glossary file not created: %v", err)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.json")
	s, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Merge(map[string]string{"Mordor": "Mordor", "Gondor": "Gondor"}); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	reopened, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("reopened store has %d terms, want 2", reopened.Len())
	}
	if tr, ok := reopened.Get("Mordor"); !ok || tr != "Mordor" {
		t.Errorf("got (%q, %v) after reopen", tr, ok)
	}
}

func TestEntriesSortedByTerm(t *testing.T) {
	s := openTemp(t, 0)
	if _, err := s.Merge(map[string]string{"Zed": "z", "Abel": "a", "Mira": "m"}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	entries := s.Entries()
	want := []string{"Abel", "Mira", "Zed"}
	for i, e := range entries {
		if e.Term != want[i] {
			t.Errorf("position %d: got %q, want %q", i, e.Term, want[i])
		}
	}
}
