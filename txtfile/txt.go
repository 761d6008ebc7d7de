// Package txtfile adapts plain text documents to the translation pipeline.
//
// Every non-blank line is one translatable unit. Blank lines are dropped on
// load; the output re-separates units with blank lines, so a line-per-
// paragraph book round-trips into a readable bilingual edition.
package txtfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bilibook/book"
)

// File is a parsed plain text document.
type File struct {
	units book.Units
}

// Load reads and parses a text file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

// Parse splits text into one unit per non-blank line.
func Parse(text string) *File {
	f := &File{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		f.units = append(f.units, book.Unit{Source: strings.TrimSpace(line)})
	}
	return f
}

func (f *File) Len() int                         { return f.units.Len() }
func (f *File) Source(i int) string              { return f.units.Source(i) }
func (f *File) Translated(i int) string          { return f.units.Translated(i) }
func (f *File) SetTranslated(i int, text string) { f.units.SetTranslated(i, text) }

// Render serializes the document, merging translations per the output
// policy.
func (f *File) Render(bilingual bool) string {
	parts := make([]string, len(f.units))
	for i, u := range f.units {
		parts[i] = book.Merge(u.Source, u.Translated, bilingual)
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// Save writes the rendered document to path.
func (f *File) Save(path string, bilingual bool) error {
	if err := os.WriteFile(path, []byte(f.Render(bilingual)), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// OutputPath derives the translated-document path:
// "alice.txt" -> "alice_bili.txt".
func OutputPath(inputPath string) string {
	dir := filepath.Dir(inputPath)
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+"_bili"+ext)
}

var _ book.Sequence = (*File)(nil)
