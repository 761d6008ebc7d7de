// Package mdfile adapts Markdown documents to the translation pipeline.
//
// The document is split into paragraph units:
//
//   - a heading line (# to ######) is always its own unit;
//   - consecutive non-blank lines form one paragraph unit;
//   - fenced code blocks (``` or ~~~) are kept whole — blank lines inside
//     a fence do not end the paragraph.
//
// Serialization joins units with blank lines, which reflows the document
// but preserves reading order, headings, and code blocks.
package mdfile

import (
	"fmt"
	"os"
	"strings"

	"bilibook/book"
)

// File is a parsed Markdown document.
type File struct {
	units book.Units
}

// Load reads and parses a Markdown file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

// Parse splits Markdown text into paragraph units.
func Parse(text string) *File {
	f := &File{}
	var current []string
	inFence := false

	endParagraph := func() {
		if len(current) == 0 {
			return
		}
		f.units = append(f.units, book.Unit{Source: strings.Join(current, "\n")})
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)

		if isFenceDelimiter(trimmed) {
			inFence = !inFence
			current = append(current, line)
			continue
		}
		if inFence {
			current = append(current, line)
			continue
		}

		switch {
		case trimmed == "":
			endParagraph()
		case isHeading(trimmed):
			endParagraph()
			f.units = append(f.units, book.Unit{Source: line})
		default:
			current = append(current, line)
		}
	}
	endParagraph()
	return f
}

func (f *File) Len() int                         { return f.units.Len() }
func (f *File) Source(i int) string              { return f.units.Source(i) }
func (f *File) Translated(i int) string          { return f.units.Translated(i) }
func (f *File) SetTranslated(i int, text string) { f.units.SetTranslated(i, text) }

// Render serializes the document with translations merged in.
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

// isHeading reports whether a trimmed line is an ATX heading.
func isHeading(line string) bool {
	if !strings.HasPrefix(line, "#") {
		return false
	}
	hashes := 0
	for hashes < len(line) && line[hashes] == '#' {
		hashes++
	}
	return hashes <= 6 && hashes < len(line) && line[hashes] == ' '
}

// isFenceDelimiter reports whether a trimmed line opens or closes a fenced
// code block.
func isFenceDelimiter(line string) bool {
	return strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~")
}

var _ book.Sequence = (*File)(nil)
