// Package srtfile adapts SRT subtitle files to the translation pipeline.
//
// An SRT file is a sequence of blocks separated by blank lines:
//
//	12
//	00:01:02,000 --> 00:01:04,500
//	subtitle text, possibly
//	spanning multiple lines
//
// Only the text is translatable; sequence numbers and timecodes pass
// through untouched. The text of each block is one unit.
package srtfile

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"bilibook/book"
)

// Block is one subtitle cue.
type Block struct {
	// Number is the cue sequence number line (kept verbatim).
	Number string
	// Timecode is the "start --> end" line (kept verbatim).
	Timecode string
	// unit holds the cue text and its translation.
	unit book.Unit
}

// File is a parsed SRT document.
type File struct {
	blocks []Block
}

// blockSplitter separates cues on blank lines (tolerating stray spaces).
var blockSplitter = regexp.MustCompile(`\r?\n\s*\r?\n`)

// timecodeLine matches an SRT timing line.
var timecodeLine = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}[,.]\d{3}\s*-->\s*\d{2}:\d{2}:\d{2}[,.]\d{3}`)

// Load reads and parses an SRT file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(string(data))
}

// Parse parses SRT text into a File.
func Parse(text string) (*File, error) {
	f := &File{}
	for _, raw := range blockSplitter.Split(text, -1) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		lines := strings.Split(raw, "\n")
		for i := range lines {
			lines[i] = strings.TrimRight(lines[i], "\r")
		}

		b := Block{}
		rest := lines
		if len(rest) > 0 && isNumeric(rest[0]) {
			b.Number = strings.TrimSpace(rest[0])
			rest = rest[1:]
		}
		if len(rest) > 0 && timecodeLine.MatchString(strings.TrimSpace(rest[0])) {
			b.Timecode = strings.TrimSpace(rest[0])
			rest = rest[1:]
		}
		if b.Number == "" && b.Timecode == "" {
			return nil, fmt.Errorf("malformed SRT block: %q", truncate(raw, 80))
		}
		b.unit.Source = strings.Join(rest, "\n")
		f.blocks = append(f.blocks, b)
	}
	return f, nil
}

func (f *File) Len() int                { return len(f.blocks) }
func (f *File) Source(i int) string     { return f.blocks[i].unit.Source }
func (f *File) Translated(i int) string { return f.blocks[i].unit.Translated }
func (f *File) SetTranslated(i int, text string) {
	f.blocks[i].unit.Translated = text
}

// Block returns the i-th cue for inspection.
func (f *File) Block(i int) Block { return f.blocks[i] }

// Render serializes the subtitles with translations merged in.
func (f *File) Render(bilingual bool) string {
	var b strings.Builder
	for i, blk := range f.blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		if blk.Number != "" {
			b.WriteString(blk.Number)
			b.WriteString("\n")
		}
		if blk.Timecode != "" {
			b.WriteString(blk.Timecode)
			b.WriteString("\n")
		}
		b.WriteString(book.Merge(blk.unit.Source, blk.unit.Translated, bilingual))
		b.WriteString("\n")
	}
	return b.String()
}

// Save writes the rendered subtitles to path.
func (f *File) Save(path string, bilingual bool) error {
	if err := os.WriteFile(path, []byte(f.Render(bilingual)), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ book.Sequence = (*File)(nil)
