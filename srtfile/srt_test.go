package srtfile

import (
	"strings"
	"testing"
)

const sample = `1
00:00:01,000 --> 00:00:03,500
Hello there.

2
00:00:04,000 --> 00:00:06,000
A line
spanning two rows.

3
00:00:07,000 --> 00:00:08,000
42
`

func TestParse(t *testing.T) {
	f, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Len() != 3 {
		t.Fatalf("Len = %d, want 3", f.Len())
	}

	b := f.Block(0)
	if b.Number != "1" || b.Timecode != "00:00:01,000 --> 00:00:03,500" {
		t.Errorf("block 0 header = (%q, %q)", b.Number, b.Timecode)
	}
	if got := f.Source(1); got != "A line\nspanning two rows." {
		t.Errorf("block 1 text = %q", got)
	}
	// A purely numeric cue text stays a unit; the pipeline skips it later.
	if got := f.Source(2); got != "42" {
		t.Errorf("block 2 text = %q", got)
	}
}

func TestParseWithoutNumbers(t *testing.T) {
	f, err := Parse("00:00:01,000 --> 00:00:02,000\nJust a timecode cue.\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Len() != 1 || f.Block(0).Number != "" {
		t.Errorf("got %d blocks, number %q", f.Len(), f.Block(0).Number)
	}
}

func TestParseRejectsMalformedBlock(t *testing.T) {
	if _, err := Parse("no header\njust text\n"); err == nil {
		t.Error("Parse accepted a block with neither number nor timecode")
	}
}

func TestParseCRLF(t *testing.T) {
	f, err := Parse("1\r\n00:00:01,000 --> 00:00:02,000\r\nWindows line endings.\r\n\r\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := f.Source(0); got != "Windows line endings." {
		t.Errorf("got %q", got)
	}
}

func TestRenderPreservesHeaders(t *testing.T) {
	f, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f.SetTranslated(0, "Bonjour.")

	out := f.Render(true)
	if !strings.Contains(out, "1\n00:00:01,000 --> 00:00:03,500\nHello there.\nBonjour.\n") {
		t.Errorf("bilingual render missing merged first cue:\n%s", out)
	}
	// Untouched cues keep their original text.
	if !strings.Contains(out, "A line\nspanning two rows.") {
		t.Errorf("render lost untranslated cue:\n%s", out)
	}

	single := f.Render(false)
	if strings.Contains(single, "Hello there.") {
		t.Errorf("single render kept the original of a translated cue:\n%s", single)
	}
	if !strings.Contains(single, "Bonjour.") {
		t.Errorf("single render missing translation:\n%s", single)
	}
}
