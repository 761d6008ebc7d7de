// Package book defines the document model shared by all format adapters.
//
// A document is exposed to the translation pipeline as an ordered sequence
// of text units with stable positional indices. Format adapters (txtfile,
// srtfile, mdfile) parse their container into a Sequence and serialize the
// result back out; the pipeline itself never sees container structure.
package book

import (
	"strings"
	"unicode"
)

// Sequence is the minimal capability a format adapter must expose to the
// accumulator: index-stable read access to source text and in-place update
// of the translation.
type Sequence interface {
	// Len returns the number of units in document order.
	Len() int
	// Source returns the original text of unit i.
	Source(i int) string
	// Translated returns the translated text of unit i ("" = untranslated).
	Translated(i int) string
	// SetTranslated records the translation for unit i.
	SetTranslated(i int, text string)
}

// Unit is one translatable chunk of source text. Adapters typically hold a
// slice of these and implement Sequence over it.
type Unit struct {
	Source     string
	Translated string
}

// Units is a ready-made Sequence over a []Unit, embeddable by adapters.
type Units []Unit

func (u Units) Len() int                { return len(u) }
func (u Units) Source(i int) string     { return u[i].Source }
func (u Units) Translated(i int) string { return u[i].Translated }
func (u Units) SetTranslated(i int, text string) {
	u[i].Translated = text
}

// IsSpecial reports whether a unit's text should never be sent for
// translation: empty, whitespace-only, or purely numeric (subtitle
// sequence numbers, page numbers). Special units never consume a
// progress slot.
func IsSpecial(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	for _, r := range text {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Merge combines original and translated text per the output policy.
// In bilingual mode the translation follows the original, separated by a
// newline; in single mode the translation replaces the original. Units
// without a translation keep their original text in either mode.
func Merge(original, translated string, bilingual bool) string {
	if translated == "" {
		return original
	}
	if !bilingual {
		return translated
	}
	return original + "\n" + translated
}
