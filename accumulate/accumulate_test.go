package accumulate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"bilibook/book"
	"bilibook/progress"
)

// ---------------------------------------------------------------------------
// Test fixtures
// ---------------------------------------------------------------------------

// stubEngine records every call and translates by prefixing "tr:".
type stubEngine struct {
	batches [][]string
	singles []string
	fn      func(text string) string
}

func newStubEngine() *stubEngine {
	return &stubEngine{fn: func(text string) string { return "tr:" + text }}
}

func (s *stubEngine) Translate(ctx context.Context, text string) (string, error) {
	s.singles = append(s.singles, text)
	return s.fn(text), nil
}

func (s *stubEngine) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	s.batches = append(s.batches, append([]string(nil), texts...))
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = s.fn(t)
	}
	return out, nil
}

// unitOfTokens builds a distinct source string estimating to exactly n tokens
// (4 bytes per token).
func unitOfTokens(i, n int) string {
	head := fmt.Sprintf("unit-%03d-", i)
	return head + strings.Repeat("x", n*4-len(head))
}

func newRecord(t *testing.T) *progress.Record {
	t.Helper()
	return progress.Load(filepath.Join(t.TempDir(), "book.txt"))
}

func runAccumulator(t *testing.T, eng Translator, rec *progress.Record, opts Options, seq book.Sequence) {
	t.Helper()
	acc, err := New(eng, rec, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := acc.Run(context.Background(), seq); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Batching
// ---------------------------------------------------------------------------

func TestBatchingRespectsBudget(t *testing.T) {
	seq := make(book.Units, 25)
	for i := range seq {
		seq[i].Source = unitOfTokens(i, 10)
	}

	eng := newStubEngine()
	rec := newRecord(t)
	runAccumulator(t, eng, rec, Options{Budget: 100}, seq)

	// 25 ten-token units against a 100-token budget: the unit that would
	// reach the budget starts the next batch, so three calls cover the book.
	if got, want := len(eng.batches), 3; got != want {
		t.Fatalf("got %d batch calls, want %d", got, want)
	}
	if len(eng.singles) != 0 {
		t.Errorf("got %d single calls, want 0", len(eng.singles))
	}
	covered := 0
	for _, b := range eng.batches {
		covered += len(b)
	}
	if covered != 25 {
		t.Errorf("batches covered %d units, want 25", covered)
	}
	for i := range seq {
		if got, want := seq.Translated(i), "tr:"+seq.Source(i); got != want {
			t.Fatalf("unit %d: got %q, want %q", i, got, want)
		}
	}
	if rec.Len() != 25 {
		t.Errorf("record has %d items, want 25", rec.Len())
	}
}

func TestBatchPreservesOrder(t *testing.T) {
	seq := make(book.Units, 6)
	for i := range seq {
		seq[i].Source = unitOfTokens(i, 5)
	}

	eng := newStubEngine()
	rec := newRecord(t)
	runAccumulator(t, eng, rec, Options{Budget: 1000}, seq)

	if got, want := len(eng.batches), 1; got != want {
		t.Fatalf("got %d batch calls, want %d", got, want)
	}
	for i, src := range eng.batches[0] {
		if src != seq.Source(i) {
			t.Errorf("batch position %d: got %q, want %q", i, src, seq.Source(i))
		}
	}
	for slot := 0; slot < rec.Len(); slot++ {
		if got, want := rec.Get(slot), "tr:"+seq.Source(slot); got != want {
			t.Errorf("slot %d: got %q, want %q", slot, got, want)
		}
	}
}

func TestOversizedUnitTranslatedAlone(t *testing.T) {
	seq := book.Units{
		{Source: unitOfTokens(0, 10)},
		{Source: unitOfTokens(1, 10)},
		{Source: unitOfTokens(2, 40)}, // exceeds the budget on its own
		{Source: unitOfTokens(3, 10)},
		{Source: unitOfTokens(4, 10)},
	}

	eng := newStubEngine()
	rec := newRecord(t)
	runAccumulator(t, eng, rec, Options{Budget: 30}, seq)

	if got, want := len(eng.singles), 1; got != want {
		t.Fatalf("got %d single calls, want %d", got, want)
	}
	if eng.singles[0] != seq.Source(2) {
		t.Errorf("single call got %q, want the oversized unit", eng.singles[0])
	}
	// The pending batch is flushed before the oversized unit so output
	// order matches input order.
	if got, want := len(eng.batches), 2; got != want {
		t.Fatalf("got %d batch calls, want %d", got, want)
	}
	if got := eng.batches[0]; len(got) != 2 || got[0] != seq.Source(0) {
		t.Errorf("first batch = %q, want the two units before the oversized one", got)
	}
	if rec.Len() != 5 {
		t.Errorf("record has %d items, want 5", rec.Len())
	}
}

func TestSpecialUnitsSkipped(t *testing.T) {
	seq := book.Units{
		{Source: ""},
		{Source: "first real paragraph"},
		{Source: "42"},
		{Source: "   "},
		{Source: "second real paragraph"},
	}

	eng := newStubEngine()
	rec := newRecord(t)
	runAccumulator(t, eng, rec, Options{Budget: 1000}, seq)

	if got, want := len(eng.batches), 1; got != want {
		t.Fatalf("got %d batch calls, want %d", got, want)
	}
	if got := eng.batches[0]; len(got) != 2 {
		t.Fatalf("batch = %q, want only the two real paragraphs", got)
	}
	// Special units never consume progress slots.
	if rec.Len() != 2 {
		t.Errorf("record has %d items, want 2", rec.Len())
	}
	for _, i := range []int{0, 2, 3} {
		if seq.Translated(i) != "" {
			t.Errorf("special unit %d was translated: %q", i, seq.Translated(i))
		}
	}
}

func TestEmptyResultLeavesUnitUntranslated(t *testing.T) {
	seq := book.Units{
		{Source: "stubborn paragraph"},
		{Source: "normal paragraph"},
	}

	eng := newStubEngine()
	eng.fn = func(text string) string {
		if text == "stubborn paragraph" {
			return "" // engine exhausted its retries
		}
		return "tr:" + text
	}
	rec := newRecord(t)
	runAccumulator(t, eng, rec, Options{Budget: 1000}, seq)

	if seq.Translated(0) != "" {
		t.Errorf("unit 0: got %q, want untranslated", seq.Translated(0))
	}
	if got, want := seq.Translated(1), "tr:normal paragraph"; got != want {
		t.Errorf("unit 1: got %q, want %q", got, want)
	}
	// The empty result still occupies its slot so later units stay aligned.
	if rec.Len() != 2 || rec.Get(0) != "" {
		t.Errorf("record = %d items, slot 0 = %q; want 2 items with empty slot 0", rec.Len(), rec.Get(0))
	}
}

// ---------------------------------------------------------------------------
// Resume
// ---------------------------------------------------------------------------

func TestResumeSkipsCompletedUnits(t *testing.T) {
	docPath := filepath.Join(t.TempDir(), "book.txt")
	seq := book.Units{
		{Source: "paragraph one"},
		{Source: "paragraph two"},
		{Source: "paragraph three"},
	}

	// Simulate a fully completed prior run.
	prior := progress.Load(docPath)
	for i := range seq {
		if err := prior.Set(i, "tr:"+seq[i].Source); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := prior.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	eng := newStubEngine()
	rec := progress.Load(docPath)
	runAccumulator(t, eng, rec, Options{Budget: 1000, Resume: true}, seq)

	if len(eng.batches) != 0 || len(eng.singles) != 0 {
		t.Fatalf("resume made %d batch and %d single calls, want none",
			len(eng.batches), len(eng.singles))
	}
	for i := range seq {
		if got, want := seq.Translated(i), "tr:"+seq[i].Source; got != want {
			t.Errorf("unit %d: got %q, want %q", i, got, want)
		}
	}
}

func TestResumeRequeuesStaleRecords(t *testing.T) {
	docPath := filepath.Join(t.TempDir(), "book.txt")
	seq := book.Units{
		{Source: "paragraph one"},
		{Source: "paragraph two"},
		{Source: "paragraph three"},
	}

	prior := progress.Load(docPath)
	prior.Set(0, "paragraph one") // identical to source: the model echoed the input
	prior.Set(1, "")              // prior exhausted-retries unit
	prior.Set(2, "tr:paragraph three")
	if err := prior.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	eng := newStubEngine()
	rec := progress.Load(docPath)
	runAccumulator(t, eng, rec, Options{Budget: 1000, Resume: true}, seq)

	// Only the two distrusted slots go back through the engine.
	var sent []string
	for _, b := range eng.batches {
		sent = append(sent, b...)
	}
	sent = append(sent, eng.singles...)
	if len(sent) != 2 || sent[0] != "paragraph one" || sent[1] != "paragraph two" {
		t.Fatalf("re-queued %q, want the two stale units", sent)
	}
	if got, want := seq.Translated(2), "tr:paragraph three"; got != want {
		t.Errorf("trusted unit: got %q, want %q", got, want)
	}
}

func TestResumeDisabledRetranslatesEverything(t *testing.T) {
	docPath := filepath.Join(t.TempDir(), "book.txt")
	seq := book.Units{{Source: "paragraph one"}, {Source: "paragraph two"}}

	prior := progress.Load(docPath)
	prior.Set(0, "tr:paragraph one")
	prior.Set(1, "tr:paragraph two")
	if err := prior.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	eng := newStubEngine()
	rec := progress.Load(docPath)
	runAccumulator(t, eng, rec, Options{Budget: 1000, Resume: false}, seq)

	covered := 0
	for _, b := range eng.batches {
		covered += len(b)
	}
	if covered+len(eng.singles) != 2 {
		t.Errorf("translated %d units, want 2", covered+len(eng.singles))
	}
}

// ---------------------------------------------------------------------------
// Durability and cancellation
// ---------------------------------------------------------------------------

func TestProgressPersistedAfterEveryFlush(t *testing.T) {
	docPath := filepath.Join(t.TempDir(), "book.txt")
	seq := make(book.Units, 25)
	for i := range seq {
		seq[i].Source = unitOfTokens(i, 10)
	}

	var flushes int
	var onDisk []int
	eng := newStubEngine()
	rec := progress.Load(docPath)
	runAccumulator(t, eng, rec, Options{
		Budget: 100,
		OnProgress: func(done, total int) {
			flushes++
			// The record on disk must already reflect this flush.
			onDisk = append(onDisk, progress.Load(docPath).Len())
			if done > total {
				t.Errorf("done %d > total %d", done, total)
			}
		},
	}, seq)

	if flushes != 3 {
		t.Fatalf("got %d flushes, want 3", flushes)
	}
	if final := onDisk[len(onDisk)-1]; final != 25 {
		t.Errorf("record on disk has %d items after last flush, want 25", final)
	}
	for i := 1; i < len(onDisk); i++ {
		if onDisk[i] <= onDisk[i-1] {
			t.Errorf("on-disk record did not grow between flushes: %v", onDisk)
		}
	}
}

// cancelAfterEngine cancels the context after the first batch completes.
type cancelAfterEngine struct {
	*stubEngine
	cancel context.CancelFunc
}

func (c *cancelAfterEngine) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	out, err := c.stubEngine.TranslateBatch(ctx, texts)
	c.cancel()
	return out, err
}

func TestCancellationLandsOnUnitBoundary(t *testing.T) {
	docPath := filepath.Join(t.TempDir(), "book.txt")
	seq := make(book.Units, 25)
	for i := range seq {
		seq[i].Source = unitOfTokens(i, 10)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng := &cancelAfterEngine{stubEngine: newStubEngine(), cancel: cancel}
	rec := progress.Load(docPath)

	acc, err := New(eng, rec, Options{Budget: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := acc.Run(ctx, seq); err != context.Canceled {
		t.Fatalf("Run: got %v, want context.Canceled", err)
	}

	// The in-flight batch completed and was flushed; nothing after it ran.
	if got, want := len(eng.batches), 1; got != want {
		t.Fatalf("got %d batch calls, want %d", got, want)
	}
	if got := progress.Load(docPath).Len(); got != len(eng.batches[0]) {
		t.Errorf("record on disk has %d items, want %d", got, len(eng.batches[0]))
	}
}

func TestNewValidatesOptions(t *testing.T) {
	rec := newRecord(t)
	if _, err := New(nil, rec, Options{Budget: 100}); err == nil {
		t.Error("New accepted a nil engine")
	}
	if _, err := New(newStubEngine(), nil, Options{Budget: 100}); err == nil {
		t.Error("New accepted a nil record")
	}
	if _, err := New(newStubEngine(), rec, Options{}); err == nil {
		t.Error("New accepted a zero budget")
	}
}
