// Package accumulate implements the scheduling core of the pipeline: it
// walks a document's unit sequence, groups units into token-bounded
// batches, applies the resume policy per unit, drives the translation
// engine, and persists the progress record after every flush.
//
// The accumulator is strictly sequential. Units are processed in source
// order, output indices never reorder relative to input indices, and the
// progress record is written after each batch completes and before the
// next one begins — so an interruption costs at most one in-flight batch.
package accumulate

import (
	"context"
	"errors"

	"bilibook/book"
	"bilibook/progress"
	"bilibook/token"
)

// Translator is the engine capability the accumulator drives. Satisfied by
// *translator.Engine; stubbed in tests.
type Translator interface {
	// Translate translates one unit.
	Translate(ctx context.Context, text string) (string, error)
	// TranslateBatch translates a group of units as one joined call,
	// returning one result per input (empty = untranslated).
	TranslateBatch(ctx context.Context, texts []string) ([]string, error)
}

// Options configures an accumulator run.
type Options struct {
	// Budget is the token budget per batch (send_num). Required.
	Budget int
	// Resume applies the saved progress record before translating.
	Resume bool
	// OnProgress is called after each completed flush with processed and
	// total unit counts.
	OnProgress func(done, total int)
	// OnLog emits progress messages.
	OnLog func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

// Accumulator turns a resumable stream of units into minimal-call,
// budget-respecting translation batches.
type Accumulator struct {
	engine Translator
	record *progress.Record
	opts   Options
}

// New creates an Accumulator.
func New(engine Translator, record *progress.Record, opts Options) (*Accumulator, error) {
	if engine == nil {
		return nil, errors.New("accumulate: engine is required")
	}
	if record == nil {
		return nil, errors.New("accumulate: progress record is required")
	}
	if opts.Budget <= 0 {
		return nil, errors.New("accumulate: token budget must be > 0")
	}
	return &Accumulator{engine: engine, record: record, opts: opts}, nil
}

// Run processes the whole sequence. On return the sequence carries every
// translation that completed and the progress record reflects everything
// through the last successful flush; an error (including cancellation)
// leaves both in a resumable state.
func (a *Accumulator) Run(ctx context.Context, seq book.Sequence) error {
	total := 0
	for i := 0; i < seq.Len(); i++ {
		if !book.IsSpecial(seq.Source(i)) {
			total++
		}
	}

	resumeLen := 0
	if a.opts.Resume {
		resumeLen = a.record.Len()
		if resumeLen > 0 {
			a.opts.log("resuming: %d of %d units recorded", resumeLen, total)
		}
	}

	var (
		pending       []int // sequence indices of the pending batch
		pendingSlots  []int // their progress slots
		pendingTokens int
		slot          int // next progress slot
		done          int
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		texts := make([]string, len(pending))
		for i, idx := range pending {
			texts[i] = seq.Source(idx)
		}
		results, err := a.engine.TranslateBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i, idx := range pending {
			if results[i] != "" {
				seq.SetTranslated(idx, results[i])
			}
			if err := a.record.Set(pendingSlots[i], results[i]); err != nil {
				return err
			}
		}
		done += len(pending)
		pending = pending[:0]
		pendingSlots = pendingSlots[:0]
		pendingTokens = 0
		if err := a.record.Save(); err != nil {
			return err
		}
		if a.opts.OnProgress != nil {
			a.opts.OnProgress(done, total)
		}
		return nil
	}

	for i := 0; i < seq.Len(); i++ {
		src := seq.Source(i)
		if book.IsSpecial(src) {
			continue
		}

		// Cooperative cancellation: checked at unit boundaries only, so an
		// in-flight call always completes and gets flushed or discarded whole.
		if err := ctx.Err(); err != nil {
			return err
		}

		unitSlot := slot
		slot++

		if unitSlot < resumeLen {
			saved := a.record.Get(unitSlot)
			if saved != "" && saved != src {
				// Trusted prior result: patch in place, no call.
				seq.SetTranslated(i, saved)
				done++
				continue
			}
			// Empty slot (a prior exhausted-retries unit) or a translation
			// identical to its source (the model likely echoed the input):
			// distrust the record and re-queue.
			a.opts.log("re-queuing unit %d: saved record looks stale", i)
		}

		cost := token.Estimate(src)

		// A unit that exceeds the budget on its own is translated alone,
		// never merged with neighbors.
		if cost > a.opts.Budget {
			if err := flush(); err != nil {
				return err
			}
			out, err := a.engine.Translate(ctx, src)
			if err != nil {
				return err
			}
			if out != "" {
				seq.SetTranslated(i, out)
			}
			if err := a.record.Set(unitSlot, out); err != nil {
				return err
			}
			done++
			if err := a.record.Save(); err != nil {
				return err
			}
			if a.opts.OnProgress != nil {
				a.opts.OnProgress(done, total)
			}
			continue
		}

		// Flush before the unit that would reach the budget; it starts the
		// next batch.
		if pendingTokens+cost >= a.opts.Budget {
			if err := flush(); err != nil {
				return err
			}
		}
		pending = append(pending, i)
		pendingSlots = append(pendingSlots, unitSlot)
		pendingTokens += cost
	}

	return flush()
}
