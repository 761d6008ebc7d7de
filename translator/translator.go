// Package translator implements the resilient translation engine: one
// logical translate call wrapped in bounded retries with exponential
// backoff, API key rotation, model-variant rotation, safety-refusal
// fallback, rate limiting, and glossary-aware prompt augmentation.
//
// The engine is provider-agnostic: it drives any Provider implementation
// (openaiapi in this repo) and classifies failures through the sentinel
// errors below. Only credential errors are terminal; everything else is
// retried, and exhausting the retry budget degrades to an empty result so
// the job can continue past a stubborn unit.
package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bilibook/glossary"
	"bilibook/token"
)

// Error taxonomy. Providers wrap their native errors so the engine can
// classify with errors.Is.
var (
	// ErrSafetyRefusal: the model declined the content. Triggers the
	// granular single-unit fallback rather than a retry.
	ErrSafetyRefusal = errors.New("safety refusal")
	// ErrCredential: invalid, revoked, or leaked credentials. Never
	// retried; aborts the whole job.
	ErrCredential = errors.New("credential error")
)

// Separator joins batch units into one request and splits the response
// back. Distinctive enough that chat models preserve it.
const Separator = "\n%%%%\n"

// DefaultSystemPrompt is the base translation instruction.
const DefaultSystemPrompt = `You are a professional literary translator. Translate the text into {{targetLang}}. Preserve paragraph breaks, line breaks, and any %%%% separator lines exactly as they appear. Return only the translated content, no explanations.`

// newTermsInstruction asks the model to surface newly coined proper nouns
// in the trailing marker the glossary store knows how to parse.
const newTermsInstruction = `If you encounter a proper noun (person or place name) not listed in the glossary, append one final line to your output in exactly this form:
NEW_TERMS: {"original term": "your translation"}
The marker must be valid JSON and must be the last line of the output.`

// ---------------------------------------------------------------------------
// Provider contract
// ---------------------------------------------------------------------------

// Request is one completion call. The engine fills Key and Model from its
// rotation state on every attempt.
type Request struct {
	Key    string
	Model  string
	System string
	User   string
}

// Provider performs a single completion call against an external model.
// Implementations must wrap failures with ErrSafetyRefusal or ErrCredential
// where those categories apply; any other error is treated as transient.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options configures an Engine.
type Options struct {
	// Keys is the credential rotation list (at least one).
	Keys []string
	// Models is the model-variant rotation list (at least one).
	Models []string
	// TargetLang is the human-readable target language name.
	TargetLang string
	// SystemPrompt overrides DefaultSystemPrompt. {{targetLang}} is
	// replaced in either.
	SystemPrompt string
	// MaxAttempts bounds the retry loop. Default: 7.
	MaxAttempts int
	// Backoff is the initial retry delay, doubled per attempt. Default: 1s.
	Backoff time.Duration
	// Interval is the post-success rate-limit sleep. Default: none.
	Interval time.Duration
	// Glossary, when set, enables prompt augmentation and term extraction.
	Glossary *glossary.Store
	// OnLog emits progress messages.
	OnLog func(format string, args ...any)
	// OnError emits error messages.
	OnError func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) effectiveMaxAttempts() int {
	if o.MaxAttempts > 0 {
		return o.MaxAttempts
	}
	return 7
}

func (o *Options) effectiveBackoff() time.Duration {
	if o.Backoff > 0 {
		return o.Backoff
	}
	return time.Second
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine drives translate calls with resilience. Not safe for concurrent
// use: one engine belongs to one job, matching the pipeline's single
// logical thread of control.
type Engine struct {
	provider Provider
	opts     Options
	keyIdx   int
	modelIdx int
	counter  token.Counter

	// sleep is context-aware and replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Engine. Keys and Models must be non-empty.
func New(p Provider, opts Options) (*Engine, error) {
	if p == nil {
		return nil, errors.New("translator: provider is required")
	}
	if len(opts.Keys) == 0 {
		return nil, errors.New("translator: at least one API key is required")
	}
	if len(opts.Models) == 0 {
		return nil, errors.New("translator: at least one model is required")
	}
	return &Engine{
		provider: p,
		opts:     opts,
		sleep:    sleepCtx,
	}, nil
}

// Counter exposes the advisory throughput totals.
func (e *Engine) Counter() *token.Counter { return &e.counter }

// Model returns the model variant currently selected by rotation.
func (e *Engine) Model() string { return e.opts.Models[e.modelIdx] }

func (e *Engine) key() string { return e.opts.Keys[e.keyIdx] }

func (e *Engine) rotateKey() {
	if len(e.opts.Keys) < 2 {
		return
	}
	e.keyIdx = (e.keyIdx + 1) % len(e.opts.Keys)
	e.opts.log("switching to API key #%d", e.keyIdx+1)
}

func (e *Engine) rotateModel() {
	if len(e.opts.Models) < 2 {
		return
	}
	e.modelIdx = (e.modelIdx + 1) % len(e.opts.Models)
	e.opts.log("switching to model %s", e.Model())
}

// ---------------------------------------------------------------------------
// Prompts
// ---------------------------------------------------------------------------

func (e *Engine) systemPrompt(text string) string {
	base := e.opts.SystemPrompt
	if base == "" {
		base = DefaultSystemPrompt
	}
	base = strings.ReplaceAll(base, "{{targetLang}}", e.opts.TargetLang)

	gl := e.opts.Glossary
	if gl == nil {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	if section := gl.Section(text); section != "" {
		b.WriteString("\n\n")
		b.WriteString(section)
	}
	// Once the glossary is full no new terms can be accepted, so stop
	// paying for the marker output.
	if !gl.AtCap() {
		b.WriteString("\n\n")
		b.WriteString(newTermsInstruction)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Single-call state machine
// ---------------------------------------------------------------------------

// translate runs the retry loop for one request. Returns ErrSafetyRefusal
// or ErrCredential for the caller to handle; transient failures are retried
// with backoff and rotation, and exhausting the budget yields ("", nil).
func (e *Engine) translate(ctx context.Context, text string) (string, error) {
	maxAttempts := e.opts.effectiveMaxAttempts()
	delay := e.opts.effectiveBackoff()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		start := time.Now()
		out, err := e.provider.Complete(ctx, Request{
			Key:    e.key(),
			Model:  e.Model(),
			System: e.systemPrompt(text),
			User:   text,
		})
		if err == nil {
			out = strings.TrimSpace(out)
			if e.opts.Glossary != nil {
				out = e.opts.Glossary.ExtractNewTerms(out)
			}
			e.counter.Add(token.Estimate(text), time.Since(start))
			if e.opts.Interval > 0 {
				if err := e.sleep(ctx, e.opts.Interval); err != nil {
					return out, nil // result is good; cancellation lands on the next unit
				}
			}
			return out, nil
		}

		switch {
		case errors.Is(err, ErrCredential):
			return "", err
		case errors.Is(err, ErrSafetyRefusal):
			return "", err
		case ctx.Err() != nil:
			return "", ctx.Err()
		}

		e.opts.logError("translate attempt %d/%d failed: %v (retrying in %s)",
			attempt+1, maxAttempts, err, delay)
		if err := e.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
		e.rotateKey()
		if attempt >= 1 {
			e.rotateModel()
		}
	}

	e.opts.logError("translate failed after %d attempts, leaving unit untranslated", maxAttempts)
	return "", nil
}

// Translate translates a single unit. A safety refusal at single-unit
// granularity degrades to returning the source unchanged rather than
// failing the job.
func (e *Engine) Translate(ctx context.Context, text string) (string, error) {
	out, err := e.translate(ctx, text)
	if errors.Is(err, ErrSafetyRefusal) {
		e.opts.logError("model refused this segment, keeping original text")
		return text, nil
	}
	return out, err
}

// TranslateBatch translates a group of units as one joined call. On a
// safety refusal or a split-count mismatch it falls back to translating
// each unit individually — units are never silently dropped or misaligned.
// A fully exhausted retry budget yields empty strings for the whole batch.
func (e *Engine) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	switch len(texts) {
	case 0:
		return nil, nil
	case 1:
		out, err := e.Translate(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return []string{out}, nil
	}

	joined := strings.Join(texts, Separator)
	out, err := e.translate(ctx, joined)
	if errors.Is(err, ErrSafetyRefusal) {
		e.opts.log("model refused a %d-unit batch, retrying units individually", len(texts))
		return e.translateEach(ctx, texts)
	}
	if err != nil {
		return nil, err
	}
	if out == "" {
		return make([]string, len(texts)), nil
	}

	parts := splitBatch(out)
	if len(parts) != len(texts) {
		e.opts.logError("batch returned %d segments, expected %d; retranslating individually",
			len(parts), len(texts))
		return e.translateEach(ctx, texts)
	}
	return parts, nil
}

// translateEach is the granular fallback path: every unit gets its own
// call, with the usual single-unit degradation rules.
func (e *Engine) translateEach(ctx context.Context, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tr, err := e.Translate(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = tr
	}
	return out, nil
}

// splitBatch splits a joined response on the separator token, tolerating
// whitespace drift the model introduces around it.
func splitBatch(joined string) []string {
	parts := strings.Split(joined, strings.TrimSpace(Separator))
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Summary returns the advisory throughput line for end-of-job reporting.
func (e *Engine) Summary() string {
	return fmt.Sprintf("model %s: %s", e.Model(), e.counter.Summary())
}
