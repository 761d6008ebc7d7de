// Package token provides the token estimation and throughput accounting
// used by the batching and translation layers.
//
// Estimation is deliberately cheap and model-agnostic: tokens are
// approximated as ceil(utf8 bytes / 4). The batch budget only needs a
// stable, monotonic estimate — not tokenizer-exact counts.
package token

import (
	"fmt"
	"sync"
	"time"
)

// bytesPerToken is the estimation divisor. Four bytes per token is the
// common approximation for mixed prose.
const bytesPerToken = 4

// Estimate approximates the token count of a text.
func Estimate(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	return (n + bytesPerToken - 1) / bytesPerToken
}

// ---------------------------------------------------------------------------
// Throughput counter
// ---------------------------------------------------------------------------

// Counter accumulates token and wall-clock totals across translate calls.
// It is advisory only: the pipeline never branches on its values.
type Counter struct {
	mu     sync.Mutex
	tokens int
	spent  time.Duration
	calls  int
}

// Add records one completed translate call.
func (c *Counter) Add(tokens int, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens += tokens
	c.spent += elapsed
	c.calls++
}

// Totals returns the accumulated token count, time, and call count.
func (c *Counter) Totals() (tokens int, spent time.Duration, calls int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens, c.spent, c.calls
}

// Summary returns a human-readable throughput line, e.g.
// "12,480 tokens in 96.2s (129.7 tokens/s, 14 calls)".
func (c *Counter) Summary() string {
	tokens, spent, calls := c.Totals()
	if calls == 0 {
		return "no translate calls"
	}
	secs := spent.Seconds()
	tps := 0.0
	if secs > 0 {
		tps = float64(tokens) / secs
	}
	return fmt.Sprintf("%d tokens in %.1fs (%.1f tokens/s, %d calls)", tokens, secs, tps, calls)
}
