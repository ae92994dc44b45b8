// Package tokens implements a running estimate of input/output tokens
// for the current turn, and the usage-fraction check the Compactor
// consults.
package tokens

import "sync"

// Counter holds the provider-reported usage from the most recently
// completed assistant turn. It is per-Agent and reset only by an explicit
// session reset; usage is transient per-call state, not something
// persisted across turns.
type Counter struct {
	mu     sync.Mutex
	input  int
	output int
}

// New returns a zeroed Counter.
func New() *Counter {
	return &Counter{}
}

// Update records the input/output token counts reported by the provider
// for the turn that just completed.
func (c *Counter) Update(input, output int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = input
	c.output = output
}

// Reset zeroes the counter, used on session reset.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = 0
	c.output = 0
}

// Totals returns the last recorded (input, output) token counts.
func (c *Counter) Totals() (input, output int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input, c.output
}

// UsageFraction returns (input+output)/ctxWindow, the fraction the
// Compactor compares against its threshold. Returns 0 if ctxWindow <= 0.
func (c *Counter) UsageFraction(ctxWindow int) float64 {
	if ctxWindow <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.input+c.output) / float64(ctxWindow)
}
