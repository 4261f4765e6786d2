package automata

import (
	"errors"
	"fmt"
)

// ErrExhausted reports that no symbol is currently available. It is a
// recoverable condition: chaining more input and retrying clears it.
var ErrExhausted = errors.New("input exhausted")

// PoisonError reports a non-sequence value chained into a cursor. The
// poisoned entry is never removed, so every draw past that point fails
// identically. Chaining a poison value is the documented way to force every
// consumer of a cursor to observe a hard failure.
type PoisonError struct {
	Value any
}

func (e *PoisonError) Error() string {
	return fmt.Sprintf("cursor poisoned: cannot draw symbols from %T", e.Value)
}

// Cursor is a pull cursor over one or more byte sequences with push-back and
// dynamic chaining. A cursor is owned by exactly one parse and is not safe
// for concurrent use.
type Cursor struct {
	cur     []byte
	pos     int
	back    []byte
	pending []any
	sent    int
	limits  []int
}

// NewCursor returns a cursor over an initial source, which may be empty.
func NewCursor(src []byte) *Cursor {
	return &Cursor{cur: src}
}

// Chain enqueues a further source to be drawn from once the current source
// and all previously chained sources are exhausted. Accepted sequence types
// are []byte and string; anything else poisons the queue at that position.
func (c *Cursor) Chain(seq any) {
	c.pending = append(c.pending, seq)
}

// Next consumes and returns one symbol, preferring pushed-back symbols over
// the underlying sources. A spent byte budget reads as exhaustion.
func (c *Cursor) Next() (byte, error) {
	for _, rem := range c.limits {
		if rem <= 0 {
			return 0, ErrExhausted
		}
	}
	sym, err := c.draw()
	if err != nil {
		return 0, err
	}
	for i := range c.limits {
		c.limits[i]--
	}
	c.sent++
	return sym, nil
}

func (c *Cursor) draw() (byte, error) {
	if n := len(c.back); n > 0 {
		sym := c.back[n-1]
		c.back = c.back[:n-1]
		return sym, nil
	}
	for {
		if c.pos < len(c.cur) {
			sym := c.cur[c.pos]
			c.pos++
			return sym, nil
		}
		if len(c.pending) == 0 {
			return 0, ErrExhausted
		}
		switch head := c.pending[0].(type) {
		case []byte:
			c.cur, c.pos = head, 0
			c.pending = c.pending[1:]
		case string:
			c.cur, c.pos = []byte(head), 0
			c.pending = c.pending[1:]
		default:
			// The entry stays queued so the failure repeats on every draw.
			return 0, &PoisonError{Value: head}
		}
	}
}

// Peek returns the next symbol without consuming it. It draws one symbol and
// pushes it back, so the net-sent counter is unchanged.
func (c *Cursor) Peek() (byte, error) {
	for _, rem := range c.limits {
		if rem <= 0 {
			return 0, ErrExhausted
		}
	}
	if n := len(c.back); n > 0 {
		return c.back[n-1], nil
	}
	sym, err := c.Next()
	if err != nil {
		return 0, err
	}
	c.Push(sym)
	return sym, nil
}

// Push restores a symbol to be the next one returned by Next.
func (c *Cursor) Push(sym byte) {
	c.back = append(c.back, sym)
	for i := range c.limits {
		c.limits[i]++
	}
	c.sent--
}

// Sent returns the net number of symbols consumed (draws minus push-backs).
func (c *Cursor) Sent() int {
	return c.sent
}

// pushLimit narrows the cursor to at most n further symbols and returns a
// token for popLimit. Limits nest; the tightest one governs.
func (c *Cursor) pushLimit(n int) int {
	c.limits = append(c.limits, n)
	return len(c.limits) - 1
}

// popLimit removes the limit identified by token and everything nested
// inside it.
func (c *Cursor) popLimit(token int) {
	if token < len(c.limits) {
		c.limits = c.limits[:token]
	}
}

// limitRemaining returns the remaining budget of the limit identified by
// token.
func (c *Cursor) limitRemaining(token int) int {
	return c.limits[token]
}

// ResetLimits discards every active byte limit. A caller abandoning a parse
// mid-run must reset before reusing the cursor.
func (c *Cursor) ResetLimits() {
	c.limits = c.limits[:0]
}

// Buffered reports whether a symbol could be drawn if every limit were
// lifted. A queued poison entry counts as buffered; it surfaces on the next
// draw.
func (c *Cursor) Buffered() bool {
	if len(c.back) > 0 || c.pos < len(c.cur) {
		return true
	}
	for _, src := range c.pending {
		switch s := src.(type) {
		case []byte:
			if len(s) > 0 {
				return true
			}
		case string:
			if len(s) > 0 {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// Drain consumes every remaining symbol. It stops at exhaustion and returns
// any poison error encountered.
func (c *Cursor) Drain() ([]byte, error) {
	var out []byte
	for {
		sym, err := c.Next()
		if err == ErrExhausted {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, sym)
	}
}
