package enip

import (
	"errors"

	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/automata"
)

// ErrRejected reports input the grammar cannot accept: no amount of further
// input would let the current message complete.
var ErrRejected = errors.New("enip: input rejected by grammar")

// Result is the outcome of driving a decoder.
type Result int

const (
	// NeedInput means the message is incomplete; feed more bytes and step
	// again.
	NeedInput Result = iota
	// Complete means one full message has been decoded.
	Complete
)

// stepBudget bounds consecutive non-consuming engine steps before a stalled
// run is classified. Completion cascades through nested machines are far
// shorter than this.
const stepBudget = 4096

// Decoder drives one message grammar over a byte stream, one message at a
// time. The cursor persists across messages so partial reads and packet
// boundaries falling anywhere are handled uniformly.
type Decoder struct {
	machine *automata.Machine
	cur     *automata.Cursor
	data    *artifact.Artifact
	run     automata.Runner
	start   int
}

// NewDecoder returns a decoder over an empty stream.
func NewDecoder(m *automata.Machine) *Decoder {
	d := &Decoder{machine: m, cur: automata.NewCursor(nil)}
	d.Reset()
	return d
}

// Feed chains more stream bytes. The decoder copies the slice, so callers
// may reuse their read buffer.
func (d *Decoder) Feed(b []byte) {
	d.cur.Chain(append([]byte(nil), b...))
}

// Poison marks the stream as failed; every later step errors. Used to
// propagate a closed or broken transport into a suspended parse.
func (d *Decoder) Poison(v any) {
	d.cur.Chain(v)
}

// Artifact returns the decode artifact of the current message. It is valid
// once Step returns Complete, and partially populated before that.
func (d *Decoder) Artifact() *artifact.Artifact {
	return d.data
}

// Consumed returns the bytes consumed so far by the current message.
func (d *Decoder) Consumed() int {
	return d.cur.Sent() - d.start
}

// Reset discards the current message's progress and arms the decoder for
// the next message on the same stream.
func (d *Decoder) Reset() {
	d.cur.ResetLimits()
	d.data = artifact.New()
	d.run = d.machine.Start(d.cur, d.data, nil, true)
	d.start = d.cur.Sent()
}

// Discard consumes up to n buffered bytes, returning how many were dropped.
// Used to resynchronize after a payload error.
func (d *Decoder) Discard(n int) (int, error) {
	d.cur.ResetLimits()
	for i := 0; i < n; i++ {
		if _, err := d.cur.Next(); err != nil {
			if err == automata.ErrExhausted {
				return i, nil
			}
			return i, err
		}
	}
	return n, nil
}

// Step drives the grammar until it completes, blocks on input, or fails.
// A suspension with undrawable buffered symbols left (a spent byte budget,
// or a symbol no transition accepts) is a rejection, not a need for input.
func (d *Decoder) Step() (Result, error) {
	sent := d.cur.Sent()
	steps := 0
	for {
		st, err := d.run.Step()
		if err != nil {
			return 0, err
		}
		switch st.Kind {
		case automata.StepDone:
			return Complete, nil
		case automata.StepPending:
			if d.cur.Sent() != sent {
				sent, steps = d.cur.Sent(), 0
				continue
			}
			steps++
			if steps < stepBudget {
				continue
			}
			if _, perr := d.cur.Peek(); perr == automata.ErrExhausted && !d.cur.Buffered() {
				return NeedInput, nil
			} else if perr != nil && perr != automata.ErrExhausted {
				return 0, perr
			}
			return 0, ErrRejected
		}
	}
}
