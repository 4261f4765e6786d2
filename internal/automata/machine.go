package automata

import (
	"fmt"

	"github.com/tturner/enipstate/internal/artifact"
)

// SelectFunc chooses a switch's branch from already-parsed data. Returning a
// nil node skips the branch entirely.
type SelectFunc func(data *artifact.Artifact, prefix artifact.Path) (Node, error)

// Machine is a composite node: a state that owns and drives a graph of nodes
// to completion, optionally for repeated cycles or within a byte budget, then
// performs its own transition in the enclosing machine. The owned graph is
// shared across runs; all mutable run state lives in the Runner.
type Machine struct {
	own      *State
	initial  Node
	selectFn SelectFunc

	repeatN   int
	repeatSet bool
	repeatRef string

	limitN     int
	limitSet   bool
	limitRef   string
	limitScale int
}

// MachineOption configures a machine at construction.
type MachineOption func(*Machine)

// Repeat fixes the number of inner cycles. Zero means the machine performs
// no inner cycles and immediately attempts its own transition.
func Repeat(n int) MachineOption {
	return func(m *Machine) { m.repeatN, m.repeatSet = n, true }
}

// RepeatRef reads the cycle count at run time from an integer in the data
// artifact, addressed relative to the machine's run prefix.
func RepeatRef(path string) MachineOption {
	return func(m *Machine) { m.repeatRef = path }
}

// LimitBytes cycles the inner graph until the given number of symbols has
// been consumed. Zero means no inner cycles.
func LimitBytes(n int) MachineOption {
	return func(m *Machine) { m.limitN, m.limitSet = n, true }
}

// LimitRef reads the byte budget at run time from an integer in the data
// artifact (relative to the run prefix), multiplied by scale.
func LimitRef(path string, scale int) MachineOption {
	return func(m *Machine) { m.limitRef, m.limitScale = path, scale }
}

// MachineTerminal marks the machine itself as a terminal node of its parent.
func MachineTerminal() MachineOption {
	return func(m *Machine) { m.own.terminal = true }
}

// MachineContext sets the dotted sub-path prefixing everything the owned
// graph stores, so the same grammar fragment nests without collision.
func MachineContext(ctx string) MachineOption {
	return func(m *Machine) { m.own.context = ctx }
}

// NewMachine returns a composite machine over an owned initial graph.
func NewMachine(name string, initial Node, opts ...MachineOption) *Machine {
	m := &Machine{own: NewState(name), initial: initial, limitScale: 1}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewSwitch returns a machine whose single inner branch is chosen at run
// time by sel, realizing parse-driven dispatch (command codes, item type
// IDs, type tags) without process-wide registries.
func NewSwitch(name string, sel SelectFunc, opts ...MachineOption) *Machine {
	m := NewMachine(name, nil, opts...)
	m.selectFn = sel
	return m
}

// Name returns the machine's name.
func (m *Machine) Name() string { return m.own.name }

// Terminal reports whether the machine is a terminal node of its parent.
func (m *Machine) Terminal() bool { return m.own.terminal }

// On adds an exact-symbol transition out of the machine.
func (m *Machine) On(sym byte, target Node) { m.own.On(sym, target) }

// OnPred adds an ordered predicate transition out of the machine.
func (m *Machine) OnPred(pred func(byte) bool, target Node) { m.own.OnPred(pred, target) }

// OnAny sets the machine's wildcard transition.
func (m *Machine) OnAny(target Node) { m.own.OnAny(target) }

// OnNone sets the machine's null transition.
func (m *Machine) OnNone(target Node) { m.own.OnNone(target) }

// Accepts defers to the owned graph's initial node.
func (m *Machine) Accepts(cur *Cursor) bool {
	if m.initial != nil {
		return m.initial.Accepts(cur)
	}
	return true
}

const (
	phaseInner = iota
	phaseOwn
)

type machineRun struct {
	m      *Machine
	cur    *Cursor
	data   *artifact.Artifact
	prefix artifact.Path
	greedy bool

	started     bool
	childPrefix artifact.Path
	counterPath artifact.Path
	initialNode Node
	repeatN     int
	haveLimit   bool
	limit       int
	limitToken  int

	phase   int
	current Node
	child   Runner
	probe   bool
	armed   Node
	cycles  int
	ownRun  Runner
}

// Start begins a run of the machine: reset (no current position), then
// running (current node in the owned graph), then the machine's own
// transition once the owned graph has stabilized.
func (m *Machine) Start(cur *Cursor, data *artifact.Artifact, prefix artifact.Path, greedy bool) Runner {
	return &machineRun{m: m, cur: cur, data: data, prefix: prefix, greedy: greedy}
}

func (m *Machine) resume(cur *Cursor, data *artifact.Artifact, prefix artifact.Path, greedy bool) Runner {
	return m.own.resume(cur, data, prefix, greedy)
}

func (r *machineRun) start() error {
	m := r.m
	r.childPrefix = r.prefix.Join(m.own.context)
	r.counterPath = r.prefix.Child(m.own.name + "__cycle")

	r.repeatN = 1
	if m.repeatSet {
		r.repeatN = m.repeatN
	}
	if m.repeatRef != "" {
		n, ok := r.data.Int(r.prefix.Join(m.repeatRef))
		if !ok {
			return fmt.Errorf("automata: machine %q: no repeat count at %q", m.own.name, m.repeatRef)
		}
		r.repeatN = n
	}

	if m.limitSet || m.limitRef != "" {
		r.haveLimit = true
		r.limit = m.limitN
		if m.limitRef != "" {
			n, ok := r.data.Int(r.prefix.Join(m.limitRef))
			if !ok {
				return fmt.Errorf("automata: machine %q: no byte limit at %q", m.own.name, m.limitRef)
			}
			r.limit = n * m.limitScale
		}
	}

	r.initialNode = m.initial
	if m.selectFn != nil {
		node, err := m.selectFn(r.data, r.prefix)
		if err != nil {
			return err
		}
		r.initialNode = node
	}

	if r.initialNode == nil || r.repeatN <= 0 || (r.haveLimit && r.limit <= 0) {
		r.phase = phaseOwn
		return nil
	}
	if r.haveLimit {
		// Narrow the cursor so the owned graph cannot overrun its budget;
		// a spent budget reads as exhaustion to every inner node.
		r.limitToken = r.cur.pushLimit(r.limit)
	}
	r.data.Put(r.counterPath, 0)
	r.current = r.initialNode
	r.phase = phaseInner
	return nil
}

func (r *machineRun) moreCycles() bool {
	if r.haveLimit {
		return r.cur.limitRemaining(r.limitToken) > 0
	}
	return r.cycles < r.repeatN
}

func (r *machineRun) finishInner() {
	if r.haveLimit {
		r.cur.popLimit(r.limitToken)
	}
	r.data.Delete(r.counterPath)
	r.phase = phaseOwn
}

func (r *machineRun) Step() (Step, error) {
	if !r.started {
		if err := r.start(); err != nil {
			return Step{}, err
		}
		r.started = true
	}
	for {
		switch r.phase {
		case phaseInner:
			if r.child == nil {
				if r.probe {
					r.child = r.current.resume(r.cur, r.data, r.childPrefix, true)
				} else {
					r.child = r.current.Start(r.cur, r.data, r.childPrefix, true)
				}
			}
			st, err := r.child.Step()
			if err != nil {
				return Step{}, err
			}
			switch st.Kind {
			case StepPending:
				return st, nil
			case StepTransition:
				r.armed, r.probe = nil, false
				r.current = st.Target
				r.child = r.current.Start(r.cur, r.data, r.childPrefix, true)
			case StepDone:
				if r.armed == r.current {
					// Stabilized: terminal twice with no intervening
					// transition. One inner cycle is complete.
					r.cycles++
					r.data.Put(r.counterPath, r.cycles)
					r.armed, r.probe, r.child = nil, false, nil
					if r.moreCycles() {
						r.current = r.initialNode
					} else {
						r.finishInner()
					}
					continue
				}
				// Currently terminal with nothing further: suspend so the
				// caller can supply more input before we call it done.
				r.armed, r.probe, r.child = r.current, true, nil
				return Step{Kind: StepPending}, nil
			}

		default:
			if r.ownRun == nil {
				r.ownRun = r.m.own.Start(r.cur, r.data, r.prefix, r.greedy)
			}
			return r.ownRun.Step()
		}
	}
}
