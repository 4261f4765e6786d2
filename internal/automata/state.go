// Package automata implements a suspendable, composable state-machine engine
// for incremental parsing of byte streams. Leaf states, composite machines
// and runtime-dispatched switches all satisfy the same Node contract, so a
// whole machine can stand anywhere a single state is expected.
package automata

import (
	"fmt"

	"github.com/tturner/enipstate/internal/artifact"
)

// StepKind tags the outcome of one Runner step.
type StepKind int

const (
	// StepPending reports that no state change occurred: the node is blocked
	// on input or still processing. Recoverable by chaining more input.
	StepPending StepKind = iota
	// StepTransition reports exactly one transition to Target.
	StepTransition
	// StepDone reports clean completion at a terminal state.
	StepDone
)

// Step is one transition event produced by a Runner.
type Step struct {
	Kind   StepKind
	Target Node
}

// Runner is a resumable run of a node. Callers loop on Step; a run suspends
// by returning StepPending and resumes exactly where it left off. Discarding
// a Runner at any suspension point is always safe.
type Runner interface {
	Step() (Step, error)
}

// Node is the common contract of states, machines and switches. Only nodes
// built by this package may be transition targets.
type Node interface {
	Name() string
	Terminal() bool
	Accepts(cur *Cursor) bool
	Start(cur *Cursor, data *artifact.Artifact, prefix artifact.Path, greedy bool) Runner

	// resume re-enters a completed node at its transition lookup without
	// re-running its processing action. Used by enclosing machines to probe
	// a stabilized terminal node for late transitions.
	resume(cur *Cursor, data *artifact.Artifact, prefix artifact.Path, greedy bool) Runner
}

// AlphabetKind selects how a state validates its input symbol.
type AlphabetKind int

const (
	// AlphabetNone accepts any symbol (and absence of one).
	AlphabetNone AlphabetKind = iota
	// AlphabetSet accepts symbols in a membership set.
	AlphabetSet
	// AlphabetPred accepts symbols satisfying a predicate.
	AlphabetPred
)

// Alphabet is a state's input-validity rule.
type Alphabet struct {
	Kind AlphabetKind
	Set  map[byte]bool
	Pred func(byte) bool
}

// Validate reports whether sym is acceptable. An absent symbol always
// validates. An unrecognized alphabet kind is a configuration error.
func (a Alphabet) Validate(sym *byte) (bool, error) {
	if sym == nil {
		return true, nil
	}
	switch a.Kind {
	case AlphabetNone:
		return true, nil
	case AlphabetSet:
		return a.Set[*sym], nil
	case AlphabetPred:
		return a.Pred(*sym), nil
	default:
		return false, fmt.Errorf("automata: unrecognized alphabet kind %d", a.Kind)
	}
}

// ProcessFunc is a state's processing action. It returns done=false to
// suspend (typically: consume wanted but input exhausted); the run retries it
// later. Errors are fatal to the run.
type ProcessFunc func(cur *Cursor, data *artifact.Artifact, prefix artifact.Path) (done bool, err error)

// DecodeFunc reinterprets raw buffered symbols as a typed value.
type DecodeFunc func(raw []byte) (any, error)

type predTransition struct {
	pred   func(byte) bool
	target Node
}

// State is the atomic engine node: a named node with an input-validity
// alphabet, an outgoing-transition table and a processing action. States are
// assembled once into a static grammar graph and never mutated afterwards;
// all per-parse bookkeeping lives in the Runner.
type State struct {
	name         string
	terminal     bool
	alphabet     Alphabet
	context      string
	source       string
	appendResult bool
	process      ProcessFunc

	exact    map[byte]Node
	preds    []predTransition
	wildcard Node
	null     Node
}

// StateOption configures a state at construction.
type StateOption func(*State)

// Terminal marks the state as one at which an accepted sentence may end.
func Terminal() StateOption {
	return func(s *State) { s.terminal = true }
}

// Context sets the dotted sub-path under which the state stores its result.
func Context(ctx string) StateOption {
	return func(s *State) { s.context = ctx }
}

// AlphabetOf restricts acceptable symbols to a membership set.
func AlphabetOf(syms ...byte) StateOption {
	return func(s *State) {
		set := make(map[byte]bool, len(syms))
		for _, b := range syms {
			set[b] = true
		}
		s.alphabet = Alphabet{Kind: AlphabetSet, Set: set}
	}
}

// AlphabetFunc restricts acceptable symbols by predicate.
func AlphabetFunc(pred func(byte) bool) StateOption {
	return func(s *State) { s.alphabet = Alphabet{Kind: AlphabetPred, Pred: pred} }
}

// Source sets the raw-buffer sub-path a decode state reads from.
func Source(ctx string) StateOption {
	return func(s *State) { s.source = ctx }
}

// AppendResult makes a decode state append to a list instead of storing a
// scalar, for homogeneous arrays.
func AppendResult() StateOption {
	return func(s *State) { s.appendResult = true }
}

// NewState returns a state with a no-op processing action.
func NewState(name string, opts ...StateOption) *State {
	s := &State{name: name, source: "octets"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewConsume returns a state that consumes exactly one symbol and appends it
// to the growable buffer at its context path.
func NewConsume(name string, opts ...StateOption) *State {
	s := NewState(name, opts...)
	s.process = func(cur *Cursor, data *artifact.Artifact, prefix artifact.Path) (bool, error) {
		sym, err := cur.Next()
		if err == ErrExhausted {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		data.AppendByte(prefix.Join(s.context), sym)
		return true, nil
	}
	return s
}

// NewDiscard returns a state that consumes and drops exactly one symbol.
func NewDiscard(name string, opts ...StateOption) *State {
	s := NewState(name, opts...)
	s.process = func(cur *Cursor, data *artifact.Artifact, prefix artifact.Path) (bool, error) {
		_, err := cur.Next()
		if err == ErrExhausted {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return s
}

// NewDecode returns a state that consumes nothing and reinterprets the last
// width previously-buffered raw symbols (at its source path) as a typed
// value stored at its context path.
func NewDecode(name string, width int, fn DecodeFunc, opts ...StateOption) *State {
	s := NewState(name, opts...)
	s.process = func(cur *Cursor, data *artifact.Artifact, prefix artifact.Path) (bool, error) {
		raw, err := data.TakeBytes(prefix.Join(s.source), width)
		if err != nil {
			return false, err
		}
		v, err := fn(raw)
		if err != nil {
			return false, err
		}
		path := prefix.Join(s.context)
		if s.appendResult {
			data.Append(path, v)
		} else {
			data.Put(path, v)
		}
		return true, nil
	}
	return s
}

// NewAction returns a state whose processing action is an arbitrary
// data-artifact manipulation, consuming no input.
func NewAction(name string, fn func(data *artifact.Artifact, prefix artifact.Path) error, opts ...StateOption) *State {
	s := NewState(name, opts...)
	s.process = func(cur *Cursor, data *artifact.Artifact, prefix artifact.Path) (bool, error) {
		if err := fn(data, prefix.Join(s.context)); err != nil {
			return false, err
		}
		return true, nil
	}
	return s
}

// Name returns the state's name.
func (s *State) Name() string { return s.name }

// Terminal reports whether an accepted sentence may legally end here.
func (s *State) Terminal() bool { return s.terminal }

// On adds an exact-symbol transition.
func (s *State) On(sym byte, target Node) {
	if s.exact == nil {
		s.exact = make(map[byte]Node)
	}
	s.exact[sym] = target
}

// OnPred adds an ordered predicate transition; the first match wins.
func (s *State) OnPred(pred func(byte) bool, target Node) {
	s.preds = append(s.preds, predTransition{pred: pred, target: target})
}

// OnAny sets the wildcard transition, taken for any present symbol when no
// exact or predicate transition matches.
func (s *State) OnAny(target Node) { s.wildcard = target }

// OnNone sets the null transition, taken without requiring a symbol.
func (s *State) OnNone(target Node) { s.null = target }

// Validate applies the state's alphabet to an optional symbol.
func (s *State) Validate(sym *byte) (bool, error) {
	return s.alphabet.Validate(sym)
}

// Accepts peeks the cursor and validates the pending symbol without
// consuming it. Absence of input validates.
func (s *State) Accepts(cur *Cursor) bool {
	sym, err := cur.Peek()
	var symp *byte
	if err == nil {
		symp = &sym
	}
	ok, verr := s.alphabet.Validate(symp)
	return verr == nil && ok
}

// lookupTransition resolves the next target in fixed priority order:
// exact symbol, first matching predicate, wildcard, null.
func (s *State) lookupTransition(cur *Cursor) (Node, error) {
	sym, err := cur.Peek()
	if err == ErrExhausted {
		return s.null, nil
	}
	if err != nil {
		return nil, err
	}
	if t, ok := s.exact[sym]; ok {
		return t, nil
	}
	for _, pt := range s.preds {
		if pt.pred(sym) {
			return pt.target, nil
		}
	}
	if s.wildcard != nil {
		return s.wildcard, nil
	}
	return s.null, nil
}

const (
	stageAccept = iota
	stageProcess
	stageLookup
	stageDone
)

type stateRun struct {
	s      *State
	cur    *Cursor
	data   *artifact.Artifact
	prefix artifact.Path
	greedy bool
	stage  int
}

// Start begins a run of the state. The run produces either an unbounded
// stream of StepPending (blocked) or exactly one StepTransition followed by
// completion; a terminal state with no further match completes silently.
func (s *State) Start(cur *Cursor, data *artifact.Artifact, prefix artifact.Path, greedy bool) Runner {
	return &stateRun{s: s, cur: cur, data: data, prefix: prefix, greedy: greedy}
}

func (s *State) resume(cur *Cursor, data *artifact.Artifact, prefix artifact.Path, greedy bool) Runner {
	return &stateRun{s: s, cur: cur, data: data, prefix: prefix, greedy: greedy, stage: stageLookup}
}

func (r *stateRun) Step() (Step, error) {
	for {
		switch r.stage {
		case stageAccept:
			sym, perr := r.cur.Peek()
			var symp *byte
			if perr == nil {
				symp = &sym
			}
			ok, err := r.s.alphabet.Validate(symp)
			if err != nil {
				return Step{}, err
			}
			if !ok {
				return Step{Kind: StepPending}, nil
			}
			r.stage = stageProcess

		case stageProcess:
			if r.s.process != nil {
				done, err := r.s.process(r.cur, r.data, r.prefix)
				if err != nil {
					return Step{}, err
				}
				if !done {
					return Step{Kind: StepPending}, nil
				}
			}
			r.stage = stageLookup

		case stageLookup:
			target, err := r.s.lookupTransition(r.cur)
			if err != nil {
				return Step{}, err
			}
			if target == nil || !r.greedy {
				if r.s.terminal {
					r.stage = stageDone
					return Step{Kind: StepDone}, nil
				}
				return Step{Kind: StepPending}, nil
			}
			r.stage = stageDone
			return Step{Kind: StepTransition, Target: target}, nil

		default:
			return Step{Kind: StepDone}, nil
		}
	}
}
