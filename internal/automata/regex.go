package automata

import "fmt"

// Edge is one labeled transition of an external automaton.
type Edge struct {
	Symbol rune
	To     int
}

// Automaton is the boundary to an external regular-expression algebra: a
// deterministic automaton described by integer state IDs. Implementations
// must enumerate states and edges in a stable order so that graph
// construction is deterministic.
type Automaton interface {
	Start() int
	States() []int
	Accepting(id int) bool
	Edges(id int) []Edge
}

// Encoder maps one logical symbol to its wire encoding. A multi-byte
// encoding expands the logical transition into a chain of intermediate
// consuming states. A nil Encoder encodes symbols below 0x100 as themselves.
type Encoder func(sym rune) []byte

func identityEncoder(sym rune) []byte {
	return []byte{byte(sym)}
}

// FromAutomaton materializes a state graph equivalent to the automaton: one
// consuming state per automaton state with the accepting set mirrored as
// terminal flags and edges copied one for one. Matched symbols accumulate in
// the machine's "input" buffer. Dead states (non-accepting with only
// self-edges) are pruned along with transitions into them. The same
// automaton and encoder always produce an identical graph.
func FromAutomaton(name string, a Automaton, enc Encoder, opts ...MachineOption) (*Machine, error) {
	if enc == nil {
		enc = identityEncoder
	}

	dead := make(map[int]bool)
	for _, id := range a.States() {
		if a.Accepting(id) {
			continue
		}
		selfOnly := true
		for _, e := range a.Edges(id) {
			if e.To != id {
				selfOnly = false
				break
			}
		}
		if selfOnly {
			dead[id] = true
		}
	}
	if dead[a.Start()] {
		return nil, fmt.Errorf("automata: regex %q matches nothing", name)
	}

	// A transition target consumes the symbol that selected it, so the
	// entry node must be a non-consuming twin of the automaton's start.
	nodes := make(map[int]*State)
	for _, id := range a.States() {
		if dead[id] {
			continue
		}
		sopts := []StateOption{Context("input")}
		if a.Accepting(id) {
			sopts = append(sopts, Terminal())
		}
		nodes[id] = NewConsume(fmt.Sprintf("%s_%d", name, id), sopts...)
	}
	var entryOpts []StateOption
	if a.Accepting(a.Start()) {
		entryOpts = append(entryOpts, Terminal())
	}
	entry := NewState(name+"_start", entryOpts...)

	wire := func(from *State, fromID int) error {
		for i, e := range a.Edges(fromID) {
			if dead[e.To] {
				continue
			}
			bs := enc(e.Symbol)
			if len(bs) == 0 {
				return fmt.Errorf("automata: regex %q: empty encoding for %q", name, e.Symbol)
			}
			cur := from
			for j := 0; j < len(bs)-1; j++ {
				link := NewConsume(fmt.Sprintf("%s_e%d_%d_%d", from.Name(), i, j, e.To), Context("input"))
				cur.On(bs[j], link)
				cur = link
			}
			cur.On(bs[len(bs)-1], nodes[e.To])
		}
		return nil
	}

	if err := wire(entry, a.Start()); err != nil {
		return nil, err
	}
	for _, id := range a.States() {
		if dead[id] {
			continue
		}
		if err := wire(nodes[id], id); err != nil {
			return nil, err
		}
	}

	return NewMachine(name, entry, opts...), nil
}
