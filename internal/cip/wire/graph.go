package wire

import (
	"fmt"

	"github.com/tturner/enipstate/internal/automata"
)

// linkable is any node that accepts a null transition; both states and
// machines qualify.
type linkable interface {
	automata.Node
	OnNone(automata.Node)
}

// seq wires nodes into a linear chain via null transitions and returns the
// first node. The last node is left open for further wiring.
func seq(nodes ...linkable) linkable {
	for i := 0; i < len(nodes)-1; i++ {
		nodes[i].OnNone(nodes[i+1])
	}
	return nodes[0]
}

// RawTail returns a graph that buffers every remaining symbol of the
// enclosing budget into ctx. An empty tail completes immediately.
func RawTail(name, ctx string) *automata.State {
	entry := automata.NewState(name, automata.Terminal())
	c := automata.NewConsume(name+"_c", automata.Context(ctx), automata.Terminal())
	entry.OnAny(c)
	c.OnAny(c)
	return entry
}

// DiscardTail returns a graph that drops every remaining symbol of the
// enclosing budget.
func DiscardTail(name string) *automata.State {
	entry := automata.NewState(name, automata.Terminal())
	d := automata.NewDiscard(name+"_d", automata.Terminal())
	entry.OnAny(d)
	d.OnAny(d)
	return entry
}

// uintOf coerces the integer shapes found in artifacts and caller input.
func uintOf(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("wire: negative value %d", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("wire: negative value %d", n)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("wire: cannot interpret %T as unsigned integer", v)
	}
}
