// Package wire builds the CIP wire grammars (elementary types, EPATH, CPF,
// typed data, status, strings) as parse machines, together with the matching
// byte producers. Parsing and producing are inverses over the same artifact
// shapes.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/tturner/enipstate/internal/automata"
	"github.com/tturner/enipstate/internal/cip/codec"
)

// CIP elementary data type codes.
const (
	TypeBOOL  uint16 = 0xC1
	TypeSINT  uint16 = 0xC2
	TypeINT   uint16 = 0xC3
	TypeDINT  uint16 = 0xC4
	TypeLINT  uint16 = 0xC5
	TypeUSINT uint16 = 0xC6
	TypeUINT  uint16 = 0xC7
	TypeUDINT uint16 = 0xC8
	TypeULINT uint16 = 0xC9
	TypeREAL  uint16 = 0xCA
	TypeLREAL uint16 = 0xCB
)

// Wire formats of the elementary types.
var (
	FormatBOOL  = codec.Format{Width: 1}
	FormatSINT  = codec.Format{Width: 1, Signed: true}
	FormatINT   = codec.Format{Width: 2, Signed: true}
	FormatDINT  = codec.Format{Width: 4, Signed: true}
	FormatLINT  = codec.Format{Width: 8, Signed: true}
	FormatUSINT = codec.Format{Width: 1}
	FormatUINT  = codec.Format{Width: 2}
	FormatUDINT = codec.Format{Width: 4}
	FormatULINT = codec.Format{Width: 8}
	FormatREAL  = codec.Format{Width: 4, Float: true}
	FormatLREAL = codec.Format{Width: 8, Float: true}
)

// Formats maps a CIP type code to its wire format.
var Formats = map[uint16]codec.Format{
	TypeBOOL:  FormatBOOL,
	TypeSINT:  FormatSINT,
	TypeINT:   FormatINT,
	TypeDINT:  FormatDINT,
	TypeLINT:  FormatLINT,
	TypeUSINT: FormatUSINT,
	TypeUINT:  FormatUINT,
	TypeUDINT: FormatUDINT,
	TypeULINT: FormatULINT,
	TypeREAL:  FormatREAL,
	TypeLREAL: FormatLREAL,
}

// TypeName returns the CIP mnemonic for a type code.
func TypeName(code uint16) string {
	switch code {
	case TypeBOOL:
		return "BOOL"
	case TypeSINT:
		return "SINT"
	case TypeINT:
		return "INT"
	case TypeDINT:
		return "DINT"
	case TypeLINT:
		return "LINT"
	case TypeUSINT:
		return "USINT"
	case TypeUINT:
		return "UINT"
	case TypeUDINT:
		return "UDINT"
	case TypeULINT:
		return "ULINT"
	case TypeREAL:
		return "REAL"
	case TypeLREAL:
		return "LREAL"
	default:
		return fmt.Sprintf("0x%02X", code)
	}
}

// numericGraph returns the first node of a consume chain of f.Width symbols
// staged at the stage sub-path, feeding a decode state reading from it.
func numericGraph(name string, f codec.Format, order binary.ByteOrder, stage string, decodeOpts ...automata.StateOption) *automata.State {
	var first, prev *automata.State
	for i := 0; i < f.Width; i++ {
		s := automata.NewConsume(fmt.Sprintf("%s_b%d", name, i), automata.Context(stage))
		if prev != nil {
			prev.OnNone(s)
		} else {
			first = s
		}
		prev = s
	}
	decodeOpts = append([]automata.StateOption{automata.Source(stage)}, decodeOpts...)
	decodeOpts = append(decodeOpts, automata.Terminal())
	dec := automata.NewDecode(name+"_dec", f.Width, func(raw []byte) (any, error) {
		return f.Decode(order, raw)
	}, decodeOpts...)
	prev.OnNone(dec)
	return first
}

// Value returns a machine that parses one fixed-width little-endian value and
// stores it as a scalar at ctx relative to the enclosing prefix.
func Value(name, ctx string, f codec.Format, opts ...automata.MachineOption) *automata.Machine {
	return ValueOrder(name, ctx, f, codec.Wire, opts...)
}

// ValueOrder is Value with an explicit byte order, for the few wire fields
// carried in network order.
func ValueOrder(name, ctx string, f codec.Format, order binary.ByteOrder, opts ...automata.MachineOption) *automata.Machine {
	first := numericGraph(name, f, order, "octets", automata.Context(""))
	opts = append(opts, automata.MachineContext(ctx))
	return automata.NewMachine(name, first, opts...)
}

// Element returns a machine that parses one fixed-width value and appends it
// to the list at ctx, for homogeneous arrays. Octets stage at a sibling of
// the list so growing it never descends through the list node.
func Element(name, ctx string, f codec.Format, opts ...automata.MachineOption) *automata.Machine {
	first := numericGraph(name, f, codec.Wire, ctx+"_octets__",
		automata.Context(ctx), automata.AppendResult())
	return automata.NewMachine(name, first, opts...)
}

// AppendValue appends the wire representation of one value in format f.
func AppendValue(dst []byte, f codec.Format, value any) ([]byte, error) {
	return f.Encode(codec.Wire, dst, value)
}
