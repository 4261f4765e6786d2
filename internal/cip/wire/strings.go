package wire

import (
	"fmt"

	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/automata"
	"github.com/tturner/enipstate/internal/cip/codec"
)

// SString returns a machine parsing a CIP SSTRING (one-byte length followed
// by that many characters) into a string scalar at ctx.
func SString(name, ctx string, opts ...automata.MachineOption) *automata.Machine {
	lenM := Value(name+"_len", "len__", FormatUSINT)
	ch := automata.NewConsume(name+"_ch", automata.Context("raw__"), automata.Terminal())
	chars := automata.NewMachine(name+"_chars", ch, automata.RepeatRef("len__"))
	fin := automata.NewAction(name+"_fin", stringify, automata.Terminal())
	seq(lenM, chars, fin)
	opts = append(opts, automata.MachineContext(ctx))
	return automata.NewMachine(name, lenM, opts...)
}

// String returns a machine parsing a CIP STRING (two-byte length, characters,
// one pad byte when the length is odd) into a string scalar at ctx.
func String(name, ctx string, opts ...automata.MachineOption) *automata.Machine {
	lenM := Value(name+"_len", "len__", FormatUINT)
	ch := automata.NewConsume(name+"_ch", automata.Context("raw__"), automata.Terminal())
	chars := automata.NewMachine(name+"_chars", ch, automata.RepeatRef("len__"))
	pad := automata.NewDiscard(name+"_pad", automata.Terminal())
	padq := automata.NewSwitch(name+"_padq", func(data *artifact.Artifact, prefix artifact.Path) (automata.Node, error) {
		n, ok := data.Int(prefix.Join("len__"))
		if !ok {
			return nil, fmt.Errorf("wire: %s: missing length", name)
		}
		if n%2 == 1 {
			return pad, nil
		}
		return nil, nil
	})
	fin := automata.NewAction(name+"_fin", stringify, automata.Terminal())
	seq(lenM, chars, padq, fin)
	opts = append(opts, automata.MachineContext(ctx))
	return automata.NewMachine(name, lenM, opts...)
}

// stringify collapses the staging keys of a string grammar into the final
// scalar at the grammar's context node.
func stringify(data *artifact.Artifact, p artifact.Path) error {
	raw, _ := data.Bytes(p.Join("raw__"))
	data.Put(p, string(raw))
	return nil
}

// AppendSString appends the SSTRING representation of s.
func AppendSString(dst []byte, s string) ([]byte, error) {
	if len(s) > 0xFF {
		return nil, fmt.Errorf("wire: SSTRING length %d exceeds 255", len(s))
	}
	dst = append(dst, byte(len(s)))
	return append(dst, s...), nil
}

// AppendString appends the STRING representation of s, padded to an even
// total character count.
func AppendString(dst []byte, s string) ([]byte, error) {
	if len(s) > 0xFFFF {
		return nil, fmt.Errorf("wire: STRING length %d exceeds 65535", len(s))
	}
	dst = codec.AppendUint16(codec.Wire, dst, uint16(len(s)))
	dst = append(dst, s...)
	if len(s)%2 == 1 {
		dst = append(dst, 0x00)
	}
	return dst, nil
}
