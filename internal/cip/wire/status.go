package wire

import (
	"fmt"

	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/automata"
)

// Common CIP general status codes.
const (
	StatusSuccess            = 0x00
	StatusPathSegmentError   = 0x04
	StatusPathDestUnknown    = 0x05
	StatusServiceUnsupported = 0x08
	StatusAttributeNotFound  = 0x14
	StatusNotEnoughData      = 0x13
	StatusTooMuchData        = 0x15
)

// Status returns a machine parsing a CIP general status: a one-byte code, a
// one-byte extended word count, then that many 16-bit extended status words.
// The wire always carries the count byte, even on success, where it must be
// zero. The code lands at ctx.code and the words in the ctx.extended list; a
// zero count leaves the list absent.
func Status(name, ctx string, opts ...automata.MachineOption) *automata.Machine {
	code := Value(name+"_code", "code", FormatUSINT)
	count := Value(name+"_extn", "extn__", FormatUSINT)
	word := Element(name+"_extw", "extended", FormatUINT, automata.MachineTerminal())
	words := automata.NewMachine(name+"_extws", word, automata.RepeatRef("extn__"))
	fin := automata.NewAction(name+"_fin", func(data *artifact.Artifact, p artifact.Path) error {
		data.Delete(p.Join("extn__"))
		return nil
	}, automata.Terminal())
	seq(code, count, words, fin)
	opts = append(opts, automata.MachineContext(ctx))
	return automata.NewMachine(name, code, opts...)
}

// AppendStatus appends a general status. Extended words are only legal
// alongside a non-zero code.
func AppendStatus(dst []byte, code uint8, extended []any) ([]byte, error) {
	if code == StatusSuccess && len(extended) > 0 {
		return nil, fmt.Errorf("wire: extended status words with success code")
	}
	if len(extended) > 0xFF {
		return nil, fmt.Errorf("wire: %d extended status words exceeds 255", len(extended))
	}
	dst = append(dst, code, byte(len(extended)))
	for i, w := range extended {
		u, err := uintOf(w)
		if err != nil {
			return nil, fmt.Errorf("wire: extended status %d: %w", i, err)
		}
		if u > 0xFFFF {
			return nil, fmt.Errorf("wire: extended status %d: value %d out of range", i, u)
		}
		var aerr error
		dst, aerr = AppendValue(dst, FormatUINT, u)
		if aerr != nil {
			return nil, aerr
		}
	}
	return dst, nil
}
