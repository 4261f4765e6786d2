package wire

import (
	"fmt"

	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/automata"
	"github.com/tturner/enipstate/internal/cip/codec"
)

// TagSource tells a typed-data grammar where its CIP type tag comes from:
// fixed at build time, or read at run time from an already-parsed field
// addressed relative to the grammar's context.
type TagSource struct {
	Fixed uint16
	Ref   string
}

// TypedData returns a machine parsing a homogeneous array of one elementary
// type. Elements append to the ctx.data list until the byte budget given by
// opts (LimitBytes or LimitRef) is spent; the resolved type code lands at
// ctx.type. A trailing fragment shorter than one element never completes:
// the run suspends, which callers surface as a malformed payload.
func TypedData(name, ctx string, tag TagSource, opts ...automata.MachineOption) *automata.Machine {
	elems := make(map[uint16]automata.Node, len(Formats))
	for code, f := range Formats {
		elems[code] = Element(fmt.Sprintf("%s_%s", name, TypeName(code)), "data", f,
			automata.MachineTerminal())
	}
	sel := func(data *artifact.Artifact, prefix artifact.Path) (automata.Node, error) {
		code := tag.Fixed
		if tag.Ref != "" {
			n, ok := data.Int(prefix.Join(tag.Ref))
			if !ok {
				return nil, fmt.Errorf("wire: %s: no type tag at %q", name, tag.Ref)
			}
			code = uint16(n)
		}
		node, ok := elems[code]
		if !ok {
			return nil, fmt.Errorf("wire: %s: unsupported type tag 0x%02X", name, code)
		}
		data.Put(prefix.Join(ctx).Child("type"), uint64(code))
		return node, nil
	}
	opts = append(opts, automata.MachineContext(ctx))
	return automata.NewSwitch(name, sel, opts...)
}

// AppendTypedData appends values as a homogeneous array of the given type.
func AppendTypedData(dst []byte, code uint16, values []any) ([]byte, error) {
	f, ok := Formats[code]
	if !ok {
		return nil, fmt.Errorf("wire: unsupported type tag 0x%02X", code)
	}
	for i, v := range values {
		var err error
		dst, err = f.Encode(codec.Wire, dst, v)
		if err != nil {
			return nil, fmt.Errorf("wire: element %d: %w", i, err)
		}
	}
	return dst, nil
}
