package wire

import (
	"fmt"

	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/automata"
	"github.com/tturner/enipstate/internal/cip/codec"
)

// EPATH segment type bytes. Logical segments come in a one-byte form and an
// extended form carrying a reserved pad byte before the wider value.
const (
	segClass8      = 0x20
	segClass16     = 0x21
	segInstance8   = 0x24
	segInstance16  = 0x25
	segElement8    = 0x28
	segElement16   = 0x29
	segElement32   = 0x2A
	segConnPoint8  = 0x2C
	segConnPoint16 = 0x2D
	segAttribute8  = 0x30
	segAttribute16 = 0x31
	segSymbolic    = 0x91

	portExtended   = 0x0F
	portLinkString = 0x10
)

// EPATH returns a machine parsing a CIP path: a one-byte size in words,
// an optional pad byte in the padded variant, then segments until the size
// budget is spent. Segments accumulate as maps in the "segment" list at ctx,
// one key per segment kind.
func EPATH(name, ctx string, padded bool, opts ...automata.MachineOption) *automata.Machine {
	commit := automata.NewAction(name+"_commit", commitSegment, automata.Terminal())
	tag := automata.NewState(name + "_tag")

	addLogical := func(key string, tag8, tag16 byte) {
		d8 := automata.NewDiscard(name + "_" + key + "8t")
		seq(d8, Value(name+"_"+key+"8", "seg__."+key, FormatUSINT), commit)
		tag.On(tag8, d8)

		d16 := automata.NewDiscard(name + "_" + key + "16t")
		seq(d16, automata.NewDiscard(name+"_"+key+"16p"),
			Value(name+"_"+key+"16", "seg__."+key, FormatUINT), commit)
		tag.On(tag16, d16)
	}
	addLogical("class", segClass8, segClass16)
	addLogical("instance", segInstance8, segInstance16)
	addLogical("connection_point", segConnPoint8, segConnPoint16)
	addLogical("attribute", segAttribute8, segAttribute16)
	addLogical("element", segElement8, segElement16)

	d32 := automata.NewDiscard(name + "_element32t")
	seq(d32, automata.NewDiscard(name+"_element32p"),
		Value(name+"_element32", "seg__.element", FormatUDINT), commit)
	tag.On(segElement32, d32)

	tag.On(segSymbolic, symbolicGraph(name, commit))
	// Port nibble zero has no valid bare form and cannot be re-produced.
	tag.OnPred(func(b byte) bool { return b < 0x20 && b&0x0F != 0 }, portGraph(name, commit))

	segs := automata.NewMachine(name+"_segs", tag, automata.LimitRef("size__", 2))
	fin := automata.NewAction(name+"_fin", func(data *artifact.Artifact, p artifact.Path) error {
		data.Delete(p.Join("size__"))
		return nil
	}, automata.Terminal())

	sizeM := Value(name+"_size", "size__", FormatUSINT)
	if padded {
		seq(sizeM, automata.NewDiscard(name+"_szpad"), segs, fin)
	} else {
		seq(sizeM, segs, fin)
	}
	opts = append(opts, automata.MachineContext(ctx))
	return automata.NewMachine(name, sizeM, opts...)
}

// symbolicGraph parses an ANSI extended symbolic segment: type byte, length,
// characters, pad byte when the length is odd.
func symbolicGraph(name string, commit linkable) *automata.State {
	d := automata.NewDiscard(name + "_symt")
	lenM := Value(name+"_symlen", "symlen__", FormatUSINT)
	ch := automata.NewConsume(name+"_symch", automata.Context("symraw__"), automata.Terminal())
	chars := automata.NewMachine(name+"_symchars", ch, automata.RepeatRef("symlen__"))
	mk := automata.NewAction(name+"_symmk", func(data *artifact.Artifact, p artifact.Path) error {
		raw, _ := data.Bytes(p.Join("symraw__"))
		data.Delete(p.Join("symraw__"))
		data.Put(p.Join("seg__.symbolic"), string(raw))
		return nil
	})
	pad := automata.NewDiscard(name+"_sympad", automata.Terminal())
	padq := automata.NewSwitch(name+"_sympadq", func(data *artifact.Artifact, prefix artifact.Path) (automata.Node, error) {
		n, ok := data.Int(prefix.Join("symlen__"))
		if !ok {
			return nil, fmt.Errorf("wire: %s: missing symbolic length", name)
		}
		if n%2 == 1 {
			return pad, nil
		}
		return nil, nil
	})
	seq(d, lenM, chars, mk, padq, commit)
	return d
}

// portGraph parses a port segment: the tag byte itself carries the port
// number (0x0F escapes to a 16-bit extended port) and a flag selecting a
// numeric link or a length-prefixed link address string padded to an even
// total segment length.
func portGraph(name string, commit linkable) *automata.Machine {
	ptag := Value(name+"_ptag", "ptag__", FormatUSINT)

	branch := func(suffix string, extPort, strLink bool) automata.Node {
		var nodes []linkable
		if strLink {
			nodes = append(nodes, Value(name+"_lsz"+suffix, "linklen__", FormatUSINT))
		}
		if extPort {
			nodes = append(nodes, Value(name+"_pext"+suffix, "seg__.port", FormatUINT))
		} else {
			nodes = append(nodes, automata.NewAction(name+"_pset"+suffix, func(data *artifact.Artifact, p artifact.Path) error {
				n, ok := data.Int(p.Join("ptag__"))
				if !ok {
					return fmt.Errorf("wire: %s: missing port tag", name)
				}
				data.Put(p.Join("seg__.port"), uint64(n&0x0F))
				return nil
			}))
		}
		if strLink {
			ch := automata.NewConsume(name+"_lch"+suffix, automata.Context("linkraw__"), automata.Terminal())
			chars := automata.NewMachine(name+"_lchars"+suffix, ch, automata.RepeatRef("linklen__"))
			mk := automata.NewAction(name+"_lmk"+suffix, func(data *artifact.Artifact, p artifact.Path) error {
				raw, _ := data.Bytes(p.Join("linkraw__"))
				data.Delete(p.Join("linkraw__"))
				data.Put(p.Join("seg__.link"), string(raw))
				return nil
			})
			pad := automata.NewDiscard(name+"_lpad"+suffix, automata.Terminal())
			padq := automata.NewSwitch(name+"_lpadq"+suffix, func(data *artifact.Artifact, prefix artifact.Path) (automata.Node, error) {
				n, ok := data.Int(prefix.Join("linklen__"))
				if !ok {
					return nil, fmt.Errorf("wire: %s: missing link length", name)
				}
				if n%2 == 1 {
					return pad, nil
				}
				return nil, nil
			})
			nodes = append(nodes, chars, mk, padq)
		} else {
			nodes = append(nodes, Value(name+"_link"+suffix, "seg__.link", FormatUSINT))
		}
		nodes = append(nodes, automata.NewState(name+"_pdone"+suffix, automata.Terminal()))
		return seq(nodes...)
	}

	branches := map[[2]bool]automata.Node{
		{false, false}: branch("nn", false, false),
		{false, true}:  branch("ns", false, true),
		{true, false}:  branch("en", true, false),
		{true, true}:   branch("es", true, true),
	}
	sw := automata.NewSwitch(name+"_portsw", func(data *artifact.Artifact, prefix artifact.Path) (automata.Node, error) {
		n, ok := data.Int(prefix.Join("ptag__"))
		if !ok {
			return nil, fmt.Errorf("wire: %s: missing port tag", name)
		}
		return branches[[2]bool{n&0x0F == portExtended, n&portLinkString != 0}], nil
	})
	seq(ptag, sw, commit)
	return ptag
}

// commitSegment moves one staged segment map onto the segment list and
// clears per-segment scratch keys.
func commitSegment(data *artifact.Artifact, p artifact.Path) error {
	seg, ok := data.Take(p.Join("seg__"))
	if !ok {
		return fmt.Errorf("wire: empty path segment")
	}
	m, ok := seg.(map[string]any)
	if !ok || len(m) == 0 {
		return fmt.Errorf("wire: malformed path segment")
	}
	for _, scratch := range []string{"symlen__", "ptag__", "linklen__"} {
		data.Delete(p.Join(scratch))
	}
	data.Append(p.Join("segment"), m)
	return nil
}

// AppendEPATH appends the wire form of a path: size in words, optional pad,
// then each segment in its narrowest encoding.
func AppendEPATH(dst []byte, segments []any, padded bool) ([]byte, error) {
	var body []byte
	for i, s := range segments {
		m, ok := s.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("wire: segment %d: want map, got %T", i, s)
		}
		var err error
		body, err = appendSegment(body, m)
		if err != nil {
			return nil, fmt.Errorf("wire: segment %d: %w", i, err)
		}
	}
	if len(body)%2 != 0 {
		return nil, fmt.Errorf("wire: path body is %d bytes, not word aligned", len(body))
	}
	words := len(body) / 2
	if words > 0xFF {
		return nil, fmt.Errorf("wire: path of %d words exceeds 255", words)
	}
	dst = append(dst, byte(words))
	if padded {
		dst = append(dst, 0x00)
	}
	return append(dst, body...), nil
}

func appendSegment(dst []byte, m map[string]any) ([]byte, error) {
	if _, ok := m["port"]; ok {
		return appendPortSegment(dst, m)
	}
	if sym, ok := m["symbolic"]; ok {
		s, ok := sym.(string)
		if !ok {
			return nil, fmt.Errorf("symbolic segment: want string, got %T", sym)
		}
		if len(s) == 0 || len(s) > 0xFF {
			return nil, fmt.Errorf("symbolic segment: length %d out of range", len(s))
		}
		dst = append(dst, segSymbolic, byte(len(s)))
		dst = append(dst, s...)
		if len(s)%2 == 1 {
			dst = append(dst, 0x00)
		}
		return dst, nil
	}
	for _, kind := range []struct {
		key        string
		tag8, tag16 byte
		wide       bool
	}{
		{"class", segClass8, segClass16, false},
		{"instance", segInstance8, segInstance16, false},
		{"connection_point", segConnPoint8, segConnPoint16, false},
		{"attribute", segAttribute8, segAttribute16, false},
		{"element", segElement8, segElement16, true},
	} {
		v, ok := m[kind.key]
		if !ok {
			continue
		}
		u, err := uintOf(v)
		if err != nil {
			return nil, fmt.Errorf("%s segment: %w", kind.key, err)
		}
		switch {
		case u <= 0xFF:
			return append(dst, kind.tag8, byte(u)), nil
		case u <= 0xFFFF:
			dst = append(dst, kind.tag16, 0x00)
			return codec.AppendUint16(codec.Wire, dst, uint16(u)), nil
		case kind.wide && u <= 0xFFFFFFFF:
			dst = append(dst, segElement32, 0x00)
			return codec.AppendUint32(codec.Wire, dst, uint32(u)), nil
		default:
			return nil, fmt.Errorf("%s segment: value %d out of range", kind.key, u)
		}
	}
	return nil, fmt.Errorf("unrecognized segment keys %v", keysOf(m))
}

func appendPortSegment(dst []byte, m map[string]any) ([]byte, error) {
	port, err := uintOf(m["port"])
	if err != nil {
		return nil, fmt.Errorf("port segment: %w", err)
	}
	if port == 0 || port > 0xFFFF {
		return nil, fmt.Errorf("port segment: port %d out of range", port)
	}
	link, ok := m["link"]
	if !ok {
		return nil, fmt.Errorf("port segment: missing link")
	}

	tag := byte(portExtended)
	if port < portExtended {
		tag = byte(port)
	}
	linkStr, isStr := link.(string)
	if isStr {
		tag |= portLinkString
	}

	start := len(dst)
	dst = append(dst, tag)
	if isStr {
		if len(linkStr) == 0 || len(linkStr) > 0xFF {
			return nil, fmt.Errorf("port segment: link length %d out of range", len(linkStr))
		}
		dst = append(dst, byte(len(linkStr)))
	}
	if port >= portExtended {
		dst = codec.AppendUint16(codec.Wire, dst, uint16(port))
	}
	if isStr {
		dst = append(dst, linkStr...)
	} else {
		u, err := uintOf(link)
		if err != nil {
			return nil, fmt.Errorf("port segment: %w", err)
		}
		if u > 0xFF {
			return nil, fmt.Errorf("port segment: numeric link %d out of range", u)
		}
		dst = append(dst, byte(u))
	}
	if (len(dst)-start)%2 == 1 {
		dst = append(dst, 0x00)
	}
	return dst, nil
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
