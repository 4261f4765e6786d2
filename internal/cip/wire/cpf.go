package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/automata"
	"github.com/tturner/enipstate/internal/cip/codec"
)

// CPF item type IDs.
const (
	ItemNull             uint16 = 0x0000
	ItemConnectedAddress uint16 = 0x00A1
	ItemConnectedData    uint16 = 0x00B1
	ItemUnconnectedData  uint16 = 0x00B2
	ItemCommService      uint16 = 0x0100
	ItemSockaddrO2T      uint16 = 0x8000
	ItemSockaddrT2O      uint16 = 0x8001
)

// Registry maps CPF item type IDs to payload grammars. Items without a
// registered grammar fall back to an opaque byte capture, so unknown item
// types survive a parse/produce round trip untouched.
type Registry struct {
	byType map[uint16]automata.Node
	opaque automata.Node
}

// NewRegistry returns a registry with only the opaque fallback.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[uint16]automata.Node),
		opaque: RawTail("cpf_opaque", "item__.data"),
	}
}

// Register binds an item type ID to a payload grammar. A nil node makes the
// item's payload illegal unless empty, which is the shape of the null
// address item.
func (r *Registry) Register(typeID uint16, node automata.Node) {
	r.byType[typeID] = node
}

// Lookup returns the payload grammar for an item type, or the opaque
// fallback.
func (r *Registry) Lookup(typeID uint16) automata.Node {
	if node, ok := r.byType[typeID]; ok {
		return node
	}
	return r.opaque
}

// DefaultRegistry returns a registry covering the item types of the
// unconnected and connected messaging paths plus the ListServices reply.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ItemNull, nil)
	r.Register(ItemConnectedAddress,
		Value("cpf_ca", "item__.connected_address.connection_id", FormatUDINT, automata.MachineTerminal()))
	r.Register(ItemConnectedData, connectedDataGraph())
	r.Register(ItemUnconnectedData, unconnectedGraph())
	r.Register(ItemCommService, commServiceGraph())
	r.Register(ItemSockaddrO2T, sockaddrGraph("cpf_sao", "item__.sockaddr_info_o2t"))
	r.Register(ItemSockaddrT2O, sockaddrGraph("cpf_sat", "item__.sockaddr_info_t2o"))
	return r
}

// CPF returns a machine parsing a common packet format frame: a 16-bit item
// count, then per item a type ID, a byte length and a payload dispatched on
// the type ID and bounded by the length. An input with no symbols at all is
// a valid absent frame. Items accumulate in the "item" list at ctx.
func CPF(name, ctx string, reg *Registry, opts ...automata.MachineOption) *automata.Machine {
	typeM := Value(name+"_type", "item__.type_id", FormatUINT)
	lenM := Value(name+"_len", "item__.length", FormatUINT)
	paySw := automata.NewSwitch(name+"_pay", func(data *artifact.Artifact, prefix artifact.Path) (automata.Node, error) {
		id, ok := data.Int(prefix.Join("item__.type_id"))
		if !ok {
			return nil, fmt.Errorf("wire: %s: missing item type", name)
		}
		return reg.Lookup(uint16(id)), nil
	}, automata.LimitRef("item__.length", 1))
	commit := automata.NewAction(name+"_commit", func(data *artifact.Artifact, p artifact.Path) error {
		item, ok := data.Take(p.Join("item__"))
		if !ok {
			return fmt.Errorf("wire: %s: empty item", name)
		}
		data.Append(p.Join("item"), item)
		return nil
	}, automata.Terminal())
	seq(typeM, lenM, paySw, commit)

	countM := Value(name+"_count", "count", FormatUINT)
	items := automata.NewMachine(name+"_items", typeM, automata.RepeatRef("count"), automata.MachineTerminal())
	seq(countM, items)

	entry := automata.NewState(name+"_entry", automata.Terminal())
	entry.OnAny(countM)
	opts = append(opts, automata.MachineContext(ctx))
	return automata.NewMachine(name, entry, opts...)
}

// connectedDataGraph parses a connected data item: a 16-bit sequence count
// followed by the connected transport payload.
func connectedDataGraph() automata.Node {
	m := automata.NewMachine("cpf_cd",
		seq(
			Value("cpf_cd_seq", "sequence", FormatUINT),
			RawTail("cpf_cd_data", "data"),
		),
		automata.MachineContext("item__.connected_data"), automata.MachineTerminal())
	return m
}

// unconnectedGraph parses an unconnected data item: a service code, then for
// requests a request path and for replies a general status, then the
// remaining service data.
func unconnectedGraph() automata.Node {
	request := seq(
		EPATH("cpf_uc_path", "path", false),
		RawTail("cpf_uc_reqdata", "data"),
	)
	reply := seq(
		automata.NewDiscard("cpf_uc_rsvd"),
		Status("cpf_uc_status", "status"),
		RawTail("cpf_uc_repdata", "data"),
	)
	dir := automata.NewSwitch("cpf_uc_dir", func(data *artifact.Artifact, prefix artifact.Path) (automata.Node, error) {
		svc, ok := data.Int(prefix.Join("service"))
		if !ok {
			return nil, fmt.Errorf("wire: unconnected item: missing service code")
		}
		if svc&0x80 != 0 {
			return reply, nil
		}
		return request, nil
	}, automata.MachineTerminal())
	return automata.NewMachine("cpf_uc",
		seq(Value("cpf_uc_svc", "service", FormatUSINT), dir),
		automata.MachineContext("item__.unconnected_send"), automata.MachineTerminal())
}

// commServiceGraph parses a ListServices reply item: version, capability
// flags and a NUL-terminated service name, padding dropped.
func commServiceGraph() automata.Node {
	c := automata.NewConsume("cpf_cs_ch", automata.Context("name_raw__"))
	nul := automata.NewDiscard("cpf_cs_nul")
	dispatch := automata.NewState("cpf_cs_name")
	dispatch.On(0x00, nul)
	dispatch.OnPred(func(b byte) bool { return b != 0x00 }, c)
	c.On(0x00, nul)
	c.OnPred(func(b byte) bool { return b != 0x00 }, c)
	mk := automata.NewAction("cpf_cs_mk", func(data *artifact.Artifact, p artifact.Path) error {
		raw, _ := data.Bytes(p.Join("name_raw__"))
		data.Delete(p.Join("name_raw__"))
		data.Put(p.Join("service_name"), string(raw))
		return nil
	})
	nul.OnNone(mk)
	mk.OnNone(DiscardTail("cpf_cs_padtail"))

	ver := Value("cpf_cs_ver", "version", FormatUINT)
	capf := Value("cpf_cs_cap", "capability_flags", FormatUINT)
	seq(ver, capf)
	capf.OnNone(dispatch)
	return automata.NewMachine("cpf_cs", ver,
		automata.MachineContext("item__.communications_service"), automata.MachineTerminal())
}

// sockaddrGraph parses a sockaddr info item. Unlike the rest of the
// protocol these fields are in network byte order.
func sockaddrGraph(name, ctx string) automata.Node {
	zero := automata.NewMachine(name+"_zero",
		automata.NewDiscard(name+"_zb", automata.Terminal()),
		automata.Repeat(8), automata.MachineTerminal())
	return automata.NewMachine(name,
		seq(
			ValueOrder(name+"_fam", "sin_family", FormatINT, binary.BigEndian),
			ValueOrder(name+"_port", "sin_port", FormatUINT, binary.BigEndian),
			ValueOrder(name+"_addr", "sin_addr", FormatUDINT, binary.BigEndian),
			zero,
		),
		automata.MachineContext(ctx), automata.MachineTerminal())
}

// AppendCPF appends the wire form of a frame: item count then each item as
// type ID, payload length and payload.
func AppendCPF(dst []byte, items []any) ([]byte, error) {
	if len(items) > 0xFFFF {
		return nil, fmt.Errorf("wire: %d items exceeds 65535", len(items))
	}
	dst = codec.AppendUint16(codec.Wire, dst, uint16(len(items)))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("wire: item %d: want map, got %T", i, it)
		}
		typeID, err := uintOf(m["type_id"])
		if err != nil {
			return nil, fmt.Errorf("wire: item %d: %w", i, err)
		}
		payload, err := appendItemPayload(nil, uint16(typeID), m)
		if err != nil {
			return nil, fmt.Errorf("wire: item %d: %w", i, err)
		}
		if len(payload) > 0xFFFF {
			return nil, fmt.Errorf("wire: item %d: payload of %d bytes exceeds 65535", i, len(payload))
		}
		dst = codec.AppendUint16(codec.Wire, dst, uint16(typeID))
		dst = codec.AppendUint16(codec.Wire, dst, uint16(len(payload)))
		dst = append(dst, payload...)
	}
	return dst, nil
}

func appendItemPayload(dst []byte, typeID uint16, m map[string]any) ([]byte, error) {
	switch typeID {
	case ItemNull:
		return dst, nil

	case ItemConnectedAddress:
		ca, err := subMap(m, "connected_address")
		if err != nil {
			return nil, err
		}
		id, err := uintOf(ca["connection_id"])
		if err != nil {
			return nil, err
		}
		return codec.AppendUint32(codec.Wire, dst, uint32(id)), nil

	case ItemConnectedData:
		cd, err := subMap(m, "connected_data")
		if err != nil {
			return nil, err
		}
		seqn, err := uintOf(cd["sequence"])
		if err != nil {
			return nil, err
		}
		dst = codec.AppendUint16(codec.Wire, dst, uint16(seqn))
		return append(dst, bytesOf(cd["data"])...), nil

	case ItemUnconnectedData:
		return appendUnconnected(dst, m)

	case ItemCommService:
		cs, err := subMap(m, "communications_service")
		if err != nil {
			return nil, err
		}
		ver, err := uintOf(cs["version"])
		if err != nil {
			return nil, err
		}
		capf, err := uintOf(cs["capability_flags"])
		if err != nil {
			return nil, err
		}
		name, _ := cs["service_name"].(string)
		dst = codec.AppendUint16(codec.Wire, dst, uint16(ver))
		dst = codec.AppendUint16(codec.Wire, dst, uint16(capf))
		dst = append(dst, name...)
		return append(dst, 0x00), nil

	case ItemSockaddrO2T, ItemSockaddrT2O:
		key := "sockaddr_info_o2t"
		if typeID == ItemSockaddrT2O {
			key = "sockaddr_info_t2o"
		}
		sa, err := subMap(m, key)
		if err != nil {
			return nil, err
		}
		fam, err := asIntField(sa["sin_family"])
		if err != nil {
			return nil, err
		}
		port, err := uintOf(sa["sin_port"])
		if err != nil {
			return nil, err
		}
		addr, err := uintOf(sa["sin_addr"])
		if err != nil {
			return nil, err
		}
		dst = codec.AppendUint16(binary.BigEndian, dst, uint16(fam))
		dst = codec.AppendUint16(binary.BigEndian, dst, uint16(port))
		dst = codec.AppendUint32(binary.BigEndian, dst, uint32(addr))
		return append(dst, make([]byte, 8)...), nil

	default:
		return append(dst, bytesOf(m["data"])...), nil
	}
}

func appendUnconnected(dst []byte, m map[string]any) ([]byte, error) {
	uc, err := subMap(m, "unconnected_send")
	if err != nil {
		return nil, err
	}
	svc, err := uintOf(uc["service"])
	if err != nil {
		return nil, err
	}
	dst = append(dst, byte(svc))
	if svc&0x80 != 0 {
		dst = append(dst, 0x00)
		st, err := subMap(uc, "status")
		if err != nil {
			return nil, err
		}
		code, err := uintOf(st["code"])
		if err != nil {
			return nil, err
		}
		ext, _ := st["extended"].([]any)
		dst, err = AppendStatus(dst, uint8(code), ext)
		if err != nil {
			return nil, err
		}
	} else {
		pm, err := subMap(uc, "path")
		if err != nil {
			return nil, err
		}
		segs, _ := pm["segment"].([]any)
		dst, err = AppendEPATH(dst, segs, false)
		if err != nil {
			return nil, err
		}
	}
	return append(dst, bytesOf(uc["data"])...), nil
}

func subMap(m map[string]any, key string) (map[string]any, error) {
	sub, ok := m[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing %q payload", key)
	}
	return sub, nil
}

func bytesOf(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		return nil
	}
}

func asIntField(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		u, err := uintOf(v)
		if err != nil {
			return 0, err
		}
		return int64(u), nil
	}
}
