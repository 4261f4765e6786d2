// Package enip implements the EtherNet/IP encapsulation layer: a parse
// machine for the 24-byte header and the per-command payload grammars, the
// matching packet builders, and a resumable stream decoder.
package enip

import (
	"fmt"

	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/automata"
	"github.com/tturner/enipstate/internal/cip/wire"
)

// ENIP command codes
const (
	CommandNOP               uint16 = 0x0000
	CommandListServices      uint16 = 0x0004
	CommandListIdentity      uint16 = 0x0063
	CommandListInterfaces    uint16 = 0x0064
	CommandRegisterSession   uint16 = 0x0065
	CommandUnregisterSession uint16 = 0x0066
	CommandSendRRData        uint16 = 0x006F
	CommandSendUnitData      uint16 = 0x0070
)

// ENIP encapsulation status codes
const (
	StatusSuccess            uint32 = 0x0000
	StatusInvalidCommand     uint32 = 0x0001
	StatusInsufficientMemory uint32 = 0x0002
	StatusIncorrectData      uint32 = 0x0003
	StatusInvalidSession     uint32 = 0x0064
	StatusInvalidLength      uint32 = 0x0065
	StatusUnsupportedVersion uint32 = 0x0069
)

// ProtocolVersion is the only encapsulation protocol version ever issued.
const ProtocolVersion uint16 = 1

// CommandName returns the conventional name of an encapsulation command.
func CommandName(cmd uint16) string {
	switch cmd {
	case CommandNOP:
		return "NOP"
	case CommandListServices:
		return "ListServices"
	case CommandListIdentity:
		return "ListIdentity"
	case CommandListInterfaces:
		return "ListInterfaces"
	case CommandRegisterSession:
		return "RegisterSession"
	case CommandUnregisterSession:
		return "UnregisterSession"
	case CommandSendRRData:
		return "SendRRData"
	case CommandSendUnitData:
		return "SendUnitData"
	default:
		return fmt.Sprintf("Unknown(0x%04X)", cmd)
	}
}

// Registry maps encapsulation command codes to payload grammars. Commands
// without a registered grammar capture their payload as raw bytes, so the
// server can still answer them with an invalid-command status.
type Registry struct {
	byCmd    map[uint16]automata.Node
	fallback automata.Node
}

// NewRegistry returns a registry with only the raw-capture fallback.
func NewRegistry() *Registry {
	return &Registry{
		byCmd:    make(map[uint16]automata.Node),
		fallback: wire.RawTail("enip_unknown", "payload"),
	}
}

// Register binds a command code to a payload grammar. A nil node means the
// command carries no payload.
func (r *Registry) Register(cmd uint16, node automata.Node) {
	r.byCmd[cmd] = node
}

// Lookup returns the payload grammar for a command, or the raw fallback.
func (r *Registry) Lookup(cmd uint16) automata.Node {
	if node, ok := r.byCmd[cmd]; ok {
		return node
	}
	return r.fallback
}

// DefaultRegistry returns a registry covering the session, unconnected and
// connected messaging commands, with CPF frames parsed by items.
func DefaultRegistry(items *wire.Registry) *Registry {
	r := NewRegistry()
	r.Register(CommandNOP, wire.DiscardTail("enip_nop"))
	r.Register(CommandRegisterSession, registerGraph())
	r.Register(CommandUnregisterSession, nil)
	r.Register(CommandListServices,
		wire.CPF("enip_ls_cpf", "list_services.CPF", items, automata.MachineTerminal()))
	r.Register(CommandListIdentity,
		wire.CPF("enip_li_cpf", "list_identity.CPF", items, automata.MachineTerminal()))
	r.Register(CommandListInterfaces,
		wire.CPF("enip_lx_cpf", "list_interfaces.CPF", items, automata.MachineTerminal()))
	r.Register(CommandSendRRData, sendDataGraph("enip_rr", "send_rr_data", items))
	r.Register(CommandSendUnitData, sendDataGraph("enip_ud", "send_unit_data", items))
	return r
}

// registerGraph parses a RegisterSession payload: requested protocol version
// and options flags.
func registerGraph() automata.Node {
	m := automata.NewMachine("enip_reg",
		seqNodes(
			wire.Value("enip_reg_ver", "protocol_version", wire.FormatUINT),
			wire.Value("enip_reg_opt", "options", wire.FormatUINT, automata.MachineTerminal()),
		),
		automata.MachineContext("register"), automata.MachineTerminal())
	return m
}

// sendDataGraph parses a SendRRData or SendUnitData payload: interface
// handle, timeout, then the CPF frame.
func sendDataGraph(name, ctx string, items *wire.Registry) automata.Node {
	return automata.NewMachine(name,
		seqNodes(
			wire.Value(name+"_ifh", "interface_handle", wire.FormatUDINT),
			wire.Value(name+"_tmo", "timeout", wire.FormatUINT),
			wire.CPF(name+"_cpf", "CPF", items, automata.MachineTerminal()),
		),
		automata.MachineContext(ctx), automata.MachineTerminal())
}

// MessageMachine returns the grammar of one complete encapsulated message:
// the fixed 24-byte header, then the command's payload bounded by the header
// length. Header fields land at the artifact root; payloads under their
// command's key.
func MessageMachine(reg *Registry) *automata.Machine {
	command := wire.Value("enip_cmd", "command", wire.FormatUINT)
	length := wire.Value("enip_len", "length", wire.FormatUINT)
	session := wire.Value("enip_ses", "session_handle", wire.FormatUDINT)
	status := wire.Value("enip_sts", "status", wire.FormatUDINT)
	options := wire.Value("enip_opt", "options", wire.FormatUDINT)

	var sender [8]*automata.State
	for i := range sender {
		sender[i] = automata.NewConsume(fmt.Sprintf("enip_ctx_b%d", i),
			automata.Context("sender_context"))
		if i > 0 {
			sender[i-1].OnNone(sender[i])
		}
	}
	sender[7].OnNone(options)

	payload := automata.NewSwitch("enip_payload", func(data *artifact.Artifact, prefix artifact.Path) (automata.Node, error) {
		cmd, ok := data.Int(prefix.Join("command"))
		if !ok {
			return nil, fmt.Errorf("enip: missing command code")
		}
		return reg.Lookup(uint16(cmd)), nil
	}, automata.LimitRef("length", 1), automata.MachineTerminal())

	seqNodes(command, length, session, status)
	status.OnNone(sender[0])
	options.OnNone(payload)
	return automata.NewMachine("enip_message", command, automata.MachineTerminal())
}

type linkable interface {
	automata.Node
	OnNone(automata.Node)
}

func seqNodes(nodes ...linkable) linkable {
	for i := 0; i < len(nodes)-1; i++ {
		nodes[i].OnNone(nodes[i+1])
	}
	return nodes[0]
}
