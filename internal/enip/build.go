package enip

import (
	"fmt"

	"github.com/tturner/enipstate/internal/cip/codec"
	"github.com/tturner/enipstate/internal/cip/wire"
)

// HeaderSize is the fixed size of the encapsulation header.
const HeaderSize = 24

// Encapsulation is one EtherNet/IP packet: the 24-byte header plus the
// command-specific data.
type Encapsulation struct {
	Command       uint16
	SessionHandle uint32
	Status        uint32
	SenderContext [8]byte
	Options       uint32
	Data          []byte
}

// Encode returns the wire form of the packet. The length field is derived
// from the data.
func Encode(encap Encapsulation) ([]byte, error) {
	if len(encap.Data) > 0xFFFF {
		return nil, fmt.Errorf("enip: payload of %d bytes exceeds 65535", len(encap.Data))
	}
	out := make([]byte, 0, HeaderSize+len(encap.Data))
	out = codec.AppendUint16(codec.Wire, out, encap.Command)
	out = codec.AppendUint16(codec.Wire, out, uint16(len(encap.Data)))
	out = codec.AppendUint32(codec.Wire, out, encap.SessionHandle)
	out = codec.AppendUint32(codec.Wire, out, encap.Status)
	out = append(out, encap.SenderContext[:]...)
	out = codec.AppendUint32(codec.Wire, out, encap.Options)
	return append(out, encap.Data...), nil
}

// BuildRegisterSession builds a RegisterSession request.
func BuildRegisterSession(senderContext [8]byte) ([]byte, error) {
	var data []byte
	data = codec.AppendUint16(codec.Wire, data, ProtocolVersion)
	data = codec.AppendUint16(codec.Wire, data, 0)
	return Encode(Encapsulation{
		Command:       CommandRegisterSession,
		SenderContext: senderContext,
		Data:          data,
	})
}

// BuildRegisterSessionReply builds the server's RegisterSession response,
// echoing the requester's sender context and carrying the allocated session
// handle.
func BuildRegisterSessionReply(session uint32, senderContext [8]byte) ([]byte, error) {
	var data []byte
	data = codec.AppendUint16(codec.Wire, data, ProtocolVersion)
	data = codec.AppendUint16(codec.Wire, data, 0)
	return Encode(Encapsulation{
		Command:       CommandRegisterSession,
		SessionHandle: session,
		SenderContext: senderContext,
		Data:          data,
	})
}

// BuildUnregisterSession builds an UnregisterSession request. It carries no
// data and receives no reply.
func BuildUnregisterSession(session uint32, senderContext [8]byte) ([]byte, error) {
	return Encode(Encapsulation{
		Command:       CommandUnregisterSession,
		SessionHandle: session,
		SenderContext: senderContext,
	})
}

// BuildError builds a header-only reply reporting an encapsulation status.
func BuildError(command uint16, session uint32, senderContext [8]byte, status uint32) ([]byte, error) {
	return Encode(Encapsulation{
		Command:       command,
		SessionHandle: session,
		Status:        status,
		SenderContext: senderContext,
	})
}

// BuildSendRRData builds a SendRRData packet carrying a CPF frame for the
// unconnected messaging path. The interface handle is zero for CIP.
func BuildSendRRData(session uint32, senderContext [8]byte, timeout uint16, items []any) ([]byte, error) {
	data, err := sendDataPayload(timeout, items)
	if err != nil {
		return nil, err
	}
	return Encode(Encapsulation{
		Command:       CommandSendRRData,
		SessionHandle: session,
		SenderContext: senderContext,
		Data:          data,
	})
}

// BuildSendUnitData builds a SendUnitData packet carrying a CPF frame for
// the connected messaging path.
func BuildSendUnitData(session uint32, senderContext [8]byte, items []any) ([]byte, error) {
	data, err := sendDataPayload(0, items)
	if err != nil {
		return nil, err
	}
	return Encode(Encapsulation{
		Command:       CommandSendUnitData,
		SessionHandle: session,
		SenderContext: senderContext,
		Data:          data,
	})
}

func sendDataPayload(timeout uint16, items []any) ([]byte, error) {
	var data []byte
	data = codec.AppendUint32(codec.Wire, data, 0)
	data = codec.AppendUint16(codec.Wire, data, timeout)
	return wire.AppendCPF(data, items)
}

// BuildListServices builds a ListServices request.
func BuildListServices(senderContext [8]byte) ([]byte, error) {
	return Encode(Encapsulation{
		Command:       CommandListServices,
		SenderContext: senderContext,
	})
}

// BuildListServicesReply builds the server's ListServices response
// advertising one communications service item.
func BuildListServicesReply(session uint32, senderContext [8]byte, serviceName string, capabilityFlags uint16) ([]byte, error) {
	item := map[string]any{
		"type_id": wire.ItemCommService,
		"communications_service": map[string]any{
			"version":          ProtocolVersion,
			"capability_flags": capabilityFlags,
			"service_name":     serviceName,
		},
	}
	data, err := wire.AppendCPF(nil, []any{item})
	if err != nil {
		return nil, err
	}
	return Encode(Encapsulation{
		Command:       CommandListServices,
		SessionHandle: session,
		SenderContext: senderContext,
		Data:          data,
	})
}
