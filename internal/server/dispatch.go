package server

import (
	"net"

	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/cip/wire"
	"github.com/tturner/enipstate/internal/enip"
)

func pathOf(s string) artifact.Path {
	return artifact.ParsePath(s)
}

func senderContextOf(art *artifact.Artifact) [8]byte {
	var out [8]byte
	if raw, ok := art.Bytes(pathOf("sender_context")); ok {
		copy(out[:], raw)
	}
	return out
}

// dispatch answers one decoded message. The returned reply may be nil (NOP,
// UnregisterSession); keepOpen false closes the connection after any reply.
func (s *Server) dispatch(conn *net.TCPConn, remoteAddr string, art *artifact.Artifact) (resp []byte, keepOpen bool) {
	cmd16, ok := art.Int(pathOf("command"))
	if !ok {
		return nil, false
	}
	cmd := uint16(cmd16)
	session64, _ := art.Int(pathOf("session_handle"))
	session := uint32(session64)
	sender := senderContextOf(art)
	payloadLen, _ := art.Int(pathOf("length"))
	s.logger.LogFrame(remoteAddr, cmd, session, payloadLen, 0)

	errorReply := func(status uint32) ([]byte, bool) {
		out, err := enip.BuildError(cmd, session, sender, status)
		if err != nil {
			return nil, false
		}
		return out, true
	}

	switch cmd {
	case enip.CommandNOP:
		return nil, true

	case enip.CommandRegisterSession:
		version, ok := art.Int(pathOf("register.protocol_version"))
		if !ok {
			return errorReply(enip.StatusInvalidLength)
		}
		if version != int(enip.ProtocolVersion) {
			s.logger.Error("RegisterSession from %s requested version %d", remoteAddr, version)
			return errorReply(enip.StatusUnsupportedVersion)
		}
		id, err := s.allocateSession(remoteIP(remoteAddr), conn)
		if err != nil {
			s.logger.Error("RegisterSession rejected from %s: %v", remoteAddr, err)
			return errorReply(enip.StatusInsufficientMemory)
		}
		s.logger.Info("Registered session %d for %s", id, remoteAddr)
		out, err := enip.BuildRegisterSessionReply(id, sender)
		if err != nil {
			return nil, false
		}
		return out, true

	case enip.CommandUnregisterSession:
		s.dropSession(session)
		s.logger.Info("Unregistered session %d", session)
		return nil, false

	case enip.CommandListServices:
		out, err := enip.BuildListServicesReply(session, sender,
			s.config.Identity.ServiceName, s.config.Identity.CapabilityFlags)
		if err != nil {
			return nil, false
		}
		return out, true

	case enip.CommandListIdentity, enip.CommandListInterfaces:
		return errorReply(enip.StatusInvalidCommand)

	case enip.CommandSendRRData:
		if s.requireRegister() && !s.sessionValid(session) {
			return errorReply(enip.StatusInvalidSession)
		}
		return s.handleSendRRData(session, sender, art)

	case enip.CommandSendUnitData:
		if s.requireRegister() && !s.sessionValid(session) {
			return errorReply(enip.StatusInvalidSession)
		}
		return s.handleSendUnitData(session, sender, art)

	default:
		s.logger.Error("Unsupported command 0x%04X from %s", cmd, remoteAddr)
		return errorReply(enip.StatusInvalidCommand)
	}
}

func (s *Server) requireRegister() bool {
	return s.config.Server.RequireRegister == nil || *s.config.Server.RequireRegister
}

// handleSendRRData answers an unconnected request. Every service is refused
// with a service-not-supported reply carrying the request's service code, so
// well-formed requests get a well-formed CIP-level answer.
func (s *Server) handleSendRRData(session uint32, sender [8]byte, art *artifact.Artifact) ([]byte, bool) {
	items, _ := art.List(pathOf("send_rr_data.CPF.item"))
	ucs := findItemPayload(items, "unconnected_send")
	if ucs == nil {
		out, err := enip.BuildError(enip.CommandSendRRData, session, sender, enip.StatusIncorrectData)
		return out, err == nil
	}
	service, err := intField(ucs, "service")
	if err != nil {
		out, berr := enip.BuildError(enip.CommandSendRRData, session, sender, enip.StatusIncorrectData)
		return out, berr == nil
	}

	reply := []any{
		map[string]any{"type_id": wire.ItemNull},
		map[string]any{
			"type_id": wire.ItemUnconnectedData,
			"unconnected_send": map[string]any{
				"service": uint64(service) | 0x80,
				"status": map[string]any{
					"code": uint64(wire.StatusServiceUnsupported),
				},
			},
		},
	}
	out, err := enip.BuildSendRRData(session, sender, 0, reply)
	return out, err == nil
}

// handleSendUnitData echoes the connection address and answers the connected
// payload with a service-not-supported CIP reply at the same sequence count.
func (s *Server) handleSendUnitData(session uint32, sender [8]byte, art *artifact.Artifact) ([]byte, bool) {
	items, _ := art.List(pathOf("send_unit_data.CPF.item"))
	addr := findItemPayload(items, "connected_address")
	data := findItemPayload(items, "connected_data")
	if addr == nil || data == nil {
		out, err := enip.BuildError(enip.CommandSendUnitData, session, sender, enip.StatusIncorrectData)
		return out, err == nil
	}
	connID, err := intField(addr, "connection_id")
	if err != nil {
		out, berr := enip.BuildError(enip.CommandSendUnitData, session, sender, enip.StatusIncorrectData)
		return out, berr == nil
	}
	seqn, _ := intField(data, "sequence")

	var service uint64
	if raw, ok := data["data"].([]byte); ok && len(raw) > 0 {
		service = uint64(raw[0])
	}
	cipReply := []byte{byte(service | 0x80), 0x00, wire.StatusServiceUnsupported, 0x00}

	reply := []any{
		map[string]any{
			"type_id": wire.ItemConnectedAddress,
			"connected_address": map[string]any{
				"connection_id": uint64(connID),
			},
		},
		map[string]any{
			"type_id": wire.ItemConnectedData,
			"connected_data": map[string]any{
				"sequence": uint64(seqn),
				"data":     cipReply,
			},
		},
	}
	out, berr := enip.BuildSendUnitData(session, sender, reply)
	return out, berr == nil
}

// findItemPayload returns the payload map of the first item carrying the
// given payload key.
func findItemPayload(items []any, key string) map[string]any {
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if sub, ok := m[key].(map[string]any); ok {
			return sub
		}
	}
	return nil
}

func intField(m map[string]any, key string) (int, error) {
	switch v := m[key].(type) {
	case uint64:
		return int(v), nil
	case int64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, &fieldError{key: key}
	}
}

type fieldError struct{ key string }

func (e *fieldError) Error() string { return "missing integer field " + e.key }
