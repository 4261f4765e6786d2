package server

import (
	"io"
	"net"
	"time"

	"github.com/tturner/enipstate/internal/enip"
)

// handleConnection runs one connection: a single decoder over the byte
// stream, fed read by read. Message boundaries falling inside or across
// reads need no reassembly buffer; the decoder suspends wherever the bytes
// stop.
func (s *Server) handleConnection(conn *net.TCPConn) {
	defer s.wg.Done()
	defer func() {
		s.dropSessionsFor(conn)
		conn.Close()
	}()

	remoteAddr := conn.RemoteAddr().String()
	s.logger.Info("New connection from %s", remoteAddr)

	dec := enip.NewDecoder(s.machine)
	readBuf := make([]byte, 4096)
	idle := time.Duration(s.config.Server.IdleTimeoutSec) * time.Second

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		res, err := dec.Step()
		if err != nil {
			if !s.recover(conn, remoteAddr, dec, err) {
				return
			}
			continue
		}
		if res == enip.Complete {
			resp, keepOpen := s.dispatch(conn, remoteAddr, dec.Artifact())
			if resp != nil {
				if werr := s.writeResponse(conn, remoteAddr, resp); werr != nil {
					return
				}
			}
			if !keepOpen {
				return
			}
			dec.Reset()
			continue
		}

		if idle > 0 {
			conn.SetReadDeadline(time.Now().Add(idle))
		}
		n, rerr := conn.Read(readBuf)
		if n > 0 {
			dec.Feed(readBuf[:n])
		}
		if rerr != nil {
			if rerr == io.EOF {
				if dec.Consumed() > 0 {
					s.logger.Error("Connection %s closed mid-message after %d bytes", remoteAddr, dec.Consumed())
				} else {
					s.logger.Info("Connection closed by client: %s", remoteAddr)
				}
				return
			}
			if netErr, ok := rerr.(net.Error); ok && netErr.Timeout() {
				s.logger.Info("Connection %s idle for %s, closing", remoteAddr, idle)
				return
			}
			s.logger.Error("Read error from %s: %v", remoteAddr, rerr)
			return
		}
	}
}

// recover answers a malformed message with an incorrect-data status and
// resynchronizes the stream at the next header, using the already-decoded
// length to skip the rest of the payload. A failure before the header is
// complete is unrecoverable and the connection drops.
func (s *Server) recover(conn *net.TCPConn, remoteAddr string, dec *enip.Decoder, cause error) bool {
	art := dec.Artifact()
	cmd, okCmd := art.Int(pathOf("command"))
	length, okLen := art.Int(pathOf("length"))
	if !okCmd || !okLen || dec.Consumed() < enip.HeaderSize {
		s.logger.Error("Unrecoverable stream error from %s: %v", remoteAddr, cause)
		return false
	}

	session, _ := art.Int(pathOf("session_handle"))
	sender := senderContextOf(art)
	s.logger.Error("Malformed 0x%04X payload from %s: %v", cmd, remoteAddr, cause)

	resp, err := enip.BuildError(uint16(cmd), uint32(session), sender, enip.StatusIncorrectData)
	if err == nil {
		if werr := s.writeResponse(conn, remoteAddr, resp); werr != nil {
			return false
		}
	}

	remaining := enip.HeaderSize + length - dec.Consumed()
	if remaining < 0 {
		s.logger.Error("Stream from %s overran its declared length, closing", remoteAddr)
		return false
	}
	readBuf := make([]byte, 4096)
	for remaining > 0 {
		n, err := dec.Discard(remaining)
		if err != nil {
			return false
		}
		remaining -= n
		if remaining == 0 {
			break
		}
		rn, rerr := conn.Read(readBuf)
		if rn > 0 {
			dec.Feed(readBuf[:rn])
		}
		if rerr != nil {
			return false
		}
	}
	dec.Reset()
	return true
}

func (s *Server) writeResponse(conn *net.TCPConn, remoteAddr string, resp []byte) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write(resp); err != nil {
		s.logger.Error("Write error to %s: %v", remoteAddr, err)
		return err
	}
	s.logger.Debug("Sent %d bytes to %s", len(resp), remoteAddr)
	return nil
}
