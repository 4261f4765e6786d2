// Package server implements the EtherNet/IP TCP server: a listener, a
// session table and one incremental decoder per connection, so messages are
// parsed as bytes arrive regardless of how reads split them.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tturner/enipstate/internal/automata"
	"github.com/tturner/enipstate/internal/cip/wire"
	"github.com/tturner/enipstate/internal/config"
	"github.com/tturner/enipstate/internal/enip"
	uferrors "github.com/tturner/enipstate/internal/errors"
	"github.com/tturner/enipstate/internal/logging"
)

// Server represents an EtherNet/IP server.
type Server struct {
	config      *config.ServerConfig
	logger      *logging.Logger
	machine     *automata.Machine
	tcpListener *net.TCPListener

	sessions      map[uint32]*Session
	sessionsMu    sync.RWMutex
	nextSessionID uint32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Session represents an active EtherNet/IP session.
type Session struct {
	ID           uint32
	Conn         *net.TCPConn
	RemoteIP     string
	CreatedAt    time.Time
	LastActivity time.Time
	mu           sync.Mutex
}

// NewServer creates a server over the given configuration.
func NewServer(cfg *config.ServerConfig, logger *logging.Logger) (*Server, error) {
	items := wire.DefaultRegistry()
	for _, id := range cfg.Parser.DisableItems {
		items.Register(id, wire.RawTail(fmt.Sprintf("cpf_disabled_%04x", id), "item__.data"))
	}
	commands := enip.DefaultRegistry(items)
	for _, cmd := range cfg.Parser.DisableCommands {
		commands.Register(cmd, wire.RawTail(fmt.Sprintf("enip_disabled_%04x", cmd), "payload"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:        cfg,
		logger:        logger,
		machine:       enip.MessageMachine(commands),
		sessions:      make(map[uint32]*Session),
		nextSessionID: 1,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start starts the server.
func (s *Server) Start() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", s.config.Server.ListenIP, s.config.Server.TCPPort))
	if err != nil {
		return fmt.Errorf("resolve TCP address: %w", err)
	}

	s.tcpListener, err = net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return uferrors.WrapListenError(err, s.config.Server.ListenIP, s.config.Server.TCPPort)
	}

	s.logger.Info("TCP server listening on %s", s.tcpListener.Addr())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// TCPAddr returns the bound TCP address after Start.
func (s *Server) TCPAddr() *net.TCPAddr {
	if s.tcpListener == nil {
		return nil
	}
	if addr, ok := s.tcpListener.Addr().(*net.TCPAddr); ok {
		return addr
	}
	return nil
}

// Stop stops the server and closes every open connection.
func (s *Server) Stop() error {
	s.cancel()

	if s.tcpListener != nil {
		s.tcpListener.Close()
	}

	s.sessionsMu.Lock()
	for _, session := range s.sessions {
		if session != nil && session.Conn != nil {
			session.Conn.Close()
		}
	}
	s.sessions = make(map[uint32]*Session)
	s.sessionsMu.Unlock()

	s.wg.Wait()
	s.logger.Info("Server stopped")
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.tcpListener.SetDeadline(time.Now().Add(1 * time.Second))
		conn, err := s.tcpListener.AcceptTCP()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("Accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) allocateSession(remoteIP string, conn *net.TCPConn) (uint32, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if len(s.sessions) >= s.config.Server.MaxSessions {
		return 0, fmt.Errorf("session limit %d reached", s.config.Server.MaxSessions)
	}
	perIP := 0
	for _, sess := range s.sessions {
		if sess.RemoteIP == remoteIP {
			perIP++
		}
	}
	if perIP >= s.config.Server.MaxSessionsPerIP {
		return 0, fmt.Errorf("per-IP session limit %d reached for %s", s.config.Server.MaxSessionsPerIP, remoteIP)
	}

	id := s.nextSessionID
	s.nextSessionID++
	now := time.Now()
	s.sessions[id] = &Session{
		ID:           id,
		Conn:         conn,
		RemoteIP:     remoteIP,
		CreatedAt:    now,
		LastActivity: now,
	}
	return id, nil
}

func (s *Server) sessionValid(id uint32) bool {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	sess, ok := s.sessions[id]
	if ok {
		sess.mu.Lock()
		sess.LastActivity = time.Now()
		sess.mu.Unlock()
	}
	return ok
}

func (s *Server) dropSession(id uint32) {
	s.sessionsMu.Lock()
	delete(s.sessions, id)
	s.sessionsMu.Unlock()
}

func (s *Server) dropSessionsFor(conn *net.TCPConn) {
	s.sessionsMu.Lock()
	for id, sess := range s.sessions {
		if sess != nil && sess.Conn == conn {
			delete(s.sessions, id)
		}
	}
	s.sessionsMu.Unlock()
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
