// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the local credential relay: a loopback-only
// websocket server that exists to hand the session token to one
// just-launched application process.
//
// A relay session is intentionally narrow. It binds a random port in a
// fixed range, accepts exactly one client, exchanges {subject, data}
// JSON frames with it, and shuts itself down when that client
// disconnects. Additional connection attempts while a client is held
// are refused before the websocket handshake. There is no
// authentication on the channel — being first to connect on loopback
// is the only credential, which is why the server's lifetime is tied
// to the launched process.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/lux-foundation/lux/lib/eventbus"
)

// sendTimeout bounds one outbound frame write. The client is on
// loopback; anything slower than this is a hung client.
const sendTimeout = 5 * time.Second

// Frame is the wire record exchanged with the relay client. Both
// fields are required; frames missing either are discarded.
type Frame struct {
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

// ServerConfig holds configuration for creating a Server.
type ServerConfig struct {
	// PortMin and PortMax bound the loopback port range (inclusive).
	PortMin int
	PortMax int

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Server is the relay server. One Server instance exists per running
// application (owned by the session coordinator); Start while running
// is a no-op so that a re-entrant launch cannot create a second
// listener.
type Server struct {
	portMin int
	portMax int
	logger  *slog.Logger
	bus     *eventbus.Bus

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	client     *websocket.Conn
	claimed    bool
	port       int
	running    bool
	done       chan struct{}
	cancelRead context.CancelFunc
}

// NewServer creates a relay server. Ports are not bound until Start.
func NewServer(config ServerConfig) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		portMin: config.PortMin,
		portMax: config.PortMax,
		logger:  logger,
		bus:     eventbus.New(),
	}
}

// Start binds a loopback port in the configured range and begins
// accepting. If the server is already running, Start returns the
// existing port without side effects.
func (s *Server) Start() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("relay already running", "port", s.port)
		return s.port, nil
	}

	listener, port, err := s.listen()
	if err != nil {
		return 0, err
	}

	readCtx, cancelRead := context.WithCancel(context.Background())
	s.listener = listener
	s.port = port
	s.running = true
	s.done = make(chan struct{})
	s.cancelRead = cancelRead
	s.httpServer = &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.handleConnection(readCtx, w, r)
		}),
	}

	httpServer := s.httpServer
	go func() {
		err := httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("relay server failed", "error", err)
		}
	}()

	s.logger.Info("relay started", "port", port)
	return port, nil
}

// listen binds 127.0.0.1 on a random port within the range, scanning
// forward (with wraparound) from a random starting point until a free
// port is found.
func (s *Server) listen() (net.Listener, int, error) {
	span := s.portMax - s.portMin + 1
	if span <= 0 {
		return nil, 0, fmt.Errorf("relay: invalid port range [%d, %d]", s.portMin, s.portMax)
	}

	start := rand.IntN(span)
	for i := 0; i < span; i++ {
		port := s.portMin + (start+i)%span
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return listener, port, nil
		}
	}
	return nil, 0, fmt.Errorf("relay: no free port in range [%d, %d]", s.portMin, s.portMax)
}

// handleConnection upgrades one websocket client. A second connection
// while the first is held is refused before the handshake.
func (s *Server) handleConnection(readCtx context.Context, w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.claimed {
		s.mu.Unlock()
		s.logger.Warn("relay rejecting additional connection", "remote", r.RemoteAddr)
		http.Error(w, "relay busy", http.StatusConflict)
		return
	}
	// Claim the slot before unlocking so a racing second upgrade sees
	// it taken. The claim is released on upgrade failure.
	s.claimed = true
	s.mu.Unlock()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("relay handshake failed", "error", err)
		s.mu.Lock()
		s.claimed = false
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.client = conn
	s.mu.Unlock()
	s.logger.Info("relay client connected", "remote", r.RemoteAddr)

	s.readLoop(readCtx, conn)

	// One relay session serves exactly one client lifetime: when the
	// client goes away, so does the server.
	s.logger.Info("relay client disconnected")
	s.Stop()
}

// readLoop consumes frames until the client disconnects or the server
// stops. Malformed frames are discarded with a warning; valid frames
// are republished on the internal bus keyed by subject.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Warn("relay discarding unparsable frame", "error", err)
			continue
		}
		if frame.Subject == "" || len(frame.Data) == 0 {
			s.logger.Warn("relay discarding incomplete frame", "subject", frame.Subject)
			continue
		}

		s.bus.Publish(frame.Subject, frame.Data)
	}
}

// Subscribe registers for inbound frames with the given subject. The
// cancel function releases the subscription.
func (s *Server) Subscribe(subject string) (<-chan eventbus.Message, func()) {
	return s.bus.Subscribe(subject)
}

// Send is a best-effort unicast to the connected client. If no client
// is connected the message is silently dropped — a relay client that
// is not yet listening has no message history to catch up on, so
// nothing is queued.
func (s *Server) Send(subject string, data any) {
	s.mu.Lock()
	conn := s.client
	s.mu.Unlock()
	if conn == nil {
		s.logger.Debug("relay send with no client, dropping", "subject", subject)
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Warn("relay send: encoding payload", "subject", subject, "error", err)
		return
	}
	frame, err := json.Marshal(Frame{Subject: subject, Data: payload})
	if err != nil {
		s.logger.Warn("relay send: encoding frame", "subject", subject, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		s.logger.Warn("relay send failed", "subject", subject, "error", err)
	}
}

// Stop shuts the server down: the client connection, the listener,
// and the accept loop. Idempotent.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	client := s.client
	s.client = nil
	s.claimed = false
	httpServer := s.httpServer
	s.httpServer = nil
	s.listener = nil
	s.port = 0
	cancelRead := s.cancelRead
	s.cancelRead = nil
	done := s.done
	s.mu.Unlock()

	if client != nil {
		client.Close(websocket.StatusNormalClosure, "relay shutting down")
	}
	cancelRead()
	httpServer.Close()
	close(done)
	s.logger.Info("relay stopped")
}

// Running reports whether the server currently holds a bound port.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Port returns the bound port, or zero when not running.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Done returns a channel closed when the current relay session ends.
// Returns nil if the server has never been started.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
