// Package server implements the per-connection TCP handler that sits
// in front of an engine: one accept loop, one goroutine per connection,
// every query serialized by the engine's own mutex.
package server

import (
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/shelfdb/shelf/internal/engine"
	"github.com/shelfdb/shelf/internal/protocol"
	"github.com/shelfdb/shelf/internal/wire"
)

// Server runs a TCP accept loop over an Engine. It keeps a registry of
// live client sockets so Teardown can force-close them and unblock any
// handler currently blocked on a frame read.
type Server struct {
	Engine *engine.Engine

	logger *log.Logger
	quiet  bool

	mu       sync.Mutex
	listener net.Listener
	sockets  map[net.Conn]struct{}
	closed   bool
}

// New builds a Server over e. A nil logger disables logging outright;
// quiet suppresses it even with a logger set.
func New(e *engine.Engine, logger *log.Logger, quiet bool) *Server {
	return &Server{
		Engine:  e,
		logger:  logger,
		quiet:   quiet,
		sockets: make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections on ln until Teardown is called or Accept
// fails for any other reason.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.track(conn)
		go s.handle(conn)
	}
}

// Teardown force-closes every tracked client socket and the listener,
// unblocking any handler mid-read. Cooperative: handlers exit on their
// next framing attempt rather than being interrupted immediately.
func (s *Server) Teardown() {
	s.mu.Lock()
	s.closed = true
	for c := range s.sockets {
		_ = c.Close()
	}
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(c net.Conn) {
	s.mu.Lock()
	s.sockets[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.sockets, c)
	s.mu.Unlock()
}

// handle loops: unframe a request, dispatch it to the engine, frame the
// reply. Any framing error ends the connection.
func (s *Server) handle(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	for {
		payload, err := wire.Unframe(conn)
		if err != nil {
			return
		}

		args := SplitArgs(payload)
		start := time.Now()

		out, actionErr := s.Engine.Action(args)
		reply := out
		if actionErr != nil {
			reply = protocol.ErrorPrefix + actionErr.Error() + "\n"
		}

		if err := wire.Frame(conn, reply); err != nil {
			return
		}

		s.log(args, time.Since(start))
	}
}

// SplitArgs decodes a frame payload into an argument vector: tokens
// are newline-delimited, a trailing newline is permitted, and empty
// tokens are dropped.
func SplitArgs(payload string) []string {
	if payload == "" {
		return nil
	}
	parts := strings.Split(payload, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) log(args []string, d time.Duration) {
	if s.quiet || s.logger == nil {
		return
	}

	argv := fmt.Sprintf("%v", args)
	if len(argv) > 70 {
		argv = argv[:70]
	}

	s.logger.Printf("%7.3fms cache=%-3d %s%s",
		float64(d.Microseconds())/1000.0, s.Engine.CacheSize(), s.identityPrefix(), argv)
}

// identityPrefix returns the first 4 characters of the node's identity
// UUID, if the tree has one under internal/local, for correlating log
// lines across a cluster. A plain (non-node) server's tree never has
// this, so it's silently omitted.
func (s *Server) identityPrefix() string {
	tree := s.Engine.Snapshot()
	internal, ok := tree[protocol.InternalRoot].(map[string]any)
	if !ok {
		return ""
	}
	local, ok := internal["local"].(map[string]any)
	if !ok {
		return ""
	}
	id, ok := local["identity"].(string)
	if !ok || id == "" {
		return ""
	}
	if len(id) > 4 {
		id = id[:4]
	}
	return id + " "
}
