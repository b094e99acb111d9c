// Package node wraps an engine in cluster-aware gossip: it accepts the
// same argument-vector queries a plain server does, but forwards writes
// to peers, discovers new peers through the ones it already knows, and
// merges a just-joined cluster's tree on connect.
package node

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/shelfdb/shelf/internal/engine"
	"github.com/shelfdb/shelf/internal/protocol"
	"github.com/shelfdb/shelf/internal/server"
	"github.com/shelfdb/shelf/internal/wire"
)

// Options configures a Node at startup.
type Options struct {
	Engine       *engine.Engine
	Host         string
	Port         int
	InternalPort int
	Logger       *log.Logger
	Quiet        bool

	// Seeds are dialed once at Start, in addition to anything already
	// recorded under internal/peers from a prior run.
	Seeds []SeedPeer

	ForwardQueueSize int
}

// Node runs two listeners over one engine: an internal one (loopback,
// used by the CLI's own query commands) and an external one that speaks
// the clustering protocol (--node / --connect markers, write forwarding).
type Node struct {
	Engine       *engine.Engine
	Host         string
	Port         int
	InternalPort int

	identity string
	startup  int64

	internal       *server.Server
	externalLn     net.Listener
	internalLnAddr string

	logger *log.Logger
	quiet  bool

	mu      sync.Mutex
	peers   map[string]*Peer
	pending map[string]struct{}
	sockets map[net.Conn]struct{}
	closed  bool

	peerBook *peerSet

	forwardCh chan []string
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New builds a Node. Call Start to begin serving.
func New(opts Options) (*Node, error) {
	info, err := ensureIdentity(opts.Engine, opts.Host, opts.Port)
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}

	queueSize := opts.ForwardQueueSize
	if queueSize <= 0 {
		queueSize = defaultForwardQueueSize
	}

	n := &Node{
		Engine:       opts.Engine,
		Host:         opts.Host,
		Port:         opts.Port,
		InternalPort: opts.InternalPort,
		identity:     info.Identity,
		startup:      info.Startup,
		logger:       opts.Logger,
		quiet:        opts.Quiet,
		peers:        make(map[string]*Peer),
		pending:      make(map[string]struct{}),
		sockets:      make(map[net.Conn]struct{}),
		peerBook:     newPeerSet(),

		forwardCh: make(chan []string, queueSize),
		stopCh:    make(chan struct{}),
	}

	n.internal = server.New(opts.Engine, opts.Logger, opts.Quiet)

	for _, seed := range opts.Seeds {
		n.addPending(seed.Host, seed.Port)
	}

	// peers recorded under internal/peers by a previous run start out
	// pending, so a restarted node re-joins its old mesh without waiting
	// to be rediscovered.
	if internal, ok := opts.Engine.Snapshot()[protocol.InternalRoot].(map[string]any); ok {
		for _, p := range parsePeerMap(internal["peers"]) {
			n.addPending(p.Host, p.Port)
		}
	}

	return n, nil
}

// Identity returns the node's stable UUID.
func (n *Node) Identity() string { return n.identity }

// Start brings up the internal loopback listener, the external
// cluster-facing listener, and the forwarder/monitor goroutines. It
// returns once both listeners are bound; serving happens in background
// goroutines until Close.
func (n *Node) Start() error {
	internalLn, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", n.InternalPort))
	if err != nil {
		return fmt.Errorf("node: internal listen: %w", err)
	}
	n.internalLnAddr = internalLn.Addr().String()
	go func() { _ = n.internal.Serve(internalLn) }()

	externalLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", n.Host, n.Port))
	if err != nil {
		_ = internalLn.Close()
		return fmt.Errorf("node: external listen: %w", err)
	}
	n.externalLn = externalLn

	n.wg.Add(2)
	go n.forwardLoop()
	go n.monitorLoop()

	go func() { _ = n.serveExternal(externalLn) }()

	go n.connectPending()

	return nil
}

// InternalAddr returns the bound address of the loopback listener, set
// only after Start.
func (n *Node) InternalAddr() string { return n.internalLnAddr }

// Close tears down both listeners, every tracked client socket, and the
// background goroutines, then closes every peer connection.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	for c := range n.sockets {
		_ = c.Close()
	}
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.Unlock()

	close(n.stopCh)
	n.wg.Wait()

	n.internal.Teardown()
	if n.externalLn != nil {
		_ = n.externalLn.Close()
	}
	for _, p := range peers {
		_ = p.Client.Close()
	}
	return nil
}

func (n *Node) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func (n *Node) track(c net.Conn) {
	n.mu.Lock()
	n.sockets[c] = struct{}{}
	n.mu.Unlock()
}

func (n *Node) untrack(c net.Conn) {
	n.mu.Lock()
	delete(n.sockets, c)
	n.mu.Unlock()
}

func (n *Node) logf(format string, args ...any) {
	if n.quiet || n.logger == nil {
		return
	}
	n.logger.Printf("shelf node %s: %s", n.identity[:minInt(4, len(n.identity))], fmt.Sprintf(format, args...))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (n *Node) serveExternal(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if n.isClosed() {
				return nil
			}
			return err
		}
		n.track(conn)
		go n.handleExternal(conn)
	}
}

func (n *Node) handleExternal(conn net.Conn) {
	defer n.untrack(conn)
	defer conn.Close()

	for {
		payload, err := wire.Unframe(conn)
		if err != nil {
			return
		}

		reply := n.dispatch(server.SplitArgs(payload))

		if err := wire.Frame(conn, reply); err != nil {
			return
		}
	}
}

// dispatch implements the request path described for external
// connections: a --node prefix executes without re-forwarding, a
// --connect request registers the sender as a pending peer, and
// anything else executes normally and is queued for forwarding if it
// was a write.
func (n *Node) dispatch(args []string) string {
	if len(args) == 0 {
		return "\n"
	}

	switch args[0] {
	case protocol.NodeMarker:
		out, err := n.Engine.Action(args[1:])
		if err != nil {
			return protocol.ErrorPrefix + err.Error() + "\n"
		}
		return out

	case protocol.ConnectMarker:
		if len(args) >= 3 {
			if port, err := strconv.Atoi(args[2]); err == nil {
				n.addPending(args[1], port)
			}
		}
		return "\n"
	}

	out, err := n.Engine.Action(args)
	if err != nil {
		return protocol.ErrorPrefix + err.Error() + "\n"
	}
	if containsWriteOp(args) {
		n.enqueueForward(args)
	}
	return out
}
