package node

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/ohler55/ojg/oj"

	"github.com/shelfdb/shelf/internal/client"
	"github.com/shelfdb/shelf/internal/protocol"
)

// PeerState tracks where a peer sits in the connection lifecycle.
type PeerState int

const (
	StatePending PeerState = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s PeerState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Peer is one known cluster member, reachable through its own Client.
type Peer struct {
	Host     string
	Port     int
	Identity string
	State    PeerState
	Client   *client.Client
}

func (p *Peer) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

func addr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// peerSet tracks dense integer ids for addresses so membership can ride
// on roaring bitmaps instead of repeated map scans: one bitmap for peers
// currently believed healthy, one for peers that recently failed and are
// due for a reconnect attempt on the next monitor tick.
type peerSet struct {
	ids            map[string]uint32
	nextID         uint32
	healthy        *roaring.Bitmap
	recentlyFailed *roaring.Bitmap
}

func newPeerSet() *peerSet {
	return &peerSet{
		ids:            make(map[string]uint32),
		healthy:        roaring.New(),
		recentlyFailed: roaring.New(),
	}
}

func (ps *peerSet) idFor(a string) uint32 {
	if id, ok := ps.ids[a]; ok {
		return id
	}
	id := ps.nextID
	ps.nextID++
	ps.ids[a] = id
	return id
}

func (ps *peerSet) markHealthy(a string) {
	id := ps.idFor(a)
	ps.healthy.Add(id)
	ps.recentlyFailed.Remove(id)
}

func (ps *peerSet) markFailed(a string) {
	id := ps.idFor(a)
	ps.healthy.Remove(id)
	ps.recentlyFailed.Add(id)
}

func (ps *peerSet) healthyCount() uint64 {
	return ps.healthy.GetCardinality()
}

// addPending records host:port as worth connecting to, unless it's
// already an active peer or already queued.
func (n *Node) addPending(host string, port int) {
	a := addr(host, port)

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, active := n.peers[a]; active {
		return
	}
	if a == addr(n.Host, n.Port) {
		return // never connect to ourselves
	}
	n.pending[a] = struct{}{}
}

// connect dials a pending peer: announce ourselves with --connect so the
// peer learns about us symmetrically, fetch its identity, and on success
// record it under internal/peers and consider a merge.
func (n *Node) connect(host string, port int) {
	a := addr(host, port)

	n.mu.Lock()
	if _, already := n.peers[a]; already {
		n.mu.Unlock()
		return
	}
	delete(n.pending, a)
	n.mu.Unlock()

	peer := &Peer{Host: host, Port: port, State: StateConnecting, Client: client.New(host, port)}

	if _, err := peer.Client.Query([]string{protocol.ConnectMarker, n.Host, strconv.Itoa(n.Port)}); err != nil {
		peer.State = StateFailed
		n.failPending(a)
		return
	}

	identityArgs := append(protocol.Segments(protocol.LocalRoot), "identity")
	reply, err := peer.Client.Query(append([]string{protocol.NodeMarker}, identityArgs...))
	if err != nil {
		peer.State = StateFailed
		n.failPending(a)
		return
	}

	peer.Identity = strings.TrimSpace(reply)
	peer.State = StateConnected

	n.mu.Lock()
	n.peers[a] = peer
	n.peerBook.markHealthy(a)
	healthy := n.peerBook.healthyCount()
	n.mu.Unlock()

	n.logf("connected to peer %s (%s), %d healthy", a, peer.Identity, healthy)

	n.recordPeer(peer)
	n.maybeMerge(peer)
}

func (n *Node) failPending(a string) {
	n.mu.Lock()
	n.pending[a] = struct{}{}
	n.peerBook.markFailed(a)
	n.mu.Unlock()
}

// recoverPeer demotes an active peer that just failed a request back to
// pending, so the next monitor tick retries it.
func (n *Node) recoverPeer(p *Peer) {
	a := p.Addr()

	n.mu.Lock()
	delete(n.peers, a)
	n.pending[a] = struct{}{}
	n.peerBook.markFailed(a)
	n.mu.Unlock()

	_ = p.Client.Close()
	n.logf("peer %s unreachable, scheduled for reconnect", a)
}

// recordPeer persists a connected peer's identity under internal/peers so
// it survives a restart and is visible to other nodes via discovery.
func (n *Node) recordPeer(p *Peer) {
	payload := map[string]any{
		"identity": p.Identity,
		"host":     p.Host,
		"port":     strconv.Itoa(p.Port),
	}
	encoded, err := oj.Marshal(payload)
	if err != nil {
		return
	}

	args := append(protocol.Segments(protocol.PeersRoot), p.Identity, protocol.OpSetLong, string(encoded))
	_, _ = n.Engine.Action(args)
}

// parsePeerMap reads a remote node's internal/peers subtree (as decoded
// from its --edit JSON reply) into a list of (host, port) pairs.
func parsePeerMap(peersNode any) []struct {
	Host string
	Port int
} {
	out := make([]struct {
		Host string
		Port int
	}, 0)

	peers, ok := peersNode.(map[string]any)
	if !ok {
		return out
	}
	for _, v := range peers {
		info, ok := v.(map[string]any)
		if !ok {
			continue
		}
		host, _ := info["host"].(string)
		portStr, _ := info["port"].(string)
		port, err := strconv.Atoi(portStr)
		if host == "" || err != nil {
			continue
		}
		out = append(out, struct {
			Host string
			Port int
		}{Host: host, Port: port})
	}
	return out
}
