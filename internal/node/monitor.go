package node

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ohler55/ojg/oj"

	"github.com/shelfdb/shelf/internal/protocol"
)

// monitorInterval is how often a node re-exchanges peer maps with its
// active peers and retries pending ones.
const monitorInterval = 5 * time.Second

func (n *Node) monitorLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.discoverPeers()
			n.connectPending()
		case <-n.stopCh:
			return
		}
	}
}

// discoverPeers asks every currently connected peer for its own
// internal/peers subtree and queues any address we don't already know
// about as pending, so clusters converge on a shared membership without
// an explicit seed list naming every node.
func (n *Node) discoverPeers() {
	n.mu.Lock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.Unlock()

	peersPath := append(protocol.Segments(protocol.PeersRoot), protocol.OpEditLong)
	for _, p := range peers {
		reply, err := p.Client.Query(append([]string{protocol.NodeMarker}, peersPath...))
		if err != nil {
			n.recoverPeer(p)
			continue
		}
		if reply == "" {
			continue
		}
		parsed, err := oj.ParseString(reply)
		if err != nil {
			continue
		}
		for _, candidate := range parsePeerMap(parsed) {
			n.addPending(candidate.Host, candidate.Port)
		}
	}
}

// connectPending attempts one connection per currently pending address.
func (n *Node) connectPending() {
	n.mu.Lock()
	addrs := make([]string, 0, len(n.pending))
	for a := range n.pending {
		addrs = append(addrs, a)
	}
	n.mu.Unlock()

	for _, a := range addrs {
		host, portStr, err := net.SplitHostPort(a)
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		go n.connect(host, port)
	}
}

// maybeMerge implements join-time convergence: the node with the newer
// startup timestamp is assumed to be the one that just (re)joined an
// established cluster, so it adopts the older peer's tree wholesale
// rather than trying to reconcile divergent history key by key.
func (n *Node) maybeMerge(p *Peer) {
	startupPath := append(protocol.Segments(protocol.LocalRoot), "startup")
	reply, err := p.Client.Query(append([]string{protocol.NodeMarker}, startupPath...))
	if err != nil {
		return
	}
	peerStartup, err := strconv.ParseInt(strings.TrimSpace(reply), 10, 64)
	if err != nil {
		return
	}

	n.mu.Lock()
	localStartup := n.startup
	n.mu.Unlock()

	if peerStartup >= localStartup {
		return
	}

	treeReply, err := p.Client.Query([]string{protocol.NodeMarker, protocol.OpEditLong})
	if err != nil {
		return
	}
	parsed, err := oj.ParseString(treeReply)
	if err != nil {
		return
	}
	tree, ok := parsed.(map[string]any)
	if !ok {
		return
	}

	n.Engine.Replace(tree, protocol.InternalRoot)
	n.logf("merged tree from peer %s (older cluster, startup=%d)", p.Addr(), peerStartup)

	n.mu.Lock()
	n.startup = peerStartup
	n.mu.Unlock()
}
