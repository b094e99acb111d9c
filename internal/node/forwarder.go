package node

import "github.com/shelfdb/shelf/internal/protocol"

// defaultForwardQueueSize bounds the backlog of writes waiting to be
// relayed to peers. A node under sustained write load with a dead peer
// drops forwards rather than growing the queue without limit.
const defaultForwardQueueSize = 1024

// containsWriteOp reports whether args contains any token that mutates
// the tree, the same test the engine's cache uses to decide eligibility.
func containsWriteOp(args []string) bool {
	for _, a := range args {
		if protocol.WriteOps[a] {
			return true
		}
	}
	return false
}

// enqueueForward queues args for relay to every known peer. On a full
// queue the new entry is dropped and logged, since a slow peer must
// never backpressure a node's own clients.
func (n *Node) enqueueForward(args []string) {
	cp := append([]string{}, args...)
	select {
	case n.forwardCh <- cp:
	default:
		n.logf("forward queue full, dropping write %v", args)
	}
}

func (n *Node) forwardLoop() {
	defer n.wg.Done()
	for {
		select {
		case args := <-n.forwardCh:
			n.forwardToPeers(args)
		case <-n.stopCh:
			return
		}
	}
}

// forwardToPeers relays one write to every currently connected peer,
// tagged with NodeMarker so the receiver executes it without forwarding
// it again. A peer that rejects the relay is demoted to pending.
func (n *Node) forwardToPeers(args []string) {
	n.mu.Lock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.Unlock()

	forwarded := append([]string{protocol.NodeMarker}, args...)
	for _, p := range peers {
		if _, err := p.Client.Query(forwarded); err != nil {
			n.recoverPeer(p)
		}
	}
}
