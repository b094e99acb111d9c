package node

import (
	"net"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelf/internal/engine"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	e, err := engine.New(engine.Options{
		Filesystem: memfs.New(),
		Path:       "test.db.json",
		Stateless:  true,
	})
	require.NoError(t, err)

	host := "127.0.0.1"
	port := freePort(t)

	n, err := New(Options{Engine: e, Host: host, Port: port, InternalPort: 0})
	require.NoError(t, err)
	require.NoError(t, n.Start())

	t.Cleanup(func() {
		_ = n.Close()
		_ = e.Close()
	})
	return n
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met before timeout")
}

func (n *Node) peerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.peers)
}

func TestNodeDispatchPlainWriteReplies(t *testing.T) {
	n := newTestNode(t)
	reply := n.dispatch([]string{"k", "=", "v"})
	assert.Equal(t, "\n", reply)
}

func TestNodeDispatchNodeMarkerNeverReForwards(t *testing.T) {
	n := newTestNode(t)
	reply := n.dispatch([]string{"--node", "k", "=", "v"})
	assert.Equal(t, "\n", reply)
	// a --node write must not be queued for forwarding again
	assert.Equal(t, 0, len(n.forwardCh))
}

func TestNodeDispatchConnectMarkerRegistersPending(t *testing.T) {
	n := newTestNode(t)
	reply := n.dispatch([]string{"--connect", "10.0.0.5", "7000"})
	assert.Equal(t, "\n", reply)

	n.mu.Lock()
	_, pending := n.pending["10.0.0.5:7000"]
	n.mu.Unlock()
	assert.True(t, pending)
}

func TestTwoNodesConnectAndGossipWrites(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	a.addPending(b.Host, b.Port)
	go a.connectPending()

	// b dials a back only on its first monitor tick
	waitUntil(t, 2*monitorInterval, func() bool {
		return a.peerCount() == 1 && b.peerCount() == 1
	})

	reply := a.dispatch([]string{"shared", "=", "hello"})
	require.Equal(t, "\n", reply)

	waitUntil(t, 3*time.Second, func() bool {
		out, err := b.Engine.Action([]string{"shared"})
		return err == nil && out == "hello\n"
	})
}

func TestThreeNodeMeshRestartAndRediscovery(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	// gamma keeps its engine across a restart, standing in for a node
	// that reloads its tree from disk
	gammaEngine, err := engine.New(engine.Options{
		Filesystem: memfs.New(),
		Path:       "test.db.json",
		Stateless:  true,
	})
	require.NoError(t, err)
	gammaPort := freePort(t)

	gamma, err := New(Options{Engine: gammaEngine, Host: "127.0.0.1", Port: gammaPort, InternalPort: 0})
	require.NoError(t, err)
	require.NoError(t, gamma.Start())

	// only a is told about the others; b and gamma must find each other
	// through a's peer map on a monitor tick
	a.addPending(b.Host, b.Port)
	a.addPending("127.0.0.1", gammaPort)
	a.connectPending()

	waitUntil(t, 20*time.Second, func() bool {
		return a.peerCount() == 2 && b.peerCount() == 2 && gamma.peerCount() == 2
	})

	require.NoError(t, gamma.Close())

	// the restarted node seeds its pending set from internal/peers,
	// recorded by the previous run
	restarted, err := New(Options{Engine: gammaEngine, Host: "127.0.0.1", Port: gammaPort, InternalPort: 0})
	require.NoError(t, err)
	require.NoError(t, restarted.Start())
	t.Cleanup(func() {
		_ = restarted.Close()
		_ = gammaEngine.Close()
	})

	restarted.connectPending()
	waitUntil(t, 20*time.Second, func() bool {
		return restarted.peerCount() == 2
	})

	// a write at the restarted node reaches both survivors
	reply := restarted.dispatch([]string{"ghost", "=", "pepper"})
	require.Equal(t, "\n", reply)

	waitUntil(t, 10*time.Second, func() bool {
		outA, errA := a.Engine.Action([]string{"ghost"})
		outB, errB := b.Engine.Action([]string{"ghost"})
		return errA == nil && errB == nil && outA == "pepper\n" && outB == "pepper\n"
	})
}

func TestLoadSeedsMissingFileIsNotError(t *testing.T) {
	seeds, err := LoadSeeds("/nonexistent/path/seeds.hcl")
	require.NoError(t, err)
	assert.Nil(t, seeds)
}

func TestLoadSeedsEmptyPathIsNotError(t *testing.T) {
	seeds, err := LoadSeeds("")
	require.NoError(t, err)
	assert.Nil(t, seeds)
}
