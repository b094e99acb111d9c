package tests

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelf/internal/client"
	"github.com/shelfdb/shelf/internal/engine"
	"github.com/shelfdb/shelf/internal/node"
	"github.com/shelfdb/shelf/internal/server"
)

// testFixture bundles a running server over an in-memory engine and a
// connected client, the full stack a CLI invocation crosses.
type testFixture struct {
	engine *engine.Engine
	server *server.Server
	client *client.Client
	port   int
}

func setup(t *testing.T) *testFixture {
	t.Helper()

	e, err := engine.New(engine.Options{
		Filesystem: memfs.New(),
		Path:       "test.db.json",
		Stateless:  true,
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := server.New(e, nil, true)
	go func() { _ = s.Serve(ln) }()

	port := ln.Addr().(*net.TCPAddr).Port
	c := client.New("127.0.0.1", port)

	t.Cleanup(func() {
		_ = c.Close()
		s.Teardown()
		_ = e.Close()
	})

	return &testFixture{engine: e, server: s, client: c, port: port}
}

func TestPointerDereference(t *testing.T) {
	fx := setup(t)

	require.NoError(t, fx.client.Set([]string{"pointer"}, "value"))

	out, err := fx.client.Apply("!pointer")
	require.NoError(t, err)
	assert.Equal(t, "value", out)
}

func TestMultiSegmentPointer(t *testing.T) {
	fx := setup(t)

	require.NoError(t, fx.client.Set([]string{"pointer"}, "one two"))
	require.NoError(t, fx.client.Set([]string{"one", "two"}, "value"))

	out, err := fx.client.Apply("!pointer")
	require.NoError(t, err)
	assert.Equal(t, "value", out)
}

func TestSequenceRemoveCollapsesToScalar(t *testing.T) {
	fx := setup(t)

	require.NoError(t, fx.client.Set([]string{"colors"}, []any{"a", "b", "c"}))

	require.NoError(t, fx.client.Remove([]string{"colors"}, "b"))
	v, err := fx.client.Get("colors")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "c"}, v)

	require.NoError(t, fx.client.Remove([]string{"colors"}, "a"))
	v, err = fx.client.Get("colors")
	require.NoError(t, err)
	assert.Equal(t, "c", v)
}

func TestKeysAndEditRoundTrip(t *testing.T) {
	fx := setup(t)

	require.NoError(t, fx.client.Set([]string{"dict"}, map[string]any{"a": "1", "b": "2"}))

	keys, err := fx.client.Keys("dict")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	// --edit output fed back through --set must be a no-op
	v, err := fx.client.Get("dict")
	require.NoError(t, err)
	require.NoError(t, fx.client.Set([]string{"dict"}, v))

	v2, err := fx.client.Get("dict")
	require.NoError(t, err)
	assert.Equal(t, v, v2)
}

func TestErrorLineBecomesTypedError(t *testing.T) {
	fx := setup(t)

	require.NoError(t, fx.client.Set([]string{"dict"}, map[string]any{"a": "1"}))

	_, err := fx.client.Apply("dict", "+", "x")
	require.ErrorIs(t, err, client.ErrDatabase)
}

func TestConcurrentWritersEveryFrameGetsOneReply(t *testing.T) {
	fx := setup(t)

	const workers = 8
	const writes = 25

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			c := client.New("127.0.0.1", fx.port)
			defer c.Close()
			for i := 0; i < writes; i++ {
				key := fmt.Sprintf("w%d", w)
				if err := c.Set([]string{key}, fmt.Sprintf("v%d", i)); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for w := 0; w < workers; w++ {
		v, err := fx.client.Get(fmt.Sprintf("w%d", w))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("v%d", writes-1), v)
	}
}

func newTestNode(t *testing.T) *node.Node {
	t.Helper()
	e, err := engine.New(engine.Options{
		Filesystem: memfs.New(),
		Path:       "test.db.json",
		Stateless:  true,
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	n, err := node.New(node.Options{Engine: e, Host: "127.0.0.1", Port: port, InternalPort: 0})
	require.NoError(t, err)
	require.NoError(t, n.Start())

	t.Cleanup(func() {
		_ = n.Close()
		_ = e.Close()
	})
	return n
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met before timeout")
}

func TestWriteGossipsAcrossTwoNodes(t *testing.T) {
	alpha := newTestNode(t)
	beta := newTestNode(t)

	alphaClient := client.New("127.0.0.1", alpha.Port)
	defer alphaClient.Close()
	betaClient := client.New("127.0.0.1", beta.Port)
	defer betaClient.Close()

	_, err := alphaClient.Apply("--connect", beta.Host, fmt.Sprintf("%d", beta.Port))
	require.NoError(t, err)

	// forwarding only covers writes issued after the peer link exists,
	// so keep re-issuing the write until it lands on beta
	waitUntil(t, 10*time.Second, func() bool {
		_ = alphaClient.Set([]string{"blue"}, "berry")
		v, err := betaClient.Get("blue")
		if err != nil {
			return false
		}
		return v == "berry"
	})
}
