// Package client implements the keep-alive TCP session used to query a
// shelf server or node: encode an argument vector, send one frame,
// decode the reply, and surface "error: " lines as a typed error.
package client

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ohler55/ojg/oj"

	"github.com/shelfdb/shelf/internal/protocol"
	"github.com/shelfdb/shelf/internal/wire"
)

// DialTimeout bounds how long each lazy dial of the server waits.
const DialTimeout = 5 * time.Second

// ErrDatabase wraps a server-reported "error: " line.
var ErrDatabase = errors.New("shelf: database error")

// ErrNetwork wraps a framing or socket failure.
var ErrNetwork = errors.New("shelf: network error")

// Client holds one optional persistent socket to a shelf server,
// protected by a mutex so multiple goroutines can share a Client
// without interleaving frames.
type Client struct {
	host string
	port int

	mu   sync.Mutex
	conn net.Conn
}

// New returns a Client that lazily dials host:port on first use.
func New(host string, port int) *Client {
	return &Client{host: host, port: port}
}

// Close drops the persistent connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) ensureConnLocked() error {
	if c.conn != nil {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrNetwork, addr, err)
	}
	c.conn = conn
	return nil
}

// Query sends args as one frame (joined by newline, no trailing
// newline) and returns the raw reply with its trailing newline
// stripped. A reply beginning with "error: " becomes ErrDatabase.
func (c *Client) Query(args []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnLocked(); err != nil {
		return "", err
	}

	payload := strings.Join(args, "\n")
	if err := wire.Frame(c.conn, payload); err != nil {
		_ = c.closeLocked()
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	reply, err := wire.Unframe(c.conn)
	if err != nil {
		_ = c.closeLocked()
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	reply = strings.TrimSuffix(reply, "\n")
	if strings.HasPrefix(reply, protocol.ErrorPrefix) {
		return "", fmt.Errorf("%w: %s", ErrDatabase, reply)
	}
	return reply, nil
}

// queryLines is Query split on newlines, with empty lines dropped —
// the shape most convenience wrappers want.
func (c *Client) queryLines(args []string) ([]string, error) {
	reply, err := c.Query(args)
	if err != nil {
		return nil, err
	}
	if reply == "" {
		return nil, nil
	}
	parts := strings.Split(reply, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// Get retrieves keys, decoding the server's --edit JSON rendering of
// the result. Returns nil if the path does not exist.
func (c *Client) Get(keys ...string) (any, error) {
	if len(keys) == 0 {
		keys = []string{""}
	}
	args := append(append([]string{}, keys...), protocol.OpEditLong)

	reply, err := c.Query(args)
	if err != nil {
		return nil, err
	}
	if reply == "" {
		return nil, nil
	}
	v, err := oj.ParseString(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: decode get reply: %v", ErrDatabase, err)
	}
	// a missing path renders as an empty mapping
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return nil, nil
	}
	return v, nil
}

// Keys lists the sorted keys at a mapping path.
func (c *Client) Keys(keys ...string) ([]string, error) {
	if len(keys) == 0 {
		keys = []string{""}
	}
	args := append(append([]string{}, keys...), protocol.OpKeysLong)
	return c.queryLines(args)
}

// Delete removes a path entirely.
func (c *Client) Delete(keys ...string) error {
	if len(keys) == 0 {
		keys = []string{""}
	}
	args := append(append([]string{}, keys...), protocol.OpDelLong)
	_, err := c.Query(args)
	return err
}

// Append appends one or more values to the sequence (or string,
// promoted to a sequence) at path.
func (c *Client) Append(keys []string, values ...string) error {
	if len(keys) == 0 {
		keys = []string{""}
	}
	args := append(append([]string{}, keys...), protocol.OpAppend)
	args = append(args, values...)
	_, err := c.Query(args)
	return err
}

// Remove removes one or more values from the sequence at path.
func (c *Client) Remove(keys []string, values ...string) error {
	if len(keys) == 0 {
		keys = []string{""}
	}
	args := append(append([]string{}, keys...), protocol.OpRemove)
	args = append(args, values...)
	_, err := c.Query(args)
	return err
}

// Set replaces the subtree at path with value, JSON-encoded.
func (c *Client) Set(keys []string, value any) error {
	if len(keys) == 0 {
		keys = []string{""}
	}
	encoded, err := oj.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: value not JSON serializable: %v", ErrDatabase, err)
	}
	args := append(append([]string{}, keys...), protocol.OpSetLong, string(encoded))
	_, err = c.Query(args)
	return err
}

// Pop emits then removes the given path, returning the emitted value
// decoded as a plain string (Pop mirrors the wire protocol's raw-line
// output, not --edit's JSON form).
func (c *Client) Pop(keys ...string) (string, error) {
	if len(keys) == 0 {
		keys = []string{""}
	}
	args := append(append([]string{}, keys...), protocol.OpPopLong)
	return c.Query(args)
}

// Apply passes args through verbatim, for callers that need an
// operator this wrapper set doesn't name.
func (c *Client) Apply(args ...string) (string, error) {
	return c.Query(args)
}
