package engine

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
)

// flushInterval is the persister's tick cadence. Stateless engines skip
// the persister entirely.
const flushInterval = time.Second

// load reads the on-disk tree at path through fs. The file may be raw
// UTF-8 JSON or zlib-compressed UTF-8 JSON; decompression is tried
// first and silently falls back to plain JSON. A missing file yields an
// empty tree; anything else that fails to parse is ErrStorage, which is
// fatal at startup.
func load(fs billy.Filesystem, path string) (map[string]any, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorage, path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, path, err)
	}

	if decoded, derr := decompress(raw); derr == nil {
		raw = decoded
	}

	parsed, err := parseJSON(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse database on disk: %v", ErrStorage, err)
	}

	tree, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: database root is not an object", ErrStorage)
	}
	return tree, nil
}

func decompress(raw []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// save serializes tree as compact JSON and writes it zlib-compressed to
// path through fs. Writers always compress, matching the on-disk
// format's one writer convention.
func save(fs billy.Filesystem, path string, tree map[string]any) error {
	encoded, err := marshalCompact(tree)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(encoded); err != nil {
		_ = w.Close()
		return fmt.Errorf("compress tree: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("compress tree: %w", err)
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create db file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write db file: %w", err)
	}
	return nil
}

// persister is a dirty-flag-plus-ticker background writer: queries flag
// the tree dirty via RequestFlush, and the coalescing loop writes at
// most once per tick, batching any number of writes within an interval
// into a single disk flush.
type persister struct {
	engine *Engine

	mu      sync.Mutex
	dirty   bool
	tick    *time.Ticker
	stopCh  chan struct{}
	stopped bool
}

func newPersister(e *Engine) *persister {
	return &persister{engine: e, stopCh: make(chan struct{})}
}

// Start begins the coalescing goroutine. Idempotent.
func (p *persister) Start(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tick != nil {
		return
	}
	p.tick = time.NewTicker(interval)
	go p.loop()
}

func (p *persister) loop() {
	for {
		select {
		case <-p.tick.C:
			p.mu.Lock()
			if !p.dirty {
				p.mu.Unlock()
				continue
			}
			p.dirty = false
			p.mu.Unlock()

			if err := p.flush(); err != nil {
				log.Printf("shelf: persist: %v", err)
			}
		case <-p.stopCh:
			return
		}
	}
}

// RequestFlush marks the tree dirty; the next tick performs the actual
// write. Non-blocking.
func (p *persister) RequestFlush() {
	p.mu.Lock()
	p.dirty = true
	p.mu.Unlock()
}

// Close stops the coalescing loop and performs one final synchronous
// flush if a write was still pending.
func (p *persister) Close() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	wasDirty := p.dirty
	p.dirty = false
	if p.tick != nil {
		p.tick.Stop()
		close(p.stopCh)
	}
	p.mu.Unlock()

	if wasDirty {
		return p.flush()
	}
	return nil
}

// flush holds the engine mutex for the full marshal+compress+write, not
// just a map snapshot: a query mutating the tree mid-marshal would be a
// data race.
func (p *persister) flush() error {
	p.engine.mu.Lock()
	defer p.engine.mu.Unlock()
	return save(p.engine.fs, p.engine.path, p.engine.data)
}
