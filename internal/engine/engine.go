// Package engine implements the in-memory tree, the operator
// interpreter, structural normalization, and the deferred persistence
// loop described for the query engine: a single mutex serializes every
// query, and a background worker coalesces writes to disk.
package engine

import (
	"sync"

	"github.com/go-git/go-billy/v5"

	"github.com/shelfdb/shelf/internal/value"
)

// Options configures a new Engine.
type Options struct {
	// Filesystem is the seam between the engine and disk: osfs in
	// production, memfs in tests.
	Filesystem billy.Filesystem
	// Path is the database file's path within Filesystem.
	Path string
	// Stateless disables the background persister entirely.
	Stateless bool
	// CacheSize bounds the query cache; zero picks a default.
	CacheSize int
}

// Engine owns one tree and serializes every query against it behind a
// single mutex: exactly one query executes at a time, no matter how
// many connections are blocked on it.
type Engine struct {
	mu   sync.Mutex
	data map[string]any

	fs        billy.Filesystem
	path      string
	stateless bool

	cache     *queryCache
	persister *persister
}

// New loads the tree at opts.Path (creating an empty one if absent) and
// starts the background persister unless opts.Stateless is set.
func New(opts Options) (*Engine, error) {
	tree, err := load(opts.Filesystem, opts.Path)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		data:      tree,
		fs:        opts.Filesystem,
		path:      opts.Path,
		stateless: opts.Stateless,
		cache:     newQueryCache(opts.CacheSize),
	}

	if !opts.Stateless {
		e.persister = newPersister(e)
		e.persister.Start(flushInterval)
	}

	return e, nil
}

// Close stops the persister, flushing one final time if a write was
// still pending.
func (e *Engine) Close() error {
	if e.persister != nil {
		return e.persister.Close()
	}
	return nil
}

// CacheSize reports the number of cached entries, used by the server's
// per-query log line.
func (e *Engine) CacheSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Len()
}

// Action runs one query. rawArgs is the full argument vector, including
// any leading -c/--context or -s/--strict flags. On success it returns
// the rendered reply (already newline-joined and trailing-newlined). On
// failure it returns ErrUsage or ErrStrictMiss wrapped with detail; the
// caller renders that as an "error: " line.
func (e *Engine) Action(rawArgs []string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, args := e.parseLeadingFlags(rawArgs)

	if !ctx.AddContext && !ctx.Strict {
		if out, ok := e.cache.get(args); ok {
			e.postAction(ctx)
			return out, nil
		}
	}

	err := e.action(ctx, e.data, args)
	out := render(ctx.Output)
	e.postAction(ctx)

	if err != nil {
		return "", err
	}

	if eligible(ctx, args) {
		e.cache.put(args, out)
	}
	return out, nil
}

// parseLeadingFlags strips -c/--context and -s/--strict off the front
// of rawArgs, recording their effect on a fresh Context, and returns the
// remaining argument vector that dispatch and the cache key both use.
func (e *Engine) parseLeadingFlags(rawArgs []string) (*Context, []string) {
	ctx := newContext()
	args := rawArgs

	for len(args) > 0 {
		switch args[0] {
		case "-c", "--context":
			ctx.AddContext = true
		case "-s", "--strict":
			ctx.Strict = true
		default:
			return ctx, args
		}
		args = args[1:]
	}
	return ctx, args
}

// postAction normalizes the whole tree and, if the query wrote to it,
// purges the cache and flags the persister. This runs unconditionally,
// even on a cache hit or a failed query: a hit serves already-rendered
// output, so there is nothing further to special-case.
func (e *Engine) postAction(ctx *Context) {
	value.Normalize(e.data)

	if ctx.WriteNeeded {
		e.cache.purge()
		if e.persister != nil {
			e.persister.RequestFlush()
		}
	}
}

// Snapshot returns the engine's tree for the node layer's merge-on-join
// and peer-map rendering. Callers must not mutate the result; it is
// returned under the engine mutex but the backing map is shared.
func (e *Engine) Snapshot() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data
}

// Replace overwrites the whole tree with tree, except that any
// top-level key named in preserve keeps its current value. Used by the
// node layer's merge-on-join to adopt a peer's tree while keeping the
// local internal/ subtree.
func (e *Engine) Replace(tree map[string]any, preserve ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := make(map[string]any, len(preserve))
	for _, k := range preserve {
		if v, ok := e.data[k]; ok {
			kept[k] = v
		}
	}

	for k := range e.data {
		delete(e.data, k)
	}
	for k, v := range tree {
		e.data[k] = v
	}
	for k, v := range kept {
		e.data[k] = v
	}

	value.Normalize(e.data)
	e.cache.purge()
	if e.persister != nil {
		e.persister.RequestFlush()
	}
}
