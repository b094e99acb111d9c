package engine

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shelfdb/shelf/internal/protocol"
)

// defaultCacheSize bounds the query cache when the caller doesn't pick
// one. Entries are small (rendered output strings keyed by an argument
// vector), so a generous default costs little.
const defaultCacheSize = 4096

// queryCache memoizes argument-vector -> rendered-output for
// side-effect-free reads. It is an LRU, not an unbounded map: a
// production server must not let an adversarial stream of distinct
// read queries grow memory without bound.
type queryCache struct {
	backing *lru.Cache[string, string]
}

func newQueryCache(size int) *queryCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		// size was validated above; fall back defensively rather than
		// propagate a constructor error through Engine.New.
		c, _ = lru.New[string, string](defaultCacheSize)
	}
	return &queryCache{backing: c}
}

func cacheKey(args []string) string {
	return strings.Join(args, "\x00")
}

func (c *queryCache) get(args []string) (string, bool) {
	return c.backing.Get(cacheKey(args))
}

func (c *queryCache) put(args []string, out string) {
	c.backing.Add(cacheKey(args), out)
}

func (c *queryCache) purge() {
	c.backing.Purge()
}

func (c *queryCache) Len() int {
	return c.backing.Len()
}

// eligible reports whether a successfully completed query may be
// cached: it must have added no context, dereferenced nothing, and its
// argument vector must contain no write operator token — independent
// of whether that operator actually changed anything.
func eligible(ctx *Context, args []string) bool {
	if ctx.AddContext || ctx.Dereferenced {
		return false
	}
	for _, a := range args {
		if protocol.WriteOps[a] {
			return false
		}
	}
	return true
}
