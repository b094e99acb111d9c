package engine

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Options{
		Filesystem: memfs.New(),
		Path:       "test.db.json",
		Stateless:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestAssignThenGet(t *testing.T) {
	e := newTestEngine(t)

	out, err := e.Action([]string{"pointer", "=", "value"})
	require.NoError(t, err)
	assert.Equal(t, "\n", out)

	out, err = e.Action([]string{"pointer"})
	require.NoError(t, err)
	assert.Equal(t, "value\n", out)
}

func TestSymlinkDereference(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"pointer", "=", "value"})
	require.NoError(t, err)
	_, err = e.Action([]string{"ref", "=", "!pointer"})
	require.NoError(t, err)

	out, err := e.Action([]string{"ref"})
	require.NoError(t, err)
	assert.Equal(t, "value\n", out)
}

func TestMultiSegmentDereference(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"pointer", "=", "one two"})
	require.NoError(t, err)
	_, err = e.Action([]string{"one", "two", "=", "value"})
	require.NoError(t, err)

	out, err := e.Action([]string{"!pointer"})
	require.NoError(t, err)
	assert.Equal(t, "value\n", out)
}

func TestAssignRemoveSingletonCollapse(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"colors", "=", "a", "b", "c"})
	require.NoError(t, err)

	out, err := e.Action([]string{"colors", "--edit"})
	require.NoError(t, err)
	assert.Contains(t, out, "a")

	_, err = e.Action([]string{"colors", "-", "b"})
	require.NoError(t, err)

	out, err = e.Action([]string{"colors"})
	require.NoError(t, err)
	assert.Equal(t, "a\nc\n", out)

	_, err = e.Action([]string{"colors", "-", "a"})
	require.NoError(t, err)

	out, err = e.Action([]string{"colors"})
	require.NoError(t, err)
	assert.Equal(t, "c\n", out)
}

func TestKeysAndEdit(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"dict", "-s", `{"a":"1","b":"2"}`})
	require.NoError(t, err)

	out, err := e.Action([]string{"dict", "--keys"})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out)

	out, err = e.Action([]string{"dict", "--edit"})
	require.NoError(t, err)
	assert.Contains(t, out, `"a"`)
	assert.Contains(t, out, `"b"`)
}

func TestAppendAndRemoveRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"xs", "=", "a", "b"})
	require.NoError(t, err)

	before, err := e.Action([]string{"xs", "--edit"})
	require.NoError(t, err)

	_, err = e.Action([]string{"xs", "+", "c"})
	require.NoError(t, err)
	_, err = e.Action([]string{"xs", "-", "c"})
	require.NoError(t, err)

	after, err := e.Action([]string{"xs", "--edit"})
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWriteOpNeverCached(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"k", "=", "v1"})
	require.NoError(t, err)
	assert.Equal(t, 0, e.CacheSize())
}

func TestReadCachedUntilWrite(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"k", "=", "v1"})
	require.NoError(t, err)

	_, err = e.Action([]string{"k"})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	_, err = e.Action([]string{"k", "=", "v2"})
	require.NoError(t, err)
	assert.Equal(t, 0, e.CacheSize())
}

func TestStrictModeMissingKey(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"-s", "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStrictMiss)
}

func TestNonStrictCreatesThenNormalizesAway(t *testing.T) {
	e := newTestEngine(t)

	out, err := e.Action([]string{"untouched", "deeper"})
	require.NoError(t, err)
	assert.Equal(t, "\n", out)

	keysOut, err := e.Action([]string{"--keys"})
	require.NoError(t, err)
	assert.NotContains(t, keysOut, "untouched")
}

func TestAppendToMappingIsError(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"dict", "-s", `{"a":"1"}`})
	require.NoError(t, err)

	_, err = e.Action([]string{"dict", "+", "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUsage)
}

func TestSearchEmitsPathAndValue(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"blue", "berry", "=", "octopus"})
	require.NoError(t, err)
	_, err = e.Action([]string{"blue", "cobbler", "=", "squid"})
	require.NoError(t, err)

	out, err := e.Action([]string{"@", "squid"})
	require.NoError(t, err)
	assert.Equal(t, "blue cobbler = squid\n", out)
}

func TestSearchInSequenceEmitsHoldingPath(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"list", "=", "haystack", "haystack", "needle"})
	require.NoError(t, err)
	_, err = e.Action([]string{"other", "=", "haystack", "haystack"})
	require.NoError(t, err)

	out, err := e.Action([]string{"@", "needle"})
	require.NoError(t, err)
	assert.Equal(t, "list = needle\n", out)
}

func TestSearchTopLevelScalar(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"value", "=", "needle"})
	require.NoError(t, err)

	out, err := e.Action([]string{"@", "needle"})
	require.NoError(t, err)
	assert.Equal(t, "value = needle\n", out)
}

func TestPopSequenceTail(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Action([]string{"xs", "=", "a", "b", "c"})
	require.NoError(t, err)

	out, err := e.Action([]string{"xs", "--pop"})
	require.NoError(t, err)
	assert.Equal(t, "c\n", out)

	out, err = e.Action([]string{"xs"})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out)
}
