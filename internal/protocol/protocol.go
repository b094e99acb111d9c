// Package protocol holds the constants shared between the engine,
// server, client, and node: operator tokens, reserved tree paths,
// environment variable names, and default addresses.
package protocol

import "strings"

// Operator tokens recognized within an argument vector.
const (
	OpAssign    = "="
	OpAppend    = "+"
	OpRemove    = "-"
	OpSearch    = "@"
	OpKeysShort = "-k"
	OpKeysLong  = "--keys"
	OpEditShort = "-e"
	OpEditLong  = "--edit"
	OpSetShort  = "-s"
	OpSetLong   = "--set"
	OpDelShort  = "-d"
	OpDelLong   = "--del"
	OpPopShort  = "-p"
	OpPopLong   = "--pop"
)

// Leading flags, consumed off the front of an argument vector before
// operator dispatch begins.
const (
	FlagContextShort = "-c"
	FlagContextLong  = "--context"
	FlagStrictShort  = "-s"
	FlagStrictLong   = "--strict"
)

// Operators is the full set recognized during indexing/dispatch.
var Operators = map[string]bool{
	OpAssign: true, OpAppend: true, OpRemove: true, OpSearch: true,
	OpKeysShort: true, OpKeysLong: true,
	OpEditShort: true, OpEditLong: true,
	OpSetShort: true, OpSetLong: true,
	OpDelShort: true, OpDelLong: true,
	OpPopShort: true, OpPopLong: true,
}

// ReadOps is the subset of Operators that never mutate the tree, hence
// eligible for caching.
var ReadOps = map[string]bool{
	OpEditShort: true, OpEditLong: true,
	OpKeysShort: true, OpKeysLong: true,
	OpSearch: true,
}

// WriteOps is Operators minus ReadOps: any of these present in an
// argument vector disqualifies the query from caching and, on success,
// purges the whole cache.
var WriteOps = func() map[string]bool {
	m := make(map[string]bool, len(Operators))
	for op := range Operators {
		if !ReadOps[op] {
			m[op] = true
		}
	}
	return m
}()

// LeadingFlags is checked against the front of an argument vector;
// entries are stripped (and their effect applied) until the first token
// that isn't one of these.
var LeadingFlags = map[string]bool{
	FlagContextShort: true, FlagContextLong: true,
	FlagStrictShort: true, FlagStrictLong: true,
}

// NodeMarker prefixes a query that a node already forwarded once, so the
// receiving node executes it but never re-forwards it.
const NodeMarker = "--node"

// ConnectMarker requests that the receiving node add the following
// host/port to its pending-peer set without executing or forwarding
// anything.
const ConnectMarker = "--connect"

// Reserved path segments owned by the node layer; callers must not
// write under these.
const (
	InternalRoot = "internal"
	LocalRoot    = "internal/local"
	PeersRoot    = "internal/peers"
)

// Environment variables that supply defaults for CLI flags.
const (
	EnvHost     = "AP_HOST"
	EnvPort     = "AP_PORT"
	EnvConfig   = "AP_CNFG"
	EnvNodePort = "AP_LORT"
)

// Default network addresses and on-disk config path.
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 9999
	DefaultInternalPort = 9998
	DefaultConfigFile   = ".db.json"
)

// ErrorPrefix begins every rendered error line sent back to a client.
const ErrorPrefix = "error: "

// Segments splits a slash-joined reserved path (LocalRoot, PeersRoot)
// into the key tokens Engine.Action expects, one per map level.
func Segments(path string) []string {
	return strings.Split(path, "/")
}
