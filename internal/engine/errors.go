package engine

import (
	"errors"
	"fmt"
)

// Sentinel error kinds: callers compare with errors.Is, messages carry
// the specifics.
var (
	// ErrUsage covers malformed arguments and shape mismatches: appending
	// to a mapping, indexing through a non-mapping, subtracting an
	// absent element, malformed --set JSON, and similar.
	ErrUsage = errors.New("usage error")

	// ErrStrictMiss is returned when strict mode indexes through a
	// missing key instead of implicitly creating one.
	ErrStrictMiss = errors.New("strict: key not found")

	// ErrStorage covers an on-disk database file that exists but is
	// neither valid JSON nor valid zlib-compressed JSON. It is fatal at
	// startup.
	ErrStorage = errors.New("storage error")
)

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

func strictMissf(key string) error {
	return fmt.Errorf("%w: %s not found", ErrStrictMiss, key)
}
