package types

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ID prefixes per entity, so identifiers are self-describing in logs and
// exports.
const (
	PrefixSession    = "rs"
	PrefixItem       = "ri"
	PrefixSegment    = "seg"
	PrefixDependency = "dep"
	PrefixTheme      = "th"
	PrefixMilestone  = "ms"
)

// NewID returns a fresh random identifier with the given entity prefix,
// e.g. "rs-3fa84c21".
func NewID(prefix string) string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("id generation: %v", err))
	}
	return prefix + "-" + hex.EncodeToString(b[:])
}
