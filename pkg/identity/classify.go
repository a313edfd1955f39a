// Package identity classifies asset URLs and derives the stable local file
// identity that an external URL rehosts to.
//
// Identities are canonical path-like strings rooted at "/". The same external
// URL always maps to the same identity within a run, and distinct URLs map to
// distinct identities except where a deliberate host-specific collapsing rule
// applies (analytics tags, Google Fonts).
package identity

import "strings"

// IsExternal reports whether a URL points at an externally-hosted resource.
// External means an explicit http/https scheme or a protocol-relative "//"
// prefix. Root-relative and bare paths are local and must never enter the
// rewrite pipeline.
func IsExternal(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") ||
		strings.HasPrefix(rawURL, "https://") ||
		strings.HasPrefix(rawURL, "//")
}
