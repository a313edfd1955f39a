package identity

import (
	"fmt"
	"net/url"
	"strings"
)

// GoogleTagManagerHost serves the gtag bootstrap script. Every request to it
// collapses to a single local file regardless of query string, since the
// resource is effectively singleton per host.
const GoogleTagManagerHost = "www.googletagmanager.com"

// GoogleFontsHost serves per-family stylesheet URLs whose query strings vary
// with weights and display hints that do not change the logical resource.
const GoogleFontsHost = "fonts.googleapis.com"

// FileIdentity derives the canonical local file identity for an external URL.
// It is deterministic and side-effect free.
//
// Mapping rules:
//   - www.googletagmanager.com       → /www.googletagmanager.com/gtag.js
//   - fonts.googleapis.com?family=F  → /fonts.googleapis.com/F.css, where F is
//     the family value truncated at the first ':'
//   - any other host                 → /<host><percent-decoded path>
//
// Known limitation: a multi-family fonts URL collapses to the first family
// only; the remaining families in the query are not registered separately.
func FileIdentity(rawURL string) (string, error) {
	normalized := rawURL
	if strings.HasPrefix(normalized, "//") {
		normalized = "https:" + normalized
	}

	parsed, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("unparseable asset URL %s: %w", rawURL, err)
	}

	switch parsed.Host {
	case GoogleTagManagerHost:
		return "/" + GoogleTagManagerHost + "/gtag.js", nil

	case GoogleFontsHost:
		family := parsed.Query().Get("family")
		if colon := strings.IndexByte(family, ':'); colon != -1 {
			family = family[:colon]
		}
		if family == "" {
			// A wrong identity here would silently collide with other
			// families, so fail loudly instead of guessing.
			return "", fmt.Errorf("google fonts URL %s has no usable family parameter", rawURL)
		}
		return "/" + GoogleFontsHost + "/" + family + ".css", nil
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("asset URL %s has no host", rawURL)
	}

	// url.Parse has already percent-decoded the path.
	return "/" + parsed.Host + parsed.Path, nil
}
