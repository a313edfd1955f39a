package cssref

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/coolbeans/rehost/pkg/identity"
)

// ErrSkip lets a ReplaceFunc decline a token: the original reference is left
// byte-for-byte untouched and the scan continues.
var ErrSkip = errors.New("cssref: token skipped")

// ReplaceFunc maps a resolved external URL to its local replacement path.
// It may fetch the referenced asset, so replacements run concurrently.
type ReplaceFunc func(ctx context.Context, absoluteURL string) (string, error)

// edit is a pending replacement addressed by original byte offsets, so the
// unordered completion of concurrent replacers cannot corrupt the output.
type edit struct {
	start       int
	end         int
	replacement string
}

// Rewrite returns text with every external url(...) and @import reference
// replaced by the value produced by replace. Non-external references are
// first resolved against baseURL (the URL the stylesheet was fetched from)
// and re-classified; references that stay local, cannot be resolved, or are
// skipped by the replacer are left untouched.
//
// Replacements for bare (unquoted) tokens are emitted double-quoted, since a
// replacement path need not be a valid bare CSS token.
func Rewrite(ctx context.Context, text string, baseURL string, replace ReplaceFunc) (string, error) {
	tokens := scanTokens(text)
	if len(tokens) == 0 {
		return text, nil
	}

	normalizedBase := baseURL
	if strings.HasPrefix(normalizedBase, "//") {
		normalizedBase = "https:" + normalizedBase
	}
	base, err := url.Parse(normalizedBase)
	if err != nil {
		return "", fmt.Errorf("unparseable stylesheet URL %s: %w", baseURL, err)
	}

	var mu sync.Mutex
	edits := make([]edit, 0, len(tokens))
	group, groupCtx := errgroup.WithContext(ctx)

	for _, token := range tokens {
		token := token
		ref := strings.TrimSpace(token.raw)
		if shouldIgnoreToken(ref) {
			continue
		}

		resolved, ok := resolveReference(base, ref)
		if !ok || !identity.IsExternal(resolved) {
			continue
		}

		group.Go(func() error {
			replacement, err := replace(groupCtx, resolved)
			if errors.Is(err, ErrSkip) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to rewrite reference %s: %w", resolved, err)
			}

			if token.quote == bareToken {
				replacement = `"` + replacement + `"`
			}

			mu.Lock()
			edits = append(edits, edit{start: token.start, end: token.end, replacement: replacement})
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return "", err
	}

	return applyEdits(text, edits), nil
}

// resolveReference turns a reference token into an absolute URL.
//
//   - already-external tokens (scheme or protocol-relative) pass through;
//   - ./x and ../x resolve against the stylesheet URL with standard
//     relative-resolution semantics;
//   - anything else without a scheme takes the stylesheet URL's directory
//     prefix, concatenated.
func resolveReference(base *url.URL, ref string) (string, bool) {
	if identity.IsExternal(ref) {
		return ref, true
	}

	if strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") {
		resolved, err := base.Parse(ref)
		if err != nil {
			return "", false
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return "", false
		}
		return resolved.String(), true
	}

	directory := base.String()
	slash := strings.LastIndexByte(directory, '/')
	if slash < 0 {
		return "", false
	}
	return directory[:slash+1] + ref, true
}

// shouldIgnoreToken filters references that are never fetchable.
func shouldIgnoreToken(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return true
	}
	lowered := strings.ToLower(ref)
	return strings.HasPrefix(lowered, "data:") ||
		strings.HasPrefix(lowered, "javascript:") ||
		strings.HasPrefix(lowered, "about:")
}

// applyEdits splices the replacements into text in a single reverse-offset
// pass, so earlier edits never shift the spans of later ones.
func applyEdits(text string, edits []edit) string {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })

	out := []byte(text)
	for _, pending := range edits {
		rebuilt := make([]byte, 0, len(out)+len(pending.replacement)-(pending.end-pending.start))
		rebuilt = append(rebuilt, out[:pending.start]...)
		rebuilt = append(rebuilt, pending.replacement...)
		rebuilt = append(rebuilt, out[pending.end:]...)
		out = rebuilt
	}
	return string(out)
}
