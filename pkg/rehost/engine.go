// Package rehost rewrites external asset references in a document to local
// file identities, fetching each asset once and registering its content for
// a later persistence phase.
package rehost

import (
	"context"
	"strings"

	"github.com/coolbeans/rehost/pkg/cssref"
	"github.com/coolbeans/rehost/pkg/fetch"
	"github.com/coolbeans/rehost/pkg/identity"
	"github.com/coolbeans/rehost/pkg/registry"
)

// AssetKind selects how a fetched body is processed before registration.
type AssetKind int

const (
	// KindStylesheet fetches text and rewrites embedded url() references,
	// registering every nested external asset it discovers.
	KindStylesheet AssetKind = iota

	// KindScript fetches text verbatim. Script bodies are never rewritten.
	KindScript

	// KindAsset fetches raw bytes.
	KindAsset
)

// Element is a handle to one URL-bearing node of the host document. It
// decouples the engine from any particular document tree representation.
type Element interface {
	// Attr returns the value of the named attribute and whether it exists.
	Attr(name string) (string, bool)

	// SetAttr replaces (or adds) the named attribute.
	SetAttr(name string, value string)
}

// Options configures an Engine.
type Options struct {
	// Fetch configures the underlying memoized fetcher.
	Fetch fetch.Config
}

// Engine owns the per-run rewrite state: the fetch memoizer and the file
// registry. Construct one per build pass; separate passes (watch-mode
// rebuilds) must not share an Engine.
type Engine struct {
	memoizer *fetch.Memoizer
	files    *registry.Registry
}

// New creates an Engine with the given options.
func New(options Options) *Engine {
	return &Engine{
		memoizer: fetch.NewMemoizer(options.Fetch),
		files:    registry.NewRegistry(),
	}
}

// Files returns the engine's file registry.
func (engine *Engine) Files() *registry.Registry {
	return engine.files
}

// RewriteAttr rewrites one URL-bearing attribute. If the value is external
// it is replaced with the asset's local file identity and the asset's
// producer is registered; local values are left untouched. Returns the
// identity the attribute now carries, or "" if nothing was rewritten.
func (engine *Engine) RewriteAttr(ctx context.Context, element Element, attrName string, kind AssetKind) (string, error) {
	value, exists := element.Attr(attrName)
	if !exists {
		return "", nil
	}

	value = strings.TrimSpace(value)
	if !identity.IsExternal(value) {
		return "", nil
	}

	localPath, err := engine.rehostURL(ctx, value, kind)
	if err != nil {
		return "", err
	}

	element.SetAttr(attrName, localPath)
	return localPath, nil
}

// rehostURL maps sourceURL to its file identity, registers its producer if
// this is the first discovery, and kicks off the computation so fetches
// overlap and completion order follows discovery order.
func (engine *Engine) rehostURL(ctx context.Context, sourceURL string, kind AssetKind) (string, error) {
	identityKey, err := identity.FileIdentity(sourceURL)
	if err != nil {
		return "", err
	}

	engine.files.Register(identityKey, engine.producer(sourceURL, kind))
	if _, err := engine.files.Get(ctx, identityKey); err != nil {
		return "", err
	}
	return identityKey, nil
}

// producer builds the content computation for one asset.
func (engine *Engine) producer(sourceURL string, kind AssetKind) registry.ComputeFunc {
	switch kind {
	case KindStylesheet:
		return func(ctx context.Context) ([]byte, error) {
			text, err := engine.memoizer.FetchText(ctx, sourceURL).Wait(ctx)
			if err != nil {
				return nil, err
			}
			// Nested registrations outlive the rewrite scan, so they are
			// bound to the producer's context rather than the scan's.
			replace := func(_ context.Context, absoluteURL string) (string, error) {
				return engine.replaceNested(ctx, absoluteURL)
			}
			rewritten, err := cssref.Rewrite(ctx, text, sourceURL, replace)
			if err != nil {
				return nil, err
			}
			return []byte(rewritten), nil
		}

	case KindScript:
		return func(ctx context.Context) ([]byte, error) {
			text, err := engine.memoizer.FetchText(ctx, sourceURL).Wait(ctx)
			if err != nil {
				return nil, err
			}
			return []byte(text), nil
		}

	default:
		return func(ctx context.Context) ([]byte, error) {
			return engine.memoizer.FetchBuffer(ctx, sourceURL).Wait(ctx)
		}
	}
}

// replaceNested registers an asset discovered inside a stylesheet and
// returns its local identity. A nested reference whose identity carries a
// .css extension (an @import, or a url() pointing at another stylesheet) is
// itself rewritten recursively; everything else is fetched as raw bytes.
func (engine *Engine) replaceNested(ctx context.Context, absoluteURL string) (string, error) {
	identityKey, err := identity.FileIdentity(absoluteURL)
	if err != nil {
		return "", err
	}

	kind := KindAsset
	if strings.HasSuffix(identityKey, ".css") {
		kind = KindStylesheet
	}

	engine.files.Register(identityKey, engine.producer(absoluteURL, kind))
	if _, err := engine.files.Get(ctx, identityKey); err != nil {
		return "", err
	}
	return identityKey, nil
}

// Materialize resolves the full transitive closure of registered files and
// returns them in the order their computations started.
func (engine *Engine) Materialize(ctx context.Context) ([]registry.File, error) {
	return engine.files.MaterializeAll(ctx)
}
