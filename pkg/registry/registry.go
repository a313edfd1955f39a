// Package registry tracks every logical local file discovered during a
// rewrite pass and guarantees each one is computed exactly once, no matter
// how many references discover it.
package registry

import (
	"context"
	"fmt"
	"sync"
)

// ComputeFunc produces the content of one registered file. It runs at most
// once per identity and may register further identities while running.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// File is one resolved (identity, content) pair. Content is the raw bytes a
// persistence phase hashes and writes; the registry never computes the hash.
type File struct {
	Identity string
	Content  []byte
}

// Handle is the shared result of one started computation. All callers that
// ask for the same identity receive the same handle.
type Handle struct {
	identity string
	done     chan struct{}
	content  []byte
	err      error
}

// Identity returns the file identity this handle resolves.
func (handle *Handle) Identity() string {
	return handle.identity
}

// Wait blocks until the computation completes and returns its content.
func (handle *Handle) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-handle.done:
		return handle.content, handle.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// entry is one registered file: its producer, and its handle once started.
type entry struct {
	compute ComputeFunc
	handle  *Handle
}

// Registry is the per-run map from file identity to its content-producing
// computation. Registration is synchronous and idempotent; resolution is
// asynchronous and may interleave arbitrarily across identities.
//
// Construct a Registry at the start of a build pass and discard it at the
// end; separate runs get isolated state.
type Registry struct {
	mu         sync.Mutex
	entries    map[string]*entry
	order      []string  // identities in registration order
	started    []*Handle // handles in start order
	generation uint64    // bumped every time a computation starts
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Has reports whether identityKey is registered, pending or resolved.
func (registry *Registry) Has(identityKey string) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	_, exists := registry.entries[identityKey]
	return exists
}

// Register stores compute as the not-yet-started producer for identityKey.
// A second registration for the same identity is a no-op: the first producer
// wins and is never re-created.
func (registry *Registry) Register(identityKey string, compute ComputeFunc) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.entries[identityKey]; exists {
		return
	}
	registry.entries[identityKey] = &entry{compute: compute}
	registry.order = append(registry.order, identityKey)
}

// Get returns the shared handle for identityKey, lazily starting its
// computation on first access. Repeated calls return the same handle.
func (registry *Registry) Get(ctx context.Context, identityKey string) (*Handle, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registered, exists := registry.entries[identityKey]
	if !exists {
		return nil, fmt.Errorf("file identity %s is not registered", identityKey)
	}
	if registered.handle == nil {
		registry.startLocked(ctx, identityKey, registered)
	}
	return registered.handle, nil
}

// startLocked launches the entry's computation. Must hold registry.mu.
func (registry *Registry) startLocked(ctx context.Context, identityKey string, registered *entry) {
	handle := &Handle{identity: identityKey, done: make(chan struct{})}
	registered.handle = handle
	registry.started = append(registry.started, handle)
	registry.generation++

	compute := registered.compute
	go func() {
		handle.content, handle.err = compute(ctx)
		close(handle.done)
	}()
}

// MaterializeAll resolves every registered file, including files registered
// while earlier ones are still resolving, and returns them in the order their
// computations started.
//
// It loops a generation-tracked barrier: start everything known, wait on a
// snapshot of started handles, and go around again until the generation
// number stops moving between passes and nothing remains unstarted. The
// first computation failure aborts the materialization.
func (registry *Registry) MaterializeAll(ctx context.Context) ([]File, error) {
	for {
		registry.mu.Lock()
		for _, identityKey := range registry.order {
			if registered := registry.entries[identityKey]; registered.handle == nil {
				registry.startLocked(ctx, identityKey, registered)
			}
		}
		snapshot := make([]*Handle, len(registry.started))
		copy(snapshot, registry.started)
		generationBefore := registry.generation
		registry.mu.Unlock()

		for _, handle := range snapshot {
			if _, err := handle.Wait(ctx); err != nil {
				return nil, fmt.Errorf("failed to materialize %s: %w", handle.identity, err)
			}
		}

		registry.mu.Lock()
		unstarted := 0
		for _, registered := range registry.entries {
			if registered.handle == nil {
				unstarted++
			}
		}
		settled := unstarted == 0 && registry.generation == generationBefore
		registry.mu.Unlock()

		if settled {
			break
		}
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	files := make([]File, 0, len(registry.started))
	for _, handle := range registry.started {
		files = append(files, File{Identity: handle.identity, Content: handle.content})
	}
	return files, nil
}

// Len returns the number of registered identities.
func (registry *Registry) Len() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return len(registry.entries)
}
