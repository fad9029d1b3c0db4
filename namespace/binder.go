// Package namespace implements Client Namespace binding: resolving an
// opaque client identity to its `/app/<client-id>/` entry and caching that
// resolution for the lifetime of the client's session, so a client that
// pushes repeatedly does not re-walk the resource tree on every call.
package namespace

import (
	"fmt"

	"github.com/c360/datahub/metric"
	"github.com/c360/datahub/pkg/cache"
	"github.com/c360/datahub/tree"
)

// IdentityProvider resolves an opaque session handle to a stable client
// identity. It is consumed once per session; the result is cached by
// Binder for the rest of that session's lifetime. This is an external
// collaborator — the IPC transport that owns session handles is out of
// scope for this package.
type IdentityProvider interface {
	IdentifyClient(sessionHandle any) (clientID string, err error)
}

// Binder resolves and caches the mapping from a client identity to its
// `/app/<client-id>/` subtree entry.
type Binder struct {
	root    *tree.Entry
	cache   cache.Cache[*tree.Entry]
	metrics *metric.MetricsRegistry
}

// New creates a Binder rooted at root, caching up to maxSessions bindings.
// A zero or negative maxSessions falls back to a small default, since an
// unbounded binding cache would defeat the per-client resource caps this
// package exists to make cheap to enforce.
func New(root *tree.Entry, maxSessions int, registry *metric.MetricsRegistry) (*Binder, error) {
	if maxSessions <= 0 {
		maxSessions = 256
	}

	opts := []cache.Option[*tree.Entry]{}
	if registry != nil {
		opts = append(opts, cache.WithMetrics[*tree.Entry](registry, "namespace_binding"))
	}
	c, err := cache.NewLRU[*tree.Entry](maxSessions, opts...)
	if err != nil {
		return nil, fmt.Errorf("namespace.New: %w", err)
	}

	return &Binder{root: root, cache: c, metrics: registry}, nil
}

// Bind returns the `/app/<clientID>/` entry, creating missing namespace
// nodes on first use and caching the result for subsequent calls with the
// same clientID.
func (b *Binder) Bind(clientID string) (*tree.Entry, error) {
	if clientID == "" {
		return nil, fmt.Errorf("namespace.Bind: empty client id")
	}

	if e, ok := b.cache.Get(clientID); ok {
		if b.metrics != nil {
			b.metrics.CoreMetrics().RecordNamespaceCacheHit()
		}
		return e, nil
	}

	if b.metrics != nil {
		b.metrics.CoreMetrics().RecordNamespaceCacheMiss()
	}

	e, err := tree.GetEntry(b.root, "/app/"+clientID)
	if err != nil {
		return nil, fmt.Errorf("namespace.Bind: %w", err)
	}
	if _, err := b.cache.Set(clientID, e); err != nil {
		return nil, fmt.Errorf("namespace.Bind: caching binding: %w", err)
	}
	return e, nil
}

// EndSession discards the cached binding for clientID. The subtree itself
// is not deleted — clients may reconnect and resolve the same path again.
func (b *Binder) EndSession(clientID string) {
	_, _ = b.cache.Delete(clientID)
}
