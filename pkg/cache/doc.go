// Package cache's LRU implementation backs the namespace package's binding
// of a client identity to its resolved `/app/<id>/` entry, so a client that
// pushes repeatedly does not re-walk the resource tree on every call.
//
//	binding, err := cache.NewLRU[*tree.Entry](1024,
//		cache.WithMetrics[*tree.Entry](registry, "namespace_binding"),
//	)
package cache
