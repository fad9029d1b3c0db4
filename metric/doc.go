// Package metric wraps a Prometheus registry with duplicate-registration
// protection and the hub's own instruments (push counts, buffer eviction,
// handler fan-out latency, namespace cache hit rate).
package metric
