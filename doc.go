// Package datahub implements a Data Hub: a path-addressed resource tree
// that brokers pub/sub between producer clients (Inputs, Outputs) and
// consumer clients (Observations), with a synchronous push pipeline, a
// bounded buffer per Observation, and a read-side facade that classifies
// every outcome into a small status vocabulary rather than surfacing raw
// errors to callers.
//
// # Architecture
//
//	┌──────────────────────────────────┐
//	│              hub                 │  Client-facing producer/consumer
//	│  (session lifecycle, contract    │  API; converts contract violations
//	│   enforcement, resource caps)    │  into session termination
//	└───────────────┬───────────────────┘
//	                ↓ operates on
//	┌──────────────────────────────────┐
//	│              tree                │  Path-addressed resource tree:
//	│  (Namespace/Placeholder/Input/    │  role promotion preserves node
//	│   Output/Observation, handlers)   │  identity across promotions
//	└───────────────┬───────────────────┘
//	                ↓ driven by
//	┌──────────────────────────────────┐
//	│            resource               │  Push pipeline: timestamp
//	│  (Pipeline.Push, buffer eviction,  │  normalization, type gating,
//	│   ReadBufferJson, aggregates)      │  fan-out, derived cascading
//	└───────────────┬───────────────────┘
//	                ↓ read via
//	┌──────────────────────────────────┐
//	│             query                 │  Path-addressed read facade:
//	│  (current value, buffer reads,     │  classifies outcomes into the
//	│   Min/Max/Mean/StdDev)             │  errors.Status vocabulary
//	└──────────────────────────────────┘
//
// A client's writable subtree lives at /app/<clientID>/, resolved and
// cached by the namespace package. Observations are administrative:
// they are created and bound to source Inputs/Outputs outside the
// client-facing API, then read like any other resource.
//
// # Resource roles
//
// Every tree node starts as a Namespace (has children) or a Placeholder
// (a leaf with no assigned role yet, created when a path is first
// referenced). Push handlers attach only to promoted resources; the hub
// rejects a handler on a Placeholder. A node is promoted to Input,
// Output, or Observation on first use; the promotion mutates the
// existing node in place, so pointers taken before promotion (for
// instance an *Entry returned by tree.GetEntry) remain valid afterward.
// A promoted node's role can be demoted back to Namespace or removed,
// but never silently reassigned to a conflicting role — that is a
// Duplicate error, and the offending create leaves the node unchanged.
//
// # Push pipeline
//
// Every push runs the same fixed pipeline (see resource.Pipeline.Push):
// normalize a zero timestamp to wall-clock time, gate the sample's kind
// against the target's role (a mismatch on Input/Output is a client
// contract violation; Observations and Placeholders track the kind of
// whatever they last received), run the pass-through filter hook,
// commit the value, append to the buffer (Observations) with combined
// size- and time-window-based eviction, fan out to registered push
// handlers in registration order, and cascade to any Observation bound to
// this resource.
//
// # Buffer reads
//
// query.Facade.ReadBufferJson takes an immutable snapshot of the
// requested Observation's buffer synchronously, then hands the encode
// and sink-write step to a worker pool so the caller's goroutine is
// never blocked on I/O. Aggregates (Min/Max/Mean/StdDev) are computed
// the same way but return their result directly, since they need no
// asynchronous write.
//
// # Error handling
//
// Package errors defines the status vocabulary (NotFound, Duplicate,
// Unavailable, Unsupported, FormatError, Overflow, NoMemory) that every
// read and administrative write classifies its outcome into. Client
// contract violations are a separate concept: a *errors.ClientFault
// never becomes a status. The hub package converts one into an actual
// session termination and returns errors.ErrClientKilled to the caller
// instead.
//
// # Packages
//
//   - sample: immutable, kind-discriminated Data Sample value type
//   - tree: path-addressed resource tree with role promotion
//   - resource: the push pipeline, buffer reads, and windowed aggregates
//   - namespace: per-client subtree binding, LRU-cached by client ID
//   - query: path-addressed read facade over the tree
//   - hub: client-facing producer/consumer API and session lifecycle
//   - persistence: optional NATS JetStream KV-backed Observation store
//   - config: administrative configuration (YAML)
//   - metric: Prometheus metrics and the /metrics, /health HTTP server
//   - errors: status vocabulary and client-contract-violation type
//   - pkg/buffer, pkg/cache, pkg/worker, pkg/retry, pkg/timestamp:
//     generic infrastructure shared across the packages above
package datahub
