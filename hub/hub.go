// Package hub wires the resource tree, push pipeline, namespace binder,
// and query facade into the engine a client-facing transport drives. It
// owns no transport of its own — sessions, client identification, and
// client termination are external collaborators consumed through the
// interfaces declared here (§6.4 of the design this implements).
package hub

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	hubErrors "github.com/c360/datahub/errors"
	"github.com/c360/datahub/metric"
	"github.com/c360/datahub/namespace"
	"github.com/c360/datahub/pkg/timestamp"
	"github.com/c360/datahub/query"
	"github.com/c360/datahub/resource"
	"github.com/c360/datahub/sample"
	"github.com/c360/datahub/tree"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/time/rate"
)

// ClientIdentityProvider resolves a session handle to a stable client
// identity, once per session.
type ClientIdentityProvider interface {
	IdentifyClient(sessionHandle any) (clientID string, err error)
}

// ClientSink terminates a client session for a contract violation and logs
// at a given level. Both are external to the engine: the transport owns
// session lifecycle, the deployment owns where logs go.
type ClientSink interface {
	KillClient(sessionHandle any, reason string)
}

// Config bounds the engine's resource usage, per §6.3 of the design this
// implements.
type Config struct {
	MaxResourcesPerClient         int
	ObservationBufferMaxCount     int
	ObservationBufferMaxWindowSec float64
	DefaultUnits                  string

	// PushRateLimit and PushBurst bound the push rate a single client may
	// sustain, enforced per client ID. Zero disables rate limiting.
	PushRateLimit rate.Limit
	PushBurst     int
}

// Validate rejects a Config that would make the hub unusable. Reload runs
// this before swapping the config in.
func (c Config) Validate() error {
	if c.MaxResourcesPerClient < 0 {
		return fmt.Errorf("maxResourcesPerClient must be >= 0, got %d", c.MaxResourcesPerClient)
	}
	if c.ObservationBufferMaxCount < 0 {
		return fmt.Errorf("observationBufferMaxCount must be >= 0, got %d", c.ObservationBufferMaxCount)
	}
	if c.ObservationBufferMaxWindowSec < 0 {
		return fmt.Errorf("observationBufferMaxWindowSec must be >= 0, got %f", c.ObservationBufferMaxWindowSec)
	}
	if c.PushRateLimit < 0 {
		return fmt.Errorf("pushRateLimit must be >= 0, got %v", c.PushRateLimit)
	}
	if c.PushBurst < 0 {
		return fmt.Errorf("pushBurst must be >= 0, got %d", c.PushBurst)
	}
	return nil
}

// Hub is the engine: a resource tree plus the collaborators that drive
// pushes into it and read values back out.
type Hub struct {
	root     *tree.Entry
	binder   *namespace.Binder
	pipeline *resource.Pipeline
	query    *query.Facade
	metrics  *metric.MetricsRegistry
	identity ClientIdentityProvider
	sink     ClientSink
	log      *slog.Logger

	// cfg is held behind an atomic pointer so Reload can swap in a new
	// configuration without a lock around every read; every operation reads
	// a fresh snapshot via config() rather than caching one.
	cfg atomic.Pointer[Config]

	resourceCounts map[string]int // clientID -> resource count, for MaxResourcesPerClient

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter // clientID -> push rate limiter

	schemaMu    sync.Mutex
	jsonSchemas map[string]*gojsonschema.Schema // resource path -> compiled schema
}

// New builds a Hub. identity and sink are the external session
// collaborators (§6.4); registry may be nil to disable metrics; logger
// defaults to slog.Default() if nil.
func New(cfg Config, registry *metric.MetricsRegistry, identity ClientIdentityProvider, sink ClientSink, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	root := tree.NewRoot()
	binder, err := namespace.New(root, 256, registry)
	if err != nil {
		// namespace.New only fails on cache construction; 256 is always a
		// valid capacity, so this is unreachable in practice.
		logger.Error("namespace binder construction failed", "error", err)
		binder = nil
	}

	pipeline := resource.NewPipeline(resource.Limits{
		BufferMaxCount:  cfg.ObservationBufferMaxCount,
		BufferMaxWindow: cfg.ObservationBufferMaxWindowSec,
	}, registry)

	pool := resource.NewReadPool(4, 64, registry)

	h := &Hub{
		root:           root,
		binder:         binder,
		pipeline:       pipeline,
		query:          &query.Facade{Root: root, Pool: pool},
		metrics:        registry,
		identity:       identity,
		sink:           sink,
		log:            logger,
		resourceCounts: make(map[string]int),
		limiters:       make(map[string]*rate.Limiter),
		jsonSchemas:    make(map[string]*gojsonschema.Schema),
	}
	h.cfg.Store(&cfg)
	return h
}

// config returns the administrative configuration in effect right now.
func (h *Hub) config() Config {
	return *h.cfg.Load()
}

// Reload atomically replaces the engine's administrative configuration.
// Resource caps, default units, and push rate limiting pick up the new
// values on the very next call; an Observation's buffer sizing is fixed at
// the moment its buffer is created (see resource.Pipeline.SetLimits), so
// Reload only changes sizing for Observations created afterward.
func (h *Hub) Reload(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("hub.Reload: %w", err)
	}
	h.cfg.Store(&cfg)
	h.pipeline.SetLimits(resource.Limits{
		BufferMaxCount:  cfg.ObservationBufferMaxCount,
		BufferMaxWindow: cfg.ObservationBufferMaxWindowSec,
	})
	return nil
}

// limiterFor returns clientID's push rate limiter, creating one on first
// use. Callers must hold no lock; limiterFor takes its own.
func (h *Hub) limiterFor(clientID string, cfg Config) *rate.Limiter {
	h.limiterMu.Lock()
	defer h.limiterMu.Unlock()
	l, ok := h.limiters[clientID]
	if !ok {
		l = rate.NewLimiter(cfg.PushRateLimit, cfg.PushBurst)
		h.limiters[clientID] = l
	}
	return l
}

// Root returns the tree root, for administrative Observation creation and
// binding (see CreateObservation/BindObservation).
func (h *Hub) Root() *tree.Entry { return h.root }

// Query returns the read-side facade, usable with any absolute path
// (client-owned or administrative).
func (h *Hub) Query() *query.Facade { return h.query }

// ObservationEntries returns every Observation currently in the tree, for
// callers that periodically snapshot and persist Observation buffers.
func (h *Hub) ObservationEntries() []*tree.Entry {
	var out []*tree.Entry
	var walk func(e *tree.Entry)
	walk = func(e *tree.Entry) {
		if e.Role() == tree.RoleObservation {
			out = append(out, e)
		}
		for _, c := range e.Children() {
			walk(c)
		}
	}
	walk(h.root)
	return out
}

// namespaceFor resolves sessionHandle to the client's `/app/<id>/` entry,
// identifying the client on first use. Identity resolution failure is
// fatal for the session but never corrupts the tree.
func (h *Hub) namespaceFor(sessionHandle any) (*tree.Entry, string, error) {
	clientID, err := h.identity.IdentifyClient(sessionHandle)
	if err != nil {
		return nil, "", fmt.Errorf("hub: identify client: %w", err)
	}
	ns, err := h.binder.Bind(clientID)
	if err != nil {
		return nil, "", fmt.Errorf("hub: bind namespace: %w", err)
	}
	return ns, clientID, nil
}

// kill reports a contract violation by terminating sessionHandle's session
// and returns ErrClientKilled, matching the propagation policy: contract
// violations never surface as a status to the offender.
func (h *Hub) kill(sessionHandle any, reason string) error {
	h.log.Warn("client session killed", "reason", reason, "at_ms", timestamp.Now())
	if h.metrics != nil {
		h.metrics.CoreMetrics().RecordClientKilled(reason)
	}
	h.sink.KillClient(sessionHandle, reason)
	return hubErrors.ErrClientKilled
}

// checkResourceCap enforces MaxResourcesPerClient before a create call
// adds a new resource. It is a no-op when the cap is unconfigured.
func (h *Hub) checkResourceCap(clientID string, cfg Config) error {
	if cfg.MaxResourcesPerClient <= 0 {
		return nil
	}
	if h.resourceCounts[clientID] >= cfg.MaxResourcesPerClient {
		return hubErrors.ErrNoMemory
	}
	return nil
}

// unitsOrDefault returns units unchanged if the caller supplied one,
// otherwise the configured DefaultUnits (itself "" if unconfigured).
func unitsOrDefault(units string, cfg Config) string {
	if units != "" {
		return units
	}
	return cfg.DefaultUnits
}

// CreateInput creates or resolves an Input at path under sessionHandle's
// namespace. An empty units falls back to the configured DefaultUnits.
func (h *Hub) CreateInput(sessionHandle any, path string, dt sample.Kind, units string) (*tree.Entry, error) {
	cfg := h.config()
	ns, clientID, err := h.namespaceFor(sessionHandle)
	if err != nil {
		return nil, err
	}
	existing, _ := tree.FindEntry(ns, path)
	if existing == nil || !existing.Role().IsResource() {
		if err := h.checkResourceCap(clientID, cfg); err != nil {
			return nil, err
		}
	}
	e, err := tree.GetInput(ns, path, dt, unitsOrDefault(units, cfg))
	if err != nil {
		return nil, hubErrors.ErrDuplicate
	}
	if existing == nil {
		h.resourceCounts[clientID]++
	}
	h.refreshResourceCount()
	return e, nil
}

// CreateOutput creates or resolves an Output at path under sessionHandle's
// namespace. Outputs default to mandatory; use MarkOptional to relax that.
// An empty units falls back to the configured DefaultUnits.
func (h *Hub) CreateOutput(sessionHandle any, path string, dt sample.Kind, units string) (*tree.Entry, error) {
	cfg := h.config()
	ns, clientID, err := h.namespaceFor(sessionHandle)
	if err != nil {
		return nil, err
	}
	existing, _ := tree.FindEntry(ns, path)
	if existing == nil || !existing.Role().IsResource() {
		if err := h.checkResourceCap(clientID, cfg); err != nil {
			return nil, err
		}
	}
	e, err := tree.GetOutput(ns, path, dt, unitsOrDefault(units, cfg))
	if err != nil {
		return nil, hubErrors.ErrDuplicate
	}
	if existing == nil {
		h.resourceCounts[clientID]++
	}
	h.refreshResourceCount()
	return e, nil
}

// DeleteResource deletes the Input or Output at path under sessionHandle's
// namespace.
func (h *Hub) DeleteResource(sessionHandle any, path string) error {
	ns, clientID, err := h.namespaceFor(sessionHandle)
	if err != nil {
		return err
	}
	e, ok := tree.FindEntry(ns, path)
	if !ok {
		return hubErrors.ErrNotFound
	}
	if err := tree.DeleteIO(e); err != nil {
		return h.kill(sessionHandle, "deleteResource on non-input/output entry")
	}
	if h.resourceCounts[clientID] > 0 {
		h.resourceCounts[clientID]--
	}
	h.refreshResourceCount()
	return nil
}

// resolveForPush looks up path under the client's namespace, killing the
// session if it does not resolve to a resource.
func (h *Hub) resolveForPush(sessionHandle any, path string) (*tree.Entry, error) {
	ns, _, err := h.namespaceFor(sessionHandle)
	if err != nil {
		return nil, err
	}
	e, ok := tree.FindEntry(ns, path)
	if !ok || !e.Role().IsResource() {
		return nil, h.kill(sessionHandle, fmt.Sprintf("push to non-existent resource %q", path))
	}
	return e, nil
}

func (h *Hub) push(sessionHandle any, path string, kind sample.Kind, s sample.Sample) error {
	cfg := h.config()
	if cfg.PushRateLimit > 0 {
		clientID, err := h.identity.IdentifyClient(sessionHandle)
		if err != nil {
			return fmt.Errorf("hub: identify client: %w", err)
		}
		if !h.limiterFor(clientID, cfg).Allow() {
			return h.kill(sessionHandle, fmt.Sprintf("push rate limit exceeded on %q", path))
		}
	}

	e, err := h.resolveForPush(sessionHandle, path)
	if err != nil {
		return err
	}

	if kind == sample.KindJSON {
		if err := h.validateJSONSchema(e, s); err != nil {
			return h.kill(sessionHandle, err.Error())
		}
	}

	if err := h.pipeline.Push(e, kind, s); err != nil {
		if _, ok := err.(*hubErrors.ClientFault); ok {
			return h.kill(sessionHandle, err.Error())
		}
		return err
	}
	return nil
}

// validateJSONSchema checks s's payload against the schema registered for e
// by SetJsonSchema, if any. It is a no-op when e has no registered schema;
// this is best-effort structural validation layered on top of
// sample.NewJSON's mandatory NUL check, not a replacement for it.
func (h *Hub) validateJSONSchema(e *tree.Entry, s sample.Sample) error {
	h.schemaMu.Lock()
	schema, ok := h.jsonSchemas[e.Path()]
	h.schemaMu.Unlock()
	if !ok {
		return nil
	}
	text, err := s.JSON()
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return fmt.Errorf("hub: json schema validation on %q: %w", e.Path(), err)
	}
	if !result.Valid() {
		return fmt.Errorf("hub: json payload on %q violates its configured schema: %s", e.Path(), result.Errors()[0])
	}
	return nil
}

// PushTrigger pushes a Trigger sample to path under sessionHandle's
// namespace.
func (h *Hub) PushTrigger(sessionHandle any, path string, timestamp float64) error {
	return h.push(sessionHandle, path, sample.KindTrigger, sample.NewTrigger(timestamp))
}

// PushBoolean pushes a Boolean sample.
func (h *Hub) PushBoolean(sessionHandle any, path string, timestamp float64, v bool) error {
	return h.push(sessionHandle, path, sample.KindBoolean, sample.NewBoolean(timestamp, v))
}

// PushNumeric pushes a Numeric sample.
func (h *Hub) PushNumeric(sessionHandle any, path string, timestamp float64, v float64) error {
	return h.push(sessionHandle, path, sample.KindNumeric, sample.NewNumeric(timestamp, v))
}

// PushString pushes a String sample.
func (h *Hub) PushString(sessionHandle any, path string, timestamp float64, v string) error {
	return h.push(sessionHandle, path, sample.KindString, sample.NewString(timestamp, v))
}

// PushJson pushes a Json sample. A malformed payload (embedded NUL) is a
// contract violation.
func (h *Hub) PushJson(sessionHandle any, path string, timestamp float64, text string) error {
	s, err := sample.NewJSON(timestamp, text)
	if err != nil {
		return h.kill(sessionHandle, err.Error())
	}
	return h.push(sessionHandle, path, sample.KindJSON, s)
}

// SetJsonSchema registers a JSON Schema that subsequent pushes to the
// Json-kind Input/Output at path are checked against, beyond the mandatory
// NUL-byte check sample.NewJSON always performs. A malformed schema is
// reported as FormatError rather than compiled partially. Re-registering a
// path replaces its prior schema.
func (h *Hub) SetJsonSchema(sessionHandle any, path string, schemaJSON string) error {
	e, err := h.resolveForPush(sessionHandle, path)
	if err != nil {
		return err
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return hubErrors.ErrFormatError
	}
	h.schemaMu.Lock()
	h.jsonSchemas[e.Path()] = schema
	h.schemaMu.Unlock()
	return nil
}

// AddPushHandler registers callback on the Input/Output at path, firing on
// pushes matching expectedKind.
func (h *Hub) AddPushHandler(sessionHandle any, path string, expectedKind sample.Kind, callback func(e *tree.Entry, s sample.Sample)) (tree.HandlerRef, error) {
	e, err := h.resolveForPush(sessionHandle, path)
	if err != nil {
		return tree.HandlerRef{}, err
	}
	return e.AddPushHandler(expectedKind, callback), nil
}

// RemovePushHandler unregisters a handler added with AddPushHandler.
func (h *Hub) RemovePushHandler(ref tree.HandlerRef) {
	tree.RemovePushHandler(ref)
}

// MarkOptional relaxes an Output's mandatory flag. It is a contract
// violation to call it on any other role.
func (h *Hub) MarkOptional(sessionHandle any, path string) error {
	e, err := h.resolveForPush(sessionHandle, path)
	if err != nil {
		return err
	}
	if e.Role() != tree.RoleOutput {
		return h.kill(sessionHandle, fmt.Sprintf("markOptional on non-output entry %q", path))
	}
	e.MarkOptional()
	return nil
}

// SetBooleanDefault assigns an Output's or Input's default value. Setting
// a default with a kind that does not match the entry's dataType is a
// contract violation; the default is otherwise write-once.
func (h *Hub) SetBooleanDefault(sessionHandle any, path string, v bool) error {
	return h.setDefault(sessionHandle, path, sample.KindBoolean, sample.NewBoolean(0, v))
}

// SetNumericDefault assigns a Numeric default.
func (h *Hub) SetNumericDefault(sessionHandle any, path string, v float64) error {
	return h.setDefault(sessionHandle, path, sample.KindNumeric, sample.NewNumeric(0, v))
}

// SetStringDefault assigns a String default.
func (h *Hub) SetStringDefault(sessionHandle any, path string, v string) error {
	return h.setDefault(sessionHandle, path, sample.KindString, sample.NewString(0, v))
}

func (h *Hub) setDefault(sessionHandle any, path string, kind sample.Kind, s sample.Sample) error {
	e, err := h.resolveForPush(sessionHandle, path)
	if err != nil {
		return err
	}
	if e.DataType() != kind {
		return h.kill(sessionHandle, fmt.Sprintf("setDefault kind mismatch on %q", path))
	}
	_ = e.SetDefault(s) // write-once: a second call is a documented no-op
	return nil
}

// GetTimestamp, GetBoolean, GetNumeric, GetString, and GetJson read a
// resource under the client's namespace via the client IO facade: unlike
// the query facade, a kind mismatch here terminates the session rather
// than returning FormatError (§8 scenario 6).
func (h *Hub) GetTimestamp(sessionHandle any, path string) (float64, error) {
	e, err := h.resolveForPush(sessionHandle, path)
	if err != nil {
		return 0, err
	}
	v, ok := e.CurrentValue()
	if !ok {
		return 0, hubErrors.ErrUnavailable
	}
	return v.Timestamp(), nil
}

// GetBoolean reads a client-owned Boolean resource.
func (h *Hub) GetBoolean(sessionHandle any, path string) (bool, error) {
	e, err := h.resolveForPush(sessionHandle, path)
	if err != nil {
		return false, err
	}
	v, ok := e.CurrentValue()
	if !ok {
		return false, hubErrors.ErrUnavailable
	}
	b, err := v.Bool()
	if err != nil {
		return false, h.kill(sessionHandle, fmt.Sprintf("getBoolean on non-boolean resource %q", path))
	}
	return b, nil
}

// GetNumeric reads a client-owned Numeric resource.
func (h *Hub) GetNumeric(sessionHandle any, path string) (float64, error) {
	e, err := h.resolveForPush(sessionHandle, path)
	if err != nil {
		return 0, err
	}
	v, ok := e.CurrentValue()
	if !ok {
		return 0, hubErrors.ErrUnavailable
	}
	n, err := v.Numeric()
	if err != nil {
		return 0, h.kill(sessionHandle, fmt.Sprintf("getNumeric on non-numeric resource %q", path))
	}
	return n, nil
}

// GetString reads a client-owned String resource.
func (h *Hub) GetString(sessionHandle any, path string) (string, error) {
	e, err := h.resolveForPush(sessionHandle, path)
	if err != nil {
		return "", err
	}
	v, ok := e.CurrentValue()
	if !ok {
		return "", hubErrors.ErrUnavailable
	}
	s, err := v.Text()
	if err != nil {
		return "", h.kill(sessionHandle, fmt.Sprintf("getString on non-string resource %q", path))
	}
	return s, nil
}

// GetJson reads a client-owned resource's current value, projected to
// JSON regardless of kind.
func (h *Hub) GetJson(sessionHandle any, path string) (string, error) {
	e, err := h.resolveForPush(sessionHandle, path)
	if err != nil {
		return "", err
	}
	v, ok := e.CurrentValue()
	if !ok {
		return "", hubErrors.ErrUnavailable
	}
	return v.Project()
}

// AddPollHandler is reserved for a future polling-handler API and
// currently reports StatusUnsupported rather than a partial
// implementation, per the design's explicit decision to keep the surface
// stable while the feature is unimplemented.
func (h *Hub) AddPollHandler(any, string, sample.Kind) error {
	return hubErrors.ErrUnsupported
}

// EndSession discards sessionHandle's cached namespace binding. The
// client's `/app/<id>/` subtree is not deleted.
func (h *Hub) EndSession(sessionHandle any) {
	clientID, err := h.identity.IdentifyClient(sessionHandle)
	if err != nil {
		return
	}
	h.binder.EndSession(clientID)

	h.limiterMu.Lock()
	delete(h.limiters, clientID)
	h.limiterMu.Unlock()
}

// CreateObservation administratively creates an Observation at an absolute
// path. Observations are not created by clients; this is called from the
// administrative surface the hub's deployment owns. An Observation that
// didn't already have units set picks up the configured DefaultUnits.
func (h *Hub) CreateObservation(path string) (*tree.Entry, error) {
	e, err := tree.GetEntry(h.root, path)
	if err != nil {
		return nil, fmt.Errorf("hub.CreateObservation: %w", err)
	}
	if err := tree.PromoteObservation(e); err != nil {
		return nil, hubErrors.ErrDuplicate
	}
	e.SetUnitsIfEmpty(h.config().DefaultUnits)
	h.refreshResourceCount()
	return e, nil
}

// BindObservation administratively binds an Observation to derive from
// source: every sample pushed to source is also pushed to obs.
func (h *Hub) BindObservation(source, obs *tree.Entry) error {
	return tree.BindObservation(source, obs)
}

func (h *Hub) refreshResourceCount() {
	if h.metrics == nil {
		return
	}
	counts := map[tree.Role]int{}
	var walk func(e *tree.Entry)
	walk = func(e *tree.Entry) {
		if e.Role().IsResource() {
			counts[e.Role()]++
		}
		for _, c := range e.Children() {
			walk(c)
		}
	}
	walk(h.root)
	for role, n := range counts {
		h.metrics.CoreMetrics().SetResourceCount(role.String(), n)
	}
}
