package tree

import (
	"fmt"

	"github.com/c360/datahub/pkg/buffer"
	"github.com/c360/datahub/sample"
	"github.com/google/uuid"
)

// pushHandler is one registered callback on an Input or Output entry.
type pushHandler struct {
	id           uuid.UUID
	expectedKind sample.Kind
	callback     func(e *Entry, s sample.Sample)
	removed      bool
}

// HandlerRef is the opaque reference returned by AddPushHandler, used to
// unregister it later.
type HandlerRef struct {
	entry *Entry
	id    uuid.UUID
}

// AddPushHandler registers callback to fire on pushes to e matching
// expectedKind. e must have role Input or Output; handlers on Observations
// are bound administratively via BindObservation instead.
func (e *Entry) AddPushHandler(expectedKind sample.Kind, callback func(e *Entry, s sample.Sample)) HandlerRef {
	id := uuid.New()
	h := &pushHandler{id: id, expectedKind: expectedKind, callback: callback}
	e.handlers = append(e.handlers, h)
	return HandlerRef{entry: e, id: id}
}

// RemovePushHandler unlinks the handler ref refers to. An invocation
// already in flight for that handler completes; subsequent dispatches skip
// it. If the removal happens during an active fan-out on the same entry,
// the actual list compaction is deferred until that fan-out completes.
func RemovePushHandler(ref HandlerRef) {
	e := ref.entry
	for _, h := range e.handlers {
		if h.id == ref.id {
			h.removed = true
			break
		}
	}
	if e.dispatchDepth == 0 {
		e.compactHandlers()
	}
}

func (e *Entry) compactHandlers() {
	if len(e.handlers) == 0 {
		return
	}
	kept := e.handlers[:0]
	for _, h := range e.handlers {
		if !h.removed {
			kept = append(kept, h)
		}
	}
	e.handlers = kept
}

// HandlerCount returns the number of currently active (non-removed) push
// handlers on e.
func (e *Entry) HandlerCount() int {
	n := 0
	for _, h := range e.handlers {
		if !h.removed {
			n++
		}
	}
	return n
}

// FanOut invokes, in insertion order, every active handler on e whose
// expectedKind matches incomingKind (a Trigger-kind handler matches any
// push, since its purpose is generic notification rather than a typed
// payload). Handler additions and removals made by a callback during
// fan-out are applied once fan-out completes.
func (e *Entry) FanOut(incomingKind sample.Kind, s sample.Sample) {
	e.dispatchDepth++
	defer func() {
		e.dispatchDepth--
		if e.dispatchDepth == 0 {
			e.compactHandlers()
		}
	}()

	// Snapshot the active handler list so additions and removals made
	// during fan-out do not affect this dispatch.
	snapshot := make([]*pushHandler, 0, len(e.handlers))
	for _, h := range e.handlers {
		if !h.removed {
			snapshot = append(snapshot, h)
		}
	}

	for _, h := range snapshot {
		if h.expectedKind == incomingKind || h.expectedKind == sample.KindTrigger {
			h.callback(e, s)
		}
	}
}

// BindObservation registers obs to receive a copy of every sample pushed
// to source. obs must have role Observation.
func BindObservation(source, obs *Entry) error {
	if obs.role != RoleObservation {
		return fmt.Errorf("tree.BindObservation: target %q is not an observation", obs.Path())
	}
	source.observers = append(source.observers, obs)
	return nil
}

// Observers returns the observations currently bound to e.
func (e *Entry) Observers() []*Entry {
	out := make([]*Entry, len(e.observers))
	copy(out, e.observers)
	return out
}

// SetDataType sets the Entry's dynamic data type. Observations and
// Placeholders track the kind of their most recent push; Inputs and
// Outputs have a fixed dataType assigned at creation and must not call
// this.
func (e *Entry) SetDataType(k sample.Kind) {
	e.dataType = k
}

// CurrentValue returns the Entry's current sample. If none has been pushed
// but a default is set, the default is returned (with its timestamp
// verbatim, 0.0 by contract). ok is false only when neither is present.
func (e *Entry) CurrentValue() (sample.Sample, bool) {
	if e.currentValue != nil {
		return *e.currentValue, true
	}
	if e.defaultSet {
		return *e.defaultValue, true
	}
	return sample.Sample{}, false
}

// Commit atomically replaces the Entry's current value. It is the final
// step of the push pipeline's commit stage, applied after type gating and
// default substitution.
func (e *Entry) Commit(s sample.Sample) {
	v := s
	e.currentValue = &v
}

// ErrDefaultAlreadySet is returned by SetDefault on an entry whose default
// has already been assigned; by contract this is a silent write-once, not
// a hard failure, so callers typically ignore it. It is exposed for
// callers that want to distinguish the no-op.
var ErrDefaultAlreadySet = fmt.Errorf("tree: default value already set")

// SetDefault assigns e's default value. It is write-once: a second call is
// a no-op that reports ErrDefaultAlreadySet rather than mutating state.
func (e *Entry) SetDefault(s sample.Sample) error {
	if e.defaultSet {
		return ErrDefaultAlreadySet
	}
	v := s
	e.defaultValue = &v
	e.defaultSet = true
	return nil
}

// Buffer returns the Entry's history buffer, or nil if it has none
// (non-Observations, or an Observation not yet configured with one).
func (e *Entry) Buffer() buffer.Buffer[sample.Sample] {
	return e.buf
}

// BufferWindowSec returns the configured time-window cap for e's buffer, in
// seconds, or 0 if unconfigured.
func (e *Entry) BufferWindowSec() float64 {
	return e.bufWindowSec
}

// SetBuffer installs an Observation's history buffer and its time-window
// cap. It is idempotent: a second call is a no-op if a buffer is already
// installed.
func (e *Entry) SetBuffer(buf buffer.Buffer[sample.Sample], windowSec float64) {
	if e.buf != nil {
		return
	}
	e.buf = buf
	e.bufWindowSec = windowSec
}
