// Package resource implements the push pipeline: the sequence of timestamp
// normalisation, type gating, filter substitution, atomic commit, buffer
// append, handler fan-out, and derived-observation cascading that a pushed
// sample runs through before it is visible to readers. It operates on
// *tree.Entry values; the tree package owns the data, this package owns the
// algorithm.
package resource

import (
	"fmt"
	"sync/atomic"
	"time"

	hubErrors "github.com/c360/datahub/errors"
	"github.com/c360/datahub/metric"
	"github.com/c360/datahub/pkg/buffer"
	"github.com/c360/datahub/sample"
	"github.com/c360/datahub/tree"
)

// Clock supplies the wall-clock source used to stamp samples pushed with
// timestamp 0. Production code uses SystemClock (wall-clock time); tests
// substitute a fixed or scripted clock.
type Clock interface {
	NowSeconds() float64
}

// SystemClock is the default Clock, backed by time.Now.
type SystemClock struct{}

// NowSeconds returns the current wall-clock time as seconds since the
// epoch.
func (SystemClock) NowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// FilterFunc is the Observation filter-substitution hook (push pipeline
// step 3). It may replace the incoming sample (e.g. with dead-band or
// change-detection logic) before commit. The reference implementation,
// PassThroughFilter, is the policy this spec mandates by default.
type FilterFunc func(e *tree.Entry, incoming sample.Sample) sample.Sample

// PassThroughFilter is the reference Observation filter: it returns the
// incoming sample unchanged.
func PassThroughFilter(_ *tree.Entry, incoming sample.Sample) sample.Sample {
	return incoming
}

// Limits bounds a newly-configured Observation buffer.
type Limits struct {
	BufferMaxCount  int
	BufferMaxWindow float64 // seconds; 0 means no time-window cap
}

// Pipeline carries the collaborators and configuration the push algorithm
// needs: a clock, an optional Observation filter hook, buffer sizing
// limits, and an optional metrics registry. Limits is held behind an
// atomic pointer so SetLimits can be swapped in from a config reload
// without a lock around every push; a swap only affects Observations
// whose buffer hasn't been created yet (see appendToBuffer).
type Pipeline struct {
	Clock   Clock
	Filter  FilterFunc
	Metrics *metric.MetricsRegistry

	limits atomic.Pointer[Limits]
}

// NewPipeline builds a Pipeline with a SystemClock and pass-through filter.
// Callers override fields as needed (tests substitute Clock; admin config
// sets Limits via SetLimits).
func NewPipeline(limits Limits, registry *metric.MetricsRegistry) *Pipeline {
	p := &Pipeline{
		Clock:   SystemClock{},
		Filter:  PassThroughFilter,
		Metrics: registry,
	}
	p.SetLimits(limits)
	return p
}

// SetLimits atomically replaces the buffer sizing limits applied to
// Observations whose buffer is created after this call.
func (p *Pipeline) SetLimits(limits Limits) {
	p.limits.Store(&limits)
}

// CurrentLimits returns the limits in effect right now.
func (p *Pipeline) CurrentLimits() Limits {
	return *p.limits.Load()
}

// Push runs entry through the full push pipeline: timestamp normalisation,
// type gating, filter substitution (Observations only), commit, buffer
// append with eviction, handler fan-out, and cascading to any bound
// observations. incomingKind is the kind the caller is pushing as: for
// Input/Output it must equal entry.DataType(), or the push is a
// client-contract violation (*errors.ClientFault) and the tree is left
// unmodified.
func (p *Pipeline) Push(entry *tree.Entry, incomingKind sample.Kind, s sample.Sample) error {
	// Step 1: timestamp normalisation.
	if s.Timestamp() == 0 {
		s = s.WithTimestamp(p.Clock.NowSeconds())
	}

	// Step 2: type gate.
	switch entry.Role() {
	case tree.RoleInput, tree.RoleOutput:
		if incomingKind != entry.DataType() {
			if p.Metrics != nil {
				p.Metrics.CoreMetrics().RecordPushError("format_error")
			}
			return hubErrors.Fault("Pipeline", "Push",
				fmt.Sprintf("push of kind %s to %s entry %q of type %s", incomingKind, entry.Role(), entry.Path(), entry.DataType()))
		}
	case tree.RoleObservation, tree.RolePlaceholder:
		entry.SetDataType(incomingKind)
	default:
		if p.Metrics != nil {
			p.Metrics.CoreMetrics().RecordPushError("unsupported")
		}
		return hubErrors.Fault("Pipeline", "Push", fmt.Sprintf("entry %q has no resource role", entry.Path()))
	}

	// Step 3: default/filter substitution (Observations only).
	if entry.Role() == tree.RoleObservation && p.Filter != nil {
		s = p.Filter(entry, s)
	}

	// Step 4: commit.
	entry.Commit(s)
	if entry.Role() == tree.RoleObservation {
		p.appendToBuffer(entry, s)
	}

	// Step 5: fan-out.
	start := time.Now()
	entry.FanOut(incomingKind, s)
	if p.Metrics != nil {
		p.Metrics.CoreMetrics().RecordPush(incomingKind.String())
		p.Metrics.CoreMetrics().RecordHandlerFanout(entry.Path(), time.Since(start))
		p.Metrics.CoreMetrics().SetHandlersActive(entry.Path(), entry.HandlerCount())
	}

	// Step 6: cascade to derived observations.
	for _, obs := range entry.Observers() {
		if err := p.Push(obs, incomingKind, s); err != nil {
			return err
		}
	}

	return nil
}

// appendToBuffer writes s to entry's history buffer (creating it on first
// use per the limits in effect at that moment), then evicts by size cap
// (handled by the buffer's own DropOldest policy) and by time-window cap.
func (p *Pipeline) appendToBuffer(entry *tree.Entry, s sample.Sample) {
	if entry.Buffer() == nil {
		limits := p.CurrentLimits()
		cap := limits.BufferMaxCount
		if cap <= 0 {
			cap = 1
		}
		opts := []buffer.Option[sample.Sample]{buffer.WithOverflowPolicy[sample.Sample](buffer.DropOldest)}
		if p.Metrics != nil {
			opts = append(opts, buffer.WithMetrics[sample.Sample](p.Metrics, "observation_buffer"))
		}
		buf, err := buffer.NewCircularBuffer[sample.Sample](cap, opts...)
		if err != nil {
			// Metrics registration conflicts are the only failure mode here
			// (capacity is always positive); fall back to an unmetriced
			// buffer rather than dropping the observation's history.
			buf, _ = buffer.NewCircularBuffer[sample.Sample](cap, buffer.WithOverflowPolicy[sample.Sample](buffer.DropOldest))
		}
		entry.SetBuffer(buf, limits.BufferMaxWindow)
	}

	buf := entry.Buffer()
	if buf.IsFull() {
		if p.Metrics != nil {
			p.Metrics.CoreMetrics().RecordBufferOverflow("size")
		}
	}
	_ = buf.Write(s)

	if window := entry.BufferWindowSec(); window > 0 {
		newest := s.Timestamp()
		evicted := buf.EvictWhile(func(old sample.Sample) bool {
			return newest-old.Timestamp() > window
		})
		if evicted > 0 && p.Metrics != nil {
			p.Metrics.CoreMetrics().RecordBufferOverflow("window")
		}
	}

	if p.Metrics != nil {
		p.Metrics.CoreMetrics().SetBufferSize(entry.Path(), buf.Size())
	}
}
