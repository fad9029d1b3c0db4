package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/c360/datahub/metric"
	"github.com/c360/datahub/pkg/worker"
	"github.com/c360/datahub/sample"
	"github.com/c360/datahub/tree"
)

// SecondsIn30Years disambiguates a startAfter argument between "relative
// seconds before now" and "absolute epoch seconds", per the buffer-read
// contract.
const SecondsIn30Years = 30 * 365.25 * 24 * 3600

// ErrNegativeStartAfter reports a non-positive, non-NaN startAfter, which
// is a caller-contract violation rather than a status the read returns.
var ErrNegativeStartAfter = fmt.Errorf("resource: startAfter must be positive or NaN")

// ResolveStartTime turns a readBufferJson startAfter argument into an
// absolute epoch-seconds cutoff, given the current wall-clock time now. A
// NaN startAfter means "whole buffer", represented as math.Inf(-1) so every
// sample's timestamp compares >= it.
func ResolveStartTime(startAfter, now float64) (float64, error) {
	if math.IsNaN(startAfter) {
		return math.Inf(-1), nil
	}
	if startAfter <= 0 {
		return 0, ErrNegativeStartAfter
	}
	if startAfter >= SecondsIn30Years {
		return startAfter, nil
	}
	return now - startAfter, nil
}

// filterSince returns the samples in buf with timestamp >= startTime,
// preserving push order.
func filterSince(buf []sample.Sample, startTime float64) []sample.Sample {
	out := make([]sample.Sample, 0, len(buf))
	for _, s := range buf {
		if s.Timestamp() >= startTime {
			out = append(out, s)
		}
	}
	return out
}

// CompletionFunc is invoked once a ReadBufferJson call finishes, reporting
// the resulting status to the caller.
type CompletionFunc func(status error)

// ReadBufferJson writes the samples in entry's buffer with timestamp >=
// the resolved start time to sink as a JSON array (per the §4.2 buffer
// wire format), then invokes onCompletion. entry must be an Observation
// with a configured buffer; the snapshot backing the write is taken
// synchronously so the write itself can proceed asynchronously via pool
// without observing a torn or concurrently-mutated array.
func ReadBufferJson(
	pool *worker.Pool[ReadJob],
	entry *tree.Entry,
	startAfter float64,
	now float64,
	sink func([]byte) error,
	onCompletion CompletionFunc,
) error {
	buf := entry.Buffer()
	if buf == nil {
		onCompletion(fmt.Errorf("resource.ReadBufferJson: entry %q has no buffer", entry.Path()))
		return nil
	}

	startTime, err := ResolveStartTime(startAfter, now)
	if err != nil {
		return err // caller-contract violation: never queued, never completed
	}

	filtered := filterSince(buf.Snapshot(), startTime)

	job := ReadJob{Samples: filtered, Sink: sink, OnCompletion: onCompletion}
	return pool.Submit(job)
}

// ReadJob is the unit of work a ReadBufferJson call submits to the worker
// pool: the already-filtered, already-immutable snapshot to encode, plus
// where to write it and who to notify.
type ReadJob struct {
	Samples      []sample.Sample
	Sink         func([]byte) error
	OnCompletion CompletionFunc
}

// NewReadPool creates the worker pool ReadBufferJson submits to. Callers
// typically create one pool per hub instance and share it across calls.
func NewReadPool(workers, queueSize int, registry *metric.MetricsRegistry) *worker.Pool[ReadJob] {
	opts := []worker.Option[ReadJob]{}
	if registry != nil {
		opts = append(opts, worker.WithMetricsRegistry[ReadJob](registry, "buffer_read"))
	}
	return worker.NewPool(workers, queueSize, ProcessReadJob, opts...)
}

// ProcessReadJob encodes job.Samples as a JSON array and writes it to
// job.Sink in one call, then reports the outcome via job.OnCompletion. It
// is the processor function bound to the worker pool that executes
// ReadBufferJson's asynchronous suspension point.
func ProcessReadJob(_ context.Context, job ReadJob) error {
	data, err := json.Marshal(job.Samples)
	if err != nil {
		job.OnCompletion(fmt.Errorf("resource.ProcessReadJob: marshal: %w", err))
		return err
	}
	if err := job.Sink(data); err != nil {
		job.OnCompletion(fmt.Errorf("resource.ProcessReadJob: sink write: %w", err))
		return err
	}
	job.OnCompletion(nil)
	return nil
}

// Aggregate is the result of Min/Max/Mean/StdDev over a buffer window.
// An empty or non-numeric selection yields NaN, per contract.
type Aggregate struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64 // population standard deviation (N denominator)
}

// ComputeAggregate computes Min/Max/Mean/StdDev over the numeric samples in
// entry's buffer with timestamp >= the resolved start time. Non-numeric
// samples in the window are ignored; if no numeric samples remain, every
// field is NaN.
func ComputeAggregate(entry *tree.Entry, startAfter, now float64) (Aggregate, error) {
	startTime, err := ResolveStartTime(startAfter, now)
	if err != nil {
		return Aggregate{}, err
	}

	// An Observation that has never been pushed to has no buffer yet; it
	// aggregates like an empty one.
	var snapshot []sample.Sample
	if buf := entry.Buffer(); buf != nil {
		snapshot = buf.Snapshot()
	}

	var values []float64
	for _, s := range filterSince(snapshot, startTime) {
		if v, err := s.Numeric(); err == nil {
			values = append(values, v)
		}
	}

	if len(values) == 0 {
		nan := math.NaN()
		return Aggregate{Min: nan, Max: nan, Mean: nan, StdDev: nan}, nil
	}

	min, max, sum := values[0], values[0], 0.0
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	return Aggregate{Min: min, Max: max, Mean: mean, StdDev: math.Sqrt(variance)}, nil
}
