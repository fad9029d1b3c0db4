// Package query implements the read-side facade: current-value accessors,
// buffer reads, and windowed aggregates, all addressed by absolute path.
// Every operation classifies its outcome into the status vocabulary in
// package errors rather than returning an internal error to the caller.
package query

import (
	"math"

	hubErrors "github.com/c360/datahub/errors"
	"github.com/c360/datahub/pkg/worker"
	"github.com/c360/datahub/resource"
	"github.com/c360/datahub/sample"
	"github.com/c360/datahub/tree"
)

// Facade exposes the read-side operations over a resource tree rooted at
// Root. Pool is the worker pool ReadBufferJson dispatches encode-and-write
// jobs to; construct one with resource.NewReadPool.
type Facade struct {
	Root *tree.Entry
	Pool *worker.Pool[resource.ReadJob]
}

// resolve looks up path absolutely, distinguishing not-found from
// unsupported (a Namespace has no value to read).
func (f *Facade) resolve(path string) (*tree.Entry, error) {
	e, ok := tree.FindAtAbsolute(f.Root, path)
	if !ok {
		return nil, hubErrors.ErrNotFound
	}
	if e.Role() == tree.RoleNamespace {
		return nil, hubErrors.ErrUnsupported
	}
	return e, nil
}

// GetDataType returns the resource's current data type.
func (f *Facade) GetDataType(path string) (sample.Kind, error) {
	e, err := f.resolve(path)
	if err != nil {
		return 0, err
	}
	return e.DataType(), nil
}

// GetUnits returns the resource's configured units.
func (f *Facade) GetUnits(path string) (string, error) {
	e, err := f.resolve(path)
	if err != nil {
		return "", err
	}
	return e.Units(), nil
}

func (f *Facade) currentValue(path string) (sample.Sample, *tree.Entry, error) {
	e, err := f.resolve(path)
	if err != nil {
		return sample.Sample{}, nil, err
	}
	v, ok := e.CurrentValue()
	if !ok {
		return sample.Sample{}, nil, hubErrors.ErrUnavailable
	}
	return v, e, nil
}

// GetTimestamp returns the resource's current timestamp.
func (f *Facade) GetTimestamp(path string) (float64, error) {
	v, _, err := f.currentValue(path)
	if err != nil {
		return 0, err
	}
	return v.Timestamp(), nil
}

// GetBoolean returns the resource's current boolean value.
func (f *Facade) GetBoolean(path string) (bool, error) {
	v, _, err := f.currentValue(path)
	if err != nil {
		return false, err
	}
	b, err := v.Bool()
	if err != nil {
		return false, hubErrors.ErrFormatError
	}
	return b, nil
}

// GetNumeric returns the resource's current numeric value.
func (f *Facade) GetNumeric(path string) (float64, error) {
	v, _, err := f.currentValue(path)
	if err != nil {
		return 0, err
	}
	n, err := v.Numeric()
	if err != nil {
		return 0, hubErrors.ErrFormatError
	}
	return n, nil
}

// GetString returns the resource's current string value.
func (f *Facade) GetString(path string) (string, error) {
	v, _, err := f.currentValue(path)
	if err != nil {
		return "", err
	}
	s, err := v.Text()
	if err != nil {
		return "", hubErrors.ErrFormatError
	}
	return s, nil
}

// GetJson returns the resource's current value projected to JSON. Unlike
// the other typed accessors, GetJson projects any kind rather than failing
// with FormatError on a mismatch.
func (f *Facade) GetJson(path string) (string, error) {
	v, _, err := f.currentValue(path)
	if err != nil {
		return "", err
	}
	return v.Project()
}

// ReadBufferJson writes entry's buffer, filtered to samples with timestamp
// at or after the resolved startAfter, to sink as a JSON array.
func (f *Facade) ReadBufferJson(path string, startAfter, now float64, sink func([]byte) error, onCompletion resource.CompletionFunc) error {
	e, err := f.resolve(path)
	if err != nil {
		onCompletion(err)
		return nil
	}
	if e.Role() != tree.RoleObservation {
		onCompletion(hubErrors.ErrUnsupported)
		return nil
	}
	return resource.ReadBufferJson(f.Pool, e, startAfter, now, sink, onCompletion)
}

func (f *Facade) aggregate(path string, startAfter, now float64) (resource.Aggregate, error) {
	e, err := f.resolve(path)
	if err != nil {
		return resource.Aggregate{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN(), StdDev: math.NaN()}, err
	}
	if e.Role() != tree.RoleObservation {
		return resource.Aggregate{}, hubErrors.ErrUnsupported
	}
	return resource.ComputeAggregate(e, startAfter, now)
}

// GetMin returns the minimum numeric sample in the buffer window.
func (f *Facade) GetMin(path string, startAfter, now float64) (float64, error) {
	agg, err := f.aggregate(path, startAfter, now)
	return agg.Min, err
}

// GetMax returns the maximum numeric sample in the buffer window.
func (f *Facade) GetMax(path string, startAfter, now float64) (float64, error) {
	agg, err := f.aggregate(path, startAfter, now)
	return agg.Max, err
}

// GetMean returns the arithmetic mean of numeric samples in the buffer
// window.
func (f *Facade) GetMean(path string, startAfter, now float64) (float64, error) {
	agg, err := f.aggregate(path, startAfter, now)
	return agg.Mean, err
}

// GetStdDev returns the population standard deviation of numeric samples
// in the buffer window.
func (f *Facade) GetStdDev(path string, startAfter, now float64) (float64, error) {
	agg, err := f.aggregate(path, startAfter, now)
	return agg.StdDev, err
}
