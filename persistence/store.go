// Package persistence implements the optional Observation persistence
// collaborator (persistObservation/loadObservation) backed by a NATS
// JetStream key-value bucket, so an Observation's buffer survives a
// process restart.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/c360/datahub/pkg/retry"
	"github.com/c360/datahub/sample"
	"github.com/nats-io/nats.go/jetstream"
)

// Store persists an Observation's buffer snapshot under its path as the
// key. Values are last-writer-wins: concurrent flushes of the same
// Observation from a single process are serialized by the caller, so no
// CAS revision tracking is needed here.
type Store struct {
	bucket     jetstream.KeyValue
	retryCfg   retry.Config
	putTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithRetryConfig overrides the retry policy used for Save and Load. The
// default is retry.Persistent(), since a KV write failure here means an
// Observation's history is silently lost on restart.
func WithRetryConfig(cfg retry.Config) Option {
	return func(s *Store) { s.retryCfg = cfg }
}

// WithPutTimeout bounds a single Save attempt. Zero means no per-attempt
// timeout beyond the caller's context.
func WithPutTimeout(d time.Duration) Option {
	return func(s *Store) { s.putTimeout = d }
}

// New wraps bucket as an observation Store.
func New(bucket jetstream.KeyValue, opts ...Option) *Store {
	s := &Store{bucket: bucket, retryCfg: retry.Persistent()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func keyFor(path string) string {
	// JetStream KV keys may not contain '/'; the resource tree's path
	// separator is translated to '.', matching NATS subject conventions.
	out := make([]byte, 0, len(path))
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i == 0 {
				continue // drop the leading separator
			}
			out = append(out, '.')
			continue
		}
		out = append(out, path[i])
	}
	return string(out)
}

// record is the persisted wire shape for one sample: unlike Sample's own
// MarshalJSON (a one-way projection for buffer reads), record round-trips
// through Kind so Load can reconstruct the original typed sample.
type record struct {
	T float64     `json:"t"`
	K sample.Kind `json:"k"`
	V json.RawMessage `json:"v,omitempty"`
}

func toRecord(s sample.Sample) (record, error) {
	r := record{T: s.Timestamp(), K: s.Kind()}
	if s.Kind() == sample.KindTrigger {
		return r, nil
	}
	v, err := s.Project()
	if err != nil {
		return record{}, fmt.Errorf("persistence: project sample: %w", err)
	}
	r.V = json.RawMessage(v)
	return r, nil
}

func fromRecord(r record) (sample.Sample, error) {
	switch r.K {
	case sample.KindTrigger:
		return sample.NewTrigger(r.T), nil
	case sample.KindBoolean:
		var v bool
		if err := json.Unmarshal(r.V, &v); err != nil {
			return sample.Sample{}, fmt.Errorf("persistence: decode boolean: %w", err)
		}
		return sample.NewBoolean(r.T, v), nil
	case sample.KindNumeric:
		var v float64
		if err := json.Unmarshal(r.V, &v); err != nil {
			return sample.Sample{}, fmt.Errorf("persistence: decode numeric: %w", err)
		}
		return sample.NewNumeric(r.T, v), nil
	case sample.KindString:
		var v string
		if err := json.Unmarshal(r.V, &v); err != nil {
			return sample.Sample{}, fmt.Errorf("persistence: decode string: %w", err)
		}
		return sample.NewString(r.T, v), nil
	case sample.KindJSON:
		return sample.NewJSON(r.T, string(r.V))
	default:
		return sample.Sample{}, fmt.Errorf("persistence: unknown kind %d", r.K)
	}
}

// Save persists snapshot under path, retrying transient KV failures.
func (s *Store) Save(ctx context.Context, path string, snapshot []sample.Sample) error {
	records := make([]record, len(snapshot))
	for i, smp := range snapshot {
		r, err := toRecord(smp)
		if err != nil {
			return fmt.Errorf("persistence.Save: %q: %w", path, err)
		}
		records[i] = r
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("persistence.Save: marshal %q: %w", path, err)
	}

	key := keyFor(path)
	return retry.Do(ctx, s.retryCfg, func() error {
		putCtx := ctx
		cancel := func() {}
		if s.putTimeout > 0 {
			putCtx, cancel = context.WithTimeout(ctx, s.putTimeout)
		}
		defer cancel()

		_, err := s.bucket.Put(putCtx, key, data)
		if err != nil {
			return fmt.Errorf("persistence.Save: put %q: %w", key, err)
		}
		return nil
	})
}

// Load returns the persisted buffer snapshot for path, or (nil, nil) if
// nothing has been saved for it yet.
func (s *Store) Load(ctx context.Context, path string) ([]sample.Sample, error) {
	key := keyFor(path)
	var entry jetstream.KeyValueEntry
	err := retry.Do(ctx, s.retryCfg, func() error {
		e, err := s.bucket.Get(ctx, key)
		if err != nil {
			if isKeyNotFound(err) {
				return retry.NonRetryable(err)
			}
			return fmt.Errorf("persistence.Load: get %q: %w", key, err)
		}
		entry = e
		return nil
	})
	if err != nil {
		if isKeyNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []record
	if err := json.Unmarshal(entry.Value(), &records); err != nil {
		return nil, fmt.Errorf("persistence.Load: unmarshal %q: %w", key, err)
	}
	snapshot := make([]sample.Sample, len(records))
	for i, r := range records {
		smp, err := fromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("persistence.Load: %q: %w", key, err)
		}
		snapshot[i] = smp
	}
	return snapshot, nil
}

func isKeyNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound)
}
