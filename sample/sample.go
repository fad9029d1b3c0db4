// Package sample implements the Data Sample value type: an immutable,
// timestamped, kind-discriminated reading shared by reference among a
// resource's current value, its history buffer, and any in-flight handler
// dispatch. Construction is one function per kind; reading back a value of
// the wrong kind is a caller-contract violation, reported as an error the
// caller classifies (FormatError on the query surface, a killed session on
// the producer surface).
package sample

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind discriminates the payload carried by a Sample.
type Kind int

const (
	// KindTrigger carries no payload; its presence is the signal.
	KindTrigger Kind = iota
	KindBoolean
	KindNumeric
	KindString
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindTrigger:
		return "trigger"
	case KindBoolean:
		return "boolean"
	case KindNumeric:
		return "numeric"
	case KindString:
		return "string"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// IsValid reports whether k is one of the defined kinds.
func (k Kind) IsValid() bool {
	return k >= KindTrigger && k <= KindJSON
}

// Sample is an immutable (timestamp, kind, value) triple. The zero value is
// not meaningful; construct one of the New* functions. Samples are safe for
// concurrent reads from multiple goroutines since nothing about a Sample
// ever mutates after construction.
type Sample struct {
	timestamp float64
	kind      Kind
	boolVal   bool
	numVal    float64
	textVal   string // String payload, or raw JSON text for KindJSON
}

// NewTrigger creates a Trigger sample. Trigger samples carry no value; their
// delivery is the signal.
func NewTrigger(timestamp float64) Sample {
	return Sample{timestamp: timestamp, kind: KindTrigger}
}

// NewBoolean creates a Boolean sample.
func NewBoolean(timestamp float64, v bool) Sample {
	return Sample{timestamp: timestamp, kind: KindBoolean, boolVal: v}
}

// NewNumeric creates a Numeric sample.
func NewNumeric(timestamp float64, v float64) Sample {
	return Sample{timestamp: timestamp, kind: KindNumeric, numVal: v}
}

// NewString creates a String sample.
func NewString(timestamp float64, v string) Sample {
	return Sample{timestamp: timestamp, kind: KindString, textVal: v}
}

// NewJSON creates a Json sample from text assumed to be well-formed JSON.
// Validation is best-effort: the only check performed is the mandatory
// rejection of embedded NUL bytes, which downstream sinks and C-string
// collaborators cannot carry.
func NewJSON(timestamp float64, text string) (Sample, error) {
	if bytes.IndexByte([]byte(text), 0) >= 0 {
		return Sample{}, fmt.Errorf("sample.NewJSON: payload contains an embedded NUL byte")
	}
	return Sample{timestamp: timestamp, kind: KindJSON, textVal: text}, nil
}

// WithTimestamp returns a copy of s with its timestamp replaced. The push
// pipeline uses this to stamp wall-clock time onto samples constructed with
// timestamp 0, without reaching into the kind-specific payload.
func (s Sample) WithTimestamp(ts float64) Sample {
	s.timestamp = ts
	return s
}

// Timestamp returns the sample's timestamp, in seconds since the epoch.
func (s Sample) Timestamp() float64 {
	return s.timestamp
}

// Kind returns the sample's kind.
func (s Sample) Kind() Kind {
	return s.kind
}

// errKindMismatch reports that the caller requested a kind-specific
// accessor that does not match the sample's actual kind. Callers translate
// this into the error vocabulary appropriate to their surface: the query
// facade reports FormatError, the producer facade kills the session.
func errKindMismatch(method string, want, have Kind) error {
	return fmt.Errorf("sample.%s: requested kind %s but sample is %s", method, want, have)
}

// Bool returns the sample's boolean value. It returns an error if the
// sample is not a Boolean.
func (s Sample) Bool() (bool, error) {
	if s.kind != KindBoolean {
		return false, errKindMismatch("Bool", KindBoolean, s.kind)
	}
	return s.boolVal, nil
}

// Numeric returns the sample's numeric value. It returns an error if the
// sample is not Numeric.
func (s Sample) Numeric() (float64, error) {
	if s.kind != KindNumeric {
		return 0, errKindMismatch("Numeric", KindNumeric, s.kind)
	}
	return s.numVal, nil
}

// Text returns the sample's string value. It returns an error if the
// sample is not a String.
func (s Sample) Text() (string, error) {
	if s.kind != KindString {
		return "", errKindMismatch("Text", KindString, s.kind)
	}
	return s.textVal, nil
}

// JSON returns the sample's raw JSON text. It returns an error if the
// sample is not Json.
func (s Sample) JSON() (string, error) {
	if s.kind != KindJSON {
		return "", errKindMismatch("JSON", KindJSON, s.kind)
	}
	return s.textVal, nil
}

// Project renders the sample's value per the wire projection rules: Trigger
// projects to "null", Boolean to "true"/"false", Numeric to its shortest
// round-trip decimal form, String to a JSON-escaped string literal, and
// Json verbatim. The result is always valid JSON.
func (s Sample) Project() (string, error) {
	switch s.kind {
	case KindTrigger:
		return "null", nil
	case KindBoolean:
		if s.boolVal {
			return "true", nil
		}
		return "false", nil
	case KindNumeric:
		b, err := json.Marshal(s.numVal)
		if err != nil {
			return "", fmt.Errorf("sample.Project: %w", err)
		}
		return string(b), nil
	case KindString:
		b, err := json.Marshal(s.textVal)
		if err != nil {
			return "", fmt.Errorf("sample.Project: %w", err)
		}
		return string(b), nil
	case KindJSON:
		return s.textVal, nil
	default:
		return "", fmt.Errorf("sample.Project: unknown kind %d", s.kind)
	}
}

// bufferEntry is the wire shape of one buffer slot: {"t":<num>,"v":<value>},
// with "v" omitted for Trigger samples.
type bufferEntry struct {
	T float64         `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

// MarshalJSON implements json.Marshaler, emitting the {"t":...,"v":...}
// buffer-entry shape used by readBufferJson.
func (s Sample) MarshalJSON() ([]byte, error) {
	entry := bufferEntry{T: s.timestamp}
	if s.kind != KindTrigger {
		v, err := s.Project()
		if err != nil {
			return nil, fmt.Errorf("sample.MarshalJSON: %w", err)
		}
		entry.V = json.RawMessage(v)
	}
	return json.Marshal(entry)
}
