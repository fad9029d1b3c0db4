package sample

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrigger(t *testing.T) {
	s := NewTrigger(1700000000.0)
	assert.Equal(t, KindTrigger, s.Kind())
	assert.Equal(t, 1700000000.0, s.Timestamp())

	p, err := s.Project()
	require.NoError(t, err)
	assert.Equal(t, "null", p)
}

func TestNewBoolean(t *testing.T) {
	s := NewBoolean(5.0, true)
	v, err := s.Bool()
	require.NoError(t, err)
	assert.True(t, v)

	p, err := s.Project()
	require.NoError(t, err)
	assert.Equal(t, "true", p)
}

func TestNewNumeric(t *testing.T) {
	s := NewNumeric(1700000000.0, 21.5)
	v, err := s.Numeric()
	require.NoError(t, err)
	assert.Equal(t, 21.5, v)

	p, err := s.Project()
	require.NoError(t, err)
	assert.Equal(t, "21.5", p)
}

func TestNewString(t *testing.T) {
	s := NewString(1.0, `hello "world"`)
	v, err := s.Text()
	require.NoError(t, err)
	assert.Equal(t, `hello "world"`, v)

	p, err := s.Project()
	require.NoError(t, err)
	assert.Equal(t, `"hello \"world\""`, p)
}

func TestNewJSON(t *testing.T) {
	s, err := NewJSON(1.0, `{"a":1}`)
	require.NoError(t, err)

	v, err := s.JSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)
}

func TestNewJSON_RejectsEmbeddedNUL(t *testing.T) {
	_, err := NewJSON(1.0, "{\"a\":\x00}")
	assert.Error(t, err)
}

func TestKindMismatch(t *testing.T) {
	s := NewNumeric(1.0, 1.0)

	_, err := s.Bool()
	assert.Error(t, err)
	_, err = s.Text()
	assert.Error(t, err)
	_, err = s.JSON()
	assert.Error(t, err)
}

func TestWithTimestamp(t *testing.T) {
	s := NewNumeric(0, 42.0)
	stamped := s.WithTimestamp(123.5)

	assert.Equal(t, 0.0, s.Timestamp(), "original sample must not mutate")
	assert.Equal(t, 123.5, stamped.Timestamp())
	v, err := stamped.Numeric()
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestMarshalJSON_Trigger(t *testing.T) {
	s := NewTrigger(2.0)
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":2}`, string(b))
}

func TestMarshalJSON_Numeric(t *testing.T) {
	s := NewNumeric(2.0, 30.0)
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":2,"v":30}`, string(b))
}

func TestMarshalJSON_Array(t *testing.T) {
	samples := []Sample{
		NewNumeric(1.0, 10.0),
		NewNumeric(2.0, 20.0),
		NewNumeric(3.0, 30.0),
	}
	b, err := json.Marshal(samples)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"t":1,"v":10},{"t":2,"v":20},{"t":3,"v":30}]`, string(b))
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindTrigger: "trigger",
		KindBoolean: "boolean",
		KindNumeric: "numeric",
		KindString:  "string",
		KindJSON:    "json",
	}
	for k, want := range cases {
		assert.Equal(t, want, k.String())
	}
}
