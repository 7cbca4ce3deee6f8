package diagnostics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/playground/internal/compiler"
)

type recordingSurface struct {
	calls [][]Marker
	err   error
}

func (s *recordingSurface) SetMarkers(markers []Marker) error {
	s.calls = append(s.calls, markers)
	return s.err
}

func TestToMarkers(t *testing.T) {
	diags := []compiler.Diagnostic{
		{
			Message: "Expected \";\" but found \"}\"",
			Highlights: []compiler.Highlight{
				{StartLine: 3, StartCol: 5, EndLine: 3, EndCol: 6},
				{StartLine: 9, StartCol: 1, EndLine: 9, EndCol: 2},
			},
		},
		{Message: "no position"},
	}

	markers := ToMarkers(diags)
	require.Len(t, markers, 2)

	assert.Equal(t, Marker{
		Severity:        "error",
		Message:         "Expected \";\" but found \"}\"",
		StartLineNumber: 3,
		StartColumn:     5,
		EndLineNumber:   3,
		EndColumn:       6,
	}, markers[0])

	assert.Equal(t, 1, markers[1].StartLineNumber)
	assert.Equal(t, 1, markers[1].EndColumn)
	assert.Equal(t, SeverityError, markers[1].Severity)

	assert.Empty(t, ToMarkers(nil))
	assert.NotNil(t, ToMarkers(nil))
}

func TestMapper_Apply(t *testing.T) {
	diags := []compiler.Diagnostic{{Message: "boom", Highlights: []compiler.Highlight{{StartLine: 1, StartCol: 2, EndLine: 1, EndCol: 4}}}}

	t.Run("no surface skips", func(t *testing.T) {
		m := NewMapper()
		assert.False(t, m.Attached())
		assert.False(t, m.Apply(diags))
	})

	t.Run("attached surface receives markers", func(t *testing.T) {
		m := NewMapper()
		s := &recordingSurface{}
		m.Attach(s)

		assert.True(t, m.Apply(diags))
		require.Len(t, s.calls, 1)
		assert.Equal(t, "boom", s.calls[0][0].Message)
	})

	t.Run("empty list clears markers", func(t *testing.T) {
		m := NewMapper()
		s := &recordingSurface{}
		m.Attach(s)

		assert.True(t, m.Apply(nil))
		require.Len(t, s.calls, 1)
		assert.Empty(t, s.calls[0])
	})

	t.Run("attach replaces and detach unmounts", func(t *testing.T) {
		m := NewMapper()
		first := &recordingSurface{}
		second := &recordingSurface{}
		m.Attach(first)
		m.Attach(second)

		assert.True(t, m.Apply(diags))
		assert.Empty(t, first.calls)
		assert.Len(t, second.calls, 1)

		m.Detach()
		assert.False(t, m.Attached())
		assert.False(t, m.Apply(diags))
		assert.Len(t, second.calls, 1)
	})

	t.Run("surface error reported as not applied", func(t *testing.T) {
		m := NewMapper()
		m.Attach(&recordingSurface{err: errors.New("closed")})
		assert.False(t, m.Apply(diags))
	})
}
