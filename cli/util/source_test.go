package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/playground/internal/session"
)

func TestReadSource(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.tsx")
		require.NoError(t, os.WriteFile(path, []byte("export const a = 1;"), 0o600))

		got, err := ReadSource(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "export const a = 1;", got)
	})

	t.Run("stdin", func(t *testing.T) {
		got, err := ReadSource(StdinPath, strings.NewReader("from stdin"))
		require.NoError(t, err)
		assert.Equal(t, "from stdin", got)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadSource(filepath.Join(t.TempDir(), "missing.tsx"), nil)
		assert.ErrorContains(t, err, "failed to read source")
	})
}

func TestFragmentFromInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "bare token", input: "abc", expected: "#abc"},
		{name: "fragment", input: "#abc", expected: "#abc"},
		{name: "surrounding space", input: "  #abc\n", expected: "#abc"},
		{name: "link", input: "https://play.example/?v=1#abc", expected: "#abc"},
		{name: "link without fragment", input: "https://play.example/", wantErr: true},
		{name: "empty", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FragmentFromInput(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, session.ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDecodeInput(t *testing.T) {
	state := session.Default().
		WithSource("export const x = 1;").
		WithOptions(session.MinifyNone, session.EntryHook, true)
	fragment, err := session.ToFragment(state)
	require.NoError(t, err)

	got, err := DecodeInput("https://play.example/" + fragment)
	require.NoError(t, err)
	assert.Equal(t, state, got)

	_, err = DecodeInput("#%%%")
	assert.ErrorIs(t, err, session.ErrInvalidToken)
}
