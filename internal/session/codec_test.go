package session

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	sources := []string{
		"",
		DefaultSource,
		"const x = 1;",
		"unicode: héllo wörld ✓ 日本語",
		"quotes \" and ' and `backticks` and \\ slashes",
		"line\nbreaks\r\nand\ttabs",
		"#not-a-fragment",
		strings.Repeat("a", 10_000),
	}
	minifies := []MinifyMode{MinifyNone, MinifyMinify, MinifySimplify}
	entries := []EntryStrategy{EntrySmart, EntrySingle, EntryHook, EntryComponent}
	views := []View{ViewModules, ViewBundles}

	for _, src := range sources {
		for _, m := range minifies {
			for _, e := range entries {
				for _, transpile := range []bool{false, true} {
					for _, v := range views {
						s := State{Source: src, Minify: m, EntryStrategy: e, Transpile: transpile, View: v}

						token, err := Encode(s)
						require.NoError(t, err)

						decoded, err := Decode(token)
						require.NoError(t, err)
						assert.Equal(t, s, decoded)
					}
				}
			}
		}
	}
}

func TestEncode_IsFragmentSafe(t *testing.T) {
	s := Default().WithSource("<<<???>>> ~~~ \xc3\xbf")
	token, err := Encode(s)
	require.NoError(t, err)

	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")
	assert.NotContains(t, token, "#")
}

func TestEncode_RejectsUnrepresentableState(t *testing.T) {
	tests := []struct {
		name  string
		state State
	}{
		{"invalid utf8", Default().WithSource("\xff\xfe")},
		{"unknown minify", Default().WithOptions("gzip", EntrySmart, false)},
		{"unknown entry", Default().WithOptions(MinifyNone, "everything", false)},
		{"unknown view", Default().WithView("tree")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.state)
			assert.Error(t, err)
		})
	}
}

func TestDecode_LegacyToken(t *testing.T) {
	// Links created before transpile and view were shared only carry these fields
	legacy := `{"code":"export const a = 1;","minify":"simplify","entryStrategy":"hook"}`
	token := base64.StdEncoding.EncodeToString([]byte(legacy))

	s, err := Decode(token)
	require.NoError(t, err)

	assert.Equal(t, "export const a = 1;", s.Source)
	assert.Equal(t, MinifySimplify, s.Minify)
	assert.Equal(t, EntryHook, s.EntryStrategy)
	assert.False(t, s.Transpile)
	assert.Equal(t, ViewModules, s.View)
}

func TestDecode_LegacyChunksView(t *testing.T) {
	token := base64.RawURLEncoding.EncodeToString([]byte(`{"code":"x","view":"chunks"}`))

	s, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, ViewBundles, s.View)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not base64", "!!!***"},
		{"not json", base64.RawURLEncoding.EncodeToString([]byte("hello"))},
		{"json array", base64.RawURLEncoding.EncodeToString([]byte(`[1,2,3]`))},
		{"wrong field type", base64.RawURLEncoding.EncodeToString([]byte(`{"code":42}`))},
		{"json null", base64.RawURLEncoding.EncodeToString([]byte(`null`))},
		{"json string", base64.RawURLEncoding.EncodeToString([]byte(`"let x = 1;"`))},
		{"empty object", base64.RawURLEncoding.EncodeToString([]byte(`{}`))},
		{"null code", base64.RawURLEncoding.EncodeToString([]byte(`{"code":null}`))},
		{"missing code", base64.RawURLEncoding.EncodeToString([]byte(`{"minify":"none","entryStrategy":"smart"}`))},
		{"bad minify", base64.RawURLEncoding.EncodeToString([]byte(`{"code":"x","minify":"max"}`))},
		{"bad entry", base64.RawURLEncoding.EncodeToString([]byte(`{"code":"x","entryStrategy":"all"}`))},
		{"bad view", base64.RawURLEncoding.EncodeToString([]byte(`{"code":"x","view":"tree"}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestFromFragment(t *testing.T) {
	custom := State{
		Source:        "let y = 2;",
		Minify:        MinifyMinify,
		EntryStrategy: EntryComponent,
		Transpile:     true,
		View:          ViewBundles,
	}
	fragment, err := ToFragment(custom)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(fragment, FragmentPrefix))

	t.Run("valid fragment", func(t *testing.T) {
		assert.Equal(t, custom, FromFragment(fragment))
	})

	t.Run("no fragment", func(t *testing.T) {
		assert.Equal(t, Default(), FromFragment(""))
	})

	t.Run("missing prefix", func(t *testing.T) {
		assert.Equal(t, Default(), FromFragment(strings.TrimPrefix(fragment, FragmentPrefix)))
	})

	garbage := []string{
		"#", "#garbage", "#%%%", "#" + strings.Repeat("A", 7), "#eyJjb2RlIjo",
		"#" + base64.RawURLEncoding.EncodeToString([]byte(`null`)),
		"#" + base64.RawURLEncoding.EncodeToString([]byte(`{}`)),
		"#" + base64.RawURLEncoding.EncodeToString([]byte(`{"transpile":true}`)),
	}
	for _, g := range garbage {
		t.Run("garbage "+g, func(t *testing.T) {
			assert.Equal(t, Default(), FromFragment(g))
		})
	}
}

func TestDefault(t *testing.T) {
	s := Default()
	assert.Equal(t, DefaultSource, s.Source)
	assert.Equal(t, MinifyNone, s.Minify)
	assert.Equal(t, EntrySmart, s.EntryStrategy)
	assert.False(t, s.Transpile)
	assert.Equal(t, ViewModules, s.View)
	assert.NoError(t, s.Validate())
}

func TestMemoryPort(t *testing.T) {
	p := NewMemoryPort("#seed")

	got, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, "#seed", got)

	require.NoError(t, p.Write("#next"))
	got, err = p.Read()
	require.NoError(t, err)
	assert.Equal(t, "#next", got)
	assert.Equal(t, 1, p.Writes())
}
