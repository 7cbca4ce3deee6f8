package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/playground/internal/pipeline"
	"github.com/fluxbase-eu/playground/internal/session"
)

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func executeCommand(t *testing.T, stdinText string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdinText))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func writeSource(t *testing.T, name, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, _, err := executeCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Playground CLI dev")
	assert.Contains(t, out, "Commit: unknown")
}

func TestCompile_SeedDocument(t *testing.T) {
	out, _, err := executeCommand(t, "", "compile")
	require.NoError(t, err)
	assert.Contains(t, out, "input.tsx")
	assert.Contains(t, out, "module")
}

func TestCompile_StdinJSON(t *testing.T) {
	out, _, err := executeCommand(t, "export const a = 1;\n", "compile", "-", "-o", "json", "--minify", "none")
	require.NoError(t, err)

	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Len(t, snap.Modules, 1)
	assert.Equal(t, "input.tsx", snap.Modules[0].Path)
	assert.Contains(t, snap.Modules[0].Code, "export const a = 1")
	assert.Equal(t, session.MinifyNone, snap.State.Minify)
}

func TestCompile_BundlesWithCode(t *testing.T) {
	out, _, err := executeCommand(t, "", "compile", "--transpile", "--view", "bundles", "--code")
	require.NoError(t, err)
	assert.Contains(t, out, "entry")
	assert.Contains(t, out, "--- ")
	assert.Contains(t, out, "@builder.io/qwik")
}

func TestCompile_StrictFailsOnDiagnostics(t *testing.T) {
	path := writeSource(t, "broken.tsx", "const a = 1;\nconst b = ;\n")

	out, _, err := executeCommand(t, "", "compile", path, "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diagnostic(s) reported")
	assert.Contains(t, out, "error")
	assert.Contains(t, out, "2:")

	_, _, err = executeCommand(t, "", "compile", path)
	assert.NoError(t, err)
}

func TestCompile_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown minify", []string{"compile", "--minify", "aggressive"}, "invalid state"},
		{"unknown compiler", []string{"compile", "--compiler", "swc"}, "invalid compiler"},
		{"file and fragment", []string{"compile", "app.tsx", "--fragment", "#abc"}, "not both"},
		{"missing file", []string{"compile", "does-not-exist.tsx"}, "failed to read source"},
		{"bad output format", []string{"compile", "-o", "xml"}, "invalid output format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestShareDecode_RoundTrip(t *testing.T) {
	path := writeSource(t, "app.tsx", "export const greeting = 'hi';\n")

	out, _, err := executeCommand(t, "", "share", path, "--minify", "none", "--entry-strategy", "hook", "--transpile")
	require.NoError(t, err)
	fragment := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(fragment, session.FragmentPrefix))

	out, _, err = executeCommand(t, "", "decode", fragment, "-o", "json")
	require.NoError(t, err)

	var state session.State
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, "export const greeting = 'hi';\n", state.Source)
	assert.Equal(t, session.MinifyNone, state.Minify)
	assert.Equal(t, session.EntryHook, state.EntryStrategy)
	assert.True(t, state.Transpile)
	assert.Equal(t, session.ViewModules, state.View)
}

func TestShare_BaseURL(t *testing.T) {
	out, _, err := executeCommand(t, "", "share", "--base-url", "https://play.example/", "-o", "json")
	require.NoError(t, err)

	var got ShareOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "https://play.example/"+got.Fragment, got.URL)
	assert.Equal(t, session.Default(), session.FromFragment(got.Fragment))
}

func TestShare_QRCode(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		out, _, err := executeCommand(t, "", "share", "--base-url", "https://play.example", "--qr")
		require.NoError(t, err)

		lines := strings.Split(out, "\n")
		require.True(t, strings.HasPrefix(lines[0], "https://play.example/#"))
		assert.Equal(t, "--- qr ---", lines[1])
		qr := strings.Join(lines[2:], "\n")
		assert.NotEmpty(t, strings.TrimSpace(qr))
		assert.Contains(t, qr, "█")
	})

	t.Run("json unchanged", func(t *testing.T) {
		out, _, err := executeCommand(t, "", "share", "--base-url", "https://play.example", "--qr", "-o", "json")
		require.NoError(t, err)

		var got ShareOutput
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "https://play.example/"+got.Fragment, got.URL)
		assert.NotContains(t, out, "--- qr ---")
	})

	t.Run("off by default", func(t *testing.T) {
		out, _, err := executeCommand(t, "", "share")
		require.NoError(t, err)
		assert.NotContains(t, out, "--- qr ---")
	})
}

func TestShare_FragmentOverride(t *testing.T) {
	seed, err := session.ToFragment(session.Default().WithSource("x"))
	require.NoError(t, err)

	out, _, err := executeCommand(t, "", "share", "--fragment", seed, "--view", "bundles")
	require.NoError(t, err)

	state := session.FromFragment(strings.TrimSpace(out))
	assert.Equal(t, "x", state.Source)
	assert.Equal(t, session.ViewBundles, state.View)
}

func TestDecode(t *testing.T) {
	fragment, err := session.ToFragment(session.Default().WithSource("export const z = 3;"))
	require.NoError(t, err)

	t.Run("table", func(t *testing.T) {
		out, _, err := executeCommand(t, "", "decode", "https://play.example/"+fragment)
		require.NoError(t, err)
		assert.Contains(t, out, "simplify")
		assert.Contains(t, out, "--- source ---")
		assert.Contains(t, out, "export const z = 3;")
	})

	t.Run("source only from stdin", func(t *testing.T) {
		out, _, err := executeCommand(t, fragment+"\n", "decode", "-", "--source")
		require.NoError(t, err)
		assert.Equal(t, "export const z = 3;", out)
	})

	t.Run("malformed", func(t *testing.T) {
		_, _, err := executeCommand(t, "", "decode", "#%%%")
		assert.ErrorIs(t, err, session.ErrInvalidToken)
	})
}

func TestAnalyze(t *testing.T) {
	path := writeSource(t, "counter.tsx", session.DefaultSource)

	out, _, err := executeCommand(t, "", "analyze", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Bundle Analysis: counter")
	assert.Contains(t, out, "@builder.io/qwik")
}

func TestRemote(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/playground/fragment":
			_, _ = w.Write([]byte(`{"fragment":"#abc","url":"http://play.example/#abc"}`))
		default:
			snap := pipeline.Snapshot{
				Generation: 9,
				State:      session.Default(),
				Modules:    nil,
			}
			_ = json.NewEncoder(w).Encode(snap)
		}
	}))
	defer srv.Close()

	out, _, err := executeCommand(t, "", "remote", "status", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "generation: 9")

	out, _, err = executeCommand(t, "", "remote", "fragment", "--server", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "http://play.example/#abc\n", out)

	_, _, err = executeCommand(t, "", "remote", "options", "--transpile", "--server", srv.URL)
	require.NoError(t, err)

	_, _, err = executeCommand(t, "export const a = 1;", "remote", "push", "-", "--server", srv.URL)
	require.NoError(t, err)

	_, _, err = executeCommand(t, "", "remote", "view", "tree", "--server", srv.URL)
	assert.Error(t, err)

	assert.Equal(t, []string{
		"GET /api/v1/playground/",
		"GET /api/v1/playground/fragment",
		"PUT /api/v1/playground/options",
		"PUT /api/v1/playground/source",
	}, paths)
}
