package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/playground/internal/bundler"
	"github.com/fluxbase-eu/playground/internal/compiler"
	"github.com/fluxbase-eu/playground/internal/diagnostics"
	"github.com/fluxbase-eu/playground/internal/session"
)

// These run the real esbuild compiler and bundler end to end.

func realStages() (*compiler.Invoker, *bundler.Pipeline) {
	return compiler.NewInvoker(compiler.NewEsbuildCompiler()), bundler.NewPipeline()
}

func TestRunOnce_DefaultSeedWithoutTranspile(t *testing.T) {
	inv, bun := realStages()
	state := session.Default()

	snap, err := RunOnce(context.Background(), inv, bun, state)
	require.NoError(t, err)

	require.Len(t, snap.Modules, 1)
	assert.Equal(t, "input.tsx", snap.Modules[0].Path)
	assert.Contains(t, snap.Modules[0].Code, "<span>")
	assert.Empty(t, snap.Diagnostics)
	assert.Empty(t, snap.Error)

	assert.Len(t, snap.Visible(session.ViewModules), 1)
	assert.Empty(t, snap.Visible(session.ViewBundles))
	assert.Equal(t, state, session.FromFragment(snap.Fragment))
}

func TestRunOnce_TranspiledBundles(t *testing.T) {
	inv, bun := realStages()
	state := session.Default().
		WithOptions(session.MinifyNone, session.EntrySmart, true).
		WithView(session.ViewBundles)

	snap, err := RunOnce(context.Background(), inv, bun, state)
	require.NoError(t, err)

	assert.Empty(t, snap.Error)
	require.Len(t, snap.Modules, 1)
	assert.Equal(t, "input.js", snap.Modules[0].Path)

	// a single module with no dynamic imports bundles into one self-contained chunk
	visible := snap.Visible(state.View)
	require.Len(t, visible, 1)
	assert.True(t, visible[0].IsEntryPoint)
	assert.Contains(t, visible[0].Code, "@builder.io/qwik")
	assert.NotRegexp(t, `(from|import)\s*\(?\s*["']\./`, visible[0].Code)
}

func TestRunOnce_SyntaxErrorBecomesMarker(t *testing.T) {
	inv, bun := realStages()
	source := strings.Join([]string{
		"const a = 1;",
		"const b = 2;",
		"const c = ;",
		"",
	}, "\n")
	state := session.Default().WithSource(source)

	snap, err := RunOnce(context.Background(), inv, bun, state)
	require.NoError(t, err)

	require.NotEmpty(t, snap.Diagnostics)
	require.Len(t, snap.Markers, len(snap.Diagnostics))

	marker := snap.Markers[0]
	assert.Equal(t, diagnostics.SeverityError, marker.Severity)
	assert.Equal(t, 3, marker.StartLineNumber)
	assert.Equal(t, snap.Diagnostics[0].Highlights[0].StartLine, marker.StartLineNumber)
	assert.Equal(t, snap.Diagnostics[0].Message, marker.Message)
	assert.GreaterOrEqual(t, marker.StartColumn, 1)
}

func TestRunOnce_Idempotent(t *testing.T) {
	inv, bun := realStages()
	state := session.Default().WithOptions(session.MinifyMinify, session.EntrySingle, true)

	first, err := RunOnce(context.Background(), inv, bun, state)
	require.NoError(t, err)
	second, err := RunOnce(context.Background(), inv, bun, state)
	require.NoError(t, err)

	assert.Equal(t, first.Modules, second.Modules)
	assert.Equal(t, first.Bundles, second.Bundles)
	assert.Equal(t, first.Diagnostics, second.Diagnostics)
}

func TestRunOnce_Errors(t *testing.T) {
	t.Run("no compiler", func(t *testing.T) {
		_, err := RunOnce(context.Background(), compiler.NewInvoker(nil), nil, session.Default())
		assert.ErrorIs(t, err, compiler.ErrNoCompiler)
	})

	t.Run("invalid state", func(t *testing.T) {
		inv, _ := realStages()
		state := session.Default()
		state.Minify = "aggressive"
		_, err := RunOnce(context.Background(), inv, nil, state)
		assert.Error(t, err)
	})

	t.Run("bundle failure is reported on the snapshot", func(t *testing.T) {
		inv, _ := realStages()
		bun := &fakeBundler{}
		bun.setFail(true)
		state := session.Default().WithOptions(session.MinifyNone, session.EntrySmart, true)

		snap, err := RunOnce(context.Background(), inv, bun, state)
		require.NoError(t, err)
		assert.NotEmpty(t, snap.Error)
		assert.Len(t, snap.Modules, 1)
		assert.Empty(t, snap.Bundles)
	})
}

func TestOrchestrator_RealStagesSkipUnchangedInput(t *testing.T) {
	inv, bun := realStages()
	seed := session.Default().WithOptions(session.MinifyNone, session.EntrySmart, true)
	port := session.NewMemoryPort(fragmentFor(t, seed))

	o := startOrchestrator(t, Deps{Compiler: inv, Bundler: bun, Port: port}, testOptions())
	first := settle(t, o)

	require.Empty(t, first.Error)
	require.Len(t, first.Modules, 1)
	require.NotEmpty(t, first.Bundles)
	assert.True(t, first.Bundles[0].IsEntryPoint)

	require.NoError(t, o.SetSource(seed.Source))
	again := settle(t, o)

	assert.Equal(t, first.Generation, again.Generation)
	assert.Equal(t, first.Modules, again.Modules)
	assert.Equal(t, first.Bundles, again.Bundles)
}
