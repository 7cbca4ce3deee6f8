package bundler

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/playground/internal/compiler"
)

func greetModules() []compiler.ModuleArtifact {
	return []compiler.ModuleArtifact{
		{
			Path: "input.js",
			Code: `import { greet } from "./greet";
import { component$ } from "@builder.io/qwik";
export const App = component$(() => greet("world"));
`,
		},
		{
			Path: "greet.js",
			Code: `export const greet = (who) => "hello " + who;
`,
		},
	}
}

func TestPipeline_Bundle(t *testing.T) {
	p := NewPipeline()
	assert.Equal(t, EntryID, p.Entry())

	result, err := p.Bundle(context.Background(), greetModules())
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)

	entry := result.Chunks[0]
	assert.Equal(t, "input.js", entry.Path)
	assert.True(t, entry.IsEntryPoint)
	assert.False(t, entry.IsDynamicEntry)
	assert.Contains(t, entry.Code, `"hello "`)
	assert.Contains(t, entry.Code, `@builder.io/qwik`, "bare imports stay external")
	require.NotNil(t, result.Metafile)
}

func TestPipeline_BundleDynamicImport(t *testing.T) {
	modules := []compiler.ModuleArtifact{
		{Path: "input.js", Code: `export const load = () => import("./lazy");
`},
		{Path: "lazy.js", Code: `export const value = 42;
`},
	}

	result, err := NewPipeline().Bundle(context.Background(), modules)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.Chunks), 2)

	assert.True(t, result.Chunks[0].IsEntryPoint)
	assert.Equal(t, "input.js", result.Chunks[0].Path)

	var dynamic []Chunk
	for _, c := range result.Chunks[1:] {
		assert.False(t, c.IsEntryPoint)
		if c.IsDynamicEntry {
			dynamic = append(dynamic, c)
		}
	}
	require.Len(t, dynamic, 1)
	assert.Contains(t, dynamic[0].Code, "42")
}

func TestPipeline_BundleErrors(t *testing.T) {
	t.Run("missing relative module", func(t *testing.T) {
		modules := []compiler.ModuleArtifact{
			{Path: "input.js", Code: `import { x } from "./missing";
export default x;
`},
		}
		_, err := NewPipeline().Bundle(context.Background(), modules)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrModuleNotFound))
		assert.Contains(t, err.Error(), "./missing.js")
	})

	t.Run("missing entry module", func(t *testing.T) {
		modules := []compiler.ModuleArtifact{
			{Path: "input.tsx", Code: `export const a = 1;`},
		}
		_, err := NewPipeline().Bundle(context.Background(), modules)
		assert.ErrorIs(t, err, ErrModuleNotFound)
	})

	t.Run("syntax error", func(t *testing.T) {
		modules := []compiler.ModuleArtifact{
			{Path: "input.js", Code: `export const = ;`},
		}
		_, err := NewPipeline().Bundle(context.Background(), modules)
		assert.ErrorIs(t, err, ErrBuildFailed)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewPipeline().Bundle(ctx, greetModules())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestAnalyze(t *testing.T) {
	result, err := NewPipeline().Bundle(context.Background(), greetModules())
	require.NoError(t, err)

	analysis := Analyze("playground", result)
	assert.Equal(t, "playground", analysis.Name)
	assert.Positive(t, analysis.TotalBytes)
	require.Len(t, analysis.Chunks, 1)
	assert.True(t, analysis.Chunks[0].IsEntryPoint)
	assert.Equal(t, []string{"@builder.io/qwik"}, analysis.ExternalImports)

	paths := make([]string, 0, len(analysis.InputFiles))
	for _, f := range analysis.InputFiles {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{"input.js", "./greet.js"}, paths)

	var buf bytes.Buffer
	DisplayAnalysis(&buf, analysis, true)
	out := buf.String()
	assert.Contains(t, out, "Bundle Analysis: playground")
	assert.Contains(t, out, "@builder.io/qwik")
	assert.Contains(t, out, "entry")
}

func TestAnalyze_Empty(t *testing.T) {
	analysis := Analyze("empty", nil)
	assert.Zero(t, analysis.TotalBytes)
	assert.Empty(t, analysis.Chunks)
}

func TestFormatBytesHuman(t *testing.T) {
	assert.Equal(t, "512 B", formatBytesHuman(512))
	assert.Equal(t, "1.50 KB", formatBytesHuman(1536))
	assert.Equal(t, "2.00 MB", formatBytesHuman(2*1024*1024))
}
