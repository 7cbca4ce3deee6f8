package compiler

import (
	"context"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/fluxbase-eu/playground/internal/session"
)

// EsbuildCompiler compiles the playground document in-process with esbuild's
// transform API. It always emits a single module, whatever entry strategy is
// requested.
type EsbuildCompiler struct {
	jsxFactory  string
	jsxFragment string
}

// NewEsbuildCompiler creates an esbuild-backed compiler using the h/Fragment
// JSX factory expected by the seed document.
func NewEsbuildCompiler() *EsbuildCompiler {
	return &EsbuildCompiler{
		jsxFactory:  "h",
		jsxFragment: "Fragment",
	}
}

// Compile transforms every input file. esbuild errors become diagnostics
// rather than failures; only a cancelled context fails the call.
func (c *EsbuildCompiler) Compile(ctx context.Context, opts CompileOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Modules:     []ModuleArtifact{},
		Diagnostics: []Diagnostic{},
	}

	for _, in := range opts.Input {
		transformed := api.Transform(in.Code, c.transformOptions(opts, in.Path))

		for _, msg := range transformed.Errors {
			result.Diagnostics = append(result.Diagnostics, messageToDiagnostic(msg))
		}
		if len(transformed.Errors) > 0 {
			continue
		}

		result.Modules = append(result.Modules, ModuleArtifact{
			Path: OutputPath(in.Path, opts.Transpile),
			Code: string(transformed.Code),
		})
	}

	return result, nil
}

func (c *EsbuildCompiler) transformOptions(opts CompileOptions, sourcefile string) api.TransformOptions {
	to := api.TransformOptions{
		Loader:      loaderFor(sourcefile),
		Format:      api.FormatESModule,
		Target:      api.ESNext,
		Sourcefile:  sourcefile,
		JSX:         api.JSXPreserve,
		JSXFactory:  c.jsxFactory,
		JSXFragment: c.jsxFragment,
		LogLevel:    api.LogLevelSilent,
	}
	if opts.Transpile {
		to.JSX = api.JSXTransform
	}
	if opts.SourceMaps {
		to.Sourcemap = api.SourceMapInline
	}

	switch opts.Minify {
	case session.MinifyMinify:
		to.MinifyWhitespace = true
		to.MinifyIdentifiers = true
		to.MinifySyntax = true
	case session.MinifySimplify:
		to.MinifySyntax = true
	}

	return to
}

func loaderFor(file string) api.Loader {
	switch strings.ToLower(path.Ext(file)) {
	case ".ts":
		return api.LoaderTS
	case ".jsx":
		return api.LoaderJSX
	case ".js", ".mjs":
		return api.LoaderJS
	default:
		return api.LoaderTSX
	}
}

// OutputPath derives the module path emitted for an input document. Transpiled
// output is plain JavaScript; otherwise the input extension is kept.
func OutputPath(input string, transpile bool) string {
	if !transpile {
		return input
	}
	ext := path.Ext(input)
	return strings.TrimSuffix(input, ext) + ".js"
}

func messageToDiagnostic(msg api.Message) Diagnostic {
	d := Diagnostic{Message: msg.Text}
	if msg.Location == nil {
		return d
	}

	loc := msg.Location
	startCol := loc.Column + 1
	d.Highlights = []Highlight{{
		StartLine: loc.Line,
		StartCol:  startCol,
		EndLine:   loc.Line,
		EndCol:    startCol + loc.Length,
	}}
	return d
}
