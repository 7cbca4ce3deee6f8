package compiler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/playground/internal/observability"
	"github.com/fluxbase-eu/playground/internal/session"
)

const (
	// DefaultRootDir is the virtual project root passed to the compiler
	DefaultRootDir = "/internal/project"

	// DefaultInputPath is the path of the single source document
	DefaultInputPath = "input.tsx"
)

// Invoker builds compile options from a session state and normalizes the
// compiler's response.
type Invoker struct {
	compiler  Compiler
	rootDir   string
	inputPath string
	metrics   *observability.Metrics
}

// InvokerOption configures an Invoker
type InvokerOption func(*Invoker)

// WithRootDir overrides the project root
func WithRootDir(dir string) InvokerOption {
	return func(i *Invoker) {
		if dir != "" {
			i.rootDir = dir
		}
	}
}

// WithInputPath overrides the input document path
func WithInputPath(path string) InvokerOption {
	return func(i *Invoker) {
		if path != "" {
			i.inputPath = path
		}
	}
}

// WithMetrics records compile durations
func WithMetrics(m *observability.Metrics) InvokerOption {
	return func(i *Invoker) {
		i.metrics = m
	}
}

// NewInvoker creates an invoker. A nil compiler is allowed: the invoker then
// reports not ready and the pipeline stays idle.
func NewInvoker(c Compiler, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		compiler:  c,
		rootDir:   DefaultRootDir,
		inputPath: DefaultInputPath,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ready reports whether a compiler is loaded
func (i *Invoker) Ready() bool {
	return i != nil && i.compiler != nil
}

// InputPath returns the path of the source document
func (i *Invoker) InputPath() string {
	return i.inputPath
}

// Options derives the compile options for a state and debounced source
func (i *Invoker) Options(state session.State, source string) CompileOptions {
	return CompileOptions{
		RootDir:       i.rootDir,
		Transpile:     state.Transpile,
		Minify:        state.Minify,
		EntryStrategy: state.EntryStrategy,
		SourceMaps:    false,
		Input: []InputFile{
			{Path: i.inputPath, Code: source},
		},
	}
}

// Invoke compiles source with the options carried by state
func (i *Invoker) Invoke(ctx context.Context, state session.State, source string) (*Result, error) {
	if !i.Ready() {
		return nil, ErrNoCompiler
	}

	opts := i.Options(state, source)

	ctx, span := observability.StartPipelineSpan(ctx, "compile", observability.PipelineSpanConfig{
		Minify:        string(opts.Minify),
		EntryStrategy: string(opts.EntryStrategy),
		Transpile:     opts.Transpile,
	})
	start := time.Now()

	log.Debug().
		Str("root_dir", opts.RootDir).
		Str("minify", string(opts.Minify)).
		Str("entry_strategy", string(opts.EntryStrategy)).
		Bool("transpile", opts.Transpile).
		Int("source_bytes", len(source)).
		Msg("Invoking compiler")

	raw, err := i.compiler.Compile(ctx, opts)
	if err == nil {
		raw, err = normalize(raw)
	}

	if i.metrics != nil {
		i.metrics.RecordStage("compile", time.Since(start), err)
	}
	observability.EndSpan(span, err)

	if err != nil {
		return nil, err
	}
	return raw, nil
}

// normalize validates a compiler response and returns a deep copy that the
// caller can treat as immutable.
func normalize(raw *Result) (*Result, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidResult)
	}

	out := &Result{
		Modules:     make([]ModuleArtifact, 0, len(raw.Modules)),
		Diagnostics: make([]Diagnostic, 0, len(raw.Diagnostics)),
	}

	for idx, m := range raw.Modules {
		if m.Path == "" {
			return nil, fmt.Errorf("%w: module %d has no path", ErrInvalidResult, idx)
		}
		out.Modules = append(out.Modules, m)
	}

	for _, d := range raw.Diagnostics {
		hl := make([]Highlight, 0, len(d.Highlights))
		for _, h := range d.Highlights {
			hl = append(hl, clampHighlight(h))
		}
		out.Diagnostics = append(out.Diagnostics, Diagnostic{
			Message:    d.Message,
			Highlights: hl,
		})
	}

	return out, nil
}

func clampHighlight(h Highlight) Highlight {
	h.StartLine = max(h.StartLine, 1)
	h.StartCol = max(h.StartCol, 1)
	h.EndLine = max(h.EndLine, h.StartLine)
	if h.EndLine == h.StartLine {
		h.EndCol = max(h.EndCol, h.StartCol)
	} else {
		h.EndCol = max(h.EndCol, 1)
	}
	return h
}
