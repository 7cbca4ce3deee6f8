package bundler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/playground/internal/compiler"
	"github.com/fluxbase-eu/playground/internal/observability"
)

const (
	virtualNamespace = "virtual"
	outDir           = "out"
)

var (
	// ErrModuleNotFound is returned when an import resolves to an id no module serves
	ErrModuleNotFound = errors.New("module not found")

	// ErrBuildFailed is returned for any other bundling error
	ErrBuildFailed = errors.New("bundle failed")
)

// Chunk is one bundled output file
type Chunk struct {
	Path           string `json:"path"`
	Code           string `json:"code"`
	IsEntryPoint   bool   `json:"isEntryPoint"`
	IsDynamicEntry bool   `json:"isDynamicEntry"`
}

// BundleResult contains the chunks of one bundling pass
type BundleResult struct {
	Chunks   []Chunk   `json:"chunks"`
	Warnings []string  `json:"warnings,omitempty"`
	Metafile *Metafile `json:"-"`
}

// Pipeline bundles a compiled module set. It is safe for concurrent use; each
// call builds its own resolver.
type Pipeline struct {
	entry   string
	metrics *observability.Metrics
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithEntry overrides the entry module id
func WithEntry(entry string) Option {
	return func(p *Pipeline) {
		if entry != "" {
			p.entry = entry
		}
	}
}

// WithMetrics records bundle durations
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a bundling pipeline
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{entry: EntryID}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Entry returns the entry module id
func (p *Pipeline) Entry() string {
	return p.entry
}

// Bundle links modules starting from the entry id. Bare imports stay external.
func (p *Pipeline) Bundle(ctx context.Context, modules []compiler.ModuleArtifact) (*BundleResult, error) {
	ctx, span := observability.StartPipelineSpan(ctx, "bundle", observability.PipelineSpanConfig{
		Modules: len(modules),
	})
	start := time.Now()

	result, err := p.bundle(ctx, modules)

	if p.metrics != nil {
		p.metrics.RecordStage("bundle", time.Since(start), err)
	}
	observability.EndSpan(span, err)
	return result, err
}

func (p *Pipeline) bundle(ctx context.Context, modules []compiler.ModuleArtifact) (*BundleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolver := NewVirtualResolver(modules)
	missing := &missingIDs{}

	buildCtx, ctxErr := api.Context(api.BuildOptions{
		EntryPoints: []string{p.entry},
		Bundle:      true,
		Splitting:   true,
		Outdir:      outDir,
		Write:       false,
		Metafile:    true,
		Format:      api.FormatESModule,
		Platform:    api.PlatformNeutral,
		Target:      api.ESNext,
		LogLevel:    api.LogLevelSilent,
		ChunkNames:  "[name]-[hash]",
		Plugins: []api.Plugin{
			virtualPlugin(resolver, missing),
		},
	})
	if ctxErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrBuildFailed, joinMessages(ctxErr.Errors))
	}
	defer buildCtx.Dispose()

	stop := context.AfterFunc(ctx, buildCtx.Cancel)
	defer stop()

	built := buildCtx.Rebuild()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	warnings := make([]string, 0, len(built.Warnings))
	for _, w := range built.Warnings {
		warnings = append(warnings, w.Text)
	}
	if len(warnings) > 0 {
		log.Warn().Strs("warnings", warnings).Msg("Bundler reported warnings")
	}

	if len(built.Errors) > 0 {
		if ids := missing.list(); len(ids) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, strings.Join(ids, ", "))
		}
		return nil, fmt.Errorf("%w: %s", ErrBuildFailed, joinMessages(built.Errors))
	}

	var meta Metafile
	if err := json.Unmarshal([]byte(built.Metafile), &meta); err != nil {
		return nil, fmt.Errorf("%w: failed to parse metafile: %v", ErrBuildFailed, err)
	}

	chunks := p.collectChunks(&meta, built.OutputFiles)

	return &BundleResult{
		Chunks:   chunks,
		Warnings: warnings,
		Metafile: &meta,
	}, nil
}

// collectChunks pairs metafile outputs with the generated files. The entry
// chunk comes first, the rest follow in path order.
func (p *Pipeline) collectChunks(meta *Metafile, files []api.OutputFile) []Chunk {
	entryKey := virtualNamespace + ":" + p.entry

	chunks := make([]Chunk, 0, len(meta.Outputs))
	for key, out := range meta.Outputs {
		rel := strings.TrimPrefix(path.Clean(key), outDir+"/")
		chunk := Chunk{
			Path:           rel,
			IsEntryPoint:   out.EntryPoint == entryKey,
			IsDynamicEntry: out.EntryPoint != "" && out.EntryPoint != entryKey,
		}
		for _, f := range files {
			if strings.HasSuffix(filepath.ToSlash(f.Path), "/"+outDir+"/"+rel) {
				chunk.Code = string(f.Contents)
				break
			}
		}
		chunks = append(chunks, chunk)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].IsEntryPoint != chunks[j].IsEntryPoint {
			return chunks[i].IsEntryPoint
		}
		return chunks[i].Path < chunks[j].Path
	})
	return chunks
}

// virtualPlugin routes every resolve and load through the resolver
func virtualPlugin(resolver *VirtualResolver, missing *missingIDs) api.Plugin {
	return api.Plugin{
		Name: "virtual-modules",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `.*`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					importer := args.Importer
					if args.Kind == api.ResolveEntryPoint {
						importer = ""
					}

					id, ok := resolver.Resolve(args.Path, importer)
					if !ok {
						return api.OnResolveResult{
							Path:     args.Path,
							External: true,
						}, nil
					}
					return api.OnResolveResult{
						Path:      id,
						Namespace: virtualNamespace,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: virtualNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					m, ok := resolver.Lookup(args.Path)
					if !ok {
						missing.add(args.Path)
						return api.OnLoadResult{}, fmt.Errorf("%w: %s", ErrModuleNotFound, args.Path)
					}
					code := m.Code
					return api.OnLoadResult{
						Contents: &code,
						Loader:   loaderFor(m.Path),
					}, nil
				})
		},
	}
}

func loaderFor(file string) api.Loader {
	switch strings.ToLower(path.Ext(file)) {
	case ".tsx":
		return api.LoaderTSX
	case ".ts":
		return api.LoaderTS
	case ".jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

// missingIDs collects declined loads; esbuild runs plugin callbacks concurrently
type missingIDs struct {
	mu  sync.Mutex
	ids []string
}

func (m *missingIDs) add(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
}

func (m *missingIDs) list() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.ids))
	copy(out, m.ids)
	sort.Strings(out)
	return out
}

func joinMessages(msgs []api.Message) string {
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		texts = append(texts, m.Text)
	}
	return strings.Join(texts, "; ")
}
