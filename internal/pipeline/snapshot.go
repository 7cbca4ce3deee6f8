// Package pipeline runs the reactive compile and bundle loop behind the
// playground: edits are debounced, compiled, optionally bundled, and the
// result is published as an immutable snapshot.
package pipeline

import (
	"context"
	"time"

	"github.com/fluxbase-eu/playground/internal/bundler"
	"github.com/fluxbase-eu/playground/internal/compiler"
	"github.com/fluxbase-eu/playground/internal/diagnostics"
	"github.com/fluxbase-eu/playground/internal/session"
)

// Phase is where the orchestrator is in its cycle
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseDebouncing Phase = "debouncing"
	PhaseCompiling  Phase = "compiling"
	PhaseBundling   Phase = "bundling"
	PhaseDisplaying Phase = "displaying"
)

// Compiler is the compile stage. *compiler.Invoker implements it.
type Compiler interface {
	Ready() bool
	Invoke(ctx context.Context, state session.State, source string) (*compiler.Result, error)
}

// Bundler is the bundle stage. *bundler.Pipeline implements it.
type Bundler interface {
	Bundle(ctx context.Context, modules []compiler.ModuleArtifact) (*bundler.BundleResult, error)
}

// Snapshot is the displayed state. It is replaced wholesale, never mutated.
type Snapshot struct {
	// Generation is the run that last settled (published or failed)
	Generation  uint64                    `json:"generation"`
	State       session.State             `json:"state"`
	Fragment    string                    `json:"fragment"`
	Phase       Phase                     `json:"phase"`
	Modules     []compiler.ModuleArtifact `json:"modules"`
	Bundles     []bundler.Chunk           `json:"bundles"`
	Diagnostics []compiler.Diagnostic     `json:"diagnostics"`
	Markers     []diagnostics.Marker      `json:"markers"`
	Error       string                    `json:"error,omitempty"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// Artifact is one entry of the output panel
type Artifact struct {
	Path           string `json:"path"`
	Code           string `json:"code"`
	IsEntryPoint   bool   `json:"isEntryPoint,omitempty"`
	IsDynamicEntry bool   `json:"isDynamicEntry,omitempty"`
}

// Visible returns the artifacts shown for view: modules or bundle chunks
func (s *Snapshot) Visible(view session.View) []Artifact {
	if view == session.ViewBundles {
		out := make([]Artifact, 0, len(s.Bundles))
		for _, c := range s.Bundles {
			out = append(out, Artifact{
				Path:           c.Path,
				Code:           c.Code,
				IsEntryPoint:   c.IsEntryPoint,
				IsDynamicEntry: c.IsDynamicEntry,
			})
		}
		return out
	}

	out := make([]Artifact, 0, len(s.Modules))
	for _, m := range s.Modules {
		out = append(out, Artifact{Path: m.Path, Code: m.Code})
	}
	return out
}

func emptySnapshot(state session.State) *Snapshot {
	return &Snapshot{
		State:       state,
		Phase:       PhaseIdle,
		Modules:     []compiler.ModuleArtifact{},
		Bundles:     []bundler.Chunk{},
		Diagnostics: []compiler.Diagnostic{},
		Markers:     []diagnostics.Marker{},
		UpdatedAt:   time.Now().UTC(),
	}
}
