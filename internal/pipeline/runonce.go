package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxbase-eu/playground/internal/bundler"
	"github.com/fluxbase-eu/playground/internal/compiler"
	"github.com/fluxbase-eu/playground/internal/diagnostics"
	"github.com/fluxbase-eu/playground/internal/session"
)

// RunOnce compiles and, when state asks for transpiled output, bundles a
// single state outside of any orchestrator. A compile failure is returned as
// an error. A bundle failure still yields a snapshot carrying the modules,
// with the failure recorded in Snapshot.Error. A nil bundler skips bundling.
func RunOnce(ctx context.Context, c Compiler, b Bundler, state session.State) (*Snapshot, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	if c == nil || !c.Ready() {
		return nil, compiler.ErrNoCompiler
	}

	result, err := c.Invoke(ctx, state, state.Source)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	snap := emptySnapshot(state)
	snap.Generation = 1
	snap.Phase = PhaseIdle
	snap.Modules = nonNil(result.Modules)
	snap.Diagnostics = nonNil(result.Diagnostics)
	snap.Markers = diagnostics.ToMarkers(result.Diagnostics)

	if fragment, err := session.ToFragment(state); err == nil {
		snap.Fragment = fragment
	}

	if state.Transpile && b != nil {
		bundle, err := b.Bundle(ctx, result.Modules)
		switch {
		case err != nil:
			snap.Error = err.Error()
		default:
			snap.Bundles = nonNil(bundle.Chunks)
		}
	}

	snap.UpdatedAt = time.Now().UTC()
	return snap, nil
}

// compile-time checks
var (
	_ Compiler = (*compiler.Invoker)(nil)
	_ Bundler  = (*bundler.Pipeline)(nil)
)
