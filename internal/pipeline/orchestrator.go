package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/playground/internal/bundler"
	"github.com/fluxbase-eu/playground/internal/compiler"
	"github.com/fluxbase-eu/playground/internal/debounce"
	"github.com/fluxbase-eu/playground/internal/diagnostics"
	"github.com/fluxbase-eu/playground/internal/observability"
	"github.com/fluxbase-eu/playground/internal/pubsub"
	"github.com/fluxbase-eu/playground/internal/session"
)

var (
	// ErrNotStarted is returned by inputs sent before Start
	ErrNotStarted = errors.New("orchestrator not started")

	// ErrStopped is returned by inputs sent after the loop exited
	ErrStopped = errors.New("orchestrator stopped")

	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New("orchestrator already started")
)

// Deps are the orchestrator's collaborators. Only Compiler and Port are
// required.
type Deps struct {
	Compiler Compiler
	Bundler  Bundler
	Mapper   *diagnostics.Mapper
	Port     session.Port
	PubSub   pubsub.PubSub
	Metrics  *observability.Metrics
	Clock    debounce.Clock
}

// Options tune the orchestrator
type Options struct {
	DebounceWindow time.Duration
	// Bundle enables the bundle stage for transpiled output
	Bundle bool
}

// DefaultOptions returns the options used by the server
func DefaultOptions() Options {
	return Options{
		DebounceWindow: debounce.DefaultWindow,
		Bundle:         true,
	}
}

// OptionsUpdate changes some of the compile options. Nil fields keep the
// value the loop holds when the update is applied, not the value visible in
// the last snapshot.
type OptionsUpdate struct {
	Minify        *session.MinifyMode
	EntryStrategy *session.EntryStrategy
	Transpile     *bool
}

func (u OptionsUpdate) apply(s session.State) session.State {
	minify, entry, transpile := s.Minify, s.EntryStrategy, s.Transpile
	if u.Minify != nil {
		minify = *u.Minify
	}
	if u.EntryStrategy != nil {
		entry = *u.EntryStrategy
	}
	if u.Transpile != nil {
		transpile = *u.Transpile
	}
	return s.WithOptions(minify, entry, transpile)
}

// loop inputs
type (
	editEvent struct {
		source string
	}
	optionsEvent struct {
		update OptionsUpdate
	}
	viewEvent struct {
		view session.View
	}
	debouncedEvent struct {
		seq    uint64
		source string
	}
	compiledEvent struct {
		generation uint64
		input      session.State
		result     *compiler.Result
		err        error
	}
	bundledEvent struct {
		generation uint64
		input      session.State
		result     *compiler.Result
		bundle     *bundler.BundleResult
		err        error
	}
	settleEvent struct {
		reply chan *Snapshot
	}
)

// Orchestrator owns the playground state. A single goroutine consumes every
// input in order; compile and bundle stages run on workers and report back
// through the same channel tagged with their generation. Results for any
// generation other than the latest are dropped.
type Orchestrator struct {
	deps Deps
	opts Options

	events  chan any
	done    chan struct{}
	stopped chan struct{}
	started atomic.Bool

	snapshot atomic.Pointer[Snapshot]

	changedMu sync.Mutex
	changed   chan struct{}

	workers sync.WaitGroup

	// owned by the loop goroutine
	state         session.State
	fragment      string
	phase         Phase
	debounced     string
	editSeq       uint64
	debouncedSeq  uint64
	generation    uint64
	running       uint64
	outstanding   int
	settled       uint64
	published     *session.State
	modules       []compiler.ModuleArtifact
	bundles       []bundler.Chunk
	diags         []compiler.Diagnostic
	markers       []diagnostics.Marker
	lastErr       string
	settleWaiters []chan *Snapshot
	debouncer     *debounce.Debouncer[debouncedEvent]
	runCtx        context.Context
}

// New creates an orchestrator. It does nothing until Start.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = debounce.DefaultWindow
	}

	o := &Orchestrator{
		deps:    deps,
		opts:    opts,
		events:  make(chan any, 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		changed: make(chan struct{}),
		phase:   PhaseIdle,
	}
	o.snapshot.Store(emptySnapshot(session.Default()))
	return o
}

// Start seeds the state from the port, persists it, starts the control loop
// and kicks off the initial run. Cancelling ctx stops the loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	fragment := ""
	if o.deps.Port != nil {
		f, err := o.deps.Port.Read()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read session fragment, using default state")
		} else {
			fragment = f
		}
	}

	o.state = session.FromFragment(fragment)
	o.debounced = o.state.Source
	o.runCtx = ctx

	var clockOpts []debounce.Option
	if o.deps.Clock != nil {
		clockOpts = append(clockOpts, debounce.WithClock(o.deps.Clock))
	}
	o.debouncer = debounce.New(o.opts.DebounceWindow, o.onDebounced, clockOpts...)

	o.persist()
	o.store()

	log.Info().
		Str("minify", string(o.state.Minify)).
		Str("entry_strategy", string(o.state.EntryStrategy)).
		Bool("transpile", o.state.Transpile).
		Str("view", string(o.state.View)).
		Dur("debounce_window", o.opts.DebounceWindow).
		Msg("Playground pipeline started")

	go o.loop(ctx)
	return nil
}

// Stopped is closed once the loop and all workers have exited
func (o *Orchestrator) Stopped() <-chan struct{} {
	return o.stopped
}

// SetSource records an edit. The compile happens once edits settle.
func (o *Orchestrator) SetSource(source string) error {
	if err := session.Default().WithSource(source).Validate(); err != nil {
		return err
	}
	return o.send(editEvent{source: source})
}

// SetOptions changes the compiler options and runs immediately on the last
// settled source.
func (o *Orchestrator) SetOptions(minify session.MinifyMode, entry session.EntryStrategy, transpile bool) error {
	return o.UpdateOptions(OptionsUpdate{Minify: &minify, EntryStrategy: &entry, Transpile: &transpile})
}

// UpdateOptions is SetOptions for a subset of the options. Updates are merged
// in the order they are received.
func (o *Orchestrator) UpdateOptions(update OptionsUpdate) error {
	if err := update.apply(session.Default()).Validate(); err != nil {
		return err
	}
	return o.send(optionsEvent{update: update})
}

// SetView changes which output is displayed. It never triggers a run.
func (o *Orchestrator) SetView(view session.View) error {
	if err := session.Default().WithView(view).Validate(); err != nil {
		return err
	}
	return o.send(viewEvent{view: view})
}

// Snapshot returns the latest published snapshot without blocking the loop
func (o *Orchestrator) Snapshot() *Snapshot {
	return o.snapshot.Load()
}

// Wait blocks until a snapshot whose settled generation is at least
// generation has been published.
func (o *Orchestrator) Wait(ctx context.Context, generation uint64) (*Snapshot, error) {
	for {
		o.changedMu.Lock()
		ch := o.changed
		o.changedMu.Unlock()

		if snap := o.Snapshot(); snap.Generation >= generation {
			return snap, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-o.stopped:
			return nil, ErrStopped
		}
	}
}

// Settle blocks until every input sent before the call has been fully
// processed: no edit is waiting on the debouncer and no stage is running.
func (o *Orchestrator) Settle(ctx context.Context) (*Snapshot, error) {
	reply := make(chan *Snapshot, 1)
	if err := o.send(settleEvent{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-o.stopped:
		return nil, ErrStopped
	}
}

func (o *Orchestrator) send(ev any) error {
	if !o.started.Load() {
		return ErrNotStarted
	}
	select {
	case <-o.done:
		return ErrStopped
	default:
	}
	select {
	case o.events <- ev:
		return nil
	case <-o.done:
		return ErrStopped
	}
}

// onDebounced runs on the debouncer's timer goroutine
func (o *Orchestrator) onDebounced(e debouncedEvent) {
	select {
	case o.events <- e:
	case <-o.done:
	}
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer func() {
		o.debouncer.Stop()
		close(o.done)
		o.workers.Wait()
		close(o.stopped)
		log.Info().Uint64("generation", o.generation).Msg("Playground pipeline stopped")
	}()

	o.startRun("initial")

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.events:
			o.handle(ev)
			o.resolveSettled()
		}
	}
}

func (o *Orchestrator) handle(ev any) {
	switch e := ev.(type) {
	case editEvent:
		o.state = o.state.WithSource(e.source)
		o.editSeq++
		o.debouncer.Push(debouncedEvent{seq: o.editSeq, source: e.source})
		o.persist()
		o.phase = PhaseDebouncing
		o.store()

	case optionsEvent:
		o.state = e.update.apply(o.state)
		o.persist()
		o.store()
		o.startRun("options")

	case viewEvent:
		o.state = o.state.WithView(e.view)
		o.persist()
		o.store()

	case debouncedEvent:
		if e.seq > o.debouncedSeq {
			o.debouncedSeq = e.seq
		}
		o.debounced = e.source
		o.startRun("edit")

	case compiledEvent:
		o.outstanding--
		o.onCompiled(e)

	case bundledEvent:
		o.outstanding--
		o.onBundled(e)

	case settleEvent:
		o.settleWaiters = append(o.settleWaiters, e.reply)
	}
}

// startRun mints a generation for the current options and settled source
func (o *Orchestrator) startRun(reason string) {
	if o.deps.Compiler == nil || !o.deps.Compiler.Ready() {
		log.Debug().Str("reason", reason).Msg("No compiler loaded, pipeline stays idle")
		o.setPhase(o.restingPhase())
		return
	}

	input := o.state.WithSource(o.debounced)

	if o.running == 0 && o.published != nil && o.published.SameCompileInput(input) {
		log.Debug().Str("reason", reason).Uint64("generation", o.generation).Msg("Input unchanged, skipping run")
		o.recordRun("skipped")
		// the published output is displayed again, so a failure from a
		// later run no longer applies
		if o.lastErr != "" {
			o.lastErr = ""
			o.store()
		}
		o.setPhase(o.restingPhase())
		return
	}

	o.generation++
	gen := o.generation
	o.running = gen
	if o.deps.Metrics != nil {
		o.deps.Metrics.SetGeneration(gen)
	}

	log.Debug().
		Str("run_id", uuid.NewString()).
		Str("reason", reason).
		Uint64("generation", gen).
		Msg("Starting pipeline run")

	o.setPhase(PhaseCompiling)
	o.spawn(func(ctx context.Context) any {
		result, err := o.deps.Compiler.Invoke(ctx, input, input.Source)
		return compiledEvent{generation: gen, input: input, result: result, err: err}
	})
}

func (o *Orchestrator) onCompiled(e compiledEvent) {
	if e.generation != o.generation {
		o.dropStale("compile", e.generation)
		return
	}

	if e.err != nil {
		log.Error().Err(e.err).Uint64("generation", e.generation).Msg("Compile failed, keeping displayed output")
		o.running = 0
		o.settled = e.generation
		o.lastErr = e.err.Error()
		o.recordRun("compile_failed")
		o.setPhase(o.restingPhase())
		return
	}

	if !e.input.Transpile || !o.opts.Bundle || o.deps.Bundler == nil {
		o.publish(e.generation, e.input, e.result, []bundler.Chunk{}, "")
		o.recordRun("published")
		return
	}

	o.setPhase(PhaseBundling)
	modules := e.result.Modules
	o.spawn(func(ctx context.Context) any {
		bundle, err := o.deps.Bundler.Bundle(ctx, modules)
		return bundledEvent{generation: e.generation, input: e.input, result: e.result, bundle: bundle, err: err}
	})
}

func (o *Orchestrator) onBundled(e bundledEvent) {
	if e.generation != o.generation {
		o.dropStale("bundle", e.generation)
		return
	}

	if e.err != nil {
		log.Warn().Err(e.err).Uint64("generation", e.generation).Msg("Bundle failed, keeping previous bundles")
		o.publish(e.generation, e.input, e.result, o.bundles, e.err.Error())
		o.recordRun("bundle_failed")
		return
	}

	o.publish(e.generation, e.input, e.result, e.bundle.Chunks, "")
	o.recordRun("published")
}

// publish replaces the displayed output and pushes markers to the surface
func (o *Orchestrator) publish(gen uint64, input session.State, result *compiler.Result, bundles []bundler.Chunk, errMsg string) {
	o.setPhase(PhaseDisplaying)

	o.modules = result.Modules
	o.diags = result.Diagnostics
	o.markers = diagnostics.ToMarkers(result.Diagnostics)
	o.bundles = bundles
	o.lastErr = errMsg
	o.settled = gen
	o.running = 0
	published := input
	o.published = &published

	if o.deps.Mapper != nil {
		applied := o.deps.Mapper.Apply(o.diags)
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordDiagnosticsApplied(applied)
		}
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.UpdateOutputStats(len(o.modules), len(o.bundles), len(o.diags))
	}

	log.Debug().
		Uint64("generation", gen).
		Int("modules", len(o.modules)).
		Int("bundles", len(o.bundles)).
		Int("diagnostics", len(o.diags)).
		Msg("Published pipeline output")

	o.setPhase(o.restingPhase())
}

func (o *Orchestrator) dropStale(stage string, gen uint64) {
	log.Debug().
		Str("stage", stage).
		Uint64("generation", gen).
		Uint64("latest", o.generation).
		Msg("Dropping stale result")
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordStale(stage)
	}
}

func (o *Orchestrator) recordRun(outcome string) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordRun(outcome)
	}
}

// spawn runs a stage on a worker goroutine. The result is delivered to the
// loop unless the loop has already exited.
func (o *Orchestrator) spawn(stage func(ctx context.Context) any) {
	o.outstanding++
	o.workers.Add(1)
	ctx := o.runCtx
	go func() {
		defer o.workers.Done()
		ev := stage(ctx)
		select {
		case o.events <- ev:
		case <-o.done:
		}
	}()
}

// restingPhase is the phase once nothing is running
func (o *Orchestrator) restingPhase() Phase {
	switch {
	case o.running != 0:
		return o.phase
	case o.debouncedSeq < o.editSeq:
		return PhaseDebouncing
	default:
		return PhaseIdle
	}
}

func (o *Orchestrator) setPhase(p Phase) {
	if o.phase == p {
		return
	}
	o.phase = p
	o.store()
}

func (o *Orchestrator) idle() bool {
	return o.debouncedSeq >= o.editSeq && o.outstanding == 0
}

func (o *Orchestrator) resolveSettled() {
	if len(o.settleWaiters) == 0 || !o.idle() {
		return
	}
	snap := o.Snapshot()
	for _, w := range o.settleWaiters {
		w <- snap
	}
	o.settleWaiters = nil
}

// persist writes the fragment for the current state to the port
func (o *Orchestrator) persist() {
	fragment, err := session.ToFragment(o.state)
	if err != nil {
		log.Warn().Err(err).Msg("State is not representable as a fragment")
		return
	}
	o.fragment = fragment

	if o.deps.Port == nil {
		return
	}
	err = o.deps.Port.Write(fragment)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to persist session fragment")
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordFragmentWrite(err)
	}
}

// store builds a new snapshot from loop-owned fields and publishes it
func (o *Orchestrator) store() {
	snap := &Snapshot{
		Generation:  o.settled,
		State:       o.state,
		Fragment:    o.fragment,
		Phase:       o.phase,
		Modules:     nonNil(o.modules),
		Bundles:     nonNil(o.bundles),
		Diagnostics: nonNil(o.diags),
		Markers:     nonNil(o.markers),
		Error:       o.lastErr,
		UpdatedAt:   time.Now().UTC(),
	}
	o.snapshot.Store(snap)

	o.changedMu.Lock()
	close(o.changed)
	o.changed = make(chan struct{})
	o.changedMu.Unlock()

	if o.deps.PubSub != nil {
		payload, err := json.Marshal(snap)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal snapshot")
			return
		}
		if err := o.deps.PubSub.Publish(context.Background(), pubsub.SnapshotChannel, payload); err != nil {
			log.Warn().Err(err).Msg("Failed to publish snapshot")
		}
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
