// Package session holds the reproducible playground state and its shareable
// fragment encoding.
package session

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidState is returned for a state that cannot be represented in a
// fragment: unknown enum values or a source that is not UTF-8
var ErrInvalidState = errors.New("invalid state")

// MinifyMode is the compiler-side code size reduction setting
type MinifyMode string

const (
	MinifyNone     MinifyMode = "none"
	MinifyMinify   MinifyMode = "minify"
	MinifySimplify MinifyMode = "simplify"
)

// Valid reports whether m is one of the known minify modes
func (m MinifyMode) Valid() bool {
	switch m {
	case MinifyNone, MinifyMinify, MinifySimplify:
		return true
	}
	return false
}

// EntryStrategy controls how the compiler splits output modules
type EntryStrategy string

const (
	EntrySmart     EntryStrategy = "smart"
	EntrySingle    EntryStrategy = "single"
	EntryHook      EntryStrategy = "hook"
	EntryComponent EntryStrategy = "component"
)

// Valid reports whether e is one of the known entry strategies
func (e EntryStrategy) Valid() bool {
	switch e {
	case EntrySmart, EntrySingle, EntryHook, EntryComponent:
		return true
	}
	return false
}

// View selects which artifact collection is displayed
type View string

const (
	ViewModules View = "modules"
	ViewBundles View = "bundles"

	// viewChunksLegacy is the option value older playground builds used for bundles
	viewChunksLegacy View = "chunks"
)

// Valid reports whether v is one of the known views
func (v View) Valid() bool {
	return v == ViewModules || v == ViewBundles
}

// ParseMinifyMode parses a minify mode, rejecting unknown values
func ParseMinifyMode(s string) (MinifyMode, error) {
	m := MinifyMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: invalid minify mode: %q (valid: none, minify, simplify)", ErrInvalidState, s)
	}
	return m, nil
}

// ParseEntryStrategy parses an entry strategy, rejecting unknown values
func ParseEntryStrategy(s string) (EntryStrategy, error) {
	e := EntryStrategy(s)
	if !e.Valid() {
		return "", fmt.Errorf("%w: invalid entry strategy: %q (valid: smart, single, hook, component)", ErrInvalidState, s)
	}
	return e, nil
}

// ParseView parses a view name. The legacy "chunks" value maps to bundles.
func ParseView(s string) (View, error) {
	v := View(s)
	if v == viewChunksLegacy {
		return ViewBundles, nil
	}
	if !v.Valid() {
		return "", fmt.Errorf("%w: invalid view: %q (valid: modules, bundles)", ErrInvalidState, s)
	}
	return v, nil
}

// State is an immutable snapshot of everything needed to reproduce a
// playground session. A new value replaces the old one on every user input.
type State struct {
	Source        string        `json:"source"`
	Minify        MinifyMode    `json:"minify"`
	EntryStrategy EntryStrategy `json:"entry_strategy"`
	Transpile     bool          `json:"transpile"`
	View          View          `json:"view"`
}

// Default returns the zero-state seed used when no fragment is present
func Default() State {
	return State{
		Source:        DefaultSource,
		Minify:        MinifyNone,
		EntryStrategy: EntrySmart,
		Transpile:     false,
		View:          ViewModules,
	}
}

// Validate checks that the state is representable in a fragment token
func (s State) Validate() error {
	if !utf8.ValidString(s.Source) {
		return fmt.Errorf("%w: source is not valid UTF-8", ErrInvalidState)
	}
	if !s.Minify.Valid() {
		return fmt.Errorf("%w: invalid minify mode: %q", ErrInvalidState, s.Minify)
	}
	if !s.EntryStrategy.Valid() {
		return fmt.Errorf("%w: invalid entry strategy: %q", ErrInvalidState, s.EntryStrategy)
	}
	if !s.View.Valid() {
		return fmt.Errorf("%w: invalid view: %q", ErrInvalidState, s.View)
	}
	return nil
}

// WithSource returns a copy of s with the source replaced
func (s State) WithSource(source string) State {
	s.Source = source
	return s
}

// WithOptions returns a copy of s with the compiler options replaced
func (s State) WithOptions(minify MinifyMode, entry EntryStrategy, transpile bool) State {
	s.Minify = minify
	s.EntryStrategy = entry
	s.Transpile = transpile
	return s
}

// WithView returns a copy of s with the view replaced
func (s State) WithView(view View) State {
	s.View = view
	return s
}

// SameCompileInput reports whether a and b would produce the same compiler
// invocation. The view does not take part in compilation.
func (s State) SameCompileInput(other State) bool {
	return s.Source == other.Source &&
		s.Minify == other.Minify &&
		s.EntryStrategy == other.EntryStrategy &&
		s.Transpile == other.Transpile
}

// DefaultSource is the example document shipped as the zero-state seed
const DefaultSource = `import { qComponent, qHook, h, useEvent } from '@builder.io/qwik';

export const Greeter = qComponent({
  onRender: qHook((props) => (
    <div>
      <div>
        Your name:
        <input
          value={props.name}
          on:keyup={qHook<typeof Greeter>(
            (props) => (props.name = (useEvent<KeyboardEvent>().target as HTMLInputElement).value)
          )}
        />
      </div>
      <span>Hello {props.name}!</span>
    </div>
  )),
});

`
