// Package compiler invokes the external optimizer and normalizes its output
// into module artifacts and diagnostics.
package compiler

import (
	"context"
	"errors"

	"github.com/fluxbase-eu/playground/internal/session"
)

var (
	// ErrNoCompiler is returned when no compiler has been loaded
	ErrNoCompiler = errors.New("compiler not loaded")

	// ErrInvalidResult is returned when a compiler response fails validation
	ErrInvalidResult = errors.New("invalid compiler result")
)

// InputFile is one source document handed to the compiler
type InputFile struct {
	Path string `json:"path"`
	Code string `json:"code"`
}

// CompileOptions is the fully specified option set for one invocation.
// It is built per run and never mutated afterwards.
type CompileOptions struct {
	RootDir       string                `json:"rootDir"`
	Transpile     bool                  `json:"transpile"`
	Minify        session.MinifyMode    `json:"minify"`
	EntryStrategy session.EntryStrategy `json:"entryStrategy"`
	SourceMaps    bool                  `json:"sourceMaps"`
	Input         []InputFile           `json:"input"`
}

// ModuleArtifact is one compiled output module
type ModuleArtifact struct {
	Path string `json:"path"`
	Code string `json:"code"`
}

// Highlight is a source range. Lines and columns are 1-based.
type Highlight struct {
	StartLine int `json:"startLine"`
	StartCol  int `json:"startCol"`
	EndLine   int `json:"endLine"`
	EndCol    int `json:"endCol"`
}

// Diagnostic is a compiler-reported issue tied to source ranges
type Diagnostic struct {
	Message    string      `json:"message"`
	Highlights []Highlight `json:"highlights"`
}

// Result is the normalized output of one compile invocation
type Result struct {
	Modules     []ModuleArtifact `json:"modules"`
	Diagnostics []Diagnostic     `json:"diagnostics"`
}

// Compiler is the external optimizer collaborator
type Compiler interface {
	Compile(ctx context.Context, opts CompileOptions) (*Result, error)
}
