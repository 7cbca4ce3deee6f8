// Package diagnostics projects compiler diagnostics onto the editing surface
// as markers.
package diagnostics

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/playground/internal/compiler"
)

// SeverityError is the only severity the compiler reports
const SeverityError = "error"

// Marker is an editor annotation. Lines and columns are 1-based.
type Marker struct {
	Severity        string `json:"severity"`
	Message         string `json:"message"`
	StartLineNumber int    `json:"startLineNumber"`
	StartColumn     int    `json:"startColumn"`
	EndLineNumber   int    `json:"endLineNumber"`
	EndColumn       int    `json:"endColumn"`
}

// Surface is the editing surface markers are applied to
type Surface interface {
	SetMarkers(markers []Marker) error
}

// Mapper applies diagnostics to whatever surface is currently mounted
type Mapper struct {
	mu      sync.RWMutex
	surface Surface
}

// NewMapper creates a mapper with no surface attached
func NewMapper() *Mapper {
	return &Mapper{}
}

// Attach mounts a surface, replacing any previous one
func (m *Mapper) Attach(s Surface) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surface = s
}

// Detach unmounts the current surface
func (m *Mapper) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surface = nil
}

// Attached reports whether a surface is mounted
func (m *Mapper) Attached() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.surface != nil
}

// Apply replaces the surface's markers with one marker per diagnostic. An
// empty list clears them. Without a surface the update is skipped and false
// is returned; it is not retried.
func (m *Mapper) Apply(diags []compiler.Diagnostic) bool {
	m.mu.RLock()
	s := m.surface
	m.mu.RUnlock()

	if s == nil {
		return false
	}

	if err := s.SetMarkers(ToMarkers(diags)); err != nil {
		log.Warn().Err(err).Int("diagnostics", len(diags)).Msg("Failed to apply markers")
		return false
	}
	return true
}

// ToMarkers converts diagnostics to markers positioned at each diagnostic's
// first highlight. Diagnostics without highlights are placed at 1:1.
func ToMarkers(diags []compiler.Diagnostic) []Marker {
	markers := make([]Marker, 0, len(diags))
	for _, d := range diags {
		marker := Marker{
			Severity:        SeverityError,
			Message:         d.Message,
			StartLineNumber: 1,
			StartColumn:     1,
			EndLineNumber:   1,
			EndColumn:       1,
		}
		if len(d.Highlights) > 0 {
			h := d.Highlights[0]
			marker.StartLineNumber = h.StartLine
			marker.StartColumn = h.StartCol
			marker.EndLineNumber = h.EndLine
			marker.EndColumn = h.EndCol
		}
		markers = append(markers, marker)
	}
	return markers
}
