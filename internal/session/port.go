package session

import (
	"sync"
)

// Port is the persisted-state port: the single place the shareable fragment
// is read from at startup and written to on every state change.
type Port interface {
	// Read returns the current fragment, including its prefix, or "" if unset
	Read() (string, error)

	// Write replaces the current fragment
	Write(fragment string) error
}

// MemoryPort keeps the fragment in memory. It is safe for concurrent use.
type MemoryPort struct {
	fragment string
	writes   int
	mu       sync.RWMutex
}

// NewMemoryPort creates a port seeded with an initial fragment
func NewMemoryPort(initial string) *MemoryPort {
	return &MemoryPort{fragment: initial}
}

// Read returns the stored fragment
func (p *MemoryPort) Read() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fragment, nil
}

// Write stores the fragment
func (p *MemoryPort) Write(fragment string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fragment = fragment
	p.writes++
	return nil
}

// Writes returns how many times the fragment has been written
func (p *MemoryPort) Writes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.writes
}
