package llm

import (
	"context"
	"sync"
	"time"
)

// Switcher holds the process-wide active backend reference behind a
// mutex, per spec.md §4.2 and §5 ("the active backend reference:
// protected by a mutex; readers copy the reference and release the lock
// before calling"). Grounded on the donor's pkg/llm/router.go Router,
// narrowed from a primary+fallback chain to a single active backend with
// an atomic, probe-validated swap operation.
type Switcher struct {
	mu      sync.RWMutex
	active  Backend
	variants map[Kind]Backend
}

func NewSwitcher(initial Backend) *Switcher {
	s := &Switcher{active: initial, variants: map[Kind]Backend{}}
	if initial != nil {
		s.variants[initial.Kind()] = initial
	}
	return s
}

// Register makes a backend variant available for SwitchBackend by kind,
// without making it active.
func (s *Switcher) Register(b Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[b.Kind()] = b
}

// Active returns the currently active backend. Callers must copy this
// reference and release any lock of their own before calling Complete —
// in-flight calls use the reference they captured at call start, and a
// concurrent SwitchBackend must not block them.
func (s *Switcher) Active() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Variants lists every registered backend by kind, for GET /backends.
func (s *Switcher) Variants() map[Kind]Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Kind]Backend, len(s.variants))
	for k, v := range s.variants {
		out[k] = v
	}
	return out
}

// SwitchBackend atomically replaces the active backend: it probes the
// candidate first (a small fixed prompt, 10-second timeout) and only
// commits if the probe succeeds; otherwise the active backend is left
// untouched and the probe error is returned.
func (s *Switcher) SwitchBackend(ctx context.Context, candidate Backend) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := candidate.Probe(probeCtx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = candidate
	s.variants[candidate.Kind()] = candidate
	return nil
}
