package engine

import (
	"sort"
	"strings"
	"sync"

	"github.com/Paintersrp/procsup/internal/api"
	"github.com/Paintersrp/procsup/internal/program"
)

// Programs is the fixed set of supervised programs, keyed by name. It also
// gates mutations: once shutdown begins every mutation is rejected with
// api.ErrShuttingDown, and shutdown waits for mutations already in flight.
type Programs struct {
	byName map[string]*program.Program
	order  []string

	gate    sync.RWMutex
	closing bool
}

// NewPrograms indexes list by program name.
func NewPrograms(list []*program.Program) *Programs {
	s := &Programs{byName: make(map[string]*program.Program, len(list))}
	for _, p := range list {
		if p == nil {
			continue
		}
		if _, dup := s.byName[p.Name()]; !dup {
			s.order = append(s.order, p.Name())
		}
		s.byName[p.Name()] = p
	}
	sort.Strings(s.order)
	return s
}

// Len returns the number of programs.
func (s *Programs) Len() int {
	return len(s.order)
}

// Get looks up a single program.
func (s *Programs) Get(name string) (*program.Program, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// All returns every program in name order.
func (s *Programs) All() []*program.Program {
	out := make([]*program.Program, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Resolve maps a request target to programs. "all" selects every program,
// which may be none.
func (s *Programs) Resolve(name string) ([]*program.Program, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, api.ErrInvalidProgram
	}
	if name == api.AllPrograms {
		return s.All(), nil
	}
	p, ok := s.byName[name]
	if !ok {
		return nil, &api.NotFoundError{Name: name}
	}
	return []*program.Program{p}, nil
}

// Mutate runs fn while holding the mutation gate.
func (s *Programs) Mutate(fn func() error) error {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if s.closing {
		return api.ErrShuttingDown
	}
	return fn()
}

// BeginShutdown rejects further mutations. It returns once mutations that
// already passed the gate have finished.
func (s *Programs) BeginShutdown() {
	s.gate.Lock()
	s.closing = true
	s.gate.Unlock()
}

// Closing reports whether shutdown has begun.
func (s *Programs) Closing() bool {
	s.gate.RLock()
	defer s.gate.RUnlock()
	return s.closing
}
