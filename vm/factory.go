package vm

import (
	"sync"
	"sync/atomic"

	"github.com/chazu/nnl/graph"
)

// ProcessorFactory hands out pooled processors bound to one Brain and one
// instruction registry.
type ProcessorFactory struct {
	brain    *graph.Brain
	registry *Registry
	settings Settings
	log      graph.Logger

	mu   sync.Mutex
	free []*Processor

	created atomic.Uint64
	reused  atomic.Uint64
}

// FactoryStats counts processor allocations.
type FactoryStats struct {
	Created uint64
	Reused  uint64
	Pooled  int
}

// NewProcessorFactory creates a factory. A nil registry selects the
// builtin instruction set.
func NewProcessorFactory(b *graph.Brain, reg *Registry, s Settings) *ProcessorFactory {
	if reg == nil {
		reg = NewRegistry()
	}
	reg.Install(b)
	return &ProcessorFactory{
		brain:    b,
		registry: reg,
		settings: s.withDefaults(),
		log:      GetLogger(),
	}
}

// SetLogger replaces the logger given to processors created from now on.
func (f *ProcessorFactory) SetLogger(log graph.Logger) {
	f.log = log
}

// Brain returns the factory's graph.
func (f *ProcessorFactory) Brain() *graph.Brain { return f.brain }

// Registry returns the factory's instruction registry.
func (f *ProcessorFactory) Registry() *Registry { return f.registry }

// Get returns a processor that may split.
func (f *ProcessorFactory) Get() *Processor {
	return f.get(true)
}

// GetNoSplit returns a processor whose Split fails with ErrSplitNotAllowed.
func (f *ProcessorFactory) GetNoSplit() *Processor {
	return f.get(false)
}

func (f *ProcessorFactory) get(splitAllowed bool) *Processor {
	f.mu.Lock()
	n := len(f.free)
	if n > 0 {
		p := f.free[n-1]
		f.free[n-1] = nil
		f.free = f.free[:n-1]
		f.mu.Unlock()
		f.reused.Add(1)
		p.log = f.log
		p.splitAllowed = splitAllowed
		return p
	}
	f.mu.Unlock()
	f.created.Add(1)
	return newProcessor(f, splitAllowed)
}

// Release resets p and returns it to the pool. Releasing a root processor
// also releases the temporaries its evaluations created.
func (f *ProcessorFactory) Release(p *Processor) {
	if p == nil {
		return
	}
	if p.leave != nil {
		p.leave()
	}
	if p.parent == nil {
		p.releaseTemps()
	}
	p.reset()

	f.mu.Lock()
	if len(f.free) < f.settings.PoolSize {
		f.free = append(f.free, p)
	}
	f.mu.Unlock()
}

// Stats returns allocation counters.
func (f *ProcessorFactory) Stats() FactoryStats {
	f.mu.Lock()
	pooled := len(f.free)
	f.mu.Unlock()
	return FactoryStats{
		Created: f.created.Load(),
		Reused:  f.reused.Load(),
		Pooled:  pooled,
	}
}
