package graph

import (
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// TempPool: provisional values produced during evaluation
// ---------------------------------------------------------------------------

// TempPool tracks temporary neurons. A temp leaves the pool when it is
// anchored (becomes durable) or when it has been released by its
// evaluation and a sweep reclaims it.
type TempPool struct {
	mu    sync.Mutex
	items map[*Neuron]bool // value: released

	created  atomic.Uint64
	anchored atomic.Uint64
	swept    atomic.Uint64
}

// NewTempPool creates an empty pool.
func NewTempPool() *TempPool {
	return &TempPool{items: make(map[*Neuron]bool)}
}

// Add registers n as a live temporary and returns it.
func (p *TempPool) Add(n *Neuron) *Neuron {
	p.mu.Lock()
	p.items[n] = false
	p.mu.Unlock()
	p.created.Add(1)
	return n
}

// Remove drops n from the pool, typically because it was anchored.
func (p *TempPool) Remove(n *Neuron) {
	p.mu.Lock()
	_, ok := p.items[n]
	delete(p.items, n)
	p.mu.Unlock()
	if ok {
		p.anchored.Add(1)
	}
}

// Contains reports whether n is a registered temporary.
func (p *TempPool) Contains(n *Neuron) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.items[n]
	return ok
}

// Release marks temps whose evaluation has finished. Anchored neurons are
// ignored.
func (p *TempPool) Release(ns ...*Neuron) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range ns {
		if _, ok := p.items[n]; ok {
			p.items[n] = true
		}
	}
}

// Sweep removes every released temp and returns how many were removed.
func (p *TempPool) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	swept := 0
	for n, released := range p.items {
		if released {
			delete(p.items, n)
			n.deleted.Store(true)
			swept++
		}
	}
	p.swept.Add(uint64(swept))
	return swept
}

// Count returns the number of temps currently in the pool.
func (p *TempPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// ReleasedCount returns the number of temps waiting for a sweep.
func (p *TempPool) ReleasedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, released := range p.items {
		if released {
			n++
		}
	}
	return n
}

// Created returns the total number of temps ever registered.
func (p *TempPool) Created() uint64 { return p.created.Load() }

// Anchored returns how many temps were promoted to durable.
func (p *TempPool) Anchored() uint64 { return p.anchored.Load() }

// ---------------------------------------------------------------------------
// Pooled scratch lists
// ---------------------------------------------------------------------------

// ListReserve is the initial capacity of pooled scratch lists.
const ListReserve = 10

var listPool = sync.Pool{
	New: func() any {
		l := make([]*Neuron, 0, ListReserve)
		return &l
	},
}

// GetList returns an empty scratch list from the pool.
func GetList() *[]*Neuron {
	return listPool.Get().(*[]*Neuron)
}

// PutList clears l and returns it to the pool.
func PutList(l *[]*Neuron) {
	if l == nil {
		return
	}
	clear(*l)
	*l = (*l)[:0]
	listPool.Put(l)
}
