package module

import (
	"github.com/chazu/nnl/graph"
)

// RemoveStats summarizes one retraction.
type RemoveStats struct {
	Released     int // shares given back
	Deleted      int
	LinksRemoved int
	Passes       int // fixed-point passes over the pending set
	Kept         int // unowned neurons kept because something still references them
}

// RemovePreviousDef retracts everything mod contributed:
//
//  1. Links between two of the module's neurons are removed when at least
//     one endpoint is about to lose its last share.
//  2. Every share is given back. Neurons reaching zero become pending,
//     together with orphans left by earlier retractions.
//  3. A pending neuron referenced by a live neuron outside the pending set
//     is dropped from it. This repeats until a pass removes nothing.
//  4. What remains pending is deleted and unregistered from the
//     VarManager.
//
// Running it again on the emptied module is a no-op.
func (c *Compiler) RemovePreviousDef(mod *Module) RemoveStats {
	var stats RemoveStats

	batch := make(map[*graph.Neuron]struct{}, len(mod.Neurons))
	owned := make([]*graph.Neuron, 0, len(mod.Neurons))
	for _, id := range mod.Neurons {
		n, ok := c.brain.Get(id)
		if !ok || n.IsDeleted() {
			continue
		}
		if _, dup := batch[n]; dup {
			continue
		}
		batch[n] = struct{}{}
		owned = append(owned, n)
	}

	for _, n := range owned {
		for _, l := range n.LinksOut() {
			if _, ok := batch[l.To]; !ok {
				continue
			}
			if n.ModuleRefCount() == 1 || l.To.ModuleRefCount() == 1 {
				c.brain.Unlink(l)
				stats.LinksRemoved++
			}
		}
	}

	pending := make([]*graph.Neuron, 0, len(owned))
	for _, n := range owned {
		stats.Released++
		if n.DecRef() == 0 && n.IsDeletable() {
			pending = append(pending, n)
		}
	}

	c.mu.Lock()
	for n := range c.orphans {
		if _, ok := batch[n]; ok {
			continue
		}
		if !n.IsDeleted() && n.ModuleRefCount() == 0 {
			pending = append(pending, n)
		}
	}
	c.mu.Unlock()

	pending, stats.Passes = settle(pending)

	deleting := make(map[*graph.Neuron]struct{}, len(pending))
	for _, n := range pending {
		deleting[n] = struct{}{}
	}
	c.mu.Lock()
	for n := range c.orphans {
		if _, ok := deleting[n]; ok || n.IsDeleted() || n.ModuleRefCount() > 0 {
			delete(c.orphans, n)
		}
	}
	for _, n := range owned {
		if _, ok := deleting[n]; !ok && n.ModuleRefCount() == 0 && n.IsDeletable() {
			c.orphans[n] = struct{}{}
			stats.Kept++
		}
	}
	c.mu.Unlock()

	for _, n := range pending {
		if c.deleteNeuron(n) {
			stats.Deleted++
		}
	}

	mod.Neurons = nil
	mod.ExternalRefs = nil
	mod.LibRefs = nil

	c.log.Debugf("%s: released %d, deleted %d, kept %d, %d links removed in %d passes",
		mod.Name, stats.Released, stats.Deleted, stats.Kept, stats.LinksRemoved, stats.Passes)
	return stats
}

// settle shrinks pending until every member is referenced only from inside
// the set. It returns the survivors and the number of passes.
func settle(pending []*graph.Neuron) ([]*graph.Neuron, int) {
	passes := 0
	for {
		passes++
		in := make(map[*graph.Neuron]struct{}, len(pending))
		for _, n := range pending {
			in[n] = struct{}{}
		}
		next := pending[:0:0]
		for _, n := range pending {
			if referencedFromOutside(n, in) {
				continue
			}
			next = append(next, n)
		}
		if len(next) == len(pending) {
			return next, passes
		}
		pending = next
	}
}

func referencedFromOutside(n *graph.Neuron, in map[*graph.Neuron]struct{}) bool {
	for _, r := range n.Referrers() {
		if r.IsDeleted() {
			continue
		}
		if _, ok := in[r]; !ok {
			return true
		}
	}
	return false
}

func (c *Compiler) deleteNeuron(n *graph.Neuron) bool {
	c.vars.Unregister(n)
	if err := c.brain.Delete(n); err != nil {
		c.log.Warningf("delete %s: %v", n, err)
		return false
	}
	return true
}
