package graph

import "sync"

// ---------------------------------------------------------------------------
// Cluster: ordered, mutable child list
// ---------------------------------------------------------------------------

// Cluster is the payload of neurons with an ordered child list. Children
// are only reached through ReadChildren/WriteChildren accessors, which must
// be released before the cluster can be mutated by another goroutine.
type Cluster struct {
	owner *Neuron

	mu       sync.RWMutex
	meaning  ID
	children []*Neuron
}

func (*Cluster) kind() Kind { return KindCluster }

// Meaning returns the ID classifying what kind of cluster this is.
func (c *Cluster) Meaning() ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meaning
}

// SetMeaning reclassifies the cluster.
func (c *Cluster) SetMeaning(meaning ID) {
	c.mu.Lock()
	c.meaning = meaning
	c.mu.Unlock()
}

// Owner returns the neuron carrying this payload.
func (c *Cluster) Owner() *Neuron {
	return c.owner
}

// ReadChildren opens a read view over the children.
func (c *Cluster) ReadChildren() *ChildrenReader {
	c.mu.RLock()
	return &ChildrenReader{c: c}
}

// WriteChildren opens an exclusive view over the children.
func (c *Cluster) WriteChildren() *ChildrenWriter {
	c.mu.Lock()
	return &ChildrenWriter{c: c}
}

// Children returns a copy of the child list.
func (c *Cluster) Children() []*Neuron {
	r := c.ReadChildren()
	defer r.Release()
	return r.Items()
}

// Len returns the number of children.
func (c *Cluster) Len() int {
	r := c.ReadChildren()
	defer r.Release()
	return r.Len()
}

// ChildrenReader is a scoped read view. Release must be called exactly once.
type ChildrenReader struct {
	c        *Cluster
	released bool
}

// Len returns the number of children.
func (r *ChildrenReader) Len() int { return len(r.c.children) }

// At returns the child at index i.
func (r *ChildrenReader) At(i int) *Neuron { return r.c.children[i] }

// IndexOf returns the first index of n, or -1.
func (r *ChildrenReader) IndexOf(n *Neuron) int {
	for i, ch := range r.c.children {
		if ch == n {
			return i
		}
	}
	return -1
}

// Items returns a copy of the children.
func (r *ChildrenReader) Items() []*Neuron {
	out := make([]*Neuron, len(r.c.children))
	copy(out, r.c.children)
	return out
}

// Release ends the read scope. Extra calls are ignored.
func (r *ChildrenReader) Release() {
	if r.released {
		return
	}
	r.released = true
	r.c.mu.RUnlock()
}

// ChildrenWriter is a scoped write view. Release must be called exactly once.
// Mutations keep the children's ClusteredBy records in sync and anchor
// temporary children added to a durable cluster.
type ChildrenWriter struct {
	c        *Cluster
	released bool
}

// Len returns the number of children.
func (w *ChildrenWriter) Len() int { return len(w.c.children) }

// At returns the child at index i.
func (w *ChildrenWriter) At(i int) *Neuron { return w.c.children[i] }

// Items returns a copy of the children.
func (w *ChildrenWriter) Items() []*Neuron {
	out := make([]*Neuron, len(w.c.children))
	copy(out, w.c.children)
	return out
}

// Append adds children at the end.
func (w *ChildrenWriter) Append(children ...*Neuron) {
	for _, ch := range children {
		w.attach(ch)
		w.c.children = append(w.c.children, ch)
	}
}

// Insert places child at index i; i may equal Len.
func (w *ChildrenWriter) Insert(i int, child *Neuron) {
	w.attach(child)
	w.c.children = append(w.c.children, nil)
	copy(w.c.children[i+1:], w.c.children[i:])
	w.c.children[i] = child
}

// Set replaces the child at index i.
func (w *ChildrenWriter) Set(i int, child *Neuron) {
	old := w.c.children[i]
	if old == child {
		return
	}
	w.attach(child)
	w.c.children[i] = child
	w.detach(old)
}

// RemoveAt removes and returns the child at index i.
func (w *ChildrenWriter) RemoveAt(i int) *Neuron {
	old := w.c.children[i]
	w.c.children = append(w.c.children[:i], w.c.children[i+1:]...)
	w.detach(old)
	return old
}

// Remove drops every occurrence of n and returns how many were removed.
func (w *ChildrenWriter) Remove(n *Neuron) int {
	removed := 0
	kept := w.c.children[:0]
	for _, ch := range w.c.children {
		if ch == n {
			removed++
			continue
		}
		kept = append(kept, ch)
	}
	for i := len(kept); i < len(w.c.children); i++ {
		w.c.children[i] = nil
	}
	w.c.children = kept
	for i := 0; i < removed; i++ {
		w.detach(n)
	}
	return removed
}

// Clear removes all children.
func (w *ChildrenWriter) Clear() {
	old := w.c.children
	w.c.children = nil
	for _, ch := range old {
		w.detach(ch)
	}
}

// Release ends the write scope. Extra calls are ignored.
func (w *ChildrenWriter) Release() {
	if w.released {
		return
	}
	w.released = true
	w.c.mu.Unlock()
}

func (w *ChildrenWriter) attach(child *Neuron) {
	owner := w.c.owner
	if owner != nil && !owner.IsTemp() && child.IsTemp() && child.brain != nil {
		child.brain.anchor(child)
	}
	child.addClusteredBy(owner)
}

func (w *ChildrenWriter) detach(child *Neuron) {
	if child != nil {
		child.removeClusteredBy(w.c.owner)
	}
}
