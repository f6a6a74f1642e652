package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrNotDeletable is returned when deleting a predefined or protected neuron.
	ErrNotDeletable = errors.New("graph: neuron is not deletable")
	// ErrStillReferenced is returned when deleting a neuron some module still owns.
	ErrStillReferenced = errors.New("graph: neuron is still referenced by a module")
	// ErrUnknownNeuron is returned for IDs the Brain does not hold.
	ErrUnknownNeuron = errors.New("graph: unknown neuron")
	// ErrDeletedNeuron is returned when linking a neuron that was deleted.
	ErrDeletedNeuron = errors.New("graph: neuron has been deleted")
)

// ---------------------------------------------------------------------------
// Brain: the neuron arena
// ---------------------------------------------------------------------------

// Brain owns every durable neuron, keyed by stable ID. It is passed
// explicitly to processors and compilers; several Brains may coexist.
type Brain struct {
	mu      sync.RWMutex
	neurons map[ID]*Neuron
	nextID  atomic.Uint64

	temps *TempPool
	log   Logger

	// gate serializes module retraction against running processors.
	gate sync.RWMutex

	deletedCount atomic.Uint64
}

// Stats is a point-in-time summary of a Brain.
type Stats struct {
	Neurons int
	Temps   int
	Deleted uint64
	NextID  ID
}

// New creates a Brain containing the predefined neurons.
func New() *Brain {
	return NewWithLogger(GetLogger("nnl.graph"))
}

// NewWithLogger creates a Brain that logs through log.
func NewWithLogger(log Logger) *Brain {
	b := &Brain{
		neurons: make(map[ID]*Neuron),
		temps:   NewTempPool(),
		log:     log,
	}
	b.nextID.Store(uint64(firstFreeID))
	for id := range predefinedNames {
		n := newNeuron(b, NoID, nil)
		n.flags = FlagPredefined
		n.id.Store(uint64(id))
		b.neurons[id] = n
	}
	return b
}

// Logger returns the Brain's logger.
func (b *Brain) Logger() Logger {
	return b.log
}

// Temps returns the temp pool.
func (b *Brain) Temps() *TempPool {
	return b.temps
}

// Get returns the durable neuron with the given ID.
func (b *Brain) Get(id ID) (*Neuron, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.neurons[id]
	return n, ok
}

// MustGet returns the neuron with the given ID or panics. Only used for
// predefined IDs, which always exist.
func (b *Brain) MustGet(id ID) *Neuron {
	n, ok := b.Get(id)
	if !ok {
		panic(fmt.Sprintf("graph: missing neuron %d", id))
	}
	return n
}

// Count returns the number of durable neurons, predefined ones included.
func (b *Brain) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.neurons)
}

// IDs returns all durable IDs in ascending order.
func (b *Brain) IDs() []ID {
	b.mu.RLock()
	ids := make([]ID, 0, len(b.neurons))
	for id := range b.neurons {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot maps every durable ID to its module reference count.
func (b *Brain) Snapshot() map[ID]int32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := make(map[ID]int32, len(b.neurons))
	for id, n := range b.neurons {
		snap[id] = n.ModuleRefCount()
	}
	return snap
}

// Stats returns counters for the Brain.
func (b *Brain) Stats() Stats {
	b.mu.RLock()
	count := len(b.neurons)
	b.mu.RUnlock()
	return Stats{
		Neurons: count,
		Temps:   b.temps.Count(),
		Deleted: b.deletedCount.Load(),
		NextID:  ID(b.nextID.Load()),
	}
}

// ---------------------------------------------------------------------------
// Execution gate
// ---------------------------------------------------------------------------

// Enter marks the start of execution over the graph. The returned function
// ends it. Module retraction waits for all executions to leave.
func (b *Brain) Enter() func() {
	b.gate.RLock()
	var once sync.Once
	return func() { once.Do(b.gate.RUnlock) }
}

// Quiesce waits for running executions to leave and blocks new ones until
// the returned function is called.
func (b *Brain) Quiesce() func() {
	b.gate.Lock()
	var once sync.Once
	return func() { once.Do(b.gate.Unlock) }
}

// TryQuiesce is Quiesce without waiting. It reports false when code is
// running over the graph.
func (b *Brain) TryQuiesce() (func(), bool) {
	if !b.gate.TryLock() {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(b.gate.Unlock) }, true
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func (b *Brain) register(n *Neuron) *Neuron {
	id := ID(b.nextID.Add(1) - 1)
	n.id.Store(uint64(id))
	b.mu.Lock()
	b.neurons[id] = n
	b.mu.Unlock()
	return n
}

func (b *Brain) build(p Payload) *Neuron {
	n := newNeuron(b, typeTag(p), p)
	if c, ok := p.(*Cluster); ok {
		c.owner = n
	}
	return n
}

// NewNeuron creates a durable neuron without payload.
func (b *Brain) NewNeuron() *Neuron {
	return b.register(b.build(nil))
}

// NewInt creates a durable int neuron.
func (b *Brain) NewInt(v int64) *Neuron {
	p := &IntValue{}
	p.Set(v)
	return b.register(b.build(p))
}

// NewDouble creates a durable double neuron.
func (b *Brain) NewDouble(v float64) *Neuron {
	p := &DoubleValue{}
	p.Set(v)
	return b.register(b.build(p))
}

// NewText creates a durable text neuron.
func (b *Brain) NewText(s string) *Neuron {
	return b.register(b.build(&TextValue{s: s}))
}

// NewCluster creates a durable cluster with the given meaning and children.
func (b *Brain) NewCluster(meaning ID, children ...*Neuron) *Neuron {
	n := b.register(b.build(&Cluster{meaning: meaning}))
	if len(children) > 0 {
		c, _ := n.Cluster()
		w := c.WriteChildren()
		w.Append(children...)
		w.Release()
	}
	return n
}

// NewVariable creates a durable variable neuron.
func (b *Brain) NewVariable(kind VariableKind, name string, reaction SplitReaction) *Neuron {
	return b.register(b.build(&Variable{Kind: kind, Name: name, SplitReaction: reaction}))
}

// NewStatement creates a durable statement invoking inst with the
// arguments in args (a cluster). A nil args creates an empty one.
func (b *Brain) NewStatement(inst, args *Neuron, result bool) *Neuron {
	if args == nil {
		args = b.NewCluster(Arguments)
	}
	return b.hold(b.register(b.build(&Statement{Instruction: inst, Arguments: args, Result: result})))
}

// NewLockExpression creates a durable lock expression.
func (b *Brain) NewLockExpression(neurons, code *Neuron) *Neuron {
	return b.hold(b.register(b.build(&LockExpression{Neurons: neurons, Code: code})))
}

// hold records n on the neurons its payload is built on.
func (b *Brain) hold(n *Neuron) *Neuron {
	for _, part := range n.parts() {
		if part != nil {
			part.addHeldBy(n)
		}
	}
	return n
}

// NewInstruction creates the predefined neuron standing for an instruction.
func (b *Brain) NewInstruction(name string) *Neuron {
	n := b.build(&InstructionNode{Name: name})
	n.flags = FlagPredefined
	return b.register(n)
}

// Protect marks a neuron as never deletable.
func (b *Brain) Protect(n *Neuron) {
	n.flags |= FlagNotDeletable
}

// ---------------------------------------------------------------------------
// Temporaries
// ---------------------------------------------------------------------------

// TempInt creates a temporary int neuron registered with the temp pool.
func (b *Brain) TempInt(v int64) *Neuron {
	p := &IntValue{}
	p.Set(v)
	return b.temps.Add(b.build(p))
}

// TempDouble creates a temporary double neuron.
func (b *Brain) TempDouble(v float64) *Neuron {
	p := &DoubleValue{}
	p.Set(v)
	return b.temps.Add(b.build(p))
}

// TempText creates a temporary text neuron.
func (b *Brain) TempText(s string) *Neuron {
	return b.temps.Add(b.build(&TextValue{s: s}))
}

// TempCluster creates a temporary cluster. Temporary children stay
// temporary until the cluster itself is anchored.
func (b *Brain) TempCluster(meaning ID, children ...*Neuron) *Neuron {
	n := b.temps.Add(b.build(&Cluster{meaning: meaning}))
	if len(children) > 0 {
		c, _ := n.Cluster()
		w := c.WriteChildren()
		w.Append(children...)
		w.Release()
	}
	return n
}

// Add makes a neuron durable. Temporary neurons get an ID and leave the
// temp pool; durable ones are returned unchanged.
func (b *Brain) Add(n *Neuron) *Neuron {
	if n.IsTemp() {
		b.anchor(n)
	}
	return n
}

// anchor promotes a temporary neuron, and any temporary children it
// holds, to durable.
func (b *Brain) anchor(n *Neuron) {
	if n.IsDeleted() {
		return
	}
	id := ID(b.nextID.Add(1) - 1)
	if !n.id.CompareAndSwap(uint64(NoID), uint64(id)) {
		return
	}
	b.temps.Remove(n)
	b.mu.Lock()
	b.neurons[id] = n
	b.mu.Unlock()
	if c, ok := n.Cluster(); ok {
		for _, ch := range c.Children() {
			if ch.IsTemp() {
				b.anchor(ch)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Links
// ---------------------------------------------------------------------------

// Link creates a typed link, anchoring temporary endpoints. Linking the
// same pair twice with the same meaning returns the existing link.
func (b *Brain) Link(from, to *Neuron, meaning ID) (*Link, error) {
	if from.IsDeleted() || to.IsDeleted() {
		return nil, ErrDeletedNeuron
	}
	b.Add(from)
	b.Add(to)
	if l := from.FindLinkOut(to, meaning); l != nil {
		return l, nil
	}
	l := &Link{From: from, To: to, Meaning: meaning}
	unlock := lockLinkPair(from, to)
	from.linksOut = append(from.linksOut, l)
	to.linksIn = append(to.linksIn, l)
	unlock()
	return l, nil
}

// Unlink removes a link from both endpoints.
func (b *Brain) Unlink(l *Link) {
	unlock := lockLinkPair(l.From, l.To)
	l.From.linksOut = removeLinkFrom(l.From.linksOut, l)
	l.To.linksIn = removeLinkFrom(l.To.linksIn, l)
	unlock()
}

// lockLinkPair write-locks both link lists in ascending ID order.
func lockLinkPair(a, c *Neuron) func() {
	if a == c {
		a.linksMu.Lock()
		return a.linksMu.Unlock
	}
	first, second := a, c
	if second.ID() < first.ID() {
		first, second = second, first
	}
	first.linksMu.Lock()
	second.linksMu.Lock()
	return func() {
		second.linksMu.Unlock()
		first.linksMu.Unlock()
	}
}

// ---------------------------------------------------------------------------
// Deletion
// ---------------------------------------------------------------------------

// Delete removes a neuron from the Brain: its links, its cluster
// memberships and, for clusters, its children's membership records. It is
// the only operation that frees an ID.
func (b *Brain) Delete(n *Neuron) error {
	if !n.IsDeletable() {
		return fmt.Errorf("%w: %s", ErrNotDeletable, n)
	}
	if n.ModuleRefCount() > 0 {
		return fmt.Errorf("%w: %s has %d refs", ErrStillReferenced, n, n.ModuleRefCount())
	}
	if n.IsTemp() {
		b.temps.Remove(n)
		n.deleted.Store(true)
		return nil
	}

	b.mu.Lock()
	if _, ok := b.neurons[n.ID()]; !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownNeuron, n.ID())
	}
	delete(b.neurons, n.ID())
	b.mu.Unlock()
	n.deleted.Store(true)

	for _, l := range n.LinksOut() {
		b.Unlink(l)
	}
	for _, l := range n.LinksIn() {
		b.Unlink(l)
	}
	for _, parent := range n.ClusteredBy() {
		if c, ok := parent.Cluster(); ok {
			w := c.WriteChildren()
			w.Remove(n)
			w.Release()
		}
	}
	if c, ok := n.Cluster(); ok {
		w := c.WriteChildren()
		w.Clear()
		w.Release()
	}
	for _, part := range n.parts() {
		if part != nil {
			part.removeHeldBy(n)
		}
	}
	b.deletedCount.Add(1)
	return nil
}
