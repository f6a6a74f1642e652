package graph

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Neuron: a node in the shared graph
// ---------------------------------------------------------------------------

// ID is the stable identifier of a durable neuron. Temporary neurons have
// no ID until they are anchored.
type ID uint64

// NoID is the zero ID: not a neuron, or a neuron that is still temporary.
const NoID ID = 0

// Flags control how the Brain treats a neuron.
type Flags uint8

const (
	// FlagPredefined marks neurons created by the Brain itself or by the
	// instruction registry. They are never deleted.
	FlagPredefined Flags = 1 << iota
	// FlagNotDeletable marks neurons that must survive retraction.
	FlagNotDeletable
)

// Neuron is a graph node. Neurons are shared by reference; the Brain owns
// durable ones and is the only code path allowed to delete them.
type Neuron struct {
	id      atomic.Uint64
	typeOf  ID
	flags   Flags
	refs    atomic.Int32
	deleted atomic.Bool
	brain   *Brain

	payload Payload

	// linksMu guards linksOut, linksIn, clusteredBy and heldBy.
	linksMu     sync.RWMutex
	linksOut    []*Link
	linksIn     []*Link
	clusteredBy []*Neuron

	// heldBy lists the statements and lock expressions whose payload
	// points at this neuron.
	heldBy []*Neuron

	// exclusive is the user-level lock taken by LockAll.
	exclusive sync.Mutex
}

func newNeuron(b *Brain, typeOf ID, p Payload) *Neuron {
	return &Neuron{brain: b, typeOf: typeOf, payload: p}
}

// ID returns the neuron's identifier, or NoID while it is temporary.
func (n *Neuron) ID() ID {
	return ID(n.id.Load())
}

// TypeOf returns the predefined tag describing the neuron's role.
func (n *Neuron) TypeOf() ID {
	return n.typeOf
}

// Kind returns the payload kind.
func (n *Neuron) Kind() Kind {
	if n.payload == nil {
		return KindNeuron
	}
	return n.payload.kind()
}

// Payload returns the neuron's payload. Callers dispatch with a type switch.
func (n *Neuron) Payload() Payload {
	return n.payload
}

// Brain returns the graph this neuron belongs to.
func (n *Neuron) Brain() *Brain {
	return n.brain
}

// Flags returns the neuron's flags.
func (n *Neuron) Flags() Flags {
	return n.flags
}

// IsPredefined reports whether the neuron is one of the Brain's fixed neurons.
func (n *Neuron) IsPredefined() bool {
	return n.flags&FlagPredefined != 0
}

// IsDeletable reports whether Delete may ever remove this neuron.
func (n *Neuron) IsDeletable() bool {
	return n.flags&(FlagPredefined|FlagNotDeletable) == 0
}

// IsTemp reports whether the neuron has not been anchored yet.
func (n *Neuron) IsTemp() bool {
	return n.ID() == NoID
}

// IsDeleted reports whether the neuron has been removed from its Brain.
func (n *Neuron) IsDeleted() bool {
	return n.deleted.Load()
}

// ModuleRefCount returns how many modules currently reference the neuron.
func (n *Neuron) ModuleRefCount() int32 {
	return n.refs.Load()
}

// IncRef increments the module reference count and returns the new value.
func (n *Neuron) IncRef() int32 {
	return n.refs.Add(1)
}

// DecRef decrements the module reference count and returns the new value.
// The count never goes below zero.
func (n *Neuron) DecRef() int32 {
	for {
		cur := n.refs.Load()
		if cur <= 0 {
			return 0
		}
		if n.refs.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

// Int returns the value of an int neuron.
func (n *Neuron) Int() (int64, bool) {
	if v, ok := n.payload.(*IntValue); ok {
		return v.Get(), true
	}
	return 0, false
}

// Double returns the value of a double neuron.
func (n *Neuron) Double() (float64, bool) {
	if v, ok := n.payload.(*DoubleValue); ok {
		return v.Get(), true
	}
	return 0, false
}

// Text returns the value of a text neuron.
func (n *Neuron) Text() (string, bool) {
	if v, ok := n.payload.(*TextValue); ok {
		return v.Get(), true
	}
	return "", false
}

// Cluster returns the cluster payload, if the neuron is a cluster.
func (n *Neuron) Cluster() (*Cluster, bool) {
	c, ok := n.payload.(*Cluster)
	return c, ok
}

// Variable returns the variable payload, if the neuron is a variable.
func (n *Neuron) Variable() (*Variable, bool) {
	v, ok := n.payload.(*Variable)
	return v, ok
}

// Statement returns the statement payload, if the neuron is a statement.
func (n *Neuron) Statement() (*Statement, bool) {
	s, ok := n.payload.(*Statement)
	return s, ok
}

// HasMeaning reports whether the neuron is a cluster with the given meaning.
func (n *Neuron) HasMeaning(meaning ID) bool {
	c, ok := n.payload.(*Cluster)
	return ok && c.Meaning() == meaning
}

// String renders a short description for log lines.
func (n *Neuron) String() string {
	if n == nil {
		return "<nil>"
	}
	id := "temp"
	if !n.IsTemp() {
		id = fmt.Sprintf("%d", n.ID())
	}
	switch p := n.payload.(type) {
	case *IntValue:
		return fmt.Sprintf("Int(%d)#%s", p.Get(), id)
	case *DoubleValue:
		return fmt.Sprintf("Double(%g)#%s", p.Get(), id)
	case *TextValue:
		return fmt.Sprintf("Text(%q)#%s", p.Get(), id)
	case *Cluster:
		return fmt.Sprintf("Cluster(meaning=%d)#%s", p.Meaning(), id)
	case *Variable:
		return fmt.Sprintf("%s(%s)#%s", p.Kind, p.Name, id)
	case *InstructionNode:
		return fmt.Sprintf("Instruction(%s)#%s", p.Name, id)
	case *Statement:
		if p.Result {
			return fmt.Sprintf("ResultStatement#%s", id)
		}
		return fmt.Sprintf("Statement#%s", id)
	case *LockExpression:
		return fmt.Sprintf("Lock#%s", id)
	}
	if name, ok := predefinedNames[n.ID()]; ok && n.IsPredefined() {
		return name
	}
	return "Neuron#" + id
}

// ---------------------------------------------------------------------------
// Links and cluster membership
// ---------------------------------------------------------------------------

// Link is a typed, directed edge between two durable neurons.
type Link struct {
	From    *Neuron
	To      *Neuron
	Meaning ID
}

// LinksOut returns a copy of the outgoing links taken under the read lock.
func (n *Neuron) LinksOut() []*Link {
	n.linksMu.RLock()
	defer n.linksMu.RUnlock()
	out := make([]*Link, len(n.linksOut))
	copy(out, n.linksOut)
	return out
}

// LinksIn returns a copy of the incoming links taken under the read lock.
func (n *Neuron) LinksIn() []*Link {
	n.linksMu.RLock()
	defer n.linksMu.RUnlock()
	in := make([]*Link, len(n.linksIn))
	copy(in, n.linksIn)
	return in
}

// ClusteredBy returns the clusters that currently contain this neuron.
func (n *Neuron) ClusteredBy() []*Neuron {
	n.linksMu.RLock()
	defer n.linksMu.RUnlock()
	out := make([]*Neuron, len(n.clusteredBy))
	copy(out, n.clusteredBy)
	return out
}

// FindLinkOut returns the outgoing link with the given target and meaning.
func (n *Neuron) FindLinkOut(to *Neuron, meaning ID) *Link {
	n.linksMu.RLock()
	defer n.linksMu.RUnlock()
	for _, l := range n.linksOut {
		if l.To == to && l.Meaning == meaning {
			return l
		}
	}
	return nil
}

// HeldBy returns the statements and lock expressions that use n as
// their arguments, lock set or code.
func (n *Neuron) HeldBy() []*Neuron {
	n.linksMu.RLock()
	defer n.linksMu.RUnlock()
	out := make([]*Neuron, len(n.heldBy))
	copy(out, n.heldBy)
	return out
}

// Referrers returns every neuron holding a live reference to n: the
// sources of incoming links, the clusters containing n and the
// statements or lock expressions built on it.
func (n *Neuron) Referrers() []*Neuron {
	n.linksMu.RLock()
	defer n.linksMu.RUnlock()
	out := make([]*Neuron, 0, len(n.linksIn)+len(n.clusteredBy)+len(n.heldBy))
	for _, l := range n.linksIn {
		out = append(out, l.From)
	}
	out = append(out, n.clusteredBy...)
	out = append(out, n.heldBy...)
	return out
}

func (n *Neuron) addClusteredBy(c *Neuron) {
	n.linksMu.Lock()
	n.clusteredBy = append(n.clusteredBy, c)
	n.linksMu.Unlock()
}

// removeClusteredBy drops one membership record for c.
func (n *Neuron) removeClusteredBy(c *Neuron) {
	n.linksMu.Lock()
	n.clusteredBy = removeOne(n.clusteredBy, c)
	n.linksMu.Unlock()
}

func (n *Neuron) addHeldBy(holder *Neuron) {
	n.linksMu.Lock()
	n.heldBy = append(n.heldBy, holder)
	n.linksMu.Unlock()
}

func (n *Neuron) removeHeldBy(holder *Neuron) {
	n.linksMu.Lock()
	n.heldBy = removeOne(n.heldBy, holder)
	n.linksMu.Unlock()
}

// parts returns the neurons a statement or lock expression is built on.
func (n *Neuron) parts() []*Neuron {
	switch p := n.payload.(type) {
	case *Statement:
		return []*Neuron{p.Arguments}
	case *LockExpression:
		return []*Neuron{p.Neurons, p.Code}
	}
	return nil
}

func removeOne(list []*Neuron, n *Neuron) []*Neuron {
	for i, cur := range list {
		if cur == n {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func removeLinkFrom(list []*Link, l *Link) []*Link {
	for i, cur := range list {
		if cur == l {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
