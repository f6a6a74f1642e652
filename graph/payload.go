package graph

import (
	"math"
	"sync"
	"sync/atomic"
)

// Kind identifies a neuron's payload variant.
type Kind uint8

const (
	KindNeuron Kind = iota
	KindInt
	KindDouble
	KindText
	KindCluster
	KindVariable
	KindInstruction
	KindStatement
	KindLock
)

var kindNames = [...]string{"Neuron", "Int", "Double", "Text", "Cluster", "Variable", "Instruction", "Statement", "Lock"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Payload is the closed set of neuron payloads. The unexported method keeps
// the set sealed to this package.
type Payload interface {
	kind() Kind
}

// ---------------------------------------------------------------------------
// Value payloads
// ---------------------------------------------------------------------------

// IntValue holds a replaceable integer.
type IntValue struct {
	v atomic.Int64
}

func (*IntValue) kind() Kind { return KindInt }

// Get returns the current value.
func (i *IntValue) Get() int64 { return i.v.Load() }

// Set replaces the value.
func (i *IntValue) Set(v int64) { i.v.Store(v) }

// Add adds delta in place and returns the new value.
func (i *IntValue) Add(delta int64) int64 { return i.v.Add(delta) }

// DoubleValue holds a replaceable float64.
type DoubleValue struct {
	bits atomic.Uint64
}

func (*DoubleValue) kind() Kind { return KindDouble }

// Get returns the current value.
func (d *DoubleValue) Get() float64 { return math.Float64frombits(d.bits.Load()) }

// Set replaces the value.
func (d *DoubleValue) Set(v float64) { d.bits.Store(math.Float64bits(v)) }

// Add adds delta in place and returns the new value.
func (d *DoubleValue) Add(delta float64) float64 {
	for {
		old := d.bits.Load()
		next := math.Float64frombits(old) + delta
		if d.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return next
		}
	}
}

// TextValue holds a replaceable string.
type TextValue struct {
	mu sync.RWMutex
	s  string
}

func (*TextValue) kind() Kind { return KindText }

// Get returns the current value.
func (t *TextValue) Get() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s
}

// Set replaces the value.
func (t *TextValue) Set(s string) {
	t.mu.Lock()
	t.s = s
	t.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// VariableKind distinguishes the storage scope of a variable.
type VariableKind uint8

const (
	// Local variables live in the current call's value dictionary.
	Local VariableKind = iota
	// Global variables live in the processor's global dictionary.
	Global
	// System variables are read-only and always initialized.
	System
)

func (k VariableKind) String() string {
	switch k {
	case Local:
		return "Local"
	case Global:
		return "Global"
	case System:
		return "SystemVariable"
	}
	return "Variable"
}

// SplitReaction decides what a split child sees for a global.
type SplitReaction uint8

const (
	// SplitShared gives the child the same storage as the parent.
	SplitShared SplitReaction = iota
	// SplitDuplicate gives the child an independent copy.
	SplitDuplicate
	// SplitClear leaves the global uninitialized in the child.
	SplitClear
)

func (r SplitReaction) String() string {
	switch r {
	case SplitShared:
		return "shared"
	case SplitDuplicate:
		return "duplicate"
	case SplitClear:
		return "clear"
	}
	return "unknown"
}

// ParseSplitReaction maps the textual policy names to a SplitReaction.
// "copy" is accepted as an alias of "duplicate".
func ParseSplitReaction(s string) (SplitReaction, bool) {
	switch s {
	case "", "shared":
		return SplitShared, true
	case "duplicate", "copy":
		return SplitDuplicate, true
	case "clear":
		return SplitClear, true
	}
	return SplitShared, false
}

// Variable is the payload of variable neurons. The value itself lives in a
// processor, not in the graph.
type Variable struct {
	Kind          VariableKind
	Name          string
	SplitReaction SplitReaction
}

func (*Variable) kind() Kind { return KindVariable }

// ---------------------------------------------------------------------------
// Code payloads
// ---------------------------------------------------------------------------

// InstructionNode names an instruction implementation in a vm registry.
type InstructionNode struct {
	Name string
}

func (*InstructionNode) kind() Kind { return KindInstruction }

// Statement invokes an instruction with an argument cluster. A result
// statement yields values when used as an argument.
type Statement struct {
	Instruction *Neuron
	Arguments   *Neuron
	Result      bool
}

func (*Statement) kind() Kind { return KindStatement }

// LockExpression runs Code while holding the exclusive locks of the
// children of Neurons, acquired in ascending ID order.
type LockExpression struct {
	Neurons *Neuron
	Code    *Neuron
}

func (*LockExpression) kind() Kind { return KindLock }
