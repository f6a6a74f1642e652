package vm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/nnl/graph"
)

// Registry maps instruction names to implementations and, per Brain, to
// the neurons standing for them in code.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]Instruction
	installed map[*graph.Brain]map[string]*graph.Neuron
}

// NewRegistry returns a registry holding the builtin instructions.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	for _, inst := range builtins() {
		r.Register(inst)
	}
	return r
}

// NewEmptyRegistry returns a registry with no instructions.
func NewEmptyRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]Instruction),
		installed: make(map[*graph.Brain]map[string]*graph.Neuron),
	}
}

// Register adds or replaces an instruction. Brains already installed get
// a neuron for it.
func (r *Registry) Register(inst Instruction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[inst.Name()] = inst
	for b, neurons := range r.installed {
		if _, ok := neurons[inst.Name()]; !ok {
			neurons[inst.Name()] = b.NewInstruction(inst.Name())
		}
	}
}

// Lookup returns the instruction registered under name.
func (r *Registry) Lookup(name string) (Instruction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.byName[name]
	return inst, ok
}

// Resolve returns the implementation of an instruction neuron.
func (r *Registry) Resolve(n *graph.Neuron) (Instruction, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil", ErrUnknownInstruction)
	}
	node, ok := n.Payload().(*graph.InstructionNode)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an instruction", ErrUnknownInstruction, n)
	}
	inst, ok := r.Lookup(node.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstruction, node.Name)
	}
	return inst, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Install creates the instruction neurons of every registered instruction
// in b. Installing twice is a no-op.
func (r *Registry) Install(b *graph.Brain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.installed[b]; ok {
		return
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	neurons := make(map[string]*graph.Neuron, len(names))
	for _, name := range names {
		neurons[name] = b.NewInstruction(name)
	}
	r.installed[b] = neurons
}

// Neuron returns the instruction neuron for name in b, installing the
// registry into b first if needed.
func (r *Registry) Neuron(b *graph.Brain, name string) (*graph.Neuron, bool) {
	r.Install(b)
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.installed[b][name]
	return n, ok
}

// builtins lists the standard instruction set.
func builtins() []Instruction {
	insts := []Instruction{
		// variables and lists
		&addInstruction{base{"Add", 1}, variableTarget{}},
		&clearInstruction{base{"Clear", 1}, variableTarget{}},
		&setAtInstruction{base{"SetAt", 3}, variableTarget{}},
		&removeAtInstruction{base{"RemoveAt", 2}, variableTarget{}},
		&insertInstruction{base{"Insert", 3}, variableTarget{}},
		&sortInstruction{base{"Sort", 1}, variableTarget{}},
		&prepareLocalInstruction{base{"PrepareLocal", Variadic}},
		&storeInstruction{base{"Store", 1}, variableTarget{}},
		&returnValueInstruction{base{"ReturnValue", 0}},
		&addChildInstruction{base{"AddChild", 1}},
		&isInitializedInstruction{base{"IsInitialized", 1}, variableTarget{}},

		// single result
		&getFirstInstruction{base{"GetFirst", Variadic}},
		&getLastInstruction{base{"GetLast", Variadic}},
		&getAtInstruction{base{"GetAt", 2}},
		&countInstruction{base{"Count", 0}},

		// multi result
		&getRangeInstruction{base{"GetRange", 2}},
		&completeSequenceInstruction{base{"CompleteSequence", 1}},
		&incrementInstruction{base{"Increment", Variadic}},
		&substractInstruction{base{"Substract", 1}},
		&paramsInstruction{base{"Params", 0}},
	}
	for _, op := range numericOps {
		insts = append(insts, &numericInstruction{base: base{op.name, Variadic}, op: op})
	}
	return insts
}
