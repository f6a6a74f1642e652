package module

import (
	"sort"
	"sync"

	"github.com/chazu/nnl/graph"
)

// VarManager resolves variable names to their neurons so that every module
// naming a local or global refers to the same variable.
type VarManager struct {
	mu      sync.RWMutex
	locals  map[string]*graph.Neuron
	globals map[string]*graph.Neuron
	systems map[string]*graph.Neuron
}

// NewVarManager creates an empty VarManager.
func NewVarManager() *VarManager {
	return &VarManager{
		locals:  make(map[string]*graph.Neuron),
		globals: make(map[string]*graph.Neuron),
		systems: make(map[string]*graph.Neuron),
	}
}

func (vm *VarManager) table(kind graph.VariableKind) map[string]*graph.Neuron {
	switch kind {
	case graph.Global:
		return vm.globals
	case graph.System:
		return vm.systems
	}
	return vm.locals
}

// Lookup returns the variable registered under name for kind.
func (vm *VarManager) Lookup(kind graph.VariableKind, name string) (*graph.Neuron, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	n, ok := vm.table(kind)[name]
	return n, ok
}

// GetOrCreate returns the registered variable or creates it with create.
func (vm *VarManager) GetOrCreate(kind graph.VariableKind, name string, create func() *graph.Neuron) *graph.Neuron {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	t := vm.table(kind)
	if n, ok := t[name]; ok && !n.IsDeleted() {
		return n
	}
	n := create()
	t[name] = n
	return n
}

// Unregister removes n from the name tables. Neurons that are not
// registered variables are ignored.
func (vm *VarManager) Unregister(n *graph.Neuron) {
	v, ok := n.Variable()
	if !ok {
		return
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	t := vm.table(v.Kind)
	if t[v.Name] == n {
		delete(t, v.Name)
	}
}

// Names returns the registered names of kind in sorted order.
func (vm *VarManager) Names(kind graph.VariableKind) []string {
	vm.mu.RLock()
	t := vm.table(kind)
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	vm.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered variables.
func (vm *VarManager) Len() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return len(vm.locals) + len(vm.globals) + len(vm.systems)
}
