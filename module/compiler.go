package module

import (
	"fmt"
	"sync"

	"github.com/chazu/nnl/graph"
	"github.com/chazu/nnl/vm"
)

// ---------------------------------------------------------------------------
// Compiler: reference-counted construction of modules
// ---------------------------------------------------------------------------

// Compiler registers the neurons a module contributes. Every neuron a
// module creates or reuses is added once, taking one reference-count
// share; RemovePreviousDef gives the shares back.
//
// A Compiler is long-lived: it remembers neurons that lost their last
// share while still referenced, so a later retraction can collect them.
type Compiler struct {
	brain    *graph.Brain
	registry *vm.Registry
	vars     *VarManager
	log      graph.Logger

	mu      sync.Mutex
	mod     *Module
	owned   map[graph.ID]struct{}
	extern  map[graph.ID]struct{}
	errs    []error
	orphans map[*graph.Neuron]struct{}
}

// NewCompiler creates a compiler for b. Statements are built against the
// instruction neurons of reg.
func NewCompiler(b *graph.Brain, reg *vm.Registry, vars *VarManager) *Compiler {
	if reg == nil {
		reg = vm.NewRegistry()
	}
	if vars == nil {
		vars = NewVarManager()
	}
	reg.Install(b)
	return &Compiler{
		brain:    b,
		registry: reg,
		vars:     vars,
		log:      GetLogger(),
		orphans:  make(map[*graph.Neuron]struct{}),
	}
}

// SetLogger replaces the compiler's logger.
func (c *Compiler) SetLogger(log graph.Logger) { c.log = log }

// Brain returns the compiler's graph.
func (c *Compiler) Brain() *graph.Brain { return c.brain }

// Vars returns the variable name tables.
func (c *Compiler) Vars() *VarManager { return c.vars }

// Registry returns the instruction registry.
func (c *Compiler) Registry() *vm.Registry { return c.registry }

// Begin makes mod the module receiving subsequent additions. A module
// compiled before keeps its existing entries.
func (c *Compiler) Begin(mod *Module) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mod = mod
	c.errs = nil
	c.owned = make(map[graph.ID]struct{}, len(mod.Neurons))
	for _, id := range mod.Neurons {
		c.owned[id] = struct{}{}
	}
	c.extern = make(map[graph.ID]struct{}, len(mod.ExternalRefs))
	for _, id := range mod.ExternalRefs {
		c.extern[id] = struct{}{}
	}
}

// End detaches the current module and returns the errors recorded with
// Errorf since Begin.
func (c *Compiler) End() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := c.errs
	c.mod, c.owned, c.extern, c.errs = nil, nil, nil, nil
	return errs
}

// Module returns the module being compiled, or nil.
func (c *Compiler) Module() *Module {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mod
}

// Errorf records a compile error for the current module.
func (c *Compiler) Errorf(format string, values ...any) {
	err := fmt.Errorf(format, values...)
	c.mu.Lock()
	c.errs = append(c.errs, err)
	name := ""
	if c.mod != nil {
		name = c.mod.Name
	}
	c.mu.Unlock()
	c.log.Errorf("%s: %v", name, err)
}

// Add anchors n and gives the current module a share of it. Adding the
// same neuron twice to one module is a no-op. Predefined neurons are
// recorded as external references.
func (c *Compiler) Add(n *graph.Neuron) *graph.Neuron {
	c.brain.Add(n)
	if !n.IsDeletable() {
		c.AddExternal(n)
		return n
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mod == nil {
		return n
	}
	if _, ok := c.owned[n.ID()]; ok {
		return n
	}
	c.owned[n.ID()] = struct{}{}
	c.mod.Neurons = append(c.mod.Neurons, n.ID())
	n.IncRef()
	delete(c.orphans, n)
	return n
}

// AddExternal records n as used but not owned by the current module.
func (c *Compiler) AddExternal(n *graph.Neuron) *graph.Neuron {
	c.brain.Add(n)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mod == nil {
		return n
	}
	if _, ok := c.extern[n.ID()]; ok {
		return n
	}
	c.extern[n.ID()] = struct{}{}
	c.mod.ExternalRefs = append(c.mod.ExternalRefs, n.ID())
	return n
}

// Remove gives back the current module's share of n. When that was the
// last share and nothing references n any more, n is deleted.
func (c *Compiler) Remove(n *graph.Neuron) {
	c.mu.Lock()
	if c.mod == nil {
		c.mu.Unlock()
		return
	}
	if _, ok := c.owned[n.ID()]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.owned, n.ID())
	ids := c.mod.Neurons[:0]
	for _, id := range c.mod.Neurons {
		if id != n.ID() {
			ids = append(ids, id)
		}
	}
	c.mod.Neurons = ids
	c.mu.Unlock()

	if n.DecRef() > 0 {
		return
	}
	if len(n.Referrers()) > 0 {
		c.mu.Lock()
		c.orphans[n] = struct{}{}
		c.mu.Unlock()
		return
	}
	c.deleteNeuron(n)
}

// AddLib binds name to an external function reference.
func (c *Compiler) AddLib(name, target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mod != nil {
		c.mod.LibRefs = append(c.mod.LibRefs, LibRef{Name: name, Target: target})
	}
}

// Orphans returns the number of unowned neurons kept alive by references.
func (c *Compiler) Orphans() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.orphans)
}

// ---------------------------------------------------------------------------
// Builders
// ---------------------------------------------------------------------------

// NewInt creates an owned int neuron.
func (c *Compiler) NewInt(v int64) *graph.Neuron { return c.Add(c.brain.NewInt(v)) }

// NewDouble creates an owned double neuron.
func (c *Compiler) NewDouble(v float64) *graph.Neuron { return c.Add(c.brain.NewDouble(v)) }

// NewText creates an owned text neuron.
func (c *Compiler) NewText(s string) *graph.Neuron { return c.Add(c.brain.NewText(s)) }

// NewNeuron creates an owned plain neuron.
func (c *Compiler) NewNeuron() *graph.Neuron { return c.Add(c.brain.NewNeuron()) }

// NewCluster creates an owned cluster holding children. Temporary
// children become owned as well; nil children, left by failed builders,
// are skipped.
func (c *Compiler) NewCluster(meaning graph.ID, children ...*graph.Neuron) *graph.Neuron {
	kept := children[:0:0]
	for _, ch := range children {
		if ch == nil {
			continue
		}
		if ch.IsTemp() {
			c.Add(ch)
		}
		kept = append(kept, ch)
	}
	return c.Add(c.brain.NewCluster(meaning, kept...))
}

// Code creates an owned code cluster.
func (c *Compiler) Code(stmts ...*graph.Neuron) *graph.Neuron {
	return c.NewCluster(graph.Code, stmts...)
}

// Statement creates an owned statement invoking the named instruction. An
// unknown name is a compile error and yields nil.
func (c *Compiler) Statement(name string, result bool, args ...*graph.Neuron) *graph.Neuron {
	inst, ok := c.registry.Neuron(c.brain, name)
	if !ok {
		c.Errorf("unknown instruction %q", name)
		return nil
	}
	c.AddExternal(inst)
	argList := c.NewCluster(graph.Arguments, args...)
	return c.Add(c.brain.NewStatement(inst, argList, result))
}

// Lock creates an owned lock expression.
func (c *Compiler) Lock(neurons, code *graph.Neuron) *graph.Neuron {
	return c.Add(c.brain.NewLockExpression(neurons, code))
}

// Local returns the shared local variable called name.
func (c *Compiler) Local(name string) *graph.Neuron {
	return c.variable(graph.Local, name, graph.SplitShared)
}

// Global returns the shared global variable called name. The split
// reaction is fixed by whichever module creates the variable first.
func (c *Compiler) Global(name string, reaction graph.SplitReaction) *graph.Neuron {
	return c.variable(graph.Global, name, reaction)
}

// System returns the system variable called name.
func (c *Compiler) System(name string) *graph.Neuron {
	return c.variable(graph.System, name, graph.SplitShared)
}

func (c *Compiler) variable(kind graph.VariableKind, name string, reaction graph.SplitReaction) *graph.Neuron {
	n := c.vars.GetOrCreate(kind, name, func() *graph.Neuron {
		return c.brain.NewVariable(kind, name, reaction)
	})
	return c.Add(n)
}

// Link creates a link owned by the endpoints' modules. The meaning neuron
// is recorded as an external reference.
func (c *Compiler) Link(from, to, meaning *graph.Neuron) error {
	c.AddExternal(meaning)
	if _, err := c.brain.Link(from, to, meaning.ID()); err != nil {
		c.Errorf("link %s -> %s: %v", from, to, err)
		return err
	}
	return nil
}
