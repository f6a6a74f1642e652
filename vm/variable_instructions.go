package vm

import (
	"sort"
	"strings"

	"github.com/chazu/nnl/graph"
)

// ---------------------------------------------------------------------------
// Variable mutation
// ---------------------------------------------------------------------------

type addInstruction struct {
	base
	variableTarget
}

// Execute appends args[1:] to the variable's value.
func (i *addInstruction) Execute(p *Processor, args []*graph.Neuron) {
	v, ok := targetVariable(p, i, args)
	if !ok {
		return
	}
	items := args[1:]
	if len(items) == 0 {
		if p.settings.LogInvalidAddChildArgs {
			p.domainWarning(i.name, "nothing to add to %s", v)
		}
		return
	}
	p.UpdateValue(v, func(cur []*graph.Neuron) []*graph.Neuron {
		return append(cur, items...)
	})
}

type clearInstruction struct {
	base
	variableTarget
}

// Execute sets the variable to an initialized, empty list.
func (i *clearInstruction) Execute(p *Processor, args []*graph.Neuron) {
	if v, ok := targetVariable(p, i, args); ok {
		p.StoreValue(v, nil)
	}
}

type storeInstruction struct {
	base
	variableTarget
}

// Execute replaces the variable's value with args[1:].
func (i *storeInstruction) Execute(p *Processor, args []*graph.Neuron) {
	if v, ok := targetVariable(p, i, args); ok {
		p.StoreValue(v, args[1:])
	}
}

// indexedUpdate applies fn to an initialized variable's value. fn reports
// whether the index it was given is valid for the current length.
func indexedUpdate(p *Processor, inst Instruction, args []*graph.Neuron, fn func(cur []*graph.Neuron, index int) ([]*graph.Neuron, bool)) {
	v, ok := targetVariable(p, inst, args)
	if !ok {
		return
	}
	index, ok := intArg(p, inst, args, 1)
	if !ok {
		return
	}
	if !p.IsInitialized(v) {
		p.domainError(inst.Name(), "variable %s is not initialized", v)
		return
	}
	valid := true
	var length int
	p.UpdateValue(v, func(cur []*graph.Neuron) []*graph.Neuron {
		length = len(cur)
		if index < 0 || index > int64(len(cur)) {
			valid = false
			return cur
		}
		next, ok := fn(cur, int(index))
		if !ok {
			valid = false
			return cur
		}
		return next
	})
	if !valid {
		p.domainError(inst.Name(), "index %d out of range for %d items", index, length)
	}
}

type setAtInstruction struct {
	base
	variableTarget
}

// Execute replaces the item at args[1] with args[2].
func (i *setAtInstruction) Execute(p *Processor, args []*graph.Neuron) {
	value := args[2]
	indexedUpdate(p, i, args, func(cur []*graph.Neuron, index int) ([]*graph.Neuron, bool) {
		if index >= len(cur) {
			return cur, false
		}
		cur[index] = value
		return cur, true
	})
}

type removeAtInstruction struct {
	base
	variableTarget
}

// Execute removes the item at args[1].
func (i *removeAtInstruction) Execute(p *Processor, args []*graph.Neuron) {
	indexedUpdate(p, i, args, func(cur []*graph.Neuron, index int) ([]*graph.Neuron, bool) {
		if index >= len(cur) {
			return cur, false
		}
		return append(cur[:index], cur[index+1:]...), true
	})
}

type insertInstruction struct {
	base
	variableTarget
}

// Execute inserts args[2:] before the item at args[1]; the index may equal
// the length to append.
func (i *insertInstruction) Execute(p *Processor, args []*graph.Neuron) {
	items := args[2:]
	indexedUpdate(p, i, args, func(cur []*graph.Neuron, index int) ([]*graph.Neuron, bool) {
		next := make([]*graph.Neuron, 0, len(cur)+len(items))
		next = append(next, cur[:index]...)
		next = append(next, items...)
		next = append(next, cur[index:]...)
		return next, true
	})
}

// ---------------------------------------------------------------------------
// Sort
// ---------------------------------------------------------------------------

type sortInstruction struct {
	base
	variableTarget
}

// Execute sorts the variable's value. An optional code cluster in args[1]
// is called with the two items to compare and must return one int whose
// sign gives their order.
func (i *sortInstruction) Execute(p *Processor, args []*graph.Neuron) {
	v, ok := targetVariable(p, i, args)
	if !ok {
		return
	}
	items, ok := p.ExtractValue(v)
	if !ok {
		p.domainError(i.name, "variable %s is not initialized", v)
		return
	}
	less := func(a, b int) bool { return compareNatural(items[a], items[b]) < 0 }
	if len(args) > 1 {
		code := args[1]
		if _, ok := code.Cluster(); !ok {
			p.domainError(i.name, "comparison callback must be a code cluster, got %s", code)
			return
		}
		less = func(a, b int) bool { return i.callback(p, code, items[a], items[b]) < 0 }
	}
	sort.SliceStable(items, less)
	p.StoreValue(v, items)
}

// callback runs the comparison code on a throwaway processor that cannot
// split. A missing or non-int result counts as equal.
func (i *sortInstruction) callback(p *Processor, code, a, b *graph.Neuron) int {
	sub := p.subProcessor()
	defer p.factory.Release(sub)

	res, err := sub.Call(code, []*graph.Neuron{a, b})
	if err != nil {
		p.domainError(i.name, "comparison callback failed: %v", err)
		return 0
	}
	if len(res) != 1 {
		p.domainError(i.name, "comparison callback returned %d values, want 1", len(res))
		return 0
	}
	n, ok := res[0].Int()
	if !ok {
		p.domainError(i.name, "comparison callback returned %s, want an int", res[0])
		return 0
	}
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// compareNatural orders numbers before text before everything else.
// Numbers compare by value, text lexically, the rest by ID.
func compareNatural(a, b *graph.Neuron) int {
	ra, rb := naturalRank(a), naturalRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		x, y := numericValue(a), numericValue(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case 1:
		x, _ := a.Text()
		y, _ := b.Text()
		return strings.Compare(x, y)
	}
	switch {
	case a.ID() < b.ID():
		return -1
	case a.ID() > b.ID():
		return 1
	}
	return 0
}

func naturalRank(n *graph.Neuron) int {
	switch n.Payload().(type) {
	case *graph.IntValue, *graph.DoubleValue:
		return 0
	case *graph.TextValue:
		return 1
	}
	return 2
}

func numericValue(n *graph.Neuron) float64 {
	if v, ok := n.Int(); ok {
		return float64(v)
	}
	v, _ := n.Double()
	return v
}

// ---------------------------------------------------------------------------
// Locals, returns and clusters
// ---------------------------------------------------------------------------

type prepareLocalInstruction struct {
	base
}

// ExecuteStatement reads the locals straight from the argument cluster so
// they are not evaluated.
func (i *prepareLocalInstruction) ExecuteStatement(p *Processor, args *graph.Neuron) bool {
	c, ok := args.Cluster()
	if !ok {
		return false
	}
	i.Execute(p, c.Children())
	return true
}

// Execute shadows every local in args.
func (i *prepareLocalInstruction) Execute(p *Processor, args []*graph.Neuron) {
	for _, v := range args {
		if !p.PrepareLocal(v) {
			p.domainError(i.name, "%s is not a local", v)
		}
	}
}

type returnValueInstruction struct {
	base
}

// Execute makes args the result of the current call and stops it.
func (i *returnValueInstruction) Execute(p *Processor, args []*graph.Neuron) {
	p.Return(args...)
}

type addChildInstruction struct {
	base
}

// Execute appends args[1:] to the cluster in args[0].
func (i *addChildInstruction) Execute(p *Processor, args []*graph.Neuron) {
	c, ok := args[0].Cluster()
	if !ok {
		p.domainError(i.name, "first argument must be a cluster, got %s", args[0])
		return
	}
	children := args[1:]
	if len(children) == 0 {
		if p.settings.LogInvalidAddChildArgs {
			p.domainWarning(i.name, "no children to add to %s", args[0])
		}
		return
	}
	w := c.WriteChildren()
	defer w.Release()
	w.Append(children...)
}

type isInitializedInstruction struct {
	base
	variableTarget
}

func (i *isInitializedInstruction) GetValue(p *Processor, args []*graph.Neuron) *graph.Neuron {
	b, ok := i.CalculateBool(p, args)
	if !ok {
		return nil
	}
	if b {
		return p.brain.MustGet(graph.True)
	}
	return p.brain.MustGet(graph.False)
}

func (i *isInitializedInstruction) CalculateBool(p *Processor, args []*graph.Neuron) (bool, bool) {
	if _, ok := args[0].Variable(); !ok {
		p.domainError(i.name, "argument must be a variable, got %s", args[0])
		return false, false
	}
	return p.IsInitialized(args[0]), true
}
