package vm

import (
	"github.com/chazu/nnl/graph"
)

// ---------------------------------------------------------------------------
// Single result
// ---------------------------------------------------------------------------

type getFirstInstruction struct {
	base
}

func (i *getFirstInstruction) GetValue(p *Processor, args []*graph.Neuron) *graph.Neuron {
	return args[0]
}

type getLastInstruction struct {
	base
}

func (i *getLastInstruction) GetValue(p *Processor, args []*graph.Neuron) *graph.Neuron {
	return args[len(args)-1]
}

type getAtInstruction struct {
	base
}

// GetValue returns data[index] for args [index, data...].
func (i *getAtInstruction) GetValue(p *Processor, args []*graph.Neuron) *graph.Neuron {
	index, ok := intArg(p, i, args, 0)
	if !ok {
		return nil
	}
	data := args[1:]
	if index < 0 || index >= int64(len(data)) {
		p.domainError(i.name, "index %d out of range for %d items", index, len(data))
		return nil
	}
	return data[index]
}

type countInstruction struct {
	base
}

func (i *countInstruction) GetValue(p *Processor, args []*graph.Neuron) *graph.Neuron {
	return p.TempInt(int64(len(args)))
}

func (i *countInstruction) CalculateInt(p *Processor, args []*graph.Neuron) (int64, bool) {
	return int64(len(args)), true
}

// ---------------------------------------------------------------------------
// Multi result
// ---------------------------------------------------------------------------

type getRangeInstruction struct {
	base
}

// GetValues yields count items of data starting at lower, for args
// [lower, count, data...].
func (i *getRangeInstruction) GetValues(p *Processor, args []*graph.Neuron) {
	lower, ok := intArg(p, i, args, 0)
	if !ok {
		return
	}
	count, ok := intArg(p, i, args, 1)
	if !ok {
		return
	}
	data := args[2:]
	n := int64(len(data))
	if lower < 0 || count < 0 || lower > n || count > n-lower {
		p.domainError(i.name, "range [%d, +%d) out of bounds for %d items", lower, count, n)
		return
	}
	p.AddResult(data[lower : lower+count]...)
}

type completeSequenceInstruction struct {
	base
}

// GetValues yields the children of the cluster in args[0] that follow the
// first occurrence of args[1:] as a contiguous run.
func (i *completeSequenceInstruction) GetValues(p *Processor, args []*graph.Neuron) {
	c, ok := args[0].Cluster()
	if !ok {
		p.domainError(i.name, "first argument must be a cluster, got %s", args[0])
		return
	}
	r := c.ReadChildren()
	defer r.Release()

	items := args[1:]
	children := r.Items()
	for start := 0; start+len(items) <= len(children); start++ {
		match := true
		for k, item := range items {
			if !sameValue(children[start+k], item) {
				match = false
				break
			}
		}
		if match {
			p.AddResult(children[start+len(items):]...)
			return
		}
	}
}

type incrementInstruction struct {
	base
}

// GetValues adds one to every numeric argument in place and yields them.
func (i *incrementInstruction) GetValues(p *Processor, args []*graph.Neuron) {
	for _, n := range args {
		switch v := n.Payload().(type) {
		case *graph.IntValue:
			v.Add(1)
		case *graph.DoubleValue:
			v.Add(1)
		default:
			p.domainError(i.name, "cannot increment %s", n)
			continue
		}
		p.AddResult(n)
	}
}

type substractInstruction struct {
	base
}

// GetStatementValues evaluates the two argument expressions separately and
// yields the items of the first that are absent from the second.
func (i *substractInstruction) GetStatementValues(p *Processor, args *graph.Neuron) bool {
	c, ok := args.Cluster()
	if !ok {
		return false
	}
	exprs := c.Children()
	if len(exprs) != 2 {
		p.domainError(i.name, "expected 2 argument expressions, got %d", len(exprs))
		return true
	}
	from := p.evaluateOne(exprs[0])
	minus := p.evaluateOne(exprs[1])
	p.AddResult(difference(from, minus)...)
	return true
}

// GetValues handles pre-evaluated arguments: the first item is the
// minuend, the rest are removed from it.
func (i *substractInstruction) GetValues(p *Processor, args []*graph.Neuron) {
	p.AddResult(difference(args[:1], args[1:])...)
}

func difference(from, minus []*graph.Neuron) []*graph.Neuron {
	out := make([]*graph.Neuron, 0, len(from))
	for _, n := range from {
		found := false
		for _, m := range minus {
			if sameValue(n, m) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, n)
		}
	}
	return out
}

type paramsInstruction struct {
	base
}

// GetValues yields the parameters of the current call.
func (i *paramsInstruction) GetValues(p *Processor, args []*graph.Neuron) {
	p.AddResult(p.Params()...)
}
