package vm

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/nnl/graph"
)

// ---------------------------------------------------------------------------
// Split: policy-governed forking of a processor
// ---------------------------------------------------------------------------

// Split creates an independent child processor from the same factory.
// Each global is inherited according to its variable's SplitReaction:
// shared globals use the parent's storage, duplicated ones get a copy,
// cleared ones are absent. Locals, parameters and frames are copied.
func (p *Processor) Split() (*Processor, error) {
	if !p.splitAllowed {
		return nil, ErrSplitNotAllowed
	}
	child := p.factory.get(true)
	p.inheritInto(child)

	for v, s := range p.globals {
		vr, _ := v.Variable()
		reaction := graph.SplitShared
		if vr != nil {
			reaction = vr.SplitReaction
		}
		switch reaction {
		case graph.SplitShared:
			child.globals[v] = s
		case graph.SplitDuplicate:
			child.globals[v] = s.duplicate()
		case graph.SplitClear:
		}
	}
	return child, nil
}

// subProcessor creates a processor for a nested evaluation such as a sort
// callback. It cannot split and shares every global with p.
func (p *Processor) subProcessor() *Processor {
	child := p.factory.get(false)
	p.inheritInto(child)
	for v, s := range p.globals {
		child.globals[v] = s
	}
	return child
}

func (p *Processor) inheritInto(child *Processor) {
	child.parent = p
	child.depth = p.depth + 1
	child.temps = p.temps
	child.inherited = p.running > 0

	child.values = make([]map[*graph.Neuron]*slot, len(p.values))
	for i, dict := range p.values {
		cp := make(map[*graph.Neuron]*slot, len(dict))
		for v, s := range dict {
			cp[v] = s.duplicate()
		}
		child.values[i] = cp
	}
	child.params = make([][]*graph.Neuron, len(p.params))
	for i, ps := range p.params {
		child.params[i] = append([]*graph.Neuron(nil), ps...)
	}
	child.returns = make([]*returnState, len(p.returns))
	for i := range p.returns {
		child.returns[i] = &returnState{}
	}
	child.frames = make([]*Frame, len(p.frames))
	for i, f := range p.frames {
		cf := &Frame{Code: f.Code}
		if f.LocalsBuffer != nil {
			cf.LocalsBuffer = make(map[*graph.Neuron]SavedValue, len(f.LocalsBuffer))
			for v, sv := range f.LocalsBuffer {
				cf.LocalsBuffer[v] = SavedValue{Items: append([]*graph.Neuron(nil), sv.Items...), Present: sv.Present}
			}
		}
		child.frames[i] = cf
	}
}

// ---------------------------------------------------------------------------
// SplitGroup: running split children in parallel
// ---------------------------------------------------------------------------

// SplitGroup runs split children of one processor as independent
// goroutines and collects the first error.
type SplitGroup struct {
	parent   *Processor
	g        *errgroup.Group
	ctx      context.Context
	children []*Processor
}

// NewSplitGroup creates a group of continuations of p. The returned
// context is cancelled when any continuation fails.
func NewSplitGroup(ctx context.Context, p *Processor) (*SplitGroup, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	return &SplitGroup{parent: p, g: g, ctx: gctx}, gctx
}

// Go splits the parent and runs fn on the child in a new goroutine.
// Splitting happens on the caller's goroutine, so Go must not be called
// concurrently with other use of the parent.
func (sg *SplitGroup) Go(fn func(ctx context.Context, child *Processor) error) error {
	child, err := sg.parent.Split()
	if err != nil {
		return err
	}
	sg.children = append(sg.children, child)
	sg.g.Go(func() error {
		return fn(sg.ctx, child)
	})
	return nil
}

// Children returns the processors started so far.
func (sg *SplitGroup) Children() []*Processor {
	return sg.children
}

// Wait blocks until every continuation finishes, releases the children and
// returns the first error.
func (sg *SplitGroup) Wait() error {
	err := sg.g.Wait()
	for _, child := range sg.children {
		sg.parent.factory.Release(child)
	}
	sg.children = nil
	return err
}
