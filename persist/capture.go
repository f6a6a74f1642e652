package persist

import (
	"fmt"
	"strconv"

	"github.com/chazu/nnl/graph"
	"github.com/chazu/nnl/module"
)

// Capture builds a Source from the neurons a compiled module owns.
// References must stay inside the module or point at predefined neurons.
func Capture(b *graph.Brain, mod *module.Module) (*Source, error) {
	src := &Source{Header: Header{
		Module:         mod.Name,
		Files:          mod.FileNames,
		ExtensionFiles: mod.ExtensionFiles,
	}}

	owned := make(map[graph.ID]*graph.Neuron, len(mod.Neurons))
	order := make([]*graph.Neuron, 0, len(mod.Neurons))
	for _, id := range mod.Neurons {
		n, ok := b.Get(id)
		if !ok {
			return nil, fmt.Errorf("persist: module %s lists unknown neuron %d", mod.Name, id)
		}
		if _, dup := owned[id]; dup {
			continue
		}
		owned[id] = n
		order = append(order, n)
	}

	// Argument clusters are written inline with their statements.
	argLists := make(map[graph.ID]struct{})
	for _, n := range order {
		if st, ok := n.Statement(); ok && st.Arguments != nil {
			argLists[st.Arguments.ID()] = struct{}{}
		}
	}

	name := func(n *graph.Neuron) (string, error) {
		if n == nil {
			return "", fmt.Errorf("%w: nil reference", ErrUnresolvedName)
		}
		if _, ok := owned[n.ID()]; ok {
			return "n" + strconv.FormatUint(uint64(n.ID()), 10), nil
		}
		if pn, ok := graph.PredefinedName(n.ID()); ok {
			return pn, nil
		}
		return "", fmt.Errorf("%w: %s is outside module %s", ErrUnresolvedName, n, mod.Name)
	}
	names := func(ns []*graph.Neuron) ([]string, error) {
		out := make([]string, 0, len(ns))
		for _, n := range ns {
			s, err := name(n)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}

	for _, n := range order {
		if _, ok := argLists[n.ID()]; ok {
			continue
		}
		self, _ := name(n)
		node, err := captureNode(b, n, self, name, names)
		if err != nil {
			return nil, err
		}
		src.Nodes = append(src.Nodes, node)
	}

	for _, n := range order {
		for _, l := range n.LinksOut() {
			from, _ := name(n)
			to, err := name(l.To)
			if err != nil {
				return nil, err
			}
			mn, ok := b.Get(l.Meaning)
			if !ok {
				return nil, fmt.Errorf("%w: link meaning %d", ErrUnresolvedName, l.Meaning)
			}
			meaning, err := name(mn)
			if err != nil {
				return nil, err
			}
			src.Nodes = append(src.Nodes, &LinkNode{From: from, To: to, Meaning: meaning})
		}
	}
	for _, lib := range mod.LibRefs {
		src.Nodes = append(src.Nodes, &LibNode{Name: lib.Name, Target: lib.Target})
	}
	return src, nil
}

func captureNode(
	b *graph.Brain,
	n *graph.Neuron,
	self string,
	name func(*graph.Neuron) (string, error),
	names func([]*graph.Neuron) ([]string, error),
) (Node, error) {
	switch p := n.Payload().(type) {
	case nil:
		return &NeuronNode{Name: self}, nil
	case *graph.IntValue:
		return &IntNode{Name: self, Value: p.Get()}, nil
	case *graph.DoubleValue:
		return &DoubleNode{Name: self, Value: p.Get()}, nil
	case *graph.TextValue:
		return &TextNode{Name: self, Value: p.Get()}, nil
	case *graph.Cluster:
		children, err := names(p.Children())
		if err != nil {
			return nil, err
		}
		node := &ClusterNode{Name: self, Children: children}
		if m := p.Meaning(); m != graph.NoID {
			mn, ok := b.Get(m)
			if !ok {
				return nil, fmt.Errorf("%w: meaning %d of %s", ErrUnresolvedName, m, n)
			}
			if node.Meaning, err = name(mn); err != nil {
				return nil, err
			}
		}
		return node, nil
	case *graph.Variable:
		switch p.Kind {
		case graph.Global:
			return &GlobalNode{Name: self, Var: p.Name, Reaction: p.SplitReaction.String()}, nil
		case graph.System:
			return &SystemNode{Name: self, Var: p.Name}, nil
		}
		return &LocalNode{Name: self, Var: p.Name}, nil
	case *graph.Statement:
		inst, ok := p.Instruction.Payload().(*graph.InstructionNode)
		if !ok {
			return nil, fmt.Errorf("persist: statement %s has no instruction", n)
		}
		var args []string
		if c, ok := p.Arguments.Cluster(); ok {
			var err error
			if args, err = names(c.Children()); err != nil {
				return nil, err
			}
		}
		return &StatementNode{Name: self, Instruction: inst.Name, Result: p.Result, Args: args}, nil
	case *graph.LockExpression:
		neurons, err := name(p.Neurons)
		if err != nil {
			return nil, err
		}
		code, err := name(p.Code)
		if err != nil {
			return nil, err
		}
		return &LockNode{Name: self, Neurons: neurons, Code: code}, nil
	}
	return nil, fmt.Errorf("persist: cannot capture %s neurons", n.Kind())
}
