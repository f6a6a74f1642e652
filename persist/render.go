package persist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/nnl/graph"
	"github.com/chazu/nnl/module"
)

// ErrUnresolvedName is recorded for references to names that are neither
// defined in the source nor predefined.
var ErrUnresolvedName = errors.New("persist: unresolved name")

// renderer turns a Source into neurons in two phases: first every named
// node is created, then children, arguments, locks and links are wired.
type renderer struct {
	c     *module.Compiler
	b     *graph.Brain
	names map[string]*graph.Neuron
	locks []*LockNode
}

// Render adds the neurons described by src to the compiler's current
// module. Problems with individual nodes are recorded on the compiler and
// rendering continues.
func Render(c *module.Compiler, src *Source) error {
	if src == nil {
		return errors.New("persist: nil source")
	}
	if mod := c.Module(); mod != nil && len(src.Header.ExtensionFiles) > 0 {
		mod.ExtensionFiles = append(mod.ExtensionFiles, src.Header.ExtensionFiles...)
	}
	r := &renderer{
		c:     c,
		b:     c.Brain(),
		names: make(map[string]*graph.Neuron, len(src.Nodes)),
	}
	for _, n := range src.Nodes {
		r.create(n)
	}
	for _, l := range r.locks {
		r.lock(l)
	}
	for _, n := range src.Nodes {
		r.wire(n)
	}
	return nil
}

// Build returns a build function rendering src.
func Build(src *Source) module.BuildFunc {
	return func(c *module.Compiler) error {
		return Render(c, src)
	}
}

// BuildReader returns a build function that decodes r and renders it.
// Decoding errors fail the compile session.
func BuildReader(r io.Reader) module.BuildFunc {
	return func(c *module.Compiler) error {
		src, err := Read(r)
		if err != nil {
			return err
		}
		return Render(c, src)
	}
}

// CompileFile compiles the module stored at path. The module is named
// after the file without its extension.
func CompileFile(reg *module.Registry, path string) (*module.Session, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	mod := module.New(name, path)
	return reg.Compile(mod, func(c *module.Compiler) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return BuildReader(f)(c)
	})
}

// ---------------------------------------------------------------------------
// Phase one: named nodes
// ---------------------------------------------------------------------------

func (r *renderer) define(name string, n *graph.Neuron) {
	if n == nil {
		return
	}
	if name == "" {
		r.c.Errorf("persist: %s node without a name", n.Kind())
		return
	}
	if _, dup := r.names[name]; dup {
		r.c.Errorf("persist: duplicate name %q", name)
		return
	}
	r.names[name] = n
}

func (r *renderer) create(n Node) {
	switch n := n.(type) {
	case *NeuronNode:
		r.define(n.Name, r.c.NewNeuron())
	case *IntNode:
		r.define(n.Name, r.c.NewInt(n.Value))
	case *DoubleNode:
		r.define(n.Name, r.c.NewDouble(n.Value))
	case *TextNode:
		r.define(n.Name, r.c.NewText(n.Value))
	case *ClusterNode:
		r.define(n.Name, r.c.NewCluster(graph.NoID))
	case *LocalNode:
		r.define(n.Name, r.c.Local(n.Var))
	case *GlobalNode:
		reaction, ok := graph.ParseSplitReaction(n.Reaction)
		if !ok {
			r.c.Errorf("persist: global %s: unknown split reaction %q", n.Var, n.Reaction)
		}
		r.define(n.Name, r.c.Global(n.Var, reaction))
	case *SystemNode:
		r.define(n.Name, r.c.System(n.Var))
	case *StatementNode:
		r.define(n.Name, r.c.Statement(n.Instruction, n.Result))
	case *LockNode:
		r.locks = append(r.locks, n)
	case *LinkNode, *LibNode:
	default:
		r.c.Errorf("%w: %s", ErrUnknownNodeType, n.NodeType())
	}
}

// ---------------------------------------------------------------------------
// Phase two: references
// ---------------------------------------------------------------------------

func (r *renderer) resolve(name string) *graph.Neuron {
	if n, ok := r.names[name]; ok {
		return n
	}
	if id, ok := graph.PredefinedID(name); ok {
		return r.b.MustGet(id)
	}
	r.c.Errorf("%w: %q", ErrUnresolvedName, name)
	return nil
}

func (r *renderer) resolveAll(names []string) []*graph.Neuron {
	out := make([]*graph.Neuron, 0, len(names))
	for _, name := range names {
		if n := r.resolve(name); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (r *renderer) lock(l *LockNode) {
	neurons, code := r.resolve(l.Neurons), r.resolve(l.Code)
	if neurons == nil || code == nil {
		return
	}
	r.define(l.Name, r.c.Lock(neurons, code))
}

func (r *renderer) wire(n Node) {
	switch n := n.(type) {
	case *ClusterNode:
		target := r.names[n.Name]
		if target == nil {
			return
		}
		c, _ := target.Cluster()
		if n.Meaning != "" {
			if m := r.resolve(n.Meaning); m != nil {
				if !m.IsDeletable() {
					r.c.AddExternal(m)
				}
				c.SetMeaning(m.ID())
			}
		}
		r.appendChildren(c, n.Children)
	case *StatementNode:
		target := r.names[n.Name]
		if target == nil {
			return
		}
		st, _ := target.Statement()
		args, _ := st.Arguments.Cluster()
		r.appendChildren(args, n.Args)
	case *LinkNode:
		from, to, meaning := r.resolve(n.From), r.resolve(n.To), r.resolve(n.Meaning)
		if from == nil || to == nil || meaning == nil {
			return
		}
		r.c.Link(from, to, meaning)
	case *LibNode:
		r.c.AddLib(n.Name, n.Target)
	}
}

func (r *renderer) appendChildren(c *graph.Cluster, names []string) {
	children := r.resolveAll(names)
	if len(children) == 0 {
		return
	}
	for _, ch := range children {
		if !ch.IsDeletable() {
			r.c.AddExternal(ch)
		}
	}
	w := c.WriteChildren()
	w.Append(children...)
	w.Release()
}

// String describes src for logs.
func (s *Source) String() string {
	return fmt.Sprintf("%s (%d nodes)", s.Header.Module, len(s.Nodes))
}
