package persist

import (
	"fmt"
	"sort"
	"sync"
)

// Node is one persisted record. Nodes refer to each other by Name; names
// that are not defined in the source resolve to predefined neurons.
type Node interface {
	NodeType() string
}

// Named is implemented by nodes that define a name.
type Named interface {
	Node
	NodeName() string
}

// Header is the first record of every stream.
type Header struct {
	Module         string   `cbor:"1,keyasint"`
	Files          []string `cbor:"2,keyasint,omitempty"`
	ExtensionFiles []string `cbor:"3,keyasint,omitempty"`
}

// NeuronNode is a neuron without a payload.
type NeuronNode struct {
	Name string `cbor:"1,keyasint"`
}

// IntNode is an int neuron.
type IntNode struct {
	Name  string `cbor:"1,keyasint"`
	Value int64  `cbor:"2,keyasint"`
}

// DoubleNode is a double neuron.
type DoubleNode struct {
	Name  string  `cbor:"1,keyasint"`
	Value float64 `cbor:"2,keyasint"`
}

// TextNode is a text neuron.
type TextNode struct {
	Name  string `cbor:"1,keyasint"`
	Value string `cbor:"2,keyasint"`
}

// ClusterNode is a cluster; Meaning and Children are names.
type ClusterNode struct {
	Name     string   `cbor:"1,keyasint"`
	Meaning  string   `cbor:"2,keyasint,omitempty"`
	Children []string `cbor:"3,keyasint,omitempty"`
}

// LocalNode binds Name to the local variable Var.
type LocalNode struct {
	Name string `cbor:"1,keyasint"`
	Var  string `cbor:"2,keyasint"`
}

// GlobalNode binds Name to the global variable Var.
type GlobalNode struct {
	Name     string `cbor:"1,keyasint"`
	Var      string `cbor:"2,keyasint"`
	Reaction string `cbor:"3,keyasint,omitempty"`
}

// SystemNode binds Name to the system variable Var.
type SystemNode struct {
	Name string `cbor:"1,keyasint"`
	Var  string `cbor:"2,keyasint"`
}

// StatementNode invokes Instruction with the named arguments.
type StatementNode struct {
	Name        string   `cbor:"1,keyasint"`
	Instruction string   `cbor:"2,keyasint"`
	Result      bool     `cbor:"3,keyasint,omitempty"`
	Args        []string `cbor:"4,keyasint,omitempty"`
}

// LockNode runs Code while holding the locks of Neurons' children.
type LockNode struct {
	Name    string `cbor:"1,keyasint"`
	Neurons string `cbor:"2,keyasint"`
	Code    string `cbor:"3,keyasint"`
}

// LinkNode links two named neurons.
type LinkNode struct {
	From    string `cbor:"1,keyasint"`
	To      string `cbor:"2,keyasint"`
	Meaning string `cbor:"3,keyasint"`
}

// LibNode binds a name to a host function.
type LibNode struct {
	Name   string `cbor:"1,keyasint"`
	Target string `cbor:"2,keyasint"`
}

func (*NeuronNode) NodeType() string    { return "neuron" }
func (*IntNode) NodeType() string       { return "int" }
func (*DoubleNode) NodeType() string    { return "double" }
func (*TextNode) NodeType() string      { return "text" }
func (*ClusterNode) NodeType() string   { return "cluster" }
func (*LocalNode) NodeType() string     { return "local" }
func (*GlobalNode) NodeType() string    { return "global" }
func (*SystemNode) NodeType() string    { return "system" }
func (*StatementNode) NodeType() string { return "statement" }
func (*LockNode) NodeType() string      { return "lock" }
func (*LinkNode) NodeType() string      { return "link" }
func (*LibNode) NodeType() string       { return "lib" }

func (n *NeuronNode) NodeName() string    { return n.Name }
func (n *IntNode) NodeName() string       { return n.Name }
func (n *DoubleNode) NodeName() string    { return n.Name }
func (n *TextNode) NodeName() string      { return n.Name }
func (n *ClusterNode) NodeName() string   { return n.Name }
func (n *LocalNode) NodeName() string     { return n.Name }
func (n *GlobalNode) NodeName() string    { return n.Name }
func (n *SystemNode) NodeName() string    { return n.Name }
func (n *StatementNode) NodeName() string { return n.Name }
func (n *LockNode) NodeName() string      { return n.Name }

// ---------------------------------------------------------------------------
// Node type registry
// ---------------------------------------------------------------------------

// headerTag is the record type of the stream header.
const headerTag = "header"

var (
	nodeTypesMu sync.RWMutex
	nodeTypes   = map[string]func() Node{
		"neuron":    func() Node { return &NeuronNode{} },
		"int":       func() Node { return &IntNode{} },
		"double":    func() Node { return &DoubleNode{} },
		"text":      func() Node { return &TextNode{} },
		"cluster":   func() Node { return &ClusterNode{} },
		"local":     func() Node { return &LocalNode{} },
		"global":    func() Node { return &GlobalNode{} },
		"system":    func() Node { return &SystemNode{} },
		"statement": func() Node { return &StatementNode{} },
		"lock":      func() Node { return &LockNode{} },
		"link":      func() Node { return &LinkNode{} },
		"lib":       func() Node { return &LibNode{} },
	}
)

// RegisterNodeType adds a node type. The factory must return a pointer
// whose NodeType is tag. Registering an existing tag panics.
func RegisterNodeType(tag string, factory func() Node) {
	if tag == headerTag {
		panic("persist: reserved node type " + tag)
	}
	nodeTypesMu.Lock()
	defer nodeTypesMu.Unlock()
	if _, ok := nodeTypes[tag]; ok {
		panic(fmt.Sprintf("persist: node type %q already registered", tag))
	}
	nodeTypes[tag] = factory
}

// NodeTypes returns the registered tags in sorted order.
func NodeTypes() []string {
	nodeTypesMu.RLock()
	tags := make([]string, 0, len(nodeTypes))
	for tag := range nodeTypes {
		tags = append(tags, tag)
	}
	nodeTypesMu.RUnlock()
	sort.Strings(tags)
	return tags
}

func newNode(tag string) (Node, error) {
	nodeTypesMu.RLock()
	factory, ok := nodeTypes[tag]
	nodeTypesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, tag)
	}
	return factory(), nil
}
