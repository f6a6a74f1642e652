package persist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chazu/nnl/graph"
	"github.com/chazu/nnl/module"
	"github.com/chazu/nnl/vm"
)

type nopLogger struct{}

func (nopLogger) Errorf(string, ...any)   {}
func (nopLogger) Warningf(string, ...any) {}
func (nopLogger) Infof(string, ...any)    {}
func (nopLogger) Debugf(string, ...any)   {}

// sumSource stores 2+3 into the global "total" when its "main" code runs.
func sumSource() *Source {
	src := &Source{Header: Header{Module: "sum", Files: []string{"sum.nnl"}}}
	return src.Add(
		&IntNode{Name: "two", Value: 2},
		&IntNode{Name: "three", Value: 3},
		&DoubleNode{Name: "half", Value: 0.5},
		&TextNode{Name: "greeting", Value: "hello"},
		&NeuronNode{Name: "marker"},
		&GlobalNode{Name: "total", Var: "total", Reaction: "duplicate"},
		&LocalNode{Name: "x", Var: "x"},
		&StatementNode{Name: "sum", Instruction: "Addition", Result: true, Args: []string{"two", "three"}},
		&StatementNode{Name: "store", Instruction: "Store", Args: []string{"total", "sum"}},
		&ClusterNode{Name: "main", Meaning: "Code", Children: []string{"store"}},
		&ClusterNode{Name: "guarded", Children: []string{"marker"}},
		&LockNode{Name: "locked", Neurons: "guarded", Code: "main"},
		&LinkNode{From: "marker", To: "greeting", Meaning: "TextNeuron"},
		&LibNode{Name: "print", Target: "host.Print"},
	)
}

func newRegistry(t *testing.T) (*graph.Brain, *module.Registry) {
	t.Helper()
	b := graph.NewWithLogger(nopLogger{})
	r := module.NewRegistry(b, vm.NewRegistry())
	r.SetLogger(nopLogger{})
	return b, r
}

func encode(t *testing.T, src *Source) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, src); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf.Bytes()
}

// runTotal runs the code cluster and returns the int stored in total.
func runTotal(t *testing.T, b *graph.Brain, r *module.Registry, code *graph.Neuron) int64 {
	t.Helper()
	f := vm.NewProcessorFactory(b, r.Compiler().Registry(), vm.DefaultSettings())
	f.SetLogger(nopLogger{})
	p := f.Get()
	defer f.Release(p)
	if err := p.Run(code); err != nil {
		t.Fatalf("Run: %v", err)
	}
	total, ok := r.Compiler().Vars().Lookup(graph.Global, "total")
	if !ok {
		t.Fatal("global total not registered")
	}
	vals, ok := p.ExtractValue(total)
	if !ok || len(vals) != 1 {
		t.Fatalf("total = %v, %v", vals, ok)
	}
	v, _ := vals[0].Int()
	return v
}

func findCode(t *testing.T, b *graph.Brain, mod *module.Module) *graph.Neuron {
	t.Helper()
	for _, id := range mod.Neurons {
		n := b.MustGet(id)
		if c, ok := n.Cluster(); ok && c.Meaning() == graph.Code {
			return n
		}
	}
	t.Fatal("module has no code cluster")
	return nil
}

func TestWriteReadRoundTrip(t *testing.T) {
	src := sumSource()
	got, err := Read(bytes.NewReader(encode(t, src)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(got, src) {
		t.Fatalf("Read = %+v, want %+v", got, src)
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	if !bytes.Equal(encode(t, sumSource()), encode(t, sumSource())) {
		t.Fatal("equal sources encoded differently")
	}
}

func TestStreamStartsWithVersion(t *testing.T) {
	data := encode(t, &Source{Header: Header{Module: "empty"}})
	if got := int32(binary.LittleEndian.Uint32(data[:4])); got != FormatVersion {
		t.Fatalf("version = %d, want %d", got, FormatVersion)
	}
}

func TestReadErrors(t *testing.T) {
	valid := encode(t, sumSource())

	versionTwo := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(versionTwo[:4], 2)

	var unknown bytes.Buffer
	unknown.Write(encode(t, &Source{Header: Header{Module: "m"}}))
	unknown.Write([]byte{5})
	unknown.WriteString("bogus")
	unknown.Write([]byte{1, 0xa0})

	headerless := make([]byte, 4)
	binary.LittleEndian.PutUint32(headerless, uint32(FormatVersion))
	headerless = append(headerless, 3, 'i', 'n', 't', 1, 0xa0)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrUnexpectedEOF},
		{"version mismatch", versionTwo, ErrVersionMismatch},
		{"unknown node type", unknown.Bytes(), ErrUnknownNodeType},
		{"truncated", valid[:len(valid)-3], ErrUnexpectedEOF},
		{"no header", headerless, ErrMissingHeader},
		{"version only", valid[:4], ErrMissingHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRegisterNodeTypeRejectsDuplicates(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("registering an existing tag did not panic")
		}
	}()
	RegisterNodeType("int", func() Node { return &IntNode{} })
}

func TestRenderAndRun(t *testing.T) {
	b, r := newRegistry(t)
	before := b.Snapshot()

	sess, err := r.Compile(module.New("sum"), Build(sumSource()))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	mod := sess.Module
	if len(mod.LibRefs) != 1 || mod.LibRefs[0].Target != "host.Print" {
		t.Errorf("LibRefs = %v", mod.LibRefs)
	}
	if got := runTotal(t, b, r, findCode(t, b, mod)); got != 5 {
		t.Fatalf("total = %d, want 5", got)
	}

	if _, err := r.Retract("sum"); err != nil {
		t.Fatalf("Retract: %v", err)
	}
	if !maps.Equal(before, b.Snapshot()) {
		t.Fatal("rendered module not fully retracted")
	}
}

func TestCaptureRoundTrip(t *testing.T) {
	b, r := newRegistry(t)
	sess, err := r.Compile(module.New("sum"), Build(sumSource()))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	captured, err := Capture(b, sess.Module)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	data := encode(t, captured)

	b2, r2 := newRegistry(t)
	before := b2.Count()
	sess2, err := r2.Compile(module.New("sum"), BuildReader(bytes.NewReader(data)))
	if err != nil {
		t.Fatalf("Compile captured: %v", err)
	}
	if got, want := b2.Count()-before, len(sess.Module.Neurons); got != want {
		t.Errorf("rendered %d neurons, want %d", got, want)
	}
	if got := runTotal(t, b2, r2, findCode(t, b2, sess2.Module)); got != 5 {
		t.Fatalf("total = %d, want 5", got)
	}
}

func TestRenderRecordsUnresolvedNames(t *testing.T) {
	b, r := newRegistry(t)
	before := b.Snapshot()
	src := (&Source{Header: Header{Module: "bad"}}).Add(
		&ClusterNode{Name: "c", Children: []string{"missing"}},
		&StatementNode{Name: "s", Instruction: "NoSuchInstruction"},
	)
	sess, err := r.Compile(module.New("bad"), Build(src))
	if !errors.Is(err, module.ErrCompileFailed) {
		t.Fatalf("err = %v, want ErrCompileFailed", err)
	}
	if len(sess.Errors) != 2 {
		t.Fatalf("session errors = %v, want 2", sess.Errors)
	}
	if !errors.Is(sess.Errors[0], ErrUnresolvedName) && !errors.Is(sess.Errors[1], ErrUnresolvedName) {
		t.Errorf("no unresolved name error in %v", sess.Errors)
	}
	if !maps.Equal(before, b.Snapshot()) {
		t.Fatal("failed render left neurons behind")
	}
}

func TestCompileFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "sum.nnm")
	if err := os.WriteFile(good, encode(t, sumSource()), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(dir, "stale.nnm")
	data := encode(t, sumSource())
	binary.LittleEndian.PutUint32(data[:4], 0)
	if err := os.WriteFile(stale, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, r := newRegistry(t)
	if _, err := CompileFile(r, good); err != nil {
		t.Fatalf("CompileFile(good): %v", err)
	}
	if _, ok := r.Get("sum"); !ok {
		t.Fatal("module not registered under the file name")
	}

	_, err := CompileFile(r, stale)
	if !errors.Is(err, module.ErrCompileFailed) || !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("stale file: err = %v", err)
	}
	_, err = CompileFile(r, filepath.Join(dir, "missing.nnm"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing file: err = %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("registry Len = %d, want 1", r.Len())
	}
}
