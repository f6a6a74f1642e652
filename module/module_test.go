package module

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/chazu/nnl/graph"
	"github.com/chazu/nnl/vm"
)

type quietLogger struct {
	mu     sync.Mutex
	errors []string
}

func (q *quietLogger) Errorf(format string, values ...any) {
	q.mu.Lock()
	q.errors = append(q.errors, fmt.Sprintf(format, values...))
	q.mu.Unlock()
}

func (q *quietLogger) Warningf(string, ...any) {}
func (q *quietLogger) Infof(string, ...any)    {}
func (q *quietLogger) Debugf(string, ...any)   {}

func newTestRegistry(t *testing.T) (*graph.Brain, *Registry) {
	t.Helper()
	b := graph.NewWithLogger(&quietLogger{})
	r := NewRegistry(b, vm.NewRegistry())
	r.SetLogger(&quietLogger{})
	return b, r
}

func mustCompile(t *testing.T, r *Registry, name string, build BuildFunc) *Module {
	t.Helper()
	mod := New(name)
	if _, err := r.Compile(mod, build); err != nil {
		t.Fatalf("Compile(%s): %v", name, err)
	}
	return mod
}

func mustRetract(t *testing.T, r *Registry, name string) RemoveStats {
	t.Helper()
	stats, err := r.Retract(name)
	if err != nil {
		t.Fatalf("Retract(%s): %v", name, err)
	}
	return stats
}

// buildProgram renders a small program touching every builder.
func buildProgram(c *Compiler) error {
	x := c.Local("x")
	g := c.Global("total", graph.SplitDuplicate)
	sum := c.Statement("Addition", true, c.NewInt(1), c.NewDouble(2.5), x)
	store := c.Statement("Store", false, g, sum)
	label := c.NewText("label")
	holder := c.NewCluster(graph.ClusterNeuron, label, c.NewInt(7))
	if err := c.Link(holder, label, c.Brain().MustGet(graph.TextNeuron)); err != nil {
		return err
	}
	c.Code(c.Statement("Store", false, x, c.NewInt(4)), store)
	c.AddLib("print", "host.Print")
	return nil
}

func TestRetractRestoresGraph(t *testing.T) {
	b, r := newTestRegistry(t)
	before := b.Snapshot()

	mod := mustCompile(t, r, "prog", buildProgram)
	if len(mod.Neurons) == 0 {
		t.Fatal("compiled module owns no neurons")
	}
	if len(mod.ExternalRefs) == 0 {
		t.Error("instruction neurons should be external references")
	}
	if len(mod.LibRefs) != 1 {
		t.Errorf("LibRefs = %v", mod.LibRefs)
	}
	if b.Count() <= len(before) {
		t.Fatalf("Count = %d, want more than %d", b.Count(), len(before))
	}

	stats := mustRetract(t, r, "prog")
	if stats.Kept != 0 {
		t.Errorf("Kept = %d, want 0", stats.Kept)
	}
	if after := b.Snapshot(); !maps.Equal(before, after) {
		t.Fatalf("graph differs after retract: before %d neurons, after %d", len(before), len(after))
	}
	if !mod.IsEmpty() {
		t.Error("retracted module still lists neurons")
	}
	if r.Len() != 0 {
		t.Errorf("registry Len = %d", r.Len())
	}
}

func TestRetractUnknownModule(t *testing.T) {
	_, r := newTestRegistry(t)
	if _, err := r.Retract("missing"); !errors.Is(err, ErrModuleNotFound) {
		t.Fatalf("err = %v, want ErrModuleNotFound", err)
	}
}

func TestSharedNeuronSurvivesSingleRetract(t *testing.T) {
	_, r := newTestRegistry(t)

	var shared *graph.Neuron
	mustCompile(t, r, "a", func(c *Compiler) error {
		shared = c.NewInt(42)
		return nil
	})
	mustCompile(t, r, "b", func(c *Compiler) error {
		c.Add(shared)
		c.Add(shared)
		return nil
	})
	if got := shared.ModuleRefCount(); got != 2 {
		t.Fatalf("refs = %d, want 2", got)
	}

	mustRetract(t, r, "a")
	if shared.IsDeleted() {
		t.Fatal("shared neuron deleted while module b still owns it")
	}
	if got := shared.ModuleRefCount(); got != 1 {
		t.Fatalf("refs = %d, want 1", got)
	}

	mustRetract(t, r, "b")
	if !shared.IsDeleted() {
		t.Fatal("neuron not deleted after its last owner was retracted")
	}
	if got := shared.ModuleRefCount(); got != 0 {
		t.Fatalf("refs = %d after deletion", got)
	}
}

func TestLinksBetweenSharedNeuronsPreserved(t *testing.T) {
	b, r := newTestRegistry(t)
	meaning := b.MustGet(graph.Code)

	var from, to *graph.Neuron
	mustCompile(t, r, "a", func(c *Compiler) error {
		from = c.NewNeuron()
		to = c.NewNeuron()
		return c.Link(from, to, meaning)
	})
	mustCompile(t, r, "b", func(c *Compiler) error {
		c.Add(from)
		c.Add(to)
		return nil
	})

	stats := mustRetract(t, r, "a")
	if stats.LinksRemoved != 0 {
		t.Errorf("LinksRemoved = %d, want 0", stats.LinksRemoved)
	}
	if from.FindLinkOut(to, graph.Code) == nil {
		t.Fatal("link between neurons owned by b was removed")
	}

	stats = mustRetract(t, r, "b")
	if stats.LinksRemoved != 1 {
		t.Errorf("LinksRemoved = %d, want 1", stats.LinksRemoved)
	}
	if !from.IsDeleted() || !to.IsDeleted() {
		t.Fatal("linked neurons not deleted with their last owner")
	}
}

func TestCyclesAreDeleted(t *testing.T) {
	b, r := newTestRegistry(t)
	before := b.Count()
	meaning := b.MustGet(graph.Code)

	var ring []*graph.Neuron
	mustCompile(t, r, "cycle", func(c *Compiler) error {
		first := c.NewCluster(graph.ClusterNeuron)
		second := c.NewCluster(graph.ClusterNeuron, first)
		fc, _ := first.Cluster()
		w := fc.WriteChildren()
		w.Append(second)
		w.Release()
		ring = []*graph.Neuron{first, second}
		if err := c.Link(first, second, meaning); err != nil {
			return err
		}
		return c.Link(second, first, meaning)
	})

	mustRetract(t, r, "cycle")
	for _, n := range ring {
		if !n.IsDeleted() {
			t.Errorf("%s survived retraction", n)
		}
	}
	if b.Count() != before {
		t.Fatalf("Count = %d, want %d", b.Count(), before)
	}
}

func TestReferencedNeuronBecomesOrphanThenCollected(t *testing.T) {
	b, r := newTestRegistry(t)

	var owned *graph.Neuron
	mustCompile(t, r, "a", func(c *Compiler) error {
		owned = c.NewInt(1)
		return nil
	})
	host := b.NewCluster(graph.ClusterNeuron, owned)

	stats := mustRetract(t, r, "a")
	if owned.IsDeleted() {
		t.Fatal("neuron referenced by a host cluster was deleted")
	}
	if stats.Kept != 1 || r.Compiler().Orphans() != 1 {
		t.Fatalf("Kept = %d, Orphans = %d, want 1 and 1", stats.Kept, r.Compiler().Orphans())
	}

	hc, _ := host.Cluster()
	w := hc.WriteChildren()
	w.Remove(owned)
	w.Release()

	mustCompile(t, r, "b", func(c *Compiler) error {
		c.NewInt(2)
		return nil
	})
	mustRetract(t, r, "b")
	if !owned.IsDeleted() {
		t.Fatal("orphan not collected by the next retraction")
	}
	if got := r.Compiler().Orphans(); got != 0 {
		t.Fatalf("Orphans = %d, want 0", got)
	}
}

func TestOrphanReclaimedByRecompile(t *testing.T) {
	b, r := newTestRegistry(t)

	var owned *graph.Neuron
	mustCompile(t, r, "a", func(c *Compiler) error {
		owned = c.NewInt(1)
		return nil
	})
	b.NewCluster(graph.ClusterNeuron, owned)
	mustRetract(t, r, "a")

	mustCompile(t, r, "a", func(c *Compiler) error {
		c.Add(owned)
		return nil
	})
	if r.Compiler().Orphans() != 0 {
		t.Fatal("re-added neuron still listed as orphan")
	}
	if owned.ModuleRefCount() != 1 {
		t.Fatalf("refs = %d, want 1", owned.ModuleRefCount())
	}
}

func TestRefCountNeverNegative(t *testing.T) {
	b, r := newTestRegistry(t)
	var n *graph.Neuron
	mod := mustCompile(t, r, "a", func(c *Compiler) error {
		n = c.NewText("once")
		return nil
	})
	c := r.Compiler()
	c.RemovePreviousDef(mod)
	stats := c.RemovePreviousDef(mod)
	if stats != (RemoveStats{Passes: stats.Passes}) {
		t.Fatalf("second retract did work: %+v", stats)
	}
	if n.ModuleRefCount() < 0 {
		t.Fatalf("refs = %d", n.ModuleRefCount())
	}
	for id, refs := range b.Snapshot() {
		if refs < 0 {
			t.Errorf("neuron %d has %d refs", id, refs)
		}
	}
}

func TestVariablesUnregisteredOnDelete(t *testing.T) {
	_, r := newTestRegistry(t)
	vars := r.Compiler().Vars()

	mustCompile(t, r, "a", func(c *Compiler) error {
		c.Local("x")
		c.Global("g", graph.SplitClear)
		return nil
	})
	mustCompile(t, r, "b", func(c *Compiler) error {
		c.Local("x")
		return nil
	})
	x, ok := vars.Lookup(graph.Local, "x")
	if !ok || x.ModuleRefCount() != 2 {
		t.Fatalf("Local x not shared: ok=%v", ok)
	}

	mustRetract(t, r, "a")
	if _, ok := vars.Lookup(graph.Local, "x"); !ok {
		t.Error("x unregistered while module b uses it")
	}
	if _, ok := vars.Lookup(graph.Global, "g"); ok {
		t.Error("g still registered after its only module was retracted")
	}

	mustRetract(t, r, "b")
	if vars.Len() != 0 {
		t.Fatalf("VarManager Len = %d, want 0", vars.Len())
	}
}

func TestFailedCompileRetractsPartialModule(t *testing.T) {
	b, r := newTestRegistry(t)
	before := b.Snapshot()

	sess, err := r.Compile(New("broken"), func(c *Compiler) error {
		c.Code(
			c.Statement("Store", false, c.Local("x"), c.NewInt(1)),
			c.Statement("NoSuchInstruction", false, c.NewInt(2)),
		)
		return nil
	})
	if !errors.Is(err, ErrCompileFailed) {
		t.Fatalf("err = %v, want ErrCompileFailed", err)
	}
	if !sess.Failed() || len(sess.Errors) != 1 {
		t.Fatalf("session errors = %v", sess.Errors)
	}
	if _, ok := r.Get("broken"); ok {
		t.Error("failed module registered")
	}
	if after := b.Snapshot(); !maps.Equal(before, after) {
		t.Fatal("partial module left neurons behind")
	}
}

func TestCompileAggregatesErrors(t *testing.T) {
	_, r := newTestRegistry(t)
	ioErr := errors.New("read failed")
	sess, err := r.Compile(New("m"), func(c *Compiler) error {
		c.Errorf("first")
		c.Errorf("second")
		return ioErr
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ioErr) {
		t.Errorf("build error not wrapped: %v", err)
	}
	if len(sess.Errors) != 3 {
		t.Fatalf("session errors = %v, want 3", sess.Errors)
	}
}

func TestCompilePanicBecomesError(t *testing.T) {
	b, r := newTestRegistry(t)
	before := b.Snapshot()
	_, err := r.Compile(New("m"), func(c *Compiler) error {
		c.NewInt(1)
		panic("renderer bug")
	})
	if !errors.Is(err, ErrCompileFailed) {
		t.Fatalf("err = %v, want ErrCompileFailed", err)
	}
	if after := b.Snapshot(); !maps.Equal(before, after) {
		t.Fatal("panicking compile left neurons behind")
	}
}

func TestHotReplace(t *testing.T) {
	b, r := newTestRegistry(t)
	before := b.Count()

	var first *graph.Neuron
	mustCompile(t, r, "m", func(c *Compiler) error {
		first = c.NewInt(1)
		return nil
	})
	sess, err := r.Compile(New("m"), func(c *Compiler) error {
		c.NewInt(2)
		c.NewInt(3)
		return nil
	})
	if err != nil {
		t.Fatalf("recompile: %v", err)
	}
	if !first.IsDeleted() {
		t.Error("previous definition not retracted")
	}
	if b.Count() != before+2 {
		t.Errorf("Count = %d, want %d", b.Count(), before+2)
	}
	m, ok := r.Get("m")
	if !ok || m != sess.Module {
		t.Fatal("registry does not hold the new definition")
	}
	if got := r.Names(); len(got) != 1 || got[0] != "m" {
		t.Fatalf("Names = %v", got)
	}
}

func TestRemoveDuringCompile(t *testing.T) {
	b, r := newTestRegistry(t)
	before := b.Count()
	mod := mustCompile(t, r, "m", func(c *Compiler) error {
		scratch := c.NewInt(9)
		c.Remove(scratch)
		c.NewInt(10)
		return nil
	})
	if len(mod.Neurons) != 1 {
		t.Fatalf("Neurons = %v, want one", mod.Neurons)
	}
	if b.Count() != before+1 {
		t.Fatalf("Count = %d, want %d", b.Count(), before+1)
	}
}

func TestRetractWaitsForExecution(t *testing.T) {
	b, r := newTestRegistry(t)
	mustCompile(t, r, "m", func(c *Compiler) error {
		c.NewInt(1)
		return nil
	})

	leave := b.Enter()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Retract("m")
	}()

	select {
	case <-done:
		t.Fatal("retract ran while execution was in progress")
	case <-time.After(50 * time.Millisecond):
	}
	leave()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retract did not finish after execution left")
	}
}

func TestCompiledCodeRuns(t *testing.T) {
	b, r := newTestRegistry(t)
	f := vm.NewProcessorFactory(b, r.Compiler().Registry(), vm.DefaultSettings())
	f.SetLogger(&quietLogger{})

	var code, total *graph.Neuron
	mustCompile(t, r, "m", func(c *Compiler) error {
		total = c.Global("total", graph.SplitShared)
		code = c.Code(c.Statement("Store", false, total,
			c.Statement("Addition", true, c.NewInt(2), c.NewInt(3))))
		return nil
	})

	p := f.Get()
	defer f.Release(p)
	if err := p.Run(code); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, ok := p.ExtractValue(total)
	if !ok || len(got) != 1 {
		t.Fatalf("total = %v, %v", got, ok)
	}
	if v, _ := got[0].Int(); v != 5 {
		t.Fatalf("total = %d, want 5", v)
	}
}

func TestKeptCodeKeepsStatementArguments(t *testing.T) {
	b, r := newTestRegistry(t)
	f := vm.NewProcessorFactory(b, r.Compiler().Registry(), vm.DefaultSettings())
	f.SetLogger(&quietLogger{})

	var code, total, guarded *graph.Neuron
	mustCompile(t, r, "m", func(c *Compiler) error {
		total = c.Global("total", graph.SplitShared)
		code = c.Code(c.Statement("Store", false, total,
			c.Statement("Addition", true, c.NewInt(2), c.NewInt(3))))
		guarded = c.Lock(c.NewCluster(graph.ClusterNeuron), c.Code())
		return nil
	})
	b.NewCluster(graph.ClusterNeuron, code, guarded)

	mustRetract(t, r, "m")
	if code.IsDeleted() {
		t.Fatal("code referenced by a host cluster was deleted")
	}
	var walk func(n *graph.Neuron)
	walk = func(n *graph.Neuron) {
		if n.IsDeleted() {
			t.Fatalf("%s reachable from kept code was deleted", n)
		}
		if c, ok := n.Cluster(); ok {
			for _, child := range c.Children() {
				walk(child)
			}
		}
		if s, ok := n.Statement(); ok {
			walk(s.Arguments)
		}
	}
	walk(code)
	lock, _ := guarded.Payload().(*graph.LockExpression)
	if guarded.IsDeleted() || lock.Neurons.IsDeleted() || lock.Code.IsDeleted() {
		t.Fatal("kept lock expression lost its parts")
	}

	p := f.Get()
	defer f.Release(p)
	if err := p.Run(code); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, ok := p.ExtractValue(total)
	if !ok || len(got) != 1 {
		t.Fatalf("total = %v, %v", got, ok)
	}
	if v, _ := got[0].Int(); v != 5 {
		t.Fatalf("total = %d, want 5", v)
	}
}
