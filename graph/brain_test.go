package graph

import (
	"errors"
	"sync"
	"testing"
)

func TestNewBrainHasPredefinedNeurons(t *testing.T) {
	b := New()
	for id, name := range predefinedNames {
		n, ok := b.Get(id)
		if !ok {
			t.Fatalf("predefined %s (%d) missing", name, id)
		}
		if !n.IsPredefined() || n.IsDeletable() {
			t.Errorf("%s: predefined=%v deletable=%v", name, n.IsPredefined(), n.IsDeletable())
		}
		if err := b.Delete(n); !errors.Is(err, ErrNotDeletable) {
			t.Errorf("deleting %s: got %v, want ErrNotDeletable", name, err)
		}
	}
	if got := b.Count(); got != len(predefinedNames) {
		t.Errorf("Count = %d, want %d", got, len(predefinedNames))
	}
	if id, ok := PredefinedID("TimeSpan"); !ok || id != TimeSpan {
		t.Errorf("PredefinedID(TimeSpan) = %d, %v", id, ok)
	}
}

func TestNewNeuronsGetFreshIDs(t *testing.T) {
	b := New()
	a := b.NewInt(1)
	c := b.NewText("x")
	if a.ID() < firstFreeID || c.ID() <= a.ID() {
		t.Fatalf("ids not monotonic from firstFreeID: %d, %d", a.ID(), c.ID())
	}
	if a.TypeOf() != IntNeuron || c.TypeOf() != TextNeuron {
		t.Errorf("type tags: %d, %d", a.TypeOf(), c.TypeOf())
	}
	if got, _ := b.Get(a.ID()); got != a {
		t.Errorf("Get(%d) returned a different neuron", a.ID())
	}
}

func TestRefCountNeverNegative(t *testing.T) {
	b := New()
	n := b.NewNeuron()
	if got := n.DecRef(); got != 0 {
		t.Errorf("DecRef on zero = %d", got)
	}
	n.IncRef()
	n.IncRef()
	if got := n.DecRef(); got != 1 {
		t.Errorf("DecRef = %d, want 1", got)
	}
	if got := n.ModuleRefCount(); got != 1 {
		t.Errorf("ModuleRefCount = %d, want 1", got)
	}
}

func TestLinkRecordsBothEndpoints(t *testing.T) {
	b := New()
	from := b.NewNeuron()
	to := b.NewNeuron()
	meaning := b.NewNeuron()

	l, err := b.Link(from, to, meaning.ID())
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	again, _ := b.Link(from, to, meaning.ID())
	if again != l {
		t.Errorf("second Link created a duplicate")
	}
	if len(from.LinksOut()) != 1 || len(to.LinksIn()) != 1 {
		t.Fatalf("out=%d in=%d", len(from.LinksOut()), len(to.LinksIn()))
	}
	refs := to.Referrers()
	if len(refs) != 1 || refs[0] != from {
		t.Errorf("Referrers = %v", refs)
	}

	b.Unlink(l)
	if len(from.LinksOut()) != 0 || len(to.LinksIn()) != 0 {
		t.Errorf("links remain after Unlink")
	}
}

func TestStatementAndLockHoldTheirParts(t *testing.T) {
	b := New()
	args := b.NewCluster(Arguments, b.NewInt(1))
	stmt := b.NewStatement(b.NewInstruction("Store"), args, false)
	set := b.NewCluster(ClusterNeuron)
	code := b.NewCluster(Code, stmt)
	lock := b.NewLockExpression(set, code)

	if refs := args.Referrers(); len(refs) != 1 || refs[0] != stmt {
		t.Fatalf("args Referrers = %v, want the statement", refs)
	}
	for _, part := range []*Neuron{set, code} {
		held := part.HeldBy()
		if len(held) != 1 || held[0] != lock {
			t.Errorf("%s HeldBy = %v, want the lock", part, held)
		}
	}

	if err := b.Delete(lock); err != nil {
		t.Fatalf("Delete lock: %v", err)
	}
	if len(set.HeldBy()) != 0 || len(code.HeldBy()) != 0 {
		t.Error("lock parts still record the deleted lock")
	}
	if err := b.Delete(stmt); err != nil {
		t.Fatalf("Delete statement: %v", err)
	}
	if len(args.Referrers()) != 0 {
		t.Errorf("args Referrers = %v after deleting the statement", args.Referrers())
	}
}

func TestLinkAnchorsTemps(t *testing.T) {
	b := New()
	tmp := b.TempInt(5)
	to := b.NewNeuron()
	if !tmp.IsTemp() {
		t.Fatal("TempInt should be temporary")
	}
	if _, err := b.Link(tmp, to, Code); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if tmp.IsTemp() {
		t.Error("linked temp was not anchored")
	}
	if b.Temps().Contains(tmp) {
		t.Error("anchored neuron still in temp pool")
	}
}

func TestDeleteRemovesLinksAndMembership(t *testing.T) {
	b := New()
	child := b.NewInt(1)
	other := b.NewInt(2)
	parent := b.NewCluster(Code, child, other)
	src := b.NewNeuron()
	if _, err := b.Link(src, child, Code); err != nil {
		t.Fatal(err)
	}

	if err := b.Delete(child); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !child.IsDeleted() {
		t.Error("child not marked deleted")
	}
	if _, ok := b.Get(child.ID()); ok {
		t.Error("deleted neuron still reachable by ID")
	}
	c, _ := parent.Cluster()
	if got := c.Children(); len(got) != 1 || got[0] != other {
		t.Errorf("parent children = %v", got)
	}
	if len(src.LinksOut()) != 0 {
		t.Error("incoming link survived deletion")
	}
	if _, err := b.Link(src, child, Code); !errors.Is(err, ErrDeletedNeuron) {
		t.Errorf("Link to deleted: %v", err)
	}
}

func TestDeleteRefusesReferenced(t *testing.T) {
	b := New()
	n := b.NewNeuron()
	n.IncRef()
	if err := b.Delete(n); !errors.Is(err, ErrStillReferenced) {
		t.Fatalf("got %v, want ErrStillReferenced", err)
	}
	n.DecRef()
	if err := b.Delete(n); err != nil {
		t.Fatalf("Delete after DecRef: %v", err)
	}
	if err := b.Delete(n); !errors.Is(err, ErrUnknownNeuron) {
		t.Errorf("second Delete: %v", err)
	}
}

func TestProtectedNeuronSurvives(t *testing.T) {
	b := New()
	n := b.NewNeuron()
	b.Protect(n)
	if err := b.Delete(n); !errors.Is(err, ErrNotDeletable) {
		t.Errorf("got %v", err)
	}
}

func TestQuiesceWaitsForEnter(t *testing.T) {
	b := New()
	leave := b.Enter()

	done := make(chan struct{})
	go func() {
		release := b.Quiesce()
		release()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Quiesce returned while an execution was inside")
	default:
	}
	leave()
	leave() // idempotent
	<-done
}

func TestConcurrentNewNeurons(t *testing.T) {
	b := New()
	const workers, per = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				b.NewInt(int64(i))
			}
		}()
	}
	wg.Wait()
	if got := b.Count(); got != len(predefinedNames)+workers*per {
		t.Errorf("Count = %d", got)
	}
}

func TestStatsAndSnapshot(t *testing.T) {
	b := New()
	n := b.NewNeuron()
	n.IncRef()
	b.TempInt(1)
	s := b.Stats()
	if s.Neurons != len(predefinedNames)+1 || s.Temps != 1 {
		t.Errorf("Stats = %+v", s)
	}
	if snap := b.Snapshot(); snap[n.ID()] != 1 {
		t.Errorf("Snapshot[%d] = %d", n.ID(), snap[n.ID()])
	}
}
