package graph

import (
	"testing"
	"time"
)

func TestTempPoolReleaseAndSweep(t *testing.T) {
	b := New()
	keep := b.TempInt(1)
	drop := b.TempInt(2)
	anchored := b.TempInt(3)
	b.Add(anchored)

	pool := b.Temps()
	pool.Release(drop, anchored)
	if got := pool.ReleasedCount(); got != 1 {
		t.Fatalf("ReleasedCount = %d, want 1", got)
	}
	if swept := pool.Sweep(); swept != 1 {
		t.Errorf("Sweep = %d, want 1", swept)
	}
	if !drop.IsDeleted() || keep.IsDeleted() || anchored.IsDeleted() {
		t.Error("sweep hit the wrong neurons")
	}
	if pool.Count() != 1 || !pool.Contains(keep) {
		t.Errorf("pool holds %d", pool.Count())
	}
	if pool.Created() != 3 || pool.Anchored() != 1 {
		t.Errorf("created=%d anchored=%d", pool.Created(), pool.Anchored())
	}
}

func TestTempGCSweepNow(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.Temps().Release(b.TempInt(int64(i)))
	}
	b.TempInt(99)

	gc := NewTempGC(b, 0)
	if gc.Last() != nil {
		t.Error("Last before any sweep")
	}
	stats := gc.SweepNow()
	if stats.Swept != 5 || stats.Remaining != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if gc.Sweeps() != 1 || gc.Last() != stats {
		t.Error("sweep bookkeeping not updated")
	}
}

func TestTempGCStartStop(t *testing.T) {
	b := New()
	gc := NewTempGC(b, 5*time.Millisecond)
	gc.Stop() // never started

	b.Temps().Release(b.TempInt(1))
	gc.Start()
	gc.Start()

	deadline := time.Now().Add(2 * time.Second)
	for gc.Sweeps() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	gc.Stop()
	if gc.Sweeps() == 0 {
		t.Fatal("background sweep never ran")
	}
	if b.Temps().Count() != 0 {
		t.Errorf("pool still holds %d", b.Temps().Count())
	}
}

func TestTempGCDefersWhileExecuting(t *testing.T) {
	b := New()
	released := b.TempInt(1)
	b.Temps().Release(released)

	leave := b.Enter()
	gc := NewTempGC(b, time.Millisecond)
	gc.Start()
	deadline := time.Now().Add(2 * time.Second)
	for gc.Deferred() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if gc.Deferred() == 0 {
		gc.Stop()
		leave()
		t.Fatal("sweep was not deferred while code was running")
	}
	if gc.Sweeps() != 0 || released.IsDeleted() {
		t.Error("swept while code was running")
	}

	leave()
	for gc.Sweeps() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	gc.Stop()
	if !released.IsDeleted() {
		t.Error("released temp not swept once execution left")
	}
}

func TestPooledLists(t *testing.T) {
	b := New()
	l := GetList()
	if len(*l) != 0 {
		t.Fatalf("fresh list has %d items", len(*l))
	}
	*l = append(*l, b.NewNeuron())
	PutList(l)
	PutList(nil)
	l2 := GetList()
	if len(*l2) != 0 {
		t.Errorf("recycled list has %d items", len(*l2))
	}
	PutList(l2)
}
