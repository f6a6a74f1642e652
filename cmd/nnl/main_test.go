package main

import (
	"path/filepath"
	"testing"

	"github.com/chazu/nnl/config"
	"github.com/chazu/nnl/graph"
)

func newTestEngine(t *testing.T) *engine {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.GC.Disabled = true
	e, err := newEngine(cfg)
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	t.Cleanup(e.close)
	return e
}

func TestSampleCompileRun(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(e.cfg.Dir, "answer.nnm")
	if err := writeSample([]string{path}); err != nil {
		t.Fatalf("writeSample: %v", err)
	}
	if err := e.compile([]string{e.cfg.Dir}); err != nil {
		t.Fatalf("compile: %v", err)
	}
	entries, err := e.store.List()
	if err != nil || len(entries) != 1 || entries[0].Name != "answer" {
		t.Fatalf("List = %v, %v", entries, err)
	}

	if err := e.run([]string{"answer"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	mod, ok := e.modules.Get("answer")
	if !ok {
		t.Fatal("module not compiled by run")
	}
	if got := len(entryPoints(e.brain, mod)); got != 1 {
		t.Fatalf("entry points = %d, want 1", got)
	}
	if err := e.stats(); err != nil {
		t.Fatalf("stats: %v", err)
	}
}

func TestRetractMissing(t *testing.T) {
	e := newTestEngine(t)
	if err := e.retract([]string{"missing"}); err == nil {
		t.Fatal("expected error retracting a module that is not stored")
	}
}

func TestRetractStoredModule(t *testing.T) {
	e := newTestEngine(t)
	before := e.brain.Snapshot()
	path := filepath.Join(e.cfg.Dir, "answer.nnm")
	if err := writeSample([]string{path}); err != nil {
		t.Fatalf("writeSample: %v", err)
	}
	if err := e.compile([]string{path}); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := e.modules.Get("answer"); !ok {
		t.Fatal("module not registered after compile")
	}

	if err := e.retract([]string{"answer"}); err != nil {
		t.Fatalf("retract: %v", err)
	}
	if _, ok := e.modules.Get("answer"); ok {
		t.Error("module still registered after retract")
	}
	if entries, err := e.store.List(); err != nil || len(entries) != 0 {
		t.Errorf("store after retract = %v, %v", entries, err)
	}
	for id := range e.brain.Snapshot() {
		if _, ok := before[id]; !ok {
			t.Errorf("neuron %d left behind by retract", id)
		}
	}
}

func TestFormatValues(t *testing.T) {
	b := graph.New()
	got := formatValues([]*graph.Neuron{b.NewInt(1), b.NewText("x")})
	if got[0] != '[' || got[len(got)-1] != ']' {
		t.Fatalf("formatValues = %q", got)
	}
}
