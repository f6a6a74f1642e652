package vm

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/chazu/nnl/graph"
)

// recordingLogger captures log lines for assertions.
type recordingLogger struct {
	mu       sync.Mutex
	errors   []string
	warnings []string
}

func (r *recordingLogger) Errorf(format string, values ...any) {
	r.mu.Lock()
	r.errors = append(r.errors, fmt.Sprintf(format, values...))
	r.mu.Unlock()
}

func (r *recordingLogger) Warningf(format string, values ...any) {
	r.mu.Lock()
	r.warnings = append(r.warnings, fmt.Sprintf(format, values...))
	r.mu.Unlock()
}

func (r *recordingLogger) Infof(string, ...any)  {}
func (r *recordingLogger) Debugf(string, ...any) {}

func (r *recordingLogger) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func (r *recordingLogger) warningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

func (r *recordingLogger) hasError(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

type testEnv struct {
	brain   *graph.Brain
	factory *ProcessorFactory
	log     *recordingLogger
	proc    *Processor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithSettings(t, DefaultSettings())
}

func newTestEnvWithSettings(t *testing.T, s Settings) *testEnv {
	t.Helper()
	b := graph.New()
	f := NewProcessorFactory(b, nil, s)
	log := &recordingLogger{}
	f.SetLogger(log)
	env := &testEnv{brain: b, factory: f, log: log, proc: f.Get()}
	t.Cleanup(func() { f.Release(env.proc) })
	return env
}

func (e *testEnv) inst(t *testing.T, name string) Instruction {
	t.Helper()
	inst, ok := e.factory.Registry().Lookup(name)
	if !ok {
		t.Fatalf("instruction %s not registered", name)
	}
	return inst
}

// stmt builds a statement calling name with the given arguments.
func (e *testEnv) stmt(t *testing.T, name string, result bool, args ...*graph.Neuron) *graph.Neuron {
	t.Helper()
	n, ok := e.factory.Registry().Neuron(e.brain, name)
	if !ok {
		t.Fatalf("instruction %s not installed", name)
	}
	return e.brain.NewStatement(n, e.brain.NewCluster(graph.Arguments, args...), result)
}

func (e *testEnv) code(stmts ...*graph.Neuron) *graph.Neuron {
	return e.brain.NewCluster(graph.Code, stmts...)
}

func (e *testEnv) ints(vs ...int64) []*graph.Neuron {
	out := make([]*graph.Neuron, len(vs))
	for i, v := range vs {
		out[i] = e.brain.NewInt(v)
	}
	return out
}

func intsOf(t *testing.T, ns []*graph.Neuron) []int64 {
	t.Helper()
	out := make([]int64, len(ns))
	for i, n := range ns {
		v, ok := n.Int()
		if !ok {
			t.Fatalf("item %d is %s, not an int", i, n)
		}
		out[i] = v
	}
	return out
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// results runs a result instruction on a fresh list and returns it.
func (e *testEnv) results(t *testing.T, name string, args ...*graph.Neuron) []*graph.Neuron {
	t.Helper()
	p := e.proc
	p.PushArgs()
	defer p.PopArgs()
	if err := GetValues(p, e.inst(t, name), args); err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return append([]*graph.Neuron(nil), p.TopArgs()...)
}
