package vm

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/nnl/graph"
)

// ---------------------------------------------------------------------------
// Processor: one logical thread of graph execution
// ---------------------------------------------------------------------------

// Processor holds the scratch state of one execution over a Brain: the
// argument stack, one variable dictionary and one parameter list per call,
// the frame stack and the globals. A Processor is used by one goroutine at
// a time; use Split for parallel continuations.
type Processor struct {
	id       uuid.UUID
	brain    *graph.Brain
	factory  *ProcessorFactory
	registry *Registry
	settings Settings
	log      graph.Logger

	args    []*[]*graph.Neuron // pooled, see graph.GetList
	values  []map[*graph.Neuron]*slot
	params  [][]*graph.Neuron
	returns []*returnState
	frames  []*Frame
	globals map[*graph.Neuron]*slot

	splitAllowed bool
	parent       *Processor
	depth        int

	// temps is shared along a split tree and released with its root.
	temps *tempList

	// running counts nested Run/Call invocations; leave ends the Brain
	// execution scope taken by the outermost one.
	running   int
	inherited bool
	leave     func()
}

// Frame is one entry of the frame stack. LocalsBuffer records the values
// locals had before PrepareLocal shadowed them in this frame.
type Frame struct {
	Code         *graph.Neuron
	LocalsBuffer map[*graph.Neuron]SavedValue
}

// SavedValue is a shadowed variable value. Present is false when the
// variable was uninitialized.
type SavedValue struct {
	Items   []*graph.Neuron
	Present bool
}

type returnState struct {
	values   []*graph.Neuron
	returned bool
}

type tempList struct {
	mu    sync.Mutex
	items []*graph.Neuron
}

func (t *tempList) add(n *graph.Neuron) {
	t.mu.Lock()
	t.items = append(t.items, n)
	t.mu.Unlock()
}

func (t *tempList) take() []*graph.Neuron {
	t.mu.Lock()
	defer t.mu.Unlock()
	items := t.items
	t.items = nil
	return items
}

func newProcessor(f *ProcessorFactory, splitAllowed bool) *Processor {
	p := &Processor{
		factory:  f,
		brain:    f.brain,
		registry: f.registry,
		settings: f.settings,
		log:      f.log,
	}
	p.reset()
	p.splitAllowed = splitAllowed
	return p
}

// reset returns the processor to its freshly created state.
func (p *Processor) reset() {
	p.id = uuid.New()
	p.releaseArgs(0)
	p.values = []map[*graph.Neuron]*slot{make(map[*graph.Neuron]*slot)}
	p.params = [][]*graph.Neuron{nil}
	p.returns = []*returnState{{}}
	p.frames = p.frames[:0]
	p.globals = make(map[*graph.Neuron]*slot)
	p.parent = nil
	p.depth = 0
	p.temps = &tempList{}
	p.running = 0
	p.inherited = false
	p.leave = nil
}

// ID returns the processor's identifier, used in log lines.
func (p *Processor) ID() uuid.UUID { return p.id }

// Brain returns the graph the processor runs over.
func (p *Processor) Brain() *graph.Brain { return p.brain }

// Registry returns the instruction registry.
func (p *Processor) Registry() *Registry { return p.registry }

// Settings returns the processor's settings.
func (p *Processor) Settings() Settings { return p.settings }

// Logger returns the processor's logger.
func (p *Processor) Logger() graph.Logger { return p.log }

// Parent returns the processor this one was split from, or nil.
func (p *Processor) Parent() *Processor { return p.parent }

// Depth is 0 for a root processor and grows by one per split.
func (p *Processor) Depth() int { return p.depth }

// SplitAllowed reports whether Split may be called.
func (p *Processor) SplitAllowed() bool { return p.splitAllowed }

// domainError logs a non-fatal instruction error.
func (p *Processor) domainError(inst string, format string, values ...any) {
	p.log.Errorf("[%s] %s: "+format, append([]any{p.id.String()[:8], inst}, values...)...)
}

func (p *Processor) domainWarning(inst string, format string, values ...any) {
	p.log.Warningf("[%s] %s: "+format, append([]any{p.id.String()[:8], inst}, values...)...)
}

// ---------------------------------------------------------------------------
// Argument stack
// ---------------------------------------------------------------------------

// PushArgs opens an empty result list, taken from the scratch list pool,
// on top of the argument stack.
func (p *Processor) PushArgs() {
	l := graph.GetList()
	if cap(*l) < p.settings.StackReserve {
		*l = make([]*graph.Neuron, 0, p.settings.StackReserve)
	}
	p.args = append(p.args, l)
}

// PopArgs removes the top list and hands it back to the pool. Callers copy
// out what they need from TopArgs first.
func (p *Processor) PopArgs() {
	if len(p.args) > 0 {
		p.releaseArgs(len(p.args) - 1)
	}
}

// releaseArgs pools every list from depth upwards and truncates the stack.
func (p *Processor) releaseArgs(depth int) {
	for i := depth; i < len(p.args); i++ {
		graph.PutList(p.args[i])
		p.args[i] = nil
	}
	p.args = p.args[:depth]
}

// TopArgs returns the active result list, or nil when the stack is empty.
// The list is only valid until the matching PopArgs.
func (p *Processor) TopArgs() []*graph.Neuron {
	if len(p.args) == 0 {
		return nil
	}
	return *p.args[len(p.args)-1]
}

// ArgDepth returns the argument stack depth.
func (p *Processor) ArgDepth() int { return len(p.args) }

// AddResult appends to the active result list. With an empty stack the
// values are dropped.
func (p *Processor) AddResult(ns ...*graph.Neuron) {
	n := len(p.args)
	if n == 0 {
		return
	}
	*p.args[n-1] = append(*p.args[n-1], ns...)
}

// ---------------------------------------------------------------------------
// Calls and frames
// ---------------------------------------------------------------------------

// EnterCall opens a new call scope: a fresh local dictionary, params as its
// parameter list and an empty return list.
func (p *Processor) EnterCall(params []*graph.Neuron) {
	p.values = append(p.values, make(map[*graph.Neuron]*slot))
	p.params = append(p.params, params)
	p.returns = append(p.returns, &returnState{})
}

// ExitCall closes the current call scope and returns the values given to
// ReturnValue. The root scope is never removed.
func (p *Processor) ExitCall() []*graph.Neuron {
	if len(p.values) <= 1 {
		return nil
	}
	n := len(p.returns)
	ret := p.returns[n-1]
	p.returns = p.returns[:n-1]
	p.values = p.values[:len(p.values)-1]
	p.params = p.params[:len(p.params)-1]
	return ret.values
}

// CallDepth returns the number of open calls above the root scope.
func (p *Processor) CallDepth() int { return len(p.values) - 1 }

// Params returns the current call's parameters.
func (p *Processor) Params() []*graph.Neuron {
	return p.params[len(p.params)-1]
}

// Return records values as the current call's result and stops the
// running code.
func (p *Processor) Return(values ...*graph.Neuron) {
	r := p.returns[len(p.returns)-1]
	r.values = append(r.values, values...)
	r.returned = true
}

func (p *Processor) returned() bool {
	return p.returns[len(p.returns)-1].returned
}

// EnterFrame pushes a frame for code.
func (p *Processor) EnterFrame(code *graph.Neuron) *Frame {
	f := &Frame{Code: code}
	p.frames = append(p.frames, f)
	return f
}

// ExitFrame pops the top frame, restoring every local it shadowed.
func (p *Processor) ExitFrame() {
	n := len(p.frames)
	if n == 0 {
		return
	}
	f := p.frames[n-1]
	p.frames[n-1] = nil
	p.frames = p.frames[:n-1]

	dict := p.values[len(p.values)-1]
	for v, saved := range f.LocalsBuffer {
		if saved.Present {
			dict[v] = &slot{items: saved.Items, set: true}
		} else {
			delete(dict, v)
		}
	}
}

// FrameDepth returns the frame stack depth.
func (p *Processor) FrameDepth() int { return len(p.frames) }

// CurrentFrame returns the top frame, or nil.
func (p *Processor) CurrentFrame() *Frame {
	if len(p.frames) == 0 {
		return nil
	}
	return p.frames[len(p.frames)-1]
}

// ---------------------------------------------------------------------------
// Temporaries
// ---------------------------------------------------------------------------

func (p *Processor) track(n *graph.Neuron) *graph.Neuron {
	p.temps.add(n)
	return n
}

// TempInt creates a temporary int owned by this processor's evaluation.
func (p *Processor) TempInt(v int64) *graph.Neuron { return p.track(p.brain.TempInt(v)) }

// TempDouble creates a temporary double.
func (p *Processor) TempDouble(v float64) *graph.Neuron { return p.track(p.brain.TempDouble(v)) }

// TempText creates a temporary text.
func (p *Processor) TempText(s string) *graph.Neuron { return p.track(p.brain.TempText(s)) }

// TempCluster creates a temporary cluster.
func (p *Processor) TempCluster(meaning graph.ID, children ...*graph.Neuron) *graph.Neuron {
	return p.track(p.brain.TempCluster(meaning, children...))
}

// TempTime creates a temporary Time cluster.
func (p *Processor) TempTime(t time.Time) *graph.Neuron {
	return p.trackCluster(p.brain.TempTime(t))
}

// TempSpan creates a temporary TimeSpan cluster.
func (p *Processor) TempSpan(d time.Duration) *graph.Neuron {
	return p.trackCluster(p.brain.TempSpan(d))
}

func (p *Processor) trackCluster(n *graph.Neuron) *graph.Neuron {
	if c, ok := n.Cluster(); ok {
		for _, ch := range c.Children() {
			p.track(ch)
		}
	}
	return p.track(n)
}

// releaseTemps hands every temp created along this split tree back to the
// Brain's pool. Anchored ones are ignored by the pool.
func (p *Processor) releaseTemps() {
	if items := p.temps.take(); len(items) > 0 {
		p.brain.Temps().Release(items...)
	}
}
