package vm

import (
	"sync"
	"time"

	"github.com/chazu/nnl/graph"
)

// System variable names.
const (
	SysCurrentTime    = "CurrentTime"
	SysProcessorDepth = "ProcessorDepth"
	SysParamCount     = "ParamCount"
)

// slot stores one variable's value. Globals shared across a split hold the
// same slot, so access goes through mu.
type slot struct {
	mu    sync.Mutex
	items []*graph.Neuron
	set   bool
}

func (s *slot) load() ([]*graph.Neuron, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return nil, false
	}
	out := make([]*graph.Neuron, len(s.items))
	copy(out, s.items)
	return out, true
}

func (s *slot) store(items []*graph.Neuron) {
	s.mu.Lock()
	s.items = append(s.items[:0:0], items...)
	s.set = true
	s.mu.Unlock()
}

func (s *slot) clear() {
	s.mu.Lock()
	s.items = nil
	s.set = false
	s.mu.Unlock()
}

// update applies fn to the current value under the slot lock, initializing
// the value when needed.
func (s *slot) update(fn func([]*graph.Neuron) []*graph.Neuron) {
	s.mu.Lock()
	s.items = fn(s.items)
	s.set = true
	s.mu.Unlock()
}

func (s *slot) duplicate() *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &slot{items: append([]*graph.Neuron(nil), s.items...), set: s.set}
}

// ---------------------------------------------------------------------------
// Variable access
// ---------------------------------------------------------------------------

// slotFor finds the storage for v. With create set, a missing local or
// global gets an uninitialized slot.
func (p *Processor) slotFor(v *graph.Neuron, create bool) *slot {
	vr, ok := v.Variable()
	if !ok {
		return nil
	}
	var dict map[*graph.Neuron]*slot
	switch vr.Kind {
	case graph.Local:
		dict = p.values[len(p.values)-1]
	case graph.Global:
		dict = p.globals
	default:
		return nil
	}
	s, ok := dict[v]
	if !ok && create {
		s = &slot{}
		dict[v] = s
	}
	return s
}

// ExtractValue returns a copy of v's value. ok is false when v is
// uninitialized or is not a variable.
func (p *Processor) ExtractValue(v *graph.Neuron) (values []*graph.Neuron, ok bool) {
	vr, isVar := v.Variable()
	if !isVar {
		return nil, false
	}
	if vr.Kind == graph.System {
		return p.systemValue(vr.Name)
	}
	s := p.slotFor(v, false)
	if s == nil {
		return nil, false
	}
	return s.load()
}

// IsInitialized reports whether v currently has a value, even an empty one.
func (p *Processor) IsInitialized(v *graph.Neuron) bool {
	_, ok := p.ExtractValue(v)
	return ok
}

// StoreValue replaces v's value. Storing into a global anchors temporary
// values, since globals outlive the evaluation that produced them.
// It returns false when v cannot be written.
func (p *Processor) StoreValue(v *graph.Neuron, values []*graph.Neuron) bool {
	s := p.slotFor(v, true)
	if s == nil {
		return false
	}
	p.anchorGlobal(v, values)
	s.store(values)
	return true
}

// UpdateValue applies fn to v's value in place.
func (p *Processor) UpdateValue(v *graph.Neuron, fn func([]*graph.Neuron) []*graph.Neuron) bool {
	s := p.slotFor(v, true)
	if s == nil {
		return false
	}
	s.update(func(items []*graph.Neuron) []*graph.Neuron {
		next := fn(items)
		p.anchorGlobal(v, next)
		return next
	})
	return true
}

// ClearValue makes v uninitialized.
func (p *Processor) ClearValue(v *graph.Neuron) {
	if s := p.slotFor(v, false); s != nil {
		s.clear()
	}
}

func (p *Processor) anchorGlobal(v *graph.Neuron, values []*graph.Neuron) {
	if vr, _ := v.Variable(); vr == nil || vr.Kind != graph.Global {
		return
	}
	for _, n := range values {
		if n.IsTemp() {
			p.brain.Add(n)
		}
	}
}

// PrepareLocal shadows the local v for the current frame: its value is
// saved in the frame's LocalsBuffer and v becomes uninitialized. Only the
// first call per frame saves, so ExitFrame restores the value the local had
// when the frame was entered.
func (p *Processor) PrepareLocal(v *graph.Neuron) bool {
	vr, ok := v.Variable()
	if !ok || vr.Kind != graph.Local {
		return false
	}
	f := p.CurrentFrame()
	dict := p.values[len(p.values)-1]
	if f != nil {
		if f.LocalsBuffer == nil {
			f.LocalsBuffer = make(map[*graph.Neuron]SavedValue)
		}
		if _, saved := f.LocalsBuffer[v]; !saved {
			var prev SavedValue
			if s, ok := dict[v]; ok {
				prev.Items, prev.Present = s.load()
			}
			f.LocalsBuffer[v] = prev
		}
	}
	delete(dict, v)
	return true
}

func (p *Processor) systemValue(name string) ([]*graph.Neuron, bool) {
	switch name {
	case SysCurrentTime:
		return []*graph.Neuron{p.TempTime(time.Now())}, true
	case SysProcessorDepth:
		return []*graph.Neuron{p.TempInt(int64(p.depth))}, true
	case SysParamCount:
		return []*graph.Neuron{p.TempInt(int64(len(p.Params())))}, true
	}
	p.log.Warningf("[%s] unknown system variable %q", p.id.String()[:8], name)
	return nil, false
}
