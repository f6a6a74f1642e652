package vm

import (
	"github.com/chazu/nnl/graph"
)

// ---------------------------------------------------------------------------
// Instruction interfaces
// ---------------------------------------------------------------------------

// Variadic is the ArgCount of instructions taking one or more arguments.
const Variadic = -1

// Instruction is the common surface of every instruction. ArgCount is the
// minimum number of arguments, or Variadic.
type Instruction interface {
	Name() string
	ArgCount() int
}

// Executor is an instruction without a direct result.
type Executor interface {
	Instruction
	Execute(p *Processor, args []*graph.Neuron)
}

// SingleResult is an instruction producing at most one value. A nil return
// means no result.
type SingleResult interface {
	Instruction
	GetValue(p *Processor, args []*graph.Neuron) *graph.Neuron
}

// MultiResult is an instruction producing zero or more values, appended to
// the processor's active result list with AddResult.
type MultiResult interface {
	Instruction
	GetValues(p *Processor, args []*graph.Neuron)
}

// ExecStatement lets an executor evaluate its own argument cluster. It
// returns false to fall back to generic argument evaluation.
type ExecStatement interface {
	ExecuteStatement(p *Processor, args *graph.Neuron) bool
}

// ExecResultStatement is the result-statement counterpart of
// ExecStatement. Results go to the active result list.
type ExecResultStatement interface {
	GetStatementValues(p *Processor, args *graph.Neuron) bool
}

// CalculateInt probes an int result without allocating a neuron.
type CalculateInt interface {
	CalculateInt(p *Processor, args []*graph.Neuron) (int64, bool)
}

// CalculateDouble probes a double result without allocating a neuron.
type CalculateDouble interface {
	CalculateDouble(p *Processor, args []*graph.Neuron) (float64, bool)
}

// CalculateBool probes a boolean result without allocating a neuron.
type CalculateBool interface {
	CalculateBool(p *Processor, args []*graph.Neuron) (bool, bool)
}

// VariableTarget marks instructions whose first argument is passed
// unevaluated; it must be the variable itself.
type VariableTarget interface {
	TargetsVariable()
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// Execute runs an executor. Calling it on a result-only instruction is a
// MisuseError.
func Execute(p *Processor, inst Instruction, args []*graph.Neuron) error {
	e, ok := inst.(Executor)
	if !ok {
		return misuse(inst, "Execute")
	}
	if !checkArgs(p, inst, args) {
		return nil
	}
	e.Execute(p, args)
	return nil
}

// GetValue runs a single-result instruction.
func GetValue(p *Processor, inst Instruction, args []*graph.Neuron) (*graph.Neuron, error) {
	s, ok := inst.(SingleResult)
	if !ok {
		return nil, misuse(inst, "GetValue")
	}
	if !checkArgs(p, inst, args) {
		return nil, nil
	}
	return s.GetValue(p, args), nil
}

// GetValues runs a result instruction, appending its values to the active
// result list. Single-result instructions contribute their one value.
func GetValues(p *Processor, inst Instruction, args []*graph.Neuron) error {
	switch r := inst.(type) {
	case MultiResult:
		if checkArgs(p, inst, args) {
			r.GetValues(p, args)
		}
		return nil
	case SingleResult:
		if checkArgs(p, inst, args) {
			if v := r.GetValue(p, args); v != nil {
				p.AddResult(v)
			}
		}
		return nil
	}
	return misuse(inst, "GetValues")
}

// checkArgs enforces ArgCount, logging a domain error on failure.
func checkArgs(p *Processor, inst Instruction, args []*graph.Neuron) bool {
	want := inst.ArgCount()
	if want == Variadic {
		want = 1
	}
	if len(args) < want {
		p.domainError(inst.Name(), "expected at least %d arguments, got %d", want, len(args))
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// base supplies Name and ArgCount.
type base struct {
	name     string
	argCount int
}

func (b base) Name() string  { return b.name }
func (b base) ArgCount() int { return b.argCount }

// variableTarget is embedded by instructions taking the variable itself as
// first argument.
type variableTarget struct{}

func (variableTarget) TargetsVariable() {}

// targetVariable validates that args[0] is a writable variable.
func targetVariable(p *Processor, inst Instruction, args []*graph.Neuron) (*graph.Neuron, bool) {
	v := args[0]
	vr, ok := v.Variable()
	if !ok {
		p.domainError(inst.Name(), "first argument must be a variable, got %s", v)
		return nil, false
	}
	if vr.Kind == graph.System {
		p.domainError(inst.Name(), "system variable %s is read-only", vr.Name)
		return nil, false
	}
	return v, true
}

// intArg reads args[i] as an int, logging when it is not one.
func intArg(p *Processor, inst Instruction, args []*graph.Neuron, i int) (int64, bool) {
	if i >= len(args) {
		p.domainError(inst.Name(), "missing argument %d", i)
		return 0, false
	}
	v, ok := args[i].Int()
	if !ok {
		p.domainError(inst.Name(), "argument %d must be an int, got %s", i, args[i])
		return 0, false
	}
	return v, true
}

// sameValue reports whether a and b are the same neuron or equal values.
func sameValue(a, b *graph.Neuron) bool {
	if a == b {
		return true
	}
	switch av := a.Payload().(type) {
	case *graph.IntValue:
		if bv, ok := b.Int(); ok {
			return av.Get() == bv
		}
	case *graph.DoubleValue:
		if bv, ok := b.Double(); ok {
			return av.Get() == bv
		}
	case *graph.TextValue:
		if bv, ok := b.Text(); ok {
			return av.Get() == bv
		}
	}
	return false
}
