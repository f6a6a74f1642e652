package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/nnl/graph"
)

// ---------------------------------------------------------------------------
// Statement evaluation
// ---------------------------------------------------------------------------

// enter opens an execution scope. The outermost scope of a processor that
// was not spawned by a running parent holds the Brain's execution gate, so
// module retraction waits for it.
func (p *Processor) enter() func() {
	p.running++
	if p.running == 1 && !p.inherited && p.leave == nil {
		p.leave = p.brain.Enter()
	}
	return func() {
		p.running--
		if p.running == 0 && p.leave != nil {
			p.leave()
			p.leave = nil
		}
	}
}

// Run executes the statements of a code cluster in a new frame. Domain
// errors are logged and execution continues; the returned error joins
// misuse and dispatch failures.
func (p *Processor) Run(code *graph.Neuron) error {
	defer p.enter()()
	if p.CallDepth() == 0 && p.running == 1 {
		p.returns[0] = &returnState{}
	}
	return p.run(code)
}

// Call runs code as a call with the given parameters and returns the
// values passed to ReturnValue.
func (p *Processor) Call(code *graph.Neuron, params []*graph.Neuron) ([]*graph.Neuron, error) {
	defer p.enter()()
	p.EnterCall(params)
	err := p.run(code)
	return p.ExitCall(), err
}

// Values evaluates one argument neuron on a fresh result list and returns
// its values.
func (p *Processor) Values(n *graph.Neuron) ([]*graph.Neuron, error) {
	defer p.enter()()
	p.PushArgs()
	defer p.PopArgs()
	err := p.Evaluate(n)
	return append([]*graph.Neuron(nil), p.TopArgs()...), err
}

func (p *Processor) run(code *graph.Neuron) error {
	c, ok := code.Cluster()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotExecutable, code)
	}
	p.EnterFrame(code)
	defer p.ExitFrame()

	var errs []error
	for _, n := range c.Children() {
		if err := p.exec(n); err != nil {
			errs = append(errs, err)
		}
		if p.returned() {
			break
		}
	}
	return errors.Join(errs...)
}

func (p *Processor) exec(n *graph.Neuron) error {
	switch pl := n.Payload().(type) {
	case *graph.Statement:
		return p.execStatement(pl)
	case *graph.LockExpression:
		return p.execLock(pl)
	case *graph.Cluster:
		if pl.Meaning() == graph.Code {
			return p.run(n)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotExecutable, n)
}

func (p *Processor) execStatement(st *graph.Statement) error {
	inst, err := p.registry.Resolve(st.Instruction)
	if err != nil {
		return err
	}
	if st.Result {
		p.PushArgs()
		defer p.PopArgs()
		return p.resultValues(inst, st)
	}
	if fast, ok := inst.(ExecStatement); ok && fast.ExecuteStatement(p, st.Arguments) {
		return nil
	}
	return Execute(p, inst, p.evaluateArgs(inst, st.Arguments))
}

// resultValues appends the values of a result statement to the active
// result list.
func (p *Processor) resultValues(inst Instruction, st *graph.Statement) error {
	if fast, ok := inst.(ExecResultStatement); ok && fast.GetStatementValues(p, st.Arguments) {
		return nil
	}
	return GetValues(p, inst, p.evaluateArgs(inst, st.Arguments))
}

// evaluateArgs evaluates every child of an argument cluster on its own
// result list. The first child of a VariableTarget stays unevaluated.
func (p *Processor) evaluateArgs(inst Instruction, args *graph.Neuron) []*graph.Neuron {
	if args == nil {
		return nil
	}
	c, ok := args.Cluster()
	if !ok {
		return p.evaluateOne(args)
	}
	_, target := inst.(VariableTarget)

	p.PushArgs()
	defer p.PopArgs()
	for i, ch := range c.Children() {
		if i == 0 && target {
			p.AddResult(ch)
			continue
		}
		if err := p.Evaluate(ch); err != nil {
			p.domainError(inst.Name(), "argument %d: %v", i, err)
		}
	}
	return append([]*graph.Neuron(nil), p.TopArgs()...)
}

// evaluateOne evaluates n on its own result list.
func (p *Processor) evaluateOne(n *graph.Neuron) []*graph.Neuron {
	p.PushArgs()
	defer p.PopArgs()
	if err := p.Evaluate(n); err != nil {
		p.log.Errorf("[%s] evaluating %s: %v", p.id.String()[:8], n, err)
	}
	return append([]*graph.Neuron(nil), p.TopArgs()...)
}

// Evaluate appends the values of one argument neuron to the active result
// list: a result statement yields its results, a variable its value and
// any other neuron itself.
func (p *Processor) Evaluate(n *graph.Neuron) error {
	switch pl := n.Payload().(type) {
	case *graph.Statement:
		if !pl.Result {
			return p.execStatement(pl)
		}
		inst, err := p.registry.Resolve(pl.Instruction)
		if err != nil {
			return err
		}
		return p.resultValues(inst, pl)
	case *graph.Variable:
		if values, ok := p.ExtractValue(n); ok {
			p.AddResult(values...)
		}
		return nil
	}
	p.AddResult(n)
	return nil
}

// execLock runs the lock's code while holding the exclusive locks of the
// evaluated neurons.
func (p *Processor) execLock(lock *graph.LockExpression) error {
	var targets []*graph.Neuron
	if lock.Neurons != nil {
		c, ok := lock.Neurons.Cluster()
		if !ok {
			return fmt.Errorf("%w: lock targets %s", ErrNotExecutable, lock.Neurons)
		}
		for _, ch := range c.Children() {
			targets = append(targets, p.evaluateOne(ch)...)
		}
	}
	release := graph.LockAll(targets...)
	defer release()
	if lock.Code == nil {
		return nil
	}
	return p.run(lock.Code)
}
