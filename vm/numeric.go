package vm

import (
	"math"
	"time"

	"github.com/chazu/nnl/graph"
)

// ---------------------------------------------------------------------------
// Numeric dispatch
// ---------------------------------------------------------------------------

// numericOp describes one arithmetic instruction. The first operand picks
// the pipeline; the remaining operands are folded left to right and coerced
// to that pipeline's type.
type numericOp struct {
	name    string
	ints    func(acc, v int64) (int64, error)
	doubles func(acc, v float64) float64

	// timeSign is +1 or -1 for operators that accept time clusters.
	timeSign int

	// reduce replaces the fold and always yields a double.
	reduce func(vals []float64) float64
}

var numericOps = []*numericOp{
	{
		name:     "Addition",
		ints:     func(a, v int64) (int64, error) { return a + v, nil },
		doubles:  func(a, v float64) float64 { return a + v },
		timeSign: 1,
	},
	{
		name:     "Minus",
		ints:     func(a, v int64) (int64, error) { return a - v, nil },
		doubles:  func(a, v float64) float64 { return a - v },
		timeSign: -1,
	},
	{
		name:    "Multiply",
		ints:    func(a, v int64) (int64, error) { return a * v, nil },
		doubles: func(a, v float64) float64 { return a * v },
	},
	{
		name: "Divide",
		ints: func(a, v int64) (int64, error) {
			if v == 0 {
				return 0, ErrDivisionByZero
			}
			return a / v, nil
		},
		doubles: func(a, v float64) float64 { return a / v },
	},
	{
		name: "Modulus",
		ints: func(a, v int64) (int64, error) {
			if v == 0 {
				return 0, ErrDivisionByZero
			}
			return a % v, nil
		},
		doubles: math.Mod,
	},
	{
		name: "Min",
		ints: func(a, v int64) (int64, error) {
			if v < a {
				return v, nil
			}
			return a, nil
		},
		doubles: math.Min,
	},
	{
		name:   "StDev",
		reduce: populationStDev,
	},
}

func populationStDev(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)))
}

type pipeline uint8

const (
	pipeInt pipeline = iota
	pipeDouble
	pipeTime
	pipeSpan
)

type numericResult struct {
	pipe pipeline
	i    int64
	d    float64
	t    time.Time
	span time.Duration
}

// evaluate runs op over args. Failures are logged and reported as !ok.
func (op *numericOp) evaluate(p *Processor, args []*graph.Neuron) (numericResult, bool) {
	if len(args) == 0 {
		p.domainError(op.name, "no operands")
		return numericResult{}, false
	}
	if op.reduce != nil {
		return op.evaluateReduce(p, args)
	}

	first := args[0]
	switch first.Payload().(type) {
	case *graph.IntValue:
		acc, _ := first.Int()
		for _, n := range args[1:] {
			v, ok := op.intOperand(p, n)
			if !ok {
				return numericResult{}, false
			}
			next, err := op.ints(acc, v)
			if err != nil {
				p.domainError(op.name, "%v", err)
				return numericResult{}, false
			}
			acc = next
		}
		return numericResult{pipe: pipeInt, i: acc}, true

	case *graph.DoubleValue:
		acc, _ := first.Double()
		for _, n := range args[1:] {
			v, ok := op.doubleOperand(p, n)
			if !ok {
				return numericResult{}, false
			}
			acc = op.doubles(acc, v)
		}
		return numericResult{pipe: pipeDouble, d: acc}, true

	case *graph.Cluster:
		if op.timeSign != 0 {
			if graph.IsTimeCluster(first) {
				return op.evaluateTime(p, first, args[1:])
			}
			if graph.IsTimeSpanCluster(first) {
				return op.evaluateSpan(p, first, args[1:])
			}
		}
	}
	p.domainError(op.name, "unsupported operand %s", first)
	return numericResult{}, false
}

func (op *numericOp) intOperand(p *Processor, n *graph.Neuron) (int64, bool) {
	switch v := n.Payload().(type) {
	case *graph.IntValue:
		return v.Get(), true
	case *graph.DoubleValue:
		return int64(v.Get()), true
	}
	p.domainError(op.name, "unsupported operand %s", n)
	return 0, false
}

func (op *numericOp) doubleOperand(p *Processor, n *graph.Neuron) (float64, bool) {
	switch v := n.Payload().(type) {
	case *graph.IntValue:
		return float64(v.Get()), true
	case *graph.DoubleValue:
		return v.Get(), true
	}
	p.domainError(op.name, "unsupported operand %s", n)
	return 0, false
}

func (op *numericOp) spanOperand(p *Processor, n *graph.Neuron) (time.Duration, bool) {
	d, ok := graph.ClusterSpan(n)
	if !ok {
		p.domainError(op.name, "expected a time span, got %s", n)
	}
	return d, ok
}

// evaluateTime treats the first operand as an absolute time and the rest
// as durations.
func (op *numericOp) evaluateTime(p *Processor, first *graph.Neuron, rest []*graph.Neuron) (numericResult, bool) {
	t, ok := graph.ClusterTime(first)
	if !ok {
		p.domainError(op.name, "malformed time cluster %s", first)
		return numericResult{}, false
	}
	for _, n := range rest {
		d, ok := op.spanOperand(p, n)
		if !ok {
			return numericResult{}, false
		}
		t = t.Add(time.Duration(op.timeSign) * d)
	}
	return numericResult{pipe: pipeTime, t: t}, true
}

// evaluateSpan treats every operand as a duration.
func (op *numericOp) evaluateSpan(p *Processor, first *graph.Neuron, rest []*graph.Neuron) (numericResult, bool) {
	acc, ok := op.spanOperand(p, first)
	if !ok {
		return numericResult{}, false
	}
	for _, n := range rest {
		d, ok := op.spanOperand(p, n)
		if !ok {
			return numericResult{}, false
		}
		acc += time.Duration(op.timeSign) * d
	}
	return numericResult{pipe: pipeSpan, span: acc}, true
}

func (op *numericOp) evaluateReduce(p *Processor, args []*graph.Neuron) (numericResult, bool) {
	vals := make([]float64, len(args))
	for i, n := range args {
		v, ok := op.doubleOperand(p, n)
		if !ok {
			return numericResult{}, false
		}
		vals[i] = v
	}
	return numericResult{pipe: pipeDouble, d: op.reduce(vals)}, true
}

// ---------------------------------------------------------------------------
// numericInstruction
// ---------------------------------------------------------------------------

// numericInstruction adapts a numericOp to the instruction interfaces.
type numericInstruction struct {
	base
	op *numericOp
}

func (n *numericInstruction) GetValue(p *Processor, args []*graph.Neuron) *graph.Neuron {
	r, ok := n.op.evaluate(p, args)
	if !ok {
		return nil
	}
	switch r.pipe {
	case pipeInt:
		return p.TempInt(r.i)
	case pipeDouble:
		return p.TempDouble(r.d)
	case pipeTime:
		return p.TempTime(r.t)
	default:
		return p.TempSpan(r.span)
	}
}

func (n *numericInstruction) CalculateInt(p *Processor, args []*graph.Neuron) (int64, bool) {
	r, ok := n.op.evaluate(p, args)
	if !ok {
		return 0, false
	}
	switch r.pipe {
	case pipeInt:
		return r.i, true
	case pipeDouble:
		return int64(r.d), true
	}
	return 0, false
}

func (n *numericInstruction) CalculateDouble(p *Processor, args []*graph.Neuron) (float64, bool) {
	r, ok := n.op.evaluate(p, args)
	if !ok {
		return 0, false
	}
	switch r.pipe {
	case pipeInt:
		return float64(r.i), true
	case pipeDouble:
		return r.d, true
	}
	return 0, false
}
