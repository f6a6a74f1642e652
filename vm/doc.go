// Package vm executes code stored in a neuron graph.
//
// This package contains:
//   - Processor with its argument, variable, parameter and frame stacks
//   - Split and SplitGroup for policy-driven parallel continuations
//   - ProcessorFactory, a pool of reusable processors
//   - The instruction interfaces, dispatch helpers and registry
//   - The builtin arithmetic, variable and list instructions
//   - The statement evaluator (Run, Call, Evaluate, lock expressions)
package vm
