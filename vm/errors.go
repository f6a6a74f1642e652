package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrDivisionByZero is logged when an integer Divide or Modulus meets a
	// zero operand.
	ErrDivisionByZero = errors.New("vm: integer division by zero")
	// ErrSplitNotAllowed is returned by Split on processors obtained with
	// GetNoSplit.
	ErrSplitNotAllowed = errors.New("vm: processor does not allow splitting")
	// ErrUnknownInstruction is returned when a statement names an
	// instruction the registry does not hold.
	ErrUnknownInstruction = errors.New("vm: unknown instruction")
	// ErrNotExecutable is returned when Run meets a neuron it cannot execute.
	ErrNotExecutable = errors.New("vm: neuron is not executable")
)

// MisuseError reports a call that the instruction does not support, such
// as Execute on a result-only instruction. It signals a contract violation
// by the caller, not bad input data.
type MisuseError struct {
	Instruction string
	Op          string
}

func (e *MisuseError) Error() string {
	return fmt.Sprintf("vm: instruction %s does not support %s", e.Instruction, e.Op)
}

func misuse(inst Instruction, op string) error {
	return &MisuseError{Instruction: inst.Name(), Op: op}
}
