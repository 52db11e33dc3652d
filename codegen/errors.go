package codegen

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/solidity/evmasm"
)

var (
	// ErrUnsupportedStackShape is returned when a variable does not occupy
	// exactly one or two stack slots.
	ErrUnsupportedStackShape = errors.New("codegen: unsupported variable stack size")

	// ErrVariableNotFound is returned when a stack offset is requested for
	// a variable that is not in scope.
	ErrVariableNotFound = errors.New("codegen: variable not found on stack")

	// ErrStackHeightMismatch is returned when a low-level function body
	// leaves the stack at a height other than its declared return arity.
	ErrStackHeightMismatch = errors.New("codegen: stack height mismatch")
)

// StackTooDeepError is returned when an identifier accessed from inline
// assembly sits more than 16 slots below the stack top, beyond the reach of
// DUP and SWAP.
type StackTooDeepError struct {
	Identifier string
	Depth      int
	Location   evmasm.SourceLocation
	Fragment   string
}

func (e *StackTooDeepError) Error() string {
	return fmt.Sprintf("codegen: variable %q is %d slot(s) too deep inside the stack", e.Identifier, e.Depth-16)
}
