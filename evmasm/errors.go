package evmasm

import "errors"

var (
	// ErrCapacityExceeded means the 32-bit label id space of one assembly
	// is exhausted.
	ErrCapacityExceeded = errors.New("evmasm: tag id space exhausted")

	// ErrNegativeDeposit means an append would drive the tracked stack
	// height below zero. This is a code generator bug, not a user error.
	ErrNegativeDeposit = errors.New("evmasm: stack deposit would become negative")

	// ErrAssemblyInvalidated means serialization was requested on an
	// assembly that has been marked invalid.
	ErrAssemblyInvalidated = errors.New("evmasm: assembly marked invalid")

	// ErrInvalidLabelUsage means a label belonging to a different program
	// was used where only a local label is legal. Labels denote code
	// positions within exactly one program.
	ErrInvalidLabelUsage = errors.New("evmasm: foreign label used as local label")

	// ErrUnknownSubProgram means a sub-assembly id was decoded that was
	// never registered through EncodeSubPath.
	ErrUnknownSubProgram = errors.New("evmasm: unknown sub-assembly id")

	// ErrUnresolvedTag means serialization found a PushTag with no
	// matching Tag in the reachable programs.
	ErrUnresolvedTag = errors.New("evmasm: tag pushed but never placed")
)
