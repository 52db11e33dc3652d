package evmasm

// Semantic classification of assembly items. These predicates are the single
// source of truth optimizer passes consult before reordering, deleting or
// deduplicating instructions; a pass that does not honor them exactly, named
// carve-outs included, is unsound.

// Effect classifies an instruction's interaction with one state domain.
type Effect int

const (
	EffectNone Effect = iota
	EffectRead
	EffectWrite
)

// BreaksCSEAnalysisBlock reports whether item ends the window within which
// common-subexpression analysis may rewrite freely. msizeImportant must be
// set when a memory-size query can appear later in the analyzed window.
func BreaksCSEAnalysisBlock(item AssemblyItem, msizeImportant bool) bool {
	switch it := item.(type) {
	case *Push, *PushTag, *PushSub, *PushSubSize, *PushProgramSize, *PushData,
		*PushLibraryAddress, *PushImmutable:
		return false
	case *Operation:
		op := it.Op
		// CALLER anchors rewritten call sequences and must keep its
		// absolute position.
		if op == CALLER {
			return true
		}
		if IsSwapInstruction(op) || IsDupInstruction(op) {
			return false
		}
		if op == GAS || op == PC {
			return true // GAS and PC assume a specific order of opcodes
		}
		if op == MSIZE {
			return true // msize is modified already by memory access
		}
		// Storage and single-slot memory stores commute safely within
		// the window; batched store rewriting depends on this.
		if op == SSTORE || op == MSTORE {
			return false
		}
		if !msizeImportant && (op == MLOAD || op == KECCAK256) {
			return false
		}
		info, ok := Info(op)
		if !ok {
			return true
		}
		return info.SideEffects || info.Args > 2
	default:
		// Tag, UndefinedItem, AssignImmutable.
		return true
	}
}

// IsCommutativeOperation reports whether item is an instruction whose two
// operands may be exchanged.
func IsCommutativeOperation(item AssemblyItem) bool {
	op, ok := item.(*Operation)
	if !ok {
		return false
	}
	switch op.Op {
	case ADD, MUL, EQ, AND, OR, XOR:
		return true
	default:
		return false
	}
}

// IsDupItem reports whether item is a DUP operation.
func IsDupItem(item AssemblyItem) bool {
	op, ok := item.(*Operation)
	return ok && IsDupInstruction(op.Op)
}

// IsSwapItem reports whether item is a SWAP operation.
func IsSwapItem(item AssemblyItem) bool {
	op, ok := item.(*Operation)
	return ok && IsSwapInstruction(op.Op)
}

// IsJumpItem reports whether item is a JUMP or JUMPI operation.
func IsJumpItem(item AssemblyItem) bool {
	op, ok := item.(*Operation)
	return ok && (op.Op == JUMP || op.Op == JUMPI)
}

// AltersControlFlow reports whether control does not plainly continue with
// the next item. CALL, CALLCODE and CREATE do not alter control flow:
// execution continues on the following instruction.
func AltersControlFlow(item AssemblyItem) bool {
	op, ok := item.(*Operation)
	if !ok {
		return false
	}
	switch op.Op {
	case JUMP, JUMPI, RETURN, SELFDESTRUCT, STOP, INVALID, REVERT:
		return true
	default:
		return false
	}
}

// TerminatesControlFlow reports whether execution never continues past op.
// Used to prune unreachable code after a terminal instruction.
func TerminatesControlFlow(op Instruction) bool {
	switch op {
	case RETURN, SELFDESTRUCT, STOP, INVALID, REVERT:
		return true
	default:
		return false
	}
}

// Reverts reports whether op rolls back the state changes of the current
// call.
func Reverts(op Instruction) bool {
	switch op {
	case INVALID, REVERT:
		return true
	default:
		return false
	}
}

// IsDeterministic reports whether item yields the same result independent of
// the execution context. Environment calls, gas and program-counter queries,
// memory-size, balance, external-code and return-data queries all depend on
// state unknown at compile time.
func IsDeterministic(item AssemblyItem) bool {
	op, ok := item.(*Operation)
	if !ok {
		return true
	}
	switch op.Op {
	case CALL, CALLCODE, DELEGATECALL, STATICCALL, CREATE, CREATE2,
		GAS, PC,
		MSIZE, // depends on previous writes and reads, not only on content
		BALANCE, SELFBALANCE,
		EXTCODESIZE, EXTCODEHASH,
		RETURNDATACOPY, RETURNDATASIZE:
		return false
	default:
		return true
	}
}

// Movable reports whether op's position relative to all other instructions
// may change without altering behavior.
func Movable(op Instruction) bool {
	// DUP and SWAP are not really functional.
	if IsDupInstruction(op) || IsSwapInstruction(op) {
		return false
	}
	info, ok := Info(op)
	if !ok || info.SideEffects {
		return false
	}
	switch op {
	case KECCAK256, BALANCE, SELFBALANCE, EXTCODESIZE, EXTCODEHASH,
		RETURNDATASIZE, SLOAD, PC, MSIZE, GAS:
		return false
	default:
		return true
	}
}

// MovableApartFromEffects relaxes Movable for read-only, state-dependent
// instructions: they may move provided the caller independently preserves
// their order relative to state-mutating instructions.
func MovableApartFromEffects(op Instruction) bool {
	switch op {
	case EXTCODEHASH, EXTCODESIZE, RETURNDATASIZE, BALANCE, SELFBALANCE,
		SLOAD, KECCAK256, MLOAD:
		return true
	default:
		return Movable(op)
	}
}

// CanBeRemoved reports whether op may be deleted when its result is unused.
func CanBeRemoved(op Instruction) bool {
	// DUP and SWAP are not really functional; callers handle them
	// structurally.
	if IsDupInstruction(op) || IsSwapInstruction(op) {
		return false
	}
	info, ok := Info(op)
	return ok && !info.SideEffects
}

// CanBeRemovedIfNoMSize additionally allows removal of hashing and memory
// loads when no memory-size query exists later in the analyzed window.
func CanBeRemovedIfNoMSize(op Instruction) bool {
	if op == KECCAK256 || op == MLOAD {
		return true
	}
	return CanBeRemoved(op)
}

// MemoryEffect classifies op's interaction with memory.
func MemoryEffect(op Instruction) Effect {
	switch op {
	case CALLDATACOPY, CODECOPY, EXTCODECOPY, RETURNDATACOPY,
		MSTORE, MSTORE8,
		CALL, CALLCODE, DELEGATECALL, STATICCALL:
		return EffectWrite
	case CREATE, CREATE2, KECCAK256, MLOAD, MSIZE, RETURN, REVERT,
		LOG0, LOG1, LOG2, LOG3, LOG4:
		return EffectRead
	default:
		return EffectNone
	}
}

// StorageEffect classifies op's interaction with contract storage.
func StorageEffect(op Instruction) Effect {
	switch op {
	case CALL, CALLCODE, DELEGATECALL, CREATE, CREATE2, SSTORE:
		return EffectWrite
	case SLOAD, STATICCALL:
		return EffectRead
	default:
		return EffectNone
	}
}

// OtherStateEffect classifies op's interaction with state outside memory and
// storage: balances, logs, return data, other contracts' code.
func OtherStateEffect(op Instruction) Effect {
	switch op {
	case CALL, CALLCODE, DELEGATECALL, CREATE, CREATE2, SELFDESTRUCT,
		STATICCALL: // because it can affect RETURNDATASIZE
		return EffectWrite
	case EXTCODESIZE, EXTCODEHASH, RETURNDATASIZE, BALANCE, SELFBALANCE,
		RETURNDATACOPY, EXTCODECOPY:
		// PC and GAS are deliberately excluded, as are CALLER,
		// CALLVALUE and ADDRESS: they cannot change during execution.
		return EffectRead
	default:
		return EffectNone
	}
}
