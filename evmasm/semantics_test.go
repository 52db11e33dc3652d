package evmasm

import "testing"

// The classification predicates must stay mutually consistent over the whole
// instruction table; the optimizer passes trust them blindly.
func TestSemantics_ClassifierConsistency(t *testing.T) {
	for _, op := range Instructions() {
		info, _ := Info(op)

		if Movable(op) {
			if info.SideEffects {
				t.Fatalf("%v movable despite side effects", op)
			}
			if !IsDeterministic(NewOp(op)) {
				t.Fatalf("%v movable but not deterministic", op)
			}
			if MemoryEffect(op) == EffectWrite || StorageEffect(op) == EffectWrite ||
				OtherStateEffect(op) == EffectWrite {
				t.Fatalf("%v movable despite writing state", op)
			}
		}
		if Movable(op) && !MovableApartFromEffects(op) {
			t.Fatalf("%v movable but not movable apart from effects", op)
		}
		if CanBeRemoved(op) && info.SideEffects {
			t.Fatalf("%v removable despite side effects", op)
		}
		if CanBeRemoved(op) && !CanBeRemovedIfNoMSize(op) {
			t.Fatalf("%v removable strictly but not under the weaker rule", op)
		}
		if TerminatesControlFlow(op) && !AltersControlFlow(NewOp(op)) {
			t.Fatalf("%v terminates but does not alter control flow", op)
		}
		if Reverts(op) && !TerminatesControlFlow(op) {
			t.Fatalf("%v reverts but does not terminate", op)
		}
		if IsCommutativeOperation(NewOp(op)) && info.Args != 2 {
			t.Fatalf("%v commutative with %d args", op, info.Args)
		}
	}
}

func TestSemantics_DupSwapNotFunctional(t *testing.T) {
	for n := 1; n <= 16; n++ {
		dup, _ := DupInstruction(n)
		swap, _ := SwapInstruction(n)
		for _, op := range []Instruction{dup, swap} {
			if Movable(op) {
				t.Fatalf("%v classified movable", op)
			}
			if CanBeRemoved(op) {
				t.Fatalf("%v classified removable", op)
			}
		}
	}
}

func TestSemantics_BreaksCSEAnalysisBlock(t *testing.T) {
	cases := []struct {
		item           AssemblyItem
		msizeImportant bool
		want           bool
	}{
		{NewOp(CALLER), false, true}, // anchors rewritten call sequences
		{NewOp(GAS), false, true},
		{NewOp(PC), false, true},
		{NewOp(MSIZE), false, true},
		{NewOp(SSTORE), false, false},
		{NewOp(MSTORE), false, false},
		// Even with a later memory-size query, MLOAD and KECCAK256 fall
		// through to the arity rule and do not break the block.
		{NewOp(MLOAD), false, false},
		{NewOp(MLOAD), true, false},
		{NewOp(KECCAK256), false, false},
		{NewOp(KECCAK256), true, false},
		{NewOp(ADD), false, false},
		{NewOp(ADDMOD), false, true}, // three operands
		{NewOp(CALL), false, true},
		{NewOp(SWAP3), false, false},
		{NewOp(DUP8), false, false},
		{NewPushUint(1), false, false},
		{&PushTag{Ref: LabelRef{Sub: SubSelf, Label: 1}}, false, false},
		{&Tag{Ref: LabelRef{Sub: SubSelf, Label: 1}}, false, true},
		{&AssignImmutable{Name: "x"}, false, true},
		{&UndefinedItem{}, false, true},
	}
	for _, c := range cases {
		if got := BreaksCSEAnalysisBlock(c.item, c.msizeImportant); got != c.want {
			t.Fatalf("BreaksCSEAnalysisBlock(%v, msize=%v) = %v, want %v",
				c.item, c.msizeImportant, got, c.want)
		}
	}
}

func TestSemantics_ControlFlowQueries(t *testing.T) {
	for _, op := range []Instruction{CALL, CALLCODE, CREATE} {
		if AltersControlFlow(NewOp(op)) {
			t.Fatalf("%v should continue with the next instruction", op)
		}
	}
	for _, op := range []Instruction{JUMP, JUMPI, RETURN, REVERT, STOP, INVALID, SELFDESTRUCT} {
		if !AltersControlFlow(NewOp(op)) {
			t.Fatalf("%v should alter control flow", op)
		}
	}
	if TerminatesControlFlow(JUMP) || TerminatesControlFlow(JUMPI) {
		t.Fatalf("jumps do not terminate control flow")
	}
}

func TestSemantics_StateEffects(t *testing.T) {
	if MemoryEffect(MSTORE) != EffectWrite || MemoryEffect(MLOAD) != EffectRead {
		t.Fatalf("memory classification wrong for MSTORE/MLOAD")
	}
	if StorageEffect(SSTORE) != EffectWrite || StorageEffect(SLOAD) != EffectRead {
		t.Fatalf("storage classification wrong for SSTORE/SLOAD")
	}
	if StorageEffect(STATICCALL) != EffectRead {
		t.Fatalf("STATICCALL may read storage of the callee")
	}
	if OtherStateEffect(STATICCALL) != EffectWrite {
		t.Fatalf("STATICCALL overwrites the return data buffer")
	}
	if OtherStateEffect(CALLER) != EffectNone {
		t.Fatalf("CALLER cannot change during execution")
	}
	if MemoryEffect(LOG2) != EffectRead {
		t.Fatalf("LOG reads its payload from memory")
	}
}
