package evmasm

import "github.com/holiman/uint256"

// PeepholeOptimiser performs local rewriting over short item windows. Every
// rule preserves semantics by construction; legality of the riskier rules is
// delegated to the semantic classification table.
type PeepholeOptimiser struct {
	asm *Assembly
}

// NewPeepholeOptimiser returns a pass operating on asm's item sequence.
func NewPeepholeOptimiser(asm *Assembly) *PeepholeOptimiser {
	return &PeepholeOptimiser{asm: asm}
}

type peepholeRule struct {
	name   string
	window int
	apply  func(in []AssemblyItem, out *[]AssemblyItem) bool
}

var peepholeRules = []peepholeRule{
	{"PushPop", 2, pushPop},
	{"OpPop", 2, opPop},
	{"DoublePush", 2, doublePush},
	{"DoubleSwap", 2, doubleSwap},
	{"CommutativeSwap", 2, commutativeSwap},
	{"SwapComparison", 2, swapComparison},
	{"DupSwap", 2, dupSwap},
	{"IszeroIszeroJumpI", 4, iszeroIszeroJumpI},
	{"JumpToNext", 3, jumpToNext},
	{"TagConjunctions", 3, tagConjunctions},
	{"TruthyAnd", 3, truthyAnd},
}

// Optimise runs one rewriting sweep and installs the result if it is an
// improvement: fewer items, or the same count with more of them plain POPs.
// It reports whether the assembly changed; callers iterate to a fixed point.
func (p *PeepholeOptimiser) Optimise() bool {
	items := p.asm.Items()
	optimised := make([]AssemblyItem, 0, len(items))

	i := 0
scan:
	for i < len(items) {
		for _, rule := range peepholeRules {
			if i+rule.window > len(items) {
				continue
			}
			if rule.apply(items[i:i+rule.window], &optimised) {
				i += rule.window
				continue scan
			}
		}
		if n := unreachableCode(items[i:], &optimised); n > 0 {
			i += n
			continue
		}
		optimised = append(optimised, items[i])
		i++
	}

	if len(optimised) < len(items) ||
		(len(optimised) == len(items) &&
			(bytesRequired(optimised) < bytesRequired(items) ||
				countPops(optimised) > countPops(items))) {
		p.asm.SetItems(optimised)
		return true
	}
	return false
}

func countPops(items []AssemblyItem) int {
	n := 0
	for _, item := range items {
		if IsOp(item, POP) {
			n++
		}
	}
	return n
}

// bytesRequired estimates the serialized size of a sequence, mirroring the
// widths the serializer emits.
func bytesRequired(items []AssemblyItem) int {
	n := 0
	for _, item := range items {
		switch it := item.(type) {
		case *Push:
			size := len(it.Value.Bytes())
			if size == 0 {
				size = 1
			}
			n += 1 + size
		case *PushTag, *PushData, *PushSub, *PushSubSize, *PushProgramSize:
			n += 5
		case *PushLibraryAddress:
			n += 21
		case *PushImmutable:
			n += 33
		case *AssignImmutable:
			n += 2
		default:
			n++
		}
	}
	return n
}

// pushPop drops a pushed or duplicated value that is immediately popped.
func pushPop(in []AssemblyItem, _ *[]AssemblyItem) bool {
	if !IsOp(in[1], POP) {
		return false
	}
	switch in[0].(type) {
	case *Push, *PushTag, *PushSub, *PushSubSize, *PushProgramSize,
		*PushData, *PushLibraryAddress:
		return true
	}
	return IsDupItem(in[0])
}

// opPop replaces a single-result, effect-free operation whose result is
// popped with pops of its own arguments.
func opPop(in []AssemblyItem, out *[]AssemblyItem) bool {
	op, ok := in[0].(*Operation)
	if !ok || !IsOp(in[1], POP) {
		return false
	}
	// CALLER must survive verbatim: the sandbox rewrite layer identifies
	// safe call sequences by it.
	if op.Op == CALLER {
		return false
	}
	info, ok := Info(op.Op)
	if !ok || info.Ret != 1 || info.SideEffects {
		return false
	}
	for j := 0; j < info.Args; j++ {
		pop := NewOp(POP)
		pop.loc = op.Location()
		*out = append(*out, pop)
	}
	return true
}

// doublePush turns two pushes of the same constant into push plus DUP1.
func doublePush(in []AssemblyItem, out *[]AssemblyItem) bool {
	p1, ok1 := in[0].(*Push)
	p2, ok2 := in[1].(*Push)
	if !ok1 || !ok2 || !p1.Value.Eq(p2.Value) {
		return false
	}
	dup := NewOp(DUP1)
	dup.loc = p2.Location()
	*out = append(*out, p1, dup)
	return true
}

// doubleSwap cancels two identical swaps.
func doubleSwap(in []AssemblyItem, _ *[]AssemblyItem) bool {
	s1, ok1 := in[0].(*Operation)
	s2, ok2 := in[1].(*Operation)
	return ok1 && ok2 && s1.Op == s2.Op && IsSwapInstruction(s1.Op)
}

// commutativeSwap removes SWAP1 ahead of a commutative operation.
func commutativeSwap(in []AssemblyItem, out *[]AssemblyItem) bool {
	if !IsOp(in[0], SWAP1) || !IsCommutativeOperation(in[1]) {
		return false
	}
	*out = append(*out, in[1])
	return true
}

var swappableComparisons = map[Instruction]Instruction{
	LT:  GT,
	GT:  LT,
	SLT: SGT,
	SGT: SLT,
}

// swapComparison replaces SWAP1 plus an ordered comparison with the flipped
// comparison.
func swapComparison(in []AssemblyItem, out *[]AssemblyItem) bool {
	if !IsOp(in[0], SWAP1) {
		return false
	}
	op, ok := in[1].(*Operation)
	if !ok {
		return false
	}
	flipped, ok := swappableComparisons[op.Op]
	if !ok {
		return false
	}
	repl := NewOp(flipped)
	repl.loc = op.Location()
	*out = append(*out, repl)
	return true
}

// dupSwap removes SWAPn directly after DUPn: the duplicate equals the slot
// it would be exchanged with.
func dupSwap(in []AssemblyItem, out *[]AssemblyItem) bool {
	dup, ok1 := in[0].(*Operation)
	swap, ok2 := in[1].(*Operation)
	if !ok1 || !ok2 || !IsDupInstruction(dup.Op) || !IsSwapInstruction(swap.Op) {
		return false
	}
	if DupNumber(dup.Op) != SwapNumber(swap.Op) {
		return false
	}
	*out = append(*out, dup)
	return true
}

// iszeroIszeroJumpI drops a double negation feeding a conditional jump.
func iszeroIszeroJumpI(in []AssemblyItem, out *[]AssemblyItem) bool {
	if !IsOp(in[0], ISZERO) || !IsOp(in[1], ISZERO) {
		return false
	}
	if _, ok := in[2].(*PushTag); !ok {
		return false
	}
	if !IsOp(in[3], JUMPI) {
		return false
	}
	*out = append(*out, in[2], in[3])
	return true
}

// jumpToNext removes a jump targeting the tag placed directly after it. A
// conditional jump leaves a POP for its dropped condition.
func jumpToNext(in []AssemblyItem, out *[]AssemblyItem) bool {
	push, ok := in[0].(*PushTag)
	if !ok {
		return false
	}
	jump, ok := in[1].(*Operation)
	if !ok || (jump.Op != JUMP && jump.Op != JUMPI) {
		return false
	}
	tag, ok := in[2].(*Tag)
	if !ok || push.Ref != tag.Ref {
		return false
	}
	if jump.Op == JUMPI {
		pop := NewOp(POP)
		pop.loc = jump.Location()
		*out = append(*out, pop)
	}
	*out = append(*out, tag)
	return true
}

// tagConjunctions drops an AND masking a pushed tag with a constant whose
// low 32 bits are all set: tag values never exceed the 32-bit id space.
func tagConjunctions(in []AssemblyItem, out *[]AssemblyItem) bool {
	if !IsOp(in[2], AND) {
		return false
	}
	low32 := uint256.NewInt(0xffffffff)
	masked := func(v *uint256.Int) bool {
		return new(uint256.Int).And(v, low32).Eq(low32)
	}
	if tag, ok := in[0].(*PushTag); ok {
		if push, ok := in[1].(*Push); ok && masked(push.Value) {
			*out = append(*out, tag)
			return true
		}
	}
	// Tag and constant swapped.
	if push, ok := in[0].(*Push); ok && masked(push.Value) {
		if tag, ok := in[1].(*PushTag); ok {
			*out = append(*out, tag)
			return true
		}
	}
	return false
}

// truthyAnd removes the no-op mask PUSH 0, NOT, AND.
func truthyAnd(in []AssemblyItem, _ *[]AssemblyItem) bool {
	push, ok := in[0].(*Push)
	if !ok || !push.Value.IsZero() {
		return false
	}
	return IsOp(in[1], NOT) && IsOp(in[2], AND)
}

// unreachableCode skips everything between a terminal instruction and the
// next tag. It returns the number of items consumed, zero when it does not
// apply.
func unreachableCode(in []AssemblyItem, out *[]AssemblyItem) int {
	op, ok := in[0].(*Operation)
	if !ok || (!TerminatesControlFlow(op.Op) && op.Op != JUMP) {
		return 0
	}
	i := 1
	for i < len(in) {
		if _, isTag := in[i].(*Tag); isTag {
			break
		}
		i++
	}
	if i > 1 {
		*out = append(*out, in[0])
		return i
	}
	return 0
}
