package evmasm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// JumpType annotates JUMP/JUMPI operations with their role in the calling
// convention. It is meaningless on any other item.
type JumpType byte

const (
	JumpOrdinary JumpType = iota
	JumpIntoFunction
	JumpOutOfFunction
)

func (t JumpType) String() string {
	switch t {
	case JumpIntoFunction:
		return "[in]"
	case JumpOutOfFunction:
		return "[out]"
	default:
		return ""
	}
}

// SourceLocation is an opaque annotation identifying the source text an item
// was generated from. The assembly layer propagates it verbatim.
type SourceLocation struct {
	Source string
	Start  int
	End    int
}

// IsValid reports whether the location carries any information.
func (l SourceLocation) IsValid() bool {
	return l.Source != "" || l.Start != 0 || l.End != 0
}

// LabelID is a numeric label within one assembly. Id 0 is reserved for the
// implicit exception destination and is never handed out by NewTag.
type LabelID uint64

// SubSelf marks a label reference as local to the program holding it.
const SubSelf = -1

// LabelRef names a code position as (owning sub-assembly, local label).
// A reference with Sub != SubSelf is "foreign": it denotes a label inside a
// sub-assembly, pushed from an enclosing assembly.
type LabelRef struct {
	Sub   int
	Label LabelID
}

// Foreign reports whether the reference points into another program.
func (r LabelRef) Foreign() bool {
	return r.Sub != SubSelf
}

func (r LabelRef) String() string {
	if r.Foreign() {
		return fmt.Sprintf("%d:%d", r.Sub, r.Label)
	}
	return fmt.Sprintf("%d", r.Label)
}

// AssemblyItem is one element of the flat instruction sequence. It is a
// sealed sum over twelve kinds; classification and serialization dispatch by
// type switch, so adding a kind surfaces everywhere it must be handled.
type AssemblyItem interface {
	// StackEffect is the static net change this item applies to the
	// stack height.
	StackEffect() int
	// Location returns the source annotation stamped at append time.
	Location() SourceLocation
	String() string

	setLocation(SourceLocation)
}

// itemLoc carries the source annotation shared by all item kinds.
type itemLoc struct {
	loc SourceLocation
}

func (l *itemLoc) Location() SourceLocation { return l.loc }

func (l *itemLoc) setLocation(loc SourceLocation) {
	if !l.loc.IsValid() {
		l.loc = loc
	}
}

// Operation executes one instruction.
type Operation struct {
	itemLoc
	Op   Instruction
	Jump JumpType // meaningful only on JUMP/JUMPI
}

// NewOp returns an Operation item for op.
func NewOp(op Instruction) *Operation {
	return &Operation{Op: op}
}

func (o *Operation) StackEffect() int {
	info, ok := Info(o.Op)
	if !ok {
		return 0
	}
	return info.Ret - info.Args
}

func (o *Operation) String() string {
	if o.Op == JUMP || o.Op == JUMPI {
		return fmt.Sprintf("%v%v", o.Op, o.Jump)
	}
	return o.Op.String()
}

// Push places a constant on the stack.
type Push struct {
	itemLoc
	Value *uint256.Int
}

// NewPush returns a Push item for value.
func NewPush(value *uint256.Int) *Push {
	return &Push{Value: value}
}

// NewPushUint returns a Push item for a small constant.
func NewPushUint(value uint64) *Push {
	return &Push{Value: uint256.NewInt(value)}
}

func (p *Push) StackEffect() int { return 1 }

func (p *Push) String() string {
	return fmt.Sprintf("PUSH %v", p.Value.Hex())
}

// PushTag places the code offset of a label on the stack. The reference may
// be foreign, naming a label inside a sub-assembly.
type PushTag struct {
	itemLoc
	Ref LabelRef
}

func (p *PushTag) StackEffect() int { return 1 }

func (p *PushTag) String() string {
	return fmt.Sprintf("PUSH [tag%v]", p.Ref)
}

// Tag marks a code position, the destination of jumps. It serializes to a
// JUMPDEST. A Tag is always local to the program holding it.
type Tag struct {
	itemLoc
	Ref LabelRef
}

// PushTag returns the push reference for this tag.
func (t *Tag) PushTag() *PushTag {
	return &PushTag{Ref: t.Ref}
}

func (t *Tag) StackEffect() int { return 0 }

func (t *Tag) String() string {
	return fmt.Sprintf("tag%v:", t.Ref)
}

// PushData places the data-section offset of an interned blob on the stack.
type PushData struct {
	itemLoc
	Hash common.Hash
}

func (p *PushData) StackEffect() int { return 1 }

func (p *PushData) String() string {
	return fmt.Sprintf("PUSH data(%x)", p.Hash[:4])
}

// PushSub places the code offset of a sub-assembly on the stack.
type PushSub struct {
	itemLoc
	Sub int
}

func (p *PushSub) StackEffect() int { return 1 }

func (p *PushSub) String() string {
	return fmt.Sprintf("PUSH [sub#%d]", p.Sub)
}

// PushSubSize places the byte size of a sub-assembly on the stack.
type PushSubSize struct {
	itemLoc
	Sub int
}

func (p *PushSubSize) StackEffect() int { return 1 }

func (p *PushSubSize) String() string {
	return fmt.Sprintf("PUSH #[sub#%d]", p.Sub)
}

// PushProgramSize places the final size of the assembly itself on the stack.
// Used where the code is modified after compilation and CODESIZE would be
// wrong.
type PushProgramSize struct {
	itemLoc
}

func (p *PushProgramSize) StackEffect() int { return 1 }

func (p *PushProgramSize) String() string { return "PUSHSIZE" }

// PushLibraryAddress places the deploy-time address of a linked library on
// the stack. The address is a placeholder until linking.
type PushLibraryAddress struct {
	itemLoc
	Name string
}

func (p *PushLibraryAddress) StackEffect() int { return 1 }

func (p *PushLibraryAddress) String() string {
	return fmt.Sprintf("PUSHLIB %q", p.Name)
}

// PushImmutable loads the value of a named immutable at runtime.
type PushImmutable struct {
	itemLoc
	Name string
}

func (p *PushImmutable) StackEffect() int { return 1 }

func (p *PushImmutable) String() string {
	return fmt.Sprintf("PUSHIMMUTABLE %q", p.Name)
}

// AssignImmutable records the value below the stack top as the named
// immutable during creation code, consuming both the value and the offset
// on top of it.
type AssignImmutable struct {
	itemLoc
	Name string
}

func (a *AssignImmutable) StackEffect() int { return -2 }

func (a *AssignImmutable) String() string {
	return fmt.Sprintf("ASSIGNIMMUTABLE %q", a.Name)
}

// UndefinedItem is the zero item, used where a lookup has no result.
type UndefinedItem struct {
	itemLoc
}

func (u *UndefinedItem) StackEffect() int { return 0 }

func (u *UndefinedItem) String() string { return "???" }

// IsOp reports whether item is the given operation.
func IsOp(item AssemblyItem, op Instruction) bool {
	o, ok := item.(*Operation)
	return ok && o.Op == op
}
