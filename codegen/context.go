// Package codegen holds the per-program compilation context: the assembly
// under construction, the stack positions of the variables in scope, the
// memoized low-level runtime functions and the bridge into inline assembly.
package codegen

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/ethereum-optimism/solidity/evmasm"
)

// Variable identifies one named stack slot group. Identity is pointer
// identity, so shadowing declarations of the same name stay distinct.
type Variable struct {
	Name      string
	StackSize int
}

// Node is anything carrying a source location; the context stamps the
// location of the node currently being visited onto every emitted item.
type Node interface {
	Location() evmasm.SourceLocation
}

// Rewriter inspects each item about to enter the assembly and may emit a
// replacement fragment through the same context. Returning true suppresses
// the original item. Fragments emitted by the rewriter itself bypass it.
type Rewriter func(c *Context, item evmasm.AssemblyItem) (bool, error)

type pendingFunction struct {
	name      string
	inArgs    int
	outArgs   int
	tag       *evmasm.PushTag
	generator func(*Context) error
}

// Context wraps one assembly under construction.
type Context struct {
	asm *evmasm.Assembly

	visitedNodes   []Node
	localVariables map[*Variable][]int

	lowLevelFunctions map[string]*evmasm.PushTag
	pendingFunctions  []pendingFunction

	rewriter  Rewriter
	rewriting bool
}

// NewContext returns a context generating into asm.
func NewContext(asm *evmasm.Assembly) *Context {
	return &Context{
		asm:               asm,
		localVariables:    make(map[*Variable][]int),
		lowLevelFunctions: make(map[string]*evmasm.PushTag),
	}
}

// Assembly returns the underlying assembly.
func (c *Context) Assembly() *evmasm.Assembly { return c.asm }

// StackHeight returns the tracked stack deposit of the assembly.
func (c *Context) StackHeight() int { return c.asm.Deposit() }

// SetRewriter installs the append rewrite hook on the assembly.
func (c *Context) SetRewriter(r Rewriter) {
	c.rewriter = r
	if r == nil {
		c.asm.Callback = nil
		return
	}
	c.asm.Callback = func(item evmasm.AssemblyItem) (bool, error) {
		if c.rewriting {
			return false, nil
		}
		c.rewriting = true
		defer func() { c.rewriting = false }()
		return c.rewriter(c, item)
	}
}

// PushVisitedNode enters a node: its location is stamped on every item
// emitted until the matching pop.
func (c *Context) PushVisitedNode(n Node) {
	c.visitedNodes = append(c.visitedNodes, n)
	c.asm.SetSourceLocation(n.Location())
}

// PopVisitedNode leaves the innermost node and restores the location of the
// enclosing one.
func (c *Context) PopVisitedNode() {
	c.visitedNodes = c.visitedNodes[:len(c.visitedNodes)-1]
	if len(c.visitedNodes) > 0 {
		c.asm.SetSourceLocation(c.visitedNodes[len(c.visitedNodes)-1].Location())
	} else {
		c.asm.SetSourceLocation(evmasm.SourceLocation{})
	}
}

// NewTag allocates a fresh label in the underlying assembly.
func (c *Context) NewTag() (*evmasm.Tag, error) {
	return c.asm.NewTag()
}

// PushNewTag allocates a fresh label and returns its push reference.
func (c *Context) PushNewTag() (*evmasm.PushTag, error) {
	return c.asm.NewPushTag()
}

// NamedTag returns the tag registered under name, creating it on first use.
func (c *Context) NamedTag(name string) (*evmasm.Tag, error) {
	return c.asm.NamedTag(name)
}

// ErrorTag returns the push reference of the implicit exception destination.
func (c *Context) ErrorTag() *evmasm.PushTag {
	return &evmasm.PushTag{Ref: evmasm.LabelRef{Sub: evmasm.SubSelf, Label: 0}}
}

// AddVariable registers v as occupying the slots ending offsetToCurrent
// below the current stack height. Only one- and two-slot variables are
// representable.
func (c *Context) AddVariable(v *Variable, offsetToCurrent int) error {
	if v.StackSize != 1 && v.StackSize != 2 {
		return fmt.Errorf("%w: %q occupies %d slots", ErrUnsupportedStackShape, v.Name, v.StackSize)
	}
	if c.asm.Deposit() < offsetToCurrent {
		return fmt.Errorf("%w: height %d below offset %d", ErrVariableNotFound, c.asm.Deposit(), offsetToCurrent)
	}
	c.localVariables[v] = append(c.localVariables[v], c.asm.Deposit()-offsetToCurrent)
	return nil
}

// RemoveVariable drops the innermost registration of v.
func (c *Context) RemoveVariable(v *Variable) {
	heights := c.localVariables[v]
	if len(heights) <= 1 {
		delete(c.localVariables, v)
		return
	}
	c.localVariables[v] = heights[:len(heights)-1]
}

// RemoveVariablesAboveStackHeight drops every variable registration whose
// base sits at or above height. Used when unwinding a scope.
func (c *Context) RemoveVariablesAboveStackHeight(height int) {
	for v, heights := range c.localVariables {
		if heights[len(heights)-1] >= height {
			c.RemoveVariable(v)
		}
	}
}

// BaseStackOffsetOfVariable returns the base height registered for v.
func (c *Context) BaseStackOffsetOfVariable(v *Variable) (int, error) {
	heights, ok := c.localVariables[v]
	if !ok || len(heights) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrVariableNotFound, v.Name)
	}
	return heights[len(heights)-1], nil
}

// BaseToCurrentStackOffset converts a base height into the depth below the
// current stack top, as used by DUP and SWAP.
func (c *Context) BaseToCurrentStackOffset(base int) int {
	return c.asm.Deposit() - base - 1
}

// CurrentToBaseStackOffset converts a depth below the current stack top back
// into a base height.
func (c *Context) CurrentToBaseStackOffset(offset int) int {
	return c.asm.Deposit() - offset - 1
}

// Append places item into the assembly.
func (c *Context) Append(item evmasm.AssemblyItem) error {
	return c.asm.Append(item)
}

// AppendJumpTo emits an unconditional jump to tag, annotated with kind.
func (c *Context) AppendJumpTo(tag *evmasm.PushTag, kind evmasm.JumpType) error {
	if err := c.asm.Append(&evmasm.PushTag{Ref: tag.Ref}); err != nil {
		return err
	}
	op := evmasm.NewOp(evmasm.JUMP)
	op.Jump = kind
	return c.asm.Append(op)
}

// AppendConditionalJumpTo emits a jump to tag consuming the stack-top
// condition.
func (c *Context) AppendConditionalJumpTo(tag *evmasm.PushTag) error {
	if err := c.asm.Append(&evmasm.PushTag{Ref: tag.Ref}); err != nil {
		return err
	}
	return c.asm.AppendOp(evmasm.JUMPI)
}

// lowLevelFunctionTag returns the entry tag for the named low-level
// function, queueing its body for generation on first use.
func (c *Context) lowLevelFunctionTag(name string, inArgs, outArgs int, generator func(*Context) error) (*evmasm.PushTag, error) {
	if tag, ok := c.lowLevelFunctions[name]; ok {
		return tag, nil
	}
	tag, err := c.asm.NewPushTag()
	if err != nil {
		return nil, err
	}
	c.lowLevelFunctions[name] = tag
	c.pendingFunctions = append(c.pendingFunctions, pendingFunction{
		name:      name,
		inArgs:    inArgs,
		outArgs:   outArgs,
		tag:       tag,
		generator: generator,
	})
	return tag, nil
}

// CallLowLevelFunction emits a call to the named shared routine, generating
// its body at most once per assembly. The call site expects inArgs values on
// the stack and leaves outArgs.
func (c *Context) CallLowLevelFunction(name string, inArgs, outArgs int, generator func(*Context) error) error {
	entry, err := c.lowLevelFunctionTag(name, inArgs, outArgs, generator)
	if err != nil {
		return err
	}
	ret, err := c.asm.NewPushTag()
	if err != nil {
		return err
	}
	if err := c.asm.Append(ret); err != nil {
		return err
	}
	if err := c.moveIntoStack(inArgs); err != nil {
		return err
	}
	if err := c.asm.Append(&evmasm.PushTag{Ref: entry.Ref}); err != nil {
		return err
	}
	if err := c.AppendJumpKind(evmasm.JumpIntoFunction); err != nil {
		return err
	}
	if err := c.asm.AdjustDeposit(outArgs - 1 - inArgs); err != nil {
		return err
	}
	return c.asm.Append(&evmasm.Tag{Ref: ret.Ref})
}

// AppendMissingLowLevelFunctions materializes every queued low-level
// function body, draining the queue to a fixed point since bodies may call
// further low-level functions.
func (c *Context) AppendMissingLowLevelFunctions() error {
	for len(c.pendingFunctions) > 0 {
		fn := c.pendingFunctions[0]
		c.pendingFunctions = c.pendingFunctions[1:]

		// Entry state: the arguments plus the return address.
		if err := c.asm.SetDeposit(fn.inArgs + 1); err != nil {
			return err
		}
		if err := c.asm.Append(&evmasm.Tag{Ref: fn.tag.Ref}); err != nil {
			return err
		}
		if err := fn.generator(c); err != nil {
			return err
		}
		if err := c.moveToStackTop(fn.outArgs); err != nil {
			return err
		}
		if err := c.AppendJumpKind(evmasm.JumpOutOfFunction); err != nil {
			return err
		}
		if c.asm.Deposit() != fn.outArgs {
			return fmt.Errorf("%w: %q left height %d, want %d",
				ErrStackHeightMismatch, fn.name, c.asm.Deposit(), fn.outArgs)
		}
		log.Debug("Low-level function generated", "name", fn.name, "in", fn.inArgs, "out", fn.outArgs)
	}
	return nil
}

// AppendJumpKind emits a bare JUMP annotated with kind, consuming the
// destination from the stack.
func (c *Context) AppendJumpKind(kind evmasm.JumpType) error {
	op := evmasm.NewOp(evmasm.JUMP)
	op.Jump = kind
	return c.asm.Append(op)
}

// moveIntoStack rotates the stack top below the depth values beneath it.
func (c *Context) moveIntoStack(depth int) error {
	for i := depth; i > 0; i-- {
		op, err := evmasm.SwapInstruction(i)
		if err != nil {
			return err
		}
		if err := c.asm.AppendOp(op); err != nil {
			return err
		}
	}
	return nil
}

// moveToStackTop rotates the value depth slots down onto the stack top.
func (c *Context) moveToStackTop(depth int) error {
	for i := 1; i <= depth; i++ {
		op, err := evmasm.SwapInstruction(i)
		if err != nil {
			return err
		}
		if err := c.asm.AppendOp(op); err != nil {
			return err
		}
	}
	return nil
}

// AppendInstruction implements dialect.Emitter.
func (c *Context) AppendInstruction(op evmasm.Instruction) error {
	return c.asm.AppendOp(op)
}

// AppendConstant implements dialect.Emitter.
func (c *Context) AppendConstant(value *uint256.Int) error {
	return c.asm.Append(evmasm.NewPush(value))
}

// AppendProgramSize implements dialect.Emitter.
func (c *Context) AppendProgramSize() error {
	return c.asm.AppendProgramSize()
}

// AppendDataOffset implements dialect.Emitter.
func (c *Context) AppendDataOffset(path []int) error {
	id, err := c.asm.EncodeSubPath(path)
	if err != nil {
		return err
	}
	return c.asm.Append(&evmasm.PushSub{Sub: id})
}

// AppendDataSize implements dialect.Emitter.
func (c *Context) AppendDataSize(path []int) error {
	id, err := c.asm.EncodeSubPath(path)
	if err != nil {
		return err
	}
	return c.asm.Append(c.asm.NewPushSubSize(id))
}

// AppendLinkerSymbol implements dialect.Emitter.
func (c *Context) AppendLinkerSymbol(name string) error {
	return c.asm.Append(c.asm.NewPushLibraryAddress(name))
}

// AppendImmutable implements dialect.Emitter.
func (c *Context) AppendImmutable(name string) error {
	return c.asm.Append(c.asm.NewPushImmutable(name))
}

// AppendImmutableAssignment implements dialect.Emitter.
func (c *Context) AppendImmutableAssignment(name string) error {
	return c.asm.Append(c.asm.NewImmutableAssignment(name))
}
