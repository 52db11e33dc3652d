package codegen

import (
	"errors"
	"testing"

	"github.com/ethereum-optimism/solidity/evmasm"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	return NewContext(evmasm.NewAssembly("test"))
}

func mustEmit(t *testing.T, c *Context, items ...evmasm.AssemblyItem) {
	t.Helper()
	for _, item := range items {
		if err := c.Append(item); err != nil {
			t.Fatalf("append %v: %v", item, err)
		}
	}
}

func TestContext_VariableLifecycle(t *testing.T) {
	c := newTestContext(t)
	mustEmit(t, c, evmasm.NewPushUint(1), evmasm.NewPushUint(2))

	x := &Variable{Name: "x", StackSize: 1}
	if err := c.AddVariable(x, 0); err != nil {
		t.Fatalf("AddVariable: %v", err)
	}
	base, err := c.BaseStackOffsetOfVariable(x)
	if err != nil || base != 2 {
		t.Fatalf("base = %d, %v, want 2", base, err)
	}
	// The recorded base equals the height just past the variable's slot,
	// so the slot currently on top converts to offset -1.
	if off := c.BaseToCurrentStackOffset(base); off != -1 {
		t.Fatalf("offset = %d, want -1", off)
	}
	mustEmit(t, c, evmasm.NewPushUint(3))
	if off := c.BaseToCurrentStackOffset(base); off != 0 {
		t.Fatalf("offset after push = %d, want 0", off)
	}
	if got := c.CurrentToBaseStackOffset(0); got != base {
		t.Fatalf("CurrentToBaseStackOffset(0) = %d, want %d", got, base)
	}

	c.RemoveVariable(x)
	if _, err := c.BaseStackOffsetOfVariable(x); !errors.Is(err, ErrVariableNotFound) {
		t.Fatalf("removed variable still resolvable: %v", err)
	}
}

func TestContext_VariableShadowing(t *testing.T) {
	c := newTestContext(t)
	mustEmit(t, c, evmasm.NewPushUint(1))

	x := &Variable{Name: "x", StackSize: 1}
	if err := c.AddVariable(x, 0); err != nil {
		t.Fatalf("outer AddVariable: %v", err)
	}
	mustEmit(t, c, evmasm.NewPushUint(2))
	if err := c.AddVariable(x, 0); err != nil {
		t.Fatalf("inner AddVariable: %v", err)
	}

	base, err := c.BaseStackOffsetOfVariable(x)
	if err != nil || base != 2 {
		t.Fatalf("inner base = %d, %v, want 2", base, err)
	}
	c.RemoveVariable(x)
	base, err = c.BaseStackOffsetOfVariable(x)
	if err != nil || base != 1 {
		t.Fatalf("outer base = %d, %v, want 1", base, err)
	}
}

func TestContext_UnsupportedStackShape(t *testing.T) {
	c := newTestContext(t)
	wide := &Variable{Name: "wide", StackSize: 3}
	if err := c.AddVariable(wide, 0); !errors.Is(err, ErrUnsupportedStackShape) {
		t.Fatalf("err = %v, want ErrUnsupportedStackShape", err)
	}
	pair := &Variable{Name: "pair", StackSize: 2}
	mustEmit(t, c, evmasm.NewPushUint(1), evmasm.NewPushUint(2))
	if err := c.AddVariable(pair, 0); err != nil {
		t.Fatalf("two-slot variable rejected: %v", err)
	}
}

func TestContext_RemoveVariablesAboveStackHeight(t *testing.T) {
	c := newTestContext(t)
	mustEmit(t, c, evmasm.NewPushUint(1), evmasm.NewPushUint(2), evmasm.NewPushUint(3))

	low := &Variable{Name: "low", StackSize: 1}
	high := &Variable{Name: "high", StackSize: 1}
	if err := c.AddVariable(low, 2); err != nil {
		t.Fatalf("AddVariable low: %v", err)
	}
	if err := c.AddVariable(high, 0); err != nil {
		t.Fatalf("AddVariable high: %v", err)
	}

	c.RemoveVariablesAboveStackHeight(2)
	if _, err := c.BaseStackOffsetOfVariable(high); !errors.Is(err, ErrVariableNotFound) {
		t.Fatalf("high survived the unwind")
	}
	if _, err := c.BaseStackOffsetOfVariable(low); err != nil {
		t.Fatalf("low dropped by the unwind: %v", err)
	}
}

func TestContext_JumpHelpers(t *testing.T) {
	c := newTestContext(t)
	tag, err := c.Assembly().NewPushTag()
	if err != nil {
		t.Fatalf("NewPushTag: %v", err)
	}
	if err := c.AppendJumpTo(tag, evmasm.JumpOrdinary); err != nil {
		t.Fatalf("AppendJumpTo: %v", err)
	}
	items := c.Assembly().Items()
	if len(items) != 2 {
		t.Fatalf("items = %v", items)
	}
	op, ok := items[1].(*evmasm.Operation)
	if !ok || op.Op != evmasm.JUMP || op.Jump != evmasm.JumpOrdinary {
		t.Fatalf("item 1 = %v", items[1])
	}
	if c.StackHeight() != 0 {
		t.Fatalf("jump left height %d", c.StackHeight())
	}

	mustEmit(t, c, evmasm.NewPushUint(1))
	if err := c.AppendConditionalJumpTo(tag); err != nil {
		t.Fatalf("AppendConditionalJumpTo: %v", err)
	}
	if c.StackHeight() != 0 {
		t.Fatalf("conditional jump left height %d", c.StackHeight())
	}
}

func TestContext_ErrorTagIsReservedLabelZero(t *testing.T) {
	c := newTestContext(t)
	tag := c.ErrorTag()
	if tag.Ref.Label != 0 || tag.Ref.Foreign() {
		t.Fatalf("error tag = %v", tag.Ref)
	}
	fresh, err := c.Assembly().NewTag()
	if err != nil {
		t.Fatalf("NewTag: %v", err)
	}
	if fresh.Ref.Label == 0 {
		t.Fatalf("fresh tag collides with the exception destination")
	}
}

func TestContext_CallLowLevelFunctionMemoized(t *testing.T) {
	c := newTestContext(t)
	generated := 0
	generator := func(c *Context) error {
		generated++
		// One argument in, one result out.
		return c.AppendInstruction(evmasm.ISZERO)
	}

	mustEmit(t, c, evmasm.NewPushUint(1))
	if err := c.CallLowLevelFunction("$iszero", 1, 1, generator); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if c.StackHeight() != 1 {
		t.Fatalf("call site height = %d, want 1", c.StackHeight())
	}
	if err := c.CallLowLevelFunction("$iszero", 1, 1, generator); err != nil {
		t.Fatalf("second call: %v", err)
	}

	if err := c.AppendMissingLowLevelFunctions(); err != nil {
		t.Fatalf("AppendMissingLowLevelFunctions: %v", err)
	}
	if generated != 1 {
		t.Fatalf("generator ran %d times, want 1", generated)
	}

	// Second drain is a no-op.
	if err := c.AppendMissingLowLevelFunctions(); err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if generated != 1 {
		t.Fatalf("drain regenerated the body")
	}
}

func TestContext_LowLevelFunctionCallProtocol(t *testing.T) {
	c := newTestContext(t)
	mustEmit(t, c, evmasm.NewPushUint(10), evmasm.NewPushUint(20))

	if err := c.CallLowLevelFunction("$add", 2, 1, func(c *Context) error {
		return c.AppendInstruction(evmasm.ADD)
	}); err != nil {
		t.Fatalf("call: %v", err)
	}

	items := c.Assembly().Items()
	// push ret, swap args below it, push entry, jump in, ret tag.
	want := []string{"PushTag", "SWAP2", "SWAP1", "PushTag", "JUMP[in]", "Tag"}
	if len(items) != 2+len(want) {
		t.Fatalf("items = %v", items)
	}
	seq := items[2:]
	if _, ok := seq[0].(*evmasm.PushTag); !ok {
		t.Fatalf("item 0 = %v, want return tag push", seq[0])
	}
	if !evmasm.IsOp(seq[1], evmasm.SWAP2) || !evmasm.IsOp(seq[2], evmasm.SWAP1) {
		t.Fatalf("argument rotation = %v, %v, want %v", seq[1], seq[2], want)
	}
	if _, ok := seq[3].(*evmasm.PushTag); !ok {
		t.Fatalf("item 3 = %v, want entry tag push", seq[3])
	}
	jump, ok := seq[4].(*evmasm.Operation)
	if !ok || jump.Op != evmasm.JUMP || jump.Jump != evmasm.JumpIntoFunction {
		t.Fatalf("item 4 = %v, want annotated jump", seq[4])
	}
	if _, ok := seq[5].(*evmasm.Tag); !ok {
		t.Fatalf("item 5 = %v, want return tag", seq[5])
	}
	if c.StackHeight() != 1 {
		t.Fatalf("height after call = %d, want 1", c.StackHeight())
	}

	if err := c.AppendMissingLowLevelFunctions(); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	body := c.Assembly().Items()[2+len(want):]
	if _, ok := body[0].(*evmasm.Tag); !ok {
		t.Fatalf("body starts with %v, want entry tag", body[0])
	}
	last, ok := body[len(body)-1].(*evmasm.Operation)
	if !ok || last.Op != evmasm.JUMP || last.Jump != evmasm.JumpOutOfFunction {
		t.Fatalf("body ends with %v, want annotated return jump", body[len(body)-1])
	}
}

func TestContext_LowLevelFunctionStackMismatch(t *testing.T) {
	c := newTestContext(t)
	mustEmit(t, c, evmasm.NewPushUint(1))
	if err := c.CallLowLevelFunction("$bad", 1, 1, func(c *Context) error {
		// Declares one result but leaves two.
		return c.Append(evmasm.NewPushUint(0))
	}); err != nil {
		t.Fatalf("call: %v", err)
	}
	if err := c.AppendMissingLowLevelFunctions(); !errors.Is(err, ErrStackHeightMismatch) {
		t.Fatalf("err = %v, want ErrStackHeightMismatch", err)
	}
}

func TestContext_RewriterSuppressedDuringRewrite(t *testing.T) {
	c := newTestContext(t)
	c.SetRewriter(func(c *Context, item evmasm.AssemblyItem) (bool, error) {
		if evmasm.IsOp(item, evmasm.SELFBALANCE) {
			// Emits the operation it intercepts; without suppression
			// this would recurse forever.
			if err := c.AppendInstruction(evmasm.CALLER); err != nil {
				return false, err
			}
			if err := c.AppendInstruction(evmasm.SELFBALANCE); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, nil
	})

	mustEmit(t, c, evmasm.NewOp(evmasm.SELFBALANCE))
	items := c.Assembly().Items()
	if len(items) != 2 {
		t.Fatalf("items = %v", items)
	}
	if !evmasm.IsOp(items[0], evmasm.CALLER) || !evmasm.IsOp(items[1], evmasm.SELFBALANCE) {
		t.Fatalf("rewritten sequence = %v, %v", items[0], items[1])
	}

	c.SetRewriter(nil)
	mustEmit(t, c, evmasm.NewOp(evmasm.SELFBALANCE))
	if len(c.Assembly().Items()) != 3 {
		t.Fatalf("cleared rewriter still intercepts")
	}
}
