package codegen

import (
	"fmt"

	"github.com/ethereum-optimism/solidity/dialect"
	"github.com/ethereum-optimism/solidity/evmasm"
)

// Identifier names an external symbol referenced from an inline-assembly
// fragment.
type Identifier struct {
	Name     string
	Location evmasm.SourceLocation
}

// IdentifierContext distinguishes reading a symbol from assigning to it.
type IdentifierContext int

const (
	IdentifierRValue IdentifierContext = iota
	IdentifierLValue
)

// IdentifierAccess is the bridge handed to an inline-assembly frontend:
// Resolve reports whether a name denotes an external symbol, and
// GenerateCode emits the access for one occurrence. insideFunction is set
// when the occurrence lies in a function definition within the fragment;
// function bodies run at an unrelated stack height and can never capture
// the surrounding locals.
type IdentifierAccess struct {
	Resolve      func(ident Identifier, insideFunction bool) bool
	GenerateCode func(ident Identifier, ctx IdentifierContext, e dialect.Emitter) error
}

// Frontend compiles an inline-assembly fragment into the emitter, resolving
// external identifiers through access.
type Frontend interface {
	Compile(code string, d *dialect.Dialect, access IdentifierAccess, e dialect.Emitter) error
}

// AppendInlineAssembly compiles code into the assembly. The named local
// variables are assumed to occupy one slot each, ending at the current stack
// top in declaration order; reads duplicate the slot, assignments swap the
// stack top into it. A slot deeper than 16 is unreachable and surfaces as a
// StackTooDeepError.
func (c *Context) AppendInlineAssembly(frontend Frontend, code string, d *dialect.Dialect, localVariables []string) error {
	startHeight := c.asm.Deposit()

	indexOf := func(name string) int {
		for i, v := range localVariables {
			if v == name {
				return i
			}
		}
		return -1
	}

	access := IdentifierAccess{
		Resolve: func(ident Identifier, insideFunction bool) bool {
			if insideFunction {
				return false
			}
			return indexOf(ident.Name) >= 0
		},
		GenerateCode: func(ident Identifier, ctx IdentifierContext, e dialect.Emitter) error {
			idx := indexOf(ident.Name)
			if idx < 0 {
				return fmt.Errorf("%w: %q", ErrVariableNotFound, ident.Name)
			}
			stackDepth := len(localVariables) - idx
			stackDiff := c.asm.Deposit() - startHeight + stackDepth
			if ctx == IdentifierLValue {
				stackDiff--
			}
			if stackDiff < 1 || stackDiff > 16 {
				return &StackTooDeepError{
					Identifier: ident.Name,
					Depth:      stackDiff,
					Location:   ident.Location,
					Fragment:   code,
				}
			}
			if ctx == IdentifierRValue {
				op, err := evmasm.DupInstruction(stackDiff)
				if err != nil {
					return err
				}
				return e.AppendInstruction(op)
			}
			op, err := evmasm.SwapInstruction(stackDiff)
			if err != nil {
				return err
			}
			if err := e.AppendInstruction(op); err != nil {
				return err
			}
			return e.AppendInstruction(evmasm.POP)
		},
	}
	return frontend.Compile(code, d, access, c)
}
