// Package dialect exposes the instruction set of a target EVM version as a
// table of builtin functions consumable by the structured-code frontend.
// Each opcode becomes one callable primitive; stack shuffling, pushes, jumps
// and labels are handled structurally by the code generator and are not
// callable. Object access adds the primitives that reach into the assembly
// structure itself: embedded data, linker symbols and immutables.
package dialect

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/ethereum-optimism/solidity/evmasm"
)

// Emitter is the assembly surface a builtin emits through. It is implemented
// by the code generation context.
type Emitter interface {
	AppendInstruction(op evmasm.Instruction) error
	AppendConstant(value *uint256.Int) error
	AppendProgramSize() error
	AppendDataOffset(path []int) error
	AppendDataSize(path []int) error
	AppendLinkerSymbol(name string) error
	AppendImmutable(name string) error
	AppendImmutableAssignment(name string) error
}

// BuiltinContext carries the object structure a builtin may refer to: the
// name of the object being compiled and the resolution of data names to
// sub-assembly paths.
type BuiltinContext struct {
	ObjectName string
	// SubIDs maps directly embedded object names to their child index.
	SubIDs map[string]int
	// PathToSubObject resolves names of deeper objects to a structural
	// path; nil when only direct children exist.
	PathToSubObject func(name string) []int
}

func (c *BuiltinContext) resolve(name string) ([]int, error) {
	if id, ok := c.SubIDs[name]; ok {
		return []int{id}, nil
	}
	if c.PathToSubObject != nil {
		if path := c.PathToSubObject(name); len(path) > 0 {
			return path, nil
		}
	}
	return nil, fmt.Errorf("dialect: unknown assembly object %q", name)
}

// LiteralKind constrains an argument that must be a compile-time literal.
type LiteralKind int

const (
	LiteralNone LiteralKind = iota
	LiteralString
	LiteralNumber
)

// BuiltinFunction is one callable primitive. The frontend evaluates the
// non-literal arguments onto the stack right to left before invoking Emit,
// leaving the first argument on top; literal arguments arrive as strings.
type BuiltinFunction struct {
	Name        string
	Args        int
	Rets        int
	SideEffects bool
	Literals    []LiteralKind
	Emit        func(ctx *BuiltinContext, literals []string, e Emitter) error
}

// Dialect is the builtin table for one (EVM version, object access) pair.
// Dialects are immutable once built and safe for concurrent use.
type Dialect struct {
	version      evmasm.EVMVersion
	objectAccess bool
	builtins     map[string]*BuiltinFunction
	reserved     map[string]struct{}
}

// Version returns the EVM version this dialect targets.
func (d *Dialect) Version() evmasm.EVMVersion { return d.version }

// Builtin returns the builtin registered under name, or nil.
func (d *Dialect) Builtin(name string) *BuiltinFunction {
	return d.builtins[name]
}

// ReservedIdentifier reports whether name may not be used as a user
// identifier in any source targeting this dialect.
func (d *Dialect) ReservedIdentifier(name string) bool {
	_, ok := d.reserved[name]
	return ok
}

func newDialect(version evmasm.EVMVersion, objectAccess bool) *Dialect {
	d := &Dialect{
		version:      version,
		objectAccess: objectAccess,
		builtins:     make(map[string]*BuiltinFunction),
		reserved:     reservedIdentifiers(),
	}
	for _, op := range evmasm.Instructions() {
		op := op
		if evmasm.IsDupInstruction(op) || evmasm.IsSwapInstruction(op) ||
			evmasm.IsPushInstruction(op) ||
			op == evmasm.JUMP || op == evmasm.JUMPI || op == evmasm.JUMPDEST {
			continue
		}
		if !version.HasOpcode(op) {
			continue
		}
		info, _ := evmasm.Info(op)
		name := strings.ToLower(info.Name)
		d.builtins[name] = &BuiltinFunction{
			Name:        name,
			Args:        info.Args,
			Rets:        info.Ret,
			SideEffects: info.SideEffects,
			Emit: func(_ *BuiltinContext, _ []string, e Emitter) error {
				return e.AppendInstruction(op)
			},
		}
	}
	if objectAccess {
		d.addObjectBuiltins()
	}
	return d
}

func (d *Dialect) addObjectBuiltins() {
	add := func(b *BuiltinFunction) { d.builtins[b.Name] = b }

	add(&BuiltinFunction{
		Name: "linkersymbol", Args: 1, Rets: 1,
		Literals: []LiteralKind{LiteralString},
		Emit: func(_ *BuiltinContext, literals []string, e Emitter) error {
			return e.AppendLinkerSymbol(literals[0])
		},
	})
	add(&BuiltinFunction{
		Name: "datasize", Args: 1, Rets: 1,
		Literals: []LiteralKind{LiteralString},
		Emit: func(ctx *BuiltinContext, literals []string, e Emitter) error {
			name := literals[0]
			if name == ctx.ObjectName {
				return e.AppendProgramSize()
			}
			path, err := ctx.resolve(name)
			if err != nil {
				return err
			}
			return e.AppendDataSize(path)
		},
	})
	add(&BuiltinFunction{
		Name: "dataoffset", Args: 1, Rets: 1,
		Literals: []LiteralKind{LiteralString},
		Emit: func(ctx *BuiltinContext, literals []string, e Emitter) error {
			name := literals[0]
			if name == ctx.ObjectName {
				return e.AppendConstant(uint256.NewInt(0))
			}
			path, err := ctx.resolve(name)
			if err != nil {
				return err
			}
			return e.AppendDataOffset(path)
		},
	})
	add(&BuiltinFunction{
		Name: "datacopy", Args: 3, Rets: 0, SideEffects: true,
		Emit: func(_ *BuiltinContext, _ []string, e Emitter) error {
			return e.AppendInstruction(evmasm.CODECOPY)
		},
	})
	add(&BuiltinFunction{
		// setimmutable(offset, "name", value): value is evaluated
		// first and offset ends on top; the identifier is literal.
		// The emitted item consumes both slots.
		Name: "setimmutable", Args: 3, Rets: 0, SideEffects: true,
		Literals: []LiteralKind{LiteralNone, LiteralString, LiteralNone},
		Emit: func(_ *BuiltinContext, literals []string, e Emitter) error {
			return e.AppendImmutableAssignment(literals[1])
		},
	})
	add(&BuiltinFunction{
		Name: "loadimmutable", Args: 1, Rets: 1,
		Literals: []LiteralKind{LiteralString},
		Emit: func(_ *BuiltinContext, literals []string, e Emitter) error {
			return e.AppendImmutable(literals[0])
		},
	})
}

func reservedIdentifiers() map[string]struct{} {
	reserved := make(map[string]struct{})
	for _, op := range evmasm.Instructions() {
		info, _ := evmasm.Info(op)
		reserved[strings.ToLower(info.Name)] = struct{}{}
	}
	for _, name := range []string{
		"linkersymbol", "datasize", "dataoffset", "datacopy",
		"setimmutable", "loadimmutable",
	} {
		reserved[name] = struct{}{}
	}
	return reserved
}
