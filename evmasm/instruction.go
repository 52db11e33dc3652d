// Package evmasm implements the EVM assembly intermediate representation:
// assembly items, the instruction semantics table, semantic classification
// used by the optimizer passes, and the passes that rewrite item sequences
// before serialization.
package evmasm

import "fmt"

// Instruction is a single EVM opcode byte.
type Instruction byte

// 0x0 range - arithmetic ops.
const (
	STOP Instruction = iota
	ADD
	MUL
	SUB
	DIV
	SDIV
	MOD
	SMOD
	ADDMOD
	MULMOD
	EXP
	SIGNEXTEND
)

// 0x10 range - comparison and bitwise logic ops.
const (
	LT Instruction = iota + 0x10
	GT
	SLT
	SGT
	EQ
	ISZERO
	AND
	OR
	XOR
	NOT
	BYTE
	SHL
	SHR
	SAR
)

// 0x20 range - crypto.
const (
	KECCAK256 Instruction = 0x20
)

// 0x30 range - closure state.
const (
	ADDRESS Instruction = iota + 0x30
	BALANCE
	ORIGIN
	CALLER
	CALLVALUE
	CALLDATALOAD
	CALLDATASIZE
	CALLDATACOPY
	CODESIZE
	CODECOPY
	GASPRICE
	EXTCODESIZE
	EXTCODECOPY
	RETURNDATASIZE
	RETURNDATACOPY
	EXTCODEHASH
)

// 0x40 range - block operations.
const (
	BLOCKHASH Instruction = iota + 0x40
	COINBASE
	TIMESTAMP
	NUMBER
	DIFFICULTY
	GASLIMIT
	CHAINID
	SELFBALANCE
)

// 0x50 range - storage, memory and control flow.
const (
	POP Instruction = iota + 0x50
	MLOAD
	MSTORE
	MSTORE8
	SLOAD
	SSTORE
	JUMP
	JUMPI
	PC
	MSIZE
	GAS
	JUMPDEST
)

// 0x60 through 0x9f - push, dup and swap.
const (
	PUSH1 Instruction = iota + 0x60
	PUSH2
	PUSH3
	PUSH4
	PUSH5
	PUSH6
	PUSH7
	PUSH8
	PUSH9
	PUSH10
	PUSH11
	PUSH12
	PUSH13
	PUSH14
	PUSH15
	PUSH16
	PUSH17
	PUSH18
	PUSH19
	PUSH20
	PUSH21
	PUSH22
	PUSH23
	PUSH24
	PUSH25
	PUSH26
	PUSH27
	PUSH28
	PUSH29
	PUSH30
	PUSH31
	PUSH32
	DUP1
	DUP2
	DUP3
	DUP4
	DUP5
	DUP6
	DUP7
	DUP8
	DUP9
	DUP10
	DUP11
	DUP12
	DUP13
	DUP14
	DUP15
	DUP16
	SWAP1
	SWAP2
	SWAP3
	SWAP4
	SWAP5
	SWAP6
	SWAP7
	SWAP8
	SWAP9
	SWAP10
	SWAP11
	SWAP12
	SWAP13
	SWAP14
	SWAP15
	SWAP16
)

// 0xa0 range - logging.
const (
	LOG0 Instruction = iota + 0xa0
	LOG1
	LOG2
	LOG3
	LOG4
)

// 0xf0 range - closures and system operations.
const (
	CREATE       Instruction = 0xf0
	CALL         Instruction = 0xf1
	CALLCODE     Instruction = 0xf2
	RETURN       Instruction = 0xf3
	DELEGATECALL Instruction = 0xf4
	CREATE2      Instruction = 0xf5
	STATICCALL   Instruction = 0xfa
	REVERT       Instruction = 0xfd
	INVALID      Instruction = 0xfe
	SELFDESTRUCT Instruction = 0xff
)

// EVMVersion selects the instruction set of a particular network upgrade.
// Instructions carry the first version they are available in.
type EVMVersion int

const (
	Homestead EVMVersion = iota
	TangerineWhistle
	SpuriousDragon
	Byzantium
	Constantinople
	Petersburg
	Istanbul
)

var versionNames = map[EVMVersion]string{
	Homestead:        "homestead",
	TangerineWhistle: "tangerineWhistle",
	SpuriousDragon:   "spuriousDragon",
	Byzantium:        "byzantium",
	Constantinople:   "constantinople",
	Petersburg:       "petersburg",
	Istanbul:         "istanbul",
}

func (v EVMVersion) String() string {
	if s, ok := versionNames[v]; ok {
		return s
	}
	return fmt.Sprintf("evmVersion(%d)", int(v))
}

// HasOpcode reports whether op is part of the instruction set at version v.
func (v EVMVersion) HasOpcode(op Instruction) bool {
	info, ok := Info(op)
	return ok && info.Since <= v
}

// InstructionInfo describes the static semantics of one instruction: its
// mnemonic, how many stack slots it pops and pushes, whether it has side
// effects beyond its stack result, and the first EVM version it exists in.
type InstructionInfo struct {
	Name        string
	Args        int
	Ret         int
	SideEffects bool
	Since       EVMVersion
}

var instructionInfo = map[Instruction]InstructionInfo{
	STOP:       {"STOP", 0, 0, true, Homestead},
	ADD:        {"ADD", 2, 1, false, Homestead},
	MUL:        {"MUL", 2, 1, false, Homestead},
	SUB:        {"SUB", 2, 1, false, Homestead},
	DIV:        {"DIV", 2, 1, false, Homestead},
	SDIV:       {"SDIV", 2, 1, false, Homestead},
	MOD:        {"MOD", 2, 1, false, Homestead},
	SMOD:       {"SMOD", 2, 1, false, Homestead},
	ADDMOD:     {"ADDMOD", 3, 1, false, Homestead},
	MULMOD:     {"MULMOD", 3, 1, false, Homestead},
	EXP:        {"EXP", 2, 1, false, Homestead},
	SIGNEXTEND: {"SIGNEXTEND", 2, 1, false, Homestead},

	LT:     {"LT", 2, 1, false, Homestead},
	GT:     {"GT", 2, 1, false, Homestead},
	SLT:    {"SLT", 2, 1, false, Homestead},
	SGT:    {"SGT", 2, 1, false, Homestead},
	EQ:     {"EQ", 2, 1, false, Homestead},
	ISZERO: {"ISZERO", 1, 1, false, Homestead},
	AND:    {"AND", 2, 1, false, Homestead},
	OR:     {"OR", 2, 1, false, Homestead},
	XOR:    {"XOR", 2, 1, false, Homestead},
	NOT:    {"NOT", 1, 1, false, Homestead},
	BYTE:   {"BYTE", 2, 1, false, Homestead},
	SHL:    {"SHL", 2, 1, false, Constantinople},
	SHR:    {"SHR", 2, 1, false, Constantinople},
	SAR:    {"SAR", 2, 1, false, Constantinople},

	KECCAK256: {"KECCAK256", 2, 1, false, Homestead},

	ADDRESS:        {"ADDRESS", 0, 1, false, Homestead},
	BALANCE:        {"BALANCE", 1, 1, false, Homestead},
	ORIGIN:         {"ORIGIN", 0, 1, false, Homestead},
	CALLER:         {"CALLER", 0, 1, false, Homestead},
	CALLVALUE:      {"CALLVALUE", 0, 1, false, Homestead},
	CALLDATALOAD:   {"CALLDATALOAD", 1, 1, false, Homestead},
	CALLDATASIZE:   {"CALLDATASIZE", 0, 1, false, Homestead},
	CALLDATACOPY:   {"CALLDATACOPY", 3, 0, true, Homestead},
	CODESIZE:       {"CODESIZE", 0, 1, false, Homestead},
	CODECOPY:       {"CODECOPY", 3, 0, true, Homestead},
	GASPRICE:       {"GASPRICE", 0, 1, false, Homestead},
	EXTCODESIZE:    {"EXTCODESIZE", 1, 1, false, Homestead},
	EXTCODECOPY:    {"EXTCODECOPY", 4, 0, true, Homestead},
	RETURNDATASIZE: {"RETURNDATASIZE", 0, 1, false, Byzantium},
	RETURNDATACOPY: {"RETURNDATACOPY", 3, 0, true, Byzantium},
	EXTCODEHASH:    {"EXTCODEHASH", 1, 1, false, Constantinople},

	BLOCKHASH:   {"BLOCKHASH", 1, 1, false, Homestead},
	COINBASE:    {"COINBASE", 0, 1, false, Homestead},
	TIMESTAMP:   {"TIMESTAMP", 0, 1, false, Homestead},
	NUMBER:      {"NUMBER", 0, 1, false, Homestead},
	DIFFICULTY:  {"DIFFICULTY", 0, 1, false, Homestead},
	GASLIMIT:    {"GASLIMIT", 0, 1, false, Homestead},
	CHAINID:     {"CHAINID", 0, 1, false, Istanbul},
	SELFBALANCE: {"SELFBALANCE", 0, 1, false, Istanbul},

	POP:      {"POP", 1, 0, false, Homestead},
	MLOAD:    {"MLOAD", 1, 1, false, Homestead},
	MSTORE:   {"MSTORE", 2, 0, true, Homestead},
	MSTORE8:  {"MSTORE8", 2, 0, true, Homestead},
	SLOAD:    {"SLOAD", 1, 1, false, Homestead},
	SSTORE:   {"SSTORE", 2, 0, true, Homestead},
	JUMP:     {"JUMP", 1, 0, true, Homestead},
	JUMPI:    {"JUMPI", 2, 0, true, Homestead},
	PC:       {"PC", 0, 1, false, Homestead},
	MSIZE:    {"MSIZE", 0, 1, false, Homestead},
	GAS:      {"GAS", 0, 1, false, Homestead},
	JUMPDEST: {"JUMPDEST", 0, 0, true, Homestead},

	LOG0: {"LOG0", 2, 0, true, Homestead},
	LOG1: {"LOG1", 3, 0, true, Homestead},
	LOG2: {"LOG2", 4, 0, true, Homestead},
	LOG3: {"LOG3", 5, 0, true, Homestead},
	LOG4: {"LOG4", 6, 0, true, Homestead},

	CREATE:       {"CREATE", 3, 1, true, Homestead},
	CALL:         {"CALL", 7, 1, true, Homestead},
	CALLCODE:     {"CALLCODE", 7, 1, true, Homestead},
	RETURN:       {"RETURN", 2, 0, true, Homestead},
	DELEGATECALL: {"DELEGATECALL", 6, 1, true, Homestead},
	CREATE2:      {"CREATE2", 4, 1, true, Constantinople},
	STATICCALL:   {"STATICCALL", 6, 1, true, Byzantium},
	REVERT:       {"REVERT", 2, 0, true, Byzantium},
	INVALID:      {"INVALID", 0, 0, true, Homestead},
	SELFDESTRUCT: {"SELFDESTRUCT", 1, 0, true, Homestead},
}

func init() {
	// PUSH, DUP and SWAP are uniform families; fill their rows here instead
	// of spelling out 64 near-identical literals.
	for i := 0; i < 32; i++ {
		op := PUSH1 + Instruction(i)
		instructionInfo[op] = InstructionInfo{fmt.Sprintf("PUSH%d", i+1), 0, 1, false, Homestead}
	}
	for i := 0; i < 16; i++ {
		dup := DUP1 + Instruction(i)
		instructionInfo[dup] = InstructionInfo{fmt.Sprintf("DUP%d", i+1), i + 1, i + 2, false, Homestead}
		swap := SWAP1 + Instruction(i)
		instructionInfo[swap] = InstructionInfo{fmt.Sprintf("SWAP%d", i+1), i + 2, i + 2, false, Homestead}
	}
	for op, info := range instructionInfo {
		instructionByName[info.Name] = op
	}
}

var instructionByName = make(map[string]Instruction)

// Info returns the semantics table entry for op. The second return is false
// for byte values that are not assigned an instruction.
func Info(op Instruction) (InstructionInfo, bool) {
	info, ok := instructionInfo[op]
	return info, ok
}

// StringToInstruction resolves a mnemonic to its opcode.
func StringToInstruction(name string) (Instruction, bool) {
	op, ok := instructionByName[name]
	return op, ok
}

// Instructions returns every defined instruction in byte order.
func Instructions() []Instruction {
	ops := make([]Instruction, 0, len(instructionInfo))
	for op := 0; op < 256; op++ {
		if _, ok := instructionInfo[Instruction(op)]; ok {
			ops = append(ops, Instruction(op))
		}
	}
	return ops
}

func (op Instruction) String() string {
	if info, ok := instructionInfo[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("opcode %#x not defined", int(op))
}

// IsPushInstruction reports whether op is PUSH1..PUSH32.
func IsPushInstruction(op Instruction) bool {
	return op >= PUSH1 && op <= PUSH32
}

// IsDupInstruction reports whether op is DUP1..DUP16.
func IsDupInstruction(op Instruction) bool {
	return op >= DUP1 && op <= DUP16
}

// IsSwapInstruction reports whether op is SWAP1..SWAP16.
func IsSwapInstruction(op Instruction) bool {
	return op >= SWAP1 && op <= SWAP16
}

// DupInstruction returns the DUP reaching depth slots below the top, 1..16.
func DupInstruction(depth int) (Instruction, error) {
	if depth < 1 || depth > 16 {
		return INVALID, fmt.Errorf("evmasm: invalid dup depth %d", depth)
	}
	return DUP1 + Instruction(depth-1), nil
}

// SwapInstruction returns the SWAP exchanging the top with the slot depth
// below it, 1..16.
func SwapInstruction(depth int) (Instruction, error) {
	if depth < 1 || depth > 16 {
		return INVALID, fmt.Errorf("evmasm: invalid swap depth %d", depth)
	}
	return SWAP1 + Instruction(depth-1), nil
}

// PushInstruction returns the PUSH with the given immediate width, 1..32.
func PushInstruction(size int) (Instruction, error) {
	if size < 1 || size > 32 {
		return INVALID, fmt.Errorf("evmasm: invalid push size %d", size)
	}
	return PUSH1 + Instruction(size-1), nil
}

// DupNumber returns n for DUPn.
func DupNumber(op Instruction) int {
	return int(op-DUP1) + 1
}

// SwapNumber returns n for SWAPn.
func SwapNumber(op Instruction) int {
	return int(op-SWAP1) + 1
}
