package evmasm

import (
	"fmt"
	"strings"
)

// Disassemble renders raw bytecode as one instruction per line, with the
// byte offset and the immediate of PUSH instructions. Truncated immediates
// and undefined opcodes are rendered rather than rejected: the input may be
// arbitrary on-chain code.
func Disassemble(code []byte) string {
	var b strings.Builder
	for pc := 0; pc < len(code); {
		op := Instruction(code[pc])
		info, ok := Info(op)
		if !ok {
			fmt.Fprintf(&b, "0x%04x: unknown(0x%02x)\n", pc, byte(op))
			pc++
			continue
		}
		if IsPushInstruction(op) {
			size := int(op) - int(PUSH1) + 1
			end := pc + 1 + size
			if end > len(code) {
				end = len(code)
			}
			fmt.Fprintf(&b, "0x%04x: %s 0x%x\n", pc, info.Name, code[pc+1:end])
			pc = pc + 1 + size
			continue
		}
		fmt.Fprintf(&b, "0x%04x: %s\n", pc, info.Name)
		pc++
	}
	return b.String()
}
