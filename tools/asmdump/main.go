// asmdump inspects EVM assembly. Fed hex bytecode it prints a disassembly
// listing; with -demo it builds a small assembly through the codegen layer
// and prints its text form before and after optimization.
//
// Usage:
//
//	asmdump -in runtime.hex
//	echo 6001600201 | asmdump
//	asmdump -demo
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ethereum-optimism/solidity/codegen"
	"github.com/ethereum-optimism/solidity/evmasm"
)

func main() {
	inFile := flag.String("in", "", "file with hex-encoded bytecode (default: stdin)")
	demo := flag.Bool("demo", false, "print a generated demonstration assembly instead")
	flag.Parse()

	if *demo {
		if err := printDemo(); err != nil {
			log.Fatalf("demo: %v", err)
		}
		return
	}

	var raw []byte
	var err error
	if *inFile != "" {
		raw, err = os.ReadFile(*inFile)
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	// Clean up input (remove 0x prefix, whitespace)
	hexStr := strings.TrimSpace(string(raw))
	hexStr = strings.TrimPrefix(hexStr, "0x")
	hexStr = strings.ReplaceAll(hexStr, "\n", "")
	hexStr = strings.ReplaceAll(hexStr, " ", "")

	code, err := hex.DecodeString(hexStr)
	if err != nil {
		log.Fatalf("invalid hex string: %v", err)
	}

	fmt.Print(evmasm.Disassemble(code))
}

// printDemo generates a creation/runtime assembly pair with a shared
// low-level helper and shows the optimizer at work on it.
func printDemo() error {
	runtime := evmasm.NewAssembly("runtime")
	rc := codegen.NewContext(runtime)

	// Absolute value of CALLVALUE, returned in memory.
	if err := rc.Append(evmasm.NewOp(evmasm.CALLVALUE)); err != nil {
		return err
	}
	if err := rc.CallLowLevelFunction("$abs", 1, 1, genAbs); err != nil {
		return err
	}
	for _, item := range []evmasm.AssemblyItem{
		evmasm.NewPushUint(0), evmasm.NewOp(evmasm.MSTORE),
		evmasm.NewPushUint(32), evmasm.NewPushUint(0), evmasm.NewOp(evmasm.RETURN),
	} {
		if err := rc.Append(item); err != nil {
			return err
		}
	}
	if err := rc.AppendMissingLowLevelFunctions(); err != nil {
		return err
	}

	creation := evmasm.NewAssembly("creation")
	sub := creation.NewSub(runtime)
	for _, item := range []evmasm.AssemblyItem{
		creation.NewPushSubSize(sub.Sub), evmasm.NewOp(evmasm.DUP1),
		sub, evmasm.NewPushUint(0), evmasm.NewOp(evmasm.CODECOPY),
		evmasm.NewPushUint(0), evmasm.NewOp(evmasm.RETURN),
	} {
		if err := creation.Append(item); err != nil {
			return err
		}
	}

	fmt.Println("=== before optimization ===")
	fmt.Print(creation.String())

	err := creation.Optimise(evmasm.OptimiserSettings{
		IsCreation:         true,
		RunJumpdestRemover: true,
		RunPeephole:        true,
		EVMVersion:         evmasm.Istanbul,
	})
	if err != nil {
		return err
	}

	fmt.Println("=== after optimization ===")
	fmt.Print(creation.String())
	return nil
}

// genAbs leaves |x| for x on the stack top, interpreting it as two's
// complement.
func genAbs(c *codegen.Context) error {
	for _, item := range []evmasm.AssemblyItem{
		evmasm.NewOp(evmasm.DUP1),
		evmasm.NewPushUint(0), evmasm.NewOp(evmasm.SUB),
		evmasm.NewOp(evmasm.DUP2),
		evmasm.NewPushUint(255), evmasm.NewOp(evmasm.SHR),
		// bit set: keep the negation, otherwise the original.
		evmasm.NewOp(evmasm.ISZERO),
	} {
		if err := c.Append(item); err != nil {
			return err
		}
	}
	tag, err := c.Assembly().NewTag()
	if err != nil {
		return err
	}
	if err := c.AppendConditionalJumpTo(tag.PushTag()); err != nil {
		return err
	}
	if err := c.Append(evmasm.NewOp(evmasm.SWAP1)); err != nil {
		return err
	}
	if err := c.Append(tag); err != nil {
		return err
	}
	return c.Append(evmasm.NewOp(evmasm.POP))
}
