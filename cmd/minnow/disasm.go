package main

import (
	"fmt"
	"os"

	"github.com/minnowlang/minnow/vm"
)

// handleDisasmCommand processes the `minnow disasm` subcommand. A
// malformed stream still prints the listing up to the bad instruction.
func handleDisasmCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: minnow disasm <file>")
		os.Exit(1)
	}

	prog, _, err := loadProgram(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s (%d bytes)\n", prog.Name, len(prog.Code))
	listing, err := vm.Disassemble(prog.Code)
	if listing != "" {
		fmt.Println(listing)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
