package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/minnowlang/minnow/vm"
)

// handleDebugCommand processes the `minnow debug` subcommand: an
// interactive stepper over a single program.
func handleDebugCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: minnow debug <file>")
		os.Exit(1)
	}

	prog, entry, err := loadProgram(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := prog.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	in := vm.New(prog)
	if entry != 0 {
		if err := in.SetPC(int(entry)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	runDebugger(in)
}

// runDebugger reads stepper commands until quit or end of input. An
// empty line repeats the single step.
func runDebugger(in *vm.Interp) {
	fmt.Printf("minnow debugger: %s ('h' for commands, 'q' to quit)\n", in.Program().Name)
	fmt.Println(in.Status())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		cmd := "n"
		if len(fields) > 0 {
			cmd = fields[0]
		}

		switch cmd {
		case "n", "next":
			count := 1
			if len(fields) > 1 {
				count = parseCount(fields[1], 1)
			}
			res, err := in.RunSteps(uint64(count))
			if err != nil {
				fmt.Println(err)
			} else if res.Halted {
				fmt.Printf("halted after %d steps: %s\n", res.Steps, res.Value)
			}
			fmt.Println(in.Status())

		case "r", "run":
			res, err := in.Run()
			if err != nil {
				fmt.Println(err)
			} else {
				fmt.Printf("halted after %d steps: %s\n", res.Steps, res.Value)
			}

		case "s", "stack":
			in.DumpStack(os.Stdout)

		case "m", "mem":
			from, to := 0, in.Heap().Len()
			if len(fields) > 1 {
				from = parseCount(fields[1], 0)
			}
			if len(fields) > 2 {
				to = parseCount(fields[2], to)
			}
			in.DumpHeap(os.Stdout, from, to)

		case "?", "status":
			fmt.Println(in.Status())

		case "k", "skip":
			count := 1
			if len(fields) > 1 {
				count = parseCount(fields[1], 1)
			}
			for i := 0; i < count; i++ {
				if err := in.Skip(); err != nil {
					fmt.Println(err)
					break
				}
			}
			fmt.Println(in.Status())

		case "h", "help":
			fmt.Println("Commands:")
			fmt.Println("  n [count]    execute the next instruction (or count of them)")
			fmt.Println("  r            run until the program halts or faults")
			fmt.Println("  s            dump the operand stack")
			fmt.Println("  m [from to]  dump heap cells")
			fmt.Println("  k [count]    skip instructions without executing them")
			fmt.Println("  ?            show machine status")
			fmt.Println("  q            quit")

		case "q", "quit", "exit":
			return

		default:
			fmt.Printf("unknown command %q ('h' for commands)\n", cmd)
		}
	}

	fmt.Println()
}

func parseCount(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
