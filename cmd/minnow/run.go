package main

import (
	"fmt"
	"os"

	"github.com/minnowlang/minnow/manifest"
	"github.com/minnowlang/minnow/vm"
)

// handleRunCommand processes the `minnow run` subcommand.
// Usage:
//
//	minnow run                # runs the manifest's program
//	minnow run app.mni
//	minnow run -trace app.mni
func handleRunCommand(args []string, verbose bool) {
	var path string
	trace := false
	for _, a := range args {
		switch a {
		case "-trace", "--trace":
			trace = true
		default:
			if path != "" {
				fmt.Fprintf(os.Stderr, "Error: unexpected argument %q\n", a)
				os.Exit(1)
			}
			path = a
		}
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}

	if path == "" {
		if m == nil {
			fmt.Fprintln(os.Stderr, "Error: no program given and no minnow.toml found")
			os.Exit(1)
		}
		path = m.ProgramPath()
	}

	prog, entry, err := loadProgram(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := prog.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if verbose {
		fmt.Printf("Loaded %s (%d bytes)\n", prog.Name, len(prog.Code))
	}

	in := vm.New(prog)
	if m != nil {
		applyManifest(in, m)
		if m.Program.Entry != 0 {
			entry = m.Program.Entry
		}
	}
	if trace {
		in.Trace = os.Stderr
	}
	if entry != 0 {
		if err := in.SetPC(int(entry)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	res, err := in.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if verbose {
		fmt.Printf("Halted after %d steps: %s\n", res.Steps, res.Value)
	}
	os.Exit(res.ExitCode)
}
