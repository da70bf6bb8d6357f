package main

import (
	"fmt"
	"os"

	"github.com/minnowlang/minnow/image"
)

// handleStoreCommand processes the `minnow store` subcommand.
// Usage:
//
//	minnow store save app.mni      # file the program under its checksum
//	minnow store list
//	minnow store get 3fa0b2        # unambiguous prefixes are enough
//	minnow store get 3fa0b2 -o out.mni
//	minnow store rm <sum>
func handleStoreCommand(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: minnow store <save|list|get|rm> [args]")
		os.Exit(1)
	}

	s, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	switch args[0] {
	case "save":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: minnow store save <file>")
			os.Exit(1)
		}
		prog, _, err := loadProgram(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := prog.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		sum, err := s.Save(prog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(sum)

	case "list":
		entries, err := s.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, e := range entries {
			fmt.Printf("%s  %6d  %s  %s\n",
				e.Sum[:12], e.Size, e.CreatedAt.Format("2006-01-02 15:04"), e.Name)
		}

	case "get":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: minnow store get <sum> [-o <file>]")
			os.Exit(1)
		}
		sum := args[1]
		var out string
		for i := 2; i < len(args); i++ {
			if args[i] == "-o" || args[i] == "--output" {
				if i+1 < len(args) {
					out = args[i+1]
					i++
				} else {
					fmt.Fprintln(os.Stderr, "Error: -o requires an output path")
					os.Exit(1)
				}
			}
		}
		prog, err := s.Load(sum)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if out == "" {
			out = prog.Name + ".mni"
		}
		if err := image.Save(out, image.New(prog)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", out)

	case "rm":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: minnow store rm <sum>")
			os.Exit(1)
		}
		if err := s.Delete(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown store operation %q (use save, list, get or rm)\n", args[0])
		os.Exit(1)
	}
}
