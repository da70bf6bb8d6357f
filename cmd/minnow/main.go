// Minnow CLI - runs, lists and stores minnow bytecode programs
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/minnowlang/minnow/image"
	"github.com/minnowlang/minnow/manifest"
	"github.com/minnowlang/minnow/store"
	"github.com/minnowlang/minnow/vm"
)

const versionStr = "0.3.0"

var (
	verbose = flag.Bool("v", false, "Verbose output")
	version = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: minnow [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run [file]         execute a program, honoring minnow.toml\n")
		fmt.Fprintf(os.Stderr, "  disasm <file>      print a bytecode listing\n")
		fmt.Fprintf(os.Stderr, "  store <op> [args]  manage the program store (save, list, get, rm)\n")
		fmt.Fprintf(os.Stderr, "  debug <file>       step through a program interactively\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  minnow run app.mni          # execute an image\n")
		fmt.Fprintf(os.Stderr, "  minnow run                  # execute the manifest's program\n")
		fmt.Fprintf(os.Stderr, "  minnow run -trace app.mni   # trace each instruction to stderr\n")
		fmt.Fprintf(os.Stderr, "  minnow disasm app.mni\n")
		fmt.Fprintf(os.Stderr, "  minnow store save app.mni   # file the image under its checksum\n")
		fmt.Fprintf(os.Stderr, "  minnow debug app.mni        # interactive stepper\n")
	}
	flag.Parse()

	if *version {
		fmt.Printf("minnow version %s\n", versionStr)
		os.Exit(0)
	}

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	switch args[0] {
	case "run":
		handleRunCommand(args[1:], *verbose)
	case "disasm":
		handleDisasmCommand(args[1:])
	case "store":
		handleStoreCommand(args[1:])
	case "debug":
		handleDebugCommand(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}

// loadProgram reads a program from disk. Files ending in .mni are
// packaged images and carry an optional entry offset; anything else is
// treated as a bare code stream.
func loadProgram(path string) (*vm.Program, uint32, error) {
	if strings.HasSuffix(path, ".mni") {
		img, err := image.Load(path)
		if err != nil {
			return nil, 0, err
		}
		return img.Program(), img.Entry, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return vm.NewProgram(name, data), 0, nil
}

// applyManifest carries the manifest's run settings onto the machine.
func applyManifest(in *vm.Interp, m *manifest.Manifest) {
	if m.Run.Trace {
		in.Trace = os.Stderr
	}
	in.MaxSteps = m.Run.StepLimit
	if m.Run.HeapLimit > 0 {
		in.SetHeapLimit(m.Run.HeapLimit)
	}
	if !m.Natives.IO {
		in.RemoveNative("io")
	}
	if !m.Natives.Sys {
		in.RemoveNative("sys")
	}
}

// openStore locates the program store: $MINNOW_STORE first, then the
// manifest's store path, then ~/.minnow/programs.db.
func openStore() (*store.Store, error) {
	if path := os.Getenv("MINNOW_STORE"); path != "" {
		return openStoreAt(path)
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m != nil {
		return openStoreAt(m.StorePath())
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home dir: %w", err)
	}
	return openStoreAt(filepath.Join(home, ".minnow", "programs.db"))
}

func openStoreAt(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return store.Open(path)
}
