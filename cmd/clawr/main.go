// Clawr CLI - runs the runtime's example programs
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/clawr/manifest"
	"github.com/chazu/clawr/programs"
	"github.com/chazu/clawr/vm"
	"github.com/chazu/clawr/vm/typedump"
)

var log = commonlog.GetLogger("clawr")

func main() {
	verbose := flag.Bool("v", false, "Verbose output (debug logging)")
	configPath := flag.String("config", "", "Configuration file (default: nearest clawr.toml)")
	dumpPath := flag.String("dump", "", "Write the type descriptor graph as CBOR to this file")
	list := flag.Bool("list", false, "List the available programs")
	stats := flag.Bool("stats", false, "Print heap counters after running")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: clawr [options] [program...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the named example programs, or all of them.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  clawr                          # Run every program\n")
		fmt.Fprintf(os.Stderr, "  clawr copy-on-write traits     # Run two programs\n")
		fmt.Fprintf(os.Stderr, "  clawr -dump types.cbor         # Export descriptors only\n")
		fmt.Fprintf(os.Stderr, "  clawr -config ci.toml -stats   # Custom heap settings\n")
	}
	flag.Parse()

	if *list {
		for _, name := range programs.Names() {
			fmt.Println(name)
		}
		return
	}

	m, err := loadManifest(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	extra := 0
	if *verbose {
		extra = 2
	}
	m.ConfigureLogging(extra)

	opts, err := m.HeapOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	heap := vm.NewHeap(opts)
	vm.SetDefaultHeap(heap)

	if *dumpPath != "" {
		if err := writeDump(*dumpPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log.Infof("wrote type descriptors to %s", *dumpPath)
	}

	names := flag.Args()
	if len(names) == 0 {
		if *dumpPath != "" {
			return
		}
		names = programs.Names()
	}

	for _, name := range names {
		if err := programs.Run(name, heap, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *stats {
		s := heap.Stats()
		fmt.Fprintf(os.Stderr, "live: %d (%d bytes)\n", s.Live, s.LiveBytes)
		fmt.Fprintf(os.Stderr, "allocations: %d, frees: %d\n", s.Allocs, s.Frees)
		fmt.Fprintf(os.Stderr, "copies: %d, contended retries: %d\n", s.Copies, s.Contended)
	}
}

// loadManifest reads the explicit configuration file, or the nearest
// clawr.toml above the working directory, or falls back to defaults.
func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(), nil
	}
	return m, nil
}

func writeDump(path string) error {
	dump, err := typedump.Collect(programs.Types()...)
	if err != nil {
		return err
	}
	data, err := typedump.Marshal(dump)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}
