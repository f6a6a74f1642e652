// nnl CLI - compiles persisted neuron modules, keeps them in the module
// store and runs their code.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/nnl/config"
	"github.com/chazu/nnl/graph"
	"github.com/chazu/nnl/module"
	"github.com/chazu/nnl/persist"
	"github.com/chazu/nnl/store"
	"github.com/chazu/nnl/vm"
)

func main() {
	verbosity := flag.Int("v", -1, "Log verbosity (overrides neuron.toml; -1 keeps the configured value)")
	logFile := flag.String("log", "", "Log file (default stderr)")
	projectDir := flag.String("C", ".", "Directory to search for neuron.toml")
	storePath := flag.String("store", "", "Module database (overrides neuron.toml)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nnl [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  compile <file>...    Compile module files and save them to the store\n")
		fmt.Fprintf(os.Stderr, "  list                 List stored modules\n")
		fmt.Fprintf(os.Stderr, "  run <module>...      Compile stored modules and run their code\n")
		fmt.Fprintf(os.Stderr, "  retract <module>...  Retract modules from the graph and the store\n")
		fmt.Fprintf(os.Stderr, "  dump <module>        Print the nodes of a stored module\n")
		fmt.Fprintf(os.Stderr, "  stats                Compile every stored module and print graph counters\n")
		fmt.Fprintf(os.Stderr, "  sample <file>        Write a small example module\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.FindAndLoad(*projectDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg == nil {
		dir, _ := filepath.Abs(*projectDir)
		cfg = config.Default(dir)
	}
	if *verbosity >= 0 {
		cfg.Logging.Verbosity = *verbosity
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}
	if *storePath != "" {
		cfg.Modules.Store = *storePath
	}
	commonlog.Configure(cfg.Logging.Verbosity, cfg.LogFile())

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "sample" {
		if err := writeSample(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	e, err := newEngine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer e.close()

	switch cmd {
	case "compile":
		err = e.compile(args)
	case "list":
		err = e.list()
	case "run":
		err = e.run(args)
	case "retract":
		err = e.retract(args)
	case "dump":
		err = e.dump(args)
	case "stats":
		err = e.stats()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		flag.Usage()
		e.close()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		e.close()
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Engine: one Brain with its registry, factory and store
// ---------------------------------------------------------------------------

type engine struct {
	cfg      *config.Config
	brain    *graph.Brain
	modules  *module.Registry
	factory  *vm.ProcessorFactory
	store    *store.Store
	gc       *graph.TempGC
	isClosed bool
}

func newEngine(cfg *config.Config) (*engine, error) {
	st, err := store.Open(cfg.StorePath(), cfg.Modules.CacheSize)
	if err != nil {
		return nil, err
	}
	b := graph.New()
	instructions := vm.NewRegistry()
	e := &engine{
		cfg:     cfg,
		brain:   b,
		modules: module.NewRegistry(b, instructions),
		factory: vm.NewProcessorFactory(b, instructions, cfg.VMSettings()),
		store:   st,
		gc:      graph.NewTempGC(b, cfg.GC.TempSweepInterval.Duration),
	}
	if !cfg.GC.Disabled {
		e.gc.Start()
	}
	return e, nil
}

func (e *engine) close() {
	if e.isClosed {
		return
	}
	e.isClosed = true
	e.gc.Stop()
	e.store.Close()
}

func (e *engine) compile(paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("compile: no files given")
	}
	failed := 0
	for _, path := range expandPaths(paths, e.cfg.Modules.Extension) {
		sess, err := persist.CompileFile(e.modules, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		if err := e.store.Capture(e.brain, sess.Module); err != nil {
			return err
		}
		fmt.Printf("compiled %s (%d neurons)\n", sess.Module.Name, len(sess.Module.Neurons))
	}
	if failed > 0 {
		return fmt.Errorf("%d module(s) failed to compile", failed)
	}
	return nil
}

// expandPaths replaces directories with the module files they contain.
func expandPaths(paths []string, ext string) []string {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			out = append(out, p)
			continue
		}
		matches, _ := filepath.Glob(filepath.Join(p, "*"+ext))
		out = append(out, matches...)
	}
	return out
}

func (e *engine) list() error {
	entries, err := e.store.List()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Printf("%-24s %8d bytes  %s\n", entry.Name, entry.Size, entry.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (e *engine) run(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("run: no modules given")
	}
	var mods []*module.Module
	for _, name := range names {
		sess, err := e.store.Compile(e.modules, name)
		if err != nil {
			return err
		}
		mods = append(mods, sess.Module)
	}

	p := e.factory.Get()
	defer e.factory.Release(p)
	for _, mod := range mods {
		for _, code := range entryPoints(e.brain, mod) {
			if err := p.Run(code); err != nil {
				return fmt.Errorf("%s: %w", mod.Name, err)
			}
		}
	}

	vars := e.modules.Compiler().Vars()
	for _, name := range vars.Names(graph.Global) {
		v, _ := vars.Lookup(graph.Global, name)
		values, ok := p.ExtractValue(v)
		if !ok {
			fmt.Printf("%s = <uninitialized>\n", name)
			continue
		}
		fmt.Printf("%s = %s\n", name, formatValues(values))
	}
	return nil
}

// entryPoints returns the module's code clusters that no other cluster
// contains, in module order.
func entryPoints(b *graph.Brain, mod *module.Module) []*graph.Neuron {
	var out []*graph.Neuron
	for _, id := range mod.Neurons {
		n, ok := b.Get(id)
		if !ok || !n.HasMeaning(graph.Code) {
			continue
		}
		if len(n.Referrers()) == 0 {
			out = append(out, n)
		}
	}
	return out
}

func formatValues(values []*graph.Neuron) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// retract compiles each stored module, retracts it from the graph through
// the module registry and deletes it from the store.
func (e *engine) retract(names []string) error {
	for _, name := range names {
		if _, ok := e.modules.Get(name); !ok {
			if _, err := e.store.Compile(e.modules, name); err != nil {
				return err
			}
		}
		stats, err := e.modules.Retract(name)
		if err != nil {
			return err
		}
		if err := e.store.Delete(name); err != nil {
			return err
		}
		fmt.Printf("retracted %s (%d deleted, %d kept)\n", name, stats.Deleted, stats.Kept)
	}
	return nil
}

func (e *engine) dump(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("dump: expected one module name")
	}
	src, err := e.store.Load(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("module %s\n", src.Header.Module)
	for _, f := range src.Header.Files {
		fmt.Printf("  file %s\n", f)
	}
	for _, n := range src.Nodes {
		if named, ok := n.(persist.Named); ok {
			fmt.Printf("  %-10s %-12s %+v\n", n.NodeType(), named.NodeName(), n)
			continue
		}
		fmt.Printf("  %-10s %-12s %+v\n", n.NodeType(), "", n)
	}
	return nil
}

func (e *engine) stats() error {
	entries, err := e.store.List()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if _, err := e.store.Compile(e.modules, entry.Name); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", entry.Name, err)
		}
	}
	bs := e.brain.Stats()
	fs := e.factory.Stats()
	cs := e.store.CacheStats()
	fmt.Printf("modules:    %d\n", e.modules.Len())
	fmt.Printf("neurons:    %d (next id %d, %d deleted)\n", bs.Neurons, bs.NextID, bs.Deleted)
	fmt.Printf("temps:      %d\n", bs.Temps)
	fmt.Printf("variables:  %d\n", e.modules.Compiler().Vars().Len())
	fmt.Printf("orphans:    %d\n", e.modules.Compiler().Orphans())
	fmt.Printf("processors: %d created, %d reused, %d pooled\n", fs.Created, fs.Reused, fs.Pooled)
	fmt.Printf("cache:      %d hits, %d misses, %d entries\n", cs.Hits, cs.Misses, cs.Len)
	return nil
}

// ---------------------------------------------------------------------------
// Sample module
// ---------------------------------------------------------------------------

func writeSample(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("sample: expected an output file")
	}
	name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	src := &persist.Source{Header: persist.Header{Module: name, Files: []string{args[0]}}}
	src.Add(
		&persist.IntNode{Name: "a", Value: 20},
		&persist.IntNode{Name: "b", Value: 22},
		&persist.GlobalNode{Name: "answer", Var: "answer"},
		&persist.StatementNode{Name: "sum", Instruction: "Addition", Result: true, Args: []string{"a", "b"}},
		&persist.StatementNode{Name: "store", Instruction: "Store", Args: []string{"answer", "sum"}},
		&persist.ClusterNode{Name: "main", Meaning: "Code", Children: []string{"store"}},
	)

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := persist.Write(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
