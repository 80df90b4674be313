// Command loom manages workflow graph definitions and checkpointed runs in a
// project's .loom directory.
//
// Subcommands:
//
//	loom init                                    create the .loom directory
//	loom check <definition.yaml|definition.hcl>  validate a definition file
//	loom dryrun <definition>                     execute a definition with no-op tasks
//	loom runs [-dir <store>]                     list checkpointed runs
//	loom pending [-dir <store>] -run <id>        show a run's pending nodes
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loomworks/loom/checkpoint"
	"github.com/loomworks/loom/engine"
	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	case "dryrun":
		err = runDry(os.Args[2:])
	case "runs":
		err = runList(os.Args[2:])
	case "pending":
		err = runPending(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "loom: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: loom <init|check|dryrun|runs|pending> [flags]")
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := config.Init(dir); err != nil {
		return err
	}
	fmt.Printf("initialized %s\n", filepath.Join(dir, config.LoomDir))
	return nil
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := fs.Arg(0)
	if path == "" {
		return fmt.Errorf("check: a definition file is required")
	}
	def, err := loadDefinition(path)
	if err != nil {
		return err
	}
	g, err := def.CompileWith(stubRegistry(def))
	if err != nil {
		var defErr *graph.DefinitionError
		if errors.As(err, &defErr) {
			for _, problem := range defErr.Problems {
				fmt.Fprintf(os.Stderr, "  %s\n", problem)
			}
		}
		return fmt.Errorf("check: %s is invalid", path)
	}
	fmt.Printf("ok: %s (%d nodes, entry %s)\n", def.Name, len(g.NodeIDs()), g.Entry())
	return nil
}

// runDry executes a definition with no-op tasks against the project's
// checkpoint store. Routers terminate at the first conditional, so this
// exercises the static topology, merge policies, and persistence only.
func runDry(args []string) error {
	fs := flag.NewFlagSet("dryrun", flag.ExitOnError)
	runID := fs.String("run", "", "run id (generated when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := fs.Arg(0)
	if path == "" {
		return fmt.Errorf("dryrun: a definition file is required")
	}
	def, err := loadDefinition(path)
	if err != nil {
		return err
	}
	g, err := def.CompileWith(stubRegistry(def))
	if err != nil {
		return fmt.Errorf("dryrun: %w", err)
	}
	projectDir, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(projectDir)
	if err != nil {
		return err
	}
	logger, closer, err := logging.Open(cfg.LogDir())
	if err != nil {
		return err
	}
	defer closer.Close()
	eng, err := engine.New(g, checkpoint.NewFileStore(cfg.CheckpointDir()),
		engine.WithLogger(logger),
		engine.WithMaxSteps(cfg.Settings.MaxSteps),
	)
	if err != nil {
		return err
	}
	result, err := eng.Invoke(context.Background(), *runID, def.Defaults)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", result.RunID, result.Status)
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dir := fs.String("dir", "", "checkpoint store directory (defaults to the project store)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	storeDir, err := resolveStoreDir(*dir)
	if err != nil {
		return err
	}
	store := checkpoint.NewFileStore(storeDir)
	runs, err := store.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}
	for _, runID := range runs {
		cp, err := store.Load(runID)
		if err != nil {
			fmt.Printf("%s\t(unreadable: %v)\n", runID, err)
			continue
		}
		status := "completed"
		if len(cp.Pending) > 0 {
			status = fmt.Sprintf("pending %d node(s)", len(cp.Pending))
		}
		fmt.Printf("%s\tstep %d\t%s\n", cp.RunID, cp.Step, status)
	}
	return nil
}

func runPending(args []string) error {
	fs := flag.NewFlagSet("pending", flag.ExitOnError)
	dir := fs.String("dir", "", "checkpoint store directory (defaults to the project store)")
	runID := fs.String("run", "", "run id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("pending: -run is required")
	}
	storeDir, err := resolveStoreDir(*dir)
	if err != nil {
		return err
	}
	store := checkpoint.NewFileStore(storeDir)
	cp, err := store.Load(*runID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return fmt.Errorf("pending: run %s has no checkpoint", *runID)
		}
		return err
	}
	if len(cp.Pending) == 0 {
		fmt.Printf("%s: completed at step %d\n", cp.RunID, cp.Step)
		return nil
	}
	for _, node := range cp.Pending {
		fmt.Println(node)
	}
	return nil
}

// resolveStoreDir prefers an explicit -dir flag and otherwise falls back to
// the project's configured checkpoint directory.
func resolveStoreDir(flagDir string) (string, error) {
	if flagDir != "" {
		return flagDir, nil
	}
	projectDir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	cfg, err := config.Load(projectDir)
	if err != nil {
		return "", err
	}
	return cfg.CheckpointDir(), nil
}

func loadDefinition(path string) (graph.Definition, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return graph.LoadDefinitionHCLFile(path)
	case ".yaml", ".yml", ".json":
		return graph.LoadDefinitionFile(path)
	default:
		return graph.Definition{}, fmt.Errorf("check: unsupported definition format %s", filepath.Ext(path))
	}
}

// stubRegistry binds every name a definition references to a placeholder so
// check validates topology without the real task functions.
func stubRegistry(def graph.Definition) *graph.Registry {
	reg := graph.NewRegistry()
	noop := func(context.Context, graph.Values) (graph.Values, error) {
		return nil, nil
	}
	stop := func(context.Context, graph.Values) (graph.Decision, error) {
		return graph.Stop(), nil
	}
	tasks, routers := def.TaskNames()
	for _, name := range tasks {
		_ = reg.RegisterTask(name, noop)
	}
	for _, name := range routers {
		_ = reg.RegisterRouter(name, stop)
	}
	for _, node := range def.Nodes {
		if node.Subgraph == "" {
			continue
		}
		sub, err := stubSubgraph(node)
		if err != nil {
			continue
		}
		_ = reg.RegisterGraph(node.Subgraph, sub)
	}
	return reg
}

// stubSubgraph compiles a one-node graph whose schema covers the declared
// projections, enough for the parent's compile-time checks.
func stubSubgraph(node graph.NodeDef) (*graph.Graph, error) {
	schema := graph.Schema{}
	for _, key := range node.Inputs {
		schema[key] = graph.Replace
	}
	for _, key := range node.Outputs {
		schema[key] = graph.Append
	}
	spec := graph.NewSpec(node.Subgraph, schema)
	spec.AddNode("noop", func(context.Context, graph.Values) (graph.Values, error) {
		return nil, nil
	})
	spec.AddEdge("noop", graph.End)
	spec.SetEntry("noop")
	return graph.Compile(spec)
}
