// Command flowforge validates and runs workflow definition files.
//
//	flowforge validate workflow.yaml
//	flowforge run workflow.yaml --input '{"ticket":"..."}'
//	flowforge run workflow.yaml --config config.yaml --timeout 10m
//	flowforge version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge"
	"github.com/flowforge-ai/flowforge/config"
	"github.com/flowforge-ai/flowforge/graph"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "validate":
		err = runValidate(os.Args[2:])
	case "run":
		err = runWorkflow(os.Args[2:])
	case "version":
		fmt.Printf("flowforge %s\n", flowforge.Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage:
  flowforge validate <workflow file>          check a workflow definition
  flowforge run <workflow file> [flags]       execute a workflow
  flowforge version                           print the version

run flags:
  --config <file>    configuration file (YAML)
  --input <value>    initial input, parsed as JSON when possible
  --timeout <dur>    abort waiting after this long (default 30m)`)
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("validate needs exactly one workflow file")
	}

	def, err := graph.LoadDefinition(fs.Arg(0))
	if err != nil {
		return err
	}
	g, err := def.Graph()
	if err != nil {
		return err
	}

	result := graph.Validate(g)
	if !result.Valid {
		for _, msg := range result.Errors {
			fmt.Fprintln(os.Stderr, "invalid:", msg)
		}
		os.Exit(1)
	}
	fmt.Printf("%s: valid (%d nodes, %d edges)\n", def.ID, g.Len(), len(g.Edges()))
	return nil
}

func runWorkflow(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file")
	inputRaw := fs.String("input", "", "initial input, parsed as JSON when possible")
	timeout := fs.Duration("timeout", 30*time.Minute, "abort waiting after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run needs exactly one workflow file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	eng, err := flowforge.New(cfg, flowforge.WithLogger(logger))
	if err != nil {
		return err
	}

	def, err := graph.LoadDefinition(fs.Arg(0))
	if err != nil {
		return err
	}
	g, err := def.Graph()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	runID, err := eng.Start(ctx, g, def.ID, parseInput(*inputRaw))
	if err != nil {
		return err
	}
	logger.Info("run started", zap.String("run_id", runID), zap.String("workflow_id", def.ID))

	run, err := eng.Wait(ctx, runID)
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(run.Outputs, "", "  ")
	fmt.Printf("run %s: %s\n%s\n", run.ID, run.Status, out)
	if run.Error != "" {
		return fmt.Errorf("%s", run.Error)
	}
	return nil
}

// parseInput interprets the --input value as JSON when it parses, otherwise
// as a plain string.
func parseInput(raw string) any {
	if raw == "" {
		return nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return decoded
	}
	return raw
}
