// Command blade-supervisor is the control-plane process of SPEC_FULL.md §4.5
// and §6: given a static topology file, it spawns and keeps alive one
// isolated child process per managed blade, restarting on exit.
//
// The same binary also serves as the blade process itself: invoked with
// --as NAME, it skips supervision entirely and runs the Blade HTTP Shell (and,
// for the orchestrator kind, the Orchestration Loop) for that one node —
// "no parent remains" (§4.5), matching how a spawned child is itself this
// binary re-invoked with --as.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/exorde-labs/swarm-control/internal/bladeproc"
	"github.com/exorde-labs/swarm-control/internal/clierr"
	"github.com/exorde-labs/swarm-control/internal/logging"
	"github.com/exorde-labs/swarm-control/internal/supervisor"
	"github.com/exorde-labs/swarm-control/internal/topology"
	"github.com/exorde-labs/swarm-control/internal/ui"
)

const defaultConfigPath = "topology/standalone.yaml"

func main() {
	os.Exit(run(os.Args[1:]))
}

// normalizeCmdAlias rewrites the spec's "-cmd NAME" short form (§6) into
// "--print_cmd_only NAME" before pflag sees it: pflag's single-dash shorthand
// is strictly one rune, so "-cmd" would otherwise be parsed as the -c
// (--config) shorthand with the value "md".
func normalizeCmdAlias(argv []string) []string {
	out := make([]string, 0, len(argv))
	for _, a := range argv {
		if a == "-cmd" {
			out = append(out, "--print_cmd_only")
			continue
		}
		out = append(out, a)
	}
	return out
}

func run(argv []string) int {
	argv = normalizeCmdAlias(argv)

	fs := flag.NewFlagSet("blade-supervisor", flag.ContinueOnError)
	fs.SetInterspersed(false)

	var (
		configPath   = fs.StringP("config", "c", defaultConfigPath, "topology file")
		printCmdOnly = fs.String("print_cmd_only", "", "print the child command for NAME and exit (alias: -cmd)")
		jlog         = fs.Bool("jlog", false, "emit JSON log records instead of human text")
		as           = fs.String("as", "", "morph this process into blade NAME")
		novenv       = fs.Bool("novenv", false, "reuse the current interpreter/environment; do not materialize an isolated one")
		nodeJSON     = fs.String("node-json", "", "internal: serialized node descriptor for a spawned child")
		topologyJSON = fs.String("topology-json", "", "internal: serialized topology for a spawned child")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `blade-supervisor - exorde swarm control plane supervisor

Usage:
  blade-supervisor [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  blade-supervisor -c topology/standalone.yaml
  blade-supervisor -c topology/standalone.yaml -cmd scraper-1
  blade-supervisor -c topology/standalone.yaml --as scraper-1 --jlog
`)
	}

	if err := fs.Parse(argv); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	ui.InitColors(*jlog)

	topo, err := resolveTopology(*configPath, *topologyJSON)
	if err != nil {
		clierr.FatalError(err, *jlog)
		return 1
	}

	if *printCmdOnly != "" {
		cmdline, err := supervisor.PrintCmdOnly(*configPath, topo, *printCmdOnly, *jlog, *novenv)
		if err != nil {
			clierr.FatalError(err, *jlog)
			return 1
		}
		fmt.Println(cmdline)
		return 0
	}

	if *as != "" {
		return runAsBlade(topo, *as, *nodeJSON, *jlog)
	}

	return runSupervisor(*configPath, topo, *jlog, *novenv)
}

// resolveTopology loads the topology either from the serialized
// --topology-json flag a spawned child receives, or (operator invocations)
// from the config file on disk.
func resolveTopology(configPath, topologyJSON string) (*topology.Topology, error) {
	if topologyJSON != "" {
		var topo topology.Topology
		if err := json.Unmarshal([]byte(topologyJSON), &topo); err != nil {
			return nil, clierr.NewConfigError("cannot parse --topology-json", "this flag is set by the supervisor itself; do not pass it by hand", err)
		}
		return &topo, nil
	}
	return topology.Load(configPath)
}

func runAsBlade(topo *topology.Topology, nodeName, nodeJSON string, jlog bool) int {
	var node topology.Node
	if nodeJSON != "" {
		if err := json.Unmarshal([]byte(nodeJSON), &node); err != nil {
			clierr.FatalError(clierr.NewConfigError("cannot parse --node-json", "this flag is set by the supervisor itself; do not pass it by hand", err), jlog)
			return 1
		}
	} else {
		n, ok := topo.ByName(nodeName)
		if !ok {
			clierr.FatalError(fmt.Errorf("%w: no blade named %q in topology", clierr.ErrConfig, nodeName), jlog)
			return 1
		}
		node = n
	}

	logger := logging.New(os.Stdout, node.HostPort(), jlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyShutdown(cancel, logger)

	if err := bladeproc.Run(ctx, bladeproc.Config{Node: node, Topo: topo, Logger: logger}); err != nil {
		logger.Critical("blade %s exited with error: %v", node.Name, err)
		return 1
	}
	return 0
}

func runSupervisor(configPath string, topo *topology.Topology, jlog, novenv bool) int {
	logger := logging.New(os.Stdout, "supervisor", jlog)
	ui.Header(fmt.Sprintf("supervising %d managed blade(s)", countManaged(topo)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyShutdown(cancel, logger)

	sup := &supervisor.Supervisor{
		ConfigPath: configPath,
		Topo:       topo,
		JLog:       jlog,
		NoVenv:     novenv,
		Logger:     logger,
	}
	if err := sup.Run(ctx); err != nil {
		logger.Critical("supervisor exited with error: %v", err)
		return 1
	}
	return 0
}

func countManaged(topo *topology.Topology) int {
	n := 0
	for _, b := range topo.Blades {
		if b.Managed {
			n++
		}
	}
	return n
}

// notifyShutdown cancels ctx's cancel func on SIGINT/SIGTERM, logging the
// signal the way the teacher's cmd/cie/serve.go does (§4.5: "On SIGINT /
// equivalent, terminate all children, wait for each, then exit").
func notifyShutdown(cancel context.CancelFunc, logger *logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received %s, shutting down", sig)
		cancel()
	}()
}
