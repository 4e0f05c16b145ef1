// Package supervisor implements the Supervisor of SPEC_FULL.md §4.5: from a
// parsed topology, spawn and keep alive one isolated child process per
// managed node, restarting on exit.
package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/exorde-labs/swarm-control/internal/topology"
)

// ChildArgs builds the argv (argv[0] excluded) the supervisor uses to spawn
// the blade process for node, per §4.5/§6: the node descriptor and the full
// topology are passed as serialized JSON command-line arguments, alongside
// the config path, the blade name to morph into, and a flag selecting the
// log format.
func ChildArgs(configPath string, topo *topology.Topology, node topology.Node, jlog bool) ([]string, error) {
	nodeJSON, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("marshal node %q: %w", node.Name, err)
	}
	topoJSON, err := json.Marshal(topo)
	if err != nil {
		return nil, fmt.Errorf("marshal topology: %w", err)
	}

	args := []string{
		"--config", configPath,
		"--as", node.Name,
		"--node-json", string(nodeJSON),
		"--topology-json", string(topoJSON),
	}
	if jlog {
		args = append(args, "--jlog")
	}
	return args, nil
}

// InterpreterFor returns the executable the child should be invoked with: the
// isolated environment's interpreter at venv/bin/<self> when novenv is false
// and the environment has been materialized, or the supervisor's own
// executable (os.Executable()) when novenv is true or no venv is configured.
func InterpreterFor(node topology.Node, novenv bool) (string, error) {
	if novenv || node.Venv == "" {
		return os.Executable()
	}
	return InterpreterPath(node.Venv)
}

// ShellQuote renders argv as a shell-safe command line, the way a human would
// paste it into a terminal: each argument needing protection is wrapped in
// single quotes, with embedded single quotes escaped per POSIX shell rules.
func ShellQuote(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = shellQuoteOne(a)
	}
	return strings.Join(parts, " ")
}

func shellQuoteOne(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// PrintCmdOnly implements the "print command only" mode of §4.5/§6: print
// the exact child invocation for the named node and return without spawning
// anything. It is an error if no such node exists, or if it is unmanaged.
func PrintCmdOnly(configPath string, topo *topology.Topology, nodeName string, jlog, novenv bool) (string, error) {
	node, ok := topo.ByName(nodeName)
	if !ok {
		return "", fmt.Errorf("no blade named %q in topology", nodeName)
	}
	if !node.Managed {
		return "", fmt.Errorf("blade %q is not managed, no child is ever spawned for it", nodeName)
	}

	interpreter, err := InterpreterFor(node, novenv)
	if err != nil {
		return "", err
	}
	args, err := ChildArgs(configPath, topo, node, jlog)
	if err != nil {
		return "", err
	}

	full := append([]string{interpreter}, args...)
	return ShellQuote(full), nil
}
