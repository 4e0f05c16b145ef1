package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/exorde-labs/swarm-control/internal/logging"
	"github.com/exorde-labs/swarm-control/internal/topology"
)

// respawnDelay is the fixed 1s pause between a child exit and the next
// spawn attempt (§4.5; "no exponential backoff is required for the core
// spec").
const respawnDelay = time.Second

// Supervisor spawns and keeps alive one child process per managed node,
// per §4.5. At most one live child exists per managed node at any time; no
// child is spawned for unmanaged nodes.
type Supervisor struct {
	ConfigPath string
	Topo       *topology.Topology
	JLog       bool
	NoVenv     bool
	Logger     *logging.Logger

	// newCmd builds the *exec.Cmd for one spawn attempt. Defaults to
	// exec.Command(InterpreterFor(node), ChildArgs(...)...); tests
	// substitute a fake command (e.g. "sh -c") to exercise the
	// spawn/respawn loop without a real blade binary.
	newCmd func(node topology.Node) (*exec.Cmd, error)

	wg sync.WaitGroup
}

// Run ensures every managed node's isolated environment, then spawns and
// supervises one child per managed node until ctx is cancelled. On
// cancellation every child is signaled and joined before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	managed := managedNodes(s.Topo)
	if len(managed) == 0 {
		s.Logger.Warn("supervisor: topology has no managed blades, nothing to supervise")
		return nil
	}

	for _, node := range managed {
		if !s.NoVenv {
			if err := EnsureEnv(ctx, node, s.JLog, s.Logger); err != nil {
				return fmt.Errorf("supervisor: materialize env for %s: %w", node.Name, err)
			}
		}
	}

	for _, node := range managed {
		s.wg.Add(1)
		go s.superviseNode(ctx, node)
	}

	s.wg.Wait()
	return nil
}

func managedNodes(topo *topology.Topology) []topology.Node {
	var out []topology.Node
	for _, n := range topo.Blades {
		if n.Managed {
			out = append(out, n)
		}
	}
	return out
}

// superviseNode runs the spawn -> wait -> respawn loop for one node until
// ctx is cancelled.
func (s *Supervisor) superviseNode(ctx context.Context, node topology.Node) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		exitCode, spawnErr := s.runOnce(ctx, node)
		if spawnErr != nil {
			s.Logger.Error("supervisor: failed to spawn %s: %v", node.Name, spawnErr)
		} else {
			s.Logger.Warn("supervisor: child %s exited with code %d", node.Name, exitCode)
		}

		if ctx.Err() != nil {
			return
		}

		select {
		case <-time.After(respawnDelay):
		case <-ctx.Done():
			return
		}
	}
}

// runOnce spawns one child for node and waits for it to exit (or ctx to be
// cancelled, in which case the child is signaled and joined before
// returning). Child stdout/stderr is captured line-by-line and forwarded to
// the supervisor's logger at INFO (§4.5).
func (s *Supervisor) runOnce(ctx context.Context, node topology.Node) (exitCode int, spawnErr error) {
	build := s.newCmd
	if build == nil {
		build = s.defaultCmd
	}
	cmd, err := build(node)
	if err != nil {
		return 0, err
	}
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start: %w", err)
	}

	var pipeWG sync.WaitGroup
	pipeWG.Add(2)
	go s.forwardLines(node.Name, stdout, &pipeWG)
	go s.forwardLines(node.Name, stderr, &pipeWG)

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Signal(syscall.SIGTERM)
		<-waitDone
	case err := <-waitDone:
		_ = err // exit code read via ProcessState below regardless of err
	}

	pipeWG.Wait()

	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	return -1, nil
}

// defaultCmd is the real spawn path: resolve the interpreter (venv or
// self-executable) and the serialized --as/--node-json/--topology-json argv
// (§4.5/§6).
func (s *Supervisor) defaultCmd(node topology.Node) (*exec.Cmd, error) {
	interpreter, err := InterpreterFor(node, s.NoVenv)
	if err != nil {
		return nil, fmt.Errorf("resolve interpreter: %w", err)
	}
	args, err := ChildArgs(s.ConfigPath, s.Topo, node, s.JLog)
	if err != nil {
		return nil, fmt.Errorf("build child args: %w", err)
	}
	return exec.Command(interpreter, args...), nil
}

func (s *Supervisor) forwardLines(nodeName string, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.Logger.Info("%s: %s", nodeName, scanner.Text())
	}
}
