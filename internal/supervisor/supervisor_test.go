package supervisor

import (
	"context"
	"io"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exorde-labs/swarm-control/internal/logging"
	"github.com/exorde-labs/swarm-control/internal/topology"
)

func TestSupervisor_RespawnsOnExit(t *testing.T) {
	topo := &topology.Topology{Blades: []topology.Node{
		{Name: "scraper-1", Blade: topology.KindScraper, Managed: true, Host: "127.0.0.1", Port: 8100},
	}}

	var spawnCount int32
	sup := &Supervisor{
		Topo:   topo,
		Logger: logging.New(io.Discard, "test", false),
		newCmd: func(node topology.Node) (*exec.Cmd, error) {
			atomic.AddInt32(&spawnCount, 1)
			return exec.Command("sh", "-c", "exit 7"), nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = sup.Run(ctx)
		close(done)
	}()

	<-done
	require.GreaterOrEqual(t, atomic.LoadInt32(&spawnCount), int32(2), "expected at least one respawn within the timeout window")
}

func TestSupervisor_NoChildForUnmanagedNodes(t *testing.T) {
	topo := &topology.Topology{Blades: []topology.Node{
		{Name: "spotting-1", Blade: topology.KindSpotting, Managed: false, Host: "127.0.0.1", Port: 9000},
	}}

	var spawned bool
	sup := &Supervisor{
		Topo:   topo,
		Logger: logging.New(io.Discard, "test", false),
		newCmd: func(node topology.Node) (*exec.Cmd, error) {
			spawned = true
			return exec.Command("sh", "-c", "exit 0"), nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, sup.Run(ctx))
	require.False(t, spawned)
}

func TestSupervisor_ShutdownTerminatesLongRunningChild(t *testing.T) {
	topo := &topology.Topology{Blades: []topology.Node{
		{Name: "orch-1", Blade: topology.KindOrchestrator, Managed: true, Host: "127.0.0.1", Port: 8000},
	}}

	sup := &Supervisor{
		Topo:   topo,
		Logger: logging.New(io.Discard, "test", false),
		newCmd: func(node topology.Node) (*exec.Cmd, error) {
			return exec.Command("sleep", "30"), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sup.Run(ctx)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down its child within 5s of cancellation")
	}
}
