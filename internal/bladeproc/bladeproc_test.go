package bladeproc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exorde-labs/swarm-control/internal/logging"
	"github.com/exorde-labs/swarm-control/internal/monitor"
	"github.com/exorde-labs/swarm-control/internal/topology"
)

func runBlade(t *testing.T, node topology.Node, extra func(*Config)) (stop func()) {
	t.Helper()

	topo := &topology.Topology{Blades: []topology.Node{node}}
	logger := logging.New(io.Discard, node.HostPort(), false)

	cfg := Config{Node: node, Topo: topo, Logger: logger}
	if extra != nil {
		extra(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	// Give the HTTP server a moment to start listening.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + node.HostPort() + "/")
		if err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("blade process did not shut down in time")
		}
	}
}

func TestRun_ScraperKindEchoesDescriptorOnUnhandledIntent(t *testing.T) {
	node := topology.Node{Name: "scraper-1", Blade: topology.KindScraper, Host: "127.0.0.1", Port: 18471}
	stop := runBlade(t, node, nil)
	defer stop()

	resp, err := http.Get("http://127.0.0.1:18471/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	require.Contains(t, snapshot, "blade")

	postResp, err := http.Post("http://127.0.0.1:18471/", "application/json", nil)
	require.NoError(t, err)
	defer postResp.Body.Close()
	require.Equal(t, http.StatusOK, postResp.StatusCode)
}

func TestRun_MonitorKindReportsFollowingState(t *testing.T) {
	node := topology.Node{Name: "monitor-1", Blade: topology.KindMonitor, Host: "127.0.0.1", Port: 18472}
	stop := runBlade(t, node, func(cfg *Config) {
		cfg.Monitor = monitor.NullSource{}
	})
	defer stop()

	resp, err := http.Get("http://127.0.0.1:18472/")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snapshot map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	require.Equal(t, true, snapshot["following_logs"])
}

func TestRun_OrchestratorKindServesShellAndShutsDownCleanly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	node := topology.Node{
		Name:  "orch-1",
		Blade: topology.KindOrchestrator,
		Host:  "127.0.0.1",
		Port:  18473,
		StaticClusterParameters: topology.StaticClusterParameters{
			MonitorIntervalSeconds: 3600,
			DatabaseProvider:       "sqlite",
			DB:                     topology.DBParams{"path": dbPath},
		},
	}
	stop := runBlade(t, node, nil)
	// Stop promptly, well inside the loop's 1s startup grace, so the test
	// never reaches a real network sync call.
	stop()

	resp, err := http.Get("http://127.0.0.1:18473/metrics")
	require.Error(t, err, "server should already be shut down")
	_ = resp
}
