package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTopology(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeTopology(t, `
blades:
  - name: orch-1
    blade: orchestrator
    managed: true
    host: 127.0.0.1
    port: 9000
    venv: /tmp/venvs/orch-1
    static_cluster_parameters:
      monitor_interval_in_seconds: 30
      database_provider: sqlite
      db:
        path: /tmp/catalog.db
  - name: spot-1
    blade: spotting
    managed: true
    host: 127.0.0.1
    port: 9001
    venv: /tmp/venvs/spot-1
    static_cluster_parameters:
      monitor_interval_in_seconds: 30
      database_provider: sqlite
      db:
        path: /tmp/catalog.db
`)

	topo, err := Load(path)
	require.NoError(t, err)
	require.Len(t, topo.Blades, 2)
	require.Equal(t, 10, topo.Blades[0].StaticClusterParameters.CacheThreshold())
	require.True(t, topo.HasHost("127.0.0.1:9001"))
	require.False(t, topo.HasHost("127.0.0.1:9999"))

	orchestrators := topo.ByKind(KindOrchestrator)
	require.Len(t, orchestrators, 1)
	require.Equal(t, "orch-1", orchestrators[0].Name)

	node, ok := topo.ByName("spot-1")
	require.True(t, ok)
	require.Equal(t, KindSpotting, node.Blade)
}

func TestLoad_EmptyBlades(t *testing.T) {
	path := writeTopology(t, "blades: []\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_DuplicateNames(t *testing.T) {
	path := writeTopology(t, `
blades:
  - name: dup
    blade: scraper
    host: h1
    port: 1
    static_cluster_parameters:
      monitor_interval_in_seconds: 1
      database_provider: sqlite
  - name: dup
    blade: scraper
    host: h2
    port: 2
    static_cluster_parameters:
      monitor_interval_in_seconds: 1
      database_provider: sqlite
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_UnknownKind(t *testing.T) {
	path := writeTopology(t, `
blades:
  - name: weird
    blade: teleporter
    host: h1
    port: 1
    static_cluster_parameters:
      monitor_interval_in_seconds: 1
      database_provider: sqlite
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_CustomCacheThreshold(t *testing.T) {
	path := writeTopology(t, `
blades:
  - name: orch-1
    blade: orchestrator
    host: h1
    port: 1
    static_cluster_parameters:
      monitor_interval_in_seconds: 1
      database_provider: sqlite
      github_cache_threshold_minutes: 42
`)
	topo, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 42, topo.Blades[0].StaticClusterParameters.CacheThreshold())
}
