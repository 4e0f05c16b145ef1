package supervisor

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exorde-labs/swarm-control/internal/topology"
)

func testTopology() *topology.Topology {
	return &topology.Topology{Blades: []topology.Node{
		{Name: "orch-1", Blade: topology.KindOrchestrator, Managed: true, Host: "10.0.0.1", Port: 8000, Venv: ""},
		{Name: "scraper-1", Blade: topology.KindScraper, Managed: true, Host: "10.0.0.2", Port: 8100},
		{Name: "spotting-1", Blade: topology.KindSpotting, Managed: false, Host: "10.0.0.3", Port: 9000},
	}}
}

func TestShellQuote_PlainArgsUnquoted(t *testing.T) {
	require.Equal(t, "--config topology/standalone.yaml --as scraper-1",
		ShellQuote([]string{"--config", "topology/standalone.yaml", "--as", "scraper-1"}))
}

func TestShellQuote_QuotesSpecialChars(t *testing.T) {
	got := ShellQuote([]string{"--node-json", `{"name":"o's","blade":"scraper"}`})
	require.Equal(t, `--node-json '{"name":"o'\''s","blade":"scraper"}'`, got)
}

func TestChildArgs_RoundTripsNodeAndTopology(t *testing.T) {
	topo := testTopology()
	node := topo.Blades[1]

	args, err := ChildArgs("topology/standalone.yaml", topo, node, true)
	require.NoError(t, err)

	require.Equal(t, []string{"--config", "topology/standalone.yaml"}, args[0:2])
	require.Equal(t, []string{"--as", "scraper-1"}, args[2:4])
	require.Equal(t, "--jlog", args[len(args)-1])

	// The node-json flag value must decode back to an equivalent node.
	idx := indexOf(args, "--node-json")
	require.GreaterOrEqual(t, idx, 0)
	var decoded topology.Node
	require.NoError(t, json.Unmarshal([]byte(args[idx+1]), &decoded))
	require.Equal(t, node.Name, decoded.Name)
	require.Equal(t, node.HostPort(), decoded.HostPort())

	tidx := indexOf(args, "--topology-json")
	require.GreaterOrEqual(t, tidx, 0)
	var decodedTopo topology.Topology
	require.NoError(t, json.Unmarshal([]byte(args[tidx+1]), &decodedTopo))
	require.Len(t, decodedTopo.Blades, 3)
}

func TestChildArgs_OmitsJLogWhenDisabled(t *testing.T) {
	topo := testTopology()
	args, err := ChildArgs("c.yaml", topo, topo.Blades[0], false)
	require.NoError(t, err)
	require.NotContains(t, args, "--jlog")
}

func TestPrintCmdOnly_UnknownNodeErrors(t *testing.T) {
	_, err := PrintCmdOnly("c.yaml", testTopology(), "nope", false, true)
	require.Error(t, err)
}

func TestPrintCmdOnly_UnmanagedNodeErrors(t *testing.T) {
	_, err := PrintCmdOnly("c.yaml", testTopology(), "spotting-1", false, true)
	require.ErrorContains(t, err, "not managed")
}

func TestPrintCmdOnly_ManagedNodeWithNovenvUsesSelfExecutable(t *testing.T) {
	cmdline, err := PrintCmdOnly("topology/standalone.yaml", testTopology(), "scraper-1", false, true)
	require.NoError(t, err)
	self, err := os.Executable()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(cmdline, ShellQuote([]string{self})+" "))
	require.Contains(t, cmdline, "--as scraper-1")
	require.Contains(t, cmdline, "--config topology/standalone.yaml")
}

func indexOf(ss []string, v string) int {
	for i, s := range ss {
		if s == v {
			return i
		}
	}
	return -1
}
