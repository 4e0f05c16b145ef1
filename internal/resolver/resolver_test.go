package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exorde-labs/swarm-control/internal/capabilities"
	"github.com/exorde-labs/swarm-control/internal/intent"
	"github.com/exorde-labs/swarm-control/internal/scraperconfig"
	"github.com/exorde-labs/swarm-control/internal/topology"
)

// fixedRNG always returns the same index, for reproducible tests.
type fixedRNG struct{ n int }

func (f fixedRNG) Intn(int) int { return f.n }

func sampleTopology() *topology.Topology {
	return &topology.Topology{Blades: []topology.Node{
		{Name: "spot-1", Blade: topology.KindSpotting, Host: "10.0.0.1", Port: 9000},
		{Name: "spot-2", Blade: topology.KindSpotting, Host: "10.0.0.2", Port: 9000},
		{Name: "scraper-1", Blade: topology.KindScraper, Host: "10.0.0.3", Port: 9100},
	}}
}

func sampleCaps() capabilities.Map {
	return capabilities.Map{
		clientRepoPath: "1.0.0",
		ScraperModule:  "0.5.0",
	}
}

func TestResolveScraper_PicksDeterministicTarget(t *testing.T) {
	topo := sampleTopology()
	node, _ := topo.ByName("scraper-1")

	i, err := Resolve(context.Background(), node, sampleCaps(), topo, fixedRNG{n: 0}, scraperconfig.Static{})
	require.NoError(t, err)

	require.Equal(t, "10.0.0.3:9100", i.Host)
	require.Equal(t, topology.KindScraper, i.Blade)
	require.Equal(t, "1.0.0", i.Version)

	params, ok := i.Params.(intent.ScraperParams)
	require.True(t, ok)
	require.Equal(t, "10.0.0.1:9000", params.Target)
	require.Equal(t, ScraperModule, params.Module)
	require.Equal(t, "0.5.0", params.Version)
	require.Equal(t, "BITCOIN", params.Keyword)
}

func TestResolveScraper_NoSpottingHost(t *testing.T) {
	topo := &topology.Topology{Blades: []topology.Node{
		{Name: "scraper-1", Blade: topology.KindScraper, Host: "10.0.0.3", Port: 9100},
	}}
	node, _ := topo.ByName("scraper-1")

	_, err := Resolve(context.Background(), node, sampleCaps(), topo, fixedRNG{n: 0}, scraperconfig.Static{})
	require.Error(t, err)
}

func TestResolveScraper_MissingCapability(t *testing.T) {
	topo := sampleTopology()
	node, _ := topo.ByName("scraper-1")
	caps := capabilities.Map{clientRepoPath: "1.0.0"} // missing ScraperModule

	_, err := Resolve(context.Background(), node, caps, topo, fixedRNG{n: 0}, scraperconfig.Static{})
	require.Error(t, err)
}

func TestResolveSpotting_EmptyParams(t *testing.T) {
	topo := sampleTopology()
	node, _ := topo.ByName("spot-1")

	i, err := Resolve(context.Background(), node, sampleCaps(), topo, fixedRNG{n: 0}, scraperconfig.Static{})
	require.NoError(t, err)
	require.Equal(t, intent.SpottingParams{}, i.Params)
}

func TestResolveMonitor_EmptyParams(t *testing.T) {
	topo := &topology.Topology{Blades: []topology.Node{
		{Name: "mon-1", Blade: topology.KindMonitor, Host: "10.0.0.9", Port: 9200},
	}}
	node, _ := topo.ByName("mon-1")

	i, err := Resolve(context.Background(), node, sampleCaps(), topo, fixedRNG{n: 0}, scraperconfig.Static{})
	require.NoError(t, err)
	require.Equal(t, intent.MonitorParams{}, i.Params)
	require.Equal(t, topology.KindMonitor, i.Blade)
}

func TestResolveScraper_CustomKeywordFromCollaborator(t *testing.T) {
	topo := sampleTopology()
	node, _ := topo.ByName("scraper-1")

	i, err := Resolve(context.Background(), node, sampleCaps(), topo, fixedRNG{n: 1}, scraperconfig.Static{KeywordText: "ETHEREUM"})
	require.NoError(t, err)
	params := i.Params.(intent.ScraperParams)
	require.Equal(t, "ETHEREUM", params.Keyword)
	require.Equal(t, "10.0.0.2:9000", params.Target)
}
