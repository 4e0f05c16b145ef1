// Package resolver implements the Resolver Registry of SPEC_FULL.md §4.2: a
// pure mapping from blade kind to a resolver function computing the Intent
// for one node.
package resolver

import (
	"context"
	"fmt"

	"github.com/exorde-labs/swarm-control/internal/capabilities"
	"github.com/exorde-labs/swarm-control/internal/clierr"
	"github.com/exorde-labs/swarm-control/internal/intent"
	"github.com/exorde-labs/swarm-control/internal/scraperconfig"
	"github.com/exorde-labs/swarm-control/internal/topology"
)

// ScraperModule is the hard-coded module path the scraper resolver assigns,
// per SPEC_FULL.md §4.2/§9 ("preserve the literal values and centralize them
// as constants").
const ScraperModule = "exorde-labs/rss007d0675444aa13fc"

// RNG is the injectable source of randomness the scraper resolver uses to
// pick a spotting target, so tests can pin the choice (§4.2, §9).
type RNG interface {
	Intn(n int) int
}

// Func resolves the Intent for one node.
type Func func(ctx context.Context, node topology.Node, caps capabilities.Map, topo *topology.Topology, rng RNG, scraperConfig scraperconfig.Provider) (intent.Intent, error)

// Registry is the pure kind -> resolver mapping. The table form is chosen
// over a type-switch to match the source's dynamic string-keyed dispatch
// more literally (§9).
var Registry = map[topology.BladeKind]Func{
	topology.KindScraper:      resolveScraper,
	topology.KindSpotting:     resolveSpotting,
	topology.KindOrchestrator: resolveOrchestrator,
	topology.KindMonitor:      resolveMonitor,
}

// Resolve looks up and invokes the resolver registered for node.Blade.
func Resolve(ctx context.Context, node topology.Node, caps capabilities.Map, topo *topology.Topology, rng RNG, scraperConfig scraperconfig.Provider) (intent.Intent, error) {
	fn, ok := Registry[node.Blade]
	if !ok {
		return intent.Intent{}, fmt.Errorf("resolver: no resolver registered for blade kind %q", node.Blade)
	}
	return fn(ctx, node, caps, topo, rng, scraperConfig)
}

func clientVersion(caps capabilities.Map) (string, error) {
	v, ok := caps.Lookup(clientRepoPath)
	if !ok {
		return "", fmt.Errorf("%w: %s", clierr.ErrMissingCapability, clientRepoPath)
	}
	return v, nil
}

// clientRepoPath mirrors catalog.BaseClientRepository without importing the
// catalog package, keeping resolver dependent only on the capabilities map it
// is handed (the pure-function contract of §4.2).
const clientRepoPath = "exorde-labs/exorde-swarm-client"

func resolveScraper(ctx context.Context, node topology.Node, caps capabilities.Map, topo *topology.Topology, rng RNG, scraperConfig scraperconfig.Provider) (intent.Intent, error) {
	version, err := clientVersion(caps)
	if err != nil {
		return intent.Intent{}, err
	}

	moduleVersion, ok := caps.Lookup(ScraperModule)
	if !ok {
		return intent.Intent{}, fmt.Errorf("%w: %s", clierr.ErrMissingCapability, ScraperModule)
	}

	spottingNodes := topo.ByKind(topology.KindSpotting)
	if len(spottingNodes) == 0 {
		return intent.Intent{}, fmt.Errorf("%w", clierr.ErrNoSpottingHost)
	}
	target := spottingNodes[rng.Intn(len(spottingNodes))].HostPort()

	keyword := scraperconfig.DefaultKeyword
	if scraperConfig != nil {
		if kw, err := scraperConfig.Keyword(ctx); err == nil && kw != "" {
			keyword = kw
		}
	}

	params := intent.ScraperParams{
		Keyword:         keyword,
		ExtraParameters: map[string]any{},
		Target:          target,
		Module:          ScraperModule,
		Version:         moduleVersion,
	}
	return intent.New(node.HostPort(), topology.KindScraper, version, params)
}

func resolveSpotting(_ context.Context, node topology.Node, caps capabilities.Map, _ *topology.Topology, _ RNG, _ scraperconfig.Provider) (intent.Intent, error) {
	version, err := clientVersion(caps)
	if err != nil {
		return intent.Intent{}, err
	}
	return intent.New(node.HostPort(), topology.KindSpotting, version, intent.SpottingParams{})
}

func resolveOrchestrator(_ context.Context, node topology.Node, caps capabilities.Map, _ *topology.Topology, _ RNG, _ scraperconfig.Provider) (intent.Intent, error) {
	version, err := clientVersion(caps)
	if err != nil {
		return intent.Intent{}, err
	}
	return intent.New(node.HostPort(), topology.KindOrchestrator, version, intent.OrchestratorParams{})
}

// resolveMonitor is this expansion's addition (§4.2, §9 Open Question
// decisions): the distilled spec's resolver table never names monitor even
// though the topology kind enum and §3.2 both include it.
func resolveMonitor(_ context.Context, node topology.Node, caps capabilities.Map, _ *topology.Topology, _ RNG, _ scraperconfig.Provider) (intent.Intent, error) {
	version, err := clientVersion(caps)
	if err != nil {
		return intent.Intent{}, err
	}
	return intent.New(node.HostPort(), topology.KindMonitor, version, intent.MonitorParams{})
}
