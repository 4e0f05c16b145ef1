// Package orchestrator implements the Orchestration Loop of SPEC_FULL.md
// §4.3: a periodic think-then-commit cycle that assembles capabilities from
// the Version Catalog, resolves every topology node, and POSTs the resulting
// Intents to each peer's root endpoint.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/exorde-labs/swarm-control/internal/capabilities"
	"github.com/exorde-labs/swarm-control/internal/intent"
	"github.com/exorde-labs/swarm-control/internal/logging"
	"github.com/exorde-labs/swarm-control/internal/resolver"
	"github.com/exorde-labs/swarm-control/internal/scraperconfig"
	"github.com/exorde-labs/swarm-control/internal/topology"
)

// Poster delivers an Intent to a node and reports the outcome. The default
// implementation (HTTPPoster) issues a real HTTP POST; tests substitute a
// fake.
type Poster interface {
	Post(ctx context.Context, node topology.Node, i intent.Intent) error
}

// HTTPPoster is the default Poster: an HTTP POST to http://host:port/ with a
// per-call timeout.
type HTTPPoster struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPPoster builds an HTTPPoster with the spec's recommended 10s
// per-commit timeout (§4.3).
func NewHTTPPoster() *HTTPPoster {
	return &HTTPPoster{Client: &http.Client{}, Timeout: 10 * time.Second}
}

func (p *HTTPPoster) Post(ctx context.Context, node topology.Node, i intent.Intent) error {
	body, err := json.Marshal(i)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/", node.HostPort())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", node.HostPort(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post to %s: status %d", node.HostPort(), resp.StatusCode)
	}
	return nil
}

// Metrics holds the Prometheus collectors the loop updates each tick, per
// SPEC_FULL.md §2.2/§4.3.
type Metrics struct {
	TickDuration prometheus.Histogram
	Commits      *prometheus.CounterVec
	CatalogSync  *prometheus.CounterVec
}

// NewMetrics registers and returns a Metrics bundle on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "orchestrator_tick_duration_seconds",
			Help: "Duration of one orchestration think+commit tick.",
		}),
		Commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_commits_total",
			Help: "Intent commit attempts by outcome.",
		}, []string{"outcome"}),
		CatalogSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_catalog_sync_total",
			Help: "Catalog sync invocations by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.TickDuration, m.Commits, m.CatalogSync)
	return m
}

// Store is the catalog surface the loop needs: sync, then read back the
// latest valid tags.
type Store interface {
	Sync(ctx context.Context, useCache bool, thresholdMinutes int)
	LatestValidTags(ctx context.Context) ([]RepoVersion, error)
}

// RepoVersion matches catalog.RepositoryVersion's fields; kept as a local
// type so this package doesn't import catalog, avoiding a dependency on its
// sqlite driver for orchestrator unit tests.
type RepoVersion struct {
	RepositoryPath string
	TagName        string
}

// Loop drives the think -> commit -> sleep cycle.
type Loop struct {
	Topo          *topology.Topology
	Store         Store
	ScraperConfig scraperconfig.Provider
	RNG           resolver.RNG
	Poster        Poster
	Logger        *logging.Logger
	Metrics       *Metrics

	CacheThresholdMinutes int
	TickInterval          time.Duration
}

// Run drives ticks until ctx is cancelled. It always waits at least 1s
// before the first tick (§4.3 step 1: startup grace for peers).
func (l *Loop) Run(ctx context.Context) {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
		return
	}

	for {
		l.tick(ctx)

		sleep := l.TickInterval - time.Second
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if l.Metrics != nil {
			l.Metrics.TickDuration.Observe(time.Since(start).Seconds())
		}
	}()

	l.Store.Sync(ctx, true, l.CacheThresholdMinutes)

	versions, err := l.Store.LatestValidTags(ctx)
	if err != nil {
		l.Logger.Error("orchestrator: catalog error, aborting tick: %v", err)
		l.observeCatalogSync("error")
		return
	}
	l.observeCatalogSync("ok")

	caps := make(capabilities.Map, len(versions))
	for _, v := range versions {
		caps[v.RepositoryPath] = v.TagName
	}

	type resolved struct {
		node   topology.Node
		intent intent.Intent
	}
	var toCommit []resolved

	for _, node := range l.Topo.Blades {
		i, err := resolver.Resolve(ctx, node, caps, l.Topo, l.RNG, l.ScraperConfig)
		if err != nil {
			l.Logger.Warn("orchestrator: skipping node %s: %v", node.Name, err)
			continue
		}
		toCommit = append(toCommit, resolved{node: node, intent: i})
	}

	var wg sync.WaitGroup
	for _, r := range toCommit {
		wg.Add(1)
		go func(r resolved) {
			defer wg.Done()
			if err := l.Poster.Post(ctx, r.node, r.intent); err != nil {
				l.Logger.Warn("orchestrator: commit to %s failed: %v", r.node.HostPort(), err)
				l.observeCommit("failure")
				return
			}
			l.observeCommit("success")
		}(r)
	}
	wg.Wait()
}

func (l *Loop) observeCommit(outcome string) {
	if l.Metrics != nil {
		l.Metrics.Commits.WithLabelValues(outcome).Inc()
	}
}

func (l *Loop) observeCatalogSync(outcome string) {
	if l.Metrics != nil {
		l.Metrics.CatalogSync.WithLabelValues(outcome).Inc()
	}
}
