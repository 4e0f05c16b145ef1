// Package bladeproc wires together the Blade HTTP Shell, and for the
// orchestrator kind, the Orchestration Loop and Version Catalog, into one
// running blade process. This is the per-process "main" logic a supervised
// child (or a directly morphed `--as NAME` invocation) runs once it knows
// which node it is.
package bladeproc

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/exorde-labs/swarm-control/internal/catalog"
	"github.com/exorde-labs/swarm-control/internal/intent"
	"github.com/exorde-labs/swarm-control/internal/logging"
	"github.com/exorde-labs/swarm-control/internal/monitor"
	"github.com/exorde-labs/swarm-control/internal/orchestrator"
	"github.com/exorde-labs/swarm-control/internal/releasehub"
	"github.com/exorde-labs/swarm-control/internal/scraperconfig"
	"github.com/exorde-labs/swarm-control/internal/shell"
	"github.com/exorde-labs/swarm-control/internal/topology"
)

// DefaultDBPath is used when a node's static_cluster_parameters.db carries no
// "path" key, so the orchestrator still has somewhere to persist its catalog
// in a standalone deployment.
const DefaultDBPath = "swarm-control.db"

// mathRand adapts math/rand's top-level Intn to resolver.RNG without this
// package depending on resolver's test doubles.
type mathRand struct{ intn func(int) int }

func (m mathRand) Intn(n int) int { return m.intn(n) }

// Config is everything bladeproc.Run needs to bring one node's process up.
type Config struct {
	Node   topology.Node
	Topo   *topology.Topology
	Logger *logging.Logger

	// ScraperConfig and Monitor are the out-of-scope collaborators (§3.1,
	// §3.2); nil defaults to the static/no-op implementations.
	ScraperConfig scraperconfig.Provider
	Monitor       monitor.LogSource

	// RandIntn backs the scraper resolver's injectable RNG (§4.2, §9);
	// nil defaults to math/rand's package-level source.
	RandIntn func(int) int
}

// monitorHandler is the shell.KindHandler a monitor-kind blade registers: it
// surfaces whether its (out-of-scope) log collaborator is currently running,
// and otherwise behaves like every other kind, echoing the node descriptor
// on an unhandled intent.
type monitorHandler struct {
	following bool
}

func (h *monitorHandler) State() map[string]any {
	return map[string]any{"following_logs": h.following}
}

func (h *monitorHandler) LoadIntent(i intent.Intent) (any, error) {
	return i, nil
}

// Run builds and serves the blade's HTTP shell, plus (for the orchestrator
// kind) the Version Catalog and Orchestration Loop, until ctx is cancelled.
// It blocks until shutdown completes.
func Run(ctx context.Context, cfg Config) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	var handler shell.KindHandler
	var cleanup func()

	switch cfg.Node.Blade {
	case topology.KindOrchestrator:
		store, loop, err := buildOrchestrator(cfg, registry)
		if err != nil {
			return err
		}
		defer store.Close()

		loopCtx, cancelLoop := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			loop.Run(loopCtx)
		}()
		cleanup = func() {
			cancelLoop()
			<-done
		}

	case topology.KindMonitor:
		src := cfg.Monitor
		if src == nil {
			src = monitor.NullSource{}
		}
		mh := &monitorHandler{following: true}
		handler = mh
		monitorCtx, cancelMonitor := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = src.Follow(monitorCtx, make(chan monitor.LogLine, 16))
			mh.following = false
		}()
		cleanup = func() {
			cancelMonitor()
			<-done
		}

	default:
		// scraper and spotting kinds run business logic out of this
		// control plane's scope (§1): the shell's nil-handler fallback
		// (echo the node descriptor) is the whole of their contract here.
	}

	appCtx := shell.AppContext{Node: cfg.Node, Topo: cfg.Topo, Handler: handler, Logger: cfg.Logger}
	sh := shell.New(appCtx, registry)

	srv := &http.Server{
		Addr:              cfg.Node.HostPort(),
		Handler:           sh.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	cfg.Logger.Info("bladeproc: %s (%s) listening on %s", cfg.Node.Name, cfg.Node.Blade, cfg.Node.HostPort())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if cleanup != nil {
			cleanup()
		}
		return nil
	case err := <-serveErr:
		if cleanup != nil {
			cleanup()
		}
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("bladeproc: http server for %s: %w", cfg.Node.Name, err)
		}
		return nil
	}
}

func buildOrchestrator(cfg Config, registry *prometheus.Registry) (*catalog.Store, *orchestrator.Loop, error) {
	dbPath := DefaultDBPath
	if cfg.Node.StaticClusterParameters.DB != nil {
		if p, ok := cfg.Node.StaticClusterParameters.DB["path"].(string); ok && p != "" {
			dbPath = p
		}
	}

	scraperCfg := cfg.ScraperConfig
	if scraperCfg == nil {
		scraperCfg = scraperconfig.Static{}
	}

	store, err := catalog.Open(dbPath, releasehub.NewHTTPClient(), scraperCfg, cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("bladeproc: open catalog: %w", err)
	}
	if err := store.SetUp(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("bladeproc: catalog setup: %w", err)
	}

	randIntn := cfg.RandIntn
	if randIntn == nil {
		randIntn = defaultRandIntn
	}

	loop := &orchestrator.Loop{
		Topo:                  cfg.Topo,
		Store:                 storeAdapter{store},
		ScraperConfig:         scraperCfg,
		RNG:                   mathRand{intn: randIntn},
		Poster:                orchestrator.NewHTTPPoster(),
		Logger:                cfg.Logger,
		Metrics:               orchestrator.NewMetrics(registry),
		CacheThresholdMinutes: cfg.Node.StaticClusterParameters.CacheThreshold(),
		TickInterval:          time.Duration(cfg.Node.StaticClusterParameters.MonitorIntervalSeconds) * time.Second,
	}
	return store, loop, nil
}

func defaultRandIntn(n int) int { return rand.Intn(n) }

// storeAdapter satisfies orchestrator.Store over a *catalog.Store: the two
// packages each declare their own RepositoryVersion-shaped struct
// (orchestrator keeps its own so its unit tests avoid catalog's sqlite
// driver), so bladeproc — the one place that wires both together — does the
// conversion.
type storeAdapter struct{ *catalog.Store }

func (a storeAdapter) LatestValidTags(ctx context.Context) ([]orchestrator.RepoVersion, error) {
	versions, err := a.Store.LatestValidTags(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]orchestrator.RepoVersion, len(versions))
	for i, v := range versions {
		out[i] = orchestrator.RepoVersion{RepositoryPath: v.RepositoryPath, TagName: v.TagName}
	}
	return out, nil
}
