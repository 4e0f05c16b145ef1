// Package shell implements the Blade HTTP Shell of SPEC_FULL.md §4.4: the
// generic HTTP surface every blade exposes regardless of kind — a status
// snapshot, best-effort intent reception delegating to a per-kind handler,
// and (this expansion's domain-stack addition, §2.2) a Prometheus metrics
// endpoint.
package shell

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/exorde-labs/swarm-control/internal/intent"
	"github.com/exorde-labs/swarm-control/internal/logging"
	"github.com/exorde-labs/swarm-control/internal/topology"
)

// KindHandler is the per-kind delegate a blade process registers with the
// shell. State returns whatever keys the kind wants surfaced under GET /,
// and LoadIntent adopts a received Intent, returning the response body to
// send back. A nil KindHandler is valid: the shell falls back to echoing the
// node descriptor for both GET and POST.
type KindHandler interface {
	State() map[string]any
	LoadIntent(i intent.Intent) (any, error)
}

// AppContext is the read-only, explicit context threaded through shell
// handlers in place of the source's global mutable topology-on-app (§9):
// shell endpoints read from it but never mutate it after startup.
type AppContext struct {
	Node    topology.Node
	Topo    *topology.Topology
	Handler KindHandler
	Logger  *logging.Logger
}

// Shell is the generic HTTP surface. New kind handlers are registered once
// at construction; there is no runtime re-registration.
type Shell struct {
	ctx      AppContext
	registry *prometheus.Registry
}

// New builds a Shell bound to ctx. registry may be nil, in which case a fresh
// registry holding the Go-runtime and process collectors is used.
func New(ctx AppContext, registry *prometheus.Registry) *Shell {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(prometheus.NewGoCollector())
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}
	return &Shell{ctx: ctx, registry: registry}
}

// Mux builds the http.Handler exposing GET/POST / and GET /metrics.
func (s *Shell) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *Shell) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGet(w, r)
	case http.MethodPost:
		s.handlePost(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// snapshot builds the blade state document: "blade" plus any keys the kind
// handler registered.
func (s *Shell) snapshot() map[string]any {
	out := map[string]any{"blade": s.ctx.Node}
	if s.ctx.Handler != nil {
		for k, v := range s.ctx.Handler.State() {
			out[k] = v
		}
	}
	return out
}

func (s *Shell) handleGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.snapshot())
}

// handlePost receives an Intent. It never errors on a malformed or
// unhandled intent: an absent handler, a decode failure, or a handler error
// all fall back to the same 200 descriptor snapshot the spec requires.
func (s *Shell) handlePost(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var i intent.Intent
	if err := json.NewDecoder(r.Body).Decode(&i); err != nil {
		if s.ctx.Logger != nil {
			s.ctx.Logger.Warn("shell: failed to decode intent body: %v", err)
		}
		writeJSON(w, s.snapshot())
		return
	}

	if s.ctx.Handler == nil {
		writeJSON(w, s.snapshot())
		return
	}

	resp, err := func() (result any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = errFromRecover(rec)
			}
		}()
		return s.ctx.Handler.LoadIntent(i)
	}()
	if err != nil {
		if s.ctx.Logger != nil {
			s.ctx.Logger.Warn("shell: loadIntent handler failed: %v", err)
		}
		writeJSON(w, s.snapshot())
		return
	}

	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(safeMarshal(v))
}

func errFromRecover(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return &recoveredPanic{rec}
}

type recoveredPanic struct{ value any }

func (p *recoveredPanic) Error() string {
	return "panic: " + jsonStringify(p.value)
}

func jsonStringify(v any) string {
	b, err := json.Marshal(sanitize(v))
	if err != nil {
		return "<unserializable>"
	}
	return string(b)
}
