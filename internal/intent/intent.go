// Package intent defines the message an orchestrator sends to every peer on
// each tick (SPEC_FULL.md §3): the declarative description of what a blade
// should be running right now.
package intent

import (
	"encoding/json"
	"fmt"

	"github.com/exorde-labs/swarm-control/internal/topology"
)

// Params is the tagged variant carried by an Intent. Each concrete type
// reports the blade kind it belongs to so New can cross-check it against the
// Intent's own Blade field (the "params.tag must match blade" invariant of
// §3).
type Params interface {
	bladeKind() topology.BladeKind
}

// ScraperParams is the params variant for scraper blades.
type ScraperParams struct {
	Keyword         string         `json:"keyword"`
	ExtraParameters map[string]any `json:"extra_parameters"`
	Target          string         `json:"target"`
	Module          string         `json:"module"`
	Version         string         `json:"version"`
}

func (ScraperParams) bladeKind() topology.BladeKind { return topology.KindScraper }

// SpottingParams is the (empty) params variant for spotting blades.
type SpottingParams struct{}

func (SpottingParams) bladeKind() topology.BladeKind { return topology.KindSpotting }

// OrchestratorParams is the (empty) params variant for orchestrator blades.
type OrchestratorParams struct{}

func (OrchestratorParams) bladeKind() topology.BladeKind { return topology.KindOrchestrator }

// MonitorParams is the (empty) params variant for monitor blades. SPEC_FULL.md
// §4.2 adds the monitor resolver; it reuses the empty-params shape under its
// own tag rather than aliasing OrchestratorParams, so a monitor Intent's
// params.tag correctly reads "monitor".
type MonitorParams struct{}

func (MonitorParams) bladeKind() topology.BladeKind { return topology.KindMonitor }

// Intent is the message produced by a Resolver and POSTed to a peer.
type Intent struct {
	Host    string               `json:"host"`
	Blade   topology.BladeKind   `json:"blade"`
	Version string               `json:"version"`
	Params  Params               `json:"params"`
}

// New validates the params.tag == blade invariant and returns an Intent.
func New(host string, blade topology.BladeKind, version string, params Params) (Intent, error) {
	if params.bladeKind() != blade {
		return Intent{}, fmt.Errorf("intent: params kind %q does not match blade %q", params.bladeKind(), blade)
	}
	return Intent{Host: host, Blade: blade, Version: version, Params: params}, nil
}

// wireIntent is the JSON form of an Intent: params is kept as the raw JSON of
// the concrete variant, with no discriminator of its own, and UnmarshalJSON
// reconstructs the correct concrete Params type by reading Blade.
type wireIntent struct {
	Host    string             `json:"host"`
	Blade   topology.BladeKind `json:"blade"`
	Version string             `json:"version"`
	Params  json.RawMessage    `json:"params"`
}

func (i Intent) MarshalJSON() ([]byte, error) {
	paramsJSON, err := json.Marshal(i.Params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireIntent{Host: i.Host, Blade: i.Blade, Version: i.Version, Params: paramsJSON})
}

func (i *Intent) UnmarshalJSON(data []byte) error {
	var w wireIntent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var params Params
	switch w.Blade {
	case topology.KindScraper:
		var p ScraperParams
		if len(w.Params) > 0 {
			if err := json.Unmarshal(w.Params, &p); err != nil {
				return fmt.Errorf("intent: decode scraper params: %w", err)
			}
		}
		params = p
	case topology.KindSpotting:
		params = SpottingParams{}
	case topology.KindOrchestrator:
		params = OrchestratorParams{}
	case topology.KindMonitor:
		params = MonitorParams{}
	default:
		return fmt.Errorf("intent: unknown blade kind %q", w.Blade)
	}

	i.Host = w.Host
	i.Blade = w.Blade
	i.Version = w.Version
	i.Params = params
	return nil
}
