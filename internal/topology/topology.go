// Package topology parses and validates the static cluster document
// (SPEC_FULL.md §3, §4.6): a single YAML file enumerating every blade of the
// cluster. It is loaded once at supervisor startup and never reloaded.
package topology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/exorde-labs/swarm-control/internal/clierr"
)

// BladeKind is the role of a blade node.
type BladeKind string

const (
	KindScraper      BladeKind = "scraper"
	KindSpotting     BladeKind = "spotting"
	KindOrchestrator BladeKind = "orchestrator"
	KindMonitor      BladeKind = "monitor"
)

func (k BladeKind) Valid() bool {
	switch k {
	case KindScraper, KindSpotting, KindOrchestrator, KindMonitor:
		return true
	default:
		return false
	}
}

const defaultGithubCacheThresholdMinutes = 10

// DBParams holds provider-specific database parameters. Kept as an open
// mapping since the spec never fixes a schema for it beyond "provider
// specific"; internal/bladeproc reads a "path" key out of it to locate the
// catalog's sqlite file, whatever database_provider says.
type DBParams map[string]any

// StaticClusterParameters is the nested record every node carries.
type StaticClusterParameters struct {
	MonitorIntervalSeconds     float64  `yaml:"monitor_interval_in_seconds"`
	DatabaseProvider           string   `yaml:"database_provider"`
	DB                         DBParams `yaml:"db"`
	GithubCacheThresholdMinutes *int    `yaml:"github_cache_threshold_minutes,omitempty"`
}

// CacheThreshold returns the configured threshold, defaulting to 10 minutes.
func (s StaticClusterParameters) CacheThreshold() int {
	if s.GithubCacheThresholdMinutes == nil {
		return defaultGithubCacheThresholdMinutes
	}
	return *s.GithubCacheThresholdMinutes
}

// Node is one blade node descriptor.
type Node struct {
	Name                    string                  `yaml:"name"`
	Blade                   BladeKind               `yaml:"blade"`
	Managed                 bool                    `yaml:"managed"`
	Host                    string                  `yaml:"host"`
	Port                    int                     `yaml:"port"`
	Venv                    string                  `yaml:"venv"`
	StaticClusterParameters StaticClusterParameters `yaml:"static_cluster_parameters"`
}

// HostPort renders the node's address as the "h:p" form used throughout
// intents and logs.
func (n Node) HostPort() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// Topology is the immutable, process-start cluster document.
type Topology struct {
	Blades []Node `yaml:"blades"`
}

// document is the on-disk shape; kept distinct from Topology so Load can
// validate before handing back the public, already-trusted value.
type document struct {
	Blades []Node `yaml:"blades"`
}

// Load parses and validates the topology file at path.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, clierr.NewConfigError(
			fmt.Sprintf("cannot read topology file %q", path),
			"check the -c/--config path",
			err,
		)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, clierr.NewConfigError(
			fmt.Sprintf("cannot parse topology file %q", path),
			"the file must be valid YAML with a top-level 'blades' list",
			err,
		)
	}

	if err := validate(doc); err != nil {
		return nil, err
	}

	for i := range doc.Blades {
		if doc.Blades[i].StaticClusterParameters.GithubCacheThresholdMinutes == nil {
			v := defaultGithubCacheThresholdMinutes
			doc.Blades[i].StaticClusterParameters.GithubCacheThresholdMinutes = &v
		}
	}

	return &Topology{Blades: doc.Blades}, nil
}

func validate(doc document) error {
	if len(doc.Blades) == 0 {
		return clierr.NewConfigError("topology has no blades", "add at least one entry under 'blades'", nil)
	}

	seen := make(map[string]bool, len(doc.Blades))
	for _, n := range doc.Blades {
		if n.Name == "" || n.Host == "" || n.Port == 0 {
			return clierr.NewConfigError(
				fmt.Sprintf("blade entry %q is missing required fields", n.Name),
				"each blade needs name, blade, host, and port",
				nil,
			)
		}
		if !n.Blade.Valid() {
			return clierr.NewConfigError(
				fmt.Sprintf("blade %q has unknown kind %q", n.Name, n.Blade),
				"blade must be one of scraper, spotting, orchestrator, monitor",
				nil,
			)
		}
		if seen[n.Name] {
			return clierr.NewConfigError(
				fmt.Sprintf("duplicate blade name %q", n.Name),
				"blade names must be unique",
				nil,
			)
		}
		seen[n.Name] = true
	}
	return nil
}

// ByKind returns every node of the given kind, in topology order.
func (t *Topology) ByKind(kind BladeKind) []Node {
	var out []Node
	for _, n := range t.Blades {
		if n.Blade == kind {
			out = append(out, n)
		}
	}
	return out
}

// ByName returns the node with the given name, if any.
func (t *Topology) ByName(name string) (Node, bool) {
	for _, n := range t.Blades {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// HasHost reports whether a node with the given host:port exists. Nothing in
// the intent path calls it; resolved targets are not re-checked against it.
func (t *Topology) HasHost(hostPort string) bool {
	for _, n := range t.Blades {
		if n.HostPort() == hostPort {
			return true
		}
	}
	return false
}
