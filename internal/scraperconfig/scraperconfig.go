// Package scraperconfig models the external scraper-configuration
// collaborator named in SPEC_FULL.md §3.1. Its concrete implementation (an
// operator-facing store of enrolled scrape modules and keywords) is out of
// scope for the core; this package fixes its contract as an interface plus a
// static default so the Version Catalog and Resolver Registry never
// hard-depend on a live service existing.
package scraperconfig

import "context"

// DefaultKeyword is the fallback search keyword used when no collaborator
// is configured or the collaborator call fails, per SPEC_FULL.md §4.2/§3.1.
const DefaultKeyword = "BITCOIN"

// Provider is the scraper-configuration collaborator contract.
type Provider interface {
	// ModuleList returns the repository paths ("owner/name") currently
	// enrolled as scrapeable modules.
	ModuleList(ctx context.Context) ([]string, error)
	// Keyword returns the operator-configured default search keyword.
	Keyword(ctx context.Context) (string, error)
}

// Static is a Provider backed by a fixed, in-memory list, suitable for a
// standalone deployment with no external configuration service and for
// tests.
type Static struct {
	Modules     []string
	KeywordText string
}

func (s Static) ModuleList(context.Context) ([]string, error) {
	return s.Modules, nil
}

func (s Static) Keyword(context.Context) (string, error) {
	if s.KeywordText == "" {
		return DefaultKeyword, nil
	}
	return s.KeywordText, nil
}
