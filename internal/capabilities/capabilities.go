// Package capabilities builds the "repository_path -> tag_name" map a
// Resolver consults (SPEC_FULL.md §3), derived from the Version Catalog's
// latest-valid-tags snapshot at the moment of orchestration.
package capabilities

import (
	"context"
	"fmt"

	"github.com/exorde-labs/swarm-control/internal/catalog"
)

// Map is the capabilities map: repository path -> selected tag name.
type Map map[string]string

// Lookup returns the tag selected for repoPath, and whether it was present.
func (m Map) Lookup(repoPath string) (string, bool) {
	tag, ok := m[repoPath]
	return tag, ok
}

// versionLister is the subset of catalog.Store this package needs, so tests
// can substitute a fake without standing up a real database.
type versionLister interface {
	LatestValidTags(ctx context.Context) ([]catalog.RepositoryVersion, error)
}

// Build projects the catalog's latest-valid-tags snapshot into a
// capabilities Map.
func Build(ctx context.Context, store versionLister) (Map, error) {
	versions, err := store.LatestValidTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("build capabilities: %w", err)
	}
	m := make(Map, len(versions))
	for _, v := range versions {
		m[v.RepositoryPath] = v.TagName
	}
	return m, nil
}
