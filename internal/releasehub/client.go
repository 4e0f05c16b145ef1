// Package releasehub is the client for the upstream release hub named in
// SPEC_FULL.md §6: GitHub's repository tags endpoint. The concrete API is
// explicitly out of scope for the core (§1); this package is the thin,
// swappable edge that the Version Catalog depends on through the Client
// interface, so tests can substitute a fake.
package releasehub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/exorde-labs/swarm-control/internal/clierr"
)

// Tag is one entry of the GitHub tags API response.
type Tag struct {
	Name        string `json:"name"`
	ZipballURL  string `json:"zipball_url"`
	TarballURL  string `json:"tarball_url"`
	Commit      struct {
		SHA string `json:"sha"`
		URL string `json:"url"`
	} `json:"commit"`
	NodeID string `json:"node_id"`
}

// Client fetches tags for a repository identified by "owner/name".
type Client interface {
	FetchTags(ctx context.Context, repoPath string) ([]Tag, error)
}

// HTTPClient is the default Client, talking to the real GitHub API.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPClient builds an HTTPClient pointed at the real GitHub API with a
// conservative request timeout.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		BaseURL: "https://api.github.com",
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) FetchTags(ctx context.Context, repoPath string) ([]Tag, error) {
	url := fmt.Sprintf("%s/repos/%s/tags", c.BaseURL, repoPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %s: %v", clierr.ErrUpstreamFetch, repoPath, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", clierr.ErrUpstreamFetch, repoPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", clierr.ErrUpstreamFetch, repoPath, resp.StatusCode)
	}

	var tags []Tag
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: decode response for %s: %v", clierr.ErrUpstreamFetch, repoPath, err)
	}
	return tags, nil
}
