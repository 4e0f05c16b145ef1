// Package catalog implements the Version Catalog of SPEC_FULL.md §4.1: a
// persisted store of repositories, tags, and defect marks, synchronized from
// an upstream release hub on a time-based cache, and queried for the
// semver-maximum "latest valid" tag per repository.
//
// The store is backed by database/sql over modernc.org/sqlite (pure Go, no
// cgo), generalizing the teacher's cgo pkg/cozodb wrapper into the "any
// embedded SQL engine" persisted store SPEC_FULL.md §6 calls for, grounded on
// the retrieval pack's other_examples hazyhaar-GoClode internal/core engine
// (database/sql + modernc.org/sqlite + fsnotify hot reload).
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/exorde-labs/swarm-control/internal/clierr"
	"github.com/exorde-labs/swarm-control/internal/logging"
	"github.com/exorde-labs/swarm-control/internal/releasehub"
	"github.com/exorde-labs/swarm-control/internal/scraperconfig"
)

// Mark is a defect label attached to a tag. Currently only DEFECTIVE exists
// per SPEC_FULL.md §3.
type Mark string

const MarkDefective Mark = "DEFECTIVE"

// BaseClientRepository is always a tracked repository: the blade base image
// whose tag every blade kind reports as its own "version" capability.
const BaseClientRepository = "exorde-labs/exorde-swarm-client"

// RepositoryVersion is the derived "selected capability" value of §3.
type RepositoryVersion struct {
	RepositoryPath string
	TagName        string
}

// Store is the Version Catalog.
type Store struct {
	db            *sql.DB
	hub           releasehub.Client
	scraperConfig scraperconfig.Provider
	logger        *logging.Logger

	syncMu sync.Mutex // serializes sync against the upstream hub (concurrency = 1, §5)

	now          func() time.Time
	sleepBetween func(time.Duration)
}

// Open opens (creating if absent) the sqlite database at path and returns a
// ready-to-use Store. Callers must call setUp (via SetUp) before first use.
func Open(path string, hub releasehub.Client, scraperConfig scraperconfig.Provider, logger *logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite at %q: %v", clierr.ErrDatabase, path, err)
	}
	db.SetMaxOpenConns(1) // sqlite: avoid SQLITE_BUSY across writers in one process

	return &Store{
		db:            db,
		hub:           hub,
		scraperConfig: scraperConfig,
		logger:        logger,
		now:           time.Now,
		sleepBetween:  time.Sleep,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetUp idempotently creates the three tables. Safe to call every process
// start.
func (s *Store) SetUp(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", clierr.ErrDatabase, err)
	}
	return nil
}

// trackedRepositories returns the always-tracked base client repository plus
// every module currently enrolled via the scraper-configuration collaborator.
// If that collaborator call fails, an error is returned and sync must abort
// (§4.1) leaving the catalog untouched.
func (s *Store) trackedRepositories(ctx context.Context) ([]string, error) {
	modules, err := s.scraperConfig.ModuleList(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch scraper-config module list: %w", err)
	}

	seen := map[string]bool{BaseClientRepository: true}
	tracked := []string{BaseClientRepository}
	for _, m := range modules {
		if !seen[m] {
			seen[m] = true
			tracked = append(tracked, m)
		}
	}
	return tracked, nil
}

// Sync refreshes tags for the tracked repository set. When useCache is true,
// only repositories whose last_online_retrieval is older than
// thresholdMinutes are refetched.
func (s *Store) Sync(ctx context.Context, useCache bool, thresholdMinutes int) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	tracked, err := s.trackedRepositories(ctx)
	if err != nil {
		s.logger.Warn("catalog sync aborted: %v", err)
		return
	}

	threshold := time.Duration(thresholdMinutes) * time.Minute

	// Pause ~1s after each successful fetch before the next one.
	sleepBefore := false
	for _, repoPath := range tracked {
		if useCache {
			stale, err := s.isStale(ctx, repoPath, threshold)
			if err != nil {
				s.logger.Error("catalog sync: check staleness of %s: %v", repoPath, err)
				continue
			}
			if !stale {
				continue
			}
		}

		if sleepBefore {
			s.sleepBetween(time.Second)
		}

		err := s.syncOne(ctx, repoPath)
		sleepBefore = err == nil
		if err != nil {
			s.logger.Warn("catalog sync: %s: %v", repoPath, err)
		}
	}
}

func (s *Store) isStale(ctx context.Context, repoPath string, threshold time.Duration) (bool, error) {
	var lastRetrieval sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT last_online_retrieval FROM repositories WHERE path = ?`, repoPath,
	).Scan(&lastRetrieval)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", clierr.ErrDatabase, err)
	}
	if !lastRetrieval.Valid {
		return true, nil
	}
	return s.now().Sub(lastRetrieval.Time) > threshold, nil
}

func (s *Store) syncOne(ctx context.Context, repoPath string) error {
	tags, err := s.hub.FetchTags(ctx, repoPath)
	if err != nil {
		return err
	}

	repoID, err := s.upsertRepository(ctx, repoPath)
	if err != nil {
		return fmt.Errorf("%w: %v", clierr.ErrDatabase, err)
	}

	for _, t := range tags {
		if isPrerelease(t.Name) {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO tags (repository, name, zipball_url, tarball_url, _commit)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(repository, name) DO NOTHING`,
			repoID, t.Name, t.ZipballURL, t.TarballURL, t.Commit.URL,
		); err != nil {
			return fmt.Errorf("%w: insert tag %s: %v", clierr.ErrDatabase, t.Name, err)
		}
	}
	return nil
}

func (s *Store) upsertRepository(ctx context.Context, repoPath string) (int64, error) {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repositories (path, last_online_retrieval) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET last_online_retrieval = excluded.last_online_retrieval`,
		repoPath, now,
	)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM repositories WHERE path = ?`, repoPath).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// LatestValidTags returns, for every repository with at least one
// non-DEFECTIVE tag, the semver-maximum such tag.
func (s *Store) LatestValidTags(ctx context.Context) ([]RepositoryVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.path, t.name
		FROM tags t
		JOIN repositories r ON r.id = t.repository
		WHERE t.id NOT IN (SELECT tag_id FROM marks WHERE mark = ?)
	`, string(MarkDefective))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clierr.ErrDatabase, err)
	}
	defer rows.Close()

	byRepo := map[string][]string{}
	for rows.Next() {
		var repoPath, tagName string
		if err := rows.Scan(&repoPath, &tagName); err != nil {
			return nil, fmt.Errorf("%w: %v", clierr.ErrDatabase, err)
		}
		if !isValidSemver(tagName) {
			s.logger.Warn("catalog: tag %s of %s does not parse as semver, excluding from latest selection", tagName, repoPath)
			continue
		}
		byRepo[repoPath] = append(byRepo[repoPath], tagName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", clierr.ErrDatabase, err)
	}

	out := make([]RepositoryVersion, 0, len(byRepo))
	for repoPath, names := range byRepo {
		if len(names) == 0 {
			continue
		}
		sort.Slice(names, func(i, j int) bool { return compareTags(names[i], names[j]) < 0 })
		out = append(out, RepositoryVersion{RepositoryPath: repoPath, TagName: names[len(names)-1]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RepositoryPath < out[j].RepositoryPath })
	return out, nil
}

// MarkTag idempotently attaches a mark to a tag. Fails with ErrNotFound
// (without mutating the database) if the tag does not exist.
func (s *Store) MarkTag(ctx context.Context, repoPath, tagName string, mark Mark) error {
	tagID, err := s.findTagID(ctx, repoPath, tagName)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO marks (tag_id, mark) VALUES (?, ?) ON CONFLICT(tag_id, mark) DO NOTHING`,
		tagID, string(mark),
	); err != nil {
		return fmt.Errorf("%w: %v", clierr.ErrDatabase, err)
	}
	return nil
}

// UnmarkTag idempotently removes a mark from a tag. Fails with ErrNotFound
// (without mutating the database) if the tag does not exist.
func (s *Store) UnmarkTag(ctx context.Context, repoPath, tagName string, mark Mark) error {
	tagID, err := s.findTagID(ctx, repoPath, tagName)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM marks WHERE tag_id = ? AND mark = ?`,
		tagID, string(mark),
	); err != nil {
		return fmt.Errorf("%w: %v", clierr.ErrDatabase, err)
	}
	return nil
}

func (s *Store) findTagID(ctx context.Context, repoPath, tagName string) (int64, error) {
	var tagID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id FROM tags t
		JOIN repositories r ON r.id = t.repository
		WHERE r.path = ? AND t.name = ?
	`, repoPath, tagName).Scan(&tagID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: tag %s of %s", clierr.ErrNotFound, tagName, repoPath)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", clierr.ErrDatabase, err)
	}
	return tagID, nil
}
