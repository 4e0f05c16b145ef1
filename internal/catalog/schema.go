package catalog

// schema creates the three tables of SPEC_FULL.md §6, matching the
// CREATE TABLE IF NOT EXISTS and inline UNIQUE-constraint conventions visible
// in the pack's other_examples sqlite schema (steveyegge-beads
// internal/storage/sqlite/schema.go).
const schema = `
CREATE TABLE IF NOT EXISTS repositories (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	path                  TEXT NOT NULL UNIQUE,
	last_online_retrieval DATETIME
);

CREATE TABLE IF NOT EXISTS tags (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	repository   INTEGER NOT NULL REFERENCES repositories(id),
	name         TEXT NOT NULL,
	zipball_url  TEXT NOT NULL DEFAULT '',
	tarball_url  TEXT NOT NULL DEFAULT '',
	_commit      TEXT NOT NULL DEFAULT '',
	UNIQUE(repository, name)
);

CREATE TABLE IF NOT EXISTS marks (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	tag_id INTEGER NOT NULL REFERENCES tags(id),
	mark   TEXT NOT NULL,
	UNIQUE(tag_id, mark)
);
`
