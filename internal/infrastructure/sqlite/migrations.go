package sqlite

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS local_storage (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_entries (
	cache_name TEXT NOT NULL,
	req_key    TEXT NOT NULL,
	method     TEXT NOT NULL,
	url        TEXT NOT NULL,
	status     INTEGER NOT NULL,
	header     TEXT NOT NULL DEFAULT '{}',
	body       BLOB,
	stored_at  DATETIME NOT NULL,
	PRIMARY KEY (cache_name, req_key)
);

CREATE TABLE IF NOT EXISTS caches (
	name       TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
