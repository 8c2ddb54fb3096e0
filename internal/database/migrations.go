package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "embedding cache",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS embedding_cache (
    hash TEXT NOT NULL,
    model TEXT NOT NULL,
    preview TEXT NOT NULL DEFAULT '',
    dims INTEGER NOT NULL,
    vector BLOB NOT NULL,
    created_at TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (hash, model)
);

CREATE INDEX IF NOT EXISTS idx_embedding_cache_created ON embedding_cache(created_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "research runs",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    hypothesis TEXT NOT NULL,
    mode TEXT NOT NULL,
    scorer TEXT NOT NULL,
    sources TEXT NOT NULL,
    target INTEGER DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'running',
    error TEXT,
    fetched INTEGER DEFAULT 0,
    passed_quality INTEGER DEFAULT 0,
    passed_keyword INTEGER DEFAULT 0,
    passed_domain INTEGER DEFAULT 0,
    core_count INTEGER DEFAULT 0,
    related_count INTEGER DEFAULT 0,
    recovered_count INTEGER DEFAULT 0,
    cluster_count INTEGER DEFAULT 0,
    boosted INTEGER DEFAULT 0,
    report_markdown TEXT,
    started_at TEXT DEFAULT (datetime('now')),
    finished_at TEXT
);

CREATE TABLE IF NOT EXISTS run_signals (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    item_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    container TEXT,
    title TEXT,
    excerpt TEXT,
    permalink TEXT,
    tier TEXT NOT NULL,
    recovered INTEGER DEFAULT 0,
    weight REAL DEFAULT 0,
    similarity REAL DEFAULT 0,
    created_at TEXT,
    PRIMARY KEY (run_id, item_id)
);

CREATE TABLE IF NOT EXISTS run_clusters (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    cluster_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    label TEXT,
    size INTEGER NOT NULL,
    cohesion REAL NOT NULL,
    member_ids TEXT NOT NULL,
    excerpts TEXT NOT NULL,
    PRIMARY KEY (run_id, cluster_id)
);

CREATE TABLE IF NOT EXISTS run_decisions (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    item_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    verdict TEXT NOT NULL,
    tier TEXT NOT NULL,
    reason TEXT,
    PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_decisions_stage ON run_decisions(run_id, stage);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
