package store

// Schema contains the complete DDL for the darkmode tables.
const Schema = `
-- Hosts with dark mode enabled, in the order they were added
CREATE TABLE IF NOT EXISTS sites (
    host     TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    added_at INTEGER NOT NULL
);

-- Per-host selectors exempted from the inversion filter
CREATE TABLE IF NOT EXISTS blacklist_selectors (
    host       TEXT NOT NULL,
    selector   TEXT NOT NULL,
    position   INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (host, selector)
);
CREATE INDEX IF NOT EXISTS idx_blacklist_order ON blacklist_selectors(host, position);

-- Write log read by change watchers
CREATE TABLE IF NOT EXISTS changes (
    seq  INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    host TEXT NOT NULL DEFAULT '',
    at   INTEGER NOT NULL
);
`
