package db

// Metadata schema migrations
const (
	createDataSourcesTable = `
CREATE TABLE IF NOT EXISTS data_sources (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    endpoint        TEXT NOT NULL UNIQUE,
    label           TEXT NOT NULL DEFAULT ''
);`

	createTemplatesTable = `
CREATE TABLE IF NOT EXISTS templates (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT NOT NULL UNIQUE COLLATE NOCASE,
    description     TEXT NOT NULL DEFAULT '',
    columns_json    TEXT NOT NULL,
    unique_key      TEXT,
    last_run_at     TEXT,
    created_at      TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

	createIndexes = `
CREATE INDEX IF NOT EXISTS idx_data_sources_label ON data_sources(label);
CREATE INDEX IF NOT EXISTS idx_templates_last_run_at ON templates(last_run_at);`
)
