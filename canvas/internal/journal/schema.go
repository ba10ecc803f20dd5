package journal

// Schema contains the complete DDL for the journal tables.
const Schema = `
-- Commands: one row per committed edit, undo or redo
CREATE TABLE IF NOT EXISTS commands (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    name        TEXT NOT NULL,
    layer_id    TEXT NOT NULL DEFAULT '',
    payload     TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_commands_time ON commands(created_at DESC);

-- Snapshots: periodic serialized copies of the layer tree
CREATE TABLE IF NOT EXISTS snapshots (
    id          TEXT PRIMARY KEY,
    tree        TEXT NOT NULL,
    layer_count INTEGER NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_time ON snapshots(created_at DESC);
`
