package sqlite

const schema = `
-- Entity graph (primitives, protocols, relationships, application types)
CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    data_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_circle_id
    ON entities(json_extract(data_json, '$.circle_id'));
CREATE INDEX IF NOT EXISTS idx_entities_tags
    ON entities(json_extract(data_json, '$.tags'));

-- Bonds projection table. Each bond is projected state and is ALSO stored
-- as a 'relationship' entity in the entities table.
CREATE TABLE IF NOT EXISTS bonds (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    confidence REAL NOT NULL DEFAULT 1.0,
    data_json TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_bonds_from ON bonds(from_id);
CREATE INDEX IF NOT EXISTS idx_bonds_to ON bonds(to_id);
CREATE INDEX IF NOT EXISTS idx_bonds_type ON bonds(type);

-- Append-only event log, ordered per actor by clock_seq
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    clock_actor TEXT NOT NULL,
    clock_seq INTEGER NOT NULL,
    type TEXT NOT NULL,
    op TEXT NOT NULL,
    persona_id TEXT,
    signature TEXT,
    payload_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_clock ON events(clock_actor, clock_seq);

-- State snapshots for protocol runs
CREATE TABLE IF NOT EXISTS states (
    id TEXT PRIMARY KEY,
    protocol_id TEXT NOT NULL,
    status TEXT NOT NULL,
    data_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_states_protocol ON states(protocol_id);

-- Embeddings: one canonical vector per entity, invalidated on entity save
CREATE TABLE IF NOT EXISTS embeddings (
    entity_id TEXT PRIMARY KEY,
    model_name TEXT NOT NULL,
    vector BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model_name);

-- Archive: never delete, always compost. Resurrection reverses the move.
CREATE TABLE IF NOT EXISTS archive (
    id TEXT PRIMARY KEY,
    original_id TEXT NOT NULL,
    original_type TEXT NOT NULL,
    data_json TEXT NOT NULL,
    archived_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    archived_by TEXT,
    reason TEXT,
    learning_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_archive_original_id ON archive(original_id);
CREATE INDEX IF NOT EXISTS idx_archive_original_type ON archive(original_type);
`

// ftsSchema is applied separately so a SQLite build without FTS5 still
// opens; search degrades to LIKE scans in that case.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS entity_fts USING fts5(id, type, title, body);
`
