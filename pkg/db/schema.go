package db

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;

-- Imports: one row per pull/import run
CREATE TABLE IF NOT EXISTS imports (
    import_id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    document_count INTEGER DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Documents: latest copy of every HSN2 object, stored as its JSON body
CREATE TABLE IF NOT EXISTS documents (
    doc_id TEXT PRIMARY KEY,
    job TEXT,                    -- NULL when the document has no job
    type TEXT NOT NULL,
    body TEXT NOT NULL,
    import_id TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (import_id) REFERENCES imports(import_id)
);

CREATE INDEX IF NOT EXISTS idx_documents_job ON documents(job);
CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(type);
`
