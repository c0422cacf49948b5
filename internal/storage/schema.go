package storage

const schema = `
-- The 'sessions' table stores one row per review session, updated as it runs.
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL DEFAULT '',
    deck TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    total INTEGER NOT NULL DEFAULT 0,
    reviewed INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL,
    ended_at DATETIME
);

-- The 'reviews' table stores every rating a user gave, whether or not Anki accepted it.
CREATE TABLE IF NOT EXISTS reviews (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    card_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    rating INTEGER NOT NULL,
    submitted BOOLEAN NOT NULL,
    fingerprint TEXT NOT NULL,
    term TEXT NOT NULL DEFAULT '',
    reviewed_at DATETIME NOT NULL,

    FOREIGN KEY(session_id) REFERENCES sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_reviews_session ON reviews(session_id);
CREATE INDEX IF NOT EXISTS idx_reviews_card ON reviews(card_id);
`
