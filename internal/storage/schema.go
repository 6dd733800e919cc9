package storage

// Times are stored as Unix nanoseconds in UTC so that round trips are exact
// and range queries compare integers.
const schema = `
-- The 'courses' table groups cards; every course belongs to one user.
CREATE TABLE IF NOT EXISTS courses (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

-- The 'cards' table stores immutable content plus the mutable scheduling state.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    course_id TEXT NOT NULL,
    type TEXT NOT NULL,
    prompt TEXT NOT NULL,
    options TEXT NOT NULL DEFAULT '',
    answer TEXT NOT NULL,
    explanation TEXT NOT NULL DEFAULT '',
    ease_factor REAL NOT NULL,
    interval_days INTEGER NOT NULL,
    repetitions INTEGER NOT NULL,
    lapses INTEGER NOT NULL,
    due_at INTEGER NOT NULL,
    last_reviewed_at INTEGER,
    updated_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL,

    FOREIGN KEY(course_id) REFERENCES courses(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cards_course_due ON cards(course_id, due_at);

-- The 'sources' table tracks where a course's notes come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    course_id TEXT NOT NULL,
    path TEXT NOT NULL,
    type TEXT NOT NULL,
    last_scanned INTEGER,

    UNIQUE(course_id, path),
    FOREIGN KEY(course_id) REFERENCES courses(id) ON DELETE CASCADE
);

-- The 'sessions' and 'session_outcomes' tables archive review sessions for analytics.
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    course_id TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    ended_at INTEGER,
    queue TEXT NOT NULL,
    cursor INTEGER NOT NULL,

    FOREIGN KEY(course_id) REFERENCES courses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS session_outcomes (
    session_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    card_id TEXT NOT NULL,
    grade TEXT NOT NULL,
    answered_at INTEGER NOT NULL,
    latency_ms INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY(session_id, seq),
    FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
);
`
