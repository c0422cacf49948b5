package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/ankibot/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Session goroutines write concurrently; sqlite allows one writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is still reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Session is the stored summary of one review session.
type Session struct {
	ID        string       `json:"id"`
	Owner     string       `json:"owner"`
	Deck      string       `json:"deck"`
	Source    string       `json:"source"`
	State     string       `json:"state"`
	Reason    string       `json:"reason,omitempty"`
	Error     string       `json:"error,omitempty"`
	Total     int          `json:"total"`
	Reviewed  int          `json:"reviewed"`
	Failed    int          `json:"failed"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   sql.NullTime `json:"-"`
}

// Review is one rating given during a session.
type Review struct {
	ID          int64         `json:"id"`
	SessionID   string        `json:"session_id"`
	CardID      domain.CardID `json:"card_id"`
	Position    int           `json:"position"`
	Rating      domain.Rating `json:"rating"`
	Submitted   bool          `json:"submitted"`
	Fingerprint string        `json:"fingerprint"`
	Term        string        `json:"term"`
	ReviewedAt  time.Time     `json:"reviewed_at"`
}

// UpsertSession inserts a session or overwrites the stored one with the same id.
func (db *DB) UpsertSession(s Session) error {
	_, err := db.conn.Exec(`
		INSERT INTO sessions (id, owner, deck, source, state, reason, error, total, reviewed, failed, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			deck = excluded.deck,
			source = excluded.source,
			state = excluded.state,
			reason = excluded.reason,
			error = excluded.error,
			total = excluded.total,
			reviewed = excluded.reviewed,
			failed = excluded.failed,
			ended_at = excluded.ended_at
	`,
		s.ID,
		s.Owner,
		s.Deck,
		s.Source,
		s.State,
		s.Reason,
		s.Error,
		s.Total,
		s.Reviewed,
		s.Failed,
		s.StartedAt,
		s.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", s.ID, err)
	}
	return nil
}

// UpdateSessionState records the phase a running session is in.
func (db *DB) UpdateSessionState(id, state string) error {
	_, err := db.conn.Exec(`
		UPDATE sessions
		SET state = ?
		WHERE id = ?
	`, state, id)
	if err != nil {
		return fmt.Errorf("failed to update state of session %s: %w", id, err)
	}
	return nil
}

const sessionColumns = `id, owner, deck, source, state, reason, error, total, reviewed, failed, started_at, ended_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	err := row.Scan(
		&s.ID,
		&s.Owner,
		&s.Deck,
		&s.Source,
		&s.State,
		&s.Reason,
		&s.Error,
		&s.Total,
		&s.Reviewed,
		&s.Failed,
		&s.StartedAt,
		&s.EndedAt,
	)
	return s, err
}

// FindSession retrieves a session by id.
func (db *DB) FindSession(id string) (*Session, error) {
	row := db.conn.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find session %s: %w", id, err)
	}
	return &s, nil
}

// RecentSessions returns up to limit sessions, newest first. An owner other
// than "" restricts the result to that user's sessions.
func (db *DB) RecentSessions(owner string, limit int) ([]Session, error) {
	rows, err := db.conn.Query(`
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE ? = '' OR owner = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, owner, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// InsertReview stores one rating and returns its ID.
func (db *DB) InsertReview(r Review) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO reviews (session_id, card_id, position, rating, submitted, fingerprint, term, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.SessionID,
		int64(r.CardID),
		r.Position,
		int(r.Rating),
		r.Submitted,
		r.Fingerprint,
		r.Term,
		r.ReviewedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert review of card %d: %w", r.CardID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for review of card %d: %w", r.CardID, err)
	}
	return id, nil
}

// ReviewsBySession retrieves every rating of a session in the order given.
func (db *DB) ReviewsBySession(sessionID string) ([]Review, error) {
	rows, err := db.conn.Query(`
		SELECT id, session_id, card_id, position, rating, submitted, fingerprint, term, reviewed_at
		FROM reviews WHERE session_id = ?
		ORDER BY position, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	reviews := []Review{}
	for rows.Next() {
		var r Review
		if err := rows.Scan(
			&r.ID,
			&r.SessionID,
			&r.CardID,
			&r.Position,
			&r.Rating,
			&r.Submitted,
			&r.Fingerprint,
			&r.Term,
			&r.ReviewedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review row for session %s: %w", sessionID, err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// CountReviewsByFingerprint tells how often a card with exactly this content
// has been rated, across all sessions.
func (db *DB) CountReviewsByFingerprint(fingerprint string) (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM reviews WHERE fingerprint = ?`, fingerprint).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews for %s: %w", fingerprint, err)
	}
	return n, nil
}
