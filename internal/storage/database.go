package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/conorfennell/studymate/internal/domain"
	"github.com/conorfennell/studymate/internal/knol"
)

// DB is the SQLite implementation of Store.
type DB struct {
	conn  *sql.DB
	clock func() time.Time
}

var _ Store = (*DB)(nil)

// Open creates a new database connection and ensures the schema is up to date.
// The pool is limited to one connection: SQLite serializes writers anyway,
// and ":memory:" databases are private to their connection.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db, clock: time.Now}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateCourse inserts a course, assigning an id and creation time when unset.
func (db *DB) CreateCourse(ctx context.Context, course domain.Course) (domain.Course, error) {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = db.clock()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO courses (id, user_id, title, created_at)
		VALUES (?, ?, ?, ?)
	`, course.ID, course.UserID, course.Title, toUnix(course.CreatedAt))
	if err != nil {
		if isConstraint(err) {
			return domain.Course{}, fmt.Errorf("course %s: %w", course.ID, domain.ErrAlreadyExists)
		}
		return domain.Course{}, fmt.Errorf("failed to insert course %s: %w", course.ID, err)
	}
	course.CreatedAt = fromUnix(toUnix(course.CreatedAt))
	return course, nil
}

// GetCourse retrieves a course by id.
func (db *DB) GetCourse(ctx context.Context, id string) (domain.Course, error) {
	var (
		c         domain.Course
		createdAt int64
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, title, created_at
		FROM courses WHERE id = ?
	`, id).Scan(&c.ID, &c.UserID, &c.Title, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Course{}, fmt.Errorf("course %s: %w", id, domain.ErrNotFound)
		}
		return domain.Course{}, fmt.Errorf("failed to find course %s: %w", id, err)
	}
	c.CreatedAt = fromUnix(createdAt)
	return c, nil
}

// DeleteCourse removes a course; foreign keys cascade to everything it owns.
func (db *DB) DeleteCourse(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM courses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete course %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("course %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// CreateCard inserts a new card with a fresh scheduling state due at now.
func (db *DB) CreateCard(ctx context.Context, courseID string, content domain.Content, now time.Time) (domain.Card, error) {
	if err := domain.ValidateContent(content); err != nil {
		return domain.Card{}, err
	}
	if _, err := db.GetCourse(ctx, courseID); err != nil {
		return domain.Card{}, err
	}
	rec, err := encodeContent(content)
	if err != nil {
		return domain.Card{}, err
	}
	options, err := encodeOptions(rec.Options)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to encode options: %w", err)
	}

	card := domain.Card{
		ID:        knol.Hash(courseID, content),
		CourseID:  courseID,
		Content:   content,
		State:     domain.NewSchedulingState(now),
		CreatedAt: now,
	}
	st := card.State
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO cards (id, course_id, type, prompt, options, answer, explanation,
			ease_factor, interval_days, repetitions, lapses, due_at, last_reviewed_at, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.ID, courseID, rec.Type.String(), rec.Prompt, options, rec.Answer, rec.Explanation,
		st.EaseFactor, st.IntervalDays, st.Repetitions, st.Lapses,
		toUnix(st.DueAt), toNullUnix(st.LastReviewedAt), toUnix(db.clock()), toUnix(now),
	)
	if err != nil {
		if isConstraint(err) {
			return domain.Card{}, fmt.Errorf("card %s: %w", card.ID, domain.ErrAlreadyExists)
		}
		return domain.Card{}, fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	card.State.DueAt = fromUnix(toUnix(now))
	card.CreatedAt = card.State.DueAt
	return card, nil
}

const cardColumns = `id, course_id, type, prompt, options, answer, explanation,
	ease_factor, interval_days, repetitions, lapses, due_at, last_reviewed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (domain.Card, error) {
	var (
		c                domain.Card
		rec              contentRecord
		typ, options     string
		dueAt, createdAt int64
		lastReviewedAt   sql.NullInt64
	)
	err := row.Scan(
		&c.ID, &c.CourseID, &typ, &rec.Prompt, &options, &rec.Answer, &rec.Explanation,
		&c.State.EaseFactor, &c.State.IntervalDays, &c.State.Repetitions, &c.State.Lapses,
		&dueAt, &lastReviewedAt, &createdAt,
	)
	if err != nil {
		return domain.Card{}, err
	}
	if err := rec.Type.UnmarshalText([]byte(typ)); err != nil {
		return domain.Card{}, fmt.Errorf("card %s: %w", c.ID, err)
	}
	if rec.Options, err = decodeOptions(options); err != nil {
		return domain.Card{}, fmt.Errorf("card %s: failed to decode options: %w", c.ID, err)
	}
	if c.Content, err = rec.decode(); err != nil {
		return domain.Card{}, fmt.Errorf("card %s: %w", c.ID, err)
	}
	c.State.DueAt = fromUnix(dueAt)
	c.State.LastReviewedAt = fromNullUnix(lastReviewedAt)
	c.CreatedAt = fromUnix(createdAt)
	return c, nil
}

// GetCard retrieves a card with its scheduling state.
func (db *DB) GetCard(ctx context.Context, id string) (domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, fmt.Errorf("card %s: %w", id, domain.ErrNotFound)
		}
		return domain.Card{}, fmt.Errorf("failed to find card %s: %w", id, err)
	}
	return c, nil
}

// ListCards returns every card of the scope, oldest first.
func (db *DB) ListCards(ctx context.Context, scope domain.Scope) ([]domain.Card, error) {
	if err := db.checkScope(ctx, scope); err != nil {
		return nil, err
	}
	return db.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE course_id = ?
		ORDER BY created_at, id
	`, scope.CourseID)
}

// ListDue returns the cards of the scope due at or before now.
func (db *DB) ListDue(ctx context.Context, scope domain.Scope, now time.Time) ([]domain.Card, error) {
	if err := db.checkScope(ctx, scope); err != nil {
		return nil, err
	}
	return db.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE course_id = ? AND due_at <= ?
		ORDER BY due_at, lapses DESC, id
	`, scope.CourseID, toUnix(now))
}

func (db *DB) queryCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards: %w", err)
	}
	return cards, nil
}

func (db *DB) checkScope(ctx context.Context, scope domain.Scope) error {
	var one int
	err := db.conn.QueryRowContext(ctx, `
		SELECT 1 FROM courses WHERE id = ? AND user_id = ?
	`, scope.CourseID, scope.UserID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %s course %s: %w", scope.UserID, scope.CourseID, domain.ErrScopeNotFound)
		}
		return fmt.Errorf("failed to check scope: %w", err)
	}
	return nil
}

// UpdateSchedulingState overwrites a card's scheduling state in a single
// statement and stamps the write with the store's clock.
func (db *DB) UpdateSchedulingState(ctx context.Context, id string, st domain.SchedulingState) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards
		SET ease_factor = ?, interval_days = ?, repetitions = ?, lapses = ?,
			due_at = ?, last_reviewed_at = ?, updated_at = ?
		WHERE id = ?
	`,
		st.EaseFactor, st.IntervalDays, st.Repetitions, st.Lapses,
		toUnix(st.DueAt), toNullUnix(st.LastReviewedAt), toUnix(db.clock()),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update scheduling state for card %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update scheduling state for card %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("card %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ArchiveSession stores a session and its outcome log in one transaction.
// An earlier, unfinished archive of the same session is replaced.
func (db *DB) ArchiveSession(ctx context.Context, rec domain.SessionRecord) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM courses WHERE id = ? AND user_id = ?`,
		rec.Scope.CourseID, rec.Scope.UserID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", rec.ID, domain.ErrScopeNotFound)
	} else if err != nil {
		return fmt.Errorf("failed to check scope: %w", err)
	}

	var endedAt sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT ended_at FROM sessions WHERE id = ?`, rec.ID).Scan(&endedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to find session %s: %w", rec.ID, err)
	case endedAt.Valid:
		return fmt.Errorf("session %s: %w", rec.ID, domain.ErrAlreadyExists)
	default:
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, rec.ID); err != nil {
			return fmt.Errorf("failed to replace session %s: %w", rec.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, course_id, started_at, ended_at, queue, cursor)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Scope.UserID, rec.Scope.CourseID, toUnix(rec.StartedAt), toNullUnix(rec.EndedAt),
		strings.Join(rec.Queue, ","), rec.Cursor)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", rec.ID, err)
	}

	for i, o := range rec.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_outcomes (session_id, seq, card_id, grade, answered_at, latency_ms)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ID, i, o.CardID, o.Grade.String(), toUnix(o.AnsweredAt), o.Latency.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to insert outcome %d of session %s: %w", i, rec.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session %s: %w", rec.ID, err)
	}
	return nil
}

// GetSession retrieves an archived session with its outcomes in order.
func (db *DB) GetSession(ctx context.Context, id string) (domain.SessionRecord, error) {
	var (
		rec       domain.SessionRecord
		startedAt int64
		endedAt   sql.NullInt64
		queue     string
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, course_id, started_at, ended_at, queue, cursor
		FROM sessions WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Scope.UserID, &rec.Scope.CourseID, &startedAt, &endedAt, &queue, &rec.Cursor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SessionRecord{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return domain.SessionRecord{}, fmt.Errorf("failed to find session %s: %w", id, err)
	}
	rec.StartedAt = fromUnix(startedAt)
	rec.EndedAt = fromNullUnix(endedAt)
	if queue != "" {
		rec.Queue = strings.Split(queue, ",")
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_id, grade, answered_at, latency_ms
		FROM session_outcomes WHERE session_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("failed to query outcomes of session %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o          domain.ReviewOutcome
			grade      string
			answeredAt int64
			latencyMs  int64
		)
		if err := rows.Scan(&o.CardID, &grade, &answeredAt, &latencyMs); err != nil {
			return domain.SessionRecord{}, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		if o.Grade, err = domain.ParseGrade(grade); err != nil {
			return domain.SessionRecord{}, fmt.Errorf("session %s: %w", id, err)
		}
		o.AnsweredAt = fromUnix(answeredAt)
		o.Latency = time.Duration(latencyMs) * time.Millisecond
		rec.Outcomes = append(rec.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return domain.SessionRecord{}, fmt.Errorf("failed to iterate outcomes: %w", err)
	}
	return rec, nil
}

// AddSource registers a notes source for a course.
func (db *DB) AddSource(ctx context.Context, src domain.Source) (domain.Source, error) {
	if _, err := db.GetCourse(ctx, src.CourseID); err != nil {
		return domain.Source{}, err
	}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (course_id, path, type)
		VALUES (?, ?, ?)
	`, src.CourseID, src.Path, string(src.Type))
	if err != nil {
		if isConstraint(err) {
			return domain.Source{}, fmt.Errorf("source %s: %w", src.Path, domain.ErrAlreadyExists)
		}
		return domain.Source{}, fmt.Errorf("failed to insert source %s: %w", src.Path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Source{}, fmt.Errorf("failed to get last insert ID for source %s: %w", src.Path, err)
	}
	src.ID = id
	src.LastScanned = time.Time{}
	return src, nil
}

// ListSources returns the sources of a course, or of every course when
// courseID is empty.
func (db *DB) ListSources(ctx context.Context, courseID string) ([]domain.Source, error) {
	query := `SELECT id, course_id, path, type, last_scanned FROM sources`
	var args []any
	if courseID != "" {
		query += ` WHERE course_id = ?`
		args = append(args, courseID)
	}
	rows, err := db.conn.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var (
			s           domain.Source
			typ         string
			lastScanned sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.CourseID, &s.Path, &typ, &lastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		s.Type = domain.SourceType(typ)
		s.LastScanned = fromNullUnix(lastScanned)
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// MarkSourceScanned records when a source was last reconciled.
func (db *DB) MarkSourceScanned(ctx context.Context, id int64, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, toUnix(at), id)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("source %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT:
		return true
	}
	return false
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func toNullUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(t), Valid: true}
}

func fromNullUnix(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return fromUnix(n.Int64)
}
