package domain

import "time"

// Scope selects the cards of one course owned by one user.
type Scope struct {
	UserID   string
	CourseID string
}

// Course groups the cards generated from a user's notes.
type Course struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
}

// Scope returns the review scope of the course for its owner.
func (c Course) Scope() Scope {
	return Scope{UserID: c.UserID, CourseID: c.ID}
}

// SourceType tells how the notes of a Source are fetched.
type SourceType string

const (
	LocalSource SourceType = "local"
	GitSource   SourceType = "git"
)

// Source is a directory or git repository of markdown notes feeding a course.
type Source struct {
	ID          int64
	CourseID    string
	Path        string
	Type        SourceType
	LastScanned time.Time // zero until the first sync
}

// SessionRecord is the archived form of a review session.
type SessionRecord struct {
	ID        string
	Scope     Scope
	StartedAt time.Time
	EndedAt   time.Time // zero for abandoned sessions
	Queue     []string
	Cursor    int
	Outcomes  []ReviewOutcome
}

// Ended reports whether the session ran to completion.
func (r SessionRecord) Ended() bool {
	return !r.EndedAt.IsZero()
}
