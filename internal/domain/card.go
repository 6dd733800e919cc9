package domain

import "time"

// Initial scheduling values for a card that has never been reviewed.
const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3
)

// Card is a unit of knowledge to be tested. Content is immutable once the
// card is created; only State changes, once per review.
type Card struct {
	ID        string
	CourseID  string
	Content   Content
	State     SchedulingState
	CreatedAt time.Time
}

// Type reports the content variant of the card.
func (c Card) Type() CardType {
	if c.Content == nil {
		return 0
	}
	return c.Content.Type()
}

// SchedulingState holds the spaced-repetition state of a card.
// DueAt is always LastReviewedAt + IntervalDays once the card has been reviewed.
type SchedulingState struct {
	EaseFactor     float64
	IntervalDays   int
	Repetitions    int
	Lapses         int
	DueAt          time.Time
	LastReviewedAt time.Time // zero before the first review
}

// NewSchedulingState returns the state of a freshly created card, due at now.
func NewSchedulingState(now time.Time) SchedulingState {
	return SchedulingState{
		EaseFactor: DefaultEaseFactor,
		DueAt:      now,
	}
}

// IsDue reports whether the card re-entered the due queue at or before now.
func (s SchedulingState) IsDue(now time.Time) bool {
	return !s.DueAt.After(now)
}

// Reviewed reports whether the card has been reviewed at least once.
func (s SchedulingState) Reviewed() bool {
	return !s.LastReviewedAt.IsZero()
}

// ReviewOutcome is the result of one answer given by the user.
type ReviewOutcome struct {
	CardID     string
	Grade      Grade
	AnsweredAt time.Time
	Latency    time.Duration // zero when not recorded
}
