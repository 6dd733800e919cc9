package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/studymate/internal/domain"
	"github.com/conorfennell/studymate/internal/queue"
	"github.com/conorfennell/studymate/internal/scheduler"
)

// CardStore is the part of the card store the controller reads and writes.
type CardStore interface {
	GetCard(ctx context.Context, id string) (domain.Card, error)
	UpdateSchedulingState(ctx context.Context, id string, state domain.SchedulingState) error
	ArchiveSession(ctx context.Context, record domain.SessionRecord) error
}

// QueueBuilder produces the due queue a session walks.
type QueueBuilder interface {
	Build(ctx context.Context, scope domain.Scope, now time.Time) (queue.Queue, error)
}

// Controller runs the session state machine
// NotStarted -> InProgress -> Completed. Its only side effects are the
// scheduling-state write for each answer and archiving finished sessions.
type Controller struct {
	store  CardStore
	params *scheduler.Params
	queues QueueBuilder
	clock  func() time.Time
	logger *slog.Logger
}

// NewController returns a controller. A nil logger uses slog.Default().
func NewController(store CardStore, params *scheduler.Params, queues QueueBuilder, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:  store,
		params: params,
		queues: queues,
		clock:  time.Now,
		logger: logger,
	}
}

// Start snapshots the due queue of the session's scope. With nothing due it
// fails with ErrEmptyQueue and the session stays NotStarted.
func (c *Controller) Start(ctx context.Context, s *Session, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != NotStarted {
		return fmt.Errorf("session %s is %s: %w", s.id, s.state, ErrAlreadyStarted)
	}

	q, err := c.queues.Build(ctx, s.scope, now)
	if err != nil {
		return fmt.Errorf("failed to build queue for session %s: %w", s.id, err)
	}
	if q.Len() == 0 {
		return ErrEmptyQueue
	}

	s.queue = q
	s.cursor = 0
	s.startedAt = now
	s.state = InProgress
	c.logger.Info("Session started", "session", s.id, "user", s.scope.UserID, "course", s.scope.CourseID, "cards", q.Len())
	return nil
}

// CurrentCard returns the card at the cursor.
func (c *Controller) CurrentCard(ctx context.Context, s *Session) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.currentIDLocked()
	if err != nil {
		return domain.Card{}, err
	}
	card, err := c.store.GetCard(ctx, id)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to get current card of session %s: %w", s.id, err)
	}
	return card, nil
}

func (s *Session) currentIDLocked() (string, error) {
	switch s.state {
	case NotStarted:
		return "", fmt.Errorf("session %s: %w", s.id, ErrNotInProgress)
	case Completed:
		return "", ErrSessionComplete
	}
	if s.cursor >= s.queue.Len() {
		return "", ErrSessionComplete
	}
	return s.queue.At(s.cursor), nil
}

// SubmitAnswer schedules the current card from outcome, writes the new state
// and advances the cursor. Answering the last card completes and archives the
// session. If scheduling or the write fails the cursor does not move and the
// same answer may be submitted again.
//
// A zero AnsweredAt is stamped with the controller's clock.
func (c *Controller) SubmitAnswer(ctx context.Context, s *Session, outcome domain.ReviewOutcome) (domain.SchedulingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.currentIDLocked()
	if err != nil {
		return domain.SchedulingState{}, err
	}
	if outcome.CardID != id {
		return domain.SchedulingState{}, fmt.Errorf("got card %s, current card is %s: %w", outcome.CardID, id, ErrOutOfOrderAnswer)
	}
	if !outcome.Grade.IsValid() {
		return domain.SchedulingState{}, fmt.Errorf("card %s: %w: %d", id, scheduler.ErrInvalidGrade, int(outcome.Grade))
	}
	if outcome.AnsweredAt.IsZero() {
		outcome.AnsweredAt = c.clock()
	}

	card, err := c.store.GetCard(ctx, id)
	if err != nil {
		return domain.SchedulingState{}, fmt.Errorf("failed to get card %s: %w", id, err)
	}

	next, err := c.params.Next(card.State, outcome.Grade, outcome.AnsweredAt)
	if err != nil {
		c.logger.Error("Failed to schedule card", "session", s.id, "card", id, "grade", outcome.Grade, "error", err)
		return domain.SchedulingState{}, fmt.Errorf("failed to schedule card %s: %w", id, err)
	}

	if err := c.store.UpdateSchedulingState(ctx, id, next); err != nil {
		return domain.SchedulingState{}, fmt.Errorf("failed to store scheduling state of card %s: %w", id, err)
	}

	s.outcomes = append(s.outcomes, outcome)
	s.cursor++
	c.logger.Debug("Answer recorded",
		"session", s.id,
		"card", id,
		"grade", outcome.Grade,
		"interval_days", next.IntervalDays,
		"due_at", next.DueAt,
	)

	if s.cursor == s.queue.Len() {
		s.state = Completed
		s.endedAt = outcome.AnsweredAt
		st := NewStats(s.outcomes)
		c.logger.Info("Session completed", "session", s.id, "answered", st.Total, "accuracy", st.Accuracy)
		if err := c.archiveLocked(ctx, s); err != nil {
			c.logger.Warn("Failed to archive session", "session", s.id, "error", err)
		}
	}
	return next, nil
}

// Archive hands the session record to the store. It retries a failed
// archival of a completed session and records abandoned sessions, which
// keep no end time and may be archived again as they progress.
// Archiving a completed session twice is a no-op.
func (c *Controller) Archive(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == NotStarted:
		return fmt.Errorf("session %s: %w", s.id, ErrNotInProgress)
	case s.state == Completed && s.archived:
		return nil
	}
	return c.archiveLocked(ctx, s)
}

func (c *Controller) archiveLocked(ctx context.Context, s *Session) error {
	if err := c.store.ArchiveSession(ctx, s.recordLocked()); err != nil {
		return fmt.Errorf("failed to archive session %s: %w", s.id, err)
	}
	s.archived = s.state == Completed
	return nil
}
