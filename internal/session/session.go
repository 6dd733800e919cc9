// Package session drives one review run over the due cards of a course.
//
// A Session is an explicit handle: callers create it with New and pass it to
// every Controller call. The handle guards its own state, so a session may be
// driven from several goroutines, but calls on it are serialized.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studymate/internal/domain"
	"github.com/conorfennell/studymate/internal/queue"
)

var (
	// ErrEmptyQueue means nothing is due. It is the expected steady state,
	// not a failure; the session stays NotStarted.
	ErrEmptyQueue = errors.New("no cards due")
	// ErrSessionComplete means every card of the queue has been answered.
	ErrSessionComplete = errors.New("session complete")
	// ErrOutOfOrderAnswer means the answer is not for the current card.
	ErrOutOfOrderAnswer = errors.New("answer is not for the current card")
	ErrNotInProgress    = errors.New("session not in progress")
	ErrAlreadyStarted   = errors.New("session already started")
)

// State is the lifecycle position of a session.
type State int

const (
	NotStarted State = iota
	InProgress
	Completed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case InProgress:
		return "in-progress"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Session is one review run. Its fields change only through a Controller.
type Session struct {
	mu        sync.Mutex
	id        string
	scope     domain.Scope
	state     State
	queue     queue.Queue
	cursor    int
	startedAt time.Time
	endedAt   time.Time
	outcomes  []domain.ReviewOutcome
	archived  bool
}

// New returns a session for scope that has not started yet.
func New(scope domain.Scope) *Session {
	return &Session{id: uuid.NewString(), scope: scope}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Scope() domain.Scope { return s.scope }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the number of answered cards and the queue length.
func (s *Session) Progress() (answered, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, s.queue.Len()
}

// Record returns the archival form of the session.
func (s *Session) Record() domain.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked()
}

func (s *Session) recordLocked() domain.SessionRecord {
	return domain.SessionRecord{
		ID:        s.id,
		Scope:     s.scope,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		Queue:     s.queue.IDs(),
		Cursor:    s.cursor,
		Outcomes:  append([]domain.ReviewOutcome(nil), s.outcomes...),
	}
}

// Stats summarizes the answers given so far. It is valid in any state.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewStats(s.outcomes)
}
