package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studymate/internal/domain"
	"github.com/conorfennell/studymate/internal/knol"
)

// Memory is an in-process Store. Every method copies values in and out, so
// callers never share memory with the store.
type Memory struct {
	mu        sync.RWMutex
	clock     func() time.Time
	courses   map[string]domain.Course
	cards     map[string]domain.Card
	sources   map[int64]domain.Source
	sessions  map[string]domain.SessionRecord
	sourceSeq int64
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		clock:    time.Now,
		courses:  make(map[string]domain.Course),
		cards:    make(map[string]domain.Card),
		sources:  make(map[int64]domain.Source),
		sessions: make(map[string]domain.SessionRecord),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateCourse(ctx context.Context, course domain.Course) (domain.Course, error) {
	if err := ctx.Err(); err != nil {
		return domain.Course{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if _, ok := m.courses[course.ID]; ok {
		return domain.Course{}, fmt.Errorf("course %s: %w", course.ID, domain.ErrAlreadyExists)
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = m.clock()
	}
	course.CreatedAt = utc(course.CreatedAt)
	m.courses[course.ID] = course
	return course, nil
}

func (m *Memory) GetCourse(ctx context.Context, id string) (domain.Course, error) {
	if err := ctx.Err(); err != nil {
		return domain.Course{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return domain.Course{}, fmt.Errorf("course %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (m *Memory) DeleteCourse(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[id]; !ok {
		return fmt.Errorf("course %s: %w", id, domain.ErrNotFound)
	}
	delete(m.courses, id)
	for cid, c := range m.cards {
		if c.CourseID == id {
			delete(m.cards, cid)
		}
	}
	for sid, s := range m.sources {
		if s.CourseID == id {
			delete(m.sources, sid)
		}
	}
	for sid, s := range m.sessions {
		if s.Scope.CourseID == id {
			delete(m.sessions, sid)
		}
	}
	return nil
}

func (m *Memory) CreateCard(ctx context.Context, courseID string, content domain.Content, now time.Time) (domain.Card, error) {
	if err := ctx.Err(); err != nil {
		return domain.Card{}, err
	}
	if err := domain.ValidateContent(content); err != nil {
		return domain.Card{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[courseID]; !ok {
		return domain.Card{}, fmt.Errorf("course %s: %w", courseID, domain.ErrNotFound)
	}
	card := domain.Card{
		ID:        knol.Hash(courseID, content),
		CourseID:  courseID,
		Content:   content,
		State:     normalizeState(domain.NewSchedulingState(now)),
		CreatedAt: utc(now),
	}
	if _, ok := m.cards[card.ID]; ok {
		return domain.Card{}, fmt.Errorf("card %s: %w", card.ID, domain.ErrAlreadyExists)
	}
	m.cards[card.ID] = cloneCard(card)
	return cloneCard(card), nil
}

func (m *Memory) GetCard(ctx context.Context, id string) (domain.Card, error) {
	if err := ctx.Err(); err != nil {
		return domain.Card{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cards[id]
	if !ok {
		return domain.Card{}, fmt.Errorf("card %s: %w", id, domain.ErrNotFound)
	}
	return cloneCard(c), nil
}

func (m *Memory) ListCards(ctx context.Context, scope domain.Scope) ([]domain.Card, error) {
	return m.list(ctx, scope, func(domain.Card) bool { return true }, func(a, b domain.Card) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func (m *Memory) ListDue(ctx context.Context, scope domain.Scope, now time.Time) ([]domain.Card, error) {
	return m.list(ctx, scope, func(c domain.Card) bool { return c.State.IsDue(now) }, func(a, b domain.Card) int {
		if c := a.State.DueAt.Compare(b.State.DueAt); c != 0 {
			return c
		}
		if a.State.Lapses != b.State.Lapses {
			return b.State.Lapses - a.State.Lapses
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func (m *Memory) list(ctx context.Context, scope domain.Scope, keep func(domain.Card) bool, order func(a, b domain.Card) int) ([]domain.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkScopeLocked(scope); err != nil {
		return nil, err
	}
	var out []domain.Card
	for _, c := range m.cards {
		if c.CourseID == scope.CourseID && keep(c) {
			out = append(out, cloneCard(c))
		}
	}
	slices.SortFunc(out, order)
	return out, nil
}

func (m *Memory) checkScopeLocked(scope domain.Scope) error {
	c, ok := m.courses[scope.CourseID]
	if !ok || c.UserID != scope.UserID {
		return fmt.Errorf("user %s course %s: %w", scope.UserID, scope.CourseID, domain.ErrScopeNotFound)
	}
	return nil
}

func (m *Memory) UpdateSchedulingState(ctx context.Context, id string, state domain.SchedulingState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[id]
	if !ok {
		return fmt.Errorf("card %s: %w", id, domain.ErrNotFound)
	}
	c.State = normalizeState(state)
	m.cards[id] = c
	return nil
}

func (m *Memory) ArchiveSession(ctx context.Context, rec domain.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkScopeLocked(rec.Scope); err != nil {
		return fmt.Errorf("session %s: %w", rec.ID, err)
	}
	if prev, ok := m.sessions[rec.ID]; ok && prev.Ended() {
		return fmt.Errorf("session %s: %w", rec.ID, domain.ErrAlreadyExists)
	}
	rec = cloneSession(rec)
	rec.StartedAt, rec.EndedAt = utc(rec.StartedAt), utc(rec.EndedAt)
	for i := range rec.Outcomes {
		rec.Outcomes[i].AnsweredAt = utc(rec.Outcomes[i].AnsweredAt)
	}
	m.sessions[rec.ID] = rec
	return nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (domain.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionRecord{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return domain.SessionRecord{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return cloneSession(rec), nil
}

func (m *Memory) AddSource(ctx context.Context, src domain.Source) (domain.Source, error) {
	if err := ctx.Err(); err != nil {
		return domain.Source{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[src.CourseID]; !ok {
		return domain.Source{}, fmt.Errorf("course %s: %w", src.CourseID, domain.ErrNotFound)
	}
	for _, s := range m.sources {
		if s.CourseID == src.CourseID && s.Path == src.Path {
			return domain.Source{}, fmt.Errorf("source %s: %w", src.Path, domain.ErrAlreadyExists)
		}
	}
	m.sourceSeq++
	src.ID = m.sourceSeq
	src.LastScanned = time.Time{}
	m.sources[src.ID] = src
	return src, nil
}

func (m *Memory) ListSources(ctx context.Context, courseID string) ([]domain.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Source
	for _, s := range m.sources {
		if courseID == "" || s.CourseID == courseID {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b domain.Source) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *Memory) MarkSourceScanned(ctx context.Context, id int64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("source %d: %w", id, domain.ErrNotFound)
	}
	s.LastScanned = utc(at)
	m.sources[id] = s
	return nil
}

func cloneCard(c domain.Card) domain.Card {
	if mc, ok := c.Content.(domain.MultipleChoice); ok {
		mc.Options = slices.Clone(mc.Options)
		c.Content = mc
	}
	return c
}

// utc matches the times the database returns.
func utc(t time.Time) time.Time {
	return t.Round(0).UTC()
}

func normalizeState(s domain.SchedulingState) domain.SchedulingState {
	s.DueAt, s.LastReviewedAt = utc(s.DueAt), utc(s.LastReviewedAt)
	return s
}

func cloneSession(r domain.SessionRecord) domain.SessionRecord {
	r.Queue = slices.Clone(r.Queue)
	r.Outcomes = slices.Clone(r.Outcomes)
	return r
}
