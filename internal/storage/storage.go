// Package storage persists courses, cards with their scheduling state,
// note sources and archived review sessions.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/conorfennell/studymate/internal/domain"
)

// Store is the card store contract. Lookups of unknown ids fail with
// domain.ErrNotFound; unknown or foreign scopes fail with
// domain.ErrScopeNotFound. Times come back normalized to UTC without a
// monotonic clock reading, so compare them with time.Time.Equal.
type Store interface {
	CreateCourse(ctx context.Context, course domain.Course) (domain.Course, error)
	GetCourse(ctx context.Context, id string) (domain.Course, error)
	// DeleteCourse removes the course with its cards, sources and sessions.
	DeleteCourse(ctx context.Context, id string) error

	// CreateCard validates content and stores a new card due at now. The id
	// is derived from the content, so creating the same content twice in a
	// course fails with domain.ErrAlreadyExists.
	CreateCard(ctx context.Context, courseID string, content domain.Content, now time.Time) (domain.Card, error)
	GetCard(ctx context.Context, id string) (domain.Card, error)
	ListCards(ctx context.Context, scope domain.Scope) ([]domain.Card, error)
	// ListDue returns every card in scope with DueAt at or before now.
	ListDue(ctx context.Context, scope domain.Scope, now time.Time) ([]domain.Card, error)
	// UpdateSchedulingState replaces the state of one card atomically.
	// Concurrent writers are applied in arrival order; the last one wins.
	UpdateSchedulingState(ctx context.Context, id string, state domain.SchedulingState) error

	// ArchiveSession stores a session record. A record that has ended is
	// immutable and cannot be archived again.
	ArchiveSession(ctx context.Context, record domain.SessionRecord) error
	GetSession(ctx context.Context, id string) (domain.SessionRecord, error)

	AddSource(ctx context.Context, source domain.Source) (domain.Source, error)
	ListSources(ctx context.Context, courseID string) ([]domain.Source, error)
	MarkSourceScanned(ctx context.Context, id int64, at time.Time) error

	Close() error
}

// contentRecord is the flat, persisted form of a card's content.
type contentRecord struct {
	Type        domain.CardType
	Prompt      string
	Options     []string
	Answer      string
	Explanation string
}

func encodeContent(c domain.Content) (contentRecord, error) {
	switch v := c.(type) {
	case domain.MultipleChoice:
		return contentRecord{
			Type:        domain.MultipleChoiceType,
			Prompt:      v.Prompt,
			Options:     append([]string(nil), v.Options...),
			Answer:      fmt.Sprint(v.Correct),
			Explanation: v.Explanation,
		}, nil
	case domain.Cloze:
		return contentRecord{Type: domain.ClozeType, Prompt: v.Text, Answer: v.Answer, Explanation: v.Explanation}, nil
	case domain.ShortAnswer:
		return contentRecord{Type: domain.ShortAnswerType, Prompt: v.Prompt, Answer: v.Answer, Explanation: v.Explanation}, nil
	default:
		return contentRecord{}, fmt.Errorf("%w: unknown content %T", domain.ErrInvalidContent, c)
	}
}

func (r contentRecord) decode() (domain.Content, error) {
	switch r.Type {
	case domain.MultipleChoiceType:
		var correct int
		if _, err := fmt.Sscan(r.Answer, &correct); err != nil {
			return nil, fmt.Errorf("%w: correct option %q: %v", domain.ErrInvalidContent, r.Answer, err)
		}
		return domain.MultipleChoice{
			Prompt:      r.Prompt,
			Options:     append([]string(nil), r.Options...),
			Correct:     correct,
			Explanation: r.Explanation,
		}, nil
	case domain.ClozeType:
		return domain.Cloze{Text: r.Prompt, Answer: r.Answer, Explanation: r.Explanation}, nil
	case domain.ShortAnswerType:
		return domain.ShortAnswer{Prompt: r.Prompt, Answer: r.Answer, Explanation: r.Explanation}, nil
	default:
		return nil, fmt.Errorf("%w: card type %d", domain.ErrInvalidContent, int(r.Type))
	}
}

func encodeOptions(opts []string) (string, error) {
	if len(opts) == 0 {
		return "", nil
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeOptions(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var opts []string
	if err := json.Unmarshal([]byte(s), &opts); err != nil {
		return nil, err
	}
	return opts, nil
}
