// Package queue builds the ordered list of cards a review session walks.
package queue

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/studymate/internal/domain"
)

// DueLister is the part of the card store the builder reads from.
type DueLister interface {
	ListDue(ctx context.Context, scope domain.Scope, now time.Time) ([]domain.Card, error)
}

// Builder snapshots the due cards of a scope into a Queue.
type Builder struct {
	store DueLister
	limit int
}

// NewBuilder returns a builder reading from store. A limit above zero caps
// the number of cards in each queue after ordering.
func NewBuilder(store DueLister, limit int) *Builder {
	return &Builder{store: store, limit: max(limit, 0)}
}

// Build returns the cards of scope due at or before now, most overdue first.
// Cards due at the same instant are ordered by lapses, most first, then by id.
// The queue is a snapshot: later store writes do not change it.
func (b *Builder) Build(ctx context.Context, scope domain.Scope, now time.Time) (Queue, error) {
	cards, err := b.store.ListDue(ctx, scope, now)
	if err != nil {
		return Queue{}, fmt.Errorf("failed to list due cards: %w", err)
	}

	// Stores already order due cards; sort anyway so the order holds for any lister.
	slices.SortStableFunc(cards, compareDue)
	if b.limit > 0 && len(cards) > b.limit {
		cards = cards[:b.limit]
	}

	return Queue{ids: lo.Map(cards, func(c domain.Card, _ int) string { return c.ID })}, nil
}

func compareDue(a, b domain.Card) int {
	if c := a.State.DueAt.Compare(b.State.DueAt); c != 0 {
		return c
	}
	if c := cmp.Compare(b.State.Lapses, a.State.Lapses); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Queue is an immutable, ordered list of card ids.
type Queue struct {
	ids []string
}

// New returns a queue over ids in the given order.
func New(ids ...string) Queue {
	return Queue{ids: slices.Clone(ids)}
}

// Len returns the number of cards in the queue.
func (q Queue) Len() int { return len(q.ids) }

// At returns the id at position i.
func (q Queue) At(i int) string { return q.ids[i] }

// IDs returns a copy of the ids in order.
func (q Queue) IDs() []string { return slices.Clone(q.ids) }

// All iterates the ids in order. It can be ranged over any number of times.
func (q Queue) All() iter.Seq[string] {
	return slices.Values(q.ids)
}
