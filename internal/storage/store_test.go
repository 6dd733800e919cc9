package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/studymate/internal/domain"
	"github.com/conorfennell/studymate/internal/scheduler"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "studymate.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		fn(t, db)
	})
}

func seedCourse(t *testing.T, s Store, userID string) domain.Course {
	t.Helper()
	c, err := s.CreateCourse(context.Background(), domain.Course{UserID: userID, Title: "Physics"})
	require.NoError(t, err)
	return c
}

func shortAnswer(n int) domain.ShortAnswer {
	return domain.ShortAnswer{Prompt: fmt.Sprintf("Question %d", n), Answer: fmt.Sprintf("Answer %d", n)}
}

func assertStateEqual(t *testing.T, want, got domain.SchedulingState) {
	t.Helper()
	assert.Equal(t, want.EaseFactor, got.EaseFactor, "EaseFactor")
	assert.Equal(t, want.IntervalDays, got.IntervalDays, "IntervalDays")
	assert.Equal(t, want.Repetitions, got.Repetitions, "Repetitions")
	assert.Equal(t, want.Lapses, got.Lapses, "Lapses")
	assert.True(t, want.DueAt.Equal(got.DueAt), "DueAt: want %v, got %v", want.DueAt, got.DueAt)
	assert.True(t, want.LastReviewedAt.Equal(got.LastReviewedAt), "LastReviewedAt: want %v, got %v", want.LastReviewedAt, got.LastReviewedAt)
}

func TestCourses(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := seedCourse(t, s, "alice")
		assert.NotEmpty(t, c.ID)

		got, err := s.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.UserID)
		assert.Equal(t, "Physics", got.Title)

		_, err = s.CreateCourse(ctx, domain.Course{ID: c.ID, UserID: "bob"})
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)

		_, err = s.GetCourse(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		assert.ErrorIs(t, s.DeleteCourse(ctx, "missing"), domain.ErrNotFound)
	})
}

func TestCreateCard(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := seedCourse(t, s, "alice")

		mc := domain.MultipleChoice{
			Prompt:      "What is the SI unit of force?",
			Options:     []string{"Joule", "Newton", "Watt", "Pascal"},
			Correct:     1,
			Explanation: "The Newton (N) is the SI unit of force.",
		}
		card, err := s.CreateCard(ctx, c.ID, mc, t0)
		require.NoError(t, err)
		assert.Equal(t, domain.MultipleChoiceType, card.Type())
		assert.Equal(t, domain.DefaultEaseFactor, card.State.EaseFactor)
		assert.True(t, card.State.DueAt.Equal(t0))

		got, err := s.GetCard(ctx, card.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.CourseID)
		assert.Equal(t, mc, got.Content)
		assertStateEqual(t, card.State, got.State)

		_, err = s.CreateCard(ctx, c.ID, mc, t0)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)

		_, err = s.CreateCard(ctx, c.ID, domain.ShortAnswer{Prompt: "No answer"}, t0)
		assert.ErrorIs(t, err, domain.ErrInvalidContent)

		_, err = s.CreateCard(ctx, "missing", shortAnswer(1), t0)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = s.GetCard(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestContentVariantsRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := seedCourse(t, s, "alice")
		contents := []domain.Content{
			domain.MultipleChoice{Prompt: "Pick", Options: []string{"a", "b", "c"}, Correct: 2},
			domain.Cloze{Text: "Force is measured in " + domain.ClozeBlank + ".", Answer: "newtons", Explanation: "SI"},
			domain.ShortAnswer{Prompt: "Define acceleration.", Answer: "Rate of change of velocity"},
		}
		for _, content := range contents {
			card, err := s.CreateCard(ctx, c.ID, content, t0)
			require.NoError(t, err)
			got, err := s.GetCard(ctx, card.ID)
			require.NoError(t, err)
			assert.Equal(t, content, got.Content)
		}

		cards, err := s.ListCards(ctx, c.Scope())
		require.NoError(t, err)
		assert.Len(t, cards, 3)
	})
}

func TestUpdateSchedulingStateRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := seedCourse(t, s, "alice")
		card, err := s.CreateCard(ctx, c.ID, shortAnswer(1), t0)
		require.NoError(t, err)

		want := domain.SchedulingState{
			EaseFactor:     2.36,
			IntervalDays:   15,
			Repetitions:    3,
			Lapses:         2,
			LastReviewedAt: t0.Add(90 * time.Minute),
			DueAt:          t0.Add(90*time.Minute + 15*24*time.Hour),
		}
		require.NoError(t, s.UpdateSchedulingState(ctx, card.ID, want))

		got, err := s.GetCard(ctx, card.ID)
		require.NoError(t, err)
		assertStateEqual(t, want, got.State)
		assert.Equal(t, card.Content, got.Content, "content must not change")

		assert.ErrorIs(t, s.UpdateSchedulingState(ctx, "missing", want), domain.ErrNotFound)
	})
}

func TestTimesComeBackInUTC(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := seedCourse(t, s, "alice")
		now := time.Now().In(time.FixedZone("CEST", 2*60*60))
		card, err := s.CreateCard(ctx, c.ID, shortAnswer(1), now)
		require.NoError(t, err)

		got, err := s.GetCard(ctx, card.ID)
		require.NoError(t, err)
		assert.Equal(t, now.Round(0).UTC(), got.State.DueAt)
		assert.Equal(t, time.UTC, got.State.DueAt.Location())
	})
}

func TestLongIntervalsRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := seedCourse(t, s, "alice")
		card, err := s.CreateCard(ctx, c.ID, shortAnswer(1), t0)
		require.NoError(t, err)

		p := scheduler.DefaultParams()
		state := card.State
		for i := range 12 {
			state, err = p.Next(state, domain.Easy, t0)
			require.NoError(t, err)
			require.True(t, state.DueAt.Equal(t0.AddDate(0, 0, state.IntervalDays)), "review %d: DueAt %v for %d days", i+1, state.DueAt, state.IntervalDays)

			require.NoError(t, s.UpdateSchedulingState(ctx, card.ID, state))
			got, err := s.GetCard(ctx, card.ID)
			require.NoError(t, err)
			assertStateEqual(t, state, got.State)
		}
		assert.Equal(t, p.MaxInterval, state.IntervalDays)
	})
}

func TestListDue(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := seedCourse(t, s, "alice")
		other := seedCourse(t, s, "alice")

		var ids []string
		for i := 0; i < 5; i++ {
			card, err := s.CreateCard(ctx, c.ID, shortAnswer(i), t0)
			require.NoError(t, err)
			ids = append(ids, card.ID)
		}
		_, err := s.CreateCard(ctx, other.ID, shortAnswer(99), t0)
		require.NoError(t, err)

		states := []domain.SchedulingState{
			{EaseFactor: 2.5, DueAt: t0.Add(2 * time.Hour)},            // due, later
			{EaseFactor: 2.5, DueAt: t0.Add(time.Hour), Lapses: 1},     // due, earlier, one lapse
			{EaseFactor: 2.5, DueAt: t0.Add(time.Hour), Lapses: 4},     // due, earlier, most lapses
			{EaseFactor: 2.5, DueAt: t0.Add(48 * time.Hour)},           // not due
			{EaseFactor: 2.5, DueAt: t0.Add(3 * time.Hour), Lapses: 0}, // due exactly at now
		}
		for i, st := range states {
			require.NoError(t, s.UpdateSchedulingState(ctx, ids[i], st))
		}

		now := t0.Add(3 * time.Hour)
		due, err := s.ListDue(ctx, c.Scope(), now)
		require.NoError(t, err)

		got := make([]string, 0, len(due))
		for _, d := range due {
			got = append(got, d.ID)
			assert.Equal(t, c.ID, d.CourseID)
		}
		assert.Equal(t, []string{ids[2], ids[1], ids[0], ids[4]}, got)

		again, err := s.ListDue(ctx, c.Scope(), now)
		require.NoError(t, err)
		assert.Equal(t, due, again, "listing twice without writes must be identical")

		_, err = s.ListDue(ctx, domain.Scope{UserID: "bob", CourseID: c.ID}, now)
		assert.ErrorIs(t, err, domain.ErrScopeNotFound)
		_, err = s.ListDue(ctx, domain.Scope{UserID: "alice", CourseID: "missing"}, now)
		assert.ErrorIs(t, err, domain.ErrScopeNotFound)
	})
}

func TestConcurrentUpdatesSameCard(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := seedCourse(t, s, "alice")
		card, err := s.CreateCard(ctx, c.ID, shortAnswer(1), t0)
		require.NoError(t, err)

		const writers = 16
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 1; i <= writers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				errs <- s.UpdateSchedulingState(ctx, card.ID, domain.SchedulingState{
					EaseFactor:   2.5,
					IntervalDays: n,
					Repetitions:  n,
					DueAt:        t0.Add(time.Duration(n) * 24 * time.Hour),
				})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.GetCard(ctx, card.ID)
		require.NoError(t, err)
		// Whole states are written atomically: fields from different writers never mix.
		assert.Equal(t, got.State.IntervalDays, got.State.Repetitions)
		assert.True(t, got.State.DueAt.Equal(t0.Add(time.Duration(got.State.IntervalDays)*24*time.Hour)))
	})
}

func TestArchiveSession(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := seedCourse(t, s, "alice")

		rec := domain.SessionRecord{
			ID:        "s1",
			Scope:     c.Scope(),
			StartedAt: t0,
			Queue:     []string{"a", "b"},
			Cursor:    1,
			Outcomes: []domain.ReviewOutcome{
				{CardID: "a", Grade: domain.Good, AnsweredAt: t0.Add(time.Minute), Latency: 1500 * time.Millisecond},
			},
		}
		require.NoError(t, s.ArchiveSession(ctx, rec))

		// An unfinished session may be archived again as it progresses.
		rec.Cursor = 2
		rec.EndedAt = t0.Add(2 * time.Minute)
		rec.Outcomes = append(rec.Outcomes, domain.ReviewOutcome{CardID: "b", Grade: domain.Fail, AnsweredAt: rec.EndedAt})
		require.NoError(t, s.ArchiveSession(ctx, rec))

		got, err := s.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, rec.Scope, got.Scope)
		assert.Equal(t, []string{"a", "b"}, got.Queue)
		assert.Equal(t, 2, got.Cursor)
		assert.True(t, got.Ended())
		require.Len(t, got.Outcomes, 2)
		assert.Equal(t, domain.Good, got.Outcomes[0].Grade)
		assert.Equal(t, 1500*time.Millisecond, got.Outcomes[0].Latency)
		assert.Equal(t, "b", got.Outcomes[1].CardID)

		assert.ErrorIs(t, s.ArchiveSession(ctx, rec), domain.ErrAlreadyExists)

		rec.ID = "s2"
		rec.Scope.UserID = "mallory"
		assert.ErrorIs(t, s.ArchiveSession(ctx, rec), domain.ErrScopeNotFound)

		_, err = s.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestSources(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := seedCourse(t, s, "alice")

		src, err := s.AddSource(ctx, domain.Source{CourseID: c.ID, Path: "notes", Type: domain.LocalSource})
		require.NoError(t, err)
		assert.NotZero(t, src.ID)

		_, err = s.AddSource(ctx, domain.Source{CourseID: c.ID, Path: "notes", Type: domain.LocalSource})
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
		_, err = s.AddSource(ctx, domain.Source{CourseID: "missing", Path: "notes", Type: domain.LocalSource})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, s.MarkSourceScanned(ctx, src.ID, t0))
		assert.ErrorIs(t, s.MarkSourceScanned(ctx, 999, t0), domain.ErrNotFound)

		sources, err := s.ListSources(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, sources, 1)
		assert.Equal(t, "notes", sources[0].Path)
		assert.Equal(t, domain.LocalSource, sources[0].Type)
		assert.True(t, sources[0].LastScanned.Equal(t0))

		all, err := s.ListSources(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestDeleteCourseCascades(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := seedCourse(t, s, "alice")
		keep := seedCourse(t, s, "alice")

		card, err := s.CreateCard(ctx, c.ID, shortAnswer(1), t0)
		require.NoError(t, err)
		kept, err := s.CreateCard(ctx, keep.ID, shortAnswer(1), t0)
		require.NoError(t, err)
		_, err = s.AddSource(ctx, domain.Source{CourseID: c.ID, Path: "notes", Type: domain.LocalSource})
		require.NoError(t, err)
		require.NoError(t, s.ArchiveSession(ctx, domain.SessionRecord{ID: "s1", Scope: c.Scope(), StartedAt: t0}))

		require.NoError(t, s.DeleteCourse(ctx, c.ID))

		_, err = s.GetCard(ctx, card.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.GetSession(ctx, "s1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		sources, err := s.ListSources(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, sources)
		_, err = s.ListDue(ctx, c.Scope(), t0)
		assert.ErrorIs(t, err, domain.ErrScopeNotFound)

		_, err = s.GetCard(ctx, kept.ID)
		assert.NoError(t, err, "cards of other courses survive")
	})
}
