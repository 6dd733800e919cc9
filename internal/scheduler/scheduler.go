// Package scheduler computes the next review of a card from a review grade.
// It is an adapted SM-2: ease factor grows or shrinks with the grade and the
// interval grows geometrically across consecutive successes.
package scheduler

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/studymate/internal/domain"
)

var (
	// ErrInvalidGrade is returned for a grade outside fail, hard, good and easy.
	ErrInvalidGrade = domain.ErrInvalidGrade
	// ErrInvalidState is returned for a corrupted input state.
	ErrInvalidState = errors.New("scheduler: invalid scheduling state")
)

const day = 24 * time.Hour

// Params holds the constants of the algorithm. MaxInterval caps every
// interval so due times stay representable.
type Params struct {
	InitialEase    float64 `koanf:"initial_ease" validate:"gtefield=MinEase"`
	MinEase        float64 `koanf:"min_ease" validate:"gt=0"`
	FailPenalty    float64 `koanf:"fail_penalty" validate:"gte=0"`
	HardPenalty    float64 `koanf:"hard_penalty" validate:"gte=0"`
	HardMultiplier float64 `koanf:"hard_multiplier" validate:"gte=1"`
	EasyBonus      float64 `koanf:"easy_bonus" validate:"gte=0"`
	EasyMultiplier float64 `koanf:"easy_multiplier" validate:"gte=1"`
	FirstInterval  int     `koanf:"first_interval" validate:"gte=1"`
	SecondInterval int     `koanf:"second_interval" validate:"gtefield=FirstInterval"`
	LapseInterval  int     `koanf:"lapse_interval" validate:"gte=1,ltefield=MaxInterval"`
	MaxInterval    int     `koanf:"max_interval" validate:"gtefield=SecondInterval,lte=36500"`
}

// DefaultParams returns the classic SM-2 constants with the hard and easy
// adjustments used for four-button grading.
func DefaultParams() *Params {
	return &Params{
		InitialEase:    domain.DefaultEaseFactor,
		MinEase:        domain.MinEaseFactor,
		FailPenalty:    0.2,
		HardPenalty:    0.15,
		HardMultiplier: 1.2,
		EasyBonus:      0.15,
		EasyMultiplier: 1.3,
		FirstInterval:  1,
		SecondInterval: 6,
		LapseInterval:  1,
		MaxInterval:    36500,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports parameter sets that would break the scheduling invariants.
func (p *Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("scheduler: invalid params: %w", err)
	}
	return nil
}

// NewState returns the state of a card created at now.
func (p *Params) NewState(now time.Time) domain.SchedulingState {
	s := domain.NewSchedulingState(now)
	s.EaseFactor = p.InitialEase
	return s
}

// Next returns the scheduling state after reviewing a card with the given
// grade at now. The input state is not modified.
func (p *Params) Next(state domain.SchedulingState, grade domain.Grade, now time.Time) (domain.SchedulingState, error) {
	if !grade.IsValid() {
		return state, fmt.Errorf("%w: %d", ErrInvalidGrade, int(grade))
	}
	if err := checkState(state); err != nil {
		return state, err
	}

	next := state
	switch grade {
	case domain.Fail:
		next.Repetitions = 0
		next.IntervalDays = p.LapseInterval
		next.EaseFactor = math.Max(p.MinEase, state.EaseFactor-p.FailPenalty)
		next.Lapses++
	case domain.Hard:
		next.Repetitions++
		next.EaseFactor = math.Max(p.MinEase, state.EaseFactor-p.HardPenalty)
		next.IntervalDays = max(1, round(float64(state.IntervalDays)*p.HardMultiplier))
	case domain.Good:
		next.Repetitions++
		next.EaseFactor = math.Max(p.MinEase, state.EaseFactor)
		next.IntervalDays = max(state.IntervalDays, round(p.successInterval(next.Repetitions, state.IntervalDays, next.EaseFactor)))
	case domain.Easy:
		next.Repetitions++
		next.EaseFactor = math.Max(p.MinEase, state.EaseFactor+p.EasyBonus)
		base := p.successInterval(next.Repetitions, state.IntervalDays, next.EaseFactor)
		next.IntervalDays = max(state.IntervalDays, round(base*p.EasyMultiplier))
	}

	next.IntervalDays = min(next.IntervalDays, p.MaxInterval)

	next.LastReviewedAt = now
	next.DueAt = now.Add(time.Duration(next.IntervalDays) * day)
	return next, nil
}

// successInterval is the unrounded interval for a good review; the first two
// repetitions use fixed graduating intervals.
func (p *Params) successInterval(repetitions, interval int, ease float64) float64 {
	switch {
	case repetitions <= 1:
		return float64(p.FirstInterval)
	case repetitions == 2:
		return float64(p.SecondInterval)
	default:
		return float64(interval) * ease
	}
}

// Preview returns the state each grade would produce, for showing the next
// interval on rating buttons.
func (p *Params) Preview(state domain.SchedulingState, now time.Time) (map[domain.Grade]domain.SchedulingState, error) {
	out := make(map[domain.Grade]domain.SchedulingState, len(domain.Grades))
	for _, g := range domain.Grades {
		next, err := p.Next(state, g, now)
		if err != nil {
			return nil, err
		}
		out[g] = next
	}
	return out, nil
}

// Replay rebuilds a state by applying outcomes in order, starting from initial.
func (p *Params) Replay(initial domain.SchedulingState, outcomes []domain.ReviewOutcome) (domain.SchedulingState, error) {
	state := initial
	for i, o := range outcomes {
		next, err := p.Next(state, o.Grade, o.AnsweredAt)
		if err != nil {
			return initial, fmt.Errorf("replay outcome %d for card %s: %w", i, o.CardID, err)
		}
		state = next
	}
	return state, nil
}

func checkState(s domain.SchedulingState) error {
	switch {
	case math.IsNaN(s.EaseFactor) || s.EaseFactor < 0:
		return fmt.Errorf("%w: ease factor %v", ErrInvalidState, s.EaseFactor)
	case s.IntervalDays < 0:
		return fmt.Errorf("%w: interval %d", ErrInvalidState, s.IntervalDays)
	case s.Repetitions < 0 || s.Lapses < 0:
		return fmt.Errorf("%w: repetitions %d, lapses %d", ErrInvalidState, s.Repetitions, s.Lapses)
	}
	return nil
}

func round(v float64) int {
	return int(math.Round(v))
}
