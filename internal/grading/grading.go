// Package grading turns user input into review grades.
//
// Answers checked for correctness map to two grades: Good when correct and
// Fail otherwise. Four-button rating input maps directly onto the four grades.
package grading

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/conorfennell/studymate/internal/domain"
)

// Check reports whether response answers the card content.
//
// For multiple choice the response is the option text or, when it matches no
// option, the 1-based option number. Cloze and short-answer responses match the expected answer
// ignoring case and runs of whitespace.
func Check(c domain.Content, response string) (bool, error) {
	switch v := c.(type) {
	case domain.MultipleChoice:
		if i := slices.IndexFunc(v.Options, func(o string) bool { return matches(o, response) }); i >= 0 {
			return i == v.Correct, nil
		}
		if n, err := strconv.Atoi(strings.TrimSpace(response)); err == nil {
			if n < 1 || n > len(v.Options) {
				return false, fmt.Errorf("option %d out of range 1-%d", n, len(v.Options))
			}
			return n-1 == v.Correct, nil
		}
		return false, nil
	case domain.Cloze:
		return matches(v.Answer, response), nil
	case domain.ShortAnswer:
		return matches(v.Answer, response), nil
	default:
		return false, fmt.Errorf("%w: unknown content %T", domain.ErrInvalidContent, c)
	}
}

// FromCorrectness maps a binary result to a grade.
func FromCorrectness(correct bool) domain.Grade {
	if correct {
		return domain.Good
	}
	return domain.Fail
}

// Assess checks response and returns the resulting grade.
func Assess(c domain.Content, response string) (domain.Grade, error) {
	ok, err := Check(c, response)
	if err != nil {
		return 0, err
	}
	return FromCorrectness(ok), nil
}

// ParseRating reads a four-button rating: 1-4 or a grade name.
func ParseRating(s string) (domain.Grade, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		g := domain.Grade(n)
		if !g.IsValid() {
			return 0, fmt.Errorf("%w: rating %d", domain.ErrInvalidGrade, n)
		}
		return g, nil
	}
	return domain.ParseGrade(s)
}

func matches(want, got string) bool {
	return normalize(want) == normalize(got)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
