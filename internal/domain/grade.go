package domain

import (
	"encoding"
	"encoding/json"
	"fmt"
	"strings"
)

// Grade is the user's rating of how well a card was recalled.
type Grade int

const (
	Fail Grade = iota + 1 // Not recalled; counts as a lapse.
	Hard                  // Recalled with serious difficulty.
	Good                  // Recalled with some effort.
	Easy                  // Recalled effortlessly.
)

// Grades lists every valid grade in ascending order.
var Grades = []Grade{Fail, Hard, Good, Easy}

var (
	gradeNames  = [...]string{Fail: "fail", Hard: "hard", Good: "good", Easy: "easy"}
	gradeByName = map[string]Grade{
		"fail": Fail,
		"hard": Hard,
		"good": Good,
		"easy": Easy,
	}
)

var (
	_ fmt.Stringer             = Grade(0)
	_ json.Marshaler           = Grade(0)
	_ json.Unmarshaler         = (*Grade)(nil)
	_ encoding.TextMarshaler   = Grade(0)
	_ encoding.TextUnmarshaler = (*Grade)(nil)
)

// IsValid reports whether g is one of Fail, Hard, Good or Easy.
func (g Grade) IsValid() bool {
	return g >= Fail && g <= Easy
}

// Correct reports whether the grade counts towards session accuracy.
func (g Grade) Correct() bool {
	return g == Good || g == Easy
}

func (g Grade) String() string {
	if g.IsValid() {
		return gradeNames[g]
	}
	return fmt.Sprintf("Grade(%d)", int(g))
}

// ParseGrade parses a grade name, ignoring case and surrounding space.
func ParseGrade(s string) (Grade, error) {
	g, ok := gradeByName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidGrade, s)
	}
	return g, nil
}

// MarshalText implements encoding.TextMarshaler.
func (g Grade) MarshalText() ([]byte, error) {
	if !g.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGrade, int(g))
	}
	return []byte(gradeNames[g]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Grade) UnmarshalText(text []byte) error {
	v, err := ParseGrade(string(text))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// MarshalJSON implements json.Marshaler. Grade serializes as a JSON string.
func (g Grade) MarshalJSON() ([]byte, error) {
	text, err := g.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *Grade) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidGrade, data)
	}
	return g.UnmarshalText([]byte(s))
}
