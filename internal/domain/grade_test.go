package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestGradeValues(t *testing.T) {
	if Fail != 1 || Hard != 2 || Good != 3 || Easy != 4 {
		t.Fatalf("unexpected grade values: %d %d %d %d", Fail, Hard, Good, Easy)
	}
}

func TestGradeIsValid(t *testing.T) {
	for _, g := range Grades {
		if !g.IsValid() {
			t.Errorf("Grade(%d).IsValid() = false, want true", int(g))
		}
	}
	for _, g := range []Grade{0, -1, 5, 42} {
		if g.IsValid() {
			t.Errorf("Grade(%d).IsValid() = true, want false", int(g))
		}
	}
}

func TestParseGrade(t *testing.T) {
	testCases := []struct {
		in      string
		want    Grade
		wantErr bool
	}{
		{in: "fail", want: Fail},
		{in: " Hard ", want: Hard},
		{in: "GOOD", want: Good},
		{in: "easy", want: Easy},
		{in: "again", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseGrade(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidGrade) {
					t.Fatalf("ParseGrade(%q) error = %v, want ErrInvalidGrade", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseGrade(%q) returned an unexpected error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseGrade(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestGradeJSON(t *testing.T) {
	data, err := json.Marshal(ReviewOutcome{CardID: "c1", Grade: Easy})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out ReviewOutcome
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Grade != Easy {
		t.Errorf("Grade = %v, want easy", out.Grade)
	}

	if _, err := json.Marshal(Grade(9)); !errors.Is(err, ErrInvalidGrade) {
		t.Errorf("Marshal(Grade(9)) error = %v, want ErrInvalidGrade", err)
	}
}

func TestGradeCorrect(t *testing.T) {
	want := map[Grade]bool{Fail: false, Hard: false, Good: true, Easy: true}
	for g, ok := range want {
		if g.Correct() != ok {
			t.Errorf("%v.Correct() = %v, want %v", g, g.Correct(), ok)
		}
	}
}
