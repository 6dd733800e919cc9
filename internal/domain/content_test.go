package domain

import (
	"errors"
	"testing"
	"time"
)

func TestValidateContent(t *testing.T) {
	testCases := []struct {
		name    string
		content Content
		wantErr bool
	}{
		{
			name: "valid multiple choice",
			content: MultipleChoice{
				Prompt:  "What is the SI unit of force?",
				Options: []string{"Joule", "Newton", "Watt", "Pascal"},
				Correct: 1,
			},
		},
		{
			name:    "multiple choice with one option",
			content: MultipleChoice{Prompt: "Q", Options: []string{"only"}},
			wantErr: true,
		},
		{
			name:    "multiple choice with duplicate options",
			content: MultipleChoice{Prompt: "Q", Options: []string{"a", "a"}},
			wantErr: true,
		},
		{
			name:    "multiple choice correct out of range",
			content: MultipleChoice{Prompt: "Q", Options: []string{"a", "b"}, Correct: 2},
			wantErr: true,
		},
		{
			name:    "valid cloze",
			content: Cloze{Text: "Force is measured in " + ClozeBlank + ".", Answer: "newtons"},
		},
		{
			name:    "cloze without blank",
			content: Cloze{Text: "Force is measured in newtons.", Answer: "newtons"},
			wantErr: true,
		},
		{
			name:    "valid short answer",
			content: ShortAnswer{Prompt: "Define acceleration.", Answer: "Rate of change of velocity"},
		},
		{
			name:    "short answer without answer",
			content: ShortAnswer{Prompt: "Define acceleration."},
			wantErr: true,
		},
		{
			name:    "nil content",
			content: nil,
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateContent(tc.content)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidContent) {
					t.Fatalf("Expected ErrInvalidContent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateContent() returned an unexpected error: %v", err)
			}
		})
	}
}

func TestNewCloze(t *testing.T) {
	c, err := NewCloze("The capital of France is {{ Paris }}.", "Geography")
	if err != nil {
		t.Fatalf("NewCloze() returned an unexpected error: %v", err)
	}
	if c.Text != "The capital of France is [...]." {
		t.Errorf("Text = %q", c.Text)
	}
	if c.Answer != "Paris" {
		t.Errorf("Answer = %q, want Paris", c.Answer)
	}

	if _, err := NewCloze("No span here", ""); !errors.Is(err, ErrInvalidContent) {
		t.Errorf("Expected ErrInvalidContent for text without span, got %v", err)
	}
}

func TestPromptAndAnswer(t *testing.T) {
	mc := MultipleChoice{Prompt: "Pick", Options: []string{"a", "b"}, Correct: 1}
	if p, _ := Prompt(mc); p != "Pick" {
		t.Errorf("Prompt = %q, want Pick", p)
	}
	if a, _ := Answer(mc); a != "b" {
		t.Errorf("Answer = %q, want b", a)
	}
	if _, err := Prompt(nil); !errors.Is(err, ErrInvalidContent) {
		t.Errorf("Prompt(nil) error = %v, want ErrInvalidContent", err)
	}
}

func TestCardTypeText(t *testing.T) {
	for _, ct := range []CardType{MultipleChoiceType, ClozeType, ShortAnswerType} {
		text, err := ct.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", ct, err)
		}
		var back CardType
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s): %v", text, err)
		}
		if back != ct {
			t.Errorf("round trip of %v gave %v", ct, back)
		}
	}
	var ct CardType
	if err := ct.UnmarshalText([]byte("mcq")); !errors.Is(err, ErrInvalidContent) {
		t.Errorf("UnmarshalText(mcq) error = %v, want ErrInvalidContent", err)
	}
}

func TestNewSchedulingState(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	s := NewSchedulingState(now)
	if s.EaseFactor != 2.5 || s.IntervalDays != 0 || s.Repetitions != 0 || s.Lapses != 0 {
		t.Errorf("unexpected initial state %+v", s)
	}
	if !s.IsDue(now) {
		t.Error("a new card should be due immediately")
	}
	if s.Reviewed() {
		t.Error("a new card should not be marked reviewed")
	}
}
