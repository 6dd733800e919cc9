package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/conorfennell/studymate/internal/domain"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedNotes int
		expectedQ     string
		expectedA     string
		expectedE     string
		expectedO     []string
	}{
		{
			name:          "Simple Q&A",
			input:         "Q: What is the capital of France?\nA: Paris",
			expectedNotes: 1,
			expectedQ:     "What is the capital of France?",
			expectedA:     "Paris",
		},
		{
			name:          "Simple Q, A, and E",
			input:         "Q: What is 1+1?\nA: 2\nE: Basic arithmetic",
			expectedNotes: 1,
			expectedQ:     "What is 1+1?",
			expectedA:     "2",
			expectedE:     "Basic arithmetic",
		},
		{
			name: "Multiline Answer",
			input: `
Q: What are the primary colors?
A: Red
Blue
Yellow
`,
			expectedNotes: 1,
			expectedQ:     "What are the primary colors?",
			expectedA:     "Red\nBlue\nYellow",
		},
		{
			name: "Two Notes",
			input: `
Q: First question
A: First answer

Q: Second question
A: Second answer
`,
			expectedNotes: 2,
		},
		{
			name: "Separator ends a note",
			input: `Q: First
A: One
---
A: stray answer
Q: Second
A: Two`,
			expectedNotes: 2,
		},
		{
			name: "Options",
			input: `Q: What is the SI unit of force?
O: Joule
O: *Newton
O: Watt
E: Named after Isaac Newton.`,
			expectedNotes: 1,
			expectedQ:     "What is the SI unit of force?",
			expectedE:     "Named after Isaac Newton.",
			expectedO:     []string{"Joule", "*Newton", "Watt"},
		},
		{
			name:          "No notes, just text",
			input:         "This is a file with no questions.",
			expectedNotes: 0,
		},
		{
			name:          "Prefixes with no space",
			input:         "Q:Question\nA:Answer",
			expectedNotes: 1,
			expectedQ:     "Question",
			expectedA:     "Answer",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			notes, err := Parse(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(notes) != tc.expectedNotes {
				t.Fatalf("Expected %d notes, but got %d", tc.expectedNotes, len(notes))
			}

			if tc.expectedNotes == 1 {
				note := notes[0]
				if note.Question != tc.expectedQ {
					t.Errorf("Expected Question to be '%s', but got '%s'", tc.expectedQ, note.Question)
				}
				if note.Answer != tc.expectedA {
					t.Errorf("Expected Answer to be '%s', but got '%s'", tc.expectedA, note.Answer)
				}
				if note.Explanation != tc.expectedE {
					t.Errorf("Expected Explanation to be '%s', but got '%s'", tc.expectedE, note.Explanation)
				}
				if strings.Join(note.Options, "|") != strings.Join(tc.expectedO, "|") {
					t.Errorf("Expected Options %q, but got %q", tc.expectedO, note.Options)
				}
			}
		})
	}
}

func TestNoteContent(t *testing.T) {
	t.Run("short answer", func(t *testing.T) {
		c, err := Note{Question: "Define acceleration.", Answer: "Rate of change of velocity"}.Content()
		if err != nil {
			t.Fatalf("Content() returned an unexpected error: %v", err)
		}
		if _, ok := c.(domain.ShortAnswer); !ok {
			t.Fatalf("Expected ShortAnswer, got %T", c)
		}
	})

	t.Run("multiple choice with marker", func(t *testing.T) {
		c, err := Note{Question: "Unit of force?", Options: []string{"Joule", "*Newton"}}.Content()
		if err != nil {
			t.Fatalf("Content() returned an unexpected error: %v", err)
		}
		mc, ok := c.(domain.MultipleChoice)
		if !ok {
			t.Fatalf("Expected MultipleChoice, got %T", c)
		}
		if mc.Correct != 1 || mc.Options[1] != "Newton" {
			t.Errorf("Expected Newton to be correct, got %+v", mc)
		}
	})

	t.Run("multiple choice by answer", func(t *testing.T) {
		c, err := Note{Question: "Unit of power?", Answer: "watt", Options: []string{"Joule", "Watt"}}.Content()
		if err != nil {
			t.Fatalf("Content() returned an unexpected error: %v", err)
		}
		if mc := c.(domain.MultipleChoice); mc.Correct != 1 {
			t.Errorf("Expected option 1 to be correct, got %d", mc.Correct)
		}
	})

	t.Run("multiple choice without correct option", func(t *testing.T) {
		_, err := Note{Question: "Unit?", Options: []string{"a", "b"}}.Content()
		if !errors.Is(err, domain.ErrInvalidContent) {
			t.Errorf("Expected ErrInvalidContent, got %v", err)
		}
	})

	t.Run("cloze", func(t *testing.T) {
		c, err := Note{Question: "The capital of France is {{Paris}}."}.Content()
		if err != nil {
			t.Fatalf("Content() returned an unexpected error: %v", err)
		}
		cloze, ok := c.(domain.Cloze)
		if !ok {
			t.Fatalf("Expected Cloze, got %T", c)
		}
		if cloze.Answer != "Paris" {
			t.Errorf("Expected answer Paris, got %q", cloze.Answer)
		}
	})

	t.Run("question without answer", func(t *testing.T) {
		_, err := Note{Question: "Lonely question"}.Content()
		if !errors.Is(err, domain.ErrInvalidContent) {
			t.Errorf("Expected ErrInvalidContent, got %v", err)
		}
	})
}

func TestContents(t *testing.T) {
	notes := []Note{
		{Question: "Q1", Answer: "A1"},
		{Question: "Q2"},
		{Question: "{{Cloze}} card"},
	}
	contents, errs := Contents(notes)
	if len(contents) != 2 {
		t.Errorf("Expected 2 contents, got %d", len(contents))
	}
	if len(errs) != 1 {
		t.Errorf("Expected 1 error, got %d", len(errs))
	}
}
