package domain

import (
	"encoding"
	"fmt"
	"strings"
)

// CardType enumerates the content variants a card can carry.
type CardType int

const (
	MultipleChoiceType CardType = iota + 1
	ClozeType
	ShortAnswerType
)

// ClozeBlank marks the deleted span in a cloze card's text.
const ClozeBlank = "[...]"

var (
	cardTypeNames = [...]string{
		MultipleChoiceType: "multiple-choice",
		ClozeType:          "cloze",
		ShortAnswerType:    "short-answer",
	}
	cardTypeByName = map[string]CardType{
		"multiple-choice": MultipleChoiceType,
		"cloze":           ClozeType,
		"short-answer":    ShortAnswerType,
	}
)

var (
	_ fmt.Stringer             = CardType(0)
	_ encoding.TextMarshaler   = CardType(0)
	_ encoding.TextUnmarshaler = (*CardType)(nil)
)

// IsValid reports whether t is one of the known variants.
func (t CardType) IsValid() bool {
	return t >= MultipleChoiceType && t <= ShortAnswerType
}

func (t CardType) String() string {
	if t.IsValid() {
		return cardTypeNames[t]
	}
	return fmt.Sprintf("CardType(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t CardType) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: card type %d", ErrInvalidContent, int(t))
	}
	return []byte(cardTypeNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *CardType) UnmarshalText(text []byte) error {
	v, ok := cardTypeByName[string(text)]
	if !ok {
		return fmt.Errorf("%w: card type %q", ErrInvalidContent, text)
	}
	*t = v
	return nil
}

// Content is the immutable body of a card. It is implemented only by
// MultipleChoice, Cloze and ShortAnswer.
type Content interface {
	Type() CardType
	content()
}

// MultipleChoice asks the user to pick one of Options. Correct is the index
// of the right option.
type MultipleChoice struct {
	Prompt      string   `validate:"required"`
	Options     []string `validate:"min=2,unique,dive,required"`
	Correct     int      `validate:"gte=0"`
	Explanation string
}

// Cloze hides Answer behind ClozeBlank inside Text.
type Cloze struct {
	Text        string `validate:"required,contains=[...]"`
	Answer      string `validate:"required"`
	Explanation string
}

// ShortAnswer expects a free-text Answer to Prompt.
type ShortAnswer struct {
	Prompt      string `validate:"required"`
	Answer      string `validate:"required"`
	Explanation string
}

func (MultipleChoice) Type() CardType { return MultipleChoiceType }
func (Cloze) Type() CardType          { return ClozeType }
func (ShortAnswer) Type() CardType    { return ShortAnswerType }

func (MultipleChoice) content() {}
func (Cloze) content()          {}
func (ShortAnswer) content()    {}

// CorrectAnswer returns the option text marked as correct.
func (m MultipleChoice) CorrectAnswer() string {
	if m.Correct < 0 || m.Correct >= len(m.Options) {
		return ""
	}
	return m.Options[m.Correct]
}

// NewCloze builds a cloze card from text holding a single {{answer}} span.
func NewCloze(text, explanation string) (Cloze, error) {
	start := strings.Index(text, "{{")
	end := strings.Index(text, "}}")
	if start < 0 || end < start {
		return Cloze{}, fmt.Errorf("%w: cloze text has no {{...}} span", ErrInvalidContent)
	}
	answer := strings.TrimSpace(text[start+2 : end])
	return Cloze{
		Text:        text[:start] + ClozeBlank + text[end+2:],
		Answer:      answer,
		Explanation: explanation,
	}, nil
}

// Prompt returns the question shown to the user for any content variant.
func Prompt(c Content) (string, error) {
	switch v := c.(type) {
	case MultipleChoice:
		return v.Prompt, nil
	case Cloze:
		return v.Text, nil
	case ShortAnswer:
		return v.Prompt, nil
	default:
		return "", fmt.Errorf("%w: unknown content %T", ErrInvalidContent, c)
	}
}

// Explanation returns the text shown after the card has been answered.
func Explanation(c Content) string {
	switch v := c.(type) {
	case MultipleChoice:
		return v.Explanation
	case Cloze:
		return v.Explanation
	case ShortAnswer:
		return v.Explanation
	}
	return ""
}

// Answer returns the expected answer text for any content variant.
func Answer(c Content) (string, error) {
	switch v := c.(type) {
	case MultipleChoice:
		return v.CorrectAnswer(), nil
	case Cloze:
		return v.Answer, nil
	case ShortAnswer:
		return v.Answer, nil
	default:
		return "", fmt.Errorf("%w: unknown content %T", ErrInvalidContent, c)
	}
}
