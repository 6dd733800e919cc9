// Package parser reads study notes written in a small markdown dialect:
//
//	Q: What is the SI unit of force?
//	O: Joule
//	O: *Newton
//	E: Named after Isaac Newton.
//	---
//	Q: The capital of France is {{Paris}}.
//
// Q: starts a card, A: gives the answer, O: adds a multiple-choice option
// (the one matching A: or prefixed with * is correct) and E: explains it.
// A Q: with a {{...}} span and no A: becomes a cloze card.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/studymate/internal/domain"
)

const (
	questionPrefix    = "Q:"
	answerPrefix      = "A:"
	optionPrefix      = "O:"
	explanationPrefix = "E:"
	separator         = "---"
	correctMarker     = "*"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingOption
	readingExplanation
)

// Note is one card as written in the notes, before it is typed.
type Note struct {
	Question    string
	Answer      string
	Options     []string
	Explanation string
	Line        int // line of the Q: that opened the note
}

// ParseFile reads a file from the given path and extracts all notes.
func ParseFile(path string) ([]Note, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all notes.
func Parse(r io.Reader) ([]Note, error) {
	scanner := bufio.NewScanner(r)
	var (
		notes        []Note
		current      Note
		block        []string
		currentState = seeking
		lineNo       int
	)

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.TrimRight(strings.Join(block, "\n"), "\n")
		switch currentState {
		case readingQuestion:
			current.Question = content
		case readingAnswer:
			current.Answer = content
		case readingOption:
			current.Options = append(current.Options, content)
		case readingExplanation:
			current.Explanation = content
		}
		block = nil
	}

	finishNote := func() {
		flushBlock()
		if current.Question != "" {
			notes = append(notes, current)
		}
		current = Note{}
		currentState = seeking
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if line == separator {
			finishNote()
			continue
		}

		prefix, next := classify(line)
		if prefix == "" {
			if currentState != seeking {
				block = append(block, line)
			}
			continue
		}

		flushBlock()
		if next == readingQuestion {
			if currentState != seeking {
				finishNote()
			}
			current.Line = lineNo
		} else if currentState == seeking {
			// A:, O: or E: outside of a card.
			continue
		}
		currentState = next
		block = append(block, strings.TrimPrefix(line[len(prefix):], " "))
	}

	finishNote()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return notes, nil
}

func classify(line string) (string, state) {
	switch {
	case strings.HasPrefix(line, questionPrefix):
		return questionPrefix, readingQuestion
	case strings.HasPrefix(line, answerPrefix):
		return answerPrefix, readingAnswer
	case strings.HasPrefix(line, optionPrefix):
		return optionPrefix, readingOption
	case strings.HasPrefix(line, explanationPrefix):
		return explanationPrefix, readingExplanation
	}
	return "", seeking
}

// Content types the note: options make it multiple choice, a {{...}} span
// without an answer makes it a cloze, anything else is a short answer.
func (n Note) Content() (domain.Content, error) {
	question := strings.TrimSpace(n.Question)
	answer := strings.TrimSpace(n.Answer)
	explanation := strings.TrimSpace(n.Explanation)

	var c domain.Content
	switch {
	case len(n.Options) > 0:
		mc := domain.MultipleChoice{Prompt: question, Correct: -1, Explanation: explanation}
		for i, raw := range n.Options {
			opt := strings.TrimSpace(raw)
			if marked, ok := strings.CutPrefix(opt, correctMarker); ok {
				opt = strings.TrimSpace(marked)
				mc.Correct = i
			}
			if mc.Correct < 0 && answer != "" && strings.EqualFold(opt, answer) {
				mc.Correct = i
			}
			mc.Options = append(mc.Options, opt)
		}
		if mc.Correct < 0 {
			return nil, fmt.Errorf("%w: line %d: no option marks the correct answer", domain.ErrInvalidContent, n.Line)
		}
		c = mc
	case answer == "" && strings.Contains(question, "{{"):
		cloze, err := domain.NewCloze(question, explanation)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		c = cloze
	default:
		c = domain.ShortAnswer{Prompt: question, Answer: answer, Explanation: explanation}
	}

	if err := domain.ValidateContent(c); err != nil {
		return nil, fmt.Errorf("line %d: %w", n.Line, err)
	}
	return c, nil
}

// Contents types every note, collecting the notes that could not be typed
// into errs instead of stopping at the first one.
func Contents(notes []Note) (contents []domain.Content, errs []error) {
	for _, n := range notes {
		c, err := n.Content()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		contents = append(contents, c)
	}
	return contents, errs
}
