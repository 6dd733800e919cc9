package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/conorfennell/studymate/internal/domain"
	"github.com/conorfennell/studymate/internal/grading"
	"github.com/conorfennell/studymate/internal/session"
)

// reviewer drives a session from a terminal.
type reviewer struct {
	ctrl  *session.Controller
	lines *bufio.Scanner
	out   io.Writer
	now   func() time.Time
}

func newReviewer(ctrl *session.Controller, in io.Reader, out io.Writer) *reviewer {
	return &reviewer{ctrl: ctrl, lines: bufio.NewScanner(in), out: out, now: time.Now}
}

// run asks every card of the session until it completes. It returns io.EOF
// when input ends first.
func (r *reviewer) run(ctx context.Context, s *session.Session) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		card, err := r.ctrl.CurrentCard(ctx, s)
		if errors.Is(err, session.ErrSessionComplete) {
			return nil
		}
		if err != nil {
			return err
		}

		answered, total := s.Progress()
		fmt.Fprintf(r.out, "\n[%d/%d] %s\n", answered+1, total, card.Type())
		shown := r.now()
		grade, err := r.ask(card.Content)
		if err != nil {
			return err
		}
		answeredAt := r.now()

		next, err := r.ctrl.SubmitAnswer(ctx, s, domain.ReviewOutcome{
			CardID:     card.ID,
			Grade:      grade,
			AnsweredAt: answeredAt,
			Latency:    answeredAt.Sub(shown),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Next review in %s.\n", days(next.IntervalDays))
	}
}

// ask shows the card and turns the user's input into a grade.
func (r *reviewer) ask(c domain.Content) (domain.Grade, error) {
	switch v := c.(type) {
	case domain.MultipleChoice:
		fmt.Fprintln(r.out, v.Prompt)
		for i, opt := range v.Options {
			fmt.Fprintf(r.out, "  %d) %s\n", i+1, opt)
		}
		for {
			line, err := r.readLine("Your choice: ")
			if err != nil {
				return 0, err
			}
			grade, err := grading.Assess(v, line)
			if err != nil {
				fmt.Fprintln(r.out, err)
				continue
			}
			r.reveal(c, grade == domain.Good)
			return grade, nil
		}

	case domain.Cloze, domain.ShortAnswer:
		prompt, err := domain.Prompt(c)
		if err != nil {
			return 0, err
		}
		fmt.Fprintln(r.out, prompt)
		line, err := r.readLine("Your answer: ")
		if err != nil {
			return 0, err
		}
		ok, err := grading.Check(c, line)
		if err != nil {
			return 0, err
		}
		r.reveal(c, ok)
		return r.rate(grading.FromCorrectness(ok))

	default:
		return 0, fmt.Errorf("%w: unknown content %T", domain.ErrInvalidContent, c)
	}
}

// rate lets the user refine a checked answer with a four-button rating.
func (r *reviewer) rate(suggested domain.Grade) (domain.Grade, error) {
	for {
		line, err := r.readLine(fmt.Sprintf("Rate 1=fail 2=hard 3=good 4=easy [%s]: ", suggested))
		if err != nil {
			return 0, err
		}
		if line == "" {
			return suggested, nil
		}
		g, err := grading.ParseRating(line)
		if err != nil {
			fmt.Fprintln(r.out, err)
			continue
		}
		return g, nil
	}
}

func (r *reviewer) reveal(c domain.Content, correct bool) {
	if correct {
		fmt.Fprintln(r.out, "Correct!")
	} else if answer, err := domain.Answer(c); err == nil {
		fmt.Fprintf(r.out, "Incorrect. The answer is: %s\n", answer)
	}
	if e := domain.Explanation(c); e != "" {
		fmt.Fprintln(r.out, e)
	}
}

func (r *reviewer) readLine(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	if !r.lines.Scan() {
		if err := r.lines.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(r.lines.Text()), nil
}

func printStats(w io.Writer, st session.Stats) {
	if st.Total == 0 {
		return
	}
	fmt.Fprintf(w, "\nReviewed %d cards, %.0f%% correct.\n", st.Total, st.Accuracy*100)
	for _, g := range domain.Grades {
		fmt.Fprintf(w, "  %-5s %d\n", g, st.Counts[g])
	}
	if st.MeanLatency > 0 {
		fmt.Fprintf(w, "Mean answer time %s.\n", st.MeanLatency.Round(100*time.Millisecond))
	}
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
