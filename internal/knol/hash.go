package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/studymate/internal/domain"
)

// Normalize flattens a card's content into one canonical string.
// Each part is trimmed, lowercased and has its line endings normalized, and
// the card type leads so that a cloze and a short answer with the same text
// stay distinct.
func Normalize(c domain.Content) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	parts := []string{c.Type().String()}
	switch v := c.(type) {
	case domain.MultipleChoice:
		parts = append(parts, normalizePart(v.Prompt))
		for _, o := range v.Options {
			parts = append(parts, normalizePart(o))
		}
		parts = append(parts, normalizePart(v.CorrectAnswer()))
	case domain.Cloze:
		parts = append(parts, normalizePart(v.Text), normalizePart(v.Answer))
	case domain.ShortAnswer:
		parts = append(parts, normalizePart(v.Prompt), normalizePart(v.Answer))
	}
	// Newline separators keep "ab"+"c" and "a"+"bc" apart.
	return strings.Join(parts, "\n")
}

// Hash returns the id of a card: the hex SHA-256 of the course id and the
// normalized content. Explanations do not take part, so rewording one keeps
// the card's review history.
func Hash(courseID string, c domain.Content) string {
	hashBytes := sha256.Sum256([]byte(courseID + "\n" + Normalize(c)))
	return fmt.Sprintf("%x", hashBytes)
}
