package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateContent checks the per-variant required fields of c.
func ValidateContent(c Content) error {
	if c == nil {
		return fmt.Errorf("%w: nil content", ErrInvalidContent)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidContent, c.Type(), err)
	}
	if mc, ok := c.(MultipleChoice); ok && mc.Correct >= len(mc.Options) {
		return fmt.Errorf("%w: correct option %d out of range [0, %d)", ErrInvalidContent, mc.Correct, len(mc.Options))
	}
	return nil
}
