package domain

import "errors"

// Errors shared by the store and the components built on top of it.
var (
	ErrNotFound       = errors.New("not found")
	ErrScopeNotFound  = errors.New("scope not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidContent = errors.New("invalid card content")
	ErrInvalidGrade   = errors.New("invalid grade")
)
