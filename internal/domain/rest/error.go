package rest

import "errors"

var (
	ErrUnknownTable       = errors.New("unknown table")
	ErrUnknownColumn      = errors.New("unknown column")
	ErrUnsupportedFilter  = errors.New("unsupported filter")
	ErrFilterRequired     = errors.New("at least one filter is required")
	ErrEmptyBody          = errors.New("empty body")
	ErrConflict           = errors.New("row belongs to another owner")
	ErrConstraintViolated = errors.New("constraint violated")
)
