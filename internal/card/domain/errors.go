package card

import "errors"

var (
	ErrMissingID       = errors.New("card: id required")
	ErrDuplicateID     = errors.New("card: duplicate id")
	ErrInvalidRange    = errors.New("card: min must be lower than max")
	ErrInvalidDecimals = errors.New("card: decimals must not be negative")
	ErrNotFound        = errors.New("card: not found")
)
