package hass

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthInvalid is returned when the host rejects the access token.
	ErrAuthInvalid = errors.New("hass: invalid access token")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("hass: client closed")
	// ErrConnectionLost fails requests pending when the socket drops.
	ErrConnectionLost = errors.New("hass: connection lost")
)

// Error codes sent by the host.
const (
	CodeNotFound     = "not_found"
	CodeInvalidInput = "invalid_format"
	CodeUnknown      = "unknown_error"
)

// ResultError is an unsuccessful command result.
type ResultError struct {
	Command string `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("hass: %s: %s (%s)", e.Command, e.Message, e.Code)
}

// IsNotFound reports whether err is a not_found result, as returned for
// energy preferences that were never saved.
func IsNotFound(err error) bool {
	var resultErr *ResultError
	return errors.As(err, &resultErr) && resultErr.Code == CodeNotFound
}
