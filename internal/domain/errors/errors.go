// Package errors defines the error taxonomy shared by the feed, the classifier
// and the HTTP layer.
package errors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryGeneral is an unexpected failure
	CategoryGeneral Category = iota
	// CategoryConfiguration is a missing or invalid credential or an unsupported network. Never retried.
	CategoryConfiguration
	// CategoryNetwork is a transport failure talking to a dependency. Retryable.
	CategoryNetwork
	// CategoryDecode is an ABI decode failure. Recovered locally.
	CategoryDecode
	// CategoryBusy means a feed fetch round is already in flight for the address
	CategoryBusy
	// CategoryInvalidInput is bad caller input
	CategoryInvalidInput
	// CategoryNotFound is a missing resource
	CategoryNotFound
)

func (c Category) String() string {
	switch c {
	case CategoryConfiguration:
		return "configuration"
	case CategoryNetwork:
		return "network"
	case CategoryDecode:
		return "decode"
	case CategoryBusy:
		return "busy"
	case CategoryInvalidInput:
		return "invalid_input"
	case CategoryNotFound:
		return "not_found"
	default:
		return "general"
	}
}

// FeedError carries a machine-readable category and a human-readable message
type FeedError struct {
	Category Category
	Message  string
	Err      error
}

// Error method to comply with error interface
func (e *FeedError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *FeedError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth another attempt
func (e *FeedError) Retryable() bool {
	return e.Category == CategoryNetwork
}

// StatusCode returns the HTTP status code for the error category
func (e *FeedError) StatusCode() int {
	switch e.Category {
	case CategoryConfiguration:
		return http.StatusServiceUnavailable
	case CategoryNetwork:
		return http.StatusBadGateway
	case CategoryBusy:
		return http.StatusConflict
	case CategoryInvalidInput, CategoryDecode:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func newError(cat Category, err error, message string) error {
	return &FeedError{Category: cat, Message: message, Err: err}
}

// ConfigurationError returns an error with category Configuration
func ConfigurationError(err error, message string) error {
	return newError(CategoryConfiguration, err, message)
}

// NetworkError returns an error with category Network
func NetworkError(err error, message string) error {
	return newError(CategoryNetwork, err, message)
}

// DecodeError returns an error with category Decode
func DecodeError(err error, message string) error {
	return newError(CategoryDecode, err, message)
}

// BusyError returns an error with category Busy
func BusyError(message string) error {
	return newError(CategoryBusy, nil, message)
}

// InvalidInputError returns an error with category InvalidInput
func InvalidInputError(err error, message string) error {
	return newError(CategoryInvalidInput, err, message)
}

// NotFoundError returns an error with category NotFound
func NotFoundError(message string) error {
	return newError(CategoryNotFound, nil, message)
}

// Is checks that provided error is a FeedError with desired Category
func Is(err error, cat Category) bool {
	var feedErr *FeedError
	return errors.As(err, &feedErr) && feedErr.Category == cat
}

// CategoryOf returns the category of err, CategoryGeneral when it carries none
func CategoryOf(err error) Category {
	var feedErr *FeedError
	if errors.As(err, &feedErr) {
		return feedErr.Category
	}
	return CategoryGeneral
}

// UserMessage returns the pre-formatted message meant for end users
func UserMessage(err error) string {
	var feedErr *FeedError
	if errors.As(err, &feedErr) {
		return feedErr.Message
	}
	return "Internal server error"
}
