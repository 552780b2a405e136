package provider

import "errors"

var (
	// ErrInvalidResponse is returned by ValidateResponse when a provider
	// result does not have the shape its method requires.
	ErrInvalidResponse = errors.New("invalid data provider response")

	// ErrUnexpectedResult means a middleware replaced a result with a value
	// of the wrong type.
	ErrUnexpectedResult = errors.New("unexpected data provider result type")

	// ErrUnsupportedRequest means a Request carried params no method accepts.
	ErrUnsupportedRequest = errors.New("unsupported data provider request")
)
