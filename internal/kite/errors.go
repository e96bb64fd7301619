package kite

import "fmt"

// APIError is a non-success envelope returned by the Kite Connect API.
// ErrorType carries Kite's exception class (TokenException, InputException,
// OrderException, ...) and Raw keeps the whole body so callers can dig out
// nested detail like data.rejection_reason.
type APIError struct {
	StatusCode int
	ErrorType  string
	Message    string
	Raw        string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("kite: %s (%s, HTTP %d)", e.Message, e.ErrorType, e.StatusCode)
	}
	return fmt.Sprintf("kite: %s (HTTP %d)", e.Message, e.StatusCode)
}
