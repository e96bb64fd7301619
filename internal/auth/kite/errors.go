// Package kite provides authentication and token management for the Zerodha
// Kite Connect API. It handles the request-token exchange flow, persistent
// access-token storage, and the local callback server used during interactive
// login.
package kite

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthenticationError represents authentication-related errors.
type AuthenticationError struct {
	// Type is the type of authentication error.
	Type string `json:"type"`
	// Message is a human-readable message describing the error.
	Message string `json:"message"`
	// Code is the HTTP status code associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error that caused this authentication error.
	Cause error `json:"-"`
}

// Error returns a string representation of the authentication error.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause so errors.As can reach wrapped errors.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// Common authentication error types.
var (
	// ErrMissingCredentials indicates the API key or secret is not configured.
	ErrMissingCredentials = &AuthenticationError{
		Type:    "missing_credentials",
		Message: "Kite API key or API secret is not configured",
		Code:    http.StatusInternalServerError,
	}

	// ErrTokenExpired indicates the persisted session is absent or no longer usable.
	ErrTokenExpired = &AuthenticationError{
		Type:    "token_expired",
		Message: "Access token is missing or has expired",
		Code:    http.StatusUnauthorized,
	}

	// ErrAuthenticationRequired indicates an operation needs a live session
	// and re-authentication did not produce one.
	ErrAuthenticationRequired = &AuthenticationError{
		Type:    "authentication_required",
		Message: "Authentication is required to complete this operation",
		Code:    http.StatusUnauthorized,
	}

	// ErrExchangeFailed indicates the request-token exchange did not yield an access token.
	ErrExchangeFailed = &AuthenticationError{
		Type:    "exchange_failed",
		Message: "Failed to exchange request token for an access token",
		Code:    http.StatusBadRequest,
	}

	// ErrServerStartFailed indicates the login callback server could not start.
	ErrServerStartFailed = &AuthenticationError{
		Type:    "server_start_failed",
		Message: "Failed to start login callback server",
		Code:    http.StatusInternalServerError,
	}

	// ErrNoPortAvailable indicates no port in the scanned range could be bound.
	ErrNoPortAvailable = &AuthenticationError{
		Type:    "no_port_available",
		Message: "No free port available for the login callback server",
		Code:    13, // Special exit code for port-in-use
	}

	// ErrCallbackTimeout indicates the login redirect never arrived in time.
	ErrCallbackTimeout = &AuthenticationError{
		Type:    "callback_timeout",
		Message: "Timeout waiting for the Kite login callback",
		Code:    http.StatusRequestTimeout,
	}

	// ErrHeadlessEnvironment indicates no browser is reachable, so the
	// interactive flow cannot run and the manual exchange must be used.
	ErrHeadlessEnvironment = &AuthenticationError{
		Type:    "headless_environment",
		Message: "No browser available; complete the login manually and submit the request token",
		Code:    http.StatusPreconditionFailed,
	}

	// ErrLoginInProgress indicates another login flow is already running.
	ErrLoginInProgress = &AuthenticationError{
		Type:    "login_in_progress",
		Message: "A login flow is already in progress",
		Code:    http.StatusConflict,
	}
)

// NewAuthenticationError creates a new authentication error with a cause based on a base error.
func NewAuthenticationError(baseErr *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    baseErr.Type,
		Message: baseErr.Message,
		Code:    baseErr.Code,
		Cause:   cause,
	}
}

// IsAuthenticationError checks if an error is an authentication error.
func IsAuthenticationError(err error) bool {
	var authenticationError *AuthenticationError
	return errors.As(err, &authenticationError)
}

// GetUserFriendlyMessage returns a user-friendly error message based on the error type.
func GetUserFriendlyMessage(err error) string {
	if !IsAuthenticationError(err) {
		return "An unexpected error occurred. Please try again."
	}
	var authErr *AuthenticationError
	errors.As(err, &authErr)
	switch authErr.Type {
	case "missing_credentials":
		return "Kite API credentials are not configured. Set KITE_API_KEY and KITE_API_SECRET and restart."
	case "token_expired":
		return "Your Kite session has expired. Please log in again."
	case "authentication_required":
		return "Please log in to Kite to continue."
	case "exchange_failed":
		return "Could not complete the Kite login. Please try again."
	case "no_port_available":
		return "No free port for the login callback. Close applications using the callback port range and try again."
	case "callback_timeout":
		return "Login timed out. Please try again."
	case "headless_environment":
		return "No browser detected. Open the login URL on another device and submit the request token manually."
	case "login_in_progress":
		return "A login is already in progress. Complete it in your browser or try again shortly."
	default:
		return "Authentication failed. Please try again."
	}
}
