package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types for the OAuth2 server
var (
	// Client errors
	ErrInvalidClient      = errors.New("invalid client")
	ErrInvalidScope       = errors.New("invalid scope")
	ErrInvalidRedirectURI = errors.New("invalid redirect URI")

	// Authorization errors
	ErrInvalidGrant            = errors.New("invalid grant")
	ErrRedirectMismatch        = errors.New("redirect URI mismatch")
	ErrPKCERequired            = errors.New("code verifier required")
	ErrPKCEMismatch            = errors.New("code verifier mismatch")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrUnsupportedGrantType    = errors.New("unsupported grant type")
	ErrUnsupportedResponseType = errors.New("unsupported response type")
	ErrAccessDenied            = errors.New("access denied")

	// Token errors
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenRevoked      = errors.New("token revoked")
	ErrInsufficientScope = errors.New("insufficient scope")

	// User errors
	ErrUserNotFound = errors.New("user not found")
	ErrUserInactive = errors.New("user is inactive")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Signing errors
	ErrSigningKeyUnavailable = errors.New("signing key unavailable")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// OAuth2 error codes (RFC 6749 §5.2, RFC 6750 §3.1)
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeInvalidScope            = "invalid_scope"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeInvalidToken            = "invalid_token"
	CodeInsufficientScope       = "insufficient_scope"
	CodeAccessDenied            = "access_denied"
	CodeServerError             = "server_error"
	CodeNotFound                = "not_found"
	CodeForbidden               = "forbidden"
)

type mapping struct {
	err    error
	code   string
	status int
}

// Order matters: the first sentinel found in the chain wins.
var mappings = []mapping{
	{ErrInvalidClient, CodeInvalidClient, http.StatusUnauthorized},
	{ErrInvalidScope, CodeInvalidScope, http.StatusBadRequest},
	{ErrInvalidRedirectURI, CodeInvalidRequest, http.StatusBadRequest},
	{ErrRedirectMismatch, CodeInvalidGrant, http.StatusBadRequest},
	{ErrPKCERequired, CodeInvalidGrant, http.StatusBadRequest},
	{ErrPKCEMismatch, CodeInvalidGrant, http.StatusBadRequest},
	{ErrInvalidGrant, CodeInvalidGrant, http.StatusBadRequest},
	{ErrUnsupportedGrantType, CodeUnsupportedGrantType, http.StatusBadRequest},
	{ErrUnsupportedResponseType, CodeUnsupportedResponseType, http.StatusBadRequest},
	{ErrAccessDenied, CodeAccessDenied, http.StatusForbidden},
	{ErrInvalidRequest, CodeInvalidRequest, http.StatusBadRequest},
	{ErrInsufficientScope, CodeInsufficientScope, http.StatusForbidden},
	{ErrTokenExpired, CodeInvalidToken, http.StatusUnauthorized},
	{ErrTokenRevoked, CodeInvalidToken, http.StatusUnauthorized},
	{ErrInvalidToken, CodeInvalidToken, http.StatusUnauthorized},
	{ErrUnauthorized, CodeInvalidToken, http.StatusUnauthorized},
	{ErrUserInactive, CodeAccessDenied, http.StatusForbidden},
	{ErrForbidden, CodeForbidden, http.StatusForbidden},
	{ErrNotFound, CodeNotFound, http.StatusNotFound},
	{ErrUserNotFound, CodeNotFound, http.StatusNotFound},
}

// OAuthCode maps an error chain onto an RFC 6749 error code and HTTP status.
// Anything unrecognised is a server_error.
func OAuthCode(err error) (string, int) {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			return m.code, m.status
		}
	}
	return CodeServerError, http.StatusInternalServerError
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
