// Package engine exposes the portal session engine: login-and-persist,
// fetch, renew and delete-session, serialized per user and recovered
// automatically on session expiry.
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a stable, inspectable error class. The bot layer switches on Kind
// to produce precise user-facing messages; the engine switches on it to
// decide what is retryable.
type Kind string

const (
	KindNoSession           Kind = "NO_SESSION"
	KindSessionExpired      Kind = "SESSION_EXPIRED"
	KindLoginFailed         Kind = "LOGIN_FAILED"
	KindBrowserNotInstalled Kind = "BROWSER_NOT_INSTALLED"
	KindBrowserClosedFetch  Kind = "BROWSER_CLOSED_DURING_FETCH"
	KindBrowserClosedRenew  Kind = "BROWSER_CLOSED_DURING_RENEW"
	KindRenewDisabled       Kind = "RENEW_DISABLED"
	KindMoreDetailsNotFound Kind = "MORE_DETAILS_NOT_FOUND"
	KindAutoReloginFailed   Kind = "AUTO_RELOGIN_FAILED"
	KindNoCredentials       Kind = "NO_CREDENTIALS_SAVED"
)

// Error carries a Kind plus optional site-reported detail and a wrapped
// cause.
type Error struct {
	Kind   Kind
	Reason string // site-reported text, e.g. the sign-in page's own error
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a bare taxonomy error.
func NewError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// WrapError attaches a taxonomy kind to an underlying cause.
func WrapError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the taxonomy kind from err, or "" for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// closedTargetSignatures are the error-text fragments the automation runtime
// produces when a tab or context dies out from under a call.
var closedTargetSignatures = []string{
	"target closed",
	"session closed",
	"has been closed",
	"context was destroyed",
	"cannot find context",
	"browser has disconnected",
}

// IsClosedTarget reports whether err looks like the browser tab/context was
// closed mid-operation. Detection is by error-text signature because the
// runtime surfaces these as plain errors from deep inside CDP calls.
func IsClosedTarget(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range closedTargetSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is worth retrying with the same inputs:
// timeouts, detached contexts, flaky navigation. Credential rejection and
// business-state errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindLoginFailed, KindBrowserNotInstalled, KindRenewDisabled, KindNoCredentials:
		return false
	}
	if IsClosedTarget(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "net::err")
}

// IsSessionError reports whether err should trigger auto-relogin: the known
// set of session-invalid signatures plus a prior auto-relogin failure
// marker.
func IsSessionError(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindSessionExpired, KindNoSession, KindBrowserClosedFetch,
		KindBrowserClosedRenew, KindAutoReloginFailed:
		return true
	}
	if IsClosedTarget(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "navigation failed") ||
		strings.Contains(msg, "net::err")
}
