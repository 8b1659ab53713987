package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfUnwrapsNestedErrors(t *testing.T) {
	base := NewError(KindSessionExpired, "redirected to signin")
	wrapped := fmt.Errorf("fetch: %w", base)

	require.Equal(t, KindSessionExpired, KindOf(wrapped))
	require.True(t, IsKind(wrapped, KindSessionExpired))
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout text", errors.New("navigate: timeout 90s exceeded"), true},
		{"deadline", errors.New("context deadline exceeded"), true},
		{"net err", errors.New("net::ERR_CONNECTION_RESET"), true},
		{"closed target", errors.New("rod: Target closed"), true},
		{"login failed", NewError(KindLoginFailed, "incorrect"), false},
		{"browser missing", WrapError(KindBrowserNotInstalled, errors.New("no chrome")), false},
		{"renew disabled", NewError(KindRenewDisabled, ""), false},
		{"no credentials", NewError(KindNoCredentials, ""), false},
		// Details that never rendered are worth retrying when the cause was
		// a wait timeout.
		{"details missing on timeout", WrapError(KindMoreDetailsNotFound, errors.New("context deadline exceeded")), true},
		{"plain", errors.New("something else"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsSessionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"expired", NewError(KindSessionExpired, ""), true},
		{"no session", NewError(KindNoSession, ""), true},
		{"closed fetch", WrapError(KindBrowserClosedFetch, errors.New("x")), true},
		{"closed renew", WrapError(KindBrowserClosedRenew, errors.New("x")), true},
		{"relogin failed", NewError(KindAutoReloginFailed, ""), true},
		{"navigation failed", errors.New("Navigation failed: loading"), true},
		{"net err", errors.New("net::ERR_TIMED_OUT"), true},
		{"target closed", errors.New("Target closed"), true},
		{"login failed", NewError(KindLoginFailed, ""), false},
		{"plain", errors.New("parse error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsSessionError(tt.err))
		})
	}
}

func TestErrorStringIncludesKindAndReason(t *testing.T) {
	err := &Error{Kind: KindLoginFailed, Reason: "incorrect", Err: errors.New("boom")}
	require.Contains(t, err.Error(), "LOGIN_FAILED")
	require.Contains(t, err.Error(), "incorrect")
	require.Contains(t, err.Error(), "boom")
}
