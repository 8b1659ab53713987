package engine

import (
	"context"
	"errors"
	"time"

	"webot/internal/extract"
	"webot/internal/logging"
	"webot/internal/store"
)

// SessionStore is the persistence the engine needs. *store.Store satisfies
// it; tests substitute an in-memory fake.
type SessionStore interface {
	SaveSession(chatID string, data []byte) error
	GetSession(chatID string) ([]byte, error)
	DeleteSession(chatID string) error
	HasSession(chatID string) (bool, error)
	GetCredentials(chatID string) (store.Credentials, error)
}

// Options tune engine behavior. Zero values get the defaults the portal
// has been observed to need.
type Options struct {
	LoginRetry     RetryPolicy
	MaxAutoRelogin int
}

// Engine owns the portal session lifecycle for every chat: login and
// persist, fetch with auto-relogin, renew, delete. All operations on the
// same chat are serialized; operations on different chats run freely in
// parallel.
type Engine struct {
	driver Driver
	store  SessionStore

	loginRetry     RetryPolicy
	maxAutoRelogin int

	locks *keyedLock
	diags *diagStore
}

// New wires an engine from a driver and a session store.
func New(driver Driver, st SessionStore, opts Options) *Engine {
	if opts.LoginRetry.MaxAttempts == 0 {
		opts.LoginRetry = DefaultLoginRetry()
	}
	if opts.MaxAutoRelogin == 0 {
		opts.MaxAutoRelogin = 2
	}
	return &Engine{
		driver:         driver,
		store:          st,
		loginRetry:     opts.LoginRetry,
		maxAutoRelogin: opts.MaxAutoRelogin,
		locks:          newKeyedLock(),
		diags:          newDiagStore(),
	}
}

// LoginAndSave signs in with the given credentials and persists both the
// session state and the credentials for later auto-relogin.
func (e *Engine) LoginAndSave(ctx context.Context, chatID, serviceNumber, password string) error {
	release, err := e.locks.Acquire(ctx, chatID)
	if err != nil {
		return err
	}
	defer release()

	if err := e.loginLocked(ctx, chatID, serviceNumber, password); err != nil {
		return err
	}
	return nil
}

// loginLocked runs the retrying login and persists the resulting state.
// Caller holds the chat lock.
func (e *Engine) loginLocked(ctx context.Context, chatID, serviceNumber, password string) error {
	attempt := 0
	err := e.loginRetry.run(ctx, func() error {
		attempt++
		logging.Engine("login attempt %d for %s", attempt, chatID)

		state, probe, err := e.driver.Login(ctx, serviceNumber, password)
		e.diags.update(chatID, func(d *Diagnostics) {
			d.CurrentURL = probe.CurrentURL
			d.MethodPicked = probe.MethodPicked
			if err != nil {
				d.LastError = err.Error()
			} else {
				d.LastError = ""
			}
		})
		if err != nil {
			return err
		}
		return e.store.SaveSession(chatID, state)
	})
	if err != nil {
		logging.EngineError("login failed for %s after %d attempts: %v", chatID, attempt, err)
		return err
	}

	// A stale cached context from a previous session must not survive a
	// successful re-login.
	e.driver.DropContext(chatID)
	logging.Engine("login succeeded for %s", chatID)
	return nil
}

// FetchWithSession loads the account snapshot using the chat's stored
// session, transparently re-logging-in (bounded) when the session has
// expired and credentials are on file.
func (e *Engine) FetchWithSession(ctx context.Context, chatID string) (*extract.Snapshot, error) {
	release, err := e.locks.Acquire(ctx, chatID)
	if err != nil {
		return nil, err
	}
	defer release()

	return e.fetchLocked(ctx, chatID, 0)
}

func (e *Engine) fetchLocked(ctx context.Context, chatID string, relogins int) (*extract.Snapshot, error) {
	state, err := e.store.GetSession(chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewError(KindNoSession, "no stored session")
	}
	if err != nil {
		return nil, err
	}

	snap, probe, err := e.driver.FetchOverview(ctx, chatID, state)
	e.diags.update(chatID, func(d *Diagnostics) {
		d.CurrentURL = probe.CurrentURL
		d.MethodPicked = probe.MethodPicked
		d.MoreDetailsVisible = probe.MoreDetailsVisible
		if err != nil {
			d.LastError = err.Error()
		} else {
			d.LastError = ""
			now := time.Now()
			d.LastFetchAt = &now
		}
	})
	if err == nil {
		return snap, nil
	}

	if IsSessionError(err) && relogins < e.maxAutoRelogin {
		logging.EngineWarn("session error for %s, auto-relogin %d/%d: %v",
			chatID, relogins+1, e.maxAutoRelogin, err)
		e.driver.DropContext(chatID)
		if rerr := e.autoRelogin(ctx, chatID); rerr != nil {
			if IsKind(rerr, KindNoCredentials) {
				return nil, rerr
			}
			return nil, &Error{Kind: KindAutoReloginFailed, Err: rerr}
		}
		return e.fetchLocked(ctx, chatID, relogins+1)
	}

	return nil, err
}

// autoRelogin re-runs the login flow with the stored credentials. Caller
// holds the chat lock.
func (e *Engine) autoRelogin(ctx context.Context, chatID string) error {
	creds, err := e.store.GetCredentials(chatID)
	if errors.Is(err, store.ErrNotFound) {
		return NewError(KindNoCredentials, "no stored credentials")
	}
	if err != nil {
		return err
	}
	return e.loginLocked(ctx, chatID, creds.ServiceNumber, creds.Password)
}

// RenewWithSession clicks the renew action using the chat's stored
// session. No auto-relogin here: the caller should have fetched first, and
// an unattended relogin right before spending money is the wrong reflex.
func (e *Engine) RenewWithSession(ctx context.Context, chatID string) error {
	release, err := e.locks.Acquire(ctx, chatID)
	if err != nil {
		return err
	}
	defer release()

	state, err := e.store.GetSession(chatID)
	if errors.Is(err, store.ErrNotFound) {
		return NewError(KindNoSession, "no stored session")
	}
	if err != nil {
		return err
	}

	probe, err := e.driver.Renew(ctx, chatID, state)
	e.diags.update(chatID, func(d *Diagnostics) {
		d.CurrentURL = probe.CurrentURL
		d.MethodPicked = probe.MethodPicked
		if err != nil {
			d.LastError = err.Error()
		} else {
			d.LastError = ""
		}
	})
	return err
}

// DeleteSession drops the chat's browser context, stored session and
// diagnostics. Idempotent: deleting a session that never existed succeeds.
func (e *Engine) DeleteSession(ctx context.Context, chatID string) error {
	release, err := e.locks.Acquire(ctx, chatID)
	if err != nil {
		return err
	}
	defer release()

	e.driver.DropContext(chatID)
	if err := e.store.DeleteSession(chatID); err != nil {
		return err
	}
	e.diags.drop(chatID)
	logging.Engine("session deleted for %s", chatID)
	return nil
}

// SessionDiagnostics returns the chat's last-known operational state.
func (e *Engine) SessionDiagnostics(chatID string) Diagnostics {
	d := e.diags.get(chatID)
	if has, err := e.store.HasSession(chatID); err == nil {
		d.HasSession = has
	}
	return d
}
