package engine

import (
	"context"

	"webot/internal/extract"
)

// Probe carries observability facts from the last browser operation. The
// diagnostics endpoint surfaces these so a stuck account can be debugged
// without shell access to the server.
type Probe struct {
	CurrentURL         string
	MethodPicked       string
	MoreDetailsVisible *bool
}

// Driver is the browser-facing side of the engine. The production driver
// runs a real Chrome against the portal; tests substitute a fake so engine
// semantics (locking, retries, relogin bounds) are checked without a
// browser.
//
// State blobs are opaque to the engine: the driver produces one on Login
// and consumes it on fetch/renew.
type Driver interface {
	// Login signs in with the given credentials in a clean context and
	// returns the serialized session state.
	Login(ctx context.Context, serviceNumber, password string) ([]byte, Probe, error)

	// FetchOverview loads the account screens using the chat's session
	// state and extracts a snapshot.
	FetchOverview(ctx context.Context, chatID string, state []byte) (*extract.Snapshot, Probe, error)

	// Renew clicks the renew action using the chat's session state.
	Renew(ctx context.Context, chatID string, state []byte) (Probe, error)

	// DropContext discards any cached browser context for the chat.
	DropContext(chatID string)
}
