package bot

import (
	"context"
	"time"

	"webot/internal/engine"
	"webot/internal/extract"
	"webot/internal/logging"
)

// backoffMinutes is the wait ladder between fetch attempts. The last
// step repeats until the total budget runs out.
var backoffMinutes = []int{1, 3, 5, 10, 20, 30, 60}

// fetchBudget bounds one progressive fetch run.
type fetchBudget struct {
	Total            time.Duration
	ProgressInterval time.Duration
}

var (
	// statusBudget keeps retrying for a long while; a status request is
	// cheap to serve late.
	statusBudget = fetchBudget{Total: 12 * time.Hour, ProgressInterval: 3 * time.Minute}
	// actionBudget is for link and renew follow-ups where the user is
	// actively waiting.
	actionBudget = fetchBudget{Total: 60 * time.Minute, ProgressInterval: 2 * time.Minute}
)

// notify is how the progress loop talks back to the chat.
type notify func(text string)

// fetchWithProgress keeps calling the engine until a snapshot arrives,
// a terminal error surfaces, or the budget is spent. Transient portal
// failures wait out the backoff ladder; the chat gets a progress message
// at most once per interval so it never looks stuck.
func fetchWithProgress(ctx context.Context, eng *engine.Engine, chatID string, budget fetchBudget, send notify) (*extract.Snapshot, error) {
	deadline := time.Now().Add(budget.Total)
	lastProgress := time.Now()
	var lastErr error

	for attempt := 0; ; attempt++ {
		snap, err := eng.FetchWithSession(ctx, chatID)
		if err == nil {
			return snap, nil
		}
		lastErr = err

		if isTerminalFetch(err) || ctx.Err() != nil {
			return nil, err
		}
		logging.BotWarn("fetch attempt %d for chat %s failed: %v", attempt+1, chatID, err)

		wait := backoffWait(attempt)
		if time.Now().Add(wait).After(deadline) {
			return nil, lastErr
		}
		if time.Since(lastProgress) >= budget.ProgressInterval {
			lastProgress = time.Now()
			if IsProbablyPortalSlowness(err) {
				send("⏳ موقع WE تقيل دلوقتي، بحاول تاني... هبعتلك أول ما يرد.")
			} else {
				send("⏳ لسه بحاول أجيب البيانات، ثواني...")
			}
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func backoffWait(attempt int) time.Duration {
	if attempt >= len(backoffMinutes) {
		attempt = len(backoffMinutes) - 1
	}
	return time.Duration(backoffMinutes[attempt]) * time.Minute
}

// isTerminalFetch reports errors that no amount of retrying fixes and
// the user has to act on instead.
func isTerminalFetch(err error) bool {
	switch engine.KindOf(err) {
	case engine.KindNoSession,
		engine.KindSessionExpired,
		engine.KindLoginFailed,
		engine.KindNoCredentials,
		engine.KindAutoReloginFailed,
		engine.KindBrowserNotInstalled:
		return true
	}
	return false
}
