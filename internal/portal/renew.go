package portal

import (
	"context"
	"fmt"
	"time"

	"webot/internal/engine"
	"webot/internal/logging"

	"github.com/go-rod/rod/lib/proto"
)

// Renew clicks the renew action on the details screen. Unlike fetch, a
// dead context is never retried here: the click may already have landed,
// and renewing twice spends real money.
func (d *Driver) Renew(ctx context.Context, chatID string, state []byte) (engine.Probe, error) {
	timer := logging.StartTimer(logging.CategoryPortal, "Renew")
	defer timer.StopWithInfo()

	var probe engine.Probe

	page, err := d.preparePage(ctx, chatID, state, false)
	if err != nil {
		return probe, err
	}

	if err := page.Timeout(d.cfg.FetchTimeout).Navigate(usageURL); err != nil {
		probe.CurrentURL = currentURL(page)
		if engine.IsClosedTarget(err) {
			return probe, engine.WrapError(engine.KindBrowserClosedRenew, err)
		}
		return probe, err
	}
	time.Sleep(d.cfg.SettleDelay)

	if onSigninPage(page) {
		probe.CurrentURL = currentURL(page)
		return probe, engine.NewError(engine.KindSessionExpired, "redirected to signin")
	}

	btn, err := page.Timeout(20 * time.Second).ElementR("button", "/renew/i")
	if err != nil {
		probe.CurrentURL = currentURL(page)
		if engine.IsClosedTarget(err) {
			return probe, engine.WrapError(engine.KindBrowserClosedRenew, err)
		}
		// The details screen loaded but never rendered the renew action.
		return probe, &engine.Error{
			Kind:   engine.KindMoreDetailsNotFound,
			Reason: "renew action not rendered on details screen",
			Err:    err,
		}
	}

	attr, err := btn.Attribute("disabled")
	if err != nil {
		probe.CurrentURL = currentURL(page)
		if engine.IsClosedTarget(err) {
			return probe, engine.WrapError(engine.KindBrowserClosedRenew, err)
		}
		return probe, fmt.Errorf("renew button state: %w", err)
	}
	if attr != nil {
		probe.CurrentURL = currentURL(page)
		return probe, engine.NewError(engine.KindRenewDisabled, "renew button disabled")
	}

	_ = btn.ScrollIntoView()
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		probe.CurrentURL = currentURL(page)
		if engine.IsClosedTarget(err) {
			return probe, engine.WrapError(engine.KindBrowserClosedRenew, err)
		}
		return probe, fmt.Errorf("click renew: %w", err)
	}

	// Give the portal time to process before the caller re-fetches state.
	time.Sleep(d.cfg.RenewSettleDelay)

	probe.CurrentURL = currentURL(page)
	probe.MethodPicked = "RENEW_CLICKED"
	logging.Portal("renew clicked for %s", chatID)
	return probe, nil
}
