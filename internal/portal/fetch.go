package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"webot/internal/browser"
	"webot/internal/engine"
	"webot/internal/extract"
	"webot/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// preparePage returns the chat's page ready for portal navigation. The
// cached context is reused when live; otherwise a fresh incognito context
// is rebuilt from the stored session state.
func (d *Driver) preparePage(ctx context.Context, chatID string, state []byte, forceFresh bool) (*rod.Page, error) {
	if !forceFresh {
		if uc, ok := d.mgr.Context(chatID); ok {
			return uc.Page().Context(ctx), nil
		}
	}

	st, err := browser.UnmarshalState(state)
	if err != nil {
		return nil, err
	}
	uc, err := d.mgr.CreateContext(ctx, chatID)
	if err != nil {
		return nil, err
	}
	page := uc.Page().Context(ctx)

	// Cookies carry their domains and go in before navigation. Web storage
	// is origin-scoped, so it is injected after landing on the portal, and
	// the reload lets the SPA boot with the restored auth tokens in place.
	if err := st.RestoreCookies(page); err != nil {
		logging.PortalWarn("cookie restore failed for %s: %v", chatID, err)
	}
	if err := page.Timeout(d.cfg.FetchTimeout).Navigate(overviewURL); err != nil {
		return nil, fmt.Errorf("initial navigation: %w", err)
	}
	st.RestoreStorage(page)
	if err := page.Timeout(d.cfg.FetchTimeout).Reload(); err != nil {
		logging.PortalWarn("post-restore reload failed for %s: %v", chatID, err)
	}
	logging.PortalDebug("context rebuilt from stored state for %s", chatID)
	return page, nil
}

// FetchOverview loads the account screens and extracts a snapshot. A dead
// cached context gets one rebuild from the stored state before the failure
// is surfaced.
func (d *Driver) FetchOverview(ctx context.Context, chatID string, state []byte) (*extract.Snapshot, engine.Probe, error) {
	timer := logging.StartTimer(logging.CategoryPortal, "FetchOverview")
	defer timer.StopWithInfo()

	snap, probe, err := d.fetchOnce(ctx, chatID, state, false)
	if err != nil && engine.IsClosedTarget(err) {
		logging.PortalWarn("context died mid-fetch for %s, rebuilding once: %v", chatID, err)
		d.mgr.DropContext(chatID)
		snap, probe, err = d.fetchOnce(ctx, chatID, state, true)
		if err != nil && engine.IsClosedTarget(err) {
			return nil, probe, engine.WrapError(engine.KindBrowserClosedFetch, err)
		}
	}
	return snap, probe, err
}

func (d *Driver) fetchOnce(ctx context.Context, chatID string, state []byte, forceFresh bool) (*extract.Snapshot, engine.Probe, error) {
	var probe engine.Probe

	page, err := d.preparePage(ctx, chatID, state, forceFresh)
	if err != nil {
		return nil, probe, err
	}

	if err := d.gotoAccountOverview(page); err != nil {
		probe.CurrentURL = currentURL(page)
		return nil, probe, err
	}

	// An expired session bounces the SPA back to signin. A cached context
	// may just be stale; one rebuild from the stored state settles it.
	if onSigninPage(page) {
		if !forceFresh {
			logging.PortalDebug("signin redirect on cached context for %s, rebuilding", chatID)
			d.mgr.DropContext(chatID)
			return d.fetchOnce(ctx, chatID, state, true)
		}
		probe.CurrentURL = currentURL(page)
		return nil, probe, engine.NewError(engine.KindSessionExpired, "redirected to signin")
	}

	text := bodyText(page)
	basics := extract.ParseAccountOverview(text)

	if basics.RemainingGB == nil || basics.UsedGB == nil || basics.BalanceEGP == nil {
		logging.PortalDebug("basics incomplete for %s, reloading once", chatID)
		_ = page.Timeout(d.cfg.FetchTimeout).Reload()
		d.waitOverviewReady(page)
		time.Sleep(d.cfg.SettleDelay)
		text = bodyText(page)
		basics = extract.ParseAccountOverview(text)

		// A shell that renders no account data at all after the reload is a
		// dead session, even without a signin redirect. Partial basics still
		// count as a degraded success.
		if basics.Empty() {
			probe.CurrentURL = currentURL(page)
			return nil, probe, engine.NewError(engine.KindSessionExpired, "overview rendered no account data")
		}
	}

	// Secondary screen behind "More Details" has renewal and router data.
	// When the link never renders we degrade to basics only instead of
	// failing the whole fetch.
	var details extract.Details
	usedMoreDetails := false
	if more, err := page.Timeout(3 * time.Second).ElementR("button, a, span, div", "/more details/i"); err == nil {
		if visible, _ := more.Visible(); visible {
			usedMoreDetails = true
			_ = more.ScrollIntoView()
			if err := more.Click(proto.InputMouseButtonLeft, 1); err != nil {
				logging.PortalDebug("more-details click failed for %s: %v", chatID, err)
			}
			time.Sleep(d.cfg.SettleDelay)

			if !strings.Contains(currentURL(page), "#/overview") {
				_ = page.Timeout(d.cfg.FetchTimeout).Navigate(usageURL)
			}
			time.Sleep(d.cfg.SettleDelay)

			detailsText := bodyText(page)
			details = extract.ParseOverviewDetails(detailsText)
			if details.RenewPriceEGP == nil {
				details.RenewPriceEGP = d.resolvePrice(
					extract.EGPValues(detailsText), basics.BalanceEGP, details.RouterMonthlyEGP)
			}
		}
	}
	if !usedMoreDetails {
		logging.PortalDebug("more-details not visible for %s, basics only", chatID)
	}

	var renewEnabled *bool
	if btn, err := page.Timeout(3 * time.Second).ElementR("button", "/renew/i"); err == nil {
		if visible, _ := btn.Visible(); visible {
			if attr, err := btn.Attribute("disabled"); err == nil {
				enabled := attr == nil
				renewEnabled = &enabled
			}
		}
	}

	snap := &extract.Snapshot{
		Plan:        basics.Plan,
		RemainingGB: basics.RemainingGB,
		UsedGB:      basics.UsedGB,
		BalanceEGP:  basics.BalanceEGP,

		RenewalDate:   details.RenewalDate,
		RemainingDays: details.RemainingDays,
		RenewPriceEGP: details.RenewPriceEGP,

		RouterName:        details.RouterName,
		RouterMonthlyEGP:  details.RouterMonthlyEGP,
		RouterRenewalDate: details.RouterRenewalDate,

		RenewBtnEnabled: renewEnabled,
		CapturedAt:      time.Now(),
	}
	snap.Derive()

	probe.CurrentURL = currentURL(page)
	probe.MoreDetailsVisible = &usedMoreDetails
	if usedMoreDetails {
		probe.MethodPicked = "ACCOUNTOVERVIEW + OVERVIEW"
	} else {
		probe.MethodPicked = "ACCOUNTOVERVIEW_ONLY"
	}
	return snap, probe, nil
}
