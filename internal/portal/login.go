package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"webot/internal/browser"
	"webot/internal/engine"
	"webot/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// loginFailureFragments are site-reported messages that mean the
// credentials were rejected, as opposed to the site being slow.
var loginFailureFragments = []string{
	"incorrect",
	"invalid",
	"wrong password",
	"does not exist",
	"locked",
}

// Login signs in from a clean throwaway context and returns the captured
// session state. It never retries; the engine owns the retry policy.
func (d *Driver) Login(ctx context.Context, serviceNumber, password string) ([]byte, engine.Probe, error) {
	timer := logging.StartTimer(logging.CategoryPortal, "Login")
	defer timer.StopWithInfo()

	uc, err := d.mgr.NewContext(ctx)
	if err != nil {
		return nil, engine.Probe{}, err
	}
	defer uc.Close()

	page := uc.Page().Context(ctx)
	probe := engine.Probe{MethodPicked: "LOGIN"}

	if err := d.loginFlow(page, serviceNumber, password); err != nil {
		probe.CurrentURL = currentURL(page)
		return nil, probe, err
	}

	if err := d.gotoAccountOverview(page); err != nil {
		probe.CurrentURL = currentURL(page)
		return nil, probe, fmt.Errorf("post-login overview: %w", err)
	}

	state, err := browser.CaptureState(page)
	if err != nil {
		probe.CurrentURL = currentURL(page)
		return nil, probe, fmt.Errorf("capture session state: %w", err)
	}
	blob, err := state.Marshal()
	if err != nil {
		return nil, probe, err
	}

	probe.CurrentURL = currentURL(page)
	probe.MethodPicked = "LOGIN_OK"
	logging.Portal("login succeeded, session state captured (%d bytes)", len(blob))
	return blob, probe, nil
}

func (d *Driver) loginFlow(page *rod.Page, serviceNumber, password string) error {
	if err := page.Timeout(d.cfg.LoginTimeout).Navigate(signinURL); err != nil {
		return fmt.Errorf("navigate signin: %w", err)
	}

	service, err := page.Timeout(d.cfg.LoginTimeout).Element(selInputService)
	if err != nil {
		return fmt.Errorf("service number input: %w", err)
	}
	if err := service.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focus service input: %w", err)
	}
	if err := service.SelectAllText(); err == nil {
		_ = service.Type(input.Backspace)
	}
	if err := service.Input(serviceNumber); err != nil {
		return fmt.Errorf("type service number: %w", err)
	}

	if err := d.selectInternetServiceType(page); err != nil {
		return err
	}

	pass, err := page.Timeout(d.cfg.LoginTimeout).Element(selInputPassword)
	if err != nil {
		return fmt.Errorf("password input: %w", err)
	}
	if err := pass.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focus password input: %w", err)
	}
	if err := pass.Input(password); err != nil {
		return fmt.Errorf("type password: %w", err)
	}

	btn, err := page.Timeout(d.cfg.LoginTimeout).Element(selLoginButton)
	if err != nil {
		return fmt.Errorf("login button: %w", err)
	}
	logging.PortalDebug("clicking login button")
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click login: %w", err)
	}

	return d.awaitLoginOutcome(page)
}

// selectInternetServiceType picks "Internet" in the service-type dropdown.
// Direct option click first; when the dropdown renders outside the viewport
// (headless) the click misses and the keyboard path takes over.
func (d *Driver) selectInternetServiceType(page *rod.Page) error {
	trigger, err := page.Timeout(d.cfg.LoginTimeout).Element(selServiceTypeTrigger)
	if err != nil {
		return fmt.Errorf("service type trigger: %w", err)
	}
	if err := trigger.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("open service type dropdown: %w", err)
	}

	dropdown, err := page.Timeout(15 * time.Second).Element(selServiceDropdown)
	if err != nil {
		return fmt.Errorf("service type dropdown: %w", err)
	}

	if opt, err := page.Timeout(3 * time.Second).ElementR(selDropdownOption, "/internet/i"); err == nil {
		_ = opt.ScrollIntoView()
		if err := opt.Click(proto.InputMouseButtonLeft, 1); err == nil {
			logging.PortalDebug("service type selected by option click")
			return nil
		}
	}

	logging.PortalDebug("option click missed, selecting service type by keyboard")
	_ = page.InsertText("internet")
	time.Sleep(250 * time.Millisecond)
	_ = page.Keyboard.Press(input.Enter)
	time.Sleep(250 * time.Millisecond)

	// Fallback: walk the options with arrow keys until "Internet" is the
	// active one.
	if visible, _ := dropdown.Visible(); visible {
		for i := 0; i < 20; i++ {
			active, err := page.Timeout(500 * time.Millisecond).Element(selActiveOption)
			if err == nil {
				if text, _ := active.Text(); strings.Contains(strings.ToLower(text), "internet") {
					_ = page.Keyboard.Press(input.Enter)
					break
				}
			}
			_ = page.Keyboard.Press(input.ArrowDown)
			time.Sleep(120 * time.Millisecond)
		}
	}
	return nil
}

// awaitLoginOutcome polls until the portal either lands on the account
// screens or reports a credential failure. A full timeout with neither
// signal is treated as portal slowness, not a credential failure.
func (d *Driver) awaitLoginOutcome(page *rod.Page) error {
	deadline := time.Now().Add(d.cfg.LoginTimeout)
	for time.Now().Before(deadline) {
		if strings.Contains(strings.ToLower(currentURL(page)), "accountoverview") {
			return nil
		}

		text := strings.ToLower(bodyText(page))
		for _, marker := range []string{"welcome", "usage overview", "home internet"} {
			if strings.Contains(text, marker) {
				return nil
			}
		}
		if onSigninPage(page) {
			for _, frag := range loginFailureFragments {
				if strings.Contains(text, frag) {
					reason := frag
					return engine.NewError(engine.KindLoginFailed, reason)
				}
			}
		}

		time.Sleep(time.Second)
	}
	return fmt.Errorf("login outcome timeout after %s at %s", d.cfg.LoginTimeout, currentURL(page))
}
