// Package portal drives the ISP customer portal through a headless
// browser: sign-in, account-overview scraping and the renew action. It is
// the production implementation of engine.Driver.
package portal

import (
	"strings"
	"time"

	"webot/internal/browser"
	"webot/internal/extract"
	"webot/internal/logging"

	"github.com/go-rod/rod"
)

// Config holds portal operation timing. Zero values fall back to the
// defaults the portal has been observed to need; the site is slow and
// frequently hangs, so these are generous.
type Config struct {
	LoginTimeout      time.Duration `yaml:"login_timeout"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	ReadyPollAttempts int           `yaml:"ready_poll_attempts"`
	ReadyPollInterval time.Duration `yaml:"ready_poll_interval"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	RenewSettleDelay  time.Duration `yaml:"renew_settle_delay"`
}

// DefaultConfig returns the observed-safe portal timings.
func DefaultConfig() Config {
	return Config{
		LoginTimeout:      120 * time.Second,
		FetchTimeout:      90 * time.Second,
		ReadyPollAttempts: 18,
		ReadyPollInterval: 400 * time.Millisecond,
		SettleDelay:       1200 * time.Millisecond,
		RenewSettleDelay:  4 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LoginTimeout == 0 {
		c.LoginTimeout = d.LoginTimeout
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.ReadyPollAttempts == 0 {
		c.ReadyPollAttempts = d.ReadyPollAttempts
	}
	if c.ReadyPollInterval == 0 {
		c.ReadyPollInterval = d.ReadyPollInterval
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = d.SettleDelay
	}
	if c.RenewSettleDelay == 0 {
		c.RenewSettleDelay = d.RenewSettleDelay
	}
	return c
}

// Driver scrapes the portal through a shared browser manager. One browser
// context is cached per chat and reused across fetches; the per-chat
// execution lock upstream guarantees exclusive access.
type Driver struct {
	mgr          *browser.Manager
	cfg          Config
	resolvePrice extract.PriceResolver
}

// New creates a portal driver on top of a browser manager.
func New(mgr *browser.Manager, cfg Config) *Driver {
	return &Driver{
		mgr:          mgr,
		cfg:          cfg.withDefaults(),
		resolvePrice: extract.ResolveRenewPrice,
	}
}

// SetPriceResolver swaps the renewal-price disambiguation strategy.
func (d *Driver) SetPriceResolver(r extract.PriceResolver) {
	if r != nil {
		d.resolvePrice = r
	}
}

// DropContext discards the chat's cached browser context.
func (d *Driver) DropContext(chatID string) {
	d.mgr.DropContext(chatID)
}

// currentURL returns the page URL, empty on failure.
func currentURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// bodyText returns the page's full rendered text, empty on failure.
func bodyText(page *rod.Page) string {
	el, err := page.Timeout(10 * time.Second).Element("body")
	if err != nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return text
}

// waitOverviewReady polls for any overview content marker. Returns false
// when the screen never rendered within the poll budget.
func (d *Driver) waitOverviewReady(page *rod.Page) bool {
	for i := 0; i < d.cfg.ReadyPollAttempts; i++ {
		text := strings.ToLower(bodyText(page))
		for _, marker := range overviewMarkers {
			if strings.Contains(text, marker) {
				return true
			}
		}
		time.Sleep(d.cfg.ReadyPollInterval)
	}
	return false
}

// onSigninPage reports whether the SPA bounced us back to the login route,
// which is how the portal signals an expired session.
func onSigninPage(page *rod.Page) bool {
	return strings.Contains(strings.ToLower(currentURL(page)), "signin")
}

func (d *Driver) gotoAccountOverview(page *rod.Page) error {
	if err := page.Timeout(d.cfg.FetchTimeout).Navigate(overviewURL); err != nil {
		return err
	}
	if !d.waitOverviewReady(page) {
		logging.PortalDebug("account overview markers never appeared at %s", currentURL(page))
	}
	return nil
}
