package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Overview-screen patterns. The portal is an SPA that renders everything as
// flat text, so the parsers work on the normalized body text rather than on
// markup.
var (
	planRe         = regexp.MustCompile(`(?i)Your Current Plan\s*([^\n]{3,80})`)
	planFallbackRe = regexp.MustCompile(`(?i)Super speed[^\n]{0,80}`)
	balanceRe      = regexp.MustCompile(`(?i)Current Balance\s*([\d.,]+)\s*EGP`)
	usageRe        = regexp.MustCompile(`(?i)Home Internet\s*([\d.,]+)\s*Remaining\s*([\d.,]+)\s*Used`)

	renewCostRe   = regexp.MustCompile(`(?i)Renewal Cost:\s*([\d.,]+)\s*EGP`)
	renewalRe     = regexp.MustCompile(`(?i)Renewal Date:\s*([0-9]{2}-[0-9]{2}-[0-9]{4})\s*,?\s*(\d+)\s*Remaining Days`)
	routerPriceRe = regexp.MustCompile(`(?i)Price:\s*([\d.,]+)\s*EGP`)
	routerDateRe  = regexp.MustCompile(`(?i)Renewal Date:\s*([0-9]{2}-[0-9]{2}-[0-9]{4})`)
)

// routerWindow bounds how far past the "premium router" heading the router
// block is searched. The block is short; the bound keeps a later unrelated
// "Price:" from bleeding in.
const routerWindow = 1600

// Basics holds the fields readable from the account-overview screen alone.
type Basics struct {
	Plan        string
	BalanceEGP  *float64
	RemainingGB *float64
	UsedGB      *float64
}

// Empty reports whether none of the quota/balance fields parsed. All-nil
// basics after a reload means the session itself is unusable rather than a
// transient render race.
func (b Basics) Empty() bool {
	return b.RemainingGB == nil && b.UsedGB == nil && b.BalanceEGP == nil
}

// ParseAccountOverview reads plan, balance and quota state from the
// account-overview body text. Missing fields stay nil.
func ParseAccountOverview(bodyText string) Basics {
	text := NormalizeText(bodyText)
	var b Basics

	if m := planRe.FindStringSubmatch(text); m != nil {
		b.Plan = cleanPlan(m[1])
	}
	if b.Plan == "" {
		if m := planFallbackRe.FindString(text); m != "" {
			b.Plan = strings.TrimSpace(m)
		}
	}
	if m := balanceRe.FindStringSubmatch(text); m != nil {
		b.BalanceEGP = NumFromText(m[1])
	}
	if m := usageRe.FindStringSubmatch(text); m != nil {
		b.RemainingGB = NumFromText(m[1])
		b.UsedGB = NumFromText(m[2])
	}
	return b
}

// cleanPlan drops boilerplate titles the plan block sometimes leads with.
// Anything that is just "Details"/"More ..." is navigation chrome, not a
// subscription name.
func cleanPlan(s string) string {
	s = strings.TrimSpace(s)
	low := strings.ToLower(s)
	if s == "" || strings.Contains(low, "details") || strings.HasPrefix(low, "more") {
		return ""
	}
	return s
}

// Details holds the fields readable from the secondary "More Details"
// overview screen.
type Details struct {
	RenewPriceEGP     *float64
	RenewalDate       *string
	RemainingDays     *int
	RouterName        string
	RouterMonthlyEGP  *float64
	RouterRenewalDate *string
}

// ParseOverviewDetails reads renewal and router add-on data from the details
// screen body text.
func ParseOverviewDetails(bodyText string) Details {
	text := NormalizeText(bodyText)
	var d Details

	if m := renewCostRe.FindStringSubmatch(text); m != nil {
		d.RenewPriceEGP = NumFromText(m[1])
	}
	if m := renewalRe.FindStringSubmatch(text); m != nil {
		d.RenewalDate = Str(m[1])
		if n, err := strconv.Atoi(m[2]); err == nil {
			d.RemainingDays = Int(n)
		}
	}

	if idx := strings.Index(strings.ToLower(text), "premium router"); idx >= 0 {
		end := idx + routerWindow
		if end > len(text) {
			end = len(text)
		}
		seg := text[idx:end]
		d.RouterName = "PREMIUM Router"
		if m := routerPriceRe.FindStringSubmatch(seg); m != nil {
			d.RouterMonthlyEGP = NumFromText(m[1])
		}
		if m := routerDateRe.FindStringSubmatch(seg); m != nil {
			d.RouterRenewalDate = Str(m[1])
		}
	}
	return d
}
