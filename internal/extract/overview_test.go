package extract

import (
	"testing"
)

// Fixture text captured from the rendered account-overview screen. The
// portal renders NBSPs and ragged whitespace, which the parsers must
// tolerate.
const overviewFixture = `
Usage Overview
Your Current Plan
Super speed 200 Mbps
Current Balance 361.50 EGP
Home Internet 361.56 Remaining 38.44 Used
More Details
`

const detailsFixture = `
Renewal Cost: 435.00 EGP
Renewal Date: 14-09-2026 , 14 Remaining Days
PREMIUM Router
Price: 60.00 EGP
Renewal Date: 01-10-2026
Renew
`

func TestParseAccountOverview(t *testing.T) {
	b := ParseAccountOverview(overviewFixture)

	if b.Plan != "Super speed 200 Mbps" {
		t.Errorf("plan = %q, want %q", b.Plan, "Super speed 200 Mbps")
	}
	if b.BalanceEGP == nil || *b.BalanceEGP != 361.50 {
		t.Errorf("balance = %v, want 361.50", b.BalanceEGP)
	}
	if b.RemainingGB == nil || *b.RemainingGB != 361.56 {
		t.Errorf("remaining = %v, want 361.56", b.RemainingGB)
	}
	if b.UsedGB == nil || *b.UsedGB != 38.44 {
		t.Errorf("used = %v, want 38.44", b.UsedGB)
	}
}

func TestParseAccountOverviewEmptyStaysUnknown(t *testing.T) {
	b := ParseAccountOverview("Loading...")

	if b.Plan != "" {
		t.Errorf("plan = %q, want empty", b.Plan)
	}
	// Unknown must surface as nil, never as a zero value.
	if b.BalanceEGP != nil || b.RemainingGB != nil || b.UsedGB != nil {
		t.Errorf("expected all-nil basics, got %+v", b)
	}
}

func TestBasicsEmpty(t *testing.T) {
	// An SPA shell with chrome but no account data is what a dead session
	// renders without redirecting to signin.
	shell := `Usage Overview
My Account
More Details
Loading...`
	if b := ParseAccountOverview(shell); !b.Empty() {
		t.Errorf("shell-only text should parse as empty basics, got %+v", b)
	}

	// Any single parsed field means the screen is alive.
	partial := ParseAccountOverview("Current Balance 361.50 EGP")
	if partial.Empty() {
		t.Error("basics with a balance must not count as empty")
	}
	full := ParseAccountOverview(overviewFixture)
	if full.Empty() {
		t.Error("fully parsed basics must not count as empty")
	}
}

func TestParseAccountOverviewNBSPAndCommas(t *testing.T) {
	text := "Current Balance 120,50 EGP\nHome Internet 10,5 Remaining 2,5 Used"
	b := ParseAccountOverview(text)

	if b.BalanceEGP == nil || *b.BalanceEGP != 120.50 {
		t.Errorf("balance = %v, want 120.50", b.BalanceEGP)
	}
	if b.RemainingGB == nil || *b.RemainingGB != 10.5 {
		t.Errorf("remaining = %v, want 10.5", b.RemainingGB)
	}
}

func TestPlanSkipsBoilerplateTitles(t *testing.T) {
	for _, text := range []string{
		"Your Current Plan More Details",
		"Your Current Plan Details",
	} {
		if b := ParseAccountOverview(text); b.Plan != "" {
			t.Errorf("plan for %q = %q, want empty", text, b.Plan)
		}
	}
}

func TestParseOverviewDetails(t *testing.T) {
	d := ParseOverviewDetails(detailsFixture)

	if d.RenewPriceEGP == nil || *d.RenewPriceEGP != 435.00 {
		t.Errorf("renew price = %v, want 435.00", d.RenewPriceEGP)
	}
	if d.RenewalDate == nil || *d.RenewalDate != "14-09-2026" {
		t.Errorf("renewal date = %v, want 14-09-2026", d.RenewalDate)
	}
	if d.RemainingDays == nil || *d.RemainingDays != 14 {
		t.Errorf("remaining days = %v, want 14", d.RemainingDays)
	}
	if d.RouterName != "PREMIUM Router" {
		t.Errorf("router name = %q", d.RouterName)
	}
	if d.RouterMonthlyEGP == nil || *d.RouterMonthlyEGP != 60.00 {
		t.Errorf("router price = %v, want 60.00", d.RouterMonthlyEGP)
	}
	if d.RouterRenewalDate == nil || *d.RouterRenewalDate != "01-10-2026" {
		t.Errorf("router renewal = %v, want 01-10-2026", d.RouterRenewalDate)
	}
}

func TestParseOverviewDetailsNoRouterBlock(t *testing.T) {
	d := ParseOverviewDetails("Renewal Date: 01-01-2027 , 30 Remaining Days")

	if d.RouterName != "" || d.RouterMonthlyEGP != nil || d.RouterRenewalDate != nil {
		t.Errorf("expected no router fields, got %+v", d)
	}
	if d.RenewalDate == nil || *d.RenewalDate != "01-01-2027" {
		t.Errorf("renewal date = %v", d.RenewalDate)
	}
}

func TestNumFromText(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"361.56 GB", Float(361.56)},
		{"1,5", Float(1.5)},
		{" 42 EGP", Float(42)},
		{"no numbers here", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := NumFromText(tt.in)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("NumFromText(%q) = %v, want nil", tt.in, *got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("NumFromText(%q) = %v, want %v", tt.in, got, *tt.want)
		}
	}
}

func TestEGPValues(t *testing.T) {
	text := "Current Balance 50 EGP foo 80.00 EGP bar Price: 20 EGP"
	got := EGPValues(text)
	want := []float64{50, 80, 20}
	if len(got) != len(want) {
		t.Fatalf("EGPValues = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("EGPValues[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
