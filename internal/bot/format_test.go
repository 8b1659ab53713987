package bot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"webot/internal/engine"
	"webot/internal/extract"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }
func bptr(v bool) *bool       { return &v }
func sptr(v string) *string   { return &v }

func TestTo2UnknownNeverZero(t *testing.T) {
	if got := To2(nil); got != notAvailable {
		t.Fatalf("nil rendered as %q", got)
	}
	if got := To2(fptr(12.345)); got != "12.35" {
		t.Fatalf("got %q", got)
	}
	if got := ToInt(nil); got != notAvailable {
		t.Fatalf("nil int rendered as %q", got)
	}
}

func TestCalcDailyQuota(t *testing.T) {
	q := CalcDailyQuota(fptr(30), iptr(10))
	if q == nil || *q != 3 {
		t.Fatalf("got %v", q)
	}
	if CalcDailyQuota(nil, iptr(10)) != nil {
		t.Fatal("unknown remaining should give nil quota")
	}
	if CalcDailyQuota(fptr(30), nil) != nil {
		t.Fatal("unknown days should give nil quota")
	}
	if CalcDailyQuota(fptr(30), iptr(0)) != nil {
		t.Fatal("ended cycle should give nil quota")
	}
}

func TestFormatStatusCompleteSnapshot(t *testing.T) {
	snap := &extract.Snapshot{
		Plan:          "Home 200GB",
		RemainingGB:   fptr(120.5),
		UsedGB:        fptr(79.5),
		BalanceEGP:    fptr(400),
		RenewalDate:   sptr("2026-09-15"),
		RemainingDays: iptr(15),
		RenewPriceEGP: fptr(355),
		TotalRenewEGP: fptr(405),
		CanAfford:     bptr(false),
		CapturedAt:    time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
	}
	out := FormatStatus(snap, 4.25, fptr(5.1))

	for _, want := range []string{
		"Home 200GB", "120.50", "79.50", "4.25", "2026-09-15",
		"متبقي 15 يوم", "355.00", "405.00", "400.00", "❌",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("status missing %q:\n%s", want, out)
		}
	}
	// Quota is 120.5/15.
	if !strings.Contains(out, "8.03") {
		t.Fatalf("missing daily quota:\n%s", out)
	}
}

func TestFormatStatusUnknownsStayUnknown(t *testing.T) {
	snap := &extract.Snapshot{CapturedAt: time.Now()}
	out := FormatStatus(snap, 0, nil)
	if strings.Contains(out, "0.00 GB\n- المستخدم") {
		t.Fatalf("unknown rendered as zero:\n%s", out)
	}
	if got := strings.Count(out, notAvailable); got < 5 {
		t.Fatalf("expected unknown markers, found %d:\n%s", got, out)
	}
}

func TestIsProbablyPortalSlowness(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("navigation timeout exceeded"), true},
		{errors.New("net::ERR_CONNECTION_RESET"), true},
		{engine.NewError(engine.KindBrowserClosedFetch, "tab died"), true},
		{engine.NewError(engine.KindMoreDetailsNotFound, "renew action not rendered"), true},
		{engine.NewError(engine.KindLoginFailed, "bad password"), false},
		{errors.New("database is locked"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := IsProbablyPortalSlowness(c.err); got != c.want {
			t.Fatalf("IsProbablyPortalSlowness(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
