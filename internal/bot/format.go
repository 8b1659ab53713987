package bot

import (
	"fmt"
	"math"
	"strings"
	"time"

	"webot/internal/engine"
	"webot/internal/extract"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const notAvailable = "غير متاح"

// To2 renders a float with two decimals, or the not-available marker for
// nil/NaN. Unknown must never render as 0.00.
func To2(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return notAvailable
	}
	return fmt.Sprintf("%.2f", *v)
}

// To2f renders a known float with two decimals.
func To2f(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// ToInt renders a rounded integer, or the not-available marker.
func ToInt(v *int) string {
	if v == nil {
		return notAvailable
	}
	return fmt.Sprintf("%d", *v)
}

func strOr(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}

// CalcDailyQuota returns remaining quota divided by remaining days, nil
// when either side is unknown or the cycle already ended.
func CalcDailyQuota(remainingGB *float64, remainingDays *int) *float64 {
	if remainingGB == nil || remainingDays == nil || *remainingDays <= 0 {
		return nil
	}
	q := *remainingGB / float64(*remainingDays)
	return &q
}

// MainKeyboard is the persistent reply keyboard.
func MainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("📊 Status"),
			tgbotapi.NewKeyboardButton("📅 Today"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("📈 Risk"),
			tgbotapi.NewKeyboardButton("🔔 Alerts"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("🔗 Link Account"),
			tgbotapi.NewKeyboardButton("♻️ Renew"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("🚪 Logout"),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// FormatStatus renders the full account snapshot message.
func FormatStatus(s *extract.Snapshot, todayUsage float64, avgUsage *float64) string {
	dailyQuota := CalcDailyQuota(s.RemainingGB, s.RemainingDays)

	renewLine := notAvailable
	if s.RenewalDate != nil {
		days := "؟"
		if s.RemainingDays != nil {
			days = fmt.Sprintf("%d", *s.RemainingDays)
		}
		renewLine = fmt.Sprintf("%s (متبقي %s يوم)", *s.RenewalDate, days)
	}

	routerLine := "- قسط الراوتر: لا يوجد / غير متاح"
	if s.RouterMonthlyEGP != nil && *s.RouterMonthlyEGP > 0 {
		routerLine = fmt.Sprintf("- قسط الراوتر: %s EGP (تجديده: %s)",
			To2(s.RouterMonthlyEGP), strOr(s.RouterRenewalDate, notAvailable))
	}

	quotaLine := notAvailable
	if dailyQuota != nil {
		quotaLine = fmt.Sprintf("%s GB/يوم", To2(dailyQuota))
	}
	avgLine := notAvailable
	if avgUsage != nil {
		avgLine = fmt.Sprintf("%s GB/يوم", To2(avgUsage))
	}
	priceLine := notAvailable
	if s.RenewPriceEGP != nil {
		priceLine = fmt.Sprintf("%s EGP", To2(s.RenewPriceEGP))
	}
	totalLine := notAvailable
	if s.TotalRenewEGP != nil {
		totalLine = fmt.Sprintf("%s EGP", To2(s.TotalRenewEGP))
	}
	affordLine := notAvailable
	if s.CanAfford != nil {
		if *s.CanAfford {
			affordLine = "✅ نعم"
		} else {
			affordLine = "❌ لا"
		}
	}

	plan := s.Plan
	if plan == "" {
		plan = notAvailable
	}

	return strings.Join([]string{
		"📶 WE Home Internet",
		fmt.Sprintf("- الباقة: %s", plan),
		fmt.Sprintf("- المتبقي: %s GB", To2(s.RemainingGB)),
		fmt.Sprintf("- المستخدم (الدورة): %s GB", To2(s.UsedGB)),
		fmt.Sprintf("- استهلاك النهاردة: %s GB", To2f(todayUsage)),
		fmt.Sprintf("- التجديد: %s", renewLine),
		fmt.Sprintf("- حصتك اليومية لحد التجديد: %s", quotaLine),
		fmt.Sprintf("- متوسط استهلاكك اليومي: %s", avgLine),
		"",
		"💳 تفاصيل التجديد",
		fmt.Sprintf("- سعر الباقة: %s", priceLine),
		routerLine,
		fmt.Sprintf("- الإجمالي المتوقع: %s", totalLine),
		fmt.Sprintf("- الرصيد الحالي: %s EGP", To2(s.BalanceEGP)),
		fmt.Sprintf("- هل الرصيد يكفي؟ %s", affordLine),
		fmt.Sprintf("- آخر تحديث: %s", s.CapturedAt.In(cairoLoc()).Format("2006-01-02 15:04")),
	}, "\n")
}

func cairoLoc() *time.Location {
	loc, err := time.LoadLocation("Africa/Cairo")
	if err != nil {
		return time.FixedZone("EET", 2*60*60)
	}
	return loc
}

// IsProbablyPortalSlowness classifies an error as "the portal is being the
// portal" for progress messaging, as opposed to a real fault.
func IsProbablyPortalSlowness(err error) bool {
	if err == nil {
		return false
	}
	switch engine.KindOf(err) {
	case engine.KindBrowserClosedFetch, engine.KindBrowserClosedRenew, engine.KindMoreDetailsNotFound:
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{
		"timeout", "timed out", "net::", "navigation",
		"target closed", "context", "renew button not found",
	} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
