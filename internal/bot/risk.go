package bot

import (
	"fmt"
	"strings"
	"time"

	"webot/internal/store"
)

// Alert keys, deduplicated per chat per Cairo day.
const (
	alertDailySpike = "DAILY_SPIKE"
	alertMonthSpike = "MONTH_TO_DATE_SPIKE"
	alertCycleRisk  = "CYCLE_RISK"
	avgWindowDays   = 14
)

// RiskSnapshot is the derived consumption picture for one chat.
type RiskSnapshot struct {
	Day        string
	DayOfMonth int

	TodayGB  float64
	MonthGB  float64
	AvgDaily *float64 // nil until enough history exists
	DailyCap *float64 // avg * DailyMultiplier
	MonthCap *float64 // avg * dayOfMonth * MonthlyRatio
	QuotaDay *float64 // remaining quota / remaining days, from last snapshot

	DailySpike bool
	MonthSpike bool
	CycleRisk  bool
}

// BuildRiskSnapshot computes today's and month-to-date consumption for a
// chat and flags each threshold that is currently exceeded. Thresholds
// with missing inputs stay un-flagged rather than guessing.
func BuildRiskSnapshot(st *store.Store, chatID string, settings store.ReminderSettings, now time.Time) (*RiskSnapshot, error) {
	today, err := st.TodayUsageRobust(chatID, now)
	if err != nil {
		return nil, fmt.Errorf("today usage: %w", err)
	}
	month, err := st.MonthUsage(chatID, now)
	if err != nil {
		return nil, fmt.Errorf("month usage: %w", err)
	}
	avg, err := st.AvgDailyUsage(chatID, avgWindowDays)
	if err != nil {
		return nil, fmt.Errorf("avg usage: %w", err)
	}

	rs := &RiskSnapshot{
		Day:        store.CairoDay(now),
		DayOfMonth: now.In(cairoLoc()).Day(),
		TodayGB:    today,
		MonthGB:    month,
		AvgDaily:   avg,
	}

	if avg != nil && *avg > 0 {
		dc := *avg * settings.DailyMultiplier
		mc := *avg * float64(rs.DayOfMonth) * settings.MonthlyRatio
		rs.DailyCap = &dc
		rs.MonthCap = &mc
		rs.DailySpike = today > dc
		rs.MonthSpike = month > mc
	}

	// Cycle risk compares the running average against the per-day quota
	// implied by the latest snapshot. Burning quota faster than the cycle
	// allows means running dry before renewal.
	last, err := st.LatestSnapshot(chatID)
	if err == nil && last != nil {
		rs.QuotaDay = CalcDailyQuota(last.RemainingGB, last.RemainingDays)
		if rs.QuotaDay != nil && avg != nil && *avg > *rs.QuotaDay*settings.MonthlyRatio {
			rs.CycleRisk = true
		}
	}
	return rs, nil
}

// FormatRisk renders the /risk report.
func FormatRisk(rs *RiskSnapshot) string {
	lines := []string{
		"📈 تقرير الاستهلاك",
		fmt.Sprintf("- النهاردة: %s GB", To2f(rs.TodayGB)),
		fmt.Sprintf("- من أول الشهر: %s GB", To2f(rs.MonthGB)),
		fmt.Sprintf("- متوسطك اليومي (آخر %d يوم): %s", avgWindowDays, To2(rs.AvgDaily)),
	}
	if rs.QuotaDay != nil {
		lines = append(lines, fmt.Sprintf("- حصتك اليومية لحد التجديد: %s GB", To2(rs.QuotaDay)))
	}
	switch {
	case rs.CycleRisk:
		lines = append(lines, "", "⚠️ بالمعدل ده الباقة هتخلص قبل التجديد. هدّي شوية 🙏")
	case rs.DailySpike:
		lines = append(lines, "", "⚠️ استهلاك النهاردة أعلى من معدلك المعتاد.")
	case rs.MonthSpike:
		lines = append(lines, "", "⚠️ استهلاك الشهر أعلى من المتوقع لحد دلوقتي.")
	default:
		lines = append(lines, "", "✅ استهلاكك في المعدل الطبيعي.")
	}
	return strings.Join(lines, "\n")
}

// AlertMessages returns the alert texts that should fire for this risk
// snapshot, excluding any key already sent to the chat today.
func AlertMessages(st *store.Store, chatID string, rs *RiskSnapshot) ([]string, error) {
	type candidate struct {
		key  string
		text string
	}
	var cands []candidate
	if rs.DailySpike {
		cands = append(cands, candidate{alertDailySpike, fmt.Sprintf(
			"🔔 تنبيه: استهلاك النهاردة %s GB وده أعلى من معدلك (%s GB).",
			To2f(rs.TodayGB), To2(rs.AvgDaily))})
	}
	if rs.MonthSpike {
		cands = append(cands, candidate{alertMonthSpike, fmt.Sprintf(
			"🔔 تنبيه: استهلاك الشهر وصل %s GB وده أعلى من المتوقع.",
			To2f(rs.MonthGB))})
	}
	if rs.CycleRisk {
		cands = append(cands, candidate{alertCycleRisk,
			"🔔 تنبيه: بالمعدل الحالي الباقة هتخلص قبل ميعاد التجديد."})
	}

	var out []string
	for _, c := range cands {
		sent, err := st.WasAlertSent(chatID, c.key, rs.Day)
		if err != nil {
			return nil, err
		}
		if sent {
			continue
		}
		if err := st.MarkAlertSent(chatID, c.key, rs.Day); err != nil {
			return nil, err
		}
		out = append(out, c.text)
	}
	return out, nil
}
