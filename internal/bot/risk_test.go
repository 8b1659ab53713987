package bot

import (
	"math"
	"testing"
	"time"

	"webot/internal/extract"
	"webot/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func saveUsage(t *testing.T, st *store.Store, chat string, at time.Time, used float64, extra func(*extract.Snapshot)) {
	t.Helper()
	snap := &extract.Snapshot{UsedGB: fptr(used), CapturedAt: at}
	if extra != nil {
		extra(snap)
	}
	if err := st.SaveSnapshot(chat, snap); err != nil {
		t.Fatalf("saving snapshot: %v", err)
	}
}

func TestBuildRiskSnapshotFlagsDailySpike(t *testing.T) {
	st := newTestStore(t)
	cairo := time.FixedZone("EET", 2*60*60)
	now := time.Date(2026, 8, 20, 18, 0, 0, 0, cairo)

	// Two quiet days at 3 GB each, then a 10 GB day.
	saveUsage(t, st, "1", now.AddDate(0, 0, -2).Add(-8*time.Hour), 0, nil)
	saveUsage(t, st, "1", now.AddDate(0, 0, -2), 3, nil)
	saveUsage(t, st, "1", now.AddDate(0, 0, -1).Add(-8*time.Hour), 3, nil)
	saveUsage(t, st, "1", now.AddDate(0, 0, -1), 6, nil)
	saveUsage(t, st, "1", now.Add(-8*time.Hour), 6, nil)
	saveUsage(t, st, "1", now, 16, func(s *extract.Snapshot) {
		s.RemainingGB = fptr(100)
		s.RemainingDays = iptr(20)
	})

	rs, err := BuildRiskSnapshot(st, "1", store.DefaultReminderSettings(), now)
	if err != nil {
		t.Fatalf("building risk snapshot: %v", err)
	}

	if math.Abs(rs.TodayGB-10) > 0.01 {
		t.Fatalf("today = %v", rs.TodayGB)
	}
	if math.Abs(rs.MonthGB-16) > 0.01 {
		t.Fatalf("month = %v", rs.MonthGB)
	}
	if rs.AvgDaily == nil || math.Abs(*rs.AvgDaily-16.0/3) > 0.01 {
		t.Fatalf("avg = %v", rs.AvgDaily)
	}
	if !rs.DailySpike {
		t.Fatal("10 GB against a 5.3 GB average should flag a daily spike")
	}
	if rs.MonthSpike {
		t.Fatal("month-to-date is well inside the projection")
	}
	if rs.CycleRisk {
		t.Fatal("5 GB/day quota at a 5.3 GB average is not cycle risk")
	}
	if rs.QuotaDay == nil || math.Abs(*rs.QuotaDay-5) > 0.01 {
		t.Fatalf("quota = %v", rs.QuotaDay)
	}
}

func TestBuildRiskSnapshotNoHistory(t *testing.T) {
	st := newTestStore(t)
	rs, err := BuildRiskSnapshot(st, "1", store.DefaultReminderSettings(), time.Now())
	if err != nil {
		t.Fatalf("building risk snapshot: %v", err)
	}
	if rs.AvgDaily != nil {
		t.Fatalf("avg without history = %v", *rs.AvgDaily)
	}
	if rs.DailySpike || rs.MonthSpike || rs.CycleRisk {
		t.Fatal("no history must not flag anything")
	}
}

func TestAlertMessagesDedupPerDay(t *testing.T) {
	st := newTestStore(t)
	rs := &RiskSnapshot{
		Day:        "2026-08-20",
		TodayGB:    10,
		AvgDaily:   fptr(5),
		DailySpike: true,
		CycleRisk:  true,
	}

	first, err := AlertMessages(st, "1", rs)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first pass sent %d alerts, want 2", len(first))
	}

	second, err := AlertMessages(st, "1", rs)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second pass resent %d alerts", len(second))
	}

	// A new day fires again.
	rs.Day = "2026-08-21"
	third, err := AlertMessages(st, "1", rs)
	if err != nil {
		t.Fatalf("third pass: %v", err)
	}
	if len(third) != 2 {
		t.Fatalf("new day sent %d alerts, want 2", len(third))
	}
}
