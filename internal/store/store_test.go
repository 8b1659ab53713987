package store

import (
	"errors"
	"testing"
	"time"

	"webot/internal/extract"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func snapAt(t time.Time, used float64) *extract.Snapshot {
	return &extract.Snapshot{
		UsedGB:     &used,
		CapturedAt: t,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetSession("100"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := s.SaveSession("100", []byte(`{"cookies":[]}`)); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	data, err := s.GetSession("100")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if string(data) != `{"cookies":[]}` {
		t.Errorf("Unexpected session data: %s", data)
	}

	// Upsert overwrites
	if err := s.SaveSession("100", []byte(`{"cookies":[1]}`)); err != nil {
		t.Fatalf("SaveSession overwrite failed: %v", err)
	}
	data, _ = s.GetSession("100")
	if string(data) != `{"cookies":[1]}` {
		t.Errorf("Expected overwritten data, got %s", data)
	}
}

func TestDeleteSessionIdempotent(t *testing.T) {
	s := newTestStore(t)

	// Deleting a session that never existed must succeed
	if err := s.DeleteSession("missing"); err != nil {
		t.Fatalf("DeleteSession on missing row failed: %v", err)
	}

	if err := s.SaveSession("7", []byte("x")); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := s.DeleteSession("7"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if err := s.DeleteSession("7"); err != nil {
		t.Fatalf("Second DeleteSession failed: %v", err)
	}
	if _, err := s.GetSession("7"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveCredentials("5", "0123456789", "secret"); err != nil {
		t.Fatalf("SaveCredentials failed: %v", err)
	}
	c, err := s.GetCredentials("5")
	if err != nil {
		t.Fatalf("GetCredentials failed: %v", err)
	}
	if c.ServiceNumber != "0123456789" || c.Password != "secret" {
		t.Errorf("Unexpected credentials: %+v", c)
	}

	if err := s.DeleteCredentials("5"); err != nil {
		t.Fatalf("DeleteCredentials failed: %v", err)
	}
	if _, err := s.GetCredentials("5"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTodayUsageDelta(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	if err := s.SaveSnapshot("1", snapAt(now.Add(-6*time.Hour), 100)); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := s.SaveSnapshot("1", snapAt(now.Add(-1*time.Hour), 104.5)); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	usage, err := s.TodayUsage("1", now)
	if err != nil {
		t.Fatalf("TodayUsage failed: %v", err)
	}
	if usage < 4.49 || usage > 4.51 {
		t.Errorf("Expected ~4.5 GB, got %v", usage)
	}
}

func TestTodayUsageCounterReset(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	// Cycle renewed mid-day: the counter went backwards
	if err := s.SaveSnapshot("1", snapAt(now.Add(-6*time.Hour), 200)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshot("1", snapAt(now.Add(-1*time.Hour), 3)); err != nil {
		t.Fatal(err)
	}

	usage, err := s.TodayUsage("1", now)
	if err != nil {
		t.Fatalf("TodayUsage failed: %v", err)
	}
	if usage != 0 {
		t.Errorf("Expected 0 on counter reset, got %v", usage)
	}
}

func TestTodayUsageRobustFallsBackToPreviousDay(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	// One point yesterday, one point today
	if err := s.SaveSnapshot("1", snapAt(now.Add(-30*time.Hour), 50)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshot("1", snapAt(now.Add(-1*time.Hour), 52)); err != nil {
		t.Fatal(err)
	}

	plain, err := s.TodayUsage("1", now)
	if err != nil {
		t.Fatalf("TodayUsage failed: %v", err)
	}
	if plain != 0 {
		t.Errorf("Plain TodayUsage with a single point should be 0, got %v", plain)
	}

	robust, err := s.TodayUsageRobust("1", now)
	if err != nil {
		t.Fatalf("TodayUsageRobust failed: %v", err)
	}
	if robust < 1.99 || robust > 2.01 {
		t.Errorf("Expected ~2 GB from previous-day fallback, got %v", robust)
	}
}

func TestAvgDailyUsage(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)

	// Two days: 2 GB and 4 GB of delta
	for _, p := range []struct {
		at   time.Time
		used float64
	}{
		{base, 10},
		{base.Add(8 * time.Hour), 12},
		{base.Add(24 * time.Hour), 12},
		{base.Add(32 * time.Hour), 16},
	} {
		if err := s.SaveSnapshot("1", snapAt(p.at, p.used)); err != nil {
			t.Fatal(err)
		}
	}

	avg, err := s.AvgDailyUsage("1", 14)
	if err != nil {
		t.Fatalf("AvgDailyUsage failed: %v", err)
	}
	if avg == nil {
		t.Fatal("Expected an average, got nil")
	}
	if *avg < 2.99 || *avg > 3.01 {
		t.Errorf("Expected avg ~3 GB/day, got %v", *avg)
	}
}

func TestAvgDailyUsageNoData(t *testing.T) {
	s := newTestStore(t)
	avg, err := s.AvgDailyUsage("nobody", 14)
	if err != nil {
		t.Fatalf("AvgDailyUsage failed: %v", err)
	}
	if avg != nil {
		t.Errorf("Expected nil average with no data, got %v", *avg)
	}
}

func TestMonthUsage(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	// Previous month, must not count
	if err := s.SaveSnapshot("1", snapAt(now.AddDate(0, -1, 0), 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshot("1", snapAt(now.AddDate(0, -1, 0).Add(4*time.Hour), 50)); err != nil {
		t.Fatal(err)
	}
	// Current month: one day with a 5 GB delta
	if err := s.SaveSnapshot("1", snapAt(now.Add(-5*time.Hour), 60)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshot("1", snapAt(now, 65)); err != nil {
		t.Fatal(err)
	}

	total, err := s.MonthUsage("1", now)
	if err != nil {
		t.Fatalf("MonthUsage failed: %v", err)
	}
	if total < 4.99 || total > 5.01 {
		t.Errorf("Expected ~5 GB for current month, got %v", total)
	}
}

func TestReminderSettingsDefaults(t *testing.T) {
	s := newTestStore(t)

	st, err := s.GetReminderSettings("new-chat")
	if err != nil {
		t.Fatalf("GetReminderSettings failed: %v", err)
	}
	if !st.Enabled || st.DailyMultiplier != DefaultDailyMultiplier || st.MonthlyRatio != DefaultMonthlyRatio {
		t.Errorf("Unexpected defaults: %+v", st)
	}

	st.Enabled = false
	if err := s.UpsertReminderSettings("new-chat", st); err != nil {
		t.Fatalf("UpsertReminderSettings failed: %v", err)
	}
	st, _ = s.GetReminderSettings("new-chat")
	if st.Enabled {
		t.Error("Expected alerts to stay disabled")
	}

	// EnsureTracked must not re-enable
	if err := s.EnsureTracked("new-chat"); err != nil {
		t.Fatalf("EnsureTracked failed: %v", err)
	}
	st, _ = s.GetReminderSettings("new-chat")
	if st.Enabled {
		t.Error("EnsureTracked overwrote existing settings")
	}

	ids, err := s.TrackedChatIDs()
	if err != nil {
		t.Fatalf("TrackedChatIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "new-chat" {
		t.Errorf("Unexpected tracked chats: %v", ids)
	}
}

func TestAlertDedup(t *testing.T) {
	s := newTestStore(t)

	sent, err := s.WasAlertSent("1", "DAILY_SPIKE", "2026-03-10")
	if err != nil {
		t.Fatalf("WasAlertSent failed: %v", err)
	}
	if sent {
		t.Error("Alert should not be marked sent yet")
	}

	if err := s.MarkAlertSent("1", "DAILY_SPIKE", "2026-03-10"); err != nil {
		t.Fatalf("MarkAlertSent failed: %v", err)
	}
	// Double-mark must not error
	if err := s.MarkAlertSent("1", "DAILY_SPIKE", "2026-03-10"); err != nil {
		t.Fatalf("Second MarkAlertSent failed: %v", err)
	}

	sent, _ = s.WasAlertSent("1", "DAILY_SPIKE", "2026-03-10")
	if !sent {
		t.Error("Alert should be marked sent")
	}

	// Different day is independent
	sent, _ = s.WasAlertSent("1", "DAILY_SPIKE", "2026-03-11")
	if sent {
		t.Error("Next day should start clean")
	}
}

func TestLatestSnapshotOrdering(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	if err := s.SaveSnapshot("1", snapAt(now.Add(-2*time.Hour), 10)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshot("1", snapAt(now, 12)); err != nil {
		t.Fatal(err)
	}

	latest, err := s.LatestSnapshot("1")
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if latest.UsedGB == nil || *latest.UsedGB != 12 {
		t.Errorf("Expected latest used=12, got %+v", latest)
	}
}
