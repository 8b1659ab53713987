package bot

import (
	"fmt"
	"time"

	"webot/internal/config"
	"webot/internal/logging"
	"webot/internal/store"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the periodic alert sweep and the nightly digest. Both
// jobs work off stored snapshots only; they never open a browser.
type Scheduler struct {
	bot  *Bot
	st   *store.Store
	cron *cron.Cron
}

// NewScheduler builds the scheduler from config. Jobs run in the digest
// timezone so "half past nine in the evening" means Cairo evening.
func NewScheduler(cfg config.CronConfig, b *Bot, st *store.Store) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.DigestHourTZ)
	if err != nil {
		loc = cairoLoc()
	}
	c := cron.New(cron.WithLocation(loc))

	s := &Scheduler{bot: b, st: st, cron: c}
	if _, err := c.AddFunc(cfg.AlertSpec, s.alertSweep); err != nil {
		return nil, fmt.Errorf("alert schedule %q: %w", cfg.AlertSpec, err)
	}
	if _, err := c.AddFunc(cfg.DigestSpec, s.dailyDigest); err != nil {
		return nil, fmt.Errorf("digest schedule %q: %w", cfg.DigestSpec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logging.Cron("scheduler started")
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logging.Cron("scheduler stopped")
}

// alertSweep checks every tracked chat against its thresholds and sends
// whatever alerts have not fired today.
func (s *Scheduler) alertSweep() {
	chats, err := s.st.TrackedChatIDs()
	if err != nil {
		logging.CronError("listing tracked chats: %v", err)
		return
	}
	logging.Cron("alert sweep over %d chats", len(chats))

	for _, key := range chats {
		settings, err := s.st.GetReminderSettings(key)
		if err != nil {
			logging.CronWarn("settings for chat %s: %v", key, err)
			continue
		}
		if !settings.Enabled {
			continue
		}
		rs, err := BuildRiskSnapshot(s.st, key, settings, time.Now())
		if err != nil {
			logging.CronWarn("risk snapshot for chat %s: %v", key, err)
			continue
		}
		msgs, err := AlertMessages(s.st, key, rs)
		if err != nil {
			logging.CronWarn("alerts for chat %s: %v", key, err)
			continue
		}
		for _, m := range msgs {
			s.bot.SendTo(key, m)
		}
	}
}

// dailyDigest sends each tracked chat a short end-of-day summary.
func (s *Scheduler) dailyDigest() {
	chats, err := s.st.TrackedChatIDs()
	if err != nil {
		logging.CronError("listing tracked chats: %v", err)
		return
	}
	logging.Cron("daily digest over %d chats", len(chats))

	for _, key := range chats {
		settings, err := s.st.GetReminderSettings(key)
		if err != nil || !settings.Enabled {
			continue
		}
		rs, err := BuildRiskSnapshot(s.st, key, settings, time.Now())
		if err != nil {
			logging.CronWarn("risk snapshot for chat %s: %v", key, err)
			continue
		}
		if rs.TodayGB == 0 && rs.AvgDaily == nil {
			// Nothing recorded yet, a digest would just say "unknown".
			continue
		}
		s.bot.SendTo(key, fmt.Sprintf(
			"🌙 ملخص اليوم:\n- استهلاك النهاردة: %s GB\n- من أول الشهر: %s GB\n- متوسطك اليومي: %s",
			To2f(rs.TodayGB), To2f(rs.MonthGB), To2(rs.AvgDaily)))
	}
}
