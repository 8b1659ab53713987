package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Default alert thresholds. A day counts as a spike when it exceeds the
// user's daily average times DailyMultiplier; the month-to-date check
// fires when usage exceeds the projected month times MonthlyRatio.
const (
	DefaultDailyMultiplier = 1.6
	DefaultMonthlyRatio    = 1.2
)

// ReminderSettings holds a chat's alert preferences.
type ReminderSettings struct {
	Enabled         bool
	DailyMultiplier float64
	MonthlyRatio    float64
}

// DefaultReminderSettings returns the settings a new chat starts with.
func DefaultReminderSettings() ReminderSettings {
	return ReminderSettings{
		Enabled:         true,
		DailyMultiplier: DefaultDailyMultiplier,
		MonthlyRatio:    DefaultMonthlyRatio,
	}
}

// GetReminderSettings returns the chat's settings, falling back to the
// defaults when the chat has never been seen.
func (s *Store) GetReminderSettings(chatID string) (ReminderSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var enabled int
	st := DefaultReminderSettings()
	err := s.db.QueryRow(
		`SELECT enabled, daily_multiplier, monthly_ratio FROM reminder_settings WHERE chat_id=?`,
		chatID,
	).Scan(&enabled, &st.DailyMultiplier, &st.MonthlyRatio)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultReminderSettings(), nil
	}
	if err != nil {
		return ReminderSettings{}, fmt.Errorf("get reminder settings: %w", err)
	}
	st.Enabled = enabled != 0
	return st, nil
}

// UpsertReminderSettings writes the chat's settings. Also serves as the
// tracking registration: any chat with a row gets scheduled sweeps.
func (s *Store) UpsertReminderSettings(chatID string, st ReminderSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enabled := 0
	if st.Enabled {
		enabled = 1
	}
	if st.DailyMultiplier <= 0 {
		st.DailyMultiplier = DefaultDailyMultiplier
	}
	if st.MonthlyRatio <= 0 {
		st.MonthlyRatio = DefaultMonthlyRatio
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		`INSERT INTO reminder_settings(chat_id, enabled, daily_multiplier, monthly_ratio, updated_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
			enabled=excluded.enabled,
			daily_multiplier=excluded.daily_multiplier,
			monthly_ratio=excluded.monthly_ratio,
			updated_at=excluded.updated_at`,
		chatID, enabled, st.DailyMultiplier, st.MonthlyRatio, now,
	)
	if err != nil {
		return fmt.Errorf("upsert reminder settings: %w", err)
	}
	return nil
}

// EnsureTracked registers a chat with default settings if it has none,
// without touching existing preferences.
func (s *Store) EnsureTracked(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		`INSERT INTO reminder_settings(chat_id, enabled, daily_multiplier, monthly_ratio, updated_at)
		 VALUES(?, 1, ?, ?, ?)
		 ON CONFLICT(chat_id) DO NOTHING`,
		chatID, DefaultDailyMultiplier, DefaultMonthlyRatio, now,
	)
	if err != nil {
		return fmt.Errorf("ensure tracked: %w", err)
	}
	return nil
}

// WasAlertSent reports whether an alert key already fired for the chat on
// the given day. Used to dedupe repeated sweeps.
func (s *Store) WasAlertSent(chatID, key, day string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM alert_log WHERE chat_id=? AND alert_key=? AND day=?`,
		chatID, key, day,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("was alert sent: %w", err)
	}
	return n > 0, nil
}

// MarkAlertSent records that an alert key fired for the chat today.
func (s *Store) MarkAlertSent(chatID, key, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		`INSERT INTO alert_log(chat_id, alert_key, day, sent_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(chat_id, alert_key, day) DO NOTHING`,
		chatID, key, day, now,
	)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	return nil
}
