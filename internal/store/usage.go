package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"webot/internal/extract"
)

// cairoLoc is the timezone usage days are bucketed in. The portal's
// billing cycle runs on Egypt local time, so a "day" here is a Cairo day,
// not a UTC day.
var cairoLoc = func() *time.Location {
	loc, err := time.LoadLocation("Africa/Cairo")
	if err != nil {
		return time.FixedZone("EET", 2*60*60)
	}
	return loc
}()

// CairoDay returns the YYYY-MM-DD day bucket for a timestamp.
func CairoDay(t time.Time) string {
	return t.In(cairoLoc).Format("2006-01-02")
}

// cairoMonthStart returns the first day bucket of the month containing t.
func cairoMonthStart(t time.Time) string {
	local := t.In(cairoLoc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, cairoLoc).Format("2006-01-02")
}

// SnapshotRow is one stored usage snapshot. Nil pointers mean the value
// was unknown at capture time.
type SnapshotRow struct {
	ChatID     string
	Day        string
	CapturedAt time.Time

	UsedGB      *float64
	RemainingGB *float64
	Plan        string
	BalanceEGP  *float64

	RenewalDate   *string
	RemainingDays *int
	RenewPriceEGP *float64

	RouterMonthlyEGP  *float64
	RouterRenewalDate *string
	TotalRenewEGP     *float64
}

// SaveSnapshot appends a snapshot row, bucketed by the Cairo day of its
// capture time.
func (s *Store) SaveSnapshot(chatID string, snap *extract.Snapshot) error {
	if snap == nil || snap.CapturedAt.IsZero() {
		return errors.New("invalid snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	day := CairoDay(snap.CapturedAt)
	var plan *string
	if snap.Plan != "" {
		plan = &snap.Plan
	}
	_, err := s.db.Exec(
		`INSERT INTO snapshots(
			chat_id, day, captured_at,
			used_gb, remaining_gb, plan, balance_egp,
			renewal_date, remaining_days, renew_price_egp,
			router_monthly_egp, router_renewal_date, total_renew_egp
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		chatID, day, snap.CapturedAt.UTC().Format(time.RFC3339),
		snap.UsedGB, snap.RemainingGB, plan, snap.BalanceEGP,
		snap.RenewalDate, snap.RemainingDays, snap.RenewPriceEGP,
		snap.RouterMonthlyEGP, snap.RouterRenewalDate, snap.TotalRenewEGP,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

const snapshotCols = `chat_id, day, captured_at,
	used_gb, remaining_gb, plan, balance_egp,
	renewal_date, remaining_days, renew_price_egp,
	router_monthly_egp, router_renewal_date, total_renew_egp`

func scanSnapshot(row *sql.Row) (*SnapshotRow, error) {
	var r SnapshotRow
	var capturedAt string
	var plan *string
	err := row.Scan(
		&r.ChatID, &r.Day, &capturedAt,
		&r.UsedGB, &r.RemainingGB, &plan, &r.BalanceEGP,
		&r.RenewalDate, &r.RemainingDays, &r.RenewPriceEGP,
		&r.RouterMonthlyEGP, &r.RouterRenewalDate, &r.TotalRenewEGP,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if plan != nil {
		r.Plan = *plan
	}
	if t, err := time.Parse(time.RFC3339, capturedAt); err == nil {
		r.CapturedAt = t
	}
	return &r, nil
}

// FirstOfDay returns the earliest snapshot for a chat on a given day.
func (s *Store) FirstOfDay(chatID, day string) (*SnapshotRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanSnapshot(s.db.QueryRow(
		`SELECT `+snapshotCols+` FROM snapshots WHERE chat_id=? AND day=? ORDER BY captured_at ASC LIMIT 1`,
		chatID, day,
	))
}

// LastOfDay returns the latest snapshot for a chat on a given day.
func (s *Store) LastOfDay(chatID, day string) (*SnapshotRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanSnapshot(s.db.QueryRow(
		`SELECT `+snapshotCols+` FROM snapshots WHERE chat_id=? AND day=? ORDER BY captured_at DESC LIMIT 1`,
		chatID, day,
	))
}

// LatestBeforeDay returns the newest snapshot taken on any day before the
// given day.
func (s *Store) LatestBeforeDay(chatID, day string) (*SnapshotRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanSnapshot(s.db.QueryRow(
		`SELECT `+snapshotCols+` FROM snapshots WHERE chat_id=? AND day < ? ORDER BY captured_at DESC LIMIT 1`,
		chatID, day,
	))
}

// LatestSnapshot returns the newest snapshot for a chat.
func (s *Store) LatestSnapshot(chatID string) (*SnapshotRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanSnapshot(s.db.QueryRow(
		`SELECT `+snapshotCols+` FROM snapshots WHERE chat_id=? ORDER BY captured_at DESC LIMIT 1`,
		chatID,
	))
}

// TodayUsage returns the GB consumed so far today, computed as the delta
// between today's first and last snapshots. Zero when there is not enough
// data or the counter went backwards (cycle renewal).
func (s *Store) TodayUsage(chatID string, now time.Time) (float64, error) {
	day := CairoDay(now)
	first, err := s.FirstOfDay(chatID, day)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	last, err := s.LastOfDay(chatID, day)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if first == nil || last == nil || first.UsedGB == nil || last.UsedGB == nil {
		return 0, nil
	}
	delta := *last.UsedGB - *first.UsedGB
	if delta > 0 {
		return delta, nil
	}
	return 0, nil
}

// TodayUsageRobust is TodayUsage with a fallback: when today only has one
// data point, the delta is taken against the newest snapshot from a
// previous day instead.
func (s *Store) TodayUsageRobust(chatID string, now time.Time) (float64, error) {
	day := CairoDay(now)
	last, err := s.LastOfDay(chatID, day)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if last == nil || last.UsedGB == nil {
		return 0, nil
	}

	first, err := s.FirstOfDay(chatID, day)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if first != nil && first.UsedGB != nil {
		if d := *last.UsedGB - *first.UsedGB; d > 0 {
			return d, nil
		}
	}

	prev, err := s.LatestBeforeDay(chatID, day)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if prev == nil || prev.UsedGB == nil {
		return 0, nil
	}
	if d := *last.UsedGB - *prev.UsedGB; d > 0 {
		return d, nil
	}
	return 0, nil
}

// AvgDailyUsage returns the mean daily delta (max-min of used_gb per day)
// over the most recent days with data. Nil when no data exists.
func (s *Store) AvgDailyUsage(chatID string, days int) (*float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT day, MIN(used_gb), MAX(used_gb)
		 FROM snapshots
		 WHERE chat_id = ? AND used_gb IS NOT NULL
		 GROUP BY day
		 ORDER BY day DESC
		 LIMIT ?`,
		chatID, days,
	)
	if err != nil {
		return nil, fmt.Errorf("avg daily usage: %w", err)
	}
	defer rows.Close()

	var sum float64
	var n int
	for rows.Next() {
		var day string
		var minUsed, maxUsed float64
		if err := rows.Scan(&day, &minUsed, &maxUsed); err != nil {
			return nil, fmt.Errorf("avg daily usage scan: %w", err)
		}
		delta := maxUsed - minUsed
		if delta < 0 {
			delta = 0
		}
		sum += delta
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	avg := sum / float64(n)
	return &avg, nil
}

// MonthUsage returns the GB consumed in the current Cairo month, summed
// from per-day deltas.
func (s *Store) MonthUsage(chatID string, now time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT day, MIN(used_gb), MAX(used_gb)
		 FROM snapshots
		 WHERE chat_id = ? AND used_gb IS NOT NULL AND day >= ?
		 GROUP BY day`,
		chatID, cairoMonthStart(now),
	)
	if err != nil {
		return 0, fmt.Errorf("month usage: %w", err)
	}
	defer rows.Close()

	var total float64
	for rows.Next() {
		var day string
		var minUsed, maxUsed float64
		if err := rows.Scan(&day, &minUsed, &maxUsed); err != nil {
			return 0, fmt.Errorf("month usage scan: %w", err)
		}
		if d := maxUsed - minUsed; d > 0 {
			total += d
		}
	}
	return total, rows.Err()
}

// TrackedChatIDs returns every chat with reminder settings, for the
// scheduled alert sweeps.
func (s *Store) TrackedChatIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT chat_id FROM reminder_settings`)
	if err != nil {
		return nil, fmt.Errorf("tracked chats: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
