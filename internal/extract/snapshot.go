package extract

import "time"

// Snapshot is one point-in-time structured extraction of account state.
// Nil pointer fields mean "could not read the page", which is distinct from
// zero; callers must never collapse the two. Plan is the only plain string
// field ("" means unknown) because the portal has no meaningful empty plan
// name.
type Snapshot struct {
	Plan        string   `json:"plan,omitempty"`
	RemainingGB *float64 `json:"remainingGB,omitempty"`
	UsedGB      *float64 `json:"usedGB,omitempty"`
	BalanceEGP  *float64 `json:"balanceEGP,omitempty"`

	RenewalDate   *string  `json:"renewalDate,omitempty"`
	RemainingDays *int     `json:"remainingDays,omitempty"`
	RenewPriceEGP *float64 `json:"renewPriceEGP,omitempty"`

	RouterName        string   `json:"routerName,omitempty"`
	RouterMonthlyEGP  *float64 `json:"routerMonthlyEGP,omitempty"`
	RouterRenewalDate *string  `json:"routerRenewalDate,omitempty"`

	RenewBtnEnabled *bool `json:"renewBtnEnabled,omitempty"`

	// Derived fields, filled by Derive.
	TotalGB       *float64 `json:"totalGB,omitempty"`
	TotalRenewEGP *float64 `json:"totalRenewEGP,omitempty"`
	CanAfford     *bool    `json:"canAfford,omitempty"`

	CapturedAt time.Time `json:"capturedAt"`
}

// Derive computes TotalGB, TotalRenewEGP and CanAfford from the raw fields.
// TotalGB requires both quota numbers; TotalRenewEGP requires at least one
// of the renewal-cost components; CanAfford requires balance and total.
func (s *Snapshot) Derive() {
	if s.UsedGB != nil && s.RemainingGB != nil {
		total := *s.UsedGB + *s.RemainingGB
		s.TotalGB = &total
	}
	if s.RenewPriceEGP != nil || s.RouterMonthlyEGP != nil {
		var total float64
		if s.RenewPriceEGP != nil {
			total += *s.RenewPriceEGP
		}
		if s.RouterMonthlyEGP != nil {
			total += *s.RouterMonthlyEGP
		}
		s.TotalRenewEGP = &total
	}
	if s.BalanceEGP != nil && s.TotalRenewEGP != nil {
		ok := *s.BalanceEGP >= *s.TotalRenewEGP
		s.CanAfford = &ok
	}
}

// Float returns a pointer to v. Convenience for tests and fixtures.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Str returns a pointer to v.
func Str(v string) *string { return &v }
