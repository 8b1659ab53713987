package extract

// PriceResolver picks the renewal price out of the raw "<number> EGP" values
// found on the details screen. The portal does not label the renewal fee
// uniquely, so resolution is a heuristic; the type exists so a different
// strategy can be swapped in when the site's markup changes.
type PriceResolver func(values []float64, balance, routerMonthly *float64) *float64

// ResolveRenewPrice is the default resolver. It excludes every value that
// numerically equals the already-known balance or router price, then:
//
//   - exactly one candidate left: that is the renewal price
//   - several left: the largest wins, on the observation that the renewal
//     fee is typically the largest uncategorized EGP figure on the page
//     (router/add-on fees run smaller)
//   - none left: unknown; guessing here produces confidently wrong data
//
// This is approximate by nature and depends on the current page layout not
// carrying stray EGP-suffixed numbers.
func ResolveRenewPrice(values []float64, balance, routerMonthly *float64) *float64 {
	var candidates []float64
	for _, v := range values {
		if balance != nil && v == *balance {
			continue
		}
		if routerMonthly != nil && v == *routerMonthly {
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, v := range candidates[1:] {
		if v > best {
			best = v
		}
	}
	return &best
}
