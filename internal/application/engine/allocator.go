package engine

import "github.com/alejandrodnm/tradeassist/internal/domain"

// MaxAllocation splits the tradable funds evenly across auto-buy trackers.
//
// Tradable funds are the bank holdings plus the current value of everything
// held by auto-buy trackers, minus the reserve percentage. A cap of zero or
// less means uncapped.
func MaxAllocation(holdings float64, trackers []*domain.TrackerState, reservePercentage, capAmount float64) float64 {
	active := 0
	funds := holdings
	for _, t := range trackers {
		if !t.AutoBuy {
			continue
		}
		active++
		funds += t.HeldValueUSD
	}

	alloc := funds * (1 - reservePercentage/100) / float64(max(active, 1))
	if capAmount > 0 && alloc > capAmount {
		alloc = capAmount
	}
	return max(alloc, 0)
}
