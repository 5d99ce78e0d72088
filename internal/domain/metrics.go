package domain

import "time"

// PortfolioMetrics aggregates every tracker of a profile.
type PortfolioMetrics struct {
	TrackerCount    int     `json:"trackerCount"`
	OpenPositions   int     `json:"openPositions"`
	ClosedPositions int     `json:"closedPositions"`
	TotalInvested   float64 `json:"totalInvested"` // cost basis of open positions
	CurrentValue    float64 `json:"currentValue"`
	UnrealizedPL    float64 `json:"unrealizedPL"`
	RealizedPL      float64 `json:"realizedPL"`
	TotalPL         float64 `json:"totalPL"`
	ROIPercentage   float64 `json:"roiPercentage"`
	WinCount        int     `json:"winCount"`
	LossCount       int     `json:"lossCount"`
	BankBalance     float64 `json:"bankBalance"`
}

// ComputeMetrics derives the portfolio metrics from tracker states and the bank balance.
// ROI is total P/L over the all-time cost of every buy.
func ComputeMetrics(trackers []TrackerState, bankBalance float64) PortfolioMetrics {
	m := PortfolioMetrics{TrackerCount: len(trackers), BankBalance: bankBalance}
	var allTimeCost float64
	for _, t := range trackers {
		for _, p := range t.Positions {
			allTimeCost += p.BuyOrder.CurrencyAmount
			if p.Open() {
				m.OpenPositions++
				m.TotalInvested += p.BuyOrder.CurrencyAmount
				m.CurrentValue += p.BuyOrder.BaseAmount * t.CurrentPrice
				continue
			}
			m.ClosedPositions++
			m.RealizedPL += p.PLAmount
			switch {
			case p.PLAmount > 0:
				m.WinCount++
			case p.PLAmount < 0:
				m.LossCount++
			}
		}
	}
	m.UnrealizedPL = m.CurrentValue - m.TotalInvested
	m.TotalPL = m.RealizedPL + m.UnrealizedPL
	if allTimeCost > 0 {
		m.ROIPercentage = m.TotalPL / allTimeCost * 100
	}
	return m
}

// CycleSummary is the persisted digest of one decision cycle.
type CycleSummary struct {
	ProfileID string        `json:"profileId"`
	RanAt     time.Time     `json:"ranAt"`
	Duration  time.Duration `json:"duration"`
	Trackers  int           `json:"trackers"`
	Trades    int           `json:"trades"`
	Failures  int           `json:"failures"`
	Balance   float64       `json:"balance"`
	TotalPL   float64       `json:"totalPL"`
}
