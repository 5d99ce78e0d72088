package domain

import (
	"fmt"
	"time"
)

// Action is the decision taken for a symbol in one cycle.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	ActionNone Action = "NONE"
)

// maxErrorRecords bounds TrackerState.Errors to the most recent failures.
const maxErrorRecords = 50

// Recommendation is the action decided for a tracker plus its human-readable reason.
type Recommendation struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// ErrorRecord is a per-symbol failure surfaced to the host.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// TrackerState is the per (profile, symbol) state driven by the decision cycle.
type TrackerState struct {
	Symbol             string     `json:"symbol"`
	Parameters         Parameters `json:"parameters"`
	OverrideParameters bool       `json:"overrideParameters"`
	AutoBuy            bool       `json:"autoBuyInsActive"`

	// Host-requested overrides, cleared after one attempt.
	ManualPurchaseAmount *float64 `json:"manualPurchaseAmount"`
	ManualSell           bool     `json:"manualSell"`

	Positions []Position `json:"positions"`

	CurrentPrice     float64  `json:"currentPrice"`
	BuyPrice         float64  `json:"buyPrice"`
	HighestPrice     float64  `json:"highestPrice"`
	LowestPrice      float64  `json:"lowestPrice"`
	ExitPrice        *float64 `json:"exitPrice"`
	PercentageChange float64  `json:"percentageChange"`

	AvailableFunds  float64 `json:"availableFunds"`
	MaxAllocation   float64 `json:"maxAllocation"`
	Held            float64 `json:"held"`
	HeldValueUSD    float64 `json:"heldValueUsd"`
	AverageBuyPrice float64 `json:"averageBuyPrice"`

	BaseIncrement  string `json:"baseIncrement"`
	QuoteIncrement string `json:"quoteIncrement"`

	Recommendation  Recommendation `json:"recommendation"`
	LastAction      string         `json:"lastAction"`
	LastActionPrice float64        `json:"lastActionPrice"`
	LastActionTime  *time.Time     `json:"lastActionTime"`
	Datestamp       *time.Time     `json:"datestamp"`

	Errors []ErrorRecord `json:"errors"`

	// UnbookedAmount is quote spent by filled buys the ledger could not debit.
	// Buys stay withheld until the host clears it.
	UnbookedAmount float64 `json:"unbookedAmount"`
}

// NewTrackerState builds the default state for a symbol seen for the first time.
func NewTrackerState(p Product, params Parameters) TrackerState {
	return TrackerState{
		Symbol:          p.ProductID,
		Parameters:      params,
		CurrentPrice:    p.Price,
		BuyPrice:        p.Price,
		HighestPrice:    p.Price,
		LowestPrice:     p.Price,
		LastActionPrice: p.Price,
		LastAction:      fmt.Sprintf("Started new tracker at price: %v", p.Price),
		BaseIncrement:   p.BaseIncrement,
		QuoteIncrement:  p.QuoteIncrement,
		Recommendation: Recommendation{
			Action: ActionHold,
			Reason: "New tracker, no recommendation yet",
		},
		Positions: []Position{},
		Errors:    []ErrorRecord{},
	}
}

// ObservePrice records the latest price and widens the highest/lowest range.
func (t *TrackerState) ObservePrice(price float64) {
	t.CurrentPrice = price
	if price > t.HighestPrice {
		t.HighestPrice = price
	}
	if price < t.LowestPrice || t.LowestPrice == 0 {
		t.LowestPrice = price
	}
}

// RecordError appends a failure, keeping only the most recent records.
func (t *TrackerState) RecordError(at time.Time, err error) {
	t.Errors = append(t.Errors, ErrorRecord{Timestamp: at, Message: err.Error()})
	if len(t.Errors) > maxErrorRecords {
		t.Errors = t.Errors[len(t.Errors)-maxErrorRecords:]
	}
}

// RecordAction stamps the last action fields.
func (t *TrackerState) RecordAction(at time.Time, price float64, description string) {
	t.LastAction = description
	t.LastActionPrice = price
	t.LastActionTime = &at
}

// Recommend sets the cycle decision.
func (t *TrackerState) Recommend(action Action, reason string) {
	t.Recommendation = Recommendation{Action: action, Reason: reason}
}

// RefreshAggregates recomputes the derived per-symbol values from the open positions.
func (t *TrackerState) RefreshAggregates() {
	var held, cost float64
	for _, p := range t.Positions {
		if !p.Open() {
			continue
		}
		held += p.BuyOrder.BaseAmount
		cost += p.BuyOrder.CurrencyAmount
	}
	t.Held = held
	t.HeldValueUSD = held * t.CurrentPrice
	t.AverageBuyPrice = 0
	if held > 0 {
		t.AverageBuyPrice = cost / held
	}

	if idx := LowestOpen(t.Positions); idx >= 0 {
		t.PercentageChange = t.Positions[idx].PLPercentage
		return
	}
	t.PercentageChange = 0
	if t.ExitPrice != nil && *t.ExitPrice > 0 {
		t.PercentageChange = (t.CurrentPrice - *t.ExitPrice) / *t.ExitPrice * 100
	}
}

// TrackerPatch is a partial host update of a tracker. Nil fields are left untouched.
type TrackerPatch struct {
	Parameters           *Parameters `json:"parameters,omitempty"`
	OverrideParameters   *bool       `json:"overrideParameters,omitempty"`
	AutoBuy              *bool       `json:"autoBuyInsActive,omitempty"`
	ManualPurchaseAmount *float64    `json:"manualPurchaseAmount,omitempty"`
	ManualSell           *bool       `json:"manualSell,omitempty"`
	ClearUnbooked        bool        `json:"clearUnbooked,omitempty"`
}

// Apply merges the patch into the tracker.
func (p TrackerPatch) Apply(t *TrackerState) {
	if p.Parameters != nil {
		t.Parameters = *p.Parameters
	}
	if p.OverrideParameters != nil {
		t.OverrideParameters = *p.OverrideParameters
	}
	if p.AutoBuy != nil {
		t.AutoBuy = *p.AutoBuy
	}
	if p.ManualPurchaseAmount != nil {
		amt := *p.ManualPurchaseAmount
		t.ManualPurchaseAmount = &amt
	}
	if p.ManualSell != nil {
		t.ManualSell = *p.ManualSell
	}
	if p.ClearUnbooked {
		t.UnbookedAmount = 0
	}
}
