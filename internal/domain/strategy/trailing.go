// Package strategy holds the per-symbol position state machine: trailing stops
// on profit, trailing scale-in limits on drawdown and reentry after a full exit.
// Everything here is pure; order execution and persistence live in the engine.
package strategy

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// Trigger names what caused a decision.
type Trigger string

const (
	TriggerManualBuy  Trigger = "manual-buy"
	TriggerManualSell Trigger = "manual-sell"
	TriggerStop       Trigger = "stop"
	TriggerLimit      Trigger = "limit"
	TriggerReentry    Trigger = "reentry"
)

// Decision is an order the engine must attempt for a tracker.
type Decision struct {
	Action   domain.Action
	Trigger  Trigger
	Position int     // position sold, or whose limit fired a scale-in; -1 otherwise
	Amount   float64 // quote amount for buys
	Reason   string
}

// Plan is the outcome of evaluating one tracker for one cycle. Decisions are
// executed in order; Recommendation describes the cycle when nothing is executed.
type Plan struct {
	Decisions      []Decision
	Recommendation domain.Recommendation
}

// UpdatePL recomputes the estimated sale value and P/L of an open position at price.
func UpdatePL(p *domain.Position, price, spreadPercentage float64) {
	p.EstSaleValue = price * (1 - spreadPercentage/100) * p.BuyOrder.BaseAmount
	p.PLAmount = p.EstSaleValue - p.BuyOrder.CurrencyAmount
	p.PLPercentage = 0
	if p.BuyOrder.CurrencyAmount > 0 {
		p.PLPercentage = p.PLAmount / p.BuyOrder.CurrencyAmount * 100
	}
}

// UpdateStop arms or trails the stop and reports whether it is hit.
// The stop arms only once profit minus the trailing distance clears the target.
func UpdateStop(p *domain.Position, params domain.Parameters) bool {
	candidate := p.PLPercentage - params.TrailingSellPercentage
	switch {
	case p.Stop == nil && candidate >= params.TargetProfitPercentage:
		p.Stop = domain.Float(candidate)
	case p.Stop != nil:
		p.Stop = domain.Float(math.Max(*p.Stop, candidate))
	}
	return p.Stop != nil && p.PLPercentage <= *p.Stop
}

// UpdateLimit arms or trails the scale-in limit and reports whether it is hit.
// The limit arms only once the drawdown passes the drop-buy threshold.
func UpdateLimit(p *domain.Position, params domain.Parameters) bool {
	candidate := p.PLPercentage + params.TrailingBuyPercentage
	switch {
	case p.Limit == nil && p.PLPercentage < -params.DropBuyPercentage:
		p.Limit = domain.Float(candidate)
	case p.Limit != nil:
		p.Limit = domain.Float(math.Min(*p.Limit, candidate))
	}
	return p.Limit != nil && p.PLPercentage >= *p.Limit
}

// ReentryChange returns the percentage move of price from the exit price.
func ReentryChange(exitPrice, price float64) float64 {
	if exitPrice == 0 {
		return 0
	}
	return (price - exitPrice) / exitPrice * 100
}

// ReentryTriggered reports whether a move from the exit price justifies
// re-opening: a recovery past the reentry limit or a drop past the cool-off.
func ReentryTriggered(change float64, params domain.Parameters) bool {
	return change > params.ReentryLimitPercentage || change < -params.CoolOffPercentage
}

// canAfford reports whether the tracker may spend amount this cycle. A tracker
// with an unbooked fill never buys.
func canAfford(t *domain.TrackerState, amount float64) bool {
	return amount > 0 && t.UnbookedAmount == 0 && t.AvailableFunds >= amount
}

// Evaluate runs the state machine for one tracker at its current price.
// It mutates P/L, stop, limit, exit price and clears consumed manual
// overrides; it never touches positions' orders.
func Evaluate(t *domain.TrackerState) Plan {
	params := t.Parameters
	for i := range t.Positions {
		if t.Positions[i].Open() {
			UpdatePL(&t.Positions[i], t.CurrentPrice, params.SpreadPercentage)
		}
	}

	if plan, ok := manual(t); ok {
		trackThresholds(t)
		return plan
	}

	if domain.OpenCount(t.Positions) == 0 {
		return reentry(t)
	}
	t.ExitPrice = nil
	return thresholds(t)
}

// manual consumes pending host overrides. Overrides take precedence over
// automatic triggers for the cycle.
func manual(t *domain.TrackerState) (Plan, bool) {
	if t.ManualPurchaseAmount == nil && !t.ManualSell {
		return Plan{}, false
	}

	var plan Plan
	if t.ManualPurchaseAmount != nil {
		amount := *t.ManualPurchaseAmount
		t.ManualPurchaseAmount = nil
		if canAfford(t, amount) {
			plan.Decisions = append(plan.Decisions, Decision{
				Action:   domain.ActionBuy,
				Trigger:  TriggerManualBuy,
				Position: -1,
				Amount:   amount,
				Reason:   fmt.Sprintf("Manual purchase of %.2f", amount),
			})
		} else {
			plan.Recommendation = domain.Recommendation{
				Action: domain.ActionHold,
				Reason: fmt.Sprintf("Manual purchase of %.2f withheld: available funds %.2f", amount, t.AvailableFunds),
			}
		}
	}

	if t.ManualSell {
		t.ManualSell = false
		if idx := domain.LowestOpen(t.Positions); idx >= 0 {
			plan.Decisions = append(plan.Decisions, Decision{
				Action:   domain.ActionSell,
				Trigger:  TriggerManualSell,
				Position: idx,
				Reason:   "Manual sell of lowest open position",
			})
		} else {
			plan.Recommendation = domain.Recommendation{
				Action: domain.ActionNone,
				Reason: "Manual sell ignored: no open position",
			}
		}
	}
	return plan, true
}

// trackThresholds keeps stop and limit trailing without acting on them.
func trackThresholds(t *domain.TrackerState) {
	for i := range t.Positions {
		if t.Positions[i].Open() {
			UpdateStop(&t.Positions[i], t.Parameters)
		}
	}
	if idx := domain.LowestOpen(t.Positions); idx >= 0 {
		UpdateLimit(&t.Positions[idx], t.Parameters)
	}
}

func thresholds(t *domain.TrackerState) Plan {
	var plan Plan
	lowest := domain.LowestOpen(t.Positions)
	selling := make(map[int]bool)

	for i := range t.Positions {
		p := &t.Positions[i]
		if !p.Open() {
			continue
		}
		if UpdateStop(p, t.Parameters) {
			selling[i] = true
			plan.Decisions = append(plan.Decisions, Decision{
				Action:   domain.ActionSell,
				Trigger:  TriggerStop,
				Position: i,
				Reason:   fmt.Sprintf("Stop hit: P/L %.2f%% <= stop %.2f%%", p.PLPercentage, *p.Stop),
			})
		}
	}

	if lowest >= 0 && !selling[lowest] {
		p := &t.Positions[lowest]
		if UpdateLimit(p, t.Parameters) {
			if canAfford(t, t.MaxAllocation) {
				plan.Decisions = append(plan.Decisions, Decision{
					Action:   domain.ActionBuy,
					Trigger:  TriggerLimit,
					Position: lowest,
					Amount:   t.MaxAllocation,
					Reason:   fmt.Sprintf("Limit hit: P/L %.2f%% >= limit %.2f%%", p.PLPercentage, *p.Limit),
				})
			} else {
				plan.Recommendation = domain.Recommendation{
					Action: domain.ActionHold,
					Reason: fmt.Sprintf("Limit hit but funds depleted: available %.2f < allocation %.2f", t.AvailableFunds, t.MaxAllocation),
				}
			}
		}
	}

	if len(plan.Decisions) == 0 && plan.Recommendation.Action == "" {
		plan.Recommendation = holdReason(t, lowest)
	}
	return plan
}

func holdReason(t *domain.TrackerState, lowest int) domain.Recommendation {
	p := t.Positions[lowest]
	reason := fmt.Sprintf("Holding %d open position(s), lowest P/L %.2f%%", domain.OpenCount(t.Positions), p.PLPercentage)
	if p.Stop != nil {
		reason += fmt.Sprintf(", stop %.2f%%", *p.Stop)
	}
	if p.Limit != nil {
		reason += fmt.Sprintf(", limit %.2f%%", *p.Limit)
	}
	return domain.Recommendation{Action: domain.ActionHold, Reason: reason}
}

func reentry(t *domain.TrackerState) Plan {
	if t.ExitPrice == nil {
		t.ExitPrice = domain.Float(t.CurrentPrice)
		return Plan{Recommendation: domain.Recommendation{
			Action: domain.ActionNone,
			Reason: fmt.Sprintf("No open position, exit price set at %v", t.CurrentPrice),
		}}
	}

	change := ReentryChange(*t.ExitPrice, t.CurrentPrice)
	if !ReentryTriggered(change, t.Parameters) {
		return Plan{Recommendation: domain.Recommendation{
			Action: domain.ActionNone,
			Reason: fmt.Sprintf("Waiting for reentry: %.2f%% from exit price %v", change, *t.ExitPrice),
		}}
	}
	if !t.AutoBuy {
		return Plan{Recommendation: domain.Recommendation{
			Action: domain.ActionHold,
			Reason: fmt.Sprintf("Reentry threshold met (%.2f%%) but auto-buy is disabled", change),
		}}
	}
	if !canAfford(t, t.MaxAllocation) {
		return Plan{Recommendation: domain.Recommendation{
			Action: domain.ActionHold,
			Reason: fmt.Sprintf("Reentry threshold met (%.2f%%) but funds depleted: available %.2f < allocation %.2f", change, t.AvailableFunds, t.MaxAllocation),
		}}
	}
	return Plan{Decisions: []Decision{{
		Action:   domain.ActionBuy,
		Trigger:  TriggerReentry,
		Position: -1,
		Amount:   t.MaxAllocation,
		Reason:   fmt.Sprintf("Reentry: %.2f%% from exit price %v", change, *t.ExitPrice),
	}}}
}
