package strategy

import (
	"testing"
	"time"

	"github.com/alejandrodnm/tradeassist/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

func testParams() domain.Parameters {
	return domain.Parameters{
		SpreadPercentage:       1,
		TargetProfitPercentage: 1,
		TrailingSellPercentage: 0.5,
		DropBuyPercentage:      2.5,
		TrailingBuyPercentage:  0.1,
		ReentryLimitPercentage: 1,
		CoolOffPercentage:      5,
	}
}

// simulated fill at price 100 with 100 spent: base = 100*0.99/100
func buyAt(price, amount float64, at time.Time) domain.Order {
	return domain.Order{
		OrderID:        domain.SimulatedOrderID,
		Side:           domain.SideBuy,
		BaseAmount:     amount * 0.99 / price,
		CurrencyAmount: amount,
		BasePrice:      price,
		Timestamp:      at,
	}
}

func newTracker(positions ...domain.Position) *domain.TrackerState {
	return &domain.TrackerState{
		Symbol:         "ABC-USD",
		Parameters:     testParams(),
		AutoBuy:        true,
		Positions:      positions,
		AvailableFunds: 400,
		MaxAllocation:  100,
	}
}

func step(tr *domain.TrackerState, price float64) Plan {
	tr.ObservePrice(price)
	return Evaluate(tr)
}

func TestUpdatePL(t *testing.T) {
	p := domain.NewPosition(buyAt(100, 100, t0))
	UpdatePL(&p, 100, 1)

	assert.InDelta(t, 98.01, p.EstSaleValue, 1e-9)
	assert.InDelta(t, -1.99, p.PLAmount, 1e-9)
	assert.InDelta(t, -1.99, p.PLPercentage, 1e-9)
}

func TestUpdateStop_ArmsOnlyPastTarget(t *testing.T) {
	params := testParams()
	p := domain.Position{PLPercentage: 1.4}
	assert.False(t, UpdateStop(&p, params))
	assert.Nil(t, p.Stop, "candidate 0.9 is below the 1% target")

	p.PLPercentage = 1.6
	assert.False(t, UpdateStop(&p, params))
	require.NotNil(t, p.Stop)
	assert.InDelta(t, 1.1, *p.Stop, 1e-9)

	p.PLPercentage = 1.1
	assert.True(t, UpdateStop(&p, params))
}

func TestUpdateLimit_ArmsOnlyPastDropBuy(t *testing.T) {
	params := testParams()
	p := domain.Position{PLPercentage: -2.5}
	assert.False(t, UpdateLimit(&p, params))
	assert.Nil(t, p.Limit, "drop must be strictly past the threshold")

	p.PLPercentage = -3
	assert.False(t, UpdateLimit(&p, params))
	require.NotNil(t, p.Limit)
	assert.InDelta(t, -2.9, *p.Limit, 1e-9)

	p.PLPercentage = -2.9
	assert.True(t, UpdateLimit(&p, params))
}

func TestStopIsMonotonic(t *testing.T) {
	params := testParams()
	p := domain.Position{}
	var last *float64
	for _, pl := range []float64{0, 2, 3.5, 2.8, 5, 4.9, 4.6} {
		p.PLPercentage = pl
		UpdateStop(&p, params)
		if last != nil {
			require.NotNil(t, p.Stop)
			assert.GreaterOrEqual(t, *p.Stop, *last)
		}
		last = p.Stop
	}
	assert.InDelta(t, 4.5, *p.Stop, 1e-9)
}

func TestLimitIsMonotonic(t *testing.T) {
	params := testParams()
	p := domain.Position{}
	var last *float64
	for _, pl := range []float64{-1, -3, -5, -4.95, -7, -6.95} {
		p.PLPercentage = pl
		UpdateLimit(&p, params)
		if last != nil {
			require.NotNil(t, p.Limit)
			assert.LessOrEqual(t, *p.Limit, *last)
		}
		last = p.Limit
	}
	assert.InDelta(t, -6.9, *p.Limit, 1e-9)
}

func TestEvaluate_ScaleInAfterDrop(t *testing.T) {
	tr := newTracker(domain.NewPosition(buyAt(100, 100, t0)))

	plan := step(tr, 97)
	assert.Empty(t, plan.Decisions)
	require.NotNil(t, tr.Positions[0].Limit)
	assert.InDelta(t, tr.Positions[0].PLPercentage+0.1, *tr.Positions[0].Limit, 1e-9)

	// sigue bajando: el limit baja con el precio
	plan = step(tr, 95)
	assert.Empty(t, plan.Decisions)
	assert.InDelta(t, -6.7905, *tr.Positions[0].Limit, 1e-6)

	plan = step(tr, 95.2)
	require.Len(t, plan.Decisions, 1)
	d := plan.Decisions[0]
	assert.Equal(t, domain.ActionBuy, d.Action)
	assert.Equal(t, TriggerLimit, d.Trigger)
	assert.Equal(t, 0, d.Position)
	assert.Equal(t, 100.0, d.Amount)
	// limit is cleared by the engine only once the buy fills
	assert.NotNil(t, tr.Positions[0].Limit)
}

func TestEvaluate_ScaleInWithheldWhenFundsDepleted(t *testing.T) {
	tr := newTracker(domain.NewPosition(buyAt(100, 100, t0)))
	tr.AvailableFunds = 50

	step(tr, 95)
	plan := step(tr, 95.2)

	assert.Empty(t, plan.Decisions)
	assert.Equal(t, domain.ActionHold, plan.Recommendation.Action)
	assert.Contains(t, plan.Recommendation.Reason, "funds depleted")
	assert.NotNil(t, tr.Positions[0].Limit)
}

func TestEvaluate_LimitOnlyOnLowestOpen(t *testing.T) {
	high := domain.NewPosition(buyAt(110, 100, t0))
	low := domain.NewPosition(buyAt(100, 100, t0.Add(time.Minute)))
	tr := newTracker(high, low)

	step(tr, 96)

	assert.Nil(t, tr.Positions[0].Limit)
	assert.NotNil(t, tr.Positions[1].Limit)
}

func TestEvaluate_StopSells(t *testing.T) {
	tr := newTracker(domain.NewPosition(buyAt(100, 100, t0)))

	plan := step(tr, 104)
	assert.Empty(t, plan.Decisions)
	require.NotNil(t, tr.Positions[0].Stop)
	armed := *tr.Positions[0].Stop

	step(tr, 105)
	assert.Greater(t, *tr.Positions[0].Stop, armed)

	plan = step(tr, 104.4)
	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, domain.ActionSell, plan.Decisions[0].Action)
	assert.Equal(t, TriggerStop, plan.Decisions[0].Trigger)
	assert.Equal(t, 0, plan.Decisions[0].Position)
}

func TestEvaluate_Reentry(t *testing.T) {
	closed := domain.NewPosition(buyAt(100, 100, t0))
	closed.Close(domain.Order{Side: domain.SideSell, CurrencyAmount: 103, BasePrice: 105, Timestamp: t0})
	tr := newTracker(closed)

	plan := step(tr, 100)
	assert.Empty(t, plan.Decisions)
	require.NotNil(t, tr.ExitPrice)
	assert.Equal(t, 100.0, *tr.ExitPrice)

	plan = step(tr, 100.5)
	assert.Empty(t, plan.Decisions)
	assert.Equal(t, domain.ActionNone, plan.Recommendation.Action)

	plan = step(tr, 101.5)
	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, TriggerReentry, plan.Decisions[0].Trigger)
	assert.Equal(t, 100.0, plan.Decisions[0].Amount)
}

func TestEvaluate_ReentryOnCoolOff(t *testing.T) {
	tr := newTracker()
	tr.ExitPrice = domain.Float(100)

	plan := step(tr, 94)

	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, domain.ActionBuy, plan.Decisions[0].Action)
}

func TestEvaluate_ReentryRequiresAutoBuy(t *testing.T) {
	tr := newTracker()
	tr.AutoBuy = false
	tr.ExitPrice = domain.Float(100)

	plan := step(tr, 110)

	assert.Empty(t, plan.Decisions)
	assert.Equal(t, domain.ActionHold, plan.Recommendation.Action)
	assert.NotNil(t, tr.ExitPrice)
}

func TestEvaluate_ManualSellTakesLowestEarliest(t *testing.T) {
	a := domain.NewPosition(buyAt(100, 100, t0.Add(time.Hour)))
	b := domain.NewPosition(buyAt(100, 100, t0))
	c := domain.NewPosition(buyAt(120, 100, t0))
	tr := newTracker(a, b, c)
	tr.ManualSell = true

	plan := step(tr, 130)

	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, TriggerManualSell, plan.Decisions[0].Trigger)
	assert.Equal(t, 1, plan.Decisions[0].Position)
	assert.False(t, tr.ManualSell)
}

func TestEvaluate_ManualPurchase(t *testing.T) {
	tr := newTracker()
	tr.ManualPurchaseAmount = domain.Float(25)

	plan := step(tr, 100)

	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, TriggerManualBuy, plan.Decisions[0].Trigger)
	assert.Equal(t, 25.0, plan.Decisions[0].Amount)
	assert.Nil(t, tr.ManualPurchaseAmount)
}

func TestEvaluate_ManualPurchaseClearedWhenUnaffordable(t *testing.T) {
	tr := newTracker()
	tr.ManualPurchaseAmount = domain.Float(1000)

	plan := step(tr, 100)

	assert.Empty(t, plan.Decisions)
	assert.Equal(t, domain.ActionHold, plan.Recommendation.Action)
	assert.Nil(t, tr.ManualPurchaseAmount)
}

func TestEvaluate_UnbookedFillWithholdsBuys(t *testing.T) {
	tr := newTracker()
	tr.UnbookedAmount = 40
	tr.ManualPurchaseAmount = domain.Float(25)

	plan := step(tr, 100)

	assert.Empty(t, plan.Decisions)
	assert.Equal(t, domain.ActionHold, plan.Recommendation.Action)
	assert.Nil(t, tr.ManualPurchaseAmount)
}

func TestEvaluate_ManualSuppressesAutomaticTriggers(t *testing.T) {
	tr := newTracker(domain.NewPosition(buyAt(100, 100, t0)))
	step(tr, 105)
	tr.ManualPurchaseAmount = domain.Float(10)

	plan := step(tr, 104)

	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, TriggerManualBuy, plan.Decisions[0].Trigger)
}
