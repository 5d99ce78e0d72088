package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func buy(price, base, cost float64, at time.Time) Order {
	return Order{OrderID: "b", Side: SideBuy, BasePrice: price, BaseAmount: base, CurrencyAmount: cost, Timestamp: at}
}

func TestPosition_Close(t *testing.T) {
	p := NewPosition(buy(100, 0.99, 100, t0))
	p.Stop = Float(1.2)
	p.Limit = Float(-3)
	require.True(t, p.Open())

	p.Close(Order{OrderID: "s", Side: SideSell, BasePrice: 104.4, BaseAmount: 0.99, CurrencyAmount: 102.32, Timestamp: t0.Add(time.Hour)})

	assert.False(t, p.Open())
	assert.Nil(t, p.Stop)
	assert.Nil(t, p.Limit)
	assert.InDelta(t, 2.32, p.PLAmount, 1e-9)
	assert.InDelta(t, 2.32, p.PLPercentage, 1e-9)
	assert.InDelta(t, 102.32, p.EstSaleValue, 1e-9)
}

func TestLowestOpen(t *testing.T) {
	closed := NewPosition(buy(90, 1, 90, t0))
	closed.Close(buy(95, 1, 95, t0))

	positions := []Position{
		NewPosition(buy(100, 1, 100, t0)),
		closed,
		NewPosition(buy(95, 1, 95, t0.Add(2*time.Minute))),
		NewPosition(buy(95, 1, 95, t0.Add(time.Minute))),
	}
	assert.Equal(t, 3, LowestOpen(positions), "closed lots are ignored, ties go to the earliest buy")
	assert.Equal(t, 3, OpenCount(positions))

	assert.Equal(t, -1, LowestOpen([]Position{closed}))
	assert.Equal(t, -1, LowestOpen(nil))
}

func TestTrackerState_ObservePrice(t *testing.T) {
	tr := NewTrackerState(Product{ProductID: "ABC-USD", Price: 100}, DefaultParameters())
	tr.ObservePrice(104)
	tr.ObservePrice(97)
	tr.ObservePrice(101)

	assert.InDelta(t, 101.0, tr.CurrentPrice, 1e-9)
	assert.InDelta(t, 104.0, tr.HighestPrice, 1e-9)
	assert.InDelta(t, 97.0, tr.LowestPrice, 1e-9)
}

func TestTrackerState_RefreshAggregates(t *testing.T) {
	tr := NewTrackerState(Product{ProductID: "ABC-USD", Price: 100}, DefaultParameters())
	a := NewPosition(buy(100, 1, 100, t0))
	a.PLPercentage = -6
	b := NewPosition(buy(94, 1, 94, t0.Add(time.Minute)))
	b.PLPercentage = -1.5
	tr.Positions = []Position{a, b}
	tr.CurrentPrice = 93

	tr.RefreshAggregates()

	assert.InDelta(t, 2.0, tr.Held, 1e-9)
	assert.InDelta(t, 186.0, tr.HeldValueUSD, 1e-9)
	assert.InDelta(t, 97.0, tr.AverageBuyPrice, 1e-9)
	assert.InDelta(t, -1.5, tr.PercentageChange, 1e-9, "percentage follows the lowest open lot")
}

func TestTrackerState_RefreshAggregatesAfterExit(t *testing.T) {
	tr := NewTrackerState(Product{ProductID: "ABC-USD", Price: 100}, DefaultParameters())
	tr.ExitPrice = Float(100)
	tr.CurrentPrice = 95

	tr.RefreshAggregates()

	assert.Zero(t, tr.Held)
	assert.Zero(t, tr.AverageBuyPrice)
	assert.InDelta(t, -5.0, tr.PercentageChange, 1e-9)
}

func TestTrackerState_RecordErrorKeepsMostRecent(t *testing.T) {
	tr := NewTrackerState(Product{ProductID: "ABC-USD", Price: 1}, DefaultParameters())
	for i := 0; i < maxErrorRecords+5; i++ {
		tr.RecordError(t0.Add(time.Duration(i)*time.Second), fmt.Errorf("failure %d", i))
	}
	require.Len(t, tr.Errors, maxErrorRecords)
	assert.Equal(t, "failure 5", tr.Errors[0].Message)
	assert.Equal(t, fmt.Sprintf("failure %d", maxErrorRecords+4), tr.Errors[maxErrorRecords-1].Message)
}

func TestNewTrackerState_Defaults(t *testing.T) {
	tr := NewTrackerState(Product{ProductID: "ABC-USD", Price: 42.5, BaseIncrement: "0.001", QuoteIncrement: "0.01"}, DefaultParameters())

	assert.Equal(t, ActionHold, tr.Recommendation.Action)
	assert.Equal(t, "New tracker, no recommendation yet", tr.Recommendation.Reason)
	assert.Equal(t, "Started new tracker at price: 42.5", tr.LastAction)
	assert.Equal(t, "0.001", tr.BaseIncrement)
	assert.InDelta(t, 42.5, tr.HighestPrice, 1e-9)
	assert.InDelta(t, 42.5, tr.LowestPrice, 1e-9)
	assert.NotNil(t, tr.Positions)
	assert.NotNil(t, tr.Errors)
}

func TestTrackerPatch_Apply(t *testing.T) {
	tr := NewTrackerState(Product{ProductID: "ABC-USD", Price: 1}, DefaultParameters())
	tr.AutoBuy = true

	amount := 25.0
	sell := true
	params := DefaultParameters()
	params.DropBuyPercentage = 5
	override := true
	TrackerPatch{
		Parameters:           &params,
		OverrideParameters:   &override,
		ManualPurchaseAmount: &amount,
		ManualSell:           &sell,
	}.Apply(&tr)

	assert.True(t, tr.AutoBuy, "nil fields are left untouched")
	assert.True(t, tr.OverrideParameters)
	assert.True(t, tr.ManualSell)
	assert.InDelta(t, 5.0, tr.Parameters.DropBuyPercentage, 1e-9)
	require.NotNil(t, tr.ManualPurchaseAmount)

	amount = 99
	assert.InDelta(t, 25.0, *tr.ManualPurchaseAmount, 1e-9, "the patch value is copied")
}

func TestTrackerPatch_ClearUnbooked(t *testing.T) {
	tr := NewTrackerState(Product{ProductID: "ABC-USD", Price: 1}, DefaultParameters())
	tr.UnbookedAmount = 600

	TrackerPatch{}.Apply(&tr)
	assert.Equal(t, 600.0, tr.UnbookedAmount)

	TrackerPatch{ClearUnbooked: true}.Apply(&tr)
	assert.Zero(t, tr.UnbookedAmount)
}

func TestTrackerState_JSONRoundTrip(t *testing.T) {
	tr := NewTrackerState(Product{ProductID: "ABC-USD", Price: 100, BaseIncrement: "0.00000001", QuoteIncrement: "0.01"}, DefaultParameters())
	tr.AutoBuy = true
	tr.ManualPurchaseAmount = Float(50)
	tr.ExitPrice = Float(101.5)
	tr.LastActionTime = &t0

	open := NewPosition(buy(100, 0.99, 100, t0))
	open.Stop = Float(0.7)
	open.PLPercentage = 1.2
	closed := NewPosition(buy(98, 1, 98, t0))
	closed.Close(Order{OrderID: "s", Side: SideSell, BasePrice: 99, BaseAmount: 1, CurrencyAmount: 98.01, Timestamp: t0.Add(time.Hour)})
	tr.Positions = []Position{open, closed}
	tr.RecordError(t0, errors.New("order not settled"))
	tr.RefreshAggregates()

	data, err := json.Marshal(tr)
	require.NoError(t, err)

	var got TrackerState
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, tr, got)
}

func TestParameters_WithDefaults(t *testing.T) {
	p := Parameters{TargetProfitPercentage: 3}.WithDefaults()

	want := DefaultParameters()
	want.TargetProfitPercentage = 3
	assert.Equal(t, want, p)
}
