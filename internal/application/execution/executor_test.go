package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradeassist/internal/domain"
	"github.com/alejandrodnm/tradeassist/internal/ports/portstest"
)

type ledgerCall struct {
	amount float64
	symbol string
	desc   string
}

// fakeLedger records bookings; Fail makes every call fail.
type fakeLedger struct {
	mu          sync.Mutex
	deposits    []ledgerCall
	withdrawals []ledgerCall
	Fail        error
}

func (l *fakeLedger) Deposit(_ context.Context, amount float64, symbol, desc string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Fail != nil {
		return l.Fail
	}
	l.deposits = append(l.deposits, ledgerCall{amount, symbol, desc})
	return nil
}

func (l *fakeLedger) Withdraw(_ context.Context, amount float64, symbol, desc string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Fail != nil {
		return l.Fail
	}
	l.withdrawals = append(l.withdrawals, ledgerCall{amount, symbol, desc})
	return nil
}

func newTestExecutor(simulation bool) (*Executor, *portstest.Exchange, *fakeLedger, *sleepRecorder) {
	ex := portstest.NewExchange()
	ex.AddProduct("ABC-USD", 100)
	ledger := &fakeLedger{}
	rec := &sleepRecorder{}
	e := NewExecutor(ex, ledger, Config{
		Simulation:   simulation,
		MaxRetries:   10,
		PollInterval: 3 * time.Second,
		SettleDelay:  time.Second,
		Request:      RetryPolicy{MaxAttempts: 3, Backoff: Linear(time.Second)},
		Sleep:        rec.sleep,
	})
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e, ex, ledger, rec
}

func TestExecutor_SimulatedBuy(t *testing.T) {
	e, ex, ledger, _ := newTestExecutor(true)

	order, err := e.PlaceBuy(context.Background(), "ABC-USD", 100, "0.01")
	require.NoError(t, err)

	assert.Equal(t, domain.SimulatedOrderID, order.OrderID)
	assert.Equal(t, domain.SideBuy, order.Side)
	assert.InDelta(t, 0.99, order.BaseAmount, 1e-12)
	assert.Equal(t, 100.0, order.CurrencyAmount)
	assert.Equal(t, 100.0, order.BasePrice)
	require.Len(t, ledger.withdrawals, 1)
	assert.Equal(t, 100.0, ledger.withdrawals[0].amount)
	assert.Contains(t, ledger.withdrawals[0].desc, "[SIMULATED]")
	assert.Empty(t, ex.Submitted)
}

func TestExecutor_SimulatedBuyRoundsToEightDigits(t *testing.T) {
	e, ex, _, _ := newTestExecutor(true)
	ex.SetPrice("ABC-USD", 3)

	order, err := e.PlaceBuy(context.Background(), "ABC-USD", 10, "0.01")
	require.NoError(t, err)
	assert.Equal(t, 3.3, order.BaseAmount)
}

func TestExecutor_SimulatedBuyInsufficientFunds(t *testing.T) {
	e, _, ledger, _ := newTestExecutor(true)
	ledger.Fail = domain.ErrInsufficientFunds

	order, err := e.PlaceBuy(context.Background(), "ABC-USD", 100, "0.01")
	assert.Nil(t, order)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestExecutor_SimulatedSell(t *testing.T) {
	e, ex, ledger, _ := newTestExecutor(true)
	ex.SetPrice("ABC-USD", 105.5)

	order, err := e.PlaceSell(context.Background(), "ABC-USD", 0.99, "0.00000001")
	require.NoError(t, err)

	assert.Equal(t, domain.SideSell, order.Side)
	assert.Equal(t, 103.4, order.CurrencyAmount) // 0.99*105.5*0.99 = 103.39...
	require.Len(t, ledger.deposits, 1)
	assert.Equal(t, order.CurrencyAmount, ledger.deposits[0].amount)
}

func TestExecutor_InvalidAmount(t *testing.T) {
	e, _, ledger, _ := newTestExecutor(false)

	_, err := e.PlaceBuy(context.Background(), "ABC-USD", 0, "0.01")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = e.PlaceSell(context.Background(), "ABC-USD", -1, "0.01")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Empty(t, ledger.withdrawals)
	assert.Empty(t, ledger.deposits)
}

func TestExecutor_LiveBuyBooksActualFill(t *testing.T) {
	e, ex, ledger, rec := newTestExecutor(false)
	ex.NextOrderID = "cb-1"
	ex.Statuses["cb-1"] = []domain.OrderStatus{
		{Status: "OPEN"},
		{Settled: true, Status: "FILLED", FilledBase: 0.995, FilledQuote: 99.87, AvgFillPrice: 100.1,
			FillTime: time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)},
	}

	order, err := e.PlaceBuy(context.Background(), "ABC-USD", 100.129, "0.01")
	require.NoError(t, err)

	require.Len(t, ex.Submitted, 1)
	req := ex.Submitted[0]
	assert.Equal(t, "100.12", req.QuoteSize)
	assert.Empty(t, req.BaseSize)
	assert.NotEmpty(t, req.ClientOrderID)

	assert.Equal(t, "cb-1", order.OrderID)
	assert.Equal(t, 99.87, order.CurrencyAmount)
	assert.Equal(t, 0.995, order.BaseAmount)
	require.Len(t, ledger.withdrawals, 1)
	assert.Equal(t, 99.87, ledger.withdrawals[0].amount)

	// settle delay, then one poll interval between the two polls
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, rec.delays)
}

func TestExecutor_LiveSellTruncatesBase(t *testing.T) {
	e, ex, ledger, _ := newTestExecutor(false)
	ex.Statuses["order-1"] = []domain.OrderStatus{
		{Settled: true, Status: "FILLED", FilledBase: 0.1234, FilledQuote: 12.2, AvgFillPrice: 99},
	}

	order, err := e.PlaceSell(context.Background(), "ABC-USD", 0.123456789, "0.0001")
	require.NoError(t, err)

	assert.Equal(t, "0.1234", ex.Submitted[0].BaseSize)
	assert.Equal(t, domain.SideSell, order.Side)
	require.Len(t, ledger.deposits, 1)
	assert.Equal(t, 12.2, ledger.deposits[0].amount)
	assert.False(t, order.Timestamp.IsZero())
}

func TestExecutor_NotSettledLeavesLedger(t *testing.T) {
	e, ex, ledger, _ := newTestExecutor(false)

	order, err := e.PlaceBuy(context.Background(), "ABC-USD", 50, "0.01")
	assert.Nil(t, order)
	assert.ErrorIs(t, err, domain.ErrOrderNotSettled)
	assert.Equal(t, 10, ex.OrderCalls)
	assert.Empty(t, ledger.withdrawals)
}

func TestExecutor_SubmitRetriesTransientErrors(t *testing.T) {
	e, ex, _, _ := newTestExecutor(false)
	ex.SubmitErrs = []error{errors.New("503"), errors.New("503")}
	ex.Statuses["order-1"] = []domain.OrderStatus{
		{Settled: true, Status: "FILLED", FilledBase: 1, FilledQuote: 100, AvgFillPrice: 100},
	}

	_, err := e.PlaceBuy(context.Background(), "ABC-USD", 100, "0.01")
	require.NoError(t, err)
	assert.Equal(t, 3, ex.SubmitCalls)
}

func TestExecutor_SubmitExhausted(t *testing.T) {
	e, ex, ledger, _ := newTestExecutor(false)
	ex.SubmitErrs = []error{errors.New("503"), errors.New("503"), errors.New("503")}

	_, err := e.PlaceBuy(context.Background(), "ABC-USD", 100, "0.01")
	require.Error(t, err)
	assert.Equal(t, 3, ex.SubmitCalls)
	assert.Zero(t, ex.OrderCalls)
	assert.Empty(t, ledger.withdrawals)
}

func TestExecutor_RejectedOrderIsNotRetried(t *testing.T) {
	e, ex, _, _ := newTestExecutor(false)
	ex.SubmitErrs = []error{domain.ErrOrderRejected}

	_, err := e.PlaceSell(context.Background(), "ABC-USD", 1, "0.01")
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.Equal(t, 1, ex.SubmitCalls)
}

func TestExecutor_PollErrorsAreRetried(t *testing.T) {
	e, ex, _, _ := newTestExecutor(false)
	ex.OrderErrs = []error{errors.New("reset"), errors.New("reset")}
	ex.Statuses["order-1"] = []domain.OrderStatus{
		{Settled: true, Status: "FILLED", FilledBase: 1, FilledQuote: 100, AvgFillPrice: 100},
	}

	_, err := e.PlaceBuy(context.Background(), "ABC-USD", 100, "0.01")
	require.NoError(t, err)
	assert.Equal(t, 3, ex.OrderCalls)
}

func TestExecutor_SettledWithoutFill(t *testing.T) {
	e, ex, ledger, _ := newTestExecutor(false)
	ex.Statuses["order-1"] = []domain.OrderStatus{{Settled: true, Status: "CANCELLED"}}

	order, err := e.PlaceBuy(context.Background(), "ABC-USD", 100, "0.01")
	assert.Nil(t, order)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.Empty(t, ledger.withdrawals)
}

func TestExecutor_FillBookedEvenWhenLedgerFails(t *testing.T) {
	e, ex, ledger, _ := newTestExecutor(false)
	ledger.Fail = domain.ErrInsufficientFunds
	ex.Statuses["order-1"] = []domain.OrderStatus{
		{Settled: true, Status: "FILLED", FilledBase: 1, FilledQuote: 100, AvgFillPrice: 100},
	}

	order, err := e.PlaceBuy(context.Background(), "ABC-USD", 100, "0.01")
	require.NotNil(t, order)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.ErrorIs(t, err, domain.ErrUnbookedFill)
}

func TestExecutor_PriceIsMid(t *testing.T) {
	e, ex, _, _ := newTestExecutor(true)
	ex.Quotes["ABC-USD"] = domain.BidAsk{ProductID: "ABC-USD", Bid: 99, Ask: 101.5}

	price, err := e.Price(context.Background(), "ABC-USD")
	require.NoError(t, err)
	assert.Equal(t, 100.25, price)
}

func TestTruncateToIncrement(t *testing.T) {
	tests := []struct {
		amount    float64
		increment string
		want      string
	}{
		{100.129, "0.01", "100.12"},
		{0.123456789, "0.00000001", "0.12345678"},
		{12.99, "1", "12"},
		{5.5, "", "5.5"},
	}
	for _, tt := range tests {
		got, err := TruncateToIncrement(tt.amount, tt.increment)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := TruncateToIncrement(0.004, "0.01")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}
