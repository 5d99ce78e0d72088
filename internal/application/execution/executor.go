// Package execution places market orders against the exchange, or synthesizes
// them in simulation mode, and books the filled amounts on the profile ledger.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/tradeassist/internal/domain"
	"github.com/alejandrodnm/tradeassist/internal/ports"
)

// simulatedCostFactor models fees and slippage on synthesized fills.
const simulatedCostFactor = 0.99

// Ledger is the bank side of an execution: buys withdraw, sells deposit.
type Ledger interface {
	Deposit(ctx context.Context, amount float64, symbol, description string) error
	Withdraw(ctx context.Context, amount float64, symbol, description string) error
}

// Config controls the execution protocol.
type Config struct {
	Simulation   bool
	MaxRetries   int           // status polls before giving up
	PollInterval time.Duration // delay between status polls
	SettleDelay  time.Duration // wait after submit before the first poll
	Request      RetryPolicy   // wraps every single exchange call

	// Sleep replaces the real timer for every wait; nil uses Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns 10 polls 3s apart, 1s settle delay and the default request retry.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   10,
		PollInterval: 3 * time.Second,
		SettleDelay:  time.Second,
		Request:      DefaultRetryPolicy(),
	}
}

// Executor implements the order execution and retry protocol.
type Executor struct {
	exchange ports.Exchange
	ledger   Ledger
	cfg      Config
	request  RetryPolicy
	poll     RetryPolicy
	now      func() time.Time
}

// NewExecutor builds an executor. Zero config values fall back to DefaultConfig.
func NewExecutor(exchange ports.Exchange, ledger Ledger, cfg Config) *Executor {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Request.MaxAttempts <= 0 {
		cfg.Request = def.Request
	}
	request := cfg.Request
	if cfg.Sleep != nil {
		request.Sleep = cfg.Sleep
	}
	return &Executor{
		exchange: exchange,
		ledger:   ledger,
		cfg:      cfg,
		request:  request,
		poll: RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     Fixed(cfg.PollInterval),
			Sleep:       cfg.Sleep,
		},
		now: time.Now,
	}
}

// Simulation reports whether fills are synthesized.
func (e *Executor) Simulation() bool {
	return e.cfg.Simulation
}

// Price returns the mid of the best bid and ask for symbol.
func (e *Executor) Price(ctx context.Context, symbol string) (float64, error) {
	var ba domain.BidAsk
	err := e.request.Do(ctx, "best bid/ask "+symbol, func(ctx context.Context) error {
		var err error
		ba, err = e.exchange.BestBidAsk(ctx, symbol)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("execution.Price: %w", err)
	}
	mid := ba.Mid()
	if mid <= 0 {
		return 0, fmt.Errorf("execution.Price: %s mid price %v: %w", symbol, mid, domain.ErrInvalidAmount)
	}
	return mid, nil
}

// PlaceBuy spends quoteAmount of the quote currency on symbol.
//
// A non-nil order with a non-nil error means the fill happened but the ledger
// could not book it; the caller must still record the position.
func (e *Executor) PlaceBuy(ctx context.Context, symbol string, quoteAmount float64, increment string) (*domain.Order, error) {
	if quoteAmount <= 0 {
		slog.Warn("invalid amount for buy order", "symbol", symbol, "amount", quoteAmount)
		return nil, fmt.Errorf("execution.PlaceBuy: %s amount %v: %w", symbol, quoteAmount, domain.ErrInvalidAmount)
	}
	price, err := e.Price(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("execution.PlaceBuy: %w", err)
	}

	if e.cfg.Simulation {
		order := domain.Order{
			OrderID:        domain.SimulatedOrderID,
			Side:           domain.SideBuy,
			BaseAmount:     precision(quoteAmount*simulatedCostFactor/price, 8),
			CurrencyAmount: quoteAmount,
			BasePrice:      price,
			Timestamp:      e.now().UTC(),
		}
		desc := fmt.Sprintf("[SIMULATED] Purchase %s orderId %s", symbol, order.OrderID)
		if err := e.ledger.Withdraw(ctx, order.CurrencyAmount, symbol, desc); err != nil {
			return nil, fmt.Errorf("execution.PlaceBuy: %w", err)
		}
		slog.Info("[SIMULATION] buy",
			"symbol", symbol, "base", order.BaseAmount, "quote", quoteAmount, "price", price)
		return &order, nil
	}

	size, err := TruncateToIncrement(quoteAmount, increment)
	if err != nil {
		return nil, fmt.Errorf("execution.PlaceBuy: %w", err)
	}
	order, err := e.execute(ctx, domain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		ProductID:     symbol,
		Side:          domain.SideBuy,
		QuoteSize:     size,
	})
	if err != nil {
		return nil, fmt.Errorf("execution.PlaceBuy: %w", err)
	}

	desc := fmt.Sprintf("Purchase %s orderId %s", symbol, order.OrderID)
	if err := e.ledger.Withdraw(ctx, order.CurrencyAmount, symbol, desc); err != nil {
		slog.Error("buy filled but ledger withdraw failed", "symbol", symbol, "order", order.OrderID, "err", err)
		return order, fmt.Errorf("execution.PlaceBuy: %w: %w", domain.ErrUnbookedFill, err)
	}
	slog.Info("buy",
		"symbol", symbol, "base", order.BaseAmount, "quote", order.CurrencyAmount, "price", order.BasePrice)
	return order, nil
}

// PlaceSell sells baseAmount of symbol. Same partial-failure contract as PlaceBuy.
func (e *Executor) PlaceSell(ctx context.Context, symbol string, baseAmount float64, increment string) (*domain.Order, error) {
	if baseAmount <= 0 {
		slog.Warn("invalid amount for sell order", "symbol", symbol, "amount", baseAmount)
		return nil, fmt.Errorf("execution.PlaceSell: %s amount %v: %w", symbol, baseAmount, domain.ErrInvalidAmount)
	}
	price, err := e.Price(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("execution.PlaceSell: %w", err)
	}

	if e.cfg.Simulation {
		order := domain.Order{
			OrderID:        domain.SimulatedOrderID,
			Side:           domain.SideSell,
			BaseAmount:     baseAmount,
			CurrencyAmount: round2(baseAmount * price * simulatedCostFactor),
			BasePrice:      price,
			Timestamp:      e.now().UTC(),
		}
		slog.Info("[SIMULATION] sell",
			"symbol", symbol, "base", baseAmount, "quote", order.CurrencyAmount, "price", price)
		desc := fmt.Sprintf("[SIMULATED] Sell %s OrderId %s", symbol, order.OrderID)
		if err := e.ledger.Deposit(ctx, order.CurrencyAmount, symbol, desc); err != nil {
			return &order, fmt.Errorf("execution.PlaceSell: book fill: %w", err)
		}
		return &order, nil
	}

	size, err := TruncateToIncrement(baseAmount, increment)
	if err != nil {
		return nil, fmt.Errorf("execution.PlaceSell: %w", err)
	}
	order, err := e.execute(ctx, domain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		ProductID:     symbol,
		Side:          domain.SideSell,
		BaseSize:      size,
	})
	if err != nil {
		return nil, fmt.Errorf("execution.PlaceSell: %w", err)
	}

	desc := fmt.Sprintf("Sell %s OrderId %s", symbol, order.OrderID)
	if err := e.ledger.Deposit(ctx, order.CurrencyAmount, symbol, desc); err != nil {
		slog.Error("sell filled but ledger deposit failed", "symbol", symbol, "order", order.OrderID, "err", err)
		return order, fmt.Errorf("execution.PlaceSell: book fill: %w", err)
	}
	slog.Info("sell",
		"symbol", symbol, "base", order.BaseAmount, "quote", order.CurrencyAmount, "price", order.BasePrice)
	return order, nil
}

// execute submits req and waits for the fill.
func (e *Executor) execute(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	var res domain.SubmitResult
	err := e.request.Do(ctx, "submit "+req.ProductID, func(ctx context.Context) error {
		var err error
		res, err = e.exchange.SubmitOrder(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	slog.Debug("order submitted", "symbol", req.ProductID, "order", res.OrderID, "client_order", req.ClientOrderID)

	if err := e.wait(ctx, e.cfg.SettleDelay); err != nil {
		return nil, err
	}

	st, err := e.awaitFill(ctx, res.OrderID)
	if err != nil {
		return nil, err
	}
	if st.FilledBase <= 0 || st.FilledQuote <= 0 {
		return nil, fmt.Errorf("order %s settled with status %s and no fill: %w", res.OrderID, st.Status, domain.ErrOrderRejected)
	}

	ts := st.FillTime
	if ts.IsZero() {
		ts = e.now().UTC()
	}
	return &domain.Order{
		OrderID:        res.OrderID,
		Side:           req.Side,
		BaseAmount:     st.FilledBase,
		CurrencyAmount: st.FilledQuote,
		BasePrice:      st.AvgFillPrice,
		Timestamp:      ts,
	}, nil
}

// awaitFill polls the order until it settles or the poll budget runs out.
// Each poll is itself retried by the request policy.
func (e *Executor) awaitFill(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	var st domain.OrderStatus
	err := e.poll.Do(ctx, "await "+orderID, func(ctx context.Context) error {
		err := e.request.Do(ctx, "order "+orderID, func(ctx context.Context) error {
			var err error
			st, err = e.exchange.Order(ctx, orderID)
			return err
		})
		if err != nil {
			return err
		}
		if !st.Settled {
			return fmt.Errorf("order %s status %s", orderID, st.Status)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return st, err
		}
		return st, fmt.Errorf("%w: %w", domain.ErrOrderNotSettled, err)
	}
	return st, nil
}

func (e *Executor) wait(ctx context.Context, d time.Duration) error {
	if e.cfg.Sleep != nil {
		return e.cfg.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// TruncateToIncrement cuts amount to the number of decimals of increment,
// never rounding up. An empty increment leaves the amount untouched.
func TruncateToIncrement(amount float64, increment string) (string, error) {
	d := decimal.NewFromFloat(amount)
	if increment != "" {
		places := 0
		if i := strings.IndexByte(increment, '.'); i >= 0 {
			places = len(increment) - i - 1
		}
		d = d.Truncate(int32(places))
	}
	if !d.IsPositive() {
		return "", fmt.Errorf("amount %v truncated to increment %q is zero: %w", amount, increment, domain.ErrInvalidAmount)
	}
	return d.String(), nil
}

func precision(v float64, digits int) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'g', digits, 64), 64)
	return f
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
