package domain

import "time"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// SimulatedOrderID is the order id assigned to fills synthesized in simulation mode.
const SimulatedOrderID = "SIMULATED_ORDER_ID"

// Order is an executed fill. Never mutated after creation.
type Order struct {
	OrderID        string    `json:"orderId"`
	Side           Side      `json:"side"`
	BaseAmount     float64   `json:"baseAmount"`     // asset quantity
	CurrencyAmount float64   `json:"currencyAmount"` // quote currency
	BasePrice      float64   `json:"basePrice"`      // quote per base
	Timestamp      time.Time `json:"timestamp"`
}

// Simulated reports whether the order was synthesized instead of filled on the exchange.
func (o Order) Simulated() bool {
	return o.OrderID == SimulatedOrderID
}

// OrderRequest is a market order submitted to the exchange. Exactly one of
// QuoteSize (buys) or BaseSize (sells) is set, already truncated to the
// product increment.
type OrderRequest struct {
	ClientOrderID string
	ProductID     string
	Side          Side
	QuoteSize     string
	BaseSize      string
}

// SubmitResult is the exchange acknowledgement of a submitted order.
type SubmitResult struct {
	OrderID string
}

// OrderStatus is a status poll of a previously submitted order.
type OrderStatus struct {
	OrderID      string
	Settled      bool
	Status       string
	FilledBase   float64
	FilledQuote  float64 // total value after fees
	AvgFillPrice float64
	FillTime     time.Time
}

// BidAsk is the top of book for a product.
type BidAsk struct {
	ProductID string
	Bid       float64
	Ask       float64
}

// Mid returns the average of best bid and best ask.
func (b BidAsk) Mid() float64 {
	return (b.Bid + b.Ask) / 2
}
