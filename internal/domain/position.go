package domain

import "math"

// Position is one buy lot, open until matched with a sell.
type Position struct {
	BuyOrder     Order    `json:"buyOrder"`
	SellOrder    *Order   `json:"sellOrder"`
	PLAmount     float64  `json:"plAmount"`
	PLPercentage float64  `json:"plPercentage"`
	Stop         *float64 `json:"stop"`  // sell trigger, percent; never decreases once set
	Limit        *float64 `json:"limit"` // scale-in trigger, percent; never increases once set
	EstSaleValue float64  `json:"estSaleValue,omitempty"`
}

// NewPosition opens a position from a buy fill.
func NewPosition(buy Order) Position {
	return Position{BuyOrder: buy}
}

// Open reports whether the position has not been sold yet.
func (p Position) Open() bool {
	return p.SellOrder == nil
}

// Close records the sell fill and freezes P/L at the realized values.
// Stop and limit are cleared.
func (p *Position) Close(sell Order) {
	p.SellOrder = &sell
	p.Stop = nil
	p.Limit = nil
	p.EstSaleValue = sell.CurrencyAmount
	p.PLAmount = sell.CurrencyAmount - p.BuyOrder.CurrencyAmount
	if p.BuyOrder.CurrencyAmount > 0 {
		p.PLPercentage = p.PLAmount / p.BuyOrder.CurrencyAmount * 100
	}
}

// LowestOpen returns the index of the open position with the lowest buy
// price, ties broken by the earliest buy timestamp. It returns -1 when no
// position is open.
func LowestOpen(positions []Position) int {
	idx := -1
	lowest := math.Inf(1)
	for i, p := range positions {
		if !p.Open() {
			continue
		}
		price := p.BuyOrder.BasePrice
		switch {
		case price < lowest:
			idx, lowest = i, price
		case price == lowest && p.BuyOrder.Timestamp.Before(positions[idx].BuyOrder.Timestamp):
			idx = i
		}
	}
	return idx
}

// OpenCount returns the number of open positions.
func OpenCount(positions []Position) int {
	n := 0
	for _, p := range positions {
		if p.Open() {
			n++
		}
	}
	return n
}

// Float returns a pointer to v. Used for the optional thresholds.
func Float(v float64) *float64 {
	return &v
}
