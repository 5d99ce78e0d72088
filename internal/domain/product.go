package domain

// Product is a tradable pair listed by the exchange.
type Product struct {
	ProductID       string
	BaseCurrency    string
	QuoteCurrency   string
	Price           float64
	Status          string
	ProductType     string
	TradingDisabled bool
	IsDisabled      bool
	ViewOnly        bool
	Volume24h       float64 // approximate quote volume
	BaseIncrement   string
	QuoteIncrement  string
}

// Account is an exchange balance for one currency.
type Account struct {
	Currency         string
	AvailableBalance float64
}
