package coinbase

import (
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func mapAccounts(raw []account) []domain.Account {
	out := make([]domain.Account, 0, len(raw))
	for _, a := range raw {
		out = append(out, domain.Account{
			Currency:         a.Currency,
			AvailableBalance: parseFloat(a.AvailableBalance.Value),
		})
	}
	return out
}

func mapProducts(raw []product) []domain.Product {
	out := make([]domain.Product, 0, len(raw))
	for _, p := range raw {
		out = append(out, mapProduct(p))
	}
	return out
}

// mapProduct convierte un producto. El volumen es el aproximado en moneda
// quote; si falta, se estima con volumen base × precio.
func mapProduct(p product) domain.Product {
	price := parseFloat(p.Price)
	volume := parseFloat(p.ApproximateQuote24hVolume)
	if volume == 0 {
		volume = parseFloat(p.Volume24h) * price
	}
	return domain.Product{
		ProductID:       p.ProductID,
		BaseCurrency:    p.BaseCurrencyID,
		QuoteCurrency:   p.QuoteCurrencyID,
		Price:           price,
		Status:          p.Status,
		ProductType:     p.ProductType,
		TradingDisabled: p.TradingDisabled,
		IsDisabled:      p.IsDisabled,
		ViewOnly:        p.ViewOnly,
		Volume24h:       volume,
		BaseIncrement:   p.BaseIncrement,
		QuoteIncrement:  p.QuoteIncrement,
	}
}

func mapOrderStatus(o order) domain.OrderStatus {
	st := domain.OrderStatus{
		OrderID:      o.OrderID,
		Settled:      o.Settled,
		Status:       o.Status,
		FilledBase:   parseFloat(o.FilledSize),
		FilledQuote:  parseFloat(o.TotalValueAfterFees),
		AvgFillPrice: parseFloat(o.AverageFilledPrice),
	}
	if t, err := time.Parse(time.RFC3339Nano, o.LastFillTime); err == nil {
		st.FillTime = t.UTC()
	}
	return st
}

// mapPricebook toma el mejor nivel de cada lado. Coinbase ordena bids
// de mayor a menor y asks de menor a mayor.
func mapPricebook(pb pricebook) domain.BidAsk {
	ba := domain.BidAsk{ProductID: pb.ProductID}
	if len(pb.Bids) > 0 {
		ba.Bid = parseFloat(pb.Bids[0].Price)
	}
	if len(pb.Asks) > 0 {
		ba.Ask = parseFloat(pb.Asks[0].Price)
	}
	return ba
}

func rejectionReason(r createOrderResponse) string {
	e := r.ErrorResponse
	for _, s := range []string{e.ErrorDetails, e.PreviewFailureReason, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}
