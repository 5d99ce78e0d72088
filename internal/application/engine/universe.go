package engine

import (
	"sort"
	"strings"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

const (
	statusOnline = "online"
	productSpot  = "SPOT"
)

// Universe selects the tradable products of a profile.
type Universe struct {
	QuoteCurrency string
	MinVolume24h  float64
	Whitelist     []string // product ids; empty means every product
	Blacklist     []string // product ids or base currencies
}

// Eligible filters products to the tradable universe, highest 24h volume first.
func (u Universe) Eligible(products []domain.Product) []domain.Product {
	white := toSet(u.Whitelist)
	black := toSet(u.Blacklist)

	var out []domain.Product
	for _, p := range products {
		switch {
		case !strings.EqualFold(p.QuoteCurrency, u.QuoteCurrency):
		case p.TradingDisabled, p.IsDisabled, p.ViewOnly:
		case !strings.EqualFold(p.ProductType, productSpot):
		case !strings.EqualFold(p.Status, statusOnline):
		case p.Volume24h < u.MinVolume24h:
		case len(white) > 0 && !white[strings.ToUpper(p.ProductID)]:
		case black[strings.ToUpper(p.ProductID)], black[strings.ToUpper(p.BaseCurrency)]:
		default:
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Volume24h > out[j].Volume24h
	})
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			set[strings.ToUpper(s)] = true
		}
	}
	return set
}
