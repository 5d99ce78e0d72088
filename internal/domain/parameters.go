package domain

// Parameters is the threshold configuration of a tracker. All values are percentages.
type Parameters struct {
	SpreadPercentage       float64 `json:"spreadPercentage" yaml:"spread_percentage" toml:"spread_percentage"`
	TargetProfitPercentage float64 `json:"targetProfitPercentage" yaml:"target_profit_percentage" toml:"target_profit_percentage"`
	TrailingSellPercentage float64 `json:"trailingSellPercentage" yaml:"trailing_sell_percentage" toml:"trailing_sell_percentage"`
	DropBuyPercentage      float64 `json:"dropBuyPercentage" yaml:"drop_buy_percentage" toml:"drop_buy_percentage"`
	TrailingBuyPercentage  float64 `json:"trailingBuyPercentage" yaml:"trailing_buy_percentage" toml:"trailing_buy_percentage"`
	ReentryLimitPercentage float64 `json:"reentryLimitPercentage" yaml:"reentry_limit_percentage" toml:"reentry_limit_percentage"`
	CoolOffPercentage      float64 `json:"coolOffPercentage" yaml:"cool_off_percentage" toml:"cool_off_percentage"`
}

// DefaultParameters returns the thresholds used when a profile leaves them unset.
func DefaultParameters() Parameters {
	return Parameters{
		SpreadPercentage:       1,
		TargetProfitPercentage: 1,
		TrailingSellPercentage: 0.5,
		DropBuyPercentage:      2.5,
		TrailingBuyPercentage:  0.1,
		ReentryLimitPercentage: 1,
		CoolOffPercentage:      5,
	}
}

// WithDefaults fills every zero threshold with its default value.
func (p Parameters) WithDefaults() Parameters {
	d := DefaultParameters()
	fill := func(v *float64, def float64) {
		if *v == 0 {
			*v = def
		}
	}
	fill(&p.SpreadPercentage, d.SpreadPercentage)
	fill(&p.TargetProfitPercentage, d.TargetProfitPercentage)
	fill(&p.TrailingSellPercentage, d.TrailingSellPercentage)
	fill(&p.DropBuyPercentage, d.DropBuyPercentage)
	fill(&p.TrailingBuyPercentage, d.TrailingBuyPercentage)
	fill(&p.ReentryLimitPercentage, d.ReentryLimitPercentage)
	fill(&p.CoolOffPercentage, d.CoolOffPercentage)
	return p
}
