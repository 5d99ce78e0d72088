package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

func TestMaxAllocation(t *testing.T) {
	trackers := []*domain.TrackerState{
		{AutoBuy: true, HeldValueUSD: 100},
		{AutoBuy: true, HeldValueUSD: 100},
		{AutoBuy: false, HeldValueUSD: 500},
	}

	assert.InDelta(t, 540, MaxAllocation(1000, trackers, 10, 0), 1e-9)
	assert.InDelta(t, 300, MaxAllocation(1000, trackers, 10, 300), 1e-9)
}

func TestMaxAllocation_NoActiveTrackers(t *testing.T) {
	trackers := []*domain.TrackerState{{AutoBuy: false}}
	assert.InDelta(t, 450, MaxAllocation(500, trackers, 10, 0), 1e-9)
	assert.Zero(t, MaxAllocation(0, nil, 0, 100))
}
