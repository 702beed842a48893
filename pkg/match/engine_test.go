package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCrossingOrders(t *testing.T) {
	bid := Order{Asset: 1, Side: Buy, Amount: 100, Price: 50, TraderID: 11}
	ask := Order{Asset: 1, Side: Sell, Amount: 80, Price: 45, TraderID: 22}

	res := Evaluate(bid, ask)

	require.True(t, res.IsMatch)
	assert.Equal(t, uint64(80), res.MatchedAmount, "matched amount is the smaller side")
	assert.Equal(t, uint64(45), res.AgreedPrice, "agreed price is the ask price")
}

func TestEvaluateTruthTable(t *testing.T) {
	base := func() (Order, Order) {
		bid := Order{Asset: 1, Side: Buy, Amount: 100, Price: 50}
		ask := Order{Asset: 1, Side: Sell, Amount: 80, Price: 45}
		return bid, ask
	}

	cases := []struct {
		name   string
		mutate func(bid, ask *Order)
		match  bool
	}{
		{"crossing", func(bid, ask *Order) {}, true},
		{"equal prices cross", func(bid, ask *Order) { bid.Price = 45 }, true},
		{"bid below ask", func(bid, ask *Order) { bid.Price = 44 }, false},
		{"different assets", func(bid, ask *Order) { ask.Asset = 2 }, false},
		{"bid on sell side", func(bid, ask *Order) { bid.Side = Sell }, false},
		{"ask on buy side", func(bid, ask *Order) { ask.Side = Buy }, false},
		{"both wrong side", func(bid, ask *Order) { bid.Side = Sell; ask.Side = Buy }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bid, ask := base()
			tc.mutate(&bid, &ask)

			res := Evaluate(bid, ask)

			assert.Equal(t, tc.match, res.IsMatch)
			// Quantities are computed unconditionally, match or not.
			assert.Equal(t, min64(bid.Amount, ask.Amount), res.MatchedAmount)
			assert.Equal(t, ask.Price, res.AgreedPrice)
		})
	}
}

func TestEvaluateIgnoresExpiry(t *testing.T) {
	// Expiry enforcement lives on the client path; the decision itself never
	// reads the field.
	bid := Order{Asset: 1, Side: Buy, Amount: 100, Price: 50, Expiry: 1}
	ask := Order{Asset: 1, Side: Sell, Amount: 80, Price: 45, Expiry: 1}

	res := Evaluate(bid, ask)
	assert.True(t, res.IsMatch)
}

func TestEvaluateMatchedAmountPicksSmallerSide(t *testing.T) {
	bid := Order{Asset: 7, Side: Buy, Amount: 30, Price: 10}
	ask := Order{Asset: 7, Side: Sell, Amount: 90, Price: 10}

	res := Evaluate(bid, ask)
	require.True(t, res.IsMatch)
	assert.Equal(t, uint64(30), res.MatchedAmount)
}

func TestSum(t *testing.T) {
	assert.Equal(t, uint16(0), Sum(0, 0))
	assert.Equal(t, uint16(510), Sum(255, 255))
	assert.Equal(t, uint16(100), Sum(58, 42))
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
