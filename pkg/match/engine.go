// Package match implements the pairwise bid/ask compatibility decision that
// runs inside the confidential computation context. It is pure and
// deterministic: the cluster decrypts two orders, calls Evaluate, and
// re-encrypts the result for the requester. Nothing here touches custody.
package match

// Side of an order. The wire encoding is a single byte: 0 = buy, 1 = sell.
type Side uint8

const (
	Buy  Side = 0
	Sell Side = 1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Order is the plaintext view of one encrypted OTC order. Asset and TraderID
// are 64-bit reductions of the on-ledger identifiers; inside the evaluation
// context only equality on them matters.
type Order struct {
	Asset    uint64 // asset identifier (token mint reduced to u64)
	Side     Side
	Amount   uint64 // quantity in base units
	Price    uint64 // limit price in quote base units
	Expiry   uint64 // unix seconds; NOT checked here, see Evaluate
	TraderID uint64
}

// MatchResult is produced exactly once per matching request and is immutable
// once emitted.
type MatchResult struct {
	IsMatch       bool
	MatchedAmount uint64
	AgreedPrice   uint64
}

// Evaluate decides whether a bid/ask pair is compatible.
//
// A match requires the same asset, bid on the buy side and ask on the sell
// side, and bid.Price >= ask.Price. MatchedAmount and AgreedPrice are
// computed unconditionally so the circuit shape does not depend on the
// verdict; they are meaningful only when IsMatch is true. The agreed price is
// always the ask (resting/maker) price.
//
// Expiry is deliberately not checked: expiry enforcement happens on the
// client path before submission (see cmd/encrypt-order).
func Evaluate(bid, ask Order) MatchResult {
	sameAsset := bid.Asset == ask.Asset
	oppositeSides := bid.Side == Buy && ask.Side == Sell
	priceCompatible := bid.Price >= ask.Price

	matched := bid.Amount
	if ask.Amount < matched {
		matched = ask.Amount
	}

	return MatchResult{
		IsMatch:       sameAsset && oppositeSides && priceCompatible,
		MatchedAmount: matched,
		AgreedPrice:   ask.Price,
	}
}

// Sum is the legacy two-value addition circuit kept around from early cluster
// bring-up. It is still registered so the computation pipeline can be
// exercised without an order pair.
func Sum(a, b uint8) uint16 {
	return uint16(a) + uint16(b)
}
