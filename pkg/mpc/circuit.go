package mpc

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/darkswap/pkg/match"
)

// A Definition is one registered deterministic function. It receives the
// request cipher (already bound to the requester's shared secret), the
// request nonce, and the encrypted argument vector; it returns the encrypted
// result fields. Any error aborts the computation.
type Definition func(c *Cipher, nonce [NonceSize]byte, args [][CiphertextSize]byte) ([][CiphertextSize]byte, error)

var ErrArgCount = errors.New("wrong number of encrypted arguments")

// Definition names, matching the registered computation definitions of the
// external service.
const (
	DefMatchOrders = "match_orders"
	DefAddTogether = "add_together"
)

// MatchOrdersArgs is the size of the match_orders argument vector: six
// fields per order, bid first.
const MatchOrdersArgs = 12

// Field indexes into the match_orders argument vector.
const (
	fieldAsset = iota
	fieldSide
	fieldAmount
	fieldPrice
	fieldExpiry
	fieldTraderID
	orderFields
)

// MatchOrders decrypts a bid/ask pair, runs the compatibility decision, and
// re-encrypts the three result fields (is_match, matched_amount,
// agreed_price) for the requester.
func MatchOrders(c *Cipher, nonce [NonceSize]byte, args [][CiphertextSize]byte) ([][CiphertextSize]byte, error) {
	if len(args) != MatchOrdersArgs {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrArgCount, len(args), MatchOrdersArgs)
	}

	bid, err := decryptOrder(c, nonce, args[:orderFields], 0)
	if err != nil {
		return nil, fmt.Errorf("bid: %w", err)
	}
	ask, err := decryptOrder(c, nonce, args[orderFields:], orderFields)
	if err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}

	res := match.Evaluate(bid, ask)

	isMatch := uint64(0)
	if res.IsMatch {
		isMatch = 1
	}

	return [][CiphertextSize]byte{
		c.EncryptResult(isMatch, nonce, 0),
		c.EncryptResult(res.MatchedAmount, nonce, 1),
		c.EncryptResult(res.AgreedPrice, nonce, 2),
	}, nil
}

func decryptOrder(c *Cipher, nonce [NonceSize]byte, args [][CiphertextSize]byte, base uint32) (match.Order, error) {
	var o match.Order
	var err error

	if o.Asset, err = c.DecryptU64(args[fieldAsset], nonce, base+fieldAsset); err != nil {
		return o, err
	}
	side, err := c.DecryptU8(args[fieldSide], nonce, base+fieldSide)
	if err != nil {
		return o, err
	}
	o.Side = match.Side(side)
	if o.Amount, err = c.DecryptU64(args[fieldAmount], nonce, base+fieldAmount); err != nil {
		return o, err
	}
	if o.Price, err = c.DecryptU64(args[fieldPrice], nonce, base+fieldPrice); err != nil {
		return o, err
	}
	if o.Expiry, err = c.DecryptU64(args[fieldExpiry], nonce, base+fieldExpiry); err != nil {
		return o, err
	}
	if o.TraderID, err = c.DecryptU64(args[fieldTraderID], nonce, base+fieldTraderID); err != nil {
		return o, err
	}
	return o, nil
}

// EncryptOrder builds the six request ciphertexts for one order. base is 0
// for the bid and 6 for the ask, matching the argument vector layout.
func EncryptOrder(c *Cipher, o match.Order, nonce [NonceSize]byte, base uint32) [orderFields][CiphertextSize]byte {
	return [orderFields][CiphertextSize]byte{
		c.EncryptU64(o.Asset, nonce, base+fieldAsset),
		c.EncryptU8(uint8(o.Side), nonce, base+fieldSide),
		c.EncryptU64(o.Amount, nonce, base+fieldAmount),
		c.EncryptU64(o.Price, nonce, base+fieldPrice),
		c.EncryptU64(o.Expiry, nonce, base+fieldExpiry),
		c.EncryptU64(o.TraderID, nonce, base+fieldTraderID),
	}
}

// AskArgBase is the field-index offset of the ask order in the match_orders
// argument vector.
const AskArgBase = orderFields

// AddTogether is the legacy two-value sum circuit kept from cluster
// bring-up; it exercises the full queue/execute/callback path in tests.
func AddTogether(c *Cipher, nonce [NonceSize]byte, args [][CiphertextSize]byte) ([][CiphertextSize]byte, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: got %d, want 2", ErrArgCount, len(args))
	}
	a, err := c.DecryptU8(args[0], nonce, 0)
	if err != nil {
		return nil, err
	}
	b, err := c.DecryptU8(args[1], nonce, 1)
	if err != nil {
		return nil, err
	}
	sum := match.Sum(a, b)
	return [][CiphertextSize]byte{c.EncryptResult(uint64(sum), nonce, 0)}, nil
}
