// Package ledger is the in-process stand-in for the authoritative asset
// transfer service: it moves a fixed amount of a named asset between two
// custodial accounts and fails atomically on insufficient balance. It also
// resolves (matchID, side) to the escrow-owned custody account, the analogue
// of the ledger's program-derived addressing.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/uhyunpark/darkswap/pkg/swap"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// custodySeed namespaces derived custody accounts, mirroring the on-ledger
// escrow seed.
var custodySeed = []byte("trade_escrow")

// BalanceStore persists individual balance cells. A nil store keeps the
// ledger memory-only (tests).
type BalanceStore interface {
	SaveBalance(asset, holder common.Address, amount uint64) error
}

// TokenLedger tracks balances per (asset, holder). All mutation is serialized
// under one lock so a transfer is a single atomic unit of work.
type TokenLedger struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]uint64 // asset -> holder -> amount
	store    BalanceStore
	log      *zap.SugaredLogger
}

func NewTokenLedger(store BalanceStore, log *zap.SugaredLogger) *TokenLedger {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &TokenLedger{
		balances: make(map[common.Address]map[common.Address]uint64),
		store:    store,
		log:      log,
	}
}

// Restore seeds one balance cell from persistence on boot.
func (l *TokenLedger) Restore(asset, holder common.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cell(asset)[holder] = amount
}

// Mint credits newly issued units to holder. Devnet/test affordance; the real
// service has no mint path.
func (l *TokenLedger) Mint(asset, holder common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cell(asset)[holder] += amount
	return l.persist(asset, holder)
}

// BalanceOf reads a single balance cell.
func (l *TokenLedger) BalanceOf(asset, holder common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[asset][holder]
}

// Transfer moves amount of asset from -> to. Fails with
// ErrInsufficientBalance before any mutation; on success both cells are
// updated under the same lock.
func (l *TokenLedger) Transfer(asset, from, to common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cells := l.cell(asset)
	if cells[from] < amount {
		return fmt.Errorf("%w: %s has %d of %s, need %d",
			ErrInsufficientBalance, from.Hex(), cells[from], asset.Hex(), amount)
	}

	cells[from] -= amount
	cells[to] += amount

	if err := l.persist(asset, from); err != nil {
		return err
	}
	if err := l.persist(asset, to); err != nil {
		return err
	}

	l.log.Debugw("asset_transfer",
		"asset", asset.Hex(), "from", from.Hex(), "to", to.Hex(), "amount", amount)
	return nil
}

// CustodyAddress derives the deterministic custody account for one escrow
// leg: keccak(seed || matchID_le || side), truncated to an address. Only the
// escrow manager moves funds out of it.
func (l *TokenLedger) CustodyAddress(matchID uint64, side swap.EscrowSide) common.Address {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], matchID)
	h := crypto.Keccak256(custodySeed, buf[:], []byte{byte(side)})
	return common.BytesToAddress(h[12:])
}

func (l *TokenLedger) cell(asset common.Address) map[common.Address]uint64 {
	c, ok := l.balances[asset]
	if !ok {
		c = make(map[common.Address]uint64)
		l.balances[asset] = c
	}
	return c
}

func (l *TokenLedger) persist(asset, holder common.Address) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.SaveBalance(asset, holder, l.balances[asset][holder]); err != nil {
		return fmt.Errorf("persist balance: %w", err)
	}
	return nil
}

var _ swap.AssetTransfers = (*TokenLedger)(nil)
