// Package swap holds the two settlement records of the system: the per-match
// TradeEscrow atomic-swap state machine and the per-batch BatchEscrow
// aggregate. Both are singly owned records addressed by their numeric
// identifier; all mutation goes through a manager that serializes access.
package swap

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// EscrowSide names one leg of a trade escrow.
type EscrowSide uint8

const (
	MakerSide EscrowSide = 0
	TakerSide EscrowSide = 1
)

func (s EscrowSide) String() string {
	if s == MakerSide {
		return "maker"
	}
	return "taker"
}

// AssetTransfers is the external asset transfer service. Transfer moves a
// fixed amount of a named asset between two custodial accounts and fails
// atomically on insufficient balance. CustodyAddress resolves the
// escrow-owned custody account for one leg of a match.
type AssetTransfers interface {
	Transfer(asset, from, to common.Address, amount uint64) error
	CustodyAddress(matchID uint64, side EscrowSide) common.Address
}

// EscrowStore persists escrow records. Save is called after every successful
// state transition; a nil store disables persistence (tests).
type EscrowStore interface {
	SaveEscrow(e *TradeEscrow) error
}

// TradeEscrow is the two-party atomic swap record for one confirmed match.
//
// Invariants: IsSettled implies both deposited flags; a deposited flag goes
// false->true exactly once and never reverts; the custody accounts hold
// exactly the deposited legs until settlement or withdrawal drains them.
type TradeEscrow struct {
	MatchID uint64 `json:"matchId"`

	Maker common.Address `json:"maker"`
	Taker common.Address `json:"taker"`

	MakerAsset common.Address `json:"makerAsset"`
	TakerAsset common.Address `json:"takerAsset"`

	MakerAmount uint64 `json:"makerAmount"`
	TakerAmount uint64 `json:"takerAmount"`

	MakerDeposited bool `json:"makerDeposited"`
	TakerDeposited bool `json:"takerDeposited"`
	IsSettled      bool `json:"isSettled"`
}

// Manager owns all trade escrows on this node. Operations are serialized per
// manager; the external ledger model guarantees no two mutations to the same
// escrow interleave.
type Manager struct {
	mu        sync.Mutex
	escrows   map[uint64]*TradeEscrow
	transfers AssetTransfers
	store     EscrowStore
	log       *zap.SugaredLogger
}

func NewManager(transfers AssetTransfers, store EscrowStore, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		escrows:   make(map[uint64]*TradeEscrow),
		transfers: transfers,
		store:     store,
		log:       log,
	}
}

// Restore loads a previously persisted escrow record into the manager.
// Used on boot; an already-known matchID is ignored.
func (m *Manager) Restore(e *TradeEscrow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.escrows[e.MatchID]; ok {
		return
	}
	cp := *e
	m.escrows[e.MatchID] = &cp
}

// Create initializes the escrow for a match. Terms are typically taken
// verbatim from a decrypted MatchResult. Creating twice with the same
// matchID fails with ErrEscrowExists and leaves the first record untouched.
func (m *Manager) Create(matchID uint64, maker, taker, makerAsset, takerAsset common.Address, makerAmount, takerAmount uint64) (*TradeEscrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.escrows[matchID]; ok {
		return nil, ErrEscrowExists
	}

	e := &TradeEscrow{
		MatchID:     matchID,
		Maker:       maker,
		Taker:       taker,
		MakerAsset:  makerAsset,
		TakerAsset:  takerAsset,
		MakerAmount: makerAmount,
		TakerAmount: takerAmount,
	}
	m.escrows[matchID] = e

	if err := m.persist(e); err != nil {
		delete(m.escrows, matchID)
		return nil, err
	}

	m.log.Infow("escrow_created",
		"match_id", matchID,
		"maker", maker.Hex(), "taker", taker.Hex(),
		"maker_amount", makerAmount, "taker_amount", takerAmount)

	out := *e
	return &out, nil
}

// Deposit moves the actor's leg into escrow custody and marks that side
// deposited. The transfer and the flag update are one atomic step: the flag
// is only set after the transfer succeeded.
func (m *Manager) Deposit(matchID uint64, actor, asset common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.escrows[matchID]
	if !ok {
		return ErrEscrowNotFound
	}
	if e.IsSettled {
		return ErrTradeAlreadySettled
	}

	var side EscrowSide
	switch actor {
	case e.Maker:
		side = MakerSide
		if e.MakerDeposited {
			return ErrAlreadyDeposited
		}
		if amount != e.MakerAmount || asset != e.MakerAsset {
			return ErrInvalidAmount
		}
	case e.Taker:
		side = TakerSide
		if e.TakerDeposited {
			return ErrAlreadyDeposited
		}
		if amount != e.TakerAmount || asset != e.TakerAsset {
			return ErrInvalidAmount
		}
	default:
		return ErrUnauthorized
	}

	custody := m.transfers.CustodyAddress(matchID, side)
	if err := m.transfers.Transfer(asset, actor, custody, amount); err != nil {
		return fmt.Errorf("deposit transfer: %w", err)
	}

	if side == MakerSide {
		e.MakerDeposited = true
	} else {
		e.TakerDeposited = true
	}

	// The transfer already moved funds into custody, so the flag stays set
	// even if persistence fails; it tracks the ledger, not the store.
	if err := m.persist(e); err != nil {
		return err
	}

	m.log.Infow("escrow_deposit", "match_id", matchID, "side", side.String(), "amount", amount)
	return nil
}

// Settle drains both custody legs to the counterparties and marks the escrow
// settled. Both transfers run under the escrow's own authority, not either
// party's.
//
// The two legs are independent asset movements. If the first leg fails
// nothing has moved and the error propagates cleanly. If the second leg
// fails after the first succeeded, the escrow is in a partially settled
// condition: the maker leg has been paid out but IsSettled stays false. That
// case returns ErrPartialSettlement so it is observable rather than silently
// treated as success; no recovery is attempted here.
func (m *Manager) Settle(matchID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.escrows[matchID]
	if !ok {
		return ErrEscrowNotFound
	}
	if e.IsSettled {
		return ErrTradeAlreadySettled
	}
	if !e.MakerDeposited {
		return ErrMakerNotDeposited
	}
	if !e.TakerDeposited {
		return ErrTakerNotDeposited
	}

	makerCustody := m.transfers.CustodyAddress(matchID, MakerSide)
	takerCustody := m.transfers.CustodyAddress(matchID, TakerSide)

	// Leg 1: maker's asset to the taker.
	if err := m.transfers.Transfer(e.MakerAsset, makerCustody, e.Taker, e.MakerAmount); err != nil {
		return fmt.Errorf("settle maker leg: %w", err)
	}

	// Leg 2: taker's asset to the maker.
	if err := m.transfers.Transfer(e.TakerAsset, takerCustody, e.Maker, e.TakerAmount); err != nil {
		m.log.Errorw("escrow_partial_settlement",
			"match_id", matchID, "err", err)
		return fmt.Errorf("%w: %w", ErrPartialSettlement, err)
	}

	e.IsSettled = true
	if err := m.persist(e); err != nil {
		return err
	}

	m.log.Infow("escrow_settled",
		"match_id", matchID,
		"maker_amount", e.MakerAmount, "taker_amount", e.TakerAmount)
	return nil
}

// Withdraw returns the actor's own deposited leg from custody, pre-settlement
// only. The supplied asset must match the side's recorded asset.
//
// Note: withdrawal does not clear the deposited flag. A later Settle will
// still see the flag set and assume funds are present. This mirrors the
// authoritative ledger program's behavior; see DESIGN.md for the open
// question around hardening it.
func (m *Manager) Withdraw(matchID uint64, actor, asset common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.escrows[matchID]
	if !ok {
		return ErrEscrowNotFound
	}
	if e.IsSettled {
		return ErrTradeAlreadySettled
	}

	var (
		side          EscrowSide
		deposited     bool
		amount        uint64
		expectedAsset common.Address
	)
	switch actor {
	case e.Maker:
		side, deposited, amount, expectedAsset = MakerSide, e.MakerDeposited, e.MakerAmount, e.MakerAsset
	case e.Taker:
		side, deposited, amount, expectedAsset = TakerSide, e.TakerDeposited, e.TakerAmount, e.TakerAsset
	default:
		return ErrUnauthorized
	}

	if !deposited {
		return ErrNoDeposit
	}
	if asset != expectedAsset {
		return ErrInvalidAmount
	}

	custody := m.transfers.CustodyAddress(matchID, side)
	if err := m.transfers.Transfer(asset, custody, actor, amount); err != nil {
		return fmt.Errorf("withdraw transfer: %w", err)
	}

	// The record itself is unchanged (the deposited flag stays set); the
	// write refreshes the stored copy after funds left custody.
	if err := m.persist(e); err != nil {
		return err
	}

	m.log.Infow("escrow_withdraw", "match_id", matchID, "side", side.String(), "amount", amount)
	return nil
}

// Get returns a copy of the escrow record.
func (m *Manager) Get(matchID uint64) (TradeEscrow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[matchID]
	if !ok {
		return TradeEscrow{}, false
	}
	return *e, true
}

func (m *Manager) persist(e *TradeEscrow) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SaveEscrow(e); err != nil {
		return fmt.Errorf("persist escrow %d: %w", e.MatchID, err)
	}
	return nil
}
