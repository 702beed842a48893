package swap

import "errors"

// Every precondition violation fails the whole operation with a typed error
// so callers can branch on cause. No operation leaves partial mutation behind
// except the known settlement two-leg gap, which surfaces as
// ErrPartialSettlement (see Manager.Settle).
var (
	// Batch lifecycle misuse
	ErrBatchFinalized = errors.New("batch is already finalized")
	ErrBatchFull      = errors.New("batch is full")
	ErrBatchEmpty     = errors.New("batch is empty")

	// Escrow state machine misuse
	ErrTradeAlreadySettled = errors.New("trade is already settled")
	ErrAlreadyDeposited    = errors.New("already deposited")
	ErrMakerNotDeposited   = errors.New("maker has not deposited")
	ErrTakerNotDeposited   = errors.New("taker has not deposited")
	ErrNoDeposit           = errors.New("no deposit to withdraw")

	// Supplied asset or amount does not match the recorded terms
	ErrInvalidAmount = errors.New("invalid amount")

	// Actor is not the required principal for the operation
	ErrUnauthorized = errors.New("unauthorized")

	// Creation is idempotent-by-identifier: a second creation fails without
	// touching the existing record.
	ErrEscrowExists   = errors.New("trade escrow already exists")
	ErrBatchExists    = errors.New("batch escrow already exists")
	ErrEscrowNotFound = errors.New("trade escrow not found")
	ErrBatchNotFound  = errors.New("batch escrow not found")

	// Settlement moved the maker leg but the taker leg failed. The escrow is
	// left unsettled with one leg drained; no automatic recovery exists.
	ErrPartialSettlement = errors.New("partial settlement: first leg transferred, second leg failed")
)
