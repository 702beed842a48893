// Package venue tracks where each batch escrow's authoritative copy lives.
// Delegation hands a batch record to a faster execution venue; commit writes
// its state back to the authoritative store; commit-and-undelegate also
// returns ownership. None of these change a field of the record itself;
// they are custody transfers, exchanged with the venue operator as explicit
// messages. The batch entities never learn where their authoritative copy
// currently is.
package venue

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/darkswap/pkg/swap"
)

var (
	ErrAlreadyDelegated = errors.New("batch is already delegated")
	ErrNotDelegated     = errors.New("batch is not delegated")
)

// Action names one custody-transfer message.
type Action string

const (
	ActionDelegate         Action = "delegate"
	ActionCommit           Action = "commit"
	ActionCommitUndelegate Action = "commit_undelegate"
)

// DelegationMsg is the ownership-transfer message exchanged with the venue
// operator.
type DelegationMsg struct {
	BatchID uint64 `json:"batchId"`
	Action  Action `json:"action"`
	VenueID string `json:"venueId"`
}

// Broadcaster delivers delegation messages to the venue operator. A nil
// broadcaster keeps the lifecycle local (tests, single-node devnet).
type Broadcaster interface {
	BroadcastDelegation(msg DelegationMsg)
}

// DelegationStore persists the delegation map across restarts.
type DelegationStore interface {
	SaveDelegation(batchID uint64, venueID string) error
	DeleteDelegation(batchID uint64) error
}

// Registry is the node-side view of batch custody.
type Registry struct {
	mu     sync.Mutex
	owners map[uint64]string // batchID → venueID; absent = base layer

	batches     *swap.BatchManager
	store       DelegationStore
	committer   swap.BatchStore
	broadcaster Broadcaster
	venueID     string
	log         *zap.SugaredLogger
}

func NewRegistry(batches *swap.BatchManager, store DelegationStore, committer swap.BatchStore, venueID string, log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{
		owners:    make(map[uint64]string),
		batches:   batches,
		store:     store,
		committer: committer,
		venueID:   venueID,
		log:       log,
	}
}

// SetBroadcaster wires the delegation message channel. Call before traffic.
func (r *Registry) SetBroadcaster(b Broadcaster) { r.broadcaster = b }

// Restore reinstates a persisted delegation on boot.
func (r *Registry) Restore(batchID uint64, venueID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[batchID] = venueID
}

// Delegate hands the batch to the configured venue.
func (r *Registry) Delegate(batchID uint64) error {
	if _, ok := r.batches.Get(batchID); !ok {
		return swap.ErrBatchNotFound
	}

	r.mu.Lock()
	if _, ok := r.owners[batchID]; ok {
		r.mu.Unlock()
		return ErrAlreadyDelegated
	}
	r.owners[batchID] = r.venueID
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SaveDelegation(batchID, r.venueID); err != nil {
			r.mu.Lock()
			delete(r.owners, batchID)
			r.mu.Unlock()
			return fmt.Errorf("persist delegation: %w", err)
		}
	}

	r.send(DelegationMsg{BatchID: batchID, Action: ActionDelegate, VenueID: r.venueID})
	r.log.Infow("batch_delegated", "batch_id", batchID, "venue", r.venueID)
	return nil
}

// Commit writes the batch's current state back to the authoritative store.
// Ownership stays with the venue.
func (r *Registry) Commit(batchID uint64) error {
	return r.commit(batchID, false)
}

// CommitAndUndelegate commits and returns ownership to the base layer.
func (r *Registry) CommitAndUndelegate(batchID uint64) error {
	return r.commit(batchID, true)
}

func (r *Registry) commit(batchID uint64, undelegate bool) error {
	b, ok := r.batches.Get(batchID)
	if !ok {
		return swap.ErrBatchNotFound
	}

	r.mu.Lock()
	venueID, delegated := r.owners[batchID]
	r.mu.Unlock()
	if !delegated {
		return ErrNotDelegated
	}

	if r.committer != nil {
		if err := r.committer.SaveBatch(&b); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}

	action := ActionCommit
	if undelegate {
		action = ActionCommitUndelegate
		r.mu.Lock()
		delete(r.owners, batchID)
		r.mu.Unlock()
		if r.store != nil {
			if err := r.store.DeleteDelegation(batchID); err != nil {
				return fmt.Errorf("clear delegation: %w", err)
			}
		}
	}

	r.send(DelegationMsg{BatchID: batchID, Action: action, VenueID: venueID})
	r.log.Infow("batch_committed",
		"batch_id", batchID, "undelegated", undelegate,
		"order_count", b.OrderCount, "total_volume", b.TotalVolume)
	return nil
}

// Owner reports which venue holds the batch, if any.
func (r *Registry) Owner(batchID uint64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.owners[batchID]
	return v, ok
}

func (r *Registry) send(msg DelegationMsg) {
	if r.broadcaster != nil {
		r.broadcaster.BroadcastDelegation(msg)
	}
}
