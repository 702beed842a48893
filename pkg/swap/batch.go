package swap

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// BatchCapacity bounds how many matched orders a batch aggregates.
const BatchCapacity = 100

// BatchEscrow accumulates confirmed matches for cheap bulk processing. It is
// a running aggregate, not a ledger: no per-order record is retained.
//
// Once finalized the fields are immutable; the remaining lifecycle
// (delegate to a fast venue, commit back) moves the record's location of
// authoritative mutation without changing any field. That lifecycle lives in
// pkg/venue.
type BatchEscrow struct {
	BatchID     uint64         `json:"batchId"`
	Authority   common.Address `json:"authority"`
	OrderCount  uint32         `json:"orderCount"`
	TotalVolume uint64         `json:"totalVolume"`
	IsFinalized bool           `json:"isFinalized"`
}

// BatchStore persists batch records.
type BatchStore interface {
	SaveBatch(b *BatchEscrow) error
}

// BatchManager owns all batch escrows on this node.
type BatchManager struct {
	mu      sync.Mutex
	batches map[uint64]*BatchEscrow
	store   BatchStore
	log     *zap.SugaredLogger
}

func NewBatchManager(store BatchStore, log *zap.SugaredLogger) *BatchManager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &BatchManager{
		batches: make(map[uint64]*BatchEscrow),
		store:   store,
		log:     log,
	}
}

// Restore loads a persisted batch record on boot. Known batchIDs are ignored.
func (m *BatchManager) Restore(b *BatchEscrow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[b.BatchID]; ok {
		return
	}
	cp := *b
	m.batches[b.BatchID] = &cp
}

// Create initializes an empty batch. A second creation with the same batchID
// fails with ErrBatchExists and does not touch the existing record.
func (m *BatchManager) Create(batchID uint64, authority common.Address) (*BatchEscrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.batches[batchID]; ok {
		return nil, ErrBatchExists
	}

	b := &BatchEscrow{BatchID: batchID, Authority: authority}
	m.batches[batchID] = b

	if err := m.persist(b); err != nil {
		delete(m.batches, batchID)
		return nil, err
	}

	m.log.Infow("batch_created", "batch_id", batchID, "authority", authority.Hex())

	out := *b
	return &out, nil
}

// AddOrder folds one matched order into the aggregate. Price is recorded in
// the log stream only; the batch keeps count and volume.
func (m *BatchManager) AddOrder(batchID uint64, amount, price uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	if b.IsFinalized {
		return ErrBatchFinalized
	}
	if b.OrderCount >= BatchCapacity {
		return ErrBatchFull
	}

	b.OrderCount++
	b.TotalVolume += amount

	if err := m.persist(b); err != nil {
		b.OrderCount--
		b.TotalVolume -= amount
		return err
	}

	m.log.Infow("batch_order_added",
		"batch_id", batchID, "amount", amount, "price", price,
		"order_count", b.OrderCount, "total_volume", b.TotalVolume)
	return nil
}

// Finalize freezes the batch. Only the batch authority may finalize, and an
// empty batch cannot be finalized.
func (m *BatchManager) Finalize(batchID uint64, caller common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	if b.IsFinalized {
		return ErrBatchFinalized
	}
	if b.OrderCount == 0 {
		return ErrBatchEmpty
	}
	if caller != b.Authority {
		return ErrUnauthorized
	}

	b.IsFinalized = true
	if err := m.persist(b); err != nil {
		b.IsFinalized = false
		return err
	}

	m.log.Infow("batch_finalized",
		"batch_id", batchID, "order_count", b.OrderCount, "total_volume", b.TotalVolume)
	return nil
}

// Get returns a copy of the batch record.
func (m *BatchManager) Get(batchID uint64) (BatchEscrow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return BatchEscrow{}, false
	}
	return *b, true
}

func (m *BatchManager) persist(b *BatchEscrow) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SaveBatch(b); err != nil {
		return fmt.Errorf("persist batch %d: %w", b.BatchID, err)
	}
	return nil
}
