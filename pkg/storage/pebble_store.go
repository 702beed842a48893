// Package storage persists the node's settlement state in pebble: escrow and
// batch records, published match events, ledger balances, and the batch
// delegation map. Values are JSON except balances, which are fixed-width
// integers.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/darkswap/pkg/coordinator"
	"github.com/uhyunpark/darkswap/pkg/swap"
)

type PebbleStore struct {
	db *pebble.DB
}

var (
	_ swap.EscrowStore       = (*PebbleStore)(nil)
	_ swap.BatchStore        = (*PebbleStore)(nil)
	_ coordinator.EventStore = (*PebbleStore)(nil)
)

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// ============================================================================
// Trade escrows
// ============================================================================

func (s *PebbleStore) SaveEscrow(e *swap.TradeEscrow) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal escrow: %w", err)
	}
	if err := s.db.Set(escrowKey(e.MatchID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save escrow: %w", err)
	}
	return nil
}

// LoadEscrows iterates all persisted escrow records, oldest id first.
func (s *PebbleStore) LoadEscrows() ([]*swap.TradeEscrow, error) {
	var out []*swap.TradeEscrow
	err := s.scan([]byte(prefixEscrow), func(_, val []byte) error {
		var e swap.TradeEscrow
		if err := json.Unmarshal(val, &e); err != nil {
			return fmt.Errorf("unmarshal escrow: %w", err)
		}
		out = append(out, &e)
		return nil
	})
	return out, err
}

// ============================================================================
// Batch escrows + delegation map
// ============================================================================

func (s *PebbleStore) SaveBatch(b *swap.BatchEscrow) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if err := s.db.Set(batchKey(b.BatchID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	return nil
}

func (s *PebbleStore) LoadBatches() ([]*swap.BatchEscrow, error) {
	var out []*swap.BatchEscrow
	err := s.scan([]byte(prefixBatch), func(_, val []byte) error {
		var b swap.BatchEscrow
		if err := json.Unmarshal(val, &b); err != nil {
			return fmt.Errorf("unmarshal batch: %w", err)
		}
		out = append(out, &b)
		return nil
	})
	return out, err
}

func (s *PebbleStore) SaveDelegation(batchID uint64, venueID string) error {
	if err := s.db.Set(delegationKey(batchID), []byte(venueID), pebble.Sync); err != nil {
		return fmt.Errorf("save delegation: %w", err)
	}
	return nil
}

func (s *PebbleStore) DeleteDelegation(batchID uint64) error {
	if err := s.db.Delete(delegationKey(batchID), pebble.Sync); err != nil {
		return fmt.Errorf("delete delegation: %w", err)
	}
	return nil
}

// LoadDelegations returns batchID → venueID for every delegated batch.
func (s *PebbleStore) LoadDelegations() (map[uint64]string, error) {
	out := make(map[uint64]string)
	err := s.scan([]byte(prefixDelegation), func(key, val []byte) error {
		id := binary.BigEndian.Uint64(key[len(prefixDelegation):])
		out[id] = string(val)
		return nil
	})
	return out, err
}

// ============================================================================
// Match events
// ============================================================================

func (s *PebbleStore) SaveMatchEvent(ev *coordinator.MatchEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal match event: %w", err)
	}
	// Match events are append-only history; NoSync keeps the publish path
	// off the fsync critical section, same treatment as the trade history.
	if err := s.db.Set(matchEventKey(ev.RequestID), data, pebble.NoSync); err != nil {
		return fmt.Errorf("save match event: %w", err)
	}
	return nil
}

func (s *PebbleStore) LoadMatchEvents() ([]*coordinator.MatchEvent, error) {
	var out []*coordinator.MatchEvent
	err := s.scan([]byte(prefixMatchEvent), func(_, val []byte) error {
		var ev coordinator.MatchEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return fmt.Errorf("unmarshal match event: %w", err)
		}
		out = append(out, &ev)
		return nil
	})
	return out, err
}

// ============================================================================
// Ledger balances
// ============================================================================

func (s *PebbleStore) SaveBalance(asset, holder common.Address, amount uint64) error {
	var val [8]byte
	binary.BigEndian.PutUint64(val[:], amount)
	if err := s.db.Set(balanceKey(asset, holder), val[:], pebble.Sync); err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	return nil
}

// LoadBalances streams every persisted balance cell into fn.
func (s *PebbleStore) LoadBalances(fn func(asset, holder common.Address, amount uint64)) error {
	return s.scan([]byte(prefixBalance), func(key, val []byte) error {
		parts := strings.Split(string(key[len(prefixBalance):]), ":")
		if len(parts) != 2 || len(val) != 8 {
			return nil // skip malformed cells
		}
		fn(common.HexToAddress(parts[0]), common.HexToAddress(parts[1]), binary.BigEndian.Uint64(val))
		return nil
	})
}

// ============================================================================
// Helpers
// ============================================================================

func (s *PebbleStore) scan(prefix []byte, fn func(key, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
