package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//   esc:<matchID>             → TradeEscrow
//   bat:<batchID>             → BatchEscrow
//   mev:<requestID>           → MatchEvent
//   bal:<asset>:<holder>      → balance (8-byte big-endian)
//   del:<batchID>             → venue id the batch is delegated to
//
// Numeric ids are 8-byte big-endian so prefix scans iterate in id order.

const (
	prefixEscrow     = "esc:"
	prefixBatch      = "bat:"
	prefixMatchEvent = "mev:"
	prefixBalance    = "bal:"
	prefixDelegation = "del:"
)

func u64Key(prefix string, id uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], id)
	return k
}

func escrowKey(matchID uint64) []byte     { return u64Key(prefixEscrow, matchID) }
func batchKey(batchID uint64) []byte      { return u64Key(prefixBatch, batchID) }
func matchEventKey(reqID uint64) []byte   { return u64Key(prefixMatchEvent, reqID) }
func delegationKey(batchID uint64) []byte { return u64Key(prefixDelegation, batchID) }

// balanceKey: "bal:{asset}:{holder}"
func balanceKey(asset, holder common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, asset.Hex(), holder.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
