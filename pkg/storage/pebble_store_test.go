package storage

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/darkswap/pkg/coordinator"
	"github.com/uhyunpark/darkswap/pkg/swap"
)

func newStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEscrowRoundtrip(t *testing.T) {
	s := newStore(t)

	e := &swap.TradeEscrow{
		MatchID:        42,
		Maker:          common.HexToAddress("0x11"),
		Taker:          common.HexToAddress("0x22"),
		MakerAsset:     common.HexToAddress("0xaa"),
		TakerAsset:     common.HexToAddress("0xbb"),
		MakerAmount:    80,
		TakerAmount:    3600,
		MakerDeposited: true,
	}
	require.NoError(t, s.SaveEscrow(e))

	// A second save overwrites in place.
	e.TakerDeposited = true
	require.NoError(t, s.SaveEscrow(e))

	got, err := s.LoadEscrows()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e, got[0])
}

func TestEscrowsLoadInIDOrder(t *testing.T) {
	s := newStore(t)

	for _, id := range []uint64{9, 3, 300} {
		require.NoError(t, s.SaveEscrow(&swap.TradeEscrow{MatchID: id}))
	}

	got, err := s.LoadEscrows()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[0].MatchID)
	assert.Equal(t, uint64(9), got[1].MatchID)
	assert.Equal(t, uint64(300), got[2].MatchID)
}

func TestBatchRoundtrip(t *testing.T) {
	s := newStore(t)

	b := &swap.BatchEscrow{
		BatchID:     7,
		Authority:   common.HexToAddress("0x44"),
		OrderCount:  2,
		TotalVolume: 100,
		IsFinalized: true,
	}
	require.NoError(t, s.SaveBatch(b))

	got, err := s.LoadBatches()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b, got[0])
}

func TestDelegationRoundtrip(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.SaveDelegation(7, "er-devnet"))
	require.NoError(t, s.SaveDelegation(9, "er-mainnet"))
	require.NoError(t, s.DeleteDelegation(9))

	got, err := s.LoadDelegations()
	require.NoError(t, err)
	assert.Equal(t, map[uint64]string{7: "er-devnet"}, got)
}

func TestMatchEventRoundtrip(t *testing.T) {
	s := newStore(t)

	ev := &coordinator.MatchEvent{RequestID: 1}
	ev.IsMatch[0] = 0xab
	ev.Nonce[3] = 0xcd
	require.NoError(t, s.SaveMatchEvent(ev))

	got, err := s.LoadMatchEvents()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ev, got[0])
}

func TestBalanceRoundtrip(t *testing.T) {
	s := newStore(t)

	asset := common.HexToAddress("0xaa")
	alice := common.HexToAddress("0x11")
	bob := common.HexToAddress("0x22")

	require.NoError(t, s.SaveBalance(asset, alice, 70))
	require.NoError(t, s.SaveBalance(asset, bob, 30))
	require.NoError(t, s.SaveBalance(asset, bob, 31)) // overwrite

	got := make(map[common.Address]uint64)
	require.NoError(t, s.LoadBalances(func(a, holder common.Address, amount uint64) {
		require.Equal(t, asset, a)
		got[holder] = amount
	}))

	assert.Equal(t, map[common.Address]uint64{alice: 70, bob: 31}, got)
}

func TestStoreKeyspacesAreIsolated(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.SaveEscrow(&swap.TradeEscrow{MatchID: 1}))
	require.NoError(t, s.SaveBatch(&swap.BatchEscrow{BatchID: 1}))
	require.NoError(t, s.SaveMatchEvent(&coordinator.MatchEvent{RequestID: 1}))
	require.NoError(t, s.SaveDelegation(1, "er-devnet"))

	escs, err := s.LoadEscrows()
	require.NoError(t, err)
	assert.Len(t, escs, 1)

	bts, err := s.LoadBatches()
	require.NoError(t, err)
	assert.Len(t, bts, 1)

	evs, err := s.LoadMatchEvents()
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}
