package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/darkswap/pkg/swap"
)

var (
	asset = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestMintAndTransfer(t *testing.T) {
	l := NewTokenLedger(nil, nil)

	require.NoError(t, l.Mint(asset, alice, 100))
	require.NoError(t, l.Transfer(asset, alice, bob, 30))

	assert.Equal(t, uint64(70), l.BalanceOf(asset, alice))
	assert.Equal(t, uint64(30), l.BalanceOf(asset, bob))
}

func TestTransferInsufficientBalance(t *testing.T) {
	l := NewTokenLedger(nil, nil)
	require.NoError(t, l.Mint(asset, alice, 10))

	err := l.Transfer(asset, alice, bob, 11)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// Nothing moved.
	assert.Equal(t, uint64(10), l.BalanceOf(asset, alice))
	assert.Equal(t, uint64(0), l.BalanceOf(asset, bob))
}

func TestBalancesAreScopedPerAsset(t *testing.T) {
	l := NewTokenLedger(nil, nil)
	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	require.NoError(t, l.Mint(asset, alice, 5))
	assert.Equal(t, uint64(0), l.BalanceOf(other, alice))

	err := l.Transfer(other, alice, bob, 5)
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCustodyAddressDeterministic(t *testing.T) {
	l := NewTokenLedger(nil, nil)

	a := l.CustodyAddress(42, swap.MakerSide)
	assert.Equal(t, a, l.CustodyAddress(42, swap.MakerSide))

	// Distinct per side and per match.
	assert.NotEqual(t, a, l.CustodyAddress(42, swap.TakerSide))
	assert.NotEqual(t, a, l.CustodyAddress(43, swap.MakerSide))
}

func TestRestoreSeedsBalance(t *testing.T) {
	l := NewTokenLedger(nil, nil)

	l.Restore(asset, alice, 77)
	assert.Equal(t, uint64(77), l.BalanceOf(asset, alice))
}
