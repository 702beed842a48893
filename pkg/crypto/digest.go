package crypto

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain tags keep signatures from one action ever validating for another.
const (
	domainDeposit  = "darkswap/deposit"
	domainWithdraw = "darkswap/withdraw"
	domainFinalize = "darkswap/finalize"
)

func u64le(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// DepositDigest is the canonical digest an actor signs to deposit into a
// trade escrow.
func DepositDigest(matchID uint64, actor, asset common.Address, amount uint64) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(domainDeposit),
		u64le(matchID),
		actor.Bytes(),
		asset.Bytes(),
		u64le(amount),
	)
}

// WithdrawDigest is the canonical digest an actor signs to withdraw a
// deposit from a trade escrow.
func WithdrawDigest(matchID uint64, actor, asset common.Address) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(domainWithdraw),
		u64le(matchID),
		actor.Bytes(),
		asset.Bytes(),
	)
}

// FinalizeDigest is the canonical digest a batch authority signs to
// finalize a batch escrow.
func FinalizeDigest(batchID uint64, authority common.Address) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(domainFinalize),
		u64le(batchID),
		authority.Bytes(),
	)
}
