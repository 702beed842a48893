package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecover(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)

	digest := DepositDigest(42, signer.Address(), common.HexToAddress("0xaa"), 80)
	sig, err := signer.Sign(digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	recovered, err := RecoverActor(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
	assert.True(t, VerifyActor(signer.Address(), digest, sig))
}

func TestVerifyActorRejectsWrongSigner(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)
	imposter, err := GenerateKey()
	require.NoError(t, err)

	digest := WithdrawDigest(42, signer.Address(), common.HexToAddress("0xaa"))
	sig, err := imposter.Sign(digest)
	require.NoError(t, err)

	assert.False(t, VerifyActor(signer.Address(), digest, sig))
}

func TestRecoverActorRejectsBadSignature(t *testing.T) {
	digest := FinalizeDigest(7, common.HexToAddress("0x44"))

	_, err := RecoverActor(digest, make([]byte, 10))
	require.Error(t, err)
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)

	// The same key loads with or without the 0x prefix.
	hexKey := "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	s1, err := FromPrivateKeyHex(hexKey)
	require.NoError(t, err)
	s2, err := FromPrivateKeyHex(hexKey[2:])
	require.NoError(t, err)
	assert.Equal(t, s1.Address(), s2.Address())
	assert.NotEqual(t, signer.Address(), s1.Address())

	_, err = FromPrivateKeyHex("nonsense")
	require.Error(t, err)
}

func TestDigestsAreDomainSeparated(t *testing.T) {
	actor := common.HexToAddress("0x1111111111111111111111111111111111111111")
	asset := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	deposit := DepositDigest(42, actor, asset, 80)
	withdraw := WithdrawDigest(42, actor, asset)
	finalize := FinalizeDigest(42, actor)

	assert.NotEqual(t, deposit, withdraw)
	assert.NotEqual(t, deposit, finalize)
	assert.NotEqual(t, withdraw, finalize)

	// Every input perturbs the deposit digest.
	assert.NotEqual(t, deposit, DepositDigest(43, actor, asset, 80))
	assert.NotEqual(t, deposit, DepositDigest(42, asset, actor, 80))
	assert.NotEqual(t, deposit, DepositDigest(42, actor, asset, 81))
}
