package mpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCiphers(t *testing.T) (*Cipher, *Cipher) {
	t.Helper()

	client, err := GenerateKeyPair()
	require.NoError(t, err)
	cluster, err := GenerateKeyPair()
	require.NoError(t, err)

	s1, err := SharedSecret(client.Private, cluster.Public)
	require.NoError(t, err)
	s2, err := SharedSecret(cluster.Private, client.Public)
	require.NoError(t, err)
	require.Equal(t, s1, s2, "both ends derive the same secret")

	return NewCipher(s1), NewCipher(s2)
}

func TestFieldEncryptionRoundtrip(t *testing.T) {
	enc, dec := testCiphers(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	for field, v := range []uint64{0, 1, 80, 1<<63 + 5} {
		ct := enc.EncryptU64(v, nonce, uint32(field))
		got, err := dec.DecryptU64(ct, nonce, uint32(field))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	ct := enc.EncryptU8(1, nonce, 9)
	got, err := dec.DecryptU8(ct, nonce, 9)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), got)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	enc, _ := testCiphers(t)
	_, wrong := testCiphers(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	ct := enc.EncryptU64(80, nonce, 0)
	_, err = wrong.DecryptU64(ct, nonce, 0)
	require.ErrorIs(t, err, ErrBadCiphertext)
}

func TestDecryptRejectsWrongField(t *testing.T) {
	enc, dec := testCiphers(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	ct := enc.EncryptU64(80, nonce, 0)
	_, err = dec.DecryptU64(ct, nonce, 1)
	require.ErrorIs(t, err, ErrBadCiphertext)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	enc, dec := testCiphers(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	ct := enc.EncryptU64(80, nonce, 0)
	ct[12] ^= 0xff // flip padding bits
	_, err = dec.DecryptU64(ct, nonce, 0)
	require.ErrorIs(t, err, ErrBadCiphertext)
}

func TestDecryptU8RejectsWideValue(t *testing.T) {
	enc, dec := testCiphers(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	ct := enc.EncryptU64(300, nonce, 0)
	_, err = dec.DecryptU8(ct, nonce, 0)
	require.ErrorIs(t, err, ErrBadCiphertext)
}

func TestRequestAndResponseKeystreamsDiffer(t *testing.T) {
	enc, dec := testCiphers(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	req := enc.EncryptU64(80, nonce, 0)
	resp := enc.EncryptResult(80, nonce, 0)
	assert.NotEqual(t, req, resp)

	// A response ciphertext does not decrypt on the request path.
	_, err = dec.DecryptU64(resp, nonce, 0)
	require.ErrorIs(t, err, ErrBadCiphertext)

	got, err := dec.DecryptResult(resp, nonce, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), got)
}

func TestSharedSecretRejectsLowOrderKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = SharedSecret(kp.Private, [32]byte{})
	require.ErrorIs(t, err, ErrBadPublicKey)
}
