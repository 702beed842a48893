package mpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/darkswap/pkg/match"
)

// clusterHarness wires a cluster with a channel-backed callback and a client
// cipher bound to the cluster key.
type clusterHarness struct {
	cluster *Cluster
	cipher  *Cipher
	client  KeyPair
	outputs chan Output
}

func newClusterHarness(t *testing.T) *clusterHarness {
	t.Helper()

	cluster, err := NewCluster(nil)
	require.NoError(t, err)

	client, err := GenerateKeyPair()
	require.NoError(t, err)
	shared, err := SharedSecret(client.Private, cluster.PublicKey())
	require.NoError(t, err)

	h := &clusterHarness{
		cluster: cluster,
		cipher:  NewCipher(shared),
		client:  client,
		outputs: make(chan Output, 16),
	}
	cluster.SetCallback(func(out Output) { h.outputs <- out })
	return h
}

func (h *clusterHarness) wait(t *testing.T) Output {
	t.Helper()
	select {
	case out := <-h.outputs:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("no callback delivered")
		return Output{}
	}
}

func matchArgs(c *Cipher, nonce [NonceSize]byte, bid, ask match.Order) [][CiphertextSize]byte {
	encBid := EncryptOrder(c, bid, nonce, 0)
	encAsk := EncryptOrder(c, ask, nonce, AskArgBase)

	args := make([][CiphertextSize]byte, 0, MatchOrdersArgs)
	args = append(args, encBid[:]...)
	args = append(args, encAsk[:]...)
	return args
}

func TestMatchOrdersEndToEnd(t *testing.T) {
	h := newClusterHarness(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	bid := match.Order{Asset: 1, Side: match.Buy, Amount: 100, Price: 50, TraderID: 11}
	ask := match.Order{Asset: 1, Side: match.Sell, Amount: 80, Price: 45, TraderID: 22}

	err = h.cluster.Queue(1, DefMatchOrders, h.client.Public, nonce, matchArgs(h.cipher, nonce, bid, ask))
	require.NoError(t, err)

	out := h.wait(t)
	require.False(t, out.Aborted)
	require.Equal(t, uint64(1), out.RequestID)
	require.Len(t, out.Ciphertexts, 3)
	assert.Equal(t, nonce, out.Nonce)

	isMatch, err := h.cipher.DecryptResult(out.Ciphertexts[0], out.Nonce, 0)
	require.NoError(t, err)
	matched, err := h.cipher.DecryptResult(out.Ciphertexts[1], out.Nonce, 1)
	require.NoError(t, err)
	price, err := h.cipher.DecryptResult(out.Ciphertexts[2], out.Nonce, 2)
	require.NoError(t, err)

	want := match.Evaluate(bid, ask)
	require.True(t, want.IsMatch)
	assert.Equal(t, uint64(1), isMatch)
	assert.Equal(t, want.MatchedAmount, matched)
	assert.Equal(t, want.AgreedPrice, price)
}

func TestMatchOrdersNoMatchStillReturnsQuantities(t *testing.T) {
	h := newClusterHarness(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	bid := match.Order{Asset: 1, Side: match.Buy, Amount: 100, Price: 50}
	ask := match.Order{Asset: 2, Side: match.Sell, Amount: 80, Price: 45}

	require.NoError(t, h.cluster.Queue(1, DefMatchOrders, h.client.Public, nonce,
		matchArgs(h.cipher, nonce, bid, ask)))

	out := h.wait(t)
	require.False(t, out.Aborted)

	isMatch, err := h.cipher.DecryptResult(out.Ciphertexts[0], out.Nonce, 0)
	require.NoError(t, err)
	matched, err := h.cipher.DecryptResult(out.Ciphertexts[1], out.Nonce, 1)
	require.NoError(t, err)
	price, err := h.cipher.DecryptResult(out.Ciphertexts[2], out.Nonce, 2)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), isMatch)
	assert.Equal(t, uint64(80), matched)
	assert.Equal(t, uint64(45), price)
}

func TestAddTogetherEndToEnd(t *testing.T) {
	h := newClusterHarness(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	args := [][CiphertextSize]byte{
		h.cipher.EncryptU8(200, nonce, 0),
		h.cipher.EncryptU8(100, nonce, 1),
	}
	require.NoError(t, h.cluster.Queue(5, DefAddTogether, h.client.Public, nonce, args))

	out := h.wait(t)
	require.False(t, out.Aborted)
	require.Len(t, out.Ciphertexts, 1)

	sum, err := h.cipher.DecryptResult(out.Ciphertexts[0], out.Nonce, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), sum)
}

func TestQueueUnknownDefinition(t *testing.T) {
	h := newClusterHarness(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	err = h.cluster.Queue(1, "no_such_def", h.client.Public, nonce, nil)
	require.ErrorIs(t, err, ErrUnknownComputation)
}

func TestQueueRejectsInflightDuplicate(t *testing.T) {
	h := newClusterHarness(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	release := make(chan struct{})
	h.cluster.Register("slow", func(c *Cipher, n [NonceSize]byte, args [][CiphertextSize]byte) ([][CiphertextSize]byte, error) {
		<-release
		return nil, nil
	})

	require.NoError(t, h.cluster.Queue(9, "slow", h.client.Public, nonce, nil))
	require.ErrorIs(t, h.cluster.Queue(9, "slow", h.client.Public, nonce, nil), ErrDuplicateRequest)

	close(release)
	h.cluster.Drain()
	h.wait(t)

	// Identifier is reusable once the callback was delivered.
	require.NoError(t, h.cluster.Queue(9, DefAddTogether, h.client.Public, nonce, [][CiphertextSize]byte{
		h.cipher.EncryptU8(1, nonce, 0),
		h.cipher.EncryptU8(2, nonce, 1),
	}))
	out := h.wait(t)
	assert.False(t, out.Aborted)
}

func TestAbortOnBadArgCount(t *testing.T) {
	h := newClusterHarness(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	args := [][CiphertextSize]byte{h.cipher.EncryptU8(1, nonce, 0)}
	require.NoError(t, h.cluster.Queue(3, DefMatchOrders, h.client.Public, nonce, args))

	out := h.wait(t)
	assert.True(t, out.Aborted)
	assert.Empty(t, out.Ciphertexts)
}

func TestAbortOnCorruptArgument(t *testing.T) {
	h := newClusterHarness(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	bid := match.Order{Asset: 1, Side: match.Buy, Amount: 100, Price: 50}
	ask := match.Order{Asset: 1, Side: match.Sell, Amount: 80, Price: 45}
	args := matchArgs(h.cipher, nonce, bid, ask)
	args[3][20] ^= 0xff

	require.NoError(t, h.cluster.Queue(4, DefMatchOrders, h.client.Public, nonce, args))

	out := h.wait(t)
	assert.True(t, out.Aborted)
}

func TestAbortExactlyOneCallback(t *testing.T) {
	h := newClusterHarness(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	require.NoError(t, h.cluster.Queue(7, DefMatchOrders, h.client.Public, nonce, nil))
	h.cluster.Drain()

	out := h.wait(t)
	assert.True(t, out.Aborted)

	select {
	case extra := <-h.outputs:
		t.Fatalf("unexpected second callback: %+v", extra)
	default:
	}
}
