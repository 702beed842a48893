// Package mpc is the confidential computation service: clients encrypt order
// fields against the cluster key, queue a computation, and receive exactly
// one asynchronous callback carrying either a re-encrypted result or an
// abort. The cluster here runs in-process; the request/callback contract and
// the encryption envelope match the external service it stands in for.
package mpc

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/dh/x25519"
	"golang.org/x/crypto/chacha20"
)

// Each field travels as one 32-byte ciphertext: the 8-byte little-endian
// value XORed with a per-field keystream, the remaining bytes pure keystream
// over zeros. Decryption checks the zero padding, which is what turns a
// wrong-key or corrupted request into an aborted computation.

const (
	// CiphertextSize is the wire size of one encrypted field.
	CiphertextSize = 32
	// NonceSize is the per-request nonce (u128, as in the wire format).
	NonceSize = 16
)

var (
	ErrBadCiphertext = errors.New("ciphertext did not decrypt cleanly")
	ErrBadPublicKey  = errors.New("invalid x25519 public key")
)

// Directions separate request and response keystreams so a result ciphertext
// never collides with an input field under the same nonce.
const (
	dirRequest  byte = 0
	dirResponse byte = 1
)

// KeyPair is an ephemeral x25519 keypair. Clients generate one per session;
// the cluster holds a long-lived one.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

func GenerateKeyPair() (KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return KeyPair{}, fmt.Errorf("keygen: %w", err)
	}
	var pub, priv x25519.Key
	copy(priv[:], kp.Private[:])
	x25519.KeyGen(&pub, &priv)
	copy(kp.Public[:], pub[:])
	copy(kp.Private[:], priv[:])
	return kp, nil
}

// SharedSecret runs x25519 ECDH. Both ends derive the same secret from their
// private key and the peer's public key.
func SharedSecret(private, peerPublic [32]byte) ([32]byte, error) {
	var shared, priv, pub x25519.Key
	copy(priv[:], private[:])
	copy(pub[:], peerPublic[:])
	if !x25519.Shared(&shared, &priv, &pub) {
		return [32]byte{}, ErrBadPublicKey
	}
	var out [32]byte
	copy(out[:], shared[:])
	return out, nil
}

// NewNonce draws a fresh 16-byte request nonce.
func NewNonce() ([NonceSize]byte, error) {
	var n [NonceSize]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("nonce: %w", err)
	}
	return n, nil
}

// Cipher encrypts and decrypts individual fields under one shared secret.
type Cipher struct {
	key [32]byte
}

func NewCipher(sharedSecret [32]byte) *Cipher {
	return &Cipher{key: sharedSecret}
}

// keystream derives 32 bytes for (nonce, field, direction) using XChaCha20.
func (c *Cipher) keystream(nonce [NonceSize]byte, field uint32, dir byte) [CiphertextSize]byte {
	var xnonce [chacha20.NonceSizeX]byte
	copy(xnonce[:NonceSize], nonce[:])
	binary.LittleEndian.PutUint32(xnonce[NonceSize:NonceSize+4], field)
	xnonce[NonceSize+4] = dir

	var ks [CiphertextSize]byte
	stream, err := chacha20.NewUnauthenticatedCipher(c.key[:], xnonce[:])
	if err != nil {
		// Key and nonce sizes are fixed by construction.
		panic(fmt.Errorf("chacha20: %w", err))
	}
	stream.XORKeyStream(ks[:], ks[:])
	return ks
}

func (c *Cipher) encrypt(v uint64, nonce [NonceSize]byte, field uint32, dir byte) [CiphertextSize]byte {
	ct := c.keystream(nonce, field, dir)
	var pt [8]byte
	binary.LittleEndian.PutUint64(pt[:], v)
	for i := 0; i < 8; i++ {
		ct[i] ^= pt[i]
	}
	return ct
}

func (c *Cipher) decrypt(ct [CiphertextSize]byte, nonce [NonceSize]byte, field uint32, dir byte) (uint64, error) {
	ks := c.keystream(nonce, field, dir)
	for i := range ct {
		ct[i] ^= ks[i]
	}
	// The padding region must decrypt to zero; anything else means the wrong
	// key or a mangled ciphertext.
	for _, b := range ct[8:] {
		if b != 0 {
			return 0, ErrBadCiphertext
		}
	}
	return binary.LittleEndian.Uint64(ct[:8]), nil
}

// EncryptU64 encrypts one 64-bit request field at the given field index.
func (c *Cipher) EncryptU64(v uint64, nonce [NonceSize]byte, field uint32) [CiphertextSize]byte {
	return c.encrypt(v, nonce, field, dirRequest)
}

// EncryptU8 encrypts one 8-bit request field.
func (c *Cipher) EncryptU8(v uint8, nonce [NonceSize]byte, field uint32) [CiphertextSize]byte {
	return c.encrypt(uint64(v), nonce, field, dirRequest)
}

// DecryptU64 decrypts one 64-bit request field.
func (c *Cipher) DecryptU64(ct [CiphertextSize]byte, nonce [NonceSize]byte, field uint32) (uint64, error) {
	return c.decrypt(ct, nonce, field, dirRequest)
}

// DecryptU8 decrypts one 8-bit request field, rejecting out-of-range values.
func (c *Cipher) DecryptU8(ct [CiphertextSize]byte, nonce [NonceSize]byte, field uint32) (uint8, error) {
	v, err := c.decrypt(ct, nonce, field, dirRequest)
	if err != nil {
		return 0, err
	}
	if v > 0xff {
		return 0, ErrBadCiphertext
	}
	return uint8(v), nil
}

// EncryptResult encrypts one result field. Result fields use the response
// direction so they never reuse a request keystream.
func (c *Cipher) EncryptResult(v uint64, nonce [NonceSize]byte, field uint32) [CiphertextSize]byte {
	return c.encrypt(v, nonce, field, dirResponse)
}

// DecryptResult decrypts one result field on the client side.
func (c *Cipher) DecryptResult(ct [CiphertextSize]byte, nonce [NonceSize]byte, field uint32) (uint64, error) {
	return c.decrypt(ct, nonce, field, dirResponse)
}
