package mpc

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrDuplicateRequest: the caller reused a request identifier before the
	// prior request's callback was observed. The submission is rejected; the
	// in-flight request is unaffected.
	ErrDuplicateRequest = errors.New("request identifier already in flight")

	// ErrUnknownComputation: no definition is registered under that name.
	ErrUnknownComputation = errors.New("unknown computation definition")

	// ErrAbortedComputation: the evaluation could not complete; no partial
	// result exists.
	ErrAbortedComputation = errors.New("computation was aborted")
)

// Output is the single callback payload for one request: either a
// re-encrypted result or an abort signal.
type Output struct {
	RequestID   uint64
	Aborted     bool
	Ciphertexts [][CiphertextSize]byte
	Nonce       [NonceSize]byte
}

// Callback receives exactly one Output per queued request. Delivery order
// across concurrent requests is unspecified.
type Callback func(Output)

// Cluster is the in-process computation cluster. It holds the cluster
// keypair, a registry of definitions, and the set of in-flight request
// identifiers. Submission returns immediately; execution happens on its own
// goroutine and delivers one callback, success or abort, never both, never
// twice.
//
// There is no cancellation and no timeout: a queued request always resolves.
type Cluster struct {
	mu       sync.Mutex
	keys     KeyPair
	defs     map[string]Definition
	inflight map[uint64]struct{}
	cb       Callback
	log      *zap.SugaredLogger

	wg sync.WaitGroup
}

func NewCluster(log *zap.SugaredLogger) (*Cluster, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	keys, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	c := &Cluster{
		keys:     keys,
		defs:     make(map[string]Definition),
		inflight: make(map[uint64]struct{}),
		log:      log,
	}
	c.Register(DefMatchOrders, MatchOrders)
	c.Register(DefAddTogether, AddTogether)
	return c, nil
}

// PublicKey returns the cluster's x25519 public key. Clients derive their
// shared secret against it.
func (c *Cluster) PublicKey() [32]byte {
	return c.keys.Public
}

// Register installs a named computation definition.
func (c *Cluster) Register(name string, def Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[name] = def
}

// SetCallback installs the single callback handler. Must be set before the
// first Queue.
func (c *Cluster) SetCallback(cb Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
}

// Queue submits one computation request. pubKey is the requester's x25519
// public key for the returned-value encryption; nonce is the request nonce
// the result will be re-encrypted under.
func (c *Cluster) Queue(requestID uint64, def string, pubKey [32]byte, nonce [NonceSize]byte, args [][CiphertextSize]byte) error {
	c.mu.Lock()
	fn, ok := c.defs[def]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownComputation
	}
	if _, dup := c.inflight[requestID]; dup {
		c.mu.Unlock()
		return ErrDuplicateRequest
	}
	c.inflight[requestID] = struct{}{}
	cb := c.cb
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		out := c.execute(requestID, def, fn, pubKey, nonce, args)

		c.mu.Lock()
		delete(c.inflight, requestID)
		c.mu.Unlock()

		if cb != nil {
			cb(out)
		}
	}()

	return nil
}

func (c *Cluster) execute(requestID uint64, defName string, fn Definition, pubKey [32]byte, nonce [NonceSize]byte, args [][CiphertextSize]byte) Output {
	secret, err := SharedSecret(c.keys.Private, pubKey)
	if err != nil {
		c.log.Warnw("computation_aborted", "request_id", requestID, "def", defName, "err", err)
		return Output{RequestID: requestID, Aborted: true, Nonce: nonce}
	}

	results, err := fn(NewCipher(secret), nonce, args)
	if err != nil {
		c.log.Warnw("computation_aborted", "request_id", requestID, "def", defName, "err", err)
		return Output{RequestID: requestID, Aborted: true, Nonce: nonce}
	}

	c.log.Debugw("computation_completed", "request_id", requestID, "def", defName)
	return Output{RequestID: requestID, Ciphertexts: results, Nonce: nonce}
}

// Drain blocks until all queued computations have delivered their callback.
// Test affordance; production callers rely on the callback alone.
func (c *Cluster) Drain() {
	c.wg.Wait()
}
