// Package coordinator accepts encrypted order pairs, forwards them to the
// confidential computation cluster, and turns each callback into a durable,
// observable match event. It never decrypts: the verdict belongs to whoever
// holds the result decryption capability off-node.
package coordinator

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/darkswap/pkg/mpc"
)

var (
	ErrRequestNotFound = errors.New("unknown request identifier")
	ErrRequestPending  = errors.New("request still pending")
)

// RequestStatus tracks one submission through its single callback.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusCompleted RequestStatus = "completed"
	StatusAborted   RequestStatus = "aborted"
)

// MatchEvent is the published outcome of one completed matching request. The
// three result fields stay encrypted; the nonce lets capability holders
// re-derive the decryption key.
type MatchEvent struct {
	RequestID     uint64                       `json:"requestId"`
	IsMatch       [mpc.CiphertextSize]byte     `json:"isMatch"`
	MatchedAmount [mpc.CiphertextSize]byte     `json:"matchedAmount"`
	AgreedPrice   [mpc.CiphertextSize]byte     `json:"agreedPrice"`
	Nonce         [mpc.NonceSize]byte          `json:"nonce"`
}

// EventStore persists match events so they survive restart.
type EventStore interface {
	SaveMatchEvent(ev *MatchEvent) error
}

// Publisher fans a match event out to one delivery channel (websocket hub,
// kafka, gossip). Publish failures are logged, not propagated: the event is
// already durable by the time publishers run.
type Publisher interface {
	PublishMatchEvent(ev MatchEvent)
}

// Coordinator is the order submission coordinator. One instance binds to one
// cluster; the cluster delivers exactly one callback per request, so each
// request produces exactly one event or one aborted status.
type Coordinator struct {
	cluster *mpc.Cluster

	mu       sync.Mutex
	statuses map[uint64]RequestStatus
	events   map[uint64]*MatchEvent

	store      EventStore
	publishers []Publisher
	log        *zap.SugaredLogger
}

func New(cluster *mpc.Cluster, store EventStore, log *zap.SugaredLogger) *Coordinator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Coordinator{
		cluster:  cluster,
		statuses: make(map[uint64]RequestStatus),
		events:   make(map[uint64]*MatchEvent),
		store:    store,
		log:      log,
	}
	cluster.SetCallback(c.onResult)
	return c
}

// AddPublisher registers one fanout channel. Call before serving traffic.
func (c *Coordinator) AddPublisher(p Publisher) {
	c.publishers = append(c.publishers, p)
}

// Restore loads a persisted match event on boot.
func (c *Coordinator) Restore(ev *MatchEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *ev
	c.events[ev.RequestID] = &cp
	c.statuses[ev.RequestID] = StatusCompleted
}

// Submit queues one matching request. encBid and encAsk are the six
// per-order field ciphertexts; pubKey and nonce are the returned-value
// encryption key and request nonce. Reusing a requestID before its callback
// has been observed is a caller error and rejects the submission.
func (c *Coordinator) Submit(requestID uint64, encBid, encAsk [6][mpc.CiphertextSize]byte, pubKey [32]byte, nonce [mpc.NonceSize]byte) error {
	args := make([][mpc.CiphertextSize]byte, 0, mpc.MatchOrdersArgs)
	args = append(args, encBid[:]...)
	args = append(args, encAsk[:]...)

	c.mu.Lock()
	if st, ok := c.statuses[requestID]; ok && st != StatusAborted {
		// A completed or pending request owns this identifier. An aborted one
		// has no event and releases the id for a retry.
		c.mu.Unlock()
		return mpc.ErrDuplicateRequest
	}
	c.statuses[requestID] = StatusPending
	c.mu.Unlock()

	if err := c.cluster.Queue(requestID, mpc.DefMatchOrders, pubKey, nonce, args); err != nil {
		c.mu.Lock()
		delete(c.statuses, requestID)
		c.mu.Unlock()
		return err
	}

	c.log.Infow("match_request_submitted", "request_id", requestID)
	return nil
}

// onResult is the cluster callback: exactly one invocation per request.
func (c *Coordinator) onResult(out mpc.Output) {
	if out.Aborted {
		c.mu.Lock()
		c.statuses[out.RequestID] = StatusAborted
		c.mu.Unlock()
		// No retry at this layer; the caller resubmits with a new requestID
		// if desired.
		c.log.Warnw("match_request_aborted", "request_id", out.RequestID)
		return
	}

	if len(out.Ciphertexts) != 3 {
		c.mu.Lock()
		c.statuses[out.RequestID] = StatusAborted
		c.mu.Unlock()
		c.log.Errorw("match_result_malformed",
			"request_id", out.RequestID, "fields", len(out.Ciphertexts))
		return
	}

	ev := &MatchEvent{
		RequestID:     out.RequestID,
		IsMatch:       out.Ciphertexts[0],
		MatchedAmount: out.Ciphertexts[1],
		AgreedPrice:   out.Ciphertexts[2],
		Nonce:         out.Nonce,
	}

	if c.store != nil {
		if err := c.store.SaveMatchEvent(ev); err != nil {
			c.log.Errorw("match_event_persist_failed", "request_id", out.RequestID, "err", err)
		}
	}

	c.mu.Lock()
	c.events[out.RequestID] = ev
	c.statuses[out.RequestID] = StatusCompleted
	c.mu.Unlock()

	for _, p := range c.publishers {
		p.PublishMatchEvent(*ev)
	}

	c.log.Infow("match_event_published", "request_id", out.RequestID)
}

// Status reports where a request stands.
func (c *Coordinator) Status(requestID uint64) (RequestStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.statuses[requestID]
	if !ok {
		return "", ErrRequestNotFound
	}
	return st, nil
}

// Event returns the published match event for a completed request. An
// aborted request has no event and surfaces ErrAbortedComputation.
func (c *Coordinator) Event(requestID uint64) (MatchEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.statuses[requestID] {
	case StatusCompleted:
		return *c.events[requestID], nil
	case StatusAborted:
		return MatchEvent{}, mpc.ErrAbortedComputation
	case StatusPending:
		return MatchEvent{}, ErrRequestPending
	default:
		return MatchEvent{}, ErrRequestNotFound
	}
}
