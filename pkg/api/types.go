package api

// Request and response bodies for the REST endpoints plus the WebSocket
// subscription protocol. Ciphertexts, nonces, keys and signatures travel as
// 0x-prefixed hex strings; addresses use the standard 20-byte hex form.

// ==============================
// Matching
// ==============================

// SubmitMatchRequest is the payload for POST /api/v1/match. Bid and Ask each
// carry the six encrypted order fields (asset, side, amount, price, expiry,
// trader id) as 32-byte ciphertexts.
type SubmitMatchRequest struct {
	RequestID uint64   `json:"requestId"`
	PublicKey string   `json:"publicKey"` // requester x25519 key, 32 bytes
	Nonce     string   `json:"nonce"`     // 16 bytes
	Bid       []string `json:"bid"`       // 6 x 32-byte ciphertexts
	Ask       []string `json:"ask"`       // 6 x 32-byte ciphertexts
}

// SubmitMatchResponse acknowledges a queued computation.
type SubmitMatchResponse struct {
	Status    string `json:"status"` // "queued"
	RequestID uint64 `json:"requestId"`
}

// MatchEventResponse is returned by GET /api/v1/match/{requestId} once the
// computation completed. The result fields stay encrypted to the requester's
// key; only the requester can read them.
type MatchEventResponse struct {
	RequestID     uint64 `json:"requestId"`
	Status        string `json:"status"` // "completed"
	IsMatch       string `json:"isMatch"`
	MatchedAmount string `json:"matchedAmount"`
	AgreedPrice   string `json:"agreedPrice"`
	Nonce         string `json:"nonce"`
}

// MatchStatusResponse is returned while a request is still pending.
type MatchStatusResponse struct {
	RequestID uint64 `json:"requestId"`
	Status    string `json:"status"` // "pending" | "aborted"
}

// ==============================
// Trade escrows
// ==============================

// CreateEscrowRequest is the payload for POST /api/v1/escrows.
type CreateEscrowRequest struct {
	MatchID     uint64 `json:"matchId"`
	Maker       string `json:"maker"`
	Taker       string `json:"taker"`
	MakerAsset  string `json:"makerAsset"`
	TakerAsset  string `json:"takerAsset"`
	MakerAmount uint64 `json:"makerAmount"`
	TakerAmount uint64 `json:"takerAmount"`
}

// DepositRequest is the payload for POST /api/v1/escrows/{matchId}/deposit.
// Signature is a 65-byte secp256k1 signature over the canonical deposit
// digest; the server recovers the actor from it.
type DepositRequest struct {
	Actor     string `json:"actor"`
	Asset     string `json:"asset"`
	Amount    uint64 `json:"amount"`
	Signature string `json:"signature"`
}

// WithdrawRequest is the payload for POST /api/v1/escrows/{matchId}/withdraw.
type WithdrawRequest struct {
	Actor     string `json:"actor"`
	Asset     string `json:"asset"`
	Signature string `json:"signature"`
}

// EscrowInfo mirrors the stored trade escrow record.
type EscrowInfo struct {
	MatchID        uint64 `json:"matchId"`
	Maker          string `json:"maker"`
	Taker          string `json:"taker"`
	MakerAsset     string `json:"makerAsset"`
	TakerAsset     string `json:"takerAsset"`
	MakerAmount    uint64 `json:"makerAmount"`
	TakerAmount    uint64 `json:"takerAmount"`
	MakerDeposited bool   `json:"makerDeposited"`
	TakerDeposited bool   `json:"takerDeposited"`
	IsSettled      bool   `json:"isSettled"`
}

// ==============================
// Batch escrows
// ==============================

// CreateBatchRequest is the payload for POST /api/v1/batches.
type CreateBatchRequest struct {
	BatchID   uint64 `json:"batchId"`
	Authority string `json:"authority"`
}

// AddBatchOrderRequest is the payload for POST /api/v1/batches/{batchId}/orders.
type AddBatchOrderRequest struct {
	Amount uint64 `json:"amount"`
	Price  uint64 `json:"price"`
}

// FinalizeBatchRequest is the payload for POST /api/v1/batches/{batchId}/finalize.
// Signature is over the canonical finalize digest; the recovered address must
// equal the batch authority.
type FinalizeBatchRequest struct {
	Authority string `json:"authority"`
	Signature string `json:"signature"`
}

// BatchInfo mirrors the stored batch escrow record plus its current custody
// location.
type BatchInfo struct {
	BatchID     uint64 `json:"batchId"`
	Authority   string `json:"authority"`
	OrderCount  uint32 `json:"orderCount"`
	TotalVolume uint64 `json:"totalVolume"`
	IsFinalized bool   `json:"isFinalized"`
	Venue       string `json:"venue,omitempty"` // empty while on the base venue
}

// ==============================
// Misc
// ==============================

// BalanceInfo is returned by GET /api/v1/balances/{asset}/{address}.
type BalanceInfo struct {
	Asset   string `json:"asset"`
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// ClusterInfo exposes the computation cluster's x25519 public key so clients
// can derive the shared encryption key.
type ClusterInfo struct {
	PublicKey string `json:"publicKey"`
}

// ErrorResponse is returned for all errors. Code maps 1:1 onto the sentinel
// error taxonomy so clients can branch without parsing messages.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ==============================
// WebSocket
// ==============================

// WSSubscribeRequest is sent by clients to manage channel subscriptions.
// The only channel today is "matches".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSMatchEvent is broadcast on the "matches" channel for every completed
// computation.
type WSMatchEvent struct {
	Type          string `json:"type"` // "match_event"
	RequestID     uint64 `json:"requestId"`
	IsMatch       string `json:"isMatch"`
	MatchedAmount string `json:"matchedAmount"`
	AgreedPrice   string `json:"agreedPrice"`
	Nonce         string `json:"nonce"`
}
