package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/darkswap/pkg/coordinator"
	"github.com/uhyunpark/darkswap/pkg/crypto"
	"github.com/uhyunpark/darkswap/pkg/events"
	"github.com/uhyunpark/darkswap/pkg/ledger"
	"github.com/uhyunpark/darkswap/pkg/mpc"
	"github.com/uhyunpark/darkswap/pkg/swap"
	"github.com/uhyunpark/darkswap/pkg/venue"
)

// Server handles the REST API and WebSocket connections.
type Server struct {
	coord    *coordinator.Coordinator
	escrows  *swap.Manager
	batches  *swap.BatchManager
	registry *venue.Registry
	tokens   *ledger.TokenLedger
	cluster  *mpc.Cluster

	router  *mux.Router
	hub     *Hub
	origins []string
	log     *zap.SugaredLogger
}

// NewServer wires the REST surface over the domain services. allowedOrigins
// feeds the CORS layer.
func NewServer(
	coord *coordinator.Coordinator,
	escrows *swap.Manager,
	batches *swap.BatchManager,
	registry *venue.Registry,
	tokens *ledger.TokenLedger,
	cluster *mpc.Cluster,
	allowedOrigins []string,
	log *zap.SugaredLogger,
) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		coord:    coord,
		escrows:  escrows,
		batches:  batches,
		registry: registry,
		tokens:   tokens,
		cluster:  cluster,
		router:   mux.NewRouter(),
		hub:      NewHub(log),
		origins:  allowedOrigins,
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Confidential matching
	api.HandleFunc("/match", s.handleSubmitMatch).Methods("POST")
	api.HandleFunc("/match/{requestId}", s.handleGetMatch).Methods("GET")
	api.HandleFunc("/cluster", s.handleGetCluster).Methods("GET")

	// Trade escrows
	api.HandleFunc("/escrows", s.handleCreateEscrow).Methods("POST")
	api.HandleFunc("/escrows/{matchId}", s.handleGetEscrow).Methods("GET")
	api.HandleFunc("/escrows/{matchId}/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/escrows/{matchId}/settle", s.handleSettle).Methods("POST")
	api.HandleFunc("/escrows/{matchId}/withdraw", s.handleWithdraw).Methods("POST")

	// Batch escrows
	api.HandleFunc("/batches", s.handleCreateBatch).Methods("POST")
	api.HandleFunc("/batches/{batchId}", s.handleGetBatch).Methods("GET")
	api.HandleFunc("/batches/{batchId}/orders", s.handleAddBatchOrder).Methods("POST")
	api.HandleFunc("/batches/{batchId}/finalize", s.handleFinalizeBatch).Methods("POST")
	api.HandleFunc("/batches/{batchId}/delegate", s.handleDelegate).Methods("POST")
	api.HandleFunc("/batches/{batchId}/commit", s.handleCommit).Methods("POST")
	api.HandleFunc("/batches/{batchId}/commit-undelegate", s.handleCommitUndelegate).Methods("POST")

	// Balances
	api.HandleFunc("/balances/{asset}/{address}", s.handleGetBalance).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the WebSocket hub and serves HTTP on addr. Blocks.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// PublishMatchEvent broadcasts a completed match event to WebSocket clients
// subscribed to the "matches" channel.
func (s *Server) PublishMatchEvent(ev coordinator.MatchEvent) {
	wire := events.Wire(ev)
	s.hub.BroadcastToChannel("matches", WSMatchEvent{
		Type:          "match_event",
		RequestID:     wire.RequestID,
		IsMatch:       wire.IsMatch,
		MatchedAmount: wire.MatchedAmount,
		AgreedPrice:   wire.AgreedPrice,
		Nonce:         wire.Nonce,
	})
}

var _ coordinator.Publisher = (*Server)(nil)

// ==============================
// Matching handlers
// ==============================

func (s *Server) handleSubmitMatch(w http.ResponseWriter, r *http.Request) {
	var req SubmitMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	pubKey, err := parseBytes32(req.PublicKey)
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "publicKey: "+err.Error())
		return
	}
	nonce, err := parseNonce(req.Nonce)
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "nonce: "+err.Error())
		return
	}
	bid, err := parseOrderCiphertexts(req.Bid)
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "bid: "+err.Error())
		return
	}
	ask, err := parseOrderCiphertexts(req.Ask)
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "ask: "+err.Error())
		return
	}

	if err := s.coord.Submit(req.RequestID, bid, ask, pubKey, nonce); err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, SubmitMatchResponse{Status: "queued", RequestID: req.RequestID})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathID(r, "requestId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	ev, err := s.coord.Event(requestID)
	switch {
	case err == nil:
		wire := events.Wire(ev)
		respondJSON(w, MatchEventResponse{
			RequestID:     requestID,
			Status:        "completed",
			IsMatch:       wire.IsMatch,
			MatchedAmount: wire.MatchedAmount,
			AgreedPrice:   wire.AgreedPrice,
			Nonce:         wire.Nonce,
		})
	case errors.Is(err, coordinator.ErrRequestPending):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(MatchStatusResponse{RequestID: requestID, Status: "pending"})
	case errors.Is(err, mpc.ErrAbortedComputation):
		respondJSON(w, MatchStatusResponse{RequestID: requestID, Status: "aborted"})
	default:
		s.respondDomainError(w, err)
	}
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	pub := s.cluster.PublicKey()
	respondJSON(w, ClusterInfo{PublicKey: hexutil.Encode(pub[:])})
}

// ==============================
// Escrow handlers
// ==============================

func (s *Server) handleCreateEscrow(w http.ResponseWriter, r *http.Request) {
	var req CreateEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	addrs := map[string]string{
		"maker": req.Maker, "taker": req.Taker,
		"makerAsset": req.MakerAsset, "takerAsset": req.TakerAsset,
	}
	for field, v := range addrs {
		if !common.IsHexAddress(v) {
			respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid address: "+field)
			return
		}
	}

	esc, err := s.escrows.Create(
		req.MatchID,
		common.HexToAddress(req.Maker),
		common.HexToAddress(req.Taker),
		common.HexToAddress(req.MakerAsset),
		common.HexToAddress(req.TakerAsset),
		req.MakerAmount,
		req.TakerAmount,
	)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, escrowInfo(*esc))
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathID(r, "matchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	esc, ok := s.escrows.Get(matchID)
	if !ok {
		s.respondDomainError(w, swap.ErrEscrowNotFound)
		return
	}
	respondJSON(w, escrowInfo(esc))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathID(r, "matchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if !common.IsHexAddress(req.Actor) || !common.IsHexAddress(req.Asset) {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid actor or asset address")
		return
	}

	actor := common.HexToAddress(req.Actor)
	asset := common.HexToAddress(req.Asset)

	digest := crypto.DepositDigest(matchID, actor, asset, req.Amount)
	if !s.verifySignature(w, actor, digest, req.Signature) {
		return
	}

	if err := s.escrows.Deposit(matchID, actor, asset, req.Amount); err != nil {
		s.respondDomainError(w, err)
		return
	}

	esc, _ := s.escrows.Get(matchID)
	respondJSON(w, escrowInfo(esc))
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathID(r, "matchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	if err := s.escrows.Settle(matchID); err != nil {
		s.respondDomainError(w, err)
		return
	}

	esc, _ := s.escrows.Get(matchID)
	respondJSON(w, escrowInfo(esc))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathID(r, "matchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if !common.IsHexAddress(req.Actor) || !common.IsHexAddress(req.Asset) {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid actor or asset address")
		return
	}

	actor := common.HexToAddress(req.Actor)
	asset := common.HexToAddress(req.Asset)

	digest := crypto.WithdrawDigest(matchID, actor, asset)
	if !s.verifySignature(w, actor, digest, req.Signature) {
		return
	}

	if err := s.escrows.Withdraw(matchID, actor, asset); err != nil {
		s.respondDomainError(w, err)
		return
	}

	esc, _ := s.escrows.Get(matchID)
	respondJSON(w, escrowInfo(esc))
}

// ==============================
// Batch handlers
// ==============================

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if !common.IsHexAddress(req.Authority) {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid authority address")
		return
	}

	batch, err := s.batches.Create(req.BatchID, common.HexToAddress(req.Authority))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, s.batchInfo(*batch))
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := pathID(r, "batchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	batch, ok := s.batches.Get(batchID)
	if !ok {
		s.respondDomainError(w, swap.ErrBatchNotFound)
		return
	}
	respondJSON(w, s.batchInfo(batch))
}

func (s *Server) handleAddBatchOrder(w http.ResponseWriter, r *http.Request) {
	batchID, err := pathID(r, "batchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req AddBatchOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	if err := s.batches.AddOrder(batchID, req.Amount, req.Price); err != nil {
		s.respondDomainError(w, err)
		return
	}

	batch, _ := s.batches.Get(batchID)
	respondJSON(w, s.batchInfo(batch))
}

func (s *Server) handleFinalizeBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := pathID(r, "batchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req FinalizeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if !common.IsHexAddress(req.Authority) {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid authority address")
		return
	}

	authority := common.HexToAddress(req.Authority)

	digest := crypto.FinalizeDigest(batchID, authority)
	if !s.verifySignature(w, authority, digest, req.Signature) {
		return
	}

	if err := s.batches.Finalize(batchID, authority); err != nil {
		s.respondDomainError(w, err)
		return
	}

	batch, _ := s.batches.Get(batchID)
	respondJSON(w, s.batchInfo(batch))
}

func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	s.venueAction(w, r, s.registry.Delegate)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	s.venueAction(w, r, s.registry.Commit)
}

func (s *Server) handleCommitUndelegate(w http.ResponseWriter, r *http.Request) {
	s.venueAction(w, r, s.registry.CommitAndUndelegate)
}

func (s *Server) venueAction(w http.ResponseWriter, r *http.Request, fn func(uint64) error) {
	batchID, err := pathID(r, "batchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	if err := fn(batchID); err != nil {
		s.respondDomainError(w, err)
		return
	}

	batch, _ := s.batches.Get(batchID)
	respondJSON(w, s.batchInfo(batch))
}

// ==============================
// Balance handlers
// ==============================

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !common.IsHexAddress(vars["asset"]) || !common.IsHexAddress(vars["address"]) {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid asset or address")
		return
	}

	asset := common.HexToAddress(vars["asset"])
	holder := common.HexToAddress(vars["address"])

	respondJSON(w, BalanceInfo{
		Asset:   asset.Hex(),
		Address: holder.Hex(),
		Amount:  s.tokens.BalanceOf(asset, holder),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func (s *Server) verifySignature(w http.ResponseWriter, actor common.Address, digest common.Hash, sigHex string) bool {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "signature: "+err.Error())
		return false
	}
	if !crypto.VerifyActor(actor, digest, sig) {
		respondError(w, http.StatusForbidden, "UNAUTHORIZED", "signature does not match actor")
		return false
	}
	return true
}

func escrowInfo(e swap.TradeEscrow) EscrowInfo {
	return EscrowInfo{
		MatchID:        e.MatchID,
		Maker:          e.Maker.Hex(),
		Taker:          e.Taker.Hex(),
		MakerAsset:     e.MakerAsset.Hex(),
		TakerAsset:     e.TakerAsset.Hex(),
		MakerAmount:    e.MakerAmount,
		TakerAmount:    e.TakerAmount,
		MakerDeposited: e.MakerDeposited,
		TakerDeposited: e.TakerDeposited,
		IsSettled:      e.IsSettled,
	}
}

func (s *Server) batchInfo(b swap.BatchEscrow) BatchInfo {
	info := BatchInfo{
		BatchID:     b.BatchID,
		Authority:   b.Authority.Hex(),
		OrderCount:  b.OrderCount,
		TotalVolume: b.TotalVolume,
		IsFinalized: b.IsFinalized,
	}
	if owner, ok := s.registry.Owner(b.BatchID); ok {
		info.Venue = owner
	}
	return info
}

func pathID(r *http.Request, name string) (uint64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

func parseBytes32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func parseNonce(s string) ([mpc.NonceSize]byte, error) {
	var out [mpc.NonceSize]byte
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, err
	}
	if len(b) != mpc.NonceSize {
		return out, fmt.Errorf("expected %d bytes, got %d", mpc.NonceSize, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func parseOrderCiphertexts(fields []string) ([6][mpc.CiphertextSize]byte, error) {
	var out [6][mpc.CiphertextSize]byte
	if len(fields) != len(out) {
		return out, fmt.Errorf("expected %d ciphertexts, got %d", len(out), len(fields))
	}
	for i, f := range fields {
		ct, err := parseBytes32(f)
		if err != nil {
			return out, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = ct
	}
	return out, nil
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: message})
}

// respondDomainError maps sentinel errors onto stable codes and HTTP statuses.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	code, status := "INTERNAL", http.StatusInternalServerError

	switch {
	case errors.Is(err, swap.ErrEscrowNotFound):
		code, status = "ESCROW_NOT_FOUND", http.StatusNotFound
	case errors.Is(err, swap.ErrBatchNotFound):
		code, status = "BATCH_NOT_FOUND", http.StatusNotFound
	case errors.Is(err, coordinator.ErrRequestNotFound):
		code, status = "REQUEST_NOT_FOUND", http.StatusNotFound
	case errors.Is(err, swap.ErrEscrowExists):
		code, status = "ESCROW_EXISTS", http.StatusConflict
	case errors.Is(err, swap.ErrBatchExists):
		code, status = "BATCH_EXISTS", http.StatusConflict
	case errors.Is(err, swap.ErrBatchFinalized):
		code, status = "BATCH_FINALIZED", http.StatusConflict
	case errors.Is(err, swap.ErrBatchFull):
		code, status = "BATCH_FULL", http.StatusConflict
	case errors.Is(err, swap.ErrBatchEmpty):
		code, status = "BATCH_EMPTY", http.StatusConflict
	case errors.Is(err, swap.ErrTradeAlreadySettled):
		code, status = "TRADE_ALREADY_SETTLED", http.StatusConflict
	case errors.Is(err, swap.ErrAlreadyDeposited):
		code, status = "ALREADY_DEPOSITED", http.StatusConflict
	case errors.Is(err, swap.ErrMakerNotDeposited):
		code, status = "MAKER_NOT_DEPOSITED", http.StatusConflict
	case errors.Is(err, swap.ErrTakerNotDeposited):
		code, status = "TAKER_NOT_DEPOSITED", http.StatusConflict
	case errors.Is(err, swap.ErrNoDeposit):
		code, status = "NO_DEPOSIT", http.StatusConflict
	case errors.Is(err, swap.ErrInvalidAmount):
		code, status = "INVALID_AMOUNT", http.StatusBadRequest
	case errors.Is(err, swap.ErrUnauthorized):
		code, status = "UNAUTHORIZED", http.StatusForbidden
	case errors.Is(err, swap.ErrPartialSettlement):
		code, status = "PARTIAL_SETTLEMENT", http.StatusInternalServerError
	case errors.Is(err, ledger.ErrInsufficientBalance):
		code, status = "INSUFFICIENT_BALANCE", http.StatusConflict
	case errors.Is(err, mpc.ErrDuplicateRequest):
		code, status = "DUPLICATE_REQUEST", http.StatusConflict
	case errors.Is(err, mpc.ErrAbortedComputation):
		code, status = "ABORTED_COMPUTATION", http.StatusUnprocessableEntity
	case errors.Is(err, mpc.ErrUnknownComputation):
		code, status = "UNKNOWN_COMPUTATION", http.StatusBadRequest
	case errors.Is(err, venue.ErrAlreadyDelegated):
		code, status = "ALREADY_DELEGATED", http.StatusConflict
	case errors.Is(err, venue.ErrNotDelegated):
		code, status = "NOT_DELEGATED", http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.log.Errorw("api_internal_error", "err", err)
	}
	respondError(w, status, code, err.Error())
}
