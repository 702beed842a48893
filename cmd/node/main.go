package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/darkswap/params"
	"github.com/uhyunpark/darkswap/pkg/api"
	"github.com/uhyunpark/darkswap/pkg/coordinator"
	"github.com/uhyunpark/darkswap/pkg/events"
	"github.com/uhyunpark/darkswap/pkg/ledger"
	"github.com/uhyunpark/darkswap/pkg/mpc"
	"github.com/uhyunpark/darkswap/pkg/p2p"
	"github.com/uhyunpark/darkswap/pkg/storage"
	"github.com/uhyunpark/darkswap/pkg/swap"
	"github.com/uhyunpark/darkswap/pkg/util"
	"github.com/uhyunpark/darkswap/pkg/venue"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = filepath.Join(cfg.Storage.DataDir, "node.log")
	}

	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- Storage ----
	store, err := storage.NewPebbleStore(filepath.Join(cfg.Storage.DataDir, "db"))
	if err != nil {
		sugar.Fatalw("storage_open_failed", "err", err)
	}
	defer store.Close()

	// ---- Domain services ----
	tokens := ledger.NewTokenLedger(store, sugar)
	escrows := swap.NewManager(tokens, store, sugar)
	batches := swap.NewBatchManager(store, sugar)

	cluster, err := mpc.NewCluster(sugar)
	if err != nil {
		sugar.Fatalw("cluster_init_failed", "err", err)
	}
	coord := coordinator.New(cluster, store, sugar)
	registry := venue.NewRegistry(batches, store, store, cfg.Venue.VenueID, sugar)

	restoreState(store, tokens, escrows, batches, coord, registry, sugar)
	seedBalances(tokens, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Gossip (optional) ----
	if cfg.P2P.ListenAddr != "" {
		gn, err := p2p.NewGossipNet(ctx, p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Bootstrap:  cfg.P2P.Bootstrap,
			Logger:     sugar,
		})
		if err != nil {
			sugar.Fatalw("gossip_init_failed", "err", err)
		}
		defer gn.Close()

		gn.SetHandlers(p2p.Handlers{
			OnMatchEvent: func(ctx context.Context, ev coordinator.MatchEvent) {
				sugar.Infow("peer_match_event", "request_id", ev.RequestID)
			},
			OnDelegation: func(ctx context.Context, msg venue.DelegationMsg) {
				sugar.Infow("peer_delegation", "batch_id", msg.BatchID, "action", msg.Action, "venue", msg.VenueID)
			},
		})

		registry.SetBroadcaster(gn)
		coord.AddPublisher(gn)
		sugar.Infow("gossip_started", "listen", cfg.P2P.ListenAddr, "peers", len(cfg.P2P.Bootstrap))
	}

	// ---- Kafka (optional) ----
	if cfg.Events.KafkaEnabled {
		kp := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, sugar)
		defer kp.Close()
		coord.AddPublisher(kp)
		sugar.Infow("kafka_publisher_enabled", "brokers", cfg.Events.KafkaBrokers, "topic", cfg.Events.KafkaTopic)
	}

	// ---- API server (also the websocket publisher) ----
	apiServer := api.NewServer(coord, escrows, batches, registry, tokens, cluster,
		cfg.API.AllowedOrigins, sugar)
	coord.AddPublisher(apiServer)

	go func() {
		if err := apiServer.Start(cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_started", "api", cfg.API.ListenAddr, "venue", cfg.Venue.VenueID)

	<-ctx.Done()
	sugar.Info("node_shutting_down")
}

// restoreState reloads escrows, batches, match events, balances and
// delegations persisted by an earlier run.
func restoreState(
	store *storage.PebbleStore,
	tokens *ledger.TokenLedger,
	escrows *swap.Manager,
	batches *swap.BatchManager,
	coord *coordinator.Coordinator,
	registry *venue.Registry,
	sugar *zap.SugaredLogger,
) {
	if err := store.LoadBalances(tokens.Restore); err != nil {
		sugar.Fatalw("restore_balances_failed", "err", err)
	}

	escs, err := store.LoadEscrows()
	if err != nil {
		sugar.Fatalw("restore_escrows_failed", "err", err)
	}
	for _, e := range escs {
		escrows.Restore(e)
	}

	bts, err := store.LoadBatches()
	if err != nil {
		sugar.Fatalw("restore_batches_failed", "err", err)
	}
	for _, b := range bts {
		batches.Restore(b)
	}

	evs, err := store.LoadMatchEvents()
	if err != nil {
		sugar.Fatalw("restore_events_failed", "err", err)
	}
	for _, ev := range evs {
		coord.Restore(ev)
	}

	dels, err := store.LoadDelegations()
	if err != nil {
		sugar.Fatalw("restore_delegations_failed", "err", err)
	}
	for batchID, venueID := range dels {
		registry.Restore(batchID, venueID)
	}

	sugar.Infow("state_restored",
		"escrows", len(escs),
		"batches", len(bts),
		"match_events", len(evs),
		"delegations", len(dels))
}

// seedBalances mints initial balances from the SEED_MINT env var, formatted
// as comma-separated asset:holder:amount triples. Dev convenience only.
func seedBalances(tokens *ledger.TokenLedger, sugar *zap.SugaredLogger) {
	raw := os.Getenv("SEED_MINT")
	if raw == "" {
		return
	}

	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
			sugar.Warnw("seed_mint_skipped", "entry", entry)
			continue
		}
		amount, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			sugar.Warnw("seed_mint_skipped", "entry", entry, "err", err)
			continue
		}
		asset := common.HexToAddress(parts[0])
		holder := common.HexToAddress(parts[1])
		if err := tokens.Mint(asset, holder, amount); err != nil {
			sugar.Warnw("seed_mint_failed", "entry", entry, "err", err)
			continue
		}
		sugar.Infow("seed_mint", "asset", asset.Hex(), "holder", holder.Hex(), "amount", amount)
	}
}
