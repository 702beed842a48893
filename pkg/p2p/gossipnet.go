// Package p2p gossips match events and batch delegation messages between the
// base node and venue operators over libp2p pubsub. The node publishes on
// both topics; a venue operator subscribes and reacts through Handlers.
package p2p

import (
	"context"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/darkswap/pkg/coordinator"
	"github.com/uhyunpark/darkswap/pkg/venue"
)

const (
	topicMatchEvents = "otc-match-events"
	topicDelegation  = "otc-batch-delegation"
)

// Handlers receive inbound gossip. Any handler may be nil.
type Handlers struct {
	OnMatchEvent func(ctx context.Context, ev coordinator.MatchEvent)
	OnDelegation func(ctx context.Context, msg venue.DelegationMsg)
}

type Config struct {
	ListenAddr string
	Bootstrap  []string
	Logger     *zap.SugaredLogger
}

type GossipNet struct {
	h   host.Host
	ps  *pubsub.PubSub
	log *zap.SugaredLogger

	tMatches, tDelegation     *pubsub.Topic
	subMatches, subDelegation *pubsub.Subscription

	muH      sync.RWMutex
	handlers Handlers
}

func NewGossipNet(ctx context.Context, cfg Config) (*GossipNet, error) {
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	n := &GossipNet{h: h, ps: ps, log: log}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if err := n.joinTopics(); err != nil {
		return nil, err
	}

	go n.handleMatchEvents(ctx)
	go n.handleDelegations(ctx)

	log.Infow("gossip_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	return n, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (n *GossipNet) joinTopics() error {
	var err error
	if n.tMatches, err = n.ps.Join(topicMatchEvents); err != nil {
		return err
	}
	if n.tDelegation, err = n.ps.Join(topicDelegation); err != nil {
		return err
	}
	if n.subMatches, err = n.tMatches.Subscribe(); err != nil {
		return err
	}
	if n.subDelegation, err = n.tDelegation.Subscribe(); err != nil {
		return err
	}
	return nil
}

func (n *GossipNet) SetHandlers(h Handlers) {
	n.muH.Lock()
	n.handlers = h
	n.muH.Unlock()
}

func (n *GossipNet) Host() host.Host { return n.h }

func (n *GossipNet) Close() error { return n.h.Close() }

// PublishMatchEvent implements coordinator.Publisher.
func (n *GossipNet) PublishMatchEvent(ev coordinator.MatchEvent) {
	data, err := gobEncode(MatchEventWire{
		RequestID:     ev.RequestID,
		IsMatch:       ev.IsMatch,
		MatchedAmount: ev.MatchedAmount,
		AgreedPrice:   ev.AgreedPrice,
		Nonce:         ev.Nonce,
	})
	if err != nil {
		n.log.Errorw("gossip_encode_failed", "request_id", ev.RequestID, "err", err)
		return
	}
	if err := n.tMatches.Publish(context.Background(), data); err != nil {
		n.log.Errorw("gossip_publish_failed", "request_id", ev.RequestID, "err", err)
	}
}

// BroadcastDelegation implements venue.Broadcaster.
func (n *GossipNet) BroadcastDelegation(msg venue.DelegationMsg) {
	data, err := gobEncode(DelegationWire{
		BatchID: msg.BatchID,
		Action:  string(msg.Action),
		VenueID: msg.VenueID,
	})
	if err != nil {
		n.log.Errorw("gossip_encode_failed", "batch_id", msg.BatchID, "err", err)
		return
	}
	if err := n.tDelegation.Publish(context.Background(), data); err != nil {
		n.log.Errorw("gossip_publish_failed", "batch_id", msg.BatchID, "err", err)
	}
}

// inbound

func (n *GossipNet) handleMatchEvents(ctx context.Context) {
	for {
		msg, err := n.subMatches.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue // own publication
		}
		var w MatchEventWire
		if err := gobDecode(msg.Data, &w); err != nil {
			continue
		}

		n.muH.RLock()
		h := n.handlers
		n.muH.RUnlock()
		if h.OnMatchEvent != nil {
			h.OnMatchEvent(ctx, coordinator.MatchEvent{
				RequestID:     w.RequestID,
				IsMatch:       w.IsMatch,
				MatchedAmount: w.MatchedAmount,
				AgreedPrice:   w.AgreedPrice,
				Nonce:         w.Nonce,
			})
		}
	}
}

func (n *GossipNet) handleDelegations(ctx context.Context) {
	for {
		msg, err := n.subDelegation.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		var w DelegationWire
		if err := gobDecode(msg.Data, &w); err != nil {
			continue
		}

		n.muH.RLock()
		h := n.handlers
		n.muH.RUnlock()
		if h.OnDelegation != nil {
			h.OnDelegation(ctx, venue.DelegationMsg{
				BatchID: w.BatchID,
				Action:  venue.Action(w.Action),
				VenueID: w.VenueID,
			})
		}
	}
}

var (
	_ coordinator.Publisher = (*GossipNet)(nil)
	_ venue.Broadcaster     = (*GossipNet)(nil)
)
