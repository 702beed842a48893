// Package events publishes match events to external consumers. The kafka
// publisher is optional and config-gated; in-process consumers use the
// websocket hub and the gossip net instead.
package events

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/darkswap/pkg/coordinator"
)

// MatchEventWire is the hex-encoded JSON form of a match event used on
// external channels (kafka payloads, websocket frames, REST responses).
type MatchEventWire struct {
	RequestID     uint64 `json:"requestId"`
	IsMatch       string `json:"isMatch"`       // 32-byte ciphertext, 0x-hex
	MatchedAmount string `json:"matchedAmount"` // 32-byte ciphertext, 0x-hex
	AgreedPrice   string `json:"agreedPrice"`   // 32-byte ciphertext, 0x-hex
	Nonce         string `json:"nonce"`         // 16-byte nonce, 0x-hex
}

func Wire(ev coordinator.MatchEvent) MatchEventWire {
	return MatchEventWire{
		RequestID:     ev.RequestID,
		IsMatch:       hexutil.Encode(ev.IsMatch[:]),
		MatchedAmount: hexutil.Encode(ev.MatchedAmount[:]),
		AgreedPrice:   hexutil.Encode(ev.AgreedPrice[:]),
		Nonce:         hexutil.Encode(ev.Nonce[:]),
	}
}

// KafkaPublisher writes one message per match event, keyed by request id so
// per-request ordering is preserved under partitioning.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.SugaredLogger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		log: log,
	}
}

func (p *KafkaPublisher) PublishMatchEvent(ev coordinator.MatchEvent) {
	value, err := json.Marshal(Wire(ev))
	if err != nil {
		p.log.Errorw("kafka_marshal_failed", "request_id", ev.RequestID, "err", err)
		return
	}

	var key [8]byte
	binary.BigEndian.PutUint64(key[:], ev.RequestID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key[:], Value: value}); err != nil {
		// The event is already durable; kafka delivery is best-effort fanout.
		p.log.Errorw("kafka_publish_failed", "request_id", ev.RequestID, "err", err)
		return
	}
	p.log.Debugw("kafka_published", "request_id", ev.RequestID)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ coordinator.Publisher = (*KafkaPublisher)(nil)
