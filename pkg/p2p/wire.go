package p2p

import (
	"bytes"
	"encoding/gob"
)

// Gossip payloads are gob-encoded; both sides of each topic are nodes of
// this program.

type MatchEventWire struct {
	RequestID     uint64
	IsMatch       [32]byte
	MatchedAmount [32]byte
	AgreedPrice   [32]byte
	Nonce         [16]byte
}

type DelegationWire struct {
	BatchID uint64
	Action  string
	VenueID string
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
