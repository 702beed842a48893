package p2p

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchEventWireRoundtrip(t *testing.T) {
	in := MatchEventWire{RequestID: 7}
	in.IsMatch[0] = 0x01
	in.Nonce[15] = 0xff

	data, err := gobEncode(in)
	require.NoError(t, err)

	var out MatchEventWire
	require.NoError(t, gobDecode(data, &out))
	assert.Equal(t, in, out)
}

func TestDelegationWireRoundtrip(t *testing.T) {
	in := DelegationWire{BatchID: 9, Action: "commit_undelegate", VenueID: "er-devnet"}

	data, err := gobEncode(in)
	require.NoError(t, err)

	var out DelegationWire
	require.NoError(t, gobDecode(data, &out))
	assert.Equal(t, in, out)
}

func TestGobDecodeRejectsGarbage(t *testing.T) {
	var out MatchEventWire
	require.Error(t, gobDecode([]byte{0x00, 0x01, 0x02}, &out))
}
