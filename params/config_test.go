package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.API.ListenAddr)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.False(t, cfg.Events.KafkaEnabled)
	assert.Equal(t, "er-devnet", cfg.Venue.VenueID)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("API_LISTEN", ":9999")
	t.Setenv("API_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DATA_DIR", "/tmp/darkswap")
	t.Setenv("EVENTS_KAFKA", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("P2P_BOOTSTRAP", "/ip4/10.0.0.1/tcp/4001/p2p/QmPeer")
	t.Setenv("VENUE_ID", "er-mainnet")

	cfg := LoadFromEnv("does-not-exist.env")

	assert.Equal(t, ":9999", cfg.API.ListenAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.API.AllowedOrigins)
	assert.Equal(t, "/tmp/darkswap", cfg.Storage.DataDir)
	assert.True(t, cfg.Events.KafkaEnabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	require.Len(t, cfg.P2P.Bootstrap, 1)
	assert.Equal(t, "er-mainnet", cfg.Venue.VenueID)
}

func TestBadBoolKeepsDefault(t *testing.T) {
	t.Setenv("EVENTS_KAFKA", "maybe")

	cfg := LoadFromEnv("does-not-exist.env")
	assert.False(t, cfg.Events.KafkaEnabled)
}
