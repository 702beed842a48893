package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type API struct {
	ListenAddr     string
	AllowedOrigins []string
}

type Storage struct {
	// DataDir holds the pebble database plus node log files.
	DataDir string
}

type Events struct {
	// KafkaEnabled gates the kafka publisher; websocket and gossip fanout
	// are always on.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

type P2P struct {
	ListenAddr string
	Bootstrap  []string
}

type Venue struct {
	// VenueID names the fast execution venue batches are delegated to.
	VenueID string
}

type Config struct {
	API     API
	Storage Storage
	Events  Events
	P2P     P2P
	Venue   Venue
}

func Default() Config {
	return Config{
		API: API{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Storage: Storage{
			DataDir: "data",
		},
		Events: Events{
			KafkaEnabled: false,
			KafkaBrokers: []string{"localhost:9092"},
			KafkaTopic:   "otc.match-events",
		},
		P2P: P2P{
			ListenAddr: "",
			Bootstrap:  nil,
		},
		Venue: Venue{
			VenueID: "er-devnet",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables.
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("API_LISTEN"); addr != "" {
		cfg.API.ListenAddr = addr
	}
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = splitList(origins)
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}

	if v := os.Getenv("EVENTS_KAFKA"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Events.KafkaEnabled = b
		}
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Events.KafkaBrokers = splitList(brokers)
	}
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		cfg.Events.KafkaTopic = topic
	}

	if listen := os.Getenv("P2P_LISTEN"); listen != "" {
		cfg.P2P.ListenAddr = listen
	}
	if bs := os.Getenv("P2P_BOOTSTRAP"); bs != "" {
		cfg.P2P.Bootstrap = splitList(bs)
	}

	if venue := os.Getenv("VENUE_ID"); venue != "" {
		cfg.Venue.VenueID = venue
	}

	return cfg
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
