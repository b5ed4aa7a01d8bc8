// Package config loads client settings from an optional .env file and the
// environment, on top of each component's defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/whisper/chat-sync/internal/api"
	"github.com/whisper/chat-sync/internal/messaging"
	"github.com/whisper/chat-sync/internal/ratelimit"
	"github.com/whisper/chat-sync/internal/ws"
)

// Live transports.
const (
	TransportNATS = "nats"
	TransportWS   = "ws"
)

type Config struct {
	UserID       string
	Transport    string
	API          api.Config
	NATS         messaging.NATSConfig
	WS           ws.ClientConfig
	RedisAddr    string        // empty: in-process cool-down
	SendCooldown time.Duration // per-conversation send throttle
	MetricsAddr  string        // empty: metrics endpoint disabled
	EventQueue   int           // loop depth that triggers a warning
}

// Load reads .env from the working directory, if present, then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

// LoadFile is Load with an explicit .env path. A missing file is an error.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	userID := getEnv("CHATSYNC_USER_ID", "")
	if userID == "" {
		return nil, fmt.Errorf("CHATSYNC_USER_ID environment variable is required")
	}

	transport := getEnv("CHATSYNC_TRANSPORT", TransportNATS)
	if transport != TransportNATS && transport != TransportWS {
		return nil, fmt.Errorf("invalid CHATSYNC_TRANSPORT %q (valid: nats, ws)", transport)
	}

	cooldown, err := time.ParseDuration(getEnv("CHATSYNC_SEND_COOLDOWN", ratelimit.DefaultSendCooldown.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid CHATSYNC_SEND_COOLDOWN: %w", err)
	}

	apiCfg := api.DefaultConfig()
	apiCfg.BaseURL = getEnv("CHATSYNC_API_URL", apiCfg.BaseURL)
	apiCfg.Token = getEnv("CHATSYNC_API_TOKEN", "")
	apiCfg.Timeout, err = time.ParseDuration(getEnv("CHATSYNC_HTTP_TIMEOUT", apiCfg.Timeout.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid CHATSYNC_HTTP_TIMEOUT: %w", err)
	}

	queue, err := strconv.Atoi(getEnv("CHATSYNC_EVENT_QUEUE", "1024"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHATSYNC_EVENT_QUEUE: %w", err)
	}

	natsCfg := messaging.DefaultNATSConfig()
	natsCfg.URL = getEnv("NATS_URL", natsCfg.URL)
	natsCfg.Name = "chatsync-" + userID

	wsCfg := ws.DefaultClientConfig()
	wsCfg.URL = getEnv("CHATSYNC_WS_URL", wsCfg.URL)

	return &Config{
		UserID:       userID,
		Transport:    transport,
		API:          apiCfg,
		NATS:         natsCfg,
		WS:           wsCfg,
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		SendCooldown: cooldown,
		MetricsAddr:  getEnv("CHATSYNC_METRICS_ADDR", ""),
		EventQueue:   queue,
	}, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
