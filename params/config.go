package params

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Network endpoints published by the exchange.
const (
	MainnetREST = "https://api.hyperliquid.xyz"
	TestnetREST = "https://api.hyperliquid-testnet.xyz"
	MainnetWS   = "wss://api.hyperliquid.xyz/ws"
	TestnetWS   = "wss://api.hyperliquid-testnet.xyz/ws"
)

// MinOrderNotional is the exchange-wide minimum order value in quote units.
const MinOrderNotional = "10"

// RESTRequestsPerMinute is the aggregate request budget enforced client-side.
const RESTRequestsPerMinute = 1200

type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

type Endpoints struct {
	BaseURL string
	WSURL   string
}

// Session tunes the socket session loop.
type Session struct {
	HeartbeatPeriod  time.Duration // how often the heartbeat loop wakes
	IdlePingAfter    time.Duration // idle time before a ping is sent
	PongTimeout      time.Duration // max wait for a pong
	StalenessTimeout time.Duration // no inbound traffic for this long forces a reconnect
	BackoffMin       time.Duration
	BackoffMax       time.Duration
	LiveResetAfter   time.Duration // sustained Live period that resets backoff
}

// DMS tunes the dead-man's-switch.
type DMS struct {
	Duration time.Duration // deadline renewed on every confirmed heartbeat
}

type Config struct {
	Network        Network
	Endpoints      Endpoints
	PrivateKey     string // hex, 0x prefix optional; never logged
	AccountAddress string
	VaultAddress   string // optional
	DataDir        string // pebble state (nonce window)
	StatusAddr     string // local status/metrics server, empty disables
	Session        Session
	DMS            DMS
}

func Default() Config {
	return Config{
		Network:    Mainnet,
		Endpoints:  Endpoints{BaseURL: MainnetREST, WSURL: MainnetWS},
		DataDir:    "data/hyperflow",
		StatusAddr: "127.0.0.1:8181",
		Session: Session{
			HeartbeatPeriod:  10 * time.Second,
			IdlePingAfter:    25 * time.Second,
			PongTimeout:      10 * time.Second,
			StalenessTimeout: 60 * time.Second,
			BackoffMin:       500 * time.Millisecond,
			BackoffMax:       5 * time.Second,
			LiveResetAfter:   30 * time.Second,
		},
		DMS: DMS{Duration: 60 * time.Second},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if net := os.Getenv("HL_NETWORK"); net != "" {
		switch Network(net) {
		case Mainnet:
			cfg.Network = Mainnet
			cfg.Endpoints = Endpoints{BaseURL: MainnetREST, WSURL: MainnetWS}
		case Testnet:
			cfg.Network = Testnet
			cfg.Endpoints = Endpoints{BaseURL: TestnetREST, WSURL: TestnetWS}
		default:
			return cfg, fmt.Errorf("unknown HL_NETWORK %q", net)
		}
	}

	// Explicit URL overrides win over network selection.
	if base := os.Getenv("HL_BASE_URL"); base != "" {
		cfg.Endpoints.BaseURL = base
	}
	if ws := os.Getenv("HL_WS_URL"); ws != "" {
		cfg.Endpoints.WSURL = ws
	}

	cfg.PrivateKey = os.Getenv("HL_PRIVATE_KEY")
	cfg.AccountAddress = os.Getenv("HL_ACCOUNT_ADDRESS")
	cfg.VaultAddress = os.Getenv("HL_VAULT_ADDRESS")

	if dir := os.Getenv("HL_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if addr, ok := os.LookupEnv("HL_STATUS_ADDR"); ok {
		cfg.StatusAddr = addr
	}
	if d := envMillis("HL_DMS_MS"); d > 0 {
		cfg.DMS.Duration = d
	}
	if d := envMillis("HL_STALENESS_MS"); d > 0 {
		cfg.Session.StalenessTimeout = d
	}

	return cfg, nil
}

func envMillis(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
