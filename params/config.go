package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Chain configures the connection to the settlement chain.
type Chain struct {
	RPCURL     string // JSON-RPC endpoint; empty selects the in-memory sim chain
	Settlement string // settlement contract address (hex)
	ChainID    int64
	PrivateKey string // hex-encoded account key, optional for read-only use

	// CallTimeout bounds every chain call; Retries bounds how many times
	// an idempotent read is reattempted before the call fails.
	CallTimeout time.Duration
	Retries     int
}

// Store configures the order ledger's durable backing store.
type Store struct {
	Path string // pebble database directory
}

// API configures the REST presentation layer.
type API struct {
	Addr           string
	AllowedOrigins []string
}

type Config struct {
	Chain Chain
	Store Store
	API   API
}

func Default() Config {
	return Config{
		Chain: Chain{
			RPCURL:      "",
			Settlement:  "0x9e2873c1c89696987F671861901A06Ad7Cb97f8C",
			ChainID:     1,
			CallTimeout: 10 * time.Second,
			Retries:     3,
		},
		Store: Store{
			Path: "data/ledger",
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Chain.RPCURL = getEnv("CHAIN_RPC_URL", cfg.Chain.RPCURL)
	cfg.Chain.Settlement = getEnv("CHAIN_SETTLEMENT_ADDRESS", cfg.Chain.Settlement)
	cfg.Chain.PrivateKey = getEnv("CHAIN_PRIVATE_KEY", cfg.Chain.PrivateKey)

	if id := os.Getenv("CHAIN_ID"); id != "" {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			cfg.Chain.ChainID = n
		}
	}
	if timeout := os.Getenv("CHAIN_CALL_TIMEOUT_MS"); timeout != "" {
		if ms, err := strconv.Atoi(timeout); err == nil {
			cfg.Chain.CallTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if retries := os.Getenv("CHAIN_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			cfg.Chain.Retries = n
		}
	}

	cfg.Store.Path = getEnv("STORE_PATH", cfg.Store.Path)
	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)

	// Allowed origins from comma-separated list
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
