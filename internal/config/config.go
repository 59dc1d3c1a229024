package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the indexer
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Chains    ChainsConfig
	Scanner   ScannerConfig
	Fetcher   FetcherConfig
	Sync      SyncConfig
	Dispatch  DispatchConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	Proxy     ProxyConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// ChainsConfig binds the two-chain deployment
type ChainsConfig struct {
	Primary string // chain acting as tie-break authority
	Mirror  string
	Polygon PolygonConfig
	Solana  SolanaConfig
}

// PolygonConfig holds the authoritative EVM chain settings
type PolygonConfig struct {
	RPCURL          string
	Contracts       []string // registry, resolver, wrapper addresses
	StartBlock      int64
	RelayEndpoint   string
	RelayAPIKey     string
	RelayTimeoutSec int
}

// SolanaConfig holds the mirror chain settings
type SolanaConfig struct {
	RPCURL          string
	ProgramID       string
	StartSlot       int64
	RelayEndpoint   string
	RelayAPIKey     string
	RelayTimeoutSec int
}

// ScannerConfig holds scan loop settings shared by both chains
type ScannerConfig struct {
	BatchSize       int64
	IntervalSeconds int
}

// FetcherConfig holds chunked log fetch settings
type FetcherConfig struct {
	MaxChunk    int64
	MaxRetries  int
	BaseDelayMS int
	MaxDelaySec int
	RPS         float64
}

// SyncConfig holds cross-chain sync settings
type SyncConfig struct {
	Policy string // "primary-priority" or "latest-write-wins"
}

// DispatchConfig holds job dispatch worker settings
type DispatchConfig struct {
	IntervalSeconds int
	ClaimLimit      int
	MaxRetries      int
	BaseDelaySec    int
	MaxDelaySec     int
	LeaseSeconds    int
}

// AuthConfig holds authentication settings for the admin surface
type AuthConfig struct {
	Type         string   // "none" or "api-key"
	APIKeyHashes []string // SHA-256 hashes of accepted operator keys
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled     bool
	Port        int
	ServiceName string
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 30),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/pns-indexer.db"),
			},
		},
		Chains: ChainsConfig{
			Primary: getEnv("PRIMARY_CHAIN", "polygon"),
			Mirror:  getEnv("MIRROR_CHAIN", "solana"),
			Polygon: PolygonConfig{
				RPCURL:          getEnv("POLYGON_RPC_URL", ""),
				Contracts:       getEnvStringSlice("POLYGON_CONTRACTS", nil),
				StartBlock:      getEnvInt64("POLYGON_START_BLOCK", 0),
				RelayEndpoint:   getEnv("POLYGON_RELAY_ENDPOINT", ""),
				RelayAPIKey:     getEnv("POLYGON_RELAY_API_KEY", ""),
				RelayTimeoutSec: getEnvInt("POLYGON_RELAY_TIMEOUT", 30),
			},
			Solana: SolanaConfig{
				RPCURL:          getEnv("SOLANA_RPC_URL", ""),
				ProgramID:       getEnv("SOLANA_PROGRAM_ID", "EB6pbr3ZRnZv1bhgffQuuER5armxMRNauNWRabzuiaNj"),
				StartSlot:       getEnvInt64("SOLANA_START_SLOT", 0),
				RelayEndpoint:   getEnv("SOLANA_RELAY_ENDPOINT", ""),
				RelayAPIKey:     getEnv("SOLANA_RELAY_API_KEY", ""),
				RelayTimeoutSec: getEnvInt("SOLANA_RELAY_TIMEOUT", 30),
			},
		},
		Scanner: ScannerConfig{
			BatchSize:       getEnvInt64("SCAN_BATCH_SIZE", 500),
			IntervalSeconds: getEnvInt("SCAN_INTERVAL_SECONDS", 15),
		},
		Fetcher: FetcherConfig{
			MaxChunk:    getEnvInt64("FETCH_MAX_CHUNK", 2000),
			MaxRetries:  getEnvInt("FETCH_MAX_RETRIES", 5),
			BaseDelayMS: getEnvInt("FETCH_BASE_DELAY_MS", 500),
			MaxDelaySec: getEnvInt("FETCH_MAX_DELAY_SECONDS", 30),
			RPS:         getEnvFloat("FETCH_RPS", 10),
		},
		Sync: SyncConfig{
			Policy: getEnv("CONFLICT_POLICY", "primary-priority"),
		},
		Dispatch: DispatchConfig{
			IntervalSeconds: getEnvInt("DISPATCH_INTERVAL_SECONDS", 5),
			ClaimLimit:      getEnvInt("DISPATCH_CLAIM_LIMIT", 20),
			MaxRetries:      getEnvInt("DISPATCH_MAX_RETRIES", 8),
			BaseDelaySec:    getEnvInt("DISPATCH_BASE_DELAY_SECONDS", 2),
			MaxDelaySec:     getEnvInt("DISPATCH_MAX_DELAY_SECONDS", 300),
			LeaseSeconds:    getEnvInt("DISPATCH_LEASE_SECONDS", 300),
		},
		Auth: AuthConfig{
			Type:         getEnv("AUTH_TYPE", "none"),
			APIKeyHashes: getEnvStringSlice("ADMIN_API_KEY_HASHES", nil),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled:     getEnvBool("METRICS_ENABLED", true),
			Port:        getEnvInt("METRICS_PORT", 9090),
			ServiceName: getEnv("METRICS_SERVICE_NAME", "pns-indexer"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
