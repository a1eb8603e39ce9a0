package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Ledger backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
)

// Institution registration modes.
const (
	RegistrationOpen      = "open"
	RegistrationAuthority = "authority"
)

const (
	defaultAddr            = ":8080"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultSQLitePath      = "credentia.db"
	defaultSignatureSkew   = 5 * time.Minute
	defaultShutdownTimeout = 10 * time.Second
	defaultLedgerTxTimeout = 5 * time.Second
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	LogFormat       string
	ProgramID       solana.PublicKey
	ShutdownTimeout time.Duration

	Ledger   Ledger
	Redis    RedisConfig
	Auth     Auth
	Registry Registry
}

// Ledger selects and locates the record store.
type Ledger struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
	// TxTimeout bounds a ledger transaction whose caller set no deadline.
	TxTimeout time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Auth configures request signature checks.
type Auth struct {
	MaxSkew time.Duration
}

// Registry configures who may create institution records.
type Registry struct {
	Mode      string
	Authority solana.PublicKey
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Malformed values are reported; semantic checks live in Validate.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:            getEnv("CREDENTIA_ADDR", defaultAddr),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		ShutdownTimeout: defaultShutdownTimeout,
		Ledger: Ledger{
			Backend:     strings.ToLower(getEnv("LEDGER_BACKEND", BackendMemory)),
			DatabaseURL: os.Getenv("DATABASE_URL"),
			SQLitePath:  getEnv("SQLITE_PATH", defaultSQLitePath),
			TxTimeout:   defaultLedgerTxTimeout,
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Auth:     Auth{MaxSkew: defaultSignatureSkew},
		Registry: Registry{Mode: strings.ToLower(getEnv("INSTITUTION_REGISTRATION", RegistrationOpen))},
	}

	var err error
	if cfg.ProgramID, err = parseKey("PROGRAM_ID"); err != nil {
		return Server{}, err
	}
	if cfg.Registry.Authority, err = parseKey("INSTITUTION_AUTHORITY"); err != nil {
		return Server{}, err
	}
	if cfg.Auth.MaxSkew, err = parseDuration("SIGNATURE_MAX_SKEW", cfg.Auth.MaxSkew); err != nil {
		return Server{}, err
	}
	if cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Server{}, err
	}
	if cfg.Ledger.TxTimeout, err = parseDuration("LEDGER_TX_TIMEOUT", cfg.Ledger.TxTimeout); err != nil {
		return Server{}, err
	}
	if cfg.Redis.PoolSize, err = parseInt("REDIS_POOL_SIZE", cfg.Redis.PoolSize); err != nil {
		return Server{}, err
	}
	if cfg.Redis.MinIdleConns, err = parseInt("REDIS_MIN_IDLE_CONNS", cfg.Redis.MinIdleConns); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks that the selected options are consistent.
func (c Server) Validate() error {
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	switch c.Ledger.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Ledger.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for the postgres backend")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL must be set for the redis backend")
		}
	case BackendSQLite:
		if c.Ledger.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must be set for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.Ledger.Backend)
	}
	switch c.Registry.Mode {
	case RegistrationOpen:
	case RegistrationAuthority:
		if c.Registry.Authority.IsZero() {
			return fmt.Errorf("INSTITUTION_AUTHORITY must be set when INSTITUTION_REGISTRATION=authority")
		}
	default:
		return fmt.Errorf("INSTITUTION_REGISTRATION must be open or authority, got %q", c.Registry.Mode)
	}
	if c.Auth.MaxSkew <= 0 {
		return fmt.Errorf("SIGNATURE_MAX_SKEW must be positive")
	}
	if c.Ledger.TxTimeout <= 0 {
		return fmt.Errorf("LEDGER_TX_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseKey(key string) (solana.PublicKey, error) {
	v := os.Getenv(key)
	if v == "" {
		return solana.PublicKey{}, nil
	}
	pk, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return pk, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
