package config

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const authorityKey = "Fg6PaFpoGkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"CREDENTIA_ADDR", "LOG_LEVEL", "LOG_FORMAT", "PROGRAM_ID", "LEDGER_BACKEND",
		"DATABASE_URL", "REDIS_URL", "SQLITE_PATH", "INSTITUTION_REGISTRATION",
		"INSTITUTION_AUTHORITY", "SIGNATURE_MAX_SKEW", "SHUTDOWN_TIMEOUT",
		"REDIS_POOL_SIZE", "REDIS_MIN_IDLE_CONNS", "LEDGER_TX_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.ProgramID.IsZero())
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, RegistrationOpen, cfg.Registry.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Auth.MaxSkew)
	assert.Equal(t, 5*time.Second, cfg.Ledger.TxTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CREDENTIA_ADDR", ":9090")
	t.Setenv("LOG_FORMAT", "TEXT")
	t.Setenv("PROGRAM_ID", authorityKey)
	t.Setenv("LEDGER_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/credentia")
	t.Setenv("INSTITUTION_REGISTRATION", "authority")
	t.Setenv("INSTITUTION_AUTHORITY", authorityKey)
	t.Setenv("SIGNATURE_MAX_SKEW", "30s")
	t.Setenv("REDIS_POOL_SIZE", "25")
	t.Setenv("LEDGER_TX_TIMEOUT", "750ms")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, solana.MustPublicKeyFromBase58(authorityKey), cfg.ProgramID)
	assert.Equal(t, BackendPostgres, cfg.Ledger.Backend)
	assert.Equal(t, RegistrationAuthority, cfg.Registry.Mode)
	assert.Equal(t, 30*time.Second, cfg.Auth.MaxSkew)
	assert.Equal(t, 25, cfg.Redis.PoolSize)
	assert.Equal(t, 750*time.Millisecond, cfg.Ledger.TxTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnvMalformed(t *testing.T) {
	cases := map[string]string{
		"PROGRAM_ID":            "not-a-key",
		"INSTITUTION_AUTHORITY": "0OIl",
		"SIGNATURE_MAX_SKEW":    "five minutes",
		"REDIS_POOL_SIZE":       "many",
		"LEDGER_TX_TIMEOUT":     "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Server {
		return Server{
			LogFormat: "json",
			Ledger:    Ledger{Backend: BackendMemory, TxTimeout: time.Second},
			Auth:      Auth{MaxSkew: time.Minute},
			Registry:  Registry{Mode: RegistrationOpen},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Server)
		wantErr string
	}{
		{"unknown backend", func(c *Server) { c.Ledger.Backend = "mongo" }, "LEDGER_BACKEND"},
		{"postgres without url", func(c *Server) { c.Ledger.Backend = BackendPostgres }, "DATABASE_URL"},
		{"redis without url", func(c *Server) { c.Ledger.Backend = BackendRedis }, "REDIS_URL"},
		{"sqlite without path", func(c *Server) { c.Ledger.Backend = BackendSQLite }, "SQLITE_PATH"},
		{"authority mode without key", func(c *Server) { c.Registry.Mode = RegistrationAuthority }, "INSTITUTION_AUTHORITY"},
		{"unknown registration mode", func(c *Server) { c.Registry.Mode = "closed" }, "INSTITUTION_REGISTRATION"},
		{"bad log format", func(c *Server) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"non-positive skew", func(c *Server) { c.Auth.MaxSkew = 0 }, "SIGNATURE_MAX_SKEW"},
		{"non-positive ledger timeout", func(c *Server) { c.Ledger.TxTimeout = 0 }, "LEDGER_TX_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	assert.NoError(t, valid().Validate())
}
