package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedConfig "github.com/micropaywall/paygate/internal/shared/config"
)

func validConfig() *Config {
	return &Config{
		Server:   sharedConfig.ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "test"},
		Database: sharedConfig.DatabaseConfig{Driver: "sqlite", Database: ":memory:"},
		Intent:   sharedConfig.IntentConfig{DefaultTTL: 15 * time.Minute, MaxTTL: 24 * time.Hour},
		Token: sharedConfig.TokenConfig{
			Issuer:       "paygate",
			Algorithm:    "HS256",
			KeySource:    "static",
			Secret:       "test-secret",
			DefaultTTL:   24 * time.Hour,
			PermanentTTL: 100 * 365 * 24 * time.Hour,
		},
		RPC: sharedConfig.RPCConfig{
			Timeout:        5 * time.Second,
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     time.Second,
		},
		Chains: []sharedConfig.ChainConfig{
			{
				Name:      "Solana",
				Kind:      "solana",
				Currency:  "SOL",
				Decimals:  9,
				Endpoints: []string{"https://api.devnet.solana.com"},
			},
		},
		Scheduler: sharedConfig.SchedulerConfig{
			ExpireInterval:    time.Minute,
			ReconcileInterval: 5 * time.Minute,
			ReconcileLookback: time.Hour,
			BatchSize:         100,
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid config normalizes chain names", func(t *testing.T) {
		cfg := validConfig()
		require.NoError(t, Validate(cfg))
		assert.Equal(t, "solana", cfg.Chains[0].Name)
	})

	t.Run("static key source requires secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.Token.Secret = ""
		assert.Error(t, Validate(cfg))
	})

	t.Run("secrets manager source requires arn", func(t *testing.T) {
		cfg := validConfig()
		cfg.Token.KeySource = "aws_secrets_manager"
		cfg.Token.Secret = ""
		assert.Error(t, Validate(cfg))

		cfg.Token.SecretARN = "arn:aws:secretsmanager:us-east-1:123456789012:secret:paygate"
		assert.NoError(t, Validate(cfg))
	})

	t.Run("evm chain requires chain id", func(t *testing.T) {
		cfg := validConfig()
		cfg.Chains = append(cfg.Chains, sharedConfig.ChainConfig{
			Name:      "polygon",
			Kind:      "evm",
			Currency:  "POL",
			Decimals:  18,
			Endpoints: []string{"https://polygon-rpc.com"},
		})
		assert.Error(t, Validate(cfg))

		cfg.Chains[1].ChainID = 137
		assert.NoError(t, Validate(cfg))
	})

	t.Run("chain without endpoints is rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Chains[0].Endpoints = nil
		assert.Error(t, Validate(cfg))
	})

	t.Run("duplicate chain names are rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Chains = append(cfg.Chains, cfg.Chains[0])
		assert.Error(t, Validate(cfg))
	})

	t.Run("max ttl below default ttl is rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Intent.MaxTTL = time.Minute
		assert.Error(t, Validate(cfg))
	})
}
