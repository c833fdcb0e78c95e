package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	sharedConfig "github.com/micropaywall/paygate/internal/shared/config"
)

type Config struct {
	Server    sharedConfig.ServerConfig    `mapstructure:"server"`
	Database  sharedConfig.DatabaseConfig  `mapstructure:"database"`
	Logger    sharedConfig.LoggerConfig    `mapstructure:"logger"`
	Redis     sharedConfig.RedisConfig     `mapstructure:"redis"`
	Intent    sharedConfig.IntentConfig    `mapstructure:"intent"`
	Token     sharedConfig.TokenConfig     `mapstructure:"token"`
	RPC       sharedConfig.RPCConfig       `mapstructure:"rpc"`
	Chains    []sharedConfig.ChainConfig   `mapstructure:"chains" validate:"min=1,dive"`
	Webhook   sharedConfig.WebhookConfig   `mapstructure:"webhook"`
	RateLimit sharedConfig.RateLimitConfig `mapstructure:"rate_limit"`
	Scheduler sharedConfig.SchedulerConfig `mapstructure:"scheduler"`
	Metrics   sharedConfig.MetricsConfig   `mapstructure:"metrics"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads configPath, or configs/config.yaml when it is empty, overlays
// PAYGATE_* environment variables (after loading an optional .env file) and
// validates the result.
func Load(env, configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("PAYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if env != "" && env != "default" {
		v.Set("server.mode", env)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Validate applies the struct tag rules and the chain-level invariants.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := make(map[string]struct{}, len(cfg.Chains))
	for i := range cfg.Chains {
		name := strings.ToLower(cfg.Chains[i].Name)
		if _, dup := seen[name]; dup {
			return fmt.Errorf("invalid configuration: chain %q configured twice", name)
		}
		seen[name] = struct{}{}
		cfg.Chains[i].Name = name
	}
	return nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.public_base_url", "")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "paygate_dev")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("intent.default_ttl", "15m")
	v.SetDefault("intent.max_ttl", "24h")

	v.SetDefault("token.issuer", "paygate")
	v.SetDefault("token.algorithm", "HS256")
	v.SetDefault("token.key_source", "static")
	v.SetDefault("token.secret", "")
	v.SetDefault("token.secret_arn", "")
	v.SetDefault("token.aws_region", "")
	v.SetDefault("token.default_ttl", "24h")
	v.SetDefault("token.permanent_ttl", "876000h")
	v.SetDefault("token.single_use_default", false)

	v.SetDefault("rpc.timeout", "10s")
	v.SetDefault("rpc.max_attempts", 3)
	v.SetDefault("rpc.initial_backoff", "250ms")
	v.SetDefault("rpc.max_backoff", "2s")
	v.SetDefault("rpc.jitter_percent", 20)
	v.SetDefault("rpc.unhealthy_cooldown", "30s")

	v.SetDefault("chains", []map[string]any{
		{
			"name":               "solana",
			"kind":               "solana",
			"currency":           "SOL",
			"decimals":           9,
			"endpoints":          []string{"https://api.mainnet-beta.solana.com"},
			"commitment":         "confirmed",
			"supports_reference": true,
		},
	})

	v.SetDefault("webhook.secret", "")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.create_per_minute", 10)
	v.SetDefault("rate_limit.verify_per_minute", 20)

	v.SetDefault("scheduler.expire_interval", "1m")
	v.SetDefault("scheduler.reconcile_interval", "5m")
	v.SetDefault("scheduler.reconcile_lookback", "1h")
	v.SetDefault("scheduler.reconcile_miss_threshold", 3)
	v.SetDefault("scheduler.batch_size", 200)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
}
