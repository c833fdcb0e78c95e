package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host           string   `mapstructure:"host" validate:"required"`
	Port           int      `mapstructure:"port" validate:"min=1,max=65535"`
	Mode           string   `mapstructure:"mode" validate:"oneof=debug release test"`
	PublicBaseURL  string   `mapstructure:"public_base_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" validate:"oneof=mysql postgres sqlite"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database" validate:"required"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// GetDSN returns the driver-specific data source name. For sqlite the
// database field is the file path (or ":memory:").
func (d *DatabaseConfig) GetDSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			d.Host, d.Port, d.Username, d.Password, d.Database)
	case "sqlite":
		return d.Database
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&collation=utf8mb4_general_ci&parseTime=true&loc=UTC",
			d.Username, d.Password, d.Host, d.Port, d.Database)
	}
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IntentConfig bounds the time-to-live of payment intents.
type IntentConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl" validate:"gt=0"`
	MaxTTL     time.Duration `mapstructure:"max_ttl" validate:"gtefield=DefaultTTL"`
}

type TokenConfig struct {
	Issuer           string        `mapstructure:"issuer" validate:"required"`
	Algorithm        string        `mapstructure:"algorithm" validate:"oneof=HS256 EdDSA"`
	KeySource        string        `mapstructure:"key_source" validate:"oneof=static aws_secrets_manager"`
	Secret           string        `mapstructure:"secret" validate:"required_if=KeySource static"`
	SecretARN        string        `mapstructure:"secret_arn" validate:"required_if=KeySource aws_secrets_manager"`
	AWSRegion        string        `mapstructure:"aws_region"`
	DefaultTTL       time.Duration `mapstructure:"default_ttl" validate:"gt=0"`
	PermanentTTL     time.Duration `mapstructure:"permanent_ttl" validate:"gtefield=DefaultTTL"`
	SingleUseDefault bool          `mapstructure:"single_use_default"`
}

// ChainConfig describes one supported chain and how to reach it.
type ChainConfig struct {
	Name              string   `mapstructure:"name" validate:"required"`
	Kind              string   `mapstructure:"kind" validate:"oneof=solana evm"`
	ChainID           int64    `mapstructure:"chain_id" validate:"required_if=Kind evm"`
	Currency          string   `mapstructure:"currency" validate:"required"`
	Decimals          int32    `mapstructure:"decimals" validate:"min=0,max=36"`
	Endpoints         []string `mapstructure:"endpoints" validate:"min=1,dive,url"`
	MinConfirmations  int      `mapstructure:"min_confirmations"`
	Commitment        string   `mapstructure:"commitment" validate:"omitempty,oneof=confirmed finalized"`
	SupportsReference bool     `mapstructure:"supports_reference"`
}

// RPCConfig is the retry policy applied to every chain's RPC pool.
type RPCConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxAttempts       int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff" validate:"gt=0"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff" validate:"gtefield=InitialBackoff"`
	JitterPercent     uint64        `mapstructure:"jitter_percent" validate:"max=100"`
	UnhealthyCooldown time.Duration `mapstructure:"unhealthy_cooldown"`
}

type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

type RateLimitConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	CreatePerMinute int  `mapstructure:"create_per_minute"`
	VerifyPerMinute int  `mapstructure:"verify_per_minute"`
}

type SchedulerConfig struct {
	ExpireInterval    time.Duration `mapstructure:"expire_interval" validate:"gt=0"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" validate:"gt=0"`
	ReconcileLookback time.Duration `mapstructure:"reconcile_lookback" validate:"gt=0"`
	// ReconcileMissThreshold is the number of consecutive failed re-checks
	// that reverses a payment. Zero selects the built-in default.
	ReconcileMissThreshold int `mapstructure:"reconcile_miss_threshold" validate:"min=0"`
	BatchSize              int `mapstructure:"batch_size" validate:"min=1"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}
