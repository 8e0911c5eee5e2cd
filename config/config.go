// Package config maps environment variables onto one immutable struct.
// Everything the process needs is loaded once at startup and passed
// explicitly to constructors; nothing reads os.Getenv after Load returns.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// --- HTTP ---
	Port           int    `envconfig:"PORT" default:"5200"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// --- Database ---
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// --- Logging ---
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// --- CryptoBot (Crypto Pay API) ---
	CryptoBotToken  string `envconfig:"CRYPTOBOT_TOKEN" required:"true"`
	CryptoBotAPIURL string `envconfig:"CRYPTOBOT_API_URL" default:"https://pay.crypt.bot/api"`
	CryptoBotAsset  string `envconfig:"CRYPTOBOT_ASSET" default:"TON"`

	// --- TON indexer ---
	TonAPIURL     string `envconfig:"TON_API_URL" default:"https://toncenter.com/api/v2"`
	TonAPIKey     string `envconfig:"TON_API_KEY"`
	TonWalletAddr string `envconfig:"TON_WALLET_ADDRESS" required:"true"`

	// --- Reconciliation ---
	TonPollInterval       time.Duration `envconfig:"TON_POLL_INTERVAL" default:"2m"`
	CryptoBotPollInterval time.Duration `envconfig:"CRYPTOBOT_POLL_INTERVAL" default:"1m"`
	VerifyTimeout         time.Duration `envconfig:"VERIFY_TIMEOUT" default:"15s"`
	MaxVerifyAttempts     int           `envconfig:"MAX_VERIFY_ATTEMPTS" default:"30"`
	SweepBatchSize        int           `envconfig:"SWEEP_BATCH_SIZE" default:"100"`

	// --- Gateway auth (optional; empty disables the check) ---
	GatewayServiceToken string `envconfig:"GATEWAY_SERVICE_TOKEN"`

	// --- R2 object storage (avatars) ---
	R2AccountID       string `envconfig:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID     string `envconfig:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret string `envconfig:"R2_ACCESS_KEY_SECRET"`
	R2Bucket          string `envconfig:"R2_BUCKET_NAME"`
	CDNBaseURL        string `envconfig:"CDN_BASE_URL"`
}

func (c *Config) Validate() error {
	if c.TonPollInterval <= 0 || c.CryptoBotPollInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.MaxVerifyAttempts <= 0 {
		return fmt.Errorf("MAX_VERIFY_ATTEMPTS must be > 0")
	}
	if c.SweepBatchSize <= 0 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be > 0")
	}
	return nil
}

// Load reads the environment into a Config. Call godotenv.Load first if a
// .env file should be honored.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
