package config

import (
	"time"

	redisclient "github.com/halcyonlabs/walletd/internal/infra/redis"
	"github.com/halcyonlabs/walletd/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Chain    ChainConfig        `yaml:"chain"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ChainConfig holds the chain provider settings.
type ChainConfig struct {
	WSProvider        string        `yaml:"ws_provider"`
	ChainID           int64         `yaml:"chain_id"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ReceiptInterval   time.Duration `yaml:"receipt_interval"`
}
