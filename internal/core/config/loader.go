package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 7000
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "localhost"
	}
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 1
	}
	if cfg.Chain.ReconnectInterval == 0 {
		cfg.Chain.ReconnectInterval = 5 * time.Second
	}
	if cfg.Chain.ReceiptInterval == 0 {
		cfg.Chain.ReceiptInterval = 2 * time.Second
	}

	if cfg.Chain.WSProvider == "" {
		return nil, fmt.Errorf("chain.ws_provider is required")
	}

	return &cfg, nil
}
