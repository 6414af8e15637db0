package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the chain level configuration of a simulator instance.
type Config struct {
	ChainID      string  `toml:"ChainID"`
	Bech32Prefix string  `toml:"Bech32Prefix"`
	MaxCallDepth int     `toml:"MaxCallDepth"`
	Block        Block   `toml:"Block"`
	Staking      Staking `toml:"Staking"`
	Logging      Logging `toml:"Logging"`
	Tracing      Tracing `toml:"Tracing"`
}

const (
	DefaultChainID      = "chainsim-1"
	DefaultBech32Prefix = "sim"
	DefaultMaxCallDepth = 64
	DefaultBondDenom    = "ustake"
)

// DefaultStartTime is the genesis time used when none is configured. It is
// fixed so that runs are reproducible.
var DefaultStartTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Default returns the in-memory default configuration.
func Default() *Config {
	return &Config{
		ChainID:      DefaultChainID,
		Bech32Prefix: DefaultBech32Prefix,
		MaxCallDepth: DefaultMaxCallDepth,
		Block: Block{
			StartHeight:  1,
			StartTime:    DefaultStartTime,
			BlockSeconds: 5,
		},
		Staking: Staking{
			BondDenom:       DefaultBondDenom,
			UnbondingBlocks: 100,
			RemainderPolicy: RemainderValidator,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Tracing: Tracing{
			ServiceName: "chainsim",
			SampleRatio: 1,
		},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}

	applyDefaults(cfg, meta)
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills every unset field from Default. Numeric fields where
// zero is meaningful are only filled when the file omits them.
func applyDefaults(cfg *Config, meta toml.MetaData) {
	def := Default()
	if strings.TrimSpace(cfg.ChainID) == "" {
		cfg.ChainID = def.ChainID
	}
	if strings.TrimSpace(cfg.Bech32Prefix) == "" {
		cfg.Bech32Prefix = def.Bech32Prefix
	}
	if cfg.MaxCallDepth == 0 {
		cfg.MaxCallDepth = def.MaxCallDepth
	}
	if cfg.Block.StartTime.IsZero() {
		cfg.Block.StartTime = def.Block.StartTime
	}
	if cfg.Block.BlockSeconds == 0 {
		cfg.Block.BlockSeconds = def.Block.BlockSeconds
	}
	if cfg.Staking.BondDenom == "" {
		cfg.Staking.BondDenom = def.Staking.BondDenom
	}
	if !meta.IsDefined("Staking", "UnbondingBlocks") {
		cfg.Staking.UnbondingBlocks = def.Staking.UnbondingBlocks
	}
	if cfg.Staking.RemainderPolicy == "" {
		cfg.Staking.RemainderPolicy = def.Staking.RemainderPolicy
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = def.Tracing.ServiceName
	}
	if !meta.IsDefined("Tracing", "SampleRatio") {
		cfg.Tracing.SampleRatio = def.Tracing.SampleRatio
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Save writes cfg to path in TOML form.
func Save(path string, cfg *Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	return persist(path, cfg)
}
