package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != DefaultChainID || cfg.MaxCallDepth != DefaultMaxCallDepth {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !again.Block.StartTime.Equal(cfg.Block.StartTime) || again.Staking != cfg.Staking {
		t.Fatalf("reloaded config differs: %+v vs %+v", again, cfg)
	}
}

func TestLoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `ChainID = "testnet-7"
MaxCallDepth = 8

[Block]
StartHeight = 500
StartTime = 2025-03-01T12:00:00Z
BlockSeconds = 6

[Staking]
BondDenom = "uatom"
UnbondingBlocks = 21
RemainderPolicy = "carry"
MinDelegation = 10

[Logging]
Level = "debug"
Format = "text"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != "testnet-7" || cfg.MaxCallDepth != 8 {
		t.Fatalf("unexpected chain settings: %+v", cfg)
	}
	if cfg.Block.StartHeight != 500 || cfg.Block.BlockSeconds != 6 {
		t.Fatalf("unexpected block settings: %+v", cfg.Block)
	}
	if want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC); !cfg.Block.StartTime.Equal(want) {
		t.Fatalf("unexpected start time: %s", cfg.Block.StartTime)
	}
	if cfg.Staking.BondDenom != "uatom" || cfg.Staking.UnbondingBlocks != 21 ||
		cfg.Staking.RemainderPolicy != RemainderCarry || cfg.Staking.MinDelegation != 10 {
		t.Fatalf("unexpected staking settings: %+v", cfg.Staking)
	}
	if cfg.Bech32Prefix != DefaultBech32Prefix {
		t.Fatalf("expected default prefix, got %q", cfg.Bech32Prefix)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Fatalf("unexpected logging settings: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("Bogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"empty chain id":   func(c *Config) { c.ChainID = " " },
		"upper prefix":     func(c *Config) { c.Bech32Prefix = "SIM" },
		"zero depth":       func(c *Config) { c.MaxCallDepth = 0 },
		"bad denom":        func(c *Config) { c.Staking.BondDenom = "1x" },
		"bad policy":       func(c *Config) { c.Staking.RemainderPolicy = "burn" },
		"bad level":        func(c *Config) { c.Logging.Level = "trace" },
		"bad format":       func(c *Config) { c.Logging.Format = "xml" },
		"negative backups": func(c *Config) { c.Logging.MaxBackups = -1 },
		"sample ratio":     func(c *Config) { c.Tracing.SampleRatio = 2 },
		"zero unbonding":   func(c *Config) { c.Staking.UnbondingBlocks = 0 },
		"huge block step":  func(c *Config) { c.Block.BlockSeconds = MaxBlockSeconds + 1 },
		"no endpoint": func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Endpoint = ""
		},
	}
	if err := ValidateConfig(Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := ValidateConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Staking.UnbondingBlocks = 3
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Staking.UnbondingBlocks != 3 {
		t.Fatalf("unexpected unbonding blocks %d", loaded.Staking.UnbondingBlocks)
	}
}

func TestLoadRejectsZeroUnbondingBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[Staking]\nUnbondingBlocks = 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unbonding_blocks") {
		t.Fatalf("expected unbonding blocks error, got %v", err)
	}
}

func TestLoadDefaultsOmittedNumericFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("ChainID = \"partial-1\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.Staking.UnbondingBlocks != def.Staking.UnbondingBlocks {
		t.Fatalf("expected default unbonding blocks, got %d", cfg.Staking.UnbondingBlocks)
	}
	if cfg.Tracing.SampleRatio != def.Tracing.SampleRatio {
		t.Fatalf("expected default sample ratio, got %v", cfg.Tracing.SampleRatio)
	}
}

func TestLoadKeepsExplicitZeroSampleRatio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[Tracing]\nSampleRatio = 0.0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tracing.SampleRatio != 0 {
		t.Fatalf("expected sample ratio 0 to be kept, got %v", cfg.Tracing.SampleRatio)
	}
}

func TestLoadParsesTracingExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `[Tracing]
Enabled = true
Endpoint = "collector:4318"
Insecure = true
Metrics = true

[Tracing.Headers]
authorization = "Bearer token"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tr := cfg.Tracing
	if !tr.Enabled || tr.Endpoint != "collector:4318" || !tr.Insecure || !tr.Metrics {
		t.Fatalf("unexpected tracing settings: %+v", tr)
	}
	if tr.Headers["authorization"] != "Bearer token" {
		t.Fatalf("unexpected headers: %v", tr.Headers)
	}
}
