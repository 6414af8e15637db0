package config

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// MaxBlockSeconds is the largest block step that still fits a time.Duration.
const MaxBlockSeconds = uint64(math.MaxInt64 / int64(time.Second))

var (
	MaxCallDepthLimit = 1024

	denomPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9/:._-]{2,127}$`)
)

func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if strings.TrimSpace(cfg.ChainID) == "" {
		return fmt.Errorf("config: chain id required")
	}
	if strings.ToLower(cfg.Bech32Prefix) != cfg.Bech32Prefix || strings.TrimSpace(cfg.Bech32Prefix) == "" {
		return fmt.Errorf("config: bech32 prefix must be non-empty lower case")
	}
	if cfg.MaxCallDepth <= 0 || cfg.MaxCallDepth > MaxCallDepthLimit {
		return fmt.Errorf("config: max_call_depth must be in 1..%d", MaxCallDepthLimit)
	}
	if cfg.Block.BlockSeconds > MaxBlockSeconds {
		return fmt.Errorf("block: block_seconds must not exceed %d", MaxBlockSeconds)
	}
	if !denomPattern.MatchString(cfg.Staking.BondDenom) {
		return fmt.Errorf("staking: invalid bond denom %q", cfg.Staking.BondDenom)
	}
	if cfg.Staking.UnbondingBlocks < 1 {
		return fmt.Errorf("staking: unbonding_blocks must be at least 1")
	}
	switch strings.ToLower(cfg.Staking.RemainderPolicy) {
	case RemainderValidator, RemainderDiscard, RemainderCarry:
	default:
		return fmt.Errorf("staking: unknown remainder policy %q", cfg.Staking.RemainderPolicy)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging: unknown format %q", cfg.Logging.Format)
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxBackups < 0 || cfg.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing: sample ratio must be within [0,1]")
	}
	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
		return fmt.Errorf("tracing: endpoint required when tracing is enabled")
	}
	return nil
}
