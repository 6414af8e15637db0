package config

import "time"

// Block controls the simulated block clock.
type Block struct {
	StartHeight uint64    `toml:"StartHeight"`
	StartTime   time.Time `toml:"StartTime"`
	// BlockSeconds is the time advanced by a single NextBlock.
	BlockSeconds uint64 `toml:"BlockSeconds"`
}

// Remainder policies accepted in [Staking].
const (
	RemainderValidator = "validator"
	RemainderDiscard   = "discard"
	RemainderCarry     = "carry"
)

// Staking carries the staking module parameters.
type Staking struct {
	BondDenom       string `toml:"BondDenom"`
	UnbondingBlocks uint64 `toml:"UnbondingBlocks"`
	RemainderPolicy string `toml:"RemainderPolicy"`
	MinDelegation   uint64 `toml:"MinDelegation"`
}

// Logging configures the structured logger. File enables rotating file
// output instead of stdout.
type Logging struct {
	Level      string `toml:"Level"`
	Format     string `toml:"Format"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Tracing configures the span pipeline attached to message dispatch.
type Tracing struct {
	Enabled     bool    `toml:"Enabled"`
	ServiceName string  `toml:"ServiceName"`
	Environment string  `toml:"Environment"`
	SampleRatio float64 `toml:"SampleRatio"`
	// Endpoint is the host:port of an OTLP/HTTP collector.
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Headers  map[string]string `toml:"Headers"`
	// Metrics also exports router counters to the collector.
	Metrics bool `toml:"Metrics"`
}
