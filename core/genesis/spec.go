// Package genesis describes the initial chain state: funded accounts and
// the validator set.
package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"chainsim/core/types"
	"chainsim/crypto"
)

// LabelPrefix marks a test account given by label instead of address,
// e.g. "label:alice".
const LabelPrefix = "label:"

const maxCommissionBps = 10_000

type Spec struct {
	ChainID    string                       `json:"chainId,omitempty" yaml:"chainId,omitempty"`
	Block      BlockSpec                    `json:"block" yaml:"block"`
	Balances   map[string]map[string]string `json:"balances,omitempty" yaml:"balances,omitempty"` // addr -> denom -> amount
	Validators []ValidatorSpec              `json:"validators,omitempty" yaml:"validators,omitempty"`
}

type BlockSpec struct {
	Height uint64 `json:"height,omitempty" yaml:"height,omitempty"`
	// Time is RFC3339; empty keeps the configured start time.
	Time string `json:"time,omitempty" yaml:"time,omitempty"`
}

type ValidatorSpec struct {
	Address        string `json:"address" yaml:"address"`
	CommissionBps  uint32 `json:"commissionBps,omitempty" yaml:"commissionBps,omitempty"`
	SelfDelegation string `json:"selfDelegation,omitempty" yaml:"selfDelegation,omitempty"`
}

// Account is a validated balance entry.
type Account struct {
	Address crypto.Address
	Coins   types.Coins
}

// Validator is a validated validator entry. SelfDelegation is zero when no
// stake is bonded at genesis.
type Validator struct {
	Address        crypto.Address
	CommissionBps  uint32
	SelfDelegation *uint256.Int
}

// Load reads a genesis spec from path. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON. Unknown fields are rejected.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec Spec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
		}
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// ParseAccount accepts a bech32 or 0x hex address, or a LabelPrefix test
// account.
func ParseAccount(value string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if label, ok := strings.CutPrefix(trimmed, LabelPrefix); ok {
		if strings.TrimSpace(label) == "" {
			return crypto.Address{}, fmt.Errorf("empty account label")
		}
		return crypto.AddressFromLabel(label), nil
	}
	return crypto.ParseAddress(trimmed)
}

func parseAmount(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must be provided")
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return amount, nil
}

// Timestamp returns the parsed genesis time, zero when unset.
func (s *Spec) Timestamp() (time.Time, error) {
	if strings.TrimSpace(s.Block.Time) == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s.Block.Time))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid block time: %w", err)
	}
	return ts.UTC(), nil
}

// Accounts returns the balance entries sorted by address.
func (s *Spec) Accounts() ([]Account, error) {
	out := make([]Account, 0, len(s.Balances))
	for account, denoms := range s.Balances {
		addr, err := ParseAccount(account)
		if err != nil {
			return nil, fmt.Errorf("balances[%q]: %w", account, err)
		}
		coins := make(types.Coins, 0, len(denoms))
		for denom, value := range denoms {
			if err := types.ValidateDenom(denom); err != nil {
				return nil, fmt.Errorf("balances[%q][%q]: %w", account, denom, err)
			}
			amount, err := parseAmount(value)
			if err != nil {
				return nil, fmt.Errorf("balances[%q][%q]: %w", account, denom, err)
			}
			coins = append(coins, types.NewCoinFromInt(amount, denom))
		}
		normalized, err := coins.Normalize()
		if err != nil {
			return nil, fmt.Errorf("balances[%q]: %w", account, err)
		}
		out = append(out, Account{Address: addr, Coins: normalized})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	for i := 1; i < len(out); i++ {
		if out[i].Address == out[i-1].Address {
			return nil, fmt.Errorf("balances: duplicate account %s", out[i].Address)
		}
	}
	return out, nil
}

// GenesisValidators returns the validator entries sorted by address.
func (s *Spec) GenesisValidators() ([]Validator, error) {
	out := make([]Validator, 0, len(s.Validators))
	for i, v := range s.Validators {
		if strings.TrimSpace(v.Address) == "" {
			return nil, fmt.Errorf("validator[%d]: address must be provided", i)
		}
		addr, err := ParseAccount(v.Address)
		if err != nil {
			return nil, fmt.Errorf("validator[%d]: %w", i, err)
		}
		if v.CommissionBps > maxCommissionBps {
			return nil, fmt.Errorf("validator[%d]: commission must be <= %d bps", i, maxCommissionBps)
		}
		self := new(uint256.Int)
		if strings.TrimSpace(v.SelfDelegation) != "" {
			if self, err = parseAmount(v.SelfDelegation); err != nil {
				return nil, fmt.Errorf("validator[%d]: selfDelegation: %w", i, err)
			}
		}
		out = append(out, Validator{Address: addr, CommissionBps: v.CommissionBps, SelfDelegation: self})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	for i := 1; i < len(out); i++ {
		if out[i].Address == out[i-1].Address {
			return nil, fmt.Errorf("validators: duplicate address %s", out[i].Address)
		}
	}
	return out, nil
}

// Validate checks every entry of the spec.
func (s *Spec) Validate() error {
	if s == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if _, err := s.Timestamp(); err != nil {
		return err
	}
	if _, err := s.Accounts(); err != nil {
		return err
	}
	if _, err := s.GenesisValidators(); err != nil {
		return err
	}
	return nil
}
