package staking

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"chainsim/core/types"
	"chainsim/crypto"
)

// RemainderPolicy decides where the dust left by pro-rata truncation of a
// reward distribution ends up.
type RemainderPolicy string

const (
	// RemainderToValidator credits the dust to the validator's commission.
	RemainderToValidator RemainderPolicy = "validator"
	// RemainderDiscard leaves the dust unallocated in the reward pool.
	RemainderDiscard RemainderPolicy = "discard"
	// RemainderCarry keeps the dust on the validator and adds it to the next
	// distribution.
	RemainderCarry RemainderPolicy = "carry"
)

// ParseRemainderPolicy accepts the policy names used in configuration.
func ParseRemainderPolicy(value string) (RemainderPolicy, error) {
	switch policy := RemainderPolicy(strings.ToLower(strings.TrimSpace(value))); policy {
	case "":
		return RemainderToValidator, nil
	case RemainderToValidator, RemainderDiscard, RemainderCarry:
		return policy, nil
	default:
		return "", fmt.Errorf("staking: unknown remainder policy %q", value)
	}
}

const maxBasisPoints = 10_000

// Params are the chain-wide staking parameters.
type Params struct {
	BondDenom       string
	UnbondingBlocks uint64
	RemainderPolicy RemainderPolicy
	// MinDelegation is the smallest amount a single delegation may add.
	// Zero disables the check.
	MinDelegation uint64
}

// DefaultParams mirror the defaults of the chain configuration.
func DefaultParams() Params {
	return Params{
		BondDenom:       "ustake",
		UnbondingBlocks: 100,
		RemainderPolicy: RemainderToValidator,
	}
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if err := types.ValidateDenom(p.BondDenom); err != nil {
		return fmt.Errorf("staking: bond denom: %w", err)
	}
	if p.UnbondingBlocks == 0 {
		return fmt.Errorf("staking: unbonding blocks must be at least 1")
	}
	if _, err := ParseRemainderPolicy(string(p.RemainderPolicy)); err != nil {
		return err
	}
	return nil
}

var (
	// BondedPool holds delegated and unbonding stake.
	BondedPool = crypto.ModuleAddress("bonded_pool")
	// RewardPool holds minted rewards until they are withdrawn.
	RewardPool = crypto.ModuleAddress("reward_pool")
)

func zero() *uint256.Int { return new(uint256.Int) }

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return zero()
	}
	return v
}
