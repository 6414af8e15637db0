package core

import (
	"fmt"

	"chainsim/core/genesis"
	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/storage"
)

// commitDirect runs fn inside a fresh scope and commits it, bypassing the
// router. Genesis style setup uses it.
func (a *App) commitDirect(fn func(kv storage.KVStore) error) error {
	depth := a.store.Begin()
	if err := fn(a.store); err != nil {
		if rbErr := a.store.Rollback(depth); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return a.store.Commit(depth)
}

// InitBalance sets the balances of addr to coins, replacing what it held.
// Total supply follows.
func (a *App) InitBalance(addr crypto.Address, coins types.Coins) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.commitDirect(func(kv storage.KVStore) error {
		return a.bank.InitBalance(kv, addr, coins)
	})
}

// AddValidator registers a validator with the given commission.
func (a *App) AddValidator(validator crypto.Address, commissionBps uint32) error {
	_, err := a.Sudo(types.StakingAddValidator{Validator: validator, CommissionBps: commissionBps})
	return err
}

// LoadGenesis applies spec atomically: balances in address order, then
// validators in address order together with their self delegation. The
// genesis block replaces the configured start block unless one was given
// through WithBlock.
func (a *App) LoadGenesis(spec *genesis.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if spec.ChainID != "" && spec.ChainID != a.cfg.ChainID {
		return fmt.Errorf("genesis chain id %q does not match configured %q", spec.ChainID, a.cfg.ChainID)
	}
	accounts, err := spec.Accounts()
	if err != nil {
		return err
	}
	validators, err := spec.GenesisValidators()
	if err != nil {
		return err
	}
	ts, err := spec.Timestamp()
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	block := a.block
	if !a.blockSet {
		if spec.Block.Height > 0 {
			block.Height = spec.Block.Height
		}
		if !ts.IsZero() {
			block.Time = ts
		}
	}
	err = a.commitDirect(func(kv storage.KVStore) error {
		for _, acc := range accounts {
			if err := a.bank.InitBalance(kv, acc.Address, acc.Coins); err != nil {
				return fmt.Errorf("balance %s: %w", acc.Address, err)
			}
		}
		for _, v := range validators {
			if _, err := a.staking.AddValidator(kv, v.Address, v.CommissionBps); err != nil {
				return fmt.Errorf("validator %s: %w", v.Address, err)
			}
			if v.SelfDelegation.IsZero() {
				continue
			}
			stake := types.NewCoinFromInt(v.SelfDelegation, a.staking.BondedDenom())
			if _, err := a.staking.Delegate(kv, v.Address, v.Address, stake); err != nil {
				return fmt.Errorf("self delegation %s: %w", v.Address, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.block = block
	a.logger.Info("genesis loaded", "accounts", len(accounts), "validators", len(validators), "height", block.Height)
	return nil
}
