package staking

import (
	"bytes"
	"fmt"

	chainerrors "chainsim/core/errors"
	"chainsim/core/state"
	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/storage"
)

// Validator returns the public view of a single validator.
func (k *Keeper) Validator(kv storage.KVStore, addr crypto.Address) (types.Validator, error) {
	rec, err := k.loadValidator(state.NewManager(kv), addr)
	if err != nil {
		return types.Validator{}, err
	}
	return k.validatorView(addr, rec), nil
}

// Validators lists every registered validator in address order.
func (k *Keeper) Validators(kv storage.KVStore) ([]types.Validator, error) {
	prefix := append(append([]byte(nil), validatorRoot...), '/')
	var out []types.Validator
	err := state.NewManager(kv).KVIterate(prefix, func(key, raw []byte) (bool, error) {
		rec := new(validatorRecord)
		if err := state.Decode(raw, rec); err != nil {
			return true, err
		}
		addr, err := crypto.BytesToAddress(key[len(prefix):])
		if err != nil {
			return true, err
		}
		rec.TotalStake = orZero(rec.TotalStake)
		rec.Commission = orZero(rec.Commission)
		rec.Carried = orZero(rec.Carried)
		out = append(out, k.validatorView(addr, rec))
		return false, nil
	})
	return out, err
}

// Delegation returns the delegation of delegator to validator.
func (k *Keeper) Delegation(kv storage.KVStore, delegator, validator crypto.Address) (types.Delegation, error) {
	rec, ok, err := k.loadDelegation(state.NewManager(kv), validator, delegator)
	if err != nil {
		return types.Delegation{}, err
	}
	if !ok {
		return types.Delegation{}, fmt.Errorf("%w: %s to %s", chainerrors.ErrDelegationNotFound, delegator, validator)
	}
	return types.Delegation{
		Delegator: delegator,
		Validator: validator,
		Amount:    k.coin(rec.Amount),
		Reward:    k.coin(rec.Reward),
	}, nil
}

// Delegations lists every delegation of delegator ordered by validator.
func (k *Keeper) Delegations(kv storage.KVStore, delegator crypto.Address) ([]types.Delegation, error) {
	prefix := append(append([]byte(nil), delegationRoot...), '/')
	suffix := append([]byte{'/'}, delegator.Bytes()...)
	var out []types.Delegation
	err := state.NewManager(kv).KVIterate(prefix, func(key, raw []byte) (bool, error) {
		rest := key[len(prefix):]
		if len(rest) != 2*crypto.AddressLength+1 || !bytes.HasSuffix(rest, suffix) {
			return false, nil
		}
		var rec delegationRecord
		if err := state.Decode(raw, &rec); err != nil {
			return true, err
		}
		validator, err := crypto.BytesToAddress(rest[:crypto.AddressLength])
		if err != nil {
			return true, err
		}
		out = append(out, types.Delegation{
			Delegator: delegator,
			Validator: validator,
			Amount:    k.coin(orZero(rec.Amount)),
			Reward:    k.coin(orZero(rec.Reward)),
		})
		return false, nil
	})
	return out, err
}

// Unbondings lists the pending unbonding entries of delegator in creation
// order.
func (k *Keeper) Unbondings(kv storage.KVStore, delegator crypto.Address) ([]types.UnbondingEntry, error) {
	recs, err := k.unbondings(state.NewManager(kv), func(rec *unbondingRecord) bool { return rec.Delegator == delegator })
	if err != nil {
		return nil, err
	}
	out := make([]types.UnbondingEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, k.unbondingView(rec))
	}
	return out, nil
}

// PendingReward returns the reward delegator can withdraw from validator,
// including accrued commission when the delegator is the validator itself.
func (k *Keeper) PendingReward(kv storage.KVStore, delegator, validator crypto.Address) (types.Coin, error) {
	mgr := state.NewManager(kv)
	val, err := k.loadValidator(mgr, validator)
	if err != nil {
		return types.Coin{}, err
	}
	del, _, err := k.loadDelegation(mgr, validator, delegator)
	if err != nil {
		return types.Coin{}, err
	}
	total := del.Reward
	if delegator == validator {
		total.Add(total, val.Commission)
	}
	return k.coin(total), nil
}
