package staking

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	chainerrors "chainsim/core/errors"
	"chainsim/core/state"
	"chainsim/core/types"
	"chainsim/crypto"
)

var (
	validatorRoot  = []byte("staking/validator")
	delegationRoot = []byte("staking/delegation")
	unbondingRoot  = []byte("staking/unbonding")
	unbondingSeq   = []byte("staking/unbonding_seq")
	withdrawRoot   = []byte("distribution/withdraw")
)

func validatorKey(addr crypto.Address) []byte {
	return state.Key(validatorRoot, addr.Bytes())
}

func delegationKey(validator, delegator crypto.Address) []byte {
	return state.Key(delegationRoot, validator.Bytes(), delegator.Bytes())
}

func validatorDelegationsPrefix(validator crypto.Address) []byte {
	return append(state.Key(delegationRoot, validator.Bytes()), '/')
}

func unbondingKey(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return state.Key(unbondingRoot, buf[:])
}

func withdrawKey(delegator crypto.Address) []byte {
	return state.Key(withdrawRoot, delegator.Bytes())
}

type validatorRecord struct {
	CommissionBps uint32
	TotalStake    *uint256.Int
	Commission    *uint256.Int
	Carried       *uint256.Int
}

type delegationRecord struct {
	Amount *uint256.Int
	Reward *uint256.Int
}

func (d *delegationRecord) empty() bool {
	return orZero(d.Amount).IsZero() && orZero(d.Reward).IsZero()
}

type unbondingRecord struct {
	ID             uint64
	Delegator      crypto.Address
	Validator      crypto.Address
	Amount         *uint256.Int
	CreatedHeight  uint64
	MaturityHeight uint64
}

type delegationEntry struct {
	Delegator crypto.Address
	Record    delegationRecord
}

func (k *Keeper) loadValidator(mgr *state.Manager, addr crypto.Address) (*validatorRecord, error) {
	rec := new(validatorRecord)
	ok, err := mgr.KVGet(validatorKey(addr), rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", chainerrors.ErrValidatorNotFound, addr)
	}
	rec.TotalStake = orZero(rec.TotalStake)
	rec.Commission = orZero(rec.Commission)
	rec.Carried = orZero(rec.Carried)
	return rec, nil
}

func (k *Keeper) storeValidator(mgr *state.Manager, addr crypto.Address, rec *validatorRecord) error {
	return mgr.KVPut(validatorKey(addr), rec)
}

func (k *Keeper) loadDelegation(mgr *state.Manager, validator, delegator crypto.Address) (*delegationRecord, bool, error) {
	rec := new(delegationRecord)
	ok, err := mgr.KVGet(delegationKey(validator, delegator), rec)
	if err != nil {
		return nil, false, err
	}
	rec.Amount = orZero(rec.Amount)
	rec.Reward = orZero(rec.Reward)
	return rec, ok, nil
}

// storeDelegation removes records that hold neither stake nor reward.
func (k *Keeper) storeDelegation(mgr *state.Manager, validator, delegator crypto.Address, rec *delegationRecord) error {
	if rec.empty() {
		return mgr.KVDelete(delegationKey(validator, delegator))
	}
	return mgr.KVPut(delegationKey(validator, delegator), rec)
}

// delegationsOf lists the delegations of validator in delegator address
// order.
func (k *Keeper) delegationsOf(mgr *state.Manager, validator crypto.Address) ([]delegationEntry, error) {
	prefix := validatorDelegationsPrefix(validator)
	var out []delegationEntry
	err := mgr.KVIterate(prefix, func(key, raw []byte) (bool, error) {
		var entry delegationEntry
		if err := state.Decode(raw, &entry.Record); err != nil {
			return true, err
		}
		addr, err := crypto.BytesToAddress(key[len(prefix):])
		if err != nil {
			return true, err
		}
		entry.Delegator = addr
		entry.Record.Amount = orZero(entry.Record.Amount)
		entry.Record.Reward = orZero(entry.Record.Reward)
		out = append(out, entry)
		return false, nil
	})
	return out, err
}

func (k *Keeper) unbondings(mgr *state.Manager, keep func(*unbondingRecord) bool) ([]*unbondingRecord, error) {
	var out []*unbondingRecord
	err := mgr.KVIterate(append(append([]byte(nil), unbondingRoot...), '/'), func(_, raw []byte) (bool, error) {
		rec := new(unbondingRecord)
		if err := state.Decode(raw, rec); err != nil {
			return true, err
		}
		rec.Amount = orZero(rec.Amount)
		if keep(rec) {
			out = append(out, rec)
		}
		return false, nil
	})
	return out, err
}

func (k *Keeper) coin(amount *uint256.Int) types.Coin {
	return types.NewCoinFromInt(amount, k.params.BondDenom)
}

func (k *Keeper) validatorView(addr crypto.Address, rec *validatorRecord) types.Validator {
	return types.Validator{
		Address:          addr,
		CommissionBps:    rec.CommissionBps,
		TotalStake:       k.coin(rec.TotalStake),
		Commission:       k.coin(rec.Commission),
		CarriedRemainder: k.coin(rec.Carried),
	}
}

func (k *Keeper) unbondingView(rec *unbondingRecord) types.UnbondingEntry {
	return types.UnbondingEntry{
		ID:             rec.ID,
		Delegator:      rec.Delegator,
		Validator:      rec.Validator,
		Amount:         k.coin(rec.Amount),
		CreatedHeight:  rec.CreatedHeight,
		MaturityHeight: rec.MaturityHeight,
	}
}
