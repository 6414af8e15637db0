// Package staking implements validators, delegations, the unbonding queue
// and reward distribution. Tokens never move here directly; every movement
// is a bank transfer, mint or burn against the module pools.
package staking

import (
	"fmt"

	"github.com/holiman/uint256"

	chainerrors "chainsim/core/errors"
	"chainsim/core/events"
	"chainsim/core/state"
	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/native/bank"
	"chainsim/storage"
)

type Keeper struct {
	bank   *bank.Keeper
	params Params
}

func NewKeeper(bankKeeper *bank.Keeper, params Params) *Keeper {
	if params.RemainderPolicy == "" {
		params.RemainderPolicy = RemainderToValidator
	}
	return &Keeper{bank: bankKeeper, params: params}
}

// Params returns the parameters the keeper was built with.
func (k *Keeper) Params() Params {
	return k.params
}

// BondedDenom returns the denom accepted for delegations.
func (k *Keeper) BondedDenom() string {
	return k.params.BondDenom
}

func (k *Keeper) checkStake(amount types.Coin) error {
	if amount.Denom != k.params.BondDenom {
		return fmt.Errorf("%w: got %q, want %q", chainerrors.ErrInvalidStakeDenom, amount.Denom, k.params.BondDenom)
	}
	if amount.IsZero() {
		return fmt.Errorf("%w: stake amount must be positive", chainerrors.ErrInvalidAmount)
	}
	return nil
}

// AddValidator registers a validator with the given commission.
func (k *Keeper) AddValidator(kv storage.KVStore, validator crypto.Address, commissionBps uint32) ([]types.Event, error) {
	if commissionBps > maxBasisPoints {
		return nil, chainerrors.ErrInvalidCommission
	}
	mgr := state.NewManager(kv)
	if ok, err := mgr.KVGet(validatorKey(validator), nil); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", chainerrors.ErrValidatorExists, validator)
	}
	rec := &validatorRecord{CommissionBps: commissionBps, TotalStake: zero(), Commission: zero(), Carried: zero()}
	if err := k.storeValidator(mgr, validator, rec); err != nil {
		return nil, err
	}
	return events.Build(events.CreateValidator{Validator: validator, CommissionBps: commissionBps}), nil
}

// Delegate bonds amount from delegator to validator.
func (k *Keeper) Delegate(kv storage.KVStore, delegator, validator crypto.Address, amount types.Coin) ([]types.Event, error) {
	if err := k.checkStake(amount); err != nil {
		return nil, err
	}
	if floor := k.params.MinDelegation; floor > 0 && amount.Amount.Lt(uint256.NewInt(floor)) {
		return nil, fmt.Errorf("%w: %s < %d%s", chainerrors.ErrBelowMinDelegation, amount, floor, k.params.BondDenom)
	}
	mgr := state.NewManager(kv)
	val, err := k.loadValidator(mgr, validator)
	if err != nil {
		return nil, err
	}
	out, err := k.bank.Transfer(kv, delegator, BondedPool, types.Coins{amount})
	if err != nil {
		return nil, err
	}
	if err := k.bond(mgr, val, validator, delegator, amount.Amount); err != nil {
		return nil, err
	}
	return append(out, events.Delegate{Delegator: delegator, Validator: validator, Amount: amount}.Event()), nil
}

func (k *Keeper) bond(mgr *state.Manager, val *validatorRecord, validator, delegator crypto.Address, amount *uint256.Int) error {
	del, _, err := k.loadDelegation(mgr, validator, delegator)
	if err != nil {
		return err
	}
	del.Amount.Add(del.Amount, amount)
	val.TotalStake.Add(val.TotalStake, amount)
	if err := k.storeDelegation(mgr, validator, delegator, del); err != nil {
		return err
	}
	return k.storeValidator(mgr, validator, val)
}

func (k *Keeper) unbond(mgr *state.Manager, validator, delegator crypto.Address, amount *uint256.Int) error {
	val, err := k.loadValidator(mgr, validator)
	if err != nil {
		return err
	}
	del, ok, err := k.loadDelegation(mgr, validator, delegator)
	if err != nil {
		return err
	}
	if !ok || del.Amount.IsZero() {
		return fmt.Errorf("%w: %s to %s", chainerrors.ErrDelegationNotFound, delegator, validator)
	}
	if del.Amount.Lt(amount) {
		return fmt.Errorf("%w: delegation of %s is %s, requested %s", chainerrors.ErrInsufficientFunds,
			delegator, del.Amount.Dec(), amount.Dec())
	}
	del.Amount.Sub(del.Amount, amount)
	val.TotalStake.Sub(val.TotalStake, amount)
	if err := k.storeDelegation(mgr, validator, delegator, del); err != nil {
		return err
	}
	return k.storeValidator(mgr, validator, val)
}

// Undelegate moves amount of the delegation into the unbonding queue. The
// tokens stay in the bonded pool until the entry is claimed at or after
// height+UnbondingBlocks.
func (k *Keeper) Undelegate(kv storage.KVStore, block types.BlockInfo, delegator, validator crypto.Address, amount types.Coin) ([]types.Event, error) {
	if err := k.checkStake(amount); err != nil {
		return nil, err
	}
	mgr := state.NewManager(kv)
	if err := k.unbond(mgr, validator, delegator, amount.Amount); err != nil {
		return nil, err
	}
	id, err := mgr.NextSequence(unbondingSeq)
	if err != nil {
		return nil, err
	}
	rec := &unbondingRecord{
		ID:             id,
		Delegator:      delegator,
		Validator:      validator,
		Amount:         new(uint256.Int).Set(amount.Amount),
		CreatedHeight:  block.Height,
		MaturityHeight: block.Height + k.params.UnbondingBlocks,
	}
	if err := mgr.KVPut(unbondingKey(id), rec); err != nil {
		return nil, err
	}
	return events.Build(events.Unbond{
		Delegator:        delegator,
		Validator:        validator,
		Amount:           amount,
		EntryID:          id,
		CompletionHeight: rec.MaturityHeight,
	}), nil
}

// Redelegate moves bonded stake between validators without unbonding it.
func (k *Keeper) Redelegate(kv storage.KVStore, delegator, source, destination crypto.Address, amount types.Coin) ([]types.Event, error) {
	if err := k.checkStake(amount); err != nil {
		return nil, err
	}
	mgr := state.NewManager(kv)
	if _, err := k.loadValidator(mgr, destination); err != nil {
		return nil, err
	}
	if err := k.unbond(mgr, source, delegator, amount.Amount); err != nil {
		return nil, err
	}
	dst, err := k.loadValidator(mgr, destination)
	if err != nil {
		return nil, err
	}
	if err := k.bond(mgr, dst, destination, delegator, amount.Amount); err != nil {
		return nil, err
	}
	return events.Build(events.Redelegate{
		Delegator:   delegator,
		Source:      source,
		Destination: destination,
		Amount:      amount,
	}), nil
}

func (k *Keeper) payout(kv storage.KVStore, mgr *state.Manager, rec *unbondingRecord) ([]types.Event, error) {
	var out []types.Event
	if !rec.Amount.IsZero() {
		evs, err := k.bank.Transfer(kv, BondedPool, rec.Delegator, types.Coins{k.coin(rec.Amount)})
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	if err := mgr.KVDelete(unbondingKey(rec.ID)); err != nil {
		return nil, err
	}
	return append(out, events.CompleteUnbonding{
		Delegator: rec.Delegator,
		Validator: rec.Validator,
		Amount:    k.coin(rec.Amount),
		EntryID:   rec.ID,
	}.Event()), nil
}

// ClaimUnbonded pays out every matured unbonding entry of delegator. It
// fails with ErrNothingToClaim when no entry exists and with
// ErrUnbondingNotMature when entries exist but none has matured.
func (k *Keeper) ClaimUnbonded(kv storage.KVStore, block types.BlockInfo, delegator crypto.Address) ([]types.Event, error) {
	mgr := state.NewManager(kv)
	entries, err := k.unbondings(mgr, func(rec *unbondingRecord) bool { return rec.Delegator == delegator })
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s has no unbonding entries", chainerrors.ErrNothingToClaim, delegator)
	}
	var out []types.Event
	for _, rec := range entries {
		if block.Height < rec.MaturityHeight {
			continue
		}
		evs, err := k.payout(kv, mgr, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: earliest entry matures at height %d", chainerrors.ErrUnbondingNotMature,
			earliestMaturity(entries))
	}
	return out, nil
}

func earliestMaturity(entries []*unbondingRecord) uint64 {
	earliest := entries[0].MaturityHeight
	for _, rec := range entries[1:] {
		if rec.MaturityHeight < earliest {
			earliest = rec.MaturityHeight
		}
	}
	return earliest
}

// ProcessQueue pays out every matured unbonding entry on the chain.
func (k *Keeper) ProcessQueue(kv storage.KVStore, block types.BlockInfo) ([]types.Event, error) {
	mgr := state.NewManager(kv)
	entries, err := k.unbondings(mgr, func(rec *unbondingRecord) bool { return block.Height >= rec.MaturityHeight })
	if err != nil {
		return nil, err
	}
	var out []types.Event
	for _, rec := range entries {
		evs, err := k.payout(kv, mgr, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	return out, nil
}

// DistributeRewards mints amount into the reward pool and apportions it to
// the delegators of validator. Commission is taken first; the rest is split
// pro-rata by stake with truncation and the left-over dust follows the
// configured RemainderPolicy. Supply always grows by exactly amount.
func (k *Keeper) DistributeRewards(kv storage.KVStore, validator crypto.Address, amount types.Coin) ([]types.Event, error) {
	if err := k.checkStake(amount); err != nil {
		return nil, err
	}
	mgr := state.NewManager(kv)
	val, err := k.loadValidator(mgr, validator)
	if err != nil {
		return nil, err
	}
	if val.TotalStake.IsZero() {
		return nil, fmt.Errorf("%w: %s", chainerrors.ErrNoDelegations, validator)
	}
	delegations, err := k.delegationsOf(mgr, validator)
	if err != nil {
		return nil, err
	}
	out, err := k.bank.Mint(kv, RewardPool, types.Coins{amount})
	if err != nil {
		return nil, err
	}

	pool := new(uint256.Int).Set(amount.Amount)
	if k.params.RemainderPolicy == RemainderCarry {
		pool.Add(pool, val.Carried)
		val.Carried = zero()
	}
	commission, _ := new(uint256.Int).MulDivOverflow(pool, uint256.NewInt(uint64(val.CommissionBps)), uint256.NewInt(maxBasisPoints))
	rest := new(uint256.Int).Sub(pool, commission)

	allocated := zero()
	for _, entry := range delegations {
		if entry.Record.Amount.IsZero() {
			continue
		}
		share, overflow := new(uint256.Int).MulDivOverflow(rest, entry.Record.Amount, val.TotalStake)
		if overflow {
			return nil, fmt.Errorf("staking: reward share overflow for %s", entry.Delegator)
		}
		if share.IsZero() {
			continue
		}
		entry.Record.Reward.Add(entry.Record.Reward, share)
		allocated.Add(allocated, share)
		if err := k.storeDelegation(mgr, validator, entry.Delegator, &entry.Record); err != nil {
			return nil, err
		}
	}
	remainder := new(uint256.Int).Sub(rest, allocated)

	val.Commission.Add(val.Commission, commission)
	switch k.params.RemainderPolicy {
	case RemainderToValidator:
		val.Commission.Add(val.Commission, remainder)
	case RemainderCarry:
		val.Carried = new(uint256.Int).Set(remainder)
	case RemainderDiscard:
	}
	if err := k.storeValidator(mgr, validator, val); err != nil {
		return nil, err
	}
	return append(out, events.Rewards{
		Validator:  validator,
		Amount:     amount,
		Commission: k.coin(commission),
		Remainder:  k.coin(remainder),
		Policy:     string(k.params.RemainderPolicy),
	}.Event()), nil
}

// WithdrawRewards pays the pending reward of delegator at validator to the
// delegator's withdraw address. A validator withdrawing from itself also
// collects its accrued commission.
func (k *Keeper) WithdrawRewards(kv storage.KVStore, delegator, validator crypto.Address) ([]types.Event, error) {
	mgr := state.NewManager(kv)
	val, err := k.loadValidator(mgr, validator)
	if err != nil {
		return nil, err
	}
	del, ok, err := k.loadDelegation(mgr, validator, delegator)
	if err != nil {
		return nil, err
	}
	self := delegator == validator
	if !ok && !self {
		return nil, fmt.Errorf("%w: %s to %s", chainerrors.ErrDelegationNotFound, delegator, validator)
	}
	total := new(uint256.Int).Set(del.Reward)
	del.Reward = zero()
	if self {
		total.Add(total, val.Commission)
		val.Commission = zero()
		if err := k.storeValidator(mgr, validator, val); err != nil {
			return nil, err
		}
	}
	if err := k.storeDelegation(mgr, validator, delegator, del); err != nil {
		return nil, err
	}
	recipient, err := k.WithdrawAddress(kv, delegator)
	if err != nil {
		return nil, err
	}
	var out []types.Event
	if !total.IsZero() {
		out, err = k.bank.Transfer(kv, RewardPool, recipient, types.Coins{k.coin(total)})
		if err != nil {
			return nil, err
		}
	}
	return append(out, events.WithdrawRewards{
		Delegator: delegator,
		Validator: validator,
		Recipient: recipient,
		Amount:    k.coin(total),
	}.Event()), nil
}

// SetWithdrawAddress redirects future reward withdrawals of delegator.
// Setting the delegator's own address clears the redirect.
func (k *Keeper) SetWithdrawAddress(kv storage.KVStore, delegator, addr crypto.Address) ([]types.Event, error) {
	mgr := state.NewManager(kv)
	var err error
	if addr == delegator {
		err = mgr.KVDelete(withdrawKey(delegator))
	} else {
		err = kv.Set(withdrawKey(delegator), addr.Bytes())
	}
	if err != nil {
		return nil, err
	}
	return events.Build(events.SetWithdrawAddress{Delegator: delegator, Address: addr}), nil
}

// WithdrawAddress returns where rewards of delegator are paid.
func (k *Keeper) WithdrawAddress(kv storage.KVStore, delegator crypto.Address) (crypto.Address, error) {
	raw, err := kv.Get(withdrawKey(delegator))
	if err != nil {
		return crypto.Address{}, err
	}
	if raw == nil {
		return delegator, nil
	}
	return crypto.BytesToAddress(raw)
}

// Slash burns factorBps/10000 of every delegation to validator and of every
// pending unbonding entry from it.
func (k *Keeper) Slash(kv storage.KVStore, validator crypto.Address, factorBps uint32) ([]types.Event, error) {
	if factorBps == 0 || factorBps > maxBasisPoints {
		return nil, chainerrors.ErrInvalidSlashFactor
	}
	mgr := state.NewManager(kv)
	val, err := k.loadValidator(mgr, validator)
	if err != nil {
		return nil, err
	}
	factor := uint256.NewInt(uint64(factorBps))
	bps := uint256.NewInt(maxBasisPoints)
	burned := zero()

	delegations, err := k.delegationsOf(mgr, validator)
	if err != nil {
		return nil, err
	}
	for _, entry := range delegations {
		cut, _ := new(uint256.Int).MulDivOverflow(entry.Record.Amount, factor, bps)
		if cut.IsZero() {
			continue
		}
		entry.Record.Amount.Sub(entry.Record.Amount, cut)
		val.TotalStake.Sub(val.TotalStake, cut)
		burned.Add(burned, cut)
		if err := k.storeDelegation(mgr, validator, entry.Delegator, &entry.Record); err != nil {
			return nil, err
		}
	}
	pending, err := k.unbondings(mgr, func(rec *unbondingRecord) bool { return rec.Validator == validator })
	if err != nil {
		return nil, err
	}
	for _, rec := range pending {
		cut, _ := new(uint256.Int).MulDivOverflow(rec.Amount, factor, bps)
		if cut.IsZero() {
			continue
		}
		rec.Amount.Sub(rec.Amount, cut)
		burned.Add(burned, cut)
		if err := mgr.KVPut(unbondingKey(rec.ID), rec); err != nil {
			return nil, err
		}
	}
	if err := k.storeValidator(mgr, validator, val); err != nil {
		return nil, err
	}
	var out []types.Event
	if !burned.IsZero() {
		out, err = k.bank.Burn(kv, BondedPool, types.Coins{k.coin(burned)})
		if err != nil {
			return nil, err
		}
	}
	return append(out, events.Slash{Validator: validator, FactorBps: factorBps, Burned: k.coin(burned)}.Event()), nil
}

// Execute handles staking and distribution messages from accounts and
// contracts.
func (k *Keeper) Execute(kv storage.KVStore, block types.BlockInfo, sender crypto.Address, msg types.Msg) ([]types.Event, error) {
	switch m := msg.(type) {
	case types.StakingDelegate:
		return k.Delegate(kv, sender, m.Validator, m.Amount)
	case types.StakingUndelegate:
		return k.Undelegate(kv, block, sender, m.Validator, m.Amount)
	case types.StakingRedelegate:
		return k.Redelegate(kv, sender, m.Source, m.Destination, m.Amount)
	case types.StakingClaimUnbonded:
		return k.ClaimUnbonded(kv, block, sender)
	case types.DistributionWithdrawRewards:
		return k.WithdrawRewards(kv, sender, m.Validator)
	case types.DistributionSetWithdrawAddress:
		return k.SetWithdrawAddress(kv, sender, m.Address)
	default:
		return nil, fmt.Errorf("%w: staking cannot handle %T", chainerrors.ErrUnroutableMessage, msg)
	}
}

// Sudo handles privileged staking messages.
func (k *Keeper) Sudo(kv storage.KVStore, block types.BlockInfo, msg types.SudoMsg) ([]types.Event, error) {
	switch m := msg.(type) {
	case types.StakingAddValidator:
		return k.AddValidator(kv, m.Validator, m.CommissionBps)
	case types.StakingDistributeRewards:
		return k.DistributeRewards(kv, m.Validator, m.Amount)
	case types.StakingSlash:
		return k.Slash(kv, m.Validator, m.FactorBps)
	case types.StakingProcessQueue:
		return k.ProcessQueue(kv, block)
	default:
		return nil, fmt.Errorf("%w: staking cannot handle sudo %T", chainerrors.ErrUnroutableMessage, msg)
	}
}
