package events

import (
	"strconv"

	"chainsim/core/types"
	"chainsim/crypto"
)

const (
	// TypeCreateValidator is emitted when a validator joins the set.
	TypeCreateValidator = "create_validator"
	// TypeDelegate captures stake bonded to a validator.
	TypeDelegate = "delegate"
	// TypeUnbond captures stake entering the unbonding queue.
	TypeUnbond = "unbond"
	// TypeRedelegate captures stake moved between validators.
	TypeRedelegate = "redelegate"
	// TypeCompleteUnbonding is emitted when a matured entry is paid out.
	TypeCompleteUnbonding = "complete_unbonding"
	// TypeRewards is emitted when rewards are minted for a validator.
	TypeRewards = "rewards"
	// TypeWithdrawRewards is emitted when pending rewards are paid out.
	TypeWithdrawRewards = "withdraw_rewards"
	// TypeSetWithdrawAddress is emitted when a delegator redirects rewards.
	TypeSetWithdrawAddress = "set_withdraw_address"
	// TypeSlash is emitted when a validator's stake is cut.
	TypeSlash = "slash"
)

type CreateValidator struct {
	Validator     crypto.Address
	CommissionBps uint32
}

func (CreateValidator) EventType() string { return TypeCreateValidator }

func (e CreateValidator) Event() types.Event {
	return types.NewEvent(TypeCreateValidator).
		Add("validator", e.Validator.String()).
		Add("commission_bps", strconv.FormatUint(uint64(e.CommissionBps), 10))
}

type Delegate struct {
	Delegator crypto.Address
	Validator crypto.Address
	Amount    types.Coin
}

func (Delegate) EventType() string { return TypeDelegate }

func (e Delegate) Event() types.Event {
	return types.NewEvent(TypeDelegate).
		Add("validator", e.Validator.String()).
		Add("amount", e.Amount.String()).
		Add("delegator", e.Delegator.String())
}

// Unbond records the height at which the entry can be claimed.
type Unbond struct {
	Delegator        crypto.Address
	Validator        crypto.Address
	Amount           types.Coin
	EntryID          uint64
	CompletionHeight uint64
}

func (Unbond) EventType() string { return TypeUnbond }

func (e Unbond) Event() types.Event {
	return types.NewEvent(TypeUnbond).
		Add("validator", e.Validator.String()).
		Add("amount", e.Amount.String()).
		Add("delegator", e.Delegator.String()).
		Add("entry_id", strconv.FormatUint(e.EntryID, 10)).
		Add("completion_height", strconv.FormatUint(e.CompletionHeight, 10))
}

type Redelegate struct {
	Delegator   crypto.Address
	Source      crypto.Address
	Destination crypto.Address
	Amount      types.Coin
}

func (Redelegate) EventType() string { return TypeRedelegate }

func (e Redelegate) Event() types.Event {
	return types.NewEvent(TypeRedelegate).
		Add("source_validator", e.Source.String()).
		Add("destination_validator", e.Destination.String()).
		Add("amount", e.Amount.String()).
		Add("delegator", e.Delegator.String())
}

type CompleteUnbonding struct {
	Delegator crypto.Address
	Validator crypto.Address
	Amount    types.Coin
	EntryID   uint64
}

func (CompleteUnbonding) EventType() string { return TypeCompleteUnbonding }

func (e CompleteUnbonding) Event() types.Event {
	return types.NewEvent(TypeCompleteUnbonding).
		Add("validator", e.Validator.String()).
		Add("amount", e.Amount.String()).
		Add("delegator", e.Delegator.String()).
		Add("entry_id", strconv.FormatUint(e.EntryID, 10))
}

// Rewards describes a single distribution. Remainder is the dust left over
// after pro-rata truncation and Policy says where it went.
type Rewards struct {
	Validator  crypto.Address
	Amount     types.Coin
	Commission types.Coin
	Remainder  types.Coin
	Policy     string
}

func (Rewards) EventType() string { return TypeRewards }

func (e Rewards) Event() types.Event {
	return types.NewEvent(TypeRewards).
		Add("validator", e.Validator.String()).
		Add("amount", e.Amount.String()).
		Add("commission", e.Commission.String()).
		Add("remainder", e.Remainder.String()).
		Add("remainder_policy", e.Policy)
}

type WithdrawRewards struct {
	Delegator crypto.Address
	Validator crypto.Address
	Recipient crypto.Address
	Amount    types.Coin
}

func (WithdrawRewards) EventType() string { return TypeWithdrawRewards }

func (e WithdrawRewards) Event() types.Event {
	return types.NewEvent(TypeWithdrawRewards).
		Add("validator", e.Validator.String()).
		Add("delegator", e.Delegator.String()).
		Add("recipient", e.Recipient.String()).
		Add("amount", e.Amount.String())
}

type SetWithdrawAddress struct {
	Delegator crypto.Address
	Address   crypto.Address
}

func (SetWithdrawAddress) EventType() string { return TypeSetWithdrawAddress }

func (e SetWithdrawAddress) Event() types.Event {
	return types.NewEvent(TypeSetWithdrawAddress).
		Add("delegator", e.Delegator.String()).
		Add("withdraw_address", e.Address.String())
}

type Slash struct {
	Validator crypto.Address
	FactorBps uint32
	Burned    types.Coin
}

func (Slash) EventType() string { return TypeSlash }

func (e Slash) Event() types.Event {
	return types.NewEvent(TypeSlash).
		Add("validator", e.Validator.String()).
		Add("factor_bps", strconv.FormatUint(uint64(e.FactorBps), 10)).
		Add("burned", e.Burned.String())
}
