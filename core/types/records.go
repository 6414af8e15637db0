package types

import "chainsim/crypto"

// Validator is the public view of a staking validator.
type Validator struct {
	Address       crypto.Address `json:"address"`
	CommissionBps uint32         `json:"commissionBps"`
	TotalStake    Coin           `json:"totalStake"`
	// Commission is the accrued commission withdrawable by the validator.
	Commission Coin `json:"commission"`
	// CarriedRemainder is the undistributed reward dust carried into the
	// next distribution under the carry remainder policy.
	CarriedRemainder Coin `json:"carriedRemainder"`
}

// Delegation is the bonded stake of Delegator at Validator together with
// its pending reward.
type Delegation struct {
	Delegator crypto.Address `json:"delegator"`
	Validator crypto.Address `json:"validator"`
	Amount    Coin           `json:"amount"`
	Reward    Coin           `json:"reward"`
}

// UnbondingEntry is stake on its way out; it can be claimed once the chain
// reaches MaturityHeight.
type UnbondingEntry struct {
	ID             uint64         `json:"id"`
	Delegator      crypto.Address `json:"delegator"`
	Validator      crypto.Address `json:"validator"`
	Amount         Coin           `json:"amount"`
	CreatedHeight  uint64         `json:"createdHeight"`
	MaturityHeight uint64         `json:"maturityHeight"`
}

// Mature reports whether the entry can be claimed at height.
func (u UnbondingEntry) Mature(height uint64) bool {
	return height >= u.MaturityHeight
}

// ContractInfo describes a contract instance.
type ContractInfo struct {
	Address       crypto.Address  `json:"address"`
	CodeID        uint64          `json:"codeId"`
	Creator       crypto.Address  `json:"creator"`
	Admin         *crypto.Address `json:"admin,omitempty"`
	Label         string          `json:"label"`
	CreatedHeight uint64          `json:"createdHeight"`
	Active        bool            `json:"active"`
}

// CodeInfo describes a registered behavior unit.
type CodeInfo struct {
	ID       uint64         `json:"id"`
	Creator  crypto.Address `json:"creator"`
	Checksum []byte         `json:"checksum"`
}

// InstantiateResult is the data returned by an instantiate message.
type InstantiateResult struct {
	Address crypto.Address `json:"address"`
	Data    []byte         `json:"data,omitempty"`
}
