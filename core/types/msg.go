package types

import "chainsim/crypto"

// Module routes used by the router and by metrics labels.
const (
	RouteBank         = "bank"
	RouteStaking      = "staking"
	RouteDistribution = "distribution"
	RouteContract     = "contract"
)

// Msg is a chain message: a unit of intent submitted by a sender, either at
// the top level or as a sub-message emitted by a contract. Route names the
// module the router hands it to.
type Msg interface {
	Route() string
	isMsg()
}

// --- Bank ---

// BankSend moves funds from the sender to To.
type BankSend struct {
	To     crypto.Address
	Amount Coins
}

func (BankSend) Route() string { return RouteBank }
func (BankSend) isMsg() {}

// --- Staking ---

// StakingDelegate bonds Amount of the bond denom from the sender to
// Validator.
type StakingDelegate struct {
	Validator crypto.Address
	Amount    Coin
}

func (StakingDelegate) Route() string { return RouteStaking }
func (StakingDelegate) isMsg() {}

// StakingUndelegate starts unbonding Amount from Validator. The funds become
// claimable once the unbonding period has elapsed.
type StakingUndelegate struct {
	Validator crypto.Address
	Amount    Coin
}

func (StakingUndelegate) Route() string { return RouteStaking }
func (StakingUndelegate) isMsg() {}

// StakingRedelegate moves bonded stake between validators without
// unbonding.
type StakingRedelegate struct {
	Source      crypto.Address
	Destination crypto.Address
	Amount      Coin
}

func (StakingRedelegate) Route() string { return RouteStaking }
func (StakingRedelegate) isMsg() {}

// StakingClaimUnbonded pays out every matured unbonding entry of the
// sender.
type StakingClaimUnbonded struct{}

func (StakingClaimUnbonded) Route() string { return RouteStaking }
func (StakingClaimUnbonded) isMsg() {}

// --- Distribution ---

// DistributionWithdrawRewards pays the sender's pending rewards from
// Validator to the sender's withdraw address.
type DistributionWithdrawRewards struct {
	Validator crypto.Address
}

func (DistributionWithdrawRewards) Route() string { return RouteDistribution }
func (DistributionWithdrawRewards) isMsg() {}

// DistributionSetWithdrawAddress redirects future reward withdrawals.
type DistributionSetWithdrawAddress struct {
	Address crypto.Address
}

func (DistributionSetWithdrawAddress) Route() string { return RouteDistribution }
func (DistributionSetWithdrawAddress) isMsg() {}

// --- Contracts ---

// ContractInstantiate creates a new instance of CodeID. A non-nil Salt
// selects the predictable (salted) address scheme.
type ContractInstantiate struct {
	Admin  *crypto.Address
	CodeID uint64
	Msg    []byte
	Funds  Coins
	Label  string
	Salt   []byte
}

func (ContractInstantiate) Route() string { return RouteContract }
func (ContractInstantiate) isMsg() {}

// ContractExecute calls the execute entry point of Contract after moving
// Funds from the sender to the contract.
type ContractExecute struct {
	Contract crypto.Address
	Msg      []byte
	Funds    Coins
}

func (ContractExecute) Route() string { return RouteContract }
func (ContractExecute) isMsg() {}

// ContractMigrate swaps the code of Contract and calls its migrate entry
// point. Only the admin may migrate.
type ContractMigrate struct {
	Contract  crypto.Address
	NewCodeID uint64
	Msg       []byte
}

func (ContractMigrate) Route() string { return RouteContract }
func (ContractMigrate) isMsg() {}

// ContractUpdateAdmin replaces the admin of Contract.
type ContractUpdateAdmin struct {
	Contract crypto.Address
	Admin    crypto.Address
}

func (ContractUpdateAdmin) Route() string { return RouteContract }
func (ContractUpdateAdmin) isMsg() {}

// ContractClearAdmin removes the admin, freezing the contract's code.
type ContractClearAdmin struct {
	Contract crypto.Address
}

func (ContractClearAdmin) Route() string { return RouteContract }
func (ContractClearAdmin) isMsg() {}

// SudoMsg is a privileged message. It never originates from an account or a
// contract; only the App's sudo path dispatches it.
type SudoMsg interface {
	Route() string
	isSudoMsg()
}

// BankMint creates new tokens for To.
type BankMint struct {
	To     crypto.Address
	Amount Coins
}

func (BankMint) Route() string { return RouteBank }
func (BankMint) isSudoMsg() {}

// StakingAddValidator registers a validator.
type StakingAddValidator struct {
	Validator     crypto.Address
	CommissionBps uint32
}

func (StakingAddValidator) Route() string { return RouteStaking }
func (StakingAddValidator) isSudoMsg() {}

// StakingDistributeRewards mints Amount and apportions it to the
// delegators of Validator.
type StakingDistributeRewards struct {
	Validator crypto.Address
	Amount    Coin
}

func (StakingDistributeRewards) Route() string { return RouteStaking }
func (StakingDistributeRewards) isSudoMsg() {}

// StakingSlash burns FactorBps/10000 of every delegation to Validator and
// of every pending unbonding from it.
type StakingSlash struct {
	Validator crypto.Address
	FactorBps uint32
}

func (StakingSlash) Route() string { return RouteStaking }
func (StakingSlash) isSudoMsg() {}

// StakingProcessQueue pays out every matured unbonding entry on the chain.
type StakingProcessQueue struct{}

func (StakingProcessQueue) Route() string { return RouteStaking }
func (StakingProcessQueue) isSudoMsg() {}

// ContractSudo calls the sudo entry point of Contract.
type ContractSudo struct {
	Contract crypto.Address
	Msg      []byte
}

func (ContractSudo) Route() string { return RouteContract }
func (ContractSudo) isSudoMsg() {}

// ContractDeactivate marks Contract inactive. Its state stays queryable.
type ContractDeactivate struct {
	Contract crypto.Address
}

func (ContractDeactivate) Route() string { return RouteContract }
func (ContractDeactivate) isSudoMsg() {}
