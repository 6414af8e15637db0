// Package errors holds the error kinds surfaced by the simulated chain.
// Callers match them with the standard library errors.Is / errors.As.
package errors

import (
	stderrors "errors"
	"fmt"

	"chainsim/storage"
)

var (
	ErrInsufficientFunds = stderrors.New("bank: insufficient funds")
	ErrEmptyCoins        = stderrors.New("bank: cannot transfer empty coins amount")
	ErrInvalidDenom      = stderrors.New("bank: invalid denom")
	ErrInvalidAmount     = stderrors.New("bank: invalid amount")
	ErrSupplyOverflow    = stderrors.New("bank: supply overflow")

	ErrUnroutableMessage   = stderrors.New("router: unroutable message")
	ErrCallDepthExceeded   = stderrors.New("router: maximum call depth exceeded")
	ErrInvalidBlockAdvance = stderrors.New("router: block height and time must not decrease")

	// ErrReadOnlyViolation aliases the storage sentinel so a write on a
	// query store matches both.
	ErrReadOnlyViolation = storage.ErrReadOnlyViolation

	ErrContractExecutionFailed  = stderrors.New("sandbox: contract execution failed")
	ErrAddressCollision         = stderrors.New("sandbox: contract address already in use")
	ErrUnknownCode              = stderrors.New("sandbox: unknown code id")
	ErrContractNotFound         = stderrors.New("sandbox: contract not found")
	ErrContractInactive         = stderrors.New("sandbox: contract is inactive")
	ErrUnauthorized             = stderrors.New("sandbox: unauthorized")
	ErrEmptyLabel               = stderrors.New("sandbox: label is required on all contracts")
	ErrInvalidAttribute         = stderrors.New("sandbox: invalid attribute")
	ErrInvalidEvent             = stderrors.New("sandbox: invalid event")
	ErrEntryPointNotImplemented = stderrors.New("sandbox: entry point not implemented")

	ErrUnbondingNotMature = stderrors.New("stake: unbonding not yet mature")
	ErrNothingToClaim     = stderrors.New("stake: nothing to claim")
	ErrValidatorNotFound  = stderrors.New("stake: validator not found")
	ErrValidatorExists    = stderrors.New("stake: validator already registered")
	ErrDelegationNotFound = stderrors.New("stake: delegation not found")
	ErrInvalidStakeDenom  = stderrors.New("stake: invalid staking denom")
	ErrBelowMinDelegation = stderrors.New("stake: amount below minimum delegation")
	ErrInvalidCommission  = stderrors.New("stake: commission must be at most 10000 bps")
	ErrNoDelegations      = stderrors.New("stake: validator has no delegations")
	ErrInvalidSlashFactor = stderrors.New("stake: slash factor must be between 1 and 10000 bps")
)

// ContractError reports a failure raised by a contract behavior unit. It
// matches ErrContractExecutionFailed and whatever the contract returned.
type ContractError struct {
	Contract string
	Entry    string
	Detail   string
	Err      error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s %s: %s", ErrContractExecutionFailed.Error(), e.Entry, e.Contract, e.Detail)
}

func (e *ContractError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrContractExecutionFailed}
	}
	return []error{ErrContractExecutionFailed, e.Err}
}

// NewContractError wraps err as raised by the named entry point of contract.
func NewContractError(contract, entry string, err error) *ContractError {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return &ContractError{Contract: contract, Entry: entry, Detail: detail, Err: err}
}

// AsContractError extracts the contract failure from err, if any.
func AsContractError(err error) (*ContractError, bool) {
	var ce *ContractError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Is and As re-export the standard library helpers so callers that import
// this package under its own name need not alias two errors packages.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
