package core

import (
	"errors"

	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/native/sandbox"
	"chainsim/storage"
)

// QueryResult encapsulates the JSON value returned by state queries.
type QueryResult struct {
	Value []byte
}

// QueryRecord represents an individual key/value pair returned from a prefix query.
type QueryRecord struct {
	Key   string
	Value []byte
}

// ErrQueryNotSupported indicates the requested namespace/path is not handled by the state router.
var ErrQueryNotSupported = errors.New("query: not supported")

// Queries read committed state only. They never open a scope and never
// observe a message in flight.

func (a *App) committed() storage.KVStore {
	return a.store.Committed()
}

func (a *App) Balance(addr crypto.Address, denom string) (types.Coin, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bank.Balance(a.committed(), addr, denom)
}

func (a *App) AllBalances(addr crypto.Address) (types.Coins, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bank.AllBalances(a.committed(), addr)
}

func (a *App) Supply(denom string) (types.Coin, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bank.Supply(a.committed(), denom)
}

func (a *App) BondedDenom() string {
	return a.staking.BondedDenom()
}

func (a *App) Validator(addr crypto.Address) (types.Validator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staking.Validator(a.committed(), addr)
}

func (a *App) Validators() ([]types.Validator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staking.Validators(a.committed())
}

func (a *App) Delegation(delegator, validator crypto.Address) (types.Delegation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staking.Delegation(a.committed(), delegator, validator)
}

func (a *App) Delegations(delegator crypto.Address) ([]types.Delegation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staking.Delegations(a.committed(), delegator)
}

func (a *App) Unbondings(delegator crypto.Address) ([]types.UnbondingEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staking.Unbondings(a.committed(), delegator)
}

func (a *App) PendingReward(delegator, validator crypto.Address) (types.Coin, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staking.PendingReward(a.committed(), delegator, validator)
}

func (a *App) WithdrawAddress(delegator crypto.Address) (crypto.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staking.WithdrawAddress(a.committed(), delegator)
}

// QuerySmart runs the query entry point of contract against committed
// state.
func (a *App) QuerySmart(contract crypto.Address, msg []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kv := a.committed()
	q := newChainQuerier(kv, a.block, a.bank, a.staking, a.sandbox)
	return a.sandbox.QuerySmart(kv, q, a.block, contract, msg)
}

func (a *App) QueryRaw(contract crypto.Address, key []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sandbox.QueryRaw(a.committed(), contract, key)
}

func (a *App) ContractInfo(contract crypto.Address) (types.ContractInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sandbox.ContractInfo(a.committed(), contract)
}

func (a *App) Contracts() ([]types.ContractInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sandbox.Contracts(a.committed())
}

// DumpContract returns every storage record of contract in key order.
func (a *App) DumpContract(contract crypto.Address) ([]storage.KV, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sandbox.Dump(a.committed(), contract)
}

// Querier exposes committed state through the interface contracts use.
func (a *App) Querier() sandbox.Querier {
	return &lockedQuerier{app: a}
}

// lockedQuerier takes the app lock around every call so external callers
// can hold it between messages.
type lockedQuerier struct {
	app *App
}

func (l *lockedQuerier) Balance(addr crypto.Address, denom string) (types.Coin, error) {
	return l.app.Balance(addr, denom)
}

func (l *lockedQuerier) AllBalances(addr crypto.Address) (types.Coins, error) {
	return l.app.AllBalances(addr)
}

func (l *lockedQuerier) Supply(denom string) (types.Coin, error) { return l.app.Supply(denom) }

func (l *lockedQuerier) BondedDenom() string { return l.app.BondedDenom() }

func (l *lockedQuerier) Validator(addr crypto.Address) (types.Validator, error) {
	return l.app.Validator(addr)
}

func (l *lockedQuerier) Delegation(delegator, validator crypto.Address) (types.Delegation, error) {
	return l.app.Delegation(delegator, validator)
}

func (l *lockedQuerier) QuerySmart(contract crypto.Address, msg []byte) ([]byte, error) {
	return l.app.QuerySmart(contract, msg)
}

func (l *lockedQuerier) QueryRaw(contract crypto.Address, key []byte) ([]byte, error) {
	return l.app.QueryRaw(contract, key)
}

func (l *lockedQuerier) ContractInfo(contract crypto.Address) (types.ContractInfo, error) {
	return l.app.ContractInfo(contract)
}
