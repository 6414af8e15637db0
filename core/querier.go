package core

import (
	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/native/bank"
	"chainsim/native/sandbox"
	"chainsim/native/staking"
	"chainsim/storage"
)

// chainQuerier answers contract queries against a read-only view of a
// store. During a call the view is the router's current scope, so a
// contract sees the uncommitted effects of its own call tree.
type chainQuerier struct {
	kv      storage.KVStore
	block   types.BlockInfo
	bank    *bank.Keeper
	staking *staking.Keeper
	sandbox *sandbox.Keeper
}

var _ sandbox.Querier = (*chainQuerier)(nil)

func newChainQuerier(kv storage.KVStore, block types.BlockInfo, bankKeeper *bank.Keeper,
	stakingKeeper *staking.Keeper, sandboxKeeper *sandbox.Keeper) *chainQuerier {
	if !storage.IsReadOnly(kv) {
		kv = storage.ReadOnly(kv)
	}
	return &chainQuerier{kv: kv, block: block, bank: bankKeeper, staking: stakingKeeper, sandbox: sandboxKeeper}
}

func (r *Router) querier(block types.BlockInfo) sandbox.Querier {
	return newChainQuerier(r.store, block, r.bank, r.staking, r.sandbox)
}

func (q *chainQuerier) Balance(addr crypto.Address, denom string) (types.Coin, error) {
	return q.bank.Balance(q.kv, addr, denom)
}

func (q *chainQuerier) AllBalances(addr crypto.Address) (types.Coins, error) {
	return q.bank.AllBalances(q.kv, addr)
}

func (q *chainQuerier) Supply(denom string) (types.Coin, error) {
	return q.bank.Supply(q.kv, denom)
}

func (q *chainQuerier) BondedDenom() string {
	return q.staking.BondedDenom()
}

func (q *chainQuerier) Validator(addr crypto.Address) (types.Validator, error) {
	return q.staking.Validator(q.kv, addr)
}

func (q *chainQuerier) Delegation(delegator, validator crypto.Address) (types.Delegation, error) {
	return q.staking.Delegation(q.kv, delegator, validator)
}

func (q *chainQuerier) QuerySmart(contract crypto.Address, msg []byte) ([]byte, error) {
	return q.sandbox.QuerySmart(q.kv, q, q.block, contract, msg)
}

func (q *chainQuerier) QueryRaw(contract crypto.Address, key []byte) ([]byte, error) {
	return q.sandbox.QueryRaw(q.kv, contract, key)
}

func (q *chainQuerier) ContractInfo(contract crypto.Address) (types.ContractInfo, error) {
	return q.sandbox.ContractInfo(q.kv, contract)
}
