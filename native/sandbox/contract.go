// Package sandbox hosts contract instances: in-process behavior units
// registered under a code id, each instance with its own namespaced storage.
package sandbox

import (
	"fmt"
	"log/slog"

	chainerrors "chainsim/core/errors"
	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/storage"
)

// Querier gives contracts read-only access to the rest of the chain as
// seen from the scope the contract runs in.
type Querier interface {
	Balance(addr crypto.Address, denom string) (types.Coin, error)
	AllBalances(addr crypto.Address) (types.Coins, error)
	Supply(denom string) (types.Coin, error)
	BondedDenom() string
	Validator(addr crypto.Address) (types.Validator, error)
	Delegation(delegator, validator crypto.Address) (types.Delegation, error)
	QuerySmart(contract crypto.Address, msg []byte) ([]byte, error)
	QueryRaw(contract crypto.Address, key []byte) ([]byte, error)
	ContractInfo(contract crypto.Address) (types.ContractInfo, error)
}

// Deps are the capabilities handed to a contract call. Storage is the
// instance's own namespace; during queries it rejects writes.
type Deps struct {
	Storage storage.KVStore
	Querier Querier
	Logger  *slog.Logger
}

// Env is the read-only environment of a call.
type Env struct {
	Block    types.BlockInfo
	Contract crypto.Address
}

// MessageInfo describes who called the contract and what they sent along.
// The funds have already been moved to the contract when it runs.
type MessageInfo struct {
	Sender crypto.Address
	Funds  types.Coins
}

// Contract is the capability interface every behavior unit implements.
type Contract interface {
	Instantiate(deps Deps, env Env, info MessageInfo, msg []byte) (*types.Response, error)
	Execute(deps Deps, env Env, info MessageInfo, msg []byte) (*types.Response, error)
	Query(deps Deps, env Env, msg []byte) ([]byte, error)
	Migrate(deps Deps, env Env, msg []byte) (*types.Response, error)
	Sudo(deps Deps, env Env, msg []byte) (*types.Response, error)
	Reply(deps Deps, env Env, reply types.Reply) (*types.Response, error)
}

type (
	InstantiateFn func(deps Deps, env Env, info MessageInfo, msg []byte) (*types.Response, error)
	ExecuteFn     func(deps Deps, env Env, info MessageInfo, msg []byte) (*types.Response, error)
	QueryFn       func(deps Deps, env Env, msg []byte) ([]byte, error)
	MigrateFn     func(deps Deps, env Env, msg []byte) (*types.Response, error)
	SudoFn        func(deps Deps, env Env, msg []byte) (*types.Response, error)
	ReplyFn       func(deps Deps, env Env, reply types.Reply) (*types.Response, error)
)

// ContractWrapper turns plain functions into a Contract. Instantiate,
// execute and query are mandatory; the other entry points are optional and
// fail with ErrEntryPointNotImplemented when absent.
type ContractWrapper struct {
	instantiate InstantiateFn
	execute     ExecuteFn
	query       QueryFn
	migrate     MigrateFn
	sudo        SudoFn
	reply       ReplyFn
}

var _ Contract = (*ContractWrapper)(nil)

func NewContractWrapper(execute ExecuteFn, instantiate InstantiateFn, query QueryFn) *ContractWrapper {
	return &ContractWrapper{instantiate: instantiate, execute: execute, query: query}
}

func (w *ContractWrapper) WithMigrate(fn MigrateFn) *ContractWrapper {
	w.migrate = fn
	return w
}

func (w *ContractWrapper) WithSudo(fn SudoFn) *ContractWrapper {
	w.sudo = fn
	return w
}

func (w *ContractWrapper) WithReply(fn ReplyFn) *ContractWrapper {
	w.reply = fn
	return w
}

func missing(entry string) error {
	return fmt.Errorf("%w: %s", chainerrors.ErrEntryPointNotImplemented, entry)
}

func (w *ContractWrapper) Instantiate(deps Deps, env Env, info MessageInfo, msg []byte) (*types.Response, error) {
	if w.instantiate == nil {
		return nil, missing("instantiate")
	}
	return w.instantiate(deps, env, info, msg)
}

func (w *ContractWrapper) Execute(deps Deps, env Env, info MessageInfo, msg []byte) (*types.Response, error) {
	if w.execute == nil {
		return nil, missing("execute")
	}
	return w.execute(deps, env, info, msg)
}

func (w *ContractWrapper) Query(deps Deps, env Env, msg []byte) ([]byte, error) {
	if w.query == nil {
		return nil, missing("query")
	}
	return w.query(deps, env, msg)
}

func (w *ContractWrapper) Migrate(deps Deps, env Env, msg []byte) (*types.Response, error) {
	if w.migrate == nil {
		return nil, missing("migrate")
	}
	return w.migrate(deps, env, msg)
}

func (w *ContractWrapper) Sudo(deps Deps, env Env, msg []byte) (*types.Response, error) {
	if w.sudo == nil {
		return nil, missing("sudo")
	}
	return w.sudo(deps, env, msg)
}

func (w *ContractWrapper) Reply(deps Deps, env Env, reply types.Reply) (*types.Response, error) {
	if w.reply == nil {
		return nil, missing("reply")
	}
	return w.reply(deps, env, reply)
}
