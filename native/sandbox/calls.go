package sandbox

import (
	"fmt"
	"strconv"
	"strings"

	chainerrors "chainsim/core/errors"
	"chainsim/core/state"
	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/storage"
)

// Result is a verified contract response turned into chain events. The
// router still has to process Messages.
type Result struct {
	Events   []types.Event
	Data     []byte
	Messages []types.SubMsg
}

func (k *Keeper) deps(kv storage.KVStore, q Querier, addr crypto.Address, readOnly bool) Deps {
	store := storage.Prefix(kv, dataPrefix(addr))
	if readOnly {
		store = storage.ReadOnly(store)
	}
	return Deps{
		Storage: store,
		Querier: q,
		Logger:  k.logger.With("contract", addr.String()),
	}
}

// resolve loads the instance and its code. Inactive instances are rejected
// unless allowInactive is set.
func (k *Keeper) resolve(kv storage.KVStore, addr crypto.Address, allowInactive bool) (*contractRecord, Contract, error) {
	rec, err := k.load(kv, addr)
	if err != nil {
		return nil, nil, err
	}
	if !rec.Active && !allowInactive {
		return nil, nil, fmt.Errorf("%w: %s", chainerrors.ErrContractInactive, addr)
	}
	entry, err := k.code(rec.CodeID)
	if err != nil {
		return nil, nil, err
	}
	return rec, entry.contract, nil
}

// invoke runs a contract entry point, turning failures and panics into
// ContractErrors.
func invoke[T any](addr crypto.Address, entry string, fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = chainerrors.NewContractError(addr.String(), entry, fmt.Errorf("panic: %v", r))
		}
	}()
	out, err = fn()
	if err != nil {
		return out, chainerrors.NewContractError(addr.String(), entry, err)
	}
	return out, nil
}

func verifyAttributes(attrs []types.Attribute) error {
	for _, attr := range attrs {
		key := strings.TrimSpace(attr.Key)
		if key == "" {
			return fmt.Errorf("%w: empty attribute key, value %q", chainerrors.ErrInvalidAttribute, attr.Value)
		}
		if strings.TrimSpace(attr.Value) == "" {
			return fmt.Errorf("%w: empty value for attribute %q", chainerrors.ErrInvalidAttribute, attr.Key)
		}
		if strings.HasPrefix(key, "_") {
			return fmt.Errorf("%w: attribute key %q is reserved", chainerrors.ErrInvalidAttribute, attr.Key)
		}
	}
	return nil
}

func verifyResponse(res *types.Response) error {
	if err := verifyAttributes(res.Attributes); err != nil {
		return err
	}
	for _, ev := range res.Events {
		if len(strings.TrimSpace(ev.Type)) < 2 {
			return fmt.Errorf("%w: event type %q shorter than 2 characters", chainerrors.ErrInvalidEvent, ev.Type)
		}
		if err := verifyAttributes(ev.Attributes); err != nil {
			return err
		}
	}
	return nil
}

// buildResult places the entry point event first, then the wasm event
// built from the response attributes, then the custom events under the
// wasm- prefix.
func buildResult(addr crypto.Address, entry types.Event, res *types.Response) (*Result, error) {
	if res == nil {
		res = types.NewResponse()
	}
	if err := verifyResponse(res); err != nil {
		return nil, err
	}
	contractAttr := types.Attribute{Key: ContractAttribute, Value: addr.String()}
	out := make([]types.Event, 0, 2+len(res.Events))
	out = append(out, entry)
	if len(res.Attributes) > 0 {
		attrs := make([]types.Attribute, 0, len(res.Attributes)+1)
		attrs = append(attrs, contractAttr)
		attrs = append(attrs, res.Attributes...)
		out = append(out, types.Event{Type: "wasm", Attributes: attrs})
	}
	for _, ev := range res.Events {
		attrs := make([]types.Attribute, 0, len(ev.Attributes)+1)
		attrs = append(attrs, contractAttr)
		attrs = append(attrs, ev.Attributes...)
		out = append(out, types.Event{Type: "wasm-" + ev.Type, Attributes: attrs})
	}
	return &Result{Events: out, Data: res.Data, Messages: res.Messages}, nil
}

func entryEvent(kind string, addr crypto.Address) types.Event {
	return types.NewEvent(kind).Add(ContractAttribute, addr.String())
}

// CallInstantiate runs the instantiate entry point of a freshly registered
// instance.
func (k *Keeper) CallInstantiate(kv storage.KVStore, q Querier, block types.BlockInfo, addr crypto.Address,
	info MessageInfo, msg []byte) (*Result, error) {
	rec, contract, err := k.resolve(kv, addr, false)
	if err != nil {
		return nil, err
	}
	env := Env{Block: block, Contract: addr}
	res, err := invoke(addr, "instantiate", func() (*types.Response, error) {
		return contract.Instantiate(k.deps(kv, q, addr, false), env, info, msg)
	})
	if err != nil {
		return nil, err
	}
	ev := entryEvent("instantiate", addr).Add("code_id", strconv.FormatUint(rec.CodeID, 10))
	return buildResult(addr, ev, res)
}

// CallExecute runs the execute entry point.
func (k *Keeper) CallExecute(kv storage.KVStore, q Querier, block types.BlockInfo, addr crypto.Address,
	info MessageInfo, msg []byte) (*Result, error) {
	_, contract, err := k.resolve(kv, addr, false)
	if err != nil {
		return nil, err
	}
	env := Env{Block: block, Contract: addr}
	res, err := invoke(addr, "execute", func() (*types.Response, error) {
		return contract.Execute(k.deps(kv, q, addr, false), env, info, msg)
	})
	if err != nil {
		return nil, err
	}
	return buildResult(addr, entryEvent("execute", addr), res)
}

// CallMigrate switches addr to newCodeID and runs the new code's migrate
// entry point. Only the admin may migrate.
func (k *Keeper) CallMigrate(kv storage.KVStore, q Querier, block types.BlockInfo, sender, addr crypto.Address,
	newCodeID uint64, msg []byte) (*Result, error) {
	rec, _, err := k.resolve(kv, addr, false)
	if err != nil {
		return nil, err
	}
	if !rec.HasAdmin || rec.Admin != sender {
		return nil, fmt.Errorf("%w: only admin can migrate %s", chainerrors.ErrUnauthorized, addr)
	}
	entry, err := k.code(newCodeID)
	if err != nil {
		return nil, err
	}
	rec.CodeID = newCodeID
	if err := k.save(kv, addr, rec); err != nil {
		return nil, err
	}
	env := Env{Block: block, Contract: addr}
	res, err := invoke(addr, "migrate", func() (*types.Response, error) {
		return entry.contract.Migrate(k.deps(kv, q, addr, false), env, msg)
	})
	if err != nil {
		return nil, err
	}
	ev := entryEvent("migrate", addr).Add("code_id", strconv.FormatUint(newCodeID, 10))
	return buildResult(addr, ev, res)
}

// CallSudo runs the sudo entry point. Inactive contracts still accept sudo.
func (k *Keeper) CallSudo(kv storage.KVStore, q Querier, block types.BlockInfo, addr crypto.Address, msg []byte) (*Result, error) {
	_, contract, err := k.resolve(kv, addr, true)
	if err != nil {
		return nil, err
	}
	env := Env{Block: block, Contract: addr}
	res, err := invoke(addr, "sudo", func() (*types.Response, error) {
		return contract.Sudo(k.deps(kv, q, addr, false), env, msg)
	})
	if err != nil {
		return nil, err
	}
	return buildResult(addr, entryEvent("sudo", addr), res)
}

// CallReply hands the outcome of a sub-message back to its emitter.
func (k *Keeper) CallReply(kv storage.KVStore, q Querier, block types.BlockInfo, addr crypto.Address, reply types.Reply) (*Result, error) {
	_, contract, err := k.resolve(kv, addr, false)
	if err != nil {
		return nil, err
	}
	mode := "handle_success"
	if !reply.Result.IsOk() {
		mode = "handle_failure"
	}
	env := Env{Block: block, Contract: addr}
	res, err := invoke(addr, "reply", func() (*types.Response, error) {
		return contract.Reply(k.deps(kv, q, addr, false), env, reply)
	})
	if err != nil {
		return nil, err
	}
	return buildResult(addr, entryEvent("reply", addr).Add("mode", mode), res)
}

func (k *Keeper) save(kv storage.KVStore, addr crypto.Address, rec *contractRecord) error {
	return state.NewManager(kv).KVPut(contractKey(addr), rec)
}

// QuerySmart runs the query entry point against a read-only view of the
// instance storage. Inactive contracts remain queryable.
func (k *Keeper) QuerySmart(kv storage.KVStore, q Querier, block types.BlockInfo, addr crypto.Address, msg []byte) ([]byte, error) {
	_, contract, err := k.resolve(kv, addr, true)
	if err != nil {
		return nil, err
	}
	env := Env{Block: block, Contract: addr}
	return invoke(addr, "query", func() ([]byte, error) {
		return contract.Query(k.deps(kv, q, addr, true), env, msg)
	})
}

// QueryRaw reads a single key of the instance storage.
func (k *Keeper) QueryRaw(kv storage.KVStore, addr crypto.Address, key []byte) ([]byte, error) {
	if _, err := k.load(kv, addr); err != nil {
		return nil, err
	}
	return storage.Prefix(kv, dataPrefix(addr)).Get(key)
}

// Dump returns every storage record of the instance in key order.
func (k *Keeper) Dump(kv storage.KVStore, addr crypto.Address) ([]storage.KV, error) {
	if _, err := k.load(kv, addr); err != nil {
		return nil, err
	}
	var out []storage.KV
	err := storage.Prefix(kv, dataPrefix(addr)).Iterate(nil, func(key, value []byte) (bool, error) {
		out = append(out, storage.KV{
			Key:   append([]byte(nil), key...),
			Value: append([]byte(nil), value...),
		})
		return false, nil
	})
	return out, err
}
