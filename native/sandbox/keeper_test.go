package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	chainerrors "chainsim/core/errors"
	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/observability/logging"
	"chainsim/storage"
)

var (
	creator = crypto.AddressFromLabel("creator")
	admin   = crypto.AddressFromLabel("admin")
	block   = types.BlockInfo{Height: 12, ChainID: "sandbox-test"}
)

// kvContract stores the execute payload under "last" and answers queries
// with it. It attaches a configurable response.
func kvContract(respond func() *types.Response) *ContractWrapper {
	return NewContractWrapper(
		func(deps Deps, _ Env, _ MessageInfo, msg []byte) (*types.Response, error) {
			if err := deps.Storage.Set([]byte("last"), msg); err != nil {
				return nil, err
			}
			return respond(), nil
		},
		func(deps Deps, _ Env, _ MessageInfo, msg []byte) (*types.Response, error) {
			return types.NewResponse(), deps.Storage.Set([]byte("init"), msg)
		},
		func(deps Deps, _ Env, msg []byte) ([]byte, error) {
			if string(msg) == "write" {
				return nil, deps.Storage.Set([]byte("last"), []byte("nope"))
			}
			return deps.Storage.Get([]byte("last"))
		},
	)
}

func newKeeper(t *testing.T) (*Keeper, *storage.Store) {
	t.Helper()
	return NewKeeper(logging.Discard()), storage.NewStore()
}

func instantiate(t *testing.T, k *Keeper, store *storage.Store, codeID uint64, adminAddr *crypto.Address) crypto.Address {
	t.Helper()
	addr, err := k.Register(store, codeID, creator, adminAddr, "test", block.Height, nil)
	require.NoError(t, err)
	_, err = k.CallInstantiate(store, nil, block, addr, MessageInfo{Sender: creator}, []byte("{}"))
	require.NoError(t, err)
	return addr
}

func TestStoreCodeSequentialIDs(t *testing.T) {
	k, _ := newKeeper(t)
	first := k.StoreCode(creator, kvContract(types.NewResponse))
	second := k.StoreCode(creator, kvContract(types.NewResponse))
	require.Equal(t, uint64(1), first)
	require.Equal(t, uint64(2), second)

	a, err := k.CodeInfo(first)
	require.NoError(t, err)
	b, err := k.CodeInfo(second)
	require.NoError(t, err)
	require.Len(t, a.Checksum, 32)
	require.NotEqual(t, a.Checksum, b.Checksum)

	_, err = k.CodeInfo(3)
	require.ErrorIs(t, err, chainerrors.ErrUnknownCode)
}

func TestRegisterDerivesSequentialAddresses(t *testing.T) {
	k, store := newKeeper(t)
	code := k.StoreCode(creator, kvContract(types.NewResponse))

	first, err := k.Register(store, code, creator, nil, "one", 1, nil)
	require.NoError(t, err)
	second, err := k.Register(store, code, creator, nil, "two", 1, nil)
	require.NoError(t, err)
	require.Equal(t, crypto.Derive(creator, 0), first)
	require.Equal(t, crypto.Derive(creator, 1), second)

	_, err = k.Register(store, code, creator, nil, "  ", 1, nil)
	require.ErrorIs(t, err, chainerrors.ErrEmptyLabel)
	_, err = k.Register(store, 99, creator, nil, "x", 1, nil)
	require.ErrorIs(t, err, chainerrors.ErrUnknownCode)
}

func TestRegisterSaltedAddressCollision(t *testing.T) {
	k, store := newKeeper(t)
	code := k.StoreCode(creator, kvContract(types.NewResponse))
	info, err := k.CodeInfo(code)
	require.NoError(t, err)

	addr, err := k.Register(store, code, creator, nil, "salted", 1, []byte("salt"))
	require.NoError(t, err)
	require.Equal(t, crypto.DeriveSalted(creator, info.Checksum, []byte("salt")), addr)

	_, err = k.Register(store, code, creator, nil, "salted", 1, []byte("salt"))
	require.ErrorIs(t, err, chainerrors.ErrAddressCollision)
}

func TestExecuteBuildsEvents(t *testing.T) {
	k, store := newKeeper(t)
	code := k.StoreCode(creator, kvContract(func() *types.Response {
		return types.NewResponse().
			AddAttribute("action", "store").
			AddEvent(types.NewEvent("stored").Add("size", "3")).
			SetData([]byte("ok"))
	}))
	addr := instantiate(t, k, store, code, nil)

	res, err := k.CallExecute(store, nil, block, addr, MessageInfo{Sender: creator}, []byte("abc"))
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), res.Data)
	require.Len(t, res.Events, 3)

	require.Equal(t, "execute", res.Events[0].Type)
	require.Equal(t, "wasm", res.Events[1].Type)
	require.Equal(t, ContractAttribute, res.Events[1].Attributes[0].Key)
	require.Equal(t, addr.String(), res.Events[1].Attributes[0].Value)
	require.Equal(t, "wasm-stored", res.Events[2].Type)
	require.Equal(t, ContractAttribute, res.Events[2].Attributes[0].Key)

	raw, err := k.QueryRaw(store, addr, []byte("last"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), raw)
}

func TestExecuteWithoutAttributesSkipsWasmEvent(t *testing.T) {
	k, store := newKeeper(t)
	code := k.StoreCode(creator, kvContract(types.NewResponse))
	addr := instantiate(t, k, store, code, nil)

	res, err := k.CallExecute(store, nil, block, addr, MessageInfo{Sender: creator}, []byte("x"))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
}

func TestResponseVerification(t *testing.T) {
	cases := map[string]struct {
		res  *types.Response
		want error
	}{
		"empty key":      {types.NewResponse().AddAttribute(" ", "v"), chainerrors.ErrInvalidAttribute},
		"empty value":    {types.NewResponse().AddAttribute("k", " "), chainerrors.ErrInvalidAttribute},
		"reserved key":   {types.NewResponse().AddAttribute("_contract_address", "v"), chainerrors.ErrInvalidAttribute},
		"short event":    {types.NewResponse().AddEvent(types.NewEvent("x")), chainerrors.ErrInvalidEvent},
		"event attr bad": {types.NewResponse().AddEvent(types.NewEvent("ok").Add("_k", "v")), chainerrors.ErrInvalidAttribute},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			k, store := newKeeper(t)
			res := tc.res
			code := k.StoreCode(creator, kvContract(func() *types.Response { return res }))
			addr := instantiate(t, k, store, code, nil)
			_, err := k.CallExecute(store, nil, block, addr, MessageInfo{Sender: creator}, []byte("x"))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestContractErrorsAreWrapped(t *testing.T) {
	k, store := newKeeper(t)
	boom := errors.New("boom")
	code := k.StoreCode(creator, NewContractWrapper(
		func(Deps, Env, MessageInfo, []byte) (*types.Response, error) { return nil, boom },
		func(Deps, Env, MessageInfo, []byte) (*types.Response, error) { return nil, nil },
		func(Deps, Env, []byte) ([]byte, error) { panic("query exploded") },
	))
	addr := instantiate(t, k, store, code, nil)

	_, err := k.CallExecute(store, nil, block, addr, MessageInfo{Sender: creator}, nil)
	require.ErrorIs(t, err, chainerrors.ErrContractExecutionFailed)
	require.ErrorIs(t, err, boom)
	ce, ok := chainerrors.AsContractError(err)
	require.True(t, ok)
	require.Equal(t, "execute", ce.Entry)
	require.Equal(t, "boom", ce.Detail)

	_, err = k.QuerySmart(store, nil, block, addr, nil)
	require.ErrorIs(t, err, chainerrors.ErrContractExecutionFailed)

	_, err = k.CallSudo(store, nil, block, addr, nil)
	require.ErrorIs(t, err, chainerrors.ErrEntryPointNotImplemented)
}

func TestQueryIsReadOnly(t *testing.T) {
	k, store := newKeeper(t)
	code := k.StoreCode(creator, kvContract(types.NewResponse))
	addr := instantiate(t, k, store, code, nil)
	_, err := k.CallExecute(store, nil, block, addr, MessageInfo{Sender: creator}, []byte("v1"))
	require.NoError(t, err)

	_, err = k.QuerySmart(store, nil, block, addr, []byte("write"))
	require.ErrorIs(t, err, chainerrors.ErrReadOnlyViolation)

	for i := 0; i < 2; i++ {
		out, err := k.QuerySmart(store, nil, block, addr, []byte("read"))
		require.NoError(t, err)
		require.Equal(t, []byte("v1"), out)
	}
}

func TestMigrateRequiresAdmin(t *testing.T) {
	k, store := newKeeper(t)
	migrated := false
	v1 := k.StoreCode(creator, kvContract(types.NewResponse))
	v2 := k.StoreCode(creator, kvContract(types.NewResponse).WithMigrate(func(Deps, Env, []byte) (*types.Response, error) {
		migrated = true
		return types.NewResponse(), nil
	}))
	adminAddr := admin
	addr := instantiate(t, k, store, v1, &adminAddr)

	_, err := k.CallMigrate(store, nil, block, creator, addr, v2, nil)
	require.ErrorIs(t, err, chainerrors.ErrUnauthorized)

	res, err := k.CallMigrate(store, nil, block, admin, addr, v2, nil)
	require.NoError(t, err)
	require.True(t, migrated)
	code, ok := res.Events[0].Value("code_id")
	require.True(t, ok)
	require.Equal(t, "2", code)

	info, err := k.ContractInfo(store, addr)
	require.NoError(t, err)
	require.Equal(t, v2, info.CodeID)

	_, err = k.UpdateAdmin(store, creator, addr, nil)
	require.ErrorIs(t, err, chainerrors.ErrUnauthorized)
	_, err = k.UpdateAdmin(store, admin, addr, nil)
	require.NoError(t, err)
	_, err = k.CallMigrate(store, nil, block, admin, addr, v1, nil)
	require.ErrorIs(t, err, chainerrors.ErrUnauthorized)
}

func TestDeactivatedContractStaysQueryable(t *testing.T) {
	k, store := newKeeper(t)
	code := k.StoreCode(creator, kvContract(types.NewResponse))
	addr := instantiate(t, k, store, code, nil)
	_, err := k.CallExecute(store, nil, block, addr, MessageInfo{Sender: creator}, []byte("kept"))
	require.NoError(t, err)

	_, err = k.Sudo(store, types.ContractDeactivate{Contract: addr})
	require.NoError(t, err)

	_, err = k.CallExecute(store, nil, block, addr, MessageInfo{Sender: creator}, []byte("x"))
	require.ErrorIs(t, err, chainerrors.ErrContractInactive)
	out, err := k.QuerySmart(store, nil, block, addr, []byte("read"))
	require.NoError(t, err)
	require.Equal(t, []byte("kept"), out)

	dump, err := k.Dump(store, addr)
	require.NoError(t, err)
	require.Len(t, dump, 2)
	require.Equal(t, "init", string(dump[0].Key))
	require.Equal(t, "last", string(dump[1].Key))
}

func TestStorageIsNamespacedPerInstance(t *testing.T) {
	k, store := newKeeper(t)
	code := k.StoreCode(creator, kvContract(types.NewResponse))
	a := instantiate(t, k, store, code, nil)
	b := instantiate(t, k, store, code, nil)

	_, err := k.CallExecute(store, nil, block, a, MessageInfo{Sender: creator}, []byte("for-a"))
	require.NoError(t, err)
	raw, err := k.QueryRaw(store, b, []byte("last"))
	require.NoError(t, err)
	require.Nil(t, raw)
}
