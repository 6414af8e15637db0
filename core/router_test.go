package core

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"chainsim/config"
	chainerrors "chainsim/core/errors"
	"chainsim/core/simtest"
	"chainsim/core/types"
	"chainsim/crypto"
)

type contractFixture struct {
	app     *App
	counter crypto.Address
	relay   crypto.Address
}

func newContractFixture(t *testing.T, mutate func(*config.Config), opts ...Option) *contractFixture {
	t.Helper()
	app := newTestApp(t, mutate, opts...)
	require.NoError(t, app.InitBalance(alice, stakes(1000)))

	counterCode := app.StoreCode(alice, simtest.Counter())
	relayCode := app.StoreCode(alice, simtest.Relay())
	counter, _, err := app.InstantiateContract(counterCode, alice, simtest.MustJSON(simtest.CounterInit{}), nil, "counter", &alice)
	require.NoError(t, err)
	relay, _, err := app.InstantiateContract(relayCode, alice, nil, nil, "relay", nil)
	require.NoError(t, err)
	return &contractFixture{app: app, counter: counter, relay: relay}
}

func (f *contractFixture) count(t *testing.T) uint64 {
	t.Helper()
	raw, err := f.app.QuerySmart(f.counter, []byte("{}"))
	require.NoError(t, err)
	var out simtest.CountResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	return out.Count
}

func (f *contractFixture) replies(t *testing.T) []simtest.ReplyRecord {
	t.Helper()
	raw, err := f.app.QuerySmart(f.relay, []byte("{}"))
	require.NoError(t, err)
	out, err := simtest.Replies(raw)
	require.NoError(t, err)
	return out
}

func (f *contractFixture) relayMsg(msg simtest.RelayMsg) []byte {
	return simtest.MustJSON(msg)
}

func (f *contractFixture) incrementStep(id uint64, replyOn string) simtest.Step {
	return simtest.Step{ID: id, ReplyOn: replyOn, Execute: &simtest.ExecStep{Contract: f.counter, Msg: simtest.Increment()}}
}

func eventTypes(res *types.AppResponse) []string {
	out := make([]string, 0, len(res.Events))
	for _, ev := range res.Events {
		out = append(out, ev.Type)
	}
	return out
}

func TestInstantiateUsesSequentialAddresses(t *testing.T) {
	f := newContractFixture(t, nil)
	require.Equal(t, crypto.Derive(alice, 0), f.counter)
	require.Equal(t, crypto.Derive(alice, 1), f.relay)

	info, err := f.app.ContractInfo(f.counter)
	require.NoError(t, err)
	require.Equal(t, "counter", info.Label)
	require.Equal(t, alice, *info.Admin)
	require.True(t, info.Active)

	other := newContractFixture(t, nil)
	require.Equal(t, f.counter, other.counter)
	rootA, err := f.app.StateRoot()
	require.NoError(t, err)
	rootB, err := other.app.StateRoot()
	require.NoError(t, err)
	require.Equal(t, rootA, rootB)
}

func TestInstantiate2PredictsAddress(t *testing.T) {
	f := newContractFixture(t, nil)
	code := f.app.StoreCode(bob, simtest.Counter())
	salt := []byte("salty")

	predicted, err := f.app.PredictAddress(code, alice, salt)
	require.NoError(t, err)
	addr, res, err := f.app.Instantiate2Contract(code, alice, nil, nil, "salted", nil, salt)
	require.NoError(t, err)
	require.Equal(t, predicted, addr)
	require.True(t, res.HasEvent("instantiate", types.Attribute{Key: "_contract_address", Value: addr.String()}))

	_, _, err = f.app.Instantiate2Contract(code, alice, nil, nil, "salted", nil, salt)
	require.ErrorIs(t, err, chainerrors.ErrAddressCollision)

	_, _, err = f.app.Instantiate2Contract(code, alice, nil, nil, "salted", nil, nil)
	require.Error(t, err)
}

func TestInstantiateRejectsMissingLabelAndCode(t *testing.T) {
	f := newContractFixture(t, nil)
	_, _, err := f.app.InstantiateContract(99, alice, nil, nil, "ghost", nil)
	require.ErrorIs(t, err, chainerrors.ErrUnknownCode)
	_, _, err = f.app.InstantiateContract(1, alice, nil, nil, "  ", nil)
	require.ErrorIs(t, err, chainerrors.ErrEmptyLabel)
}

func TestExecuteMovesFundsBeforeCall(t *testing.T) {
	f := newContractFixture(t, nil)
	res, err := f.app.ExecuteContract(alice, f.counter, simtest.Increment(), stakes(10))
	require.NoError(t, err)

	require.Equal(t, []string{"transfer", "execute", "wasm"}, eventTypes(res))
	funds, ok := res.Attribute("wasm", "funds")
	require.True(t, ok)
	require.Equal(t, "10"+config.DefaultBondDenom, funds)
	require.Equal(t, uint64(10), balanceOf(t, f.app, f.counter))
	require.Equal(t, uint64(990), balanceOf(t, f.app, alice))
	require.Equal(t, uint64(1), f.count(t))
}

func TestExecuteFailureRevertsFunds(t *testing.T) {
	f := newContractFixture(t, nil)
	before, err := f.app.StateRoot()
	require.NoError(t, err)

	_, err = f.app.ExecuteContract(alice, f.counter, simtest.Fail("boom"), stakes(10))
	require.ErrorIs(t, err, chainerrors.ErrContractExecutionFailed)
	require.ErrorContains(t, err, "boom")

	after, err := f.app.StateRoot()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, uint64(1000), balanceOf(t, f.app, alice))
}

func TestExecuteUnknownContractIsUnroutable(t *testing.T) {
	f := newContractFixture(t, nil)
	_, err := f.app.ExecuteContract(alice, crypto.AddressFromLabel("nowhere"), simtest.Increment(), nil)
	require.ErrorIs(t, err, chainerrors.ErrUnroutableMessage)
	require.ErrorIs(t, err, chainerrors.ErrContractNotFound)
}

func TestRepliesRunInEmissionOrder(t *testing.T) {
	f := newContractFixture(t, nil)
	observed := f.counter
	res, err := f.app.ExecuteContract(alice, f.relay, f.relayMsg(simtest.RelayMsg{
		Steps: []simtest.Step{f.incrementStep(1, "always"), f.incrementStep(2, "always")},
		Observe: &observed,
	}), nil)
	require.NoError(t, err)

	require.Equal(t, []string{
		"execute", "wasm",
		"execute", "wasm", "reply", "wasm",
		"execute", "wasm", "reply", "wasm",
	}, eventTypes(res))

	replies := f.replies(t)
	require.Len(t, replies, 2)
	require.Equal(t, uint64(1), replies[0].ID)
	require.True(t, replies[0].Ok)
	require.NotNil(t, replies[0].Count)
	require.Equal(t, uint64(1), *replies[0].Count)
	require.Equal(t, uint64(2), replies[1].ID)
	require.Equal(t, uint64(2), *replies[1].Count)
	require.Equal(t, uint64(2), f.count(t))
}

func TestReplyOnErrorHandlesFailure(t *testing.T) {
	f := newContractFixture(t, nil)
	res, err := f.app.ExecuteContract(alice, f.relay, f.relayMsg(simtest.RelayMsg{
		Steps: []simtest.Step{
			{ID: 7, ReplyOn: "error", Execute: &simtest.ExecStep{Contract: f.counter, Msg: simtest.Fail("nope")}},
			f.incrementStep(8, "error"),
		},
	}), nil)
	require.NoError(t, err)

	require.Equal(t, []string{"execute", "wasm", "reply", "wasm", "execute", "wasm"}, eventTypes(res))
	mode, ok := res.Attribute("reply", "mode")
	require.True(t, ok)
	require.Equal(t, "handle_failure", mode)

	replies := f.replies(t)
	require.Len(t, replies, 1)
	require.Equal(t, uint64(7), replies[0].ID)
	require.False(t, replies[0].Ok)
	require.Contains(t, replies[0].Error, "nope")
	require.Equal(t, uint64(1), f.count(t))
}

func TestSubMessageFailureWithoutErrorReplyPropagates(t *testing.T) {
	f := newContractFixture(t, nil)
	before, err := f.app.StateRoot()
	require.NoError(t, err)

	_, err = f.app.ExecuteContract(alice, f.relay, f.relayMsg(simtest.RelayMsg{
		Steps: []simtest.Step{
			f.incrementStep(1, "never"),
			{ID: 2, ReplyOn: "success", Execute: &simtest.ExecStep{Contract: f.counter, Msg: simtest.Fail("late")}},
		},
	}), nil)
	require.ErrorIs(t, err, chainerrors.ErrContractExecutionFailed)
	require.ErrorContains(t, err, "late")

	after, err := f.app.StateRoot()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Zero(t, f.count(t))
	require.Empty(t, f.replies(t))
}

func TestFailingReplyRollsBackWholeTree(t *testing.T) {
	f := newContractFixture(t, nil)
	_, err := f.app.ExecuteContract(alice, f.relay, f.relayMsg(simtest.RelayMsg{
		Steps: []simtest.Step{{
			ID:      1,
			ReplyOn: "success",
			Payload: simtest.PayloadFailReply,
			Execute: &simtest.ExecStep{Contract: f.counter, Msg: simtest.Increment()},
		}},
	}), nil)
	require.ErrorIs(t, err, chainerrors.ErrContractExecutionFailed)
	require.ErrorContains(t, err, "refused")
	require.Zero(t, f.count(t))
}

func TestReplyDataOverridesResponseData(t *testing.T) {
	f := newContractFixture(t, nil)

	res, err := f.app.ExecuteContract(alice, f.relay, f.relayMsg(simtest.RelayMsg{
		Data: "own",
		Steps: []simtest.Step{{
			ID:      1,
			Execute: &simtest.ExecStep{Contract: f.counter, Msg: simtest.MustJSON(simtest.CounterMsg{Action: "increment", Data: "inner"})},
		}},
	}), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("own"), res.Data)

	res, err = f.app.ExecuteContract(alice, f.relay, f.relayMsg(simtest.RelayMsg{
		Data: "own",
		Steps: []simtest.Step{{
			ID:      4,
			ReplyOn: "success",
			Payload: simtest.PayloadReplyData,
			Execute: &simtest.ExecStep{Contract: f.counter, Msg: simtest.Increment()},
		}},
	}), nil)
	require.NoError(t, err)
	require.Equal(t, []byte("reply-4"), res.Data)
}

func TestContractsCannotMint(t *testing.T) {
	f := newContractFixture(t, nil)
	mint := stake(5)
	_, err := f.app.ExecuteContract(alice, f.relay, f.relayMsg(simtest.RelayMsg{
		Steps: []simtest.Step{{ID: 1, Mint: &mint}},
	}), nil)
	require.ErrorIs(t, err, chainerrors.ErrUnroutableMessage)
	require.Equal(t, uint64(1000), supplyOf(t, f.app))
}

func TestContractSendUsesContractBalance(t *testing.T) {
	f := newContractFixture(t, nil)
	res, err := f.app.ExecuteContract(alice, f.relay, f.relayMsg(simtest.RelayMsg{
		Steps: []simtest.Step{{ID: 1, Send: &simtest.SendStep{To: bob, Amount: "25" + config.DefaultBondDenom}}},
	}), stakes(25))
	require.NoError(t, err)
	require.Equal(t, []string{"transfer", "execute", "wasm", "transfer"}, eventTypes(res))
	require.Equal(t, uint64(25), balanceOf(t, f.app, bob))
	require.Zero(t, balanceOf(t, f.app, f.relay))
}

func TestCallDepthIsBounded(t *testing.T) {
	f := newContractFixture(t, func(cfg *config.Config) { cfg.MaxCallDepth = 5 })
	before, err := f.app.StateRoot()
	require.NoError(t, err)

	_, err = f.app.ExecuteContract(alice, f.relay, f.relayMsg(simtest.RelayMsg{Recurse: true}), nil)
	require.ErrorIs(t, err, chainerrors.ErrCallDepthExceeded)

	after, err := f.app.StateRoot()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestQueriesAreReadOnlyAndIdempotent(t *testing.T) {
	f := newContractFixture(t, nil)
	_, err := f.app.ExecuteContract(alice, f.counter, simtest.Increment(), nil)
	require.NoError(t, err)
	before, err := f.app.StateRoot()
	require.NoError(t, err)

	first, err := f.app.QuerySmart(f.counter, []byte("{}"))
	require.NoError(t, err)
	second, err := f.app.QuerySmart(f.counter, []byte("{}"))
	require.NoError(t, err)
	require.Equal(t, first, second)

	_, err = f.app.QuerySmart(f.counter, []byte("write"))
	require.ErrorIs(t, err, chainerrors.ErrReadOnlyViolation)

	raw, err := f.app.QueryRaw(f.counter, []byte("count"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), raw)

	after, err := f.app.StateRoot()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestMigrateRequiresAdmin(t *testing.T) {
	f := newContractFixture(t, nil)
	next := f.app.StoreCode(alice, simtest.Counter())

	_, err := f.app.MigrateContract(bob, f.counter, next, nil)
	require.ErrorIs(t, err, chainerrors.ErrUnauthorized)

	res, err := f.app.MigrateContract(alice, f.counter, next, nil)
	require.NoError(t, err)
	migrated, ok := res.Attribute("wasm", "migrated")
	require.True(t, ok)
	require.Equal(t, "true", migrated)

	info, err := f.app.ContractInfo(f.counter)
	require.NoError(t, err)
	require.Equal(t, next, info.CodeID)
	raw, err := f.app.QueryRaw(f.counter, []byte("migrated"))
	require.NoError(t, err)
	require.Equal(t, []byte("true"), raw)

	_, err = f.app.UpdateAdmin(alice, f.counter, bob)
	require.NoError(t, err)
	_, err = f.app.MigrateContract(alice, f.counter, next, nil)
	require.ErrorIs(t, err, chainerrors.ErrUnauthorized)

	_, err = f.app.ClearAdmin(bob, f.counter)
	require.NoError(t, err)
	_, err = f.app.MigrateContract(bob, f.counter, next, nil)
	require.ErrorIs(t, err, chainerrors.ErrUnauthorized)
	info, err = f.app.ContractInfo(f.counter)
	require.NoError(t, err)
	require.Nil(t, info.Admin)
}

func TestWasmSudoAndDeactivation(t *testing.T) {
	f := newContractFixture(t, nil)
	_, err := f.app.ExecuteContract(alice, f.counter, simtest.Increment(), nil)
	require.NoError(t, err)

	res, err := f.app.WasmSudo(f.counter, []byte("{}"))
	require.NoError(t, err)
	require.True(t, res.HasEvent("sudo"))
	require.Zero(t, f.count(t))

	_, err = f.app.Sudo(types.ContractDeactivate{Contract: f.counter})
	require.NoError(t, err)
	_, err = f.app.ExecuteContract(alice, f.counter, simtest.Increment(), nil)
	require.ErrorIs(t, err, chainerrors.ErrContractInactive)

	require.Zero(t, f.count(t))
	_, err = f.app.WasmSudo(f.counter, []byte("{}"))
	require.NoError(t, err)
}

func TestContractQueryState(t *testing.T) {
	f := newContractFixture(t, nil)
	_, err := f.app.ExecuteContract(alice, f.counter, simtest.Increment(), nil)
	require.NoError(t, err)

	res, err := f.app.QueryState("wasm", "raw/"+f.counter.String()+"/"+hex.EncodeToString([]byte("count")))
	require.NoError(t, err)
	require.NotEmpty(t, res.Value)

	res, err = f.app.QueryState("wasm", "contracts")
	require.NoError(t, err)
	var infos []types.ContractInfo
	require.NoError(t, json.Unmarshal(res.Value, &infos))
	require.Len(t, infos, 2)

	records, err := f.app.QueryPrefix("wasm", "state/"+f.counter.String())
	require.NoError(t, err)
	require.Equal(t, []QueryRecord{{Key: hex.EncodeToString([]byte("count")), Value: []byte("1")}}, records)

	_, err = f.app.QueryPrefix("wasm", "code/1")
	require.ErrorIs(t, err, ErrQueryNotSupported)
}

func TestRouterTracesNestedDispatch(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	f := newContractFixture(t, nil, WithTracerProvider(tp))

	_, err := f.app.ExecuteContract(alice, f.relay, f.relayMsg(simtest.RelayMsg{
		Steps: []simtest.Step{
			f.incrementStep(1, "success"),
			{ID: 2, ReplyOn: "error", Execute: &simtest.ExecStep{Contract: f.counter, Msg: simtest.Fail("traced")}},
		},
	}), nil)
	require.NoError(t, err)

	names := map[string]int{}
	failed := 0
	for _, span := range recorder.Ended() {
		names[span.Name()]++
		if span.Status().Code == otelcodes.Error {
			failed++
		}
	}
	// Two instantiates, the relay call and its two sub-messages.
	require.Equal(t, 5, names["router.dispatch"])
	require.Equal(t, 2, names["router.reply"])
	require.Equal(t, 1, failed)
}

func TestRouterCountsMessages(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	f := newContractFixture(t, nil, WithMeterProvider(mp))

	_, err := f.app.ExecuteContract(alice, f.relay, f.relayMsg(simtest.RelayMsg{
		Steps: []simtest.Step{
			f.incrementStep(1, "success"),
			{ID: 2, ReplyOn: "error", Execute: &simtest.ExecStep{Contract: f.counter, Msg: simtest.Fail("counted")}},
		},
	}), nil)
	require.NoError(t, err)
	_, err = f.app.Sudo(types.BankMint{To: bob, Amount: stakes(5)})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "chainsim.router.messages" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				kind, _ := dp.Attributes.Value(attribute.Key("kind"))
				result, _ := dp.Attributes.Value(attribute.Key("result"))
				counts[kind.AsString()+"/"+result.AsString()] += dp.Value
			}
		}
	}
	// Two instantiates, the relay call and the increment succeed; the failing
	// sub-message is counted even though its reply recovers it.
	require.Equal(t, int64(4), counts["execute/ok"])
	require.Equal(t, int64(1), counts["execute/error"])
	require.Equal(t, int64(1), counts["sudo/ok"])
}
