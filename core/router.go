package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	chainerrors "chainsim/core/errors"
	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/native/bank"
	"chainsim/native/sandbox"
	"chainsim/native/staking"
	"chainsim/observability"
	"chainsim/observability/logging"
	"chainsim/storage"
)

// Router hands messages to the module that owns them. Every top-level call
// runs in its own scope on the store; every sub-message runs in a scope
// nested inside the one of its emitter. Nested commits only merge into the
// parent scope, so nothing is durable until the top-level scope commits.
//
// Router is not safe for concurrent use; the App serializes callers.
type Router struct {
	store    *storage.Store
	bank     *bank.Keeper
	staking  *staking.Keeper
	sandbox  *sandbox.Keeper
	maxDepth int
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.RouterMetrics
	messages metric.Int64Counter
}

// outcome is the result of dispatching a single message.
type outcome struct {
	events []types.Event
	data   []byte
}

func NewRouter(store *storage.Store, bankKeeper *bank.Keeper, stakingKeeper *staking.Keeper,
	sandboxKeeper *sandbox.Keeper, maxDepth int, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Router {
	if logger == nil {
		logger = logging.Discard()
	}
	messages, err := meter.Int64Counter("chainsim.router.messages",
		metric.WithDescription("Messages dispatched by the router, by module and result."))
	if err != nil {
		logger.Warn("router message counter unavailable", "error", err)
		messages = noop.Int64Counter{}
	}
	return &Router{
		store:    store,
		bank:     bankKeeper,
		staking:  stakingKeeper,
		sandbox:  sandboxKeeper,
		maxDepth: maxDepth,
		logger:   logger.With("component", "router"),
		tracer:   tracer,
		metrics:  observability.Router(),
		messages: messages,
	}
}

// Execute dispatches msgs from sender inside one top-level scope. Either
// every message succeeds and the scope commits, or the first failure rolls
// back the effects of all of them.
func (r *Router) Execute(ctx context.Context, block types.BlockInfo, sender crypto.Address, msgs ...types.Msg) ([]*types.AppResponse, error) {
	depth := r.store.Begin()
	out := make([]*types.AppResponse, 0, len(msgs))
	for _, msg := range msgs {
		res, err := r.dispatch(ctx, block, sender, msg, 0)
		if err != nil {
			r.rollback(depth, "top")
			return nil, err
		}
		out = append(out, &types.AppResponse{Events: res.events, Data: res.data})
	}
	if err := r.store.Commit(depth); err != nil {
		r.rollback(depth, "top")
		return nil, err
	}
	return out, nil
}

// Sudo dispatches a privileged message inside its own top-level scope.
func (r *Router) Sudo(ctx context.Context, block types.BlockInfo, msg types.SudoMsg) (*types.AppResponse, error) {
	depth := r.store.Begin()
	res, err := r.dispatchSudo(ctx, block, msg)
	if err != nil {
		r.rollback(depth, "top")
		return nil, err
	}
	if err := r.store.Commit(depth); err != nil {
		r.rollback(depth, "top")
		return nil, err
	}
	return &types.AppResponse{Events: res.events, Data: res.data}, nil
}

func (r *Router) rollback(depth int, level string) {
	if err := r.store.Rollback(depth); err != nil {
		r.logger.Error("scope rollback failed", "depth", depth, "error", err)
		return
	}
	r.metrics.RecordRollback(level)
}

func msgType(msg any) string {
	name := fmt.Sprintf("%T", msg)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func (r *Router) countMessage(ctx context.Context, module, kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.messages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("module", module),
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

func routeOf(msg interface{ Route() string }) string {
	if msg == nil {
		return "unknown"
	}
	return msg.Route()
}

func unroutable(msg any) error {
	return fmt.Errorf("%w: %s", chainerrors.ErrUnroutableMessage, msgType(msg))
}

func (r *Router) startSpan(ctx context.Context, name string, msg any, module string, depth int) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("chainsim.msg_type", msgType(msg)),
		attribute.String("chainsim.module", module),
		attribute.Int("chainsim.depth", depth),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// dispatch routes a message from an account or a contract. Sudo messages
// are not reachable from here.
func (r *Router) dispatch(ctx context.Context, block types.BlockInfo, sender crypto.Address, msg types.Msg, depth int) (res *outcome, err error) {
	module := routeOf(msg)
	ctx, span := r.startSpan(ctx, "router.dispatch", msg, module, depth)
	defer func() {
		endSpan(span, err)
		r.metrics.ObserveMessage(module, depth, err)
		r.countMessage(ctx, module, "execute", err)
	}()
	if depth > r.maxDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds %d", chainerrors.ErrCallDepthExceeded, depth, r.maxDepth)
	}
	r.logger.Debug("dispatch",
		"msg_type", msgType(msg),
		"module", module,
		"depth", depth,
		logging.Address("sender", sender.String()))

	switch m := msg.(type) {
	case types.BankSend:
		evs, err := r.bank.Execute(r.store, sender, m)
		if err != nil {
			return nil, err
		}
		return &outcome{events: evs}, nil
	case types.StakingDelegate, types.StakingUndelegate, types.StakingRedelegate, types.StakingClaimUnbonded,
		types.DistributionWithdrawRewards, types.DistributionSetWithdrawAddress:
		evs, err := r.staking.Execute(r.store, block, sender, msg)
		if err != nil {
			return nil, err
		}
		return &outcome{events: evs}, nil
	case types.ContractInstantiate:
		return r.instantiate(ctx, block, sender, m, depth)
	case types.ContractExecute:
		if err := r.requireContract(m.Contract); err != nil {
			return nil, err
		}
		return r.callContract(ctx, block, sender, m.Contract, m.Funds, depth,
			func(q sandbox.Querier, info sandbox.MessageInfo) (*sandbox.Result, error) {
				return r.sandbox.CallExecute(r.store, q, block, m.Contract, info, m.Msg)
			})
	case types.ContractMigrate:
		if err := r.requireContract(m.Contract); err != nil {
			return nil, err
		}
		return r.callContract(ctx, block, sender, m.Contract, nil, depth,
			func(q sandbox.Querier, _ sandbox.MessageInfo) (*sandbox.Result, error) {
				return r.sandbox.CallMigrate(r.store, q, block, sender, m.Contract, m.NewCodeID, m.Msg)
			})
	case types.ContractUpdateAdmin:
		admin := m.Admin
		evs, err := r.sandbox.UpdateAdmin(r.store, sender, m.Contract, &admin)
		if err != nil {
			return nil, err
		}
		return &outcome{events: evs}, nil
	case types.ContractClearAdmin:
		evs, err := r.sandbox.UpdateAdmin(r.store, sender, m.Contract, nil)
		if err != nil {
			return nil, err
		}
		return &outcome{events: evs}, nil
	default:
		return nil, unroutable(msg)
	}
}

// dispatchSudo routes a privileged message.
func (r *Router) dispatchSudo(ctx context.Context, block types.BlockInfo, msg types.SudoMsg) (res *outcome, err error) {
	module := routeOf(msg)
	ctx, span := r.startSpan(ctx, "router.sudo", msg, module, 0)
	defer func() {
		endSpan(span, err)
		r.metrics.ObserveMessage(module, 0, err)
		r.countMessage(ctx, module, "sudo", err)
	}()
	r.logger.Debug("sudo", "msg_type", msgType(msg), "module", module)

	switch m := msg.(type) {
	case types.BankMint:
		evs, err := r.bank.Sudo(r.store, m)
		if err != nil {
			return nil, err
		}
		return &outcome{events: evs}, nil
	case types.StakingAddValidator, types.StakingDistributeRewards, types.StakingSlash, types.StakingProcessQueue:
		evs, err := r.staking.Sudo(r.store, block, msg)
		if err != nil {
			return nil, err
		}
		return &outcome{events: evs}, nil
	case types.ContractSudo:
		if err := r.requireContract(m.Contract); err != nil {
			return nil, err
		}
		res, err := r.sandbox.CallSudo(r.store, r.querier(block), block, m.Contract, m.Msg)
		if err != nil {
			return nil, err
		}
		return r.processResponse(ctx, block, m.Contract, res, 0)
	case types.ContractDeactivate:
		evs, err := r.sandbox.Sudo(r.store, m)
		if err != nil {
			return nil, err
		}
		return &outcome{events: evs}, nil
	default:
		return nil, unroutable(msg)
	}
}

// requireContract turns a missing target contract into an unroutable
// message.
func (r *Router) requireContract(addr crypto.Address) error {
	_, err := r.sandbox.ContractInfo(r.store, addr)
	if errors.Is(err, chainerrors.ErrContractNotFound) {
		return fmt.Errorf("%w: %w", chainerrors.ErrUnroutableMessage, err)
	}
	return err
}

// moveFunds sends the funds attached to a contract call from the caller to
// the contract. The contract only runs once they have arrived.
func (r *Router) moveFunds(sender, contract crypto.Address, funds types.Coins) (types.Coins, []types.Event, error) {
	normalized, err := funds.Normalize()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", chainerrors.ErrInvalidDenom, err)
	}
	if len(normalized) == 0 {
		return types.Coins{}, nil, nil
	}
	evs, err := r.bank.Transfer(r.store, sender, contract, normalized)
	if err != nil {
		return nil, nil, err
	}
	return normalized, evs, nil
}

type contractCall func(q sandbox.Querier, info sandbox.MessageInfo) (*sandbox.Result, error)

func (r *Router) callContract(ctx context.Context, block types.BlockInfo, sender, contract crypto.Address,
	funds types.Coins, depth int, call contractCall) (*outcome, error) {
	sent, transferEvents, err := r.moveFunds(sender, contract, funds)
	if err != nil {
		return nil, err
	}
	res, err := call(r.querier(block), sandbox.MessageInfo{Sender: sender, Funds: sent})
	if err != nil {
		return nil, err
	}
	out, err := r.processResponse(ctx, block, contract, res, depth)
	if err != nil {
		return nil, err
	}
	if len(transferEvents) > 0 {
		out.events = append(transferEvents, out.events...)
	}
	return out, nil
}

func (r *Router) instantiate(ctx context.Context, block types.BlockInfo, sender crypto.Address,
	m types.ContractInstantiate, depth int) (*outcome, error) {
	addr, err := r.sandbox.Register(r.store, m.CodeID, sender, m.Admin, m.Label, block.Height, m.Salt)
	if err != nil {
		return nil, err
	}
	out, err := r.callContract(ctx, block, sender, addr, m.Funds, depth,
		func(q sandbox.Querier, info sandbox.MessageInfo) (*sandbox.Result, error) {
			return r.sandbox.CallInstantiate(r.store, q, block, addr, info, m.Msg)
		})
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(types.InstantiateResult{Address: addr, Data: out.data})
	if err != nil {
		return nil, err
	}
	out.data = data
	return out, nil
}

// processResponse runs the sub-messages of a contract response in emission
// order. Each sub-message, its nested effects and its reply complete before
// the next one starts. The last sub-message that produced data overrides
// the contract's own data.
func (r *Router) processResponse(ctx context.Context, block types.BlockInfo, contract crypto.Address,
	res *sandbox.Result, depth int) (*outcome, error) {
	out := &outcome{events: res.Events, data: res.Data}
	for _, sub := range res.Messages {
		subOut, err := r.executeSubMsg(ctx, block, contract, sub, depth+1)
		if err != nil {
			return nil, err
		}
		out.events = append(out.events, subOut.events...)
		if subOut.data != nil {
			out.data = subOut.data
		}
	}
	return out, nil
}

// executeSubMsg runs sub inside a nested scope. A failure rolls the scope
// back; the emitter then either handles it in its reply entry point or the
// failure propagates. Reply calls run in the emitter's scope.
func (r *Router) executeSubMsg(ctx context.Context, block types.BlockInfo, contract crypto.Address,
	sub types.SubMsg, depth int) (*outcome, error) {
	scope := r.store.Begin()
	res, err := r.dispatch(ctx, block, contract, sub.Msg, depth)
	r.metrics.ObserveSubMessage(sub.ReplyOn.String(), err)
	if err != nil {
		r.rollback(scope, "nested")
		if !sub.ReplyOn.OnError() {
			return nil, err
		}
		r.logger.Debug("sub-message failed, replying", "id", sub.ID, "depth", depth, "error", err)
		return r.reply(ctx, block, contract, types.Reply{
			ID:      sub.ID,
			Payload: sub.Payload,
			Result:  types.SubMsgResult{Err: err.Error()},
		}, depth-1)
	}
	if err := r.store.Commit(scope); err != nil {
		r.rollback(scope, "nested")
		return nil, err
	}
	if !sub.ReplyOn.OnSuccess() {
		return &outcome{events: res.events}, nil
	}
	replied, err := r.reply(ctx, block, contract, types.Reply{
		ID:      sub.ID,
		Payload: sub.Payload,
		Result: types.SubMsgResult{Ok: &types.SubMsgResponse{
			Events: res.events,
			Data:   res.data,
		}},
	}, depth-1)
	if err != nil {
		return nil, err
	}
	return &outcome{events: append(res.events, replied.events...), data: replied.data}, nil
}

// reply hands a sub-message outcome to its emitter at the emitter's depth.
func (r *Router) reply(ctx context.Context, block types.BlockInfo, contract crypto.Address, reply types.Reply, depth int) (res *outcome, err error) {
	mode := "handle_success"
	if !reply.Result.IsOk() {
		mode = "handle_failure"
	}
	ctx, span := r.tracer.Start(ctx, "router.reply", trace.WithAttributes(
		attribute.String("chainsim.reply_mode", mode),
		attribute.Int64("chainsim.reply_id", int64(reply.ID)),
	))
	defer func() { endSpan(span, err) }()
	r.metrics.RecordReply(mode)

	out, err := r.sandbox.CallReply(r.store, r.querier(block), block, contract, reply)
	if err != nil {
		return nil, err
	}
	return r.processResponse(ctx, block, contract, out, depth)
}
