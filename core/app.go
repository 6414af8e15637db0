package core

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"chainsim/config"
	chainerrors "chainsim/core/errors"
	"chainsim/core/events"
	"chainsim/core/genesis"
	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/native/bank"
	"chainsim/native/sandbox"
	"chainsim/native/staking"
	"chainsim/observability"
	"chainsim/observability/logging"
	simotel "chainsim/observability/otel"
	"chainsim/storage"
	"chainsim/storage/trie"
)

// txNamespace scopes the deterministic correlation ids of top-level
// messages.
var txNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("chainsim/tx"))

// App is the simulated chain: a block clock wrapped around the router and
// the module keepers. All methods are safe for concurrent use; callers are
// serialized so exactly one top-level message runs at a time.
type App struct {
	mu sync.Mutex

	cfg     *config.Config
	block   types.BlockInfo
	store   *storage.Store
	bank    *bank.Keeper
	staking *staking.Keeper
	sandbox *sandbox.Keeper
	router  *Router

	logger         *slog.Logger
	emitter        events.Emitter
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	shutdowns      []func(context.Context) error
	genesis        *genesis.Spec
	blockSet       bool

	txSeq uint64
}

// Option customises a new App.
type Option func(*App)

func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithBlock overrides the configured start block.
func WithBlock(block types.BlockInfo) Option {
	return func(a *App) {
		a.block = block
		a.blockSet = true
	}
}

// WithGenesis applies spec right after construction.
func WithGenesis(spec *genesis.Spec) Option {
	return func(a *App) { a.genesis = spec }
}

// WithEmitter receives every event of every committed message.
func WithEmitter(emitter events.Emitter) Option {
	return func(a *App) {
		if emitter != nil {
			a.emitter = emitter
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *App) {
		if tp != nil {
			a.tracerProvider = tp
		}
	}
}

// WithMeterProvider receives the router message counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *App) {
		if mp != nil {
			a.meterProvider = mp
		}
	}
}

// NewApp builds a chain from cfg. A nil cfg selects config.Default().
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	policy, err := staking.ParseRemainderPolicy(cfg.Staking.RemainderPolicy)
	if err != nil {
		return nil, err
	}
	params := staking.Params{
		BondDenom:       cfg.Staking.BondDenom,
		UnbondingBlocks: cfg.Staking.UnbondingBlocks,
		RemainderPolicy: policy,
		MinDelegation:   cfg.Staking.MinDelegation,
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	app := &App{
		cfg: cfg,
		block: types.BlockInfo{
			Height:  cfg.Block.StartHeight,
			Time:    cfg.Block.StartTime.UTC(),
			ChainID: cfg.ChainID,
		},
		store:   storage.NewStore(),
		emitter: observability.Events(),
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = logging.New(cfg.Logging)
	}
	if err := app.initTelemetry(); err != nil {
		return nil, err
	}
	app.logger = app.logger.With("chain_id", cfg.ChainID)

	app.bank = bank.NewKeeper()
	app.staking = staking.NewKeeper(app.bank, params)
	app.sandbox = sandbox.NewKeeper(app.logger)
	app.router = NewRouter(app.store, app.bank, app.staking, app.sandbox, cfg.MaxCallDepth,
		app.logger, app.tracerProvider.Tracer(simotel.TracerName), app.meterProvider.Meter(simotel.MeterName))

	if app.genesis != nil {
		if err := app.LoadGenesis(app.genesis); err != nil {
			return nil, fmt.Errorf("genesis: %w", err)
		}
	}
	return app, nil
}

// initTelemetry fills the providers the caller did not supply. With tracing
// enabled the app owns exporting providers and releases them in Close.
func (a *App) initTelemetry() error {
	ctx := context.Background()
	tracing := a.cfg.Tracing
	if a.tracerProvider == nil {
		if tracing.Enabled {
			tp, err := simotel.NewTracerProvider(ctx, tracing)
			if err != nil {
				return err
			}
			a.tracerProvider = tp
			a.shutdowns = append(a.shutdowns, tp.Shutdown)
		} else {
			a.tracerProvider = otel.GetTracerProvider()
		}
	}
	if a.meterProvider == nil {
		if tracing.Enabled && tracing.Metrics {
			mp, err := simotel.NewMeterProvider(ctx, tracing)
			if err != nil {
				_ = simotel.Shutdowns(a.shutdowns...)(ctx)
				return err
			}
			a.meterProvider = mp
			a.shutdowns = append(a.shutdowns, mp.Shutdown)
		} else {
			a.meterProvider = otel.GetMeterProvider()
		}
	}
	return nil
}

// Close flushes and stops the telemetry providers created by NewApp.
// Providers passed in through options are left to the caller.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	fns := a.shutdowns
	a.shutdowns = nil
	a.mu.Unlock()
	return simotel.Shutdowns(fns...)(ctx)
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// FormatAddress renders addr with the configured bech32 prefix.
func (a *App) FormatAddress(addr crypto.Address) string {
	return addr.Format(a.cfg.Bech32Prefix)
}

// Block returns the current block context.
func (a *App) Block() types.BlockInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.block
}

// AdvanceBlocks moves the clock forward by heights blocks and seconds. A step
// that would overflow the height or the time fails with
// ErrInvalidBlockAdvance and leaves the clock as it was.
func (a *App) AdvanceBlocks(heights, seconds uint64) (types.BlockInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seconds > config.MaxBlockSeconds {
		return a.block, fmt.Errorf("%w: %d seconds exceeds %d", chainerrors.ErrInvalidBlockAdvance, seconds, config.MaxBlockSeconds)
	}
	if heights > math.MaxUint64-a.block.Height {
		return a.block, fmt.Errorf("%w: height %d + %d overflows", chainerrors.ErrInvalidBlockAdvance, a.block.Height, heights)
	}
	next := a.block.Advance(heights, time.Duration(seconds)*time.Second)
	if next.Time.Before(a.block.Time) {
		return a.block, fmt.Errorf("%w: time %s + %ds overflows", chainerrors.ErrInvalidBlockAdvance, a.block.Time.Format(time.RFC3339), seconds)
	}
	a.block = next
	return a.block, nil
}

// NextBlock advances one height and the configured block time.
func (a *App) NextBlock() (types.BlockInfo, error) {
	return a.AdvanceBlocks(1, a.cfg.Block.BlockSeconds)
}

// UpdateBlock lets fn edit the block context. Moving height or time
// backwards fails with ErrInvalidBlockAdvance and leaves the clock as it was.
func (a *App) UpdateBlock(fn func(*types.BlockInfo)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.block
	fn(&next)
	next.ChainID = a.block.ChainID
	if next.Before(a.block) {
		return fmt.Errorf("%w: height %d -> %d, time %s -> %s", chainerrors.ErrInvalidBlockAdvance,
			a.block.Height, next.Height, a.block.Time.Format(time.RFC3339), next.Time.Format(time.RFC3339))
	}
	a.block = next
	return nil
}

func (a *App) nextTxID() string {
	a.txSeq++
	name := a.block.ChainID + "/" + strconv.FormatUint(a.block.Height, 10) + "/" + strconv.FormatUint(a.txSeq, 10)
	return uuid.NewSHA1(txNamespace, []byte(name)).String()
}

func (a *App) emit(responses ...*types.AppResponse) {
	for _, res := range responses {
		if res == nil {
			continue
		}
		for _, ev := range res.Events {
			a.emitter.Emit(ev)
		}
	}
}

// run executes one top-level unit under the app lock with its logging.
func (a *App) run(kind string, fn func(ctx context.Context, block types.BlockInfo) ([]*types.AppResponse, error)) ([]*types.AppResponse, error) {
	txID := a.nextTxID()
	logger := a.logger.With("tx_id", txID, "height", a.block.Height, "kind", kind)
	out, err := fn(context.Background(), a.block)
	if err != nil {
		logger.Warn("message rolled back", "error", err)
		return nil, err
	}
	count := 0
	for _, res := range out {
		count += len(res.Events)
	}
	logger.Info("message committed", "messages", len(out), "events", count)
	a.emit(out...)
	return out, nil
}

// Execute runs a single message from sender as one top-level transaction.
func (a *App) Execute(sender crypto.Address, msg types.Msg) (*types.AppResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out, err := a.run("execute", func(ctx context.Context, block types.BlockInfo) ([]*types.AppResponse, error) {
		return a.router.Execute(ctx, block, sender, msg)
	})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// ExecuteMulti runs msgs atomically: all of them commit or none does.
func (a *App) ExecuteMulti(sender crypto.Address, msgs ...types.Msg) ([]*types.AppResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.run("execute_multi", func(ctx context.Context, block types.BlockInfo) ([]*types.AppResponse, error) {
		return a.router.Execute(ctx, block, sender, msgs...)
	})
}

// BatchResult is the outcome of one message of a batch.
type BatchResult struct {
	Response *types.AppResponse
	Err      error
}

// ExecuteBatch runs msgs in order, each in its own top-level transaction.
// A failure only discards the effects of the failing message.
func (a *App) ExecuteBatch(sender crypto.Address, msgs ...types.Msg) []BatchResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]BatchResult, len(msgs))
	for i, msg := range msgs {
		res, err := a.run("batch", func(ctx context.Context, block types.BlockInfo) ([]*types.AppResponse, error) {
			return a.router.Execute(ctx, block, sender, msg)
		})
		if err != nil {
			out[i] = BatchResult{Err: err}
			continue
		}
		out[i] = BatchResult{Response: res[0]}
	}
	return out
}

// Sudo runs a privileged message as its own top-level transaction.
func (a *App) Sudo(msg types.SudoMsg) (*types.AppResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out, err := a.run("sudo", func(ctx context.Context, block types.BlockInfo) ([]*types.AppResponse, error) {
		res, err := a.router.Sudo(ctx, block, msg)
		if err != nil {
			return nil, err
		}
		return []*types.AppResponse{res}, nil
	})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// WasmSudo calls the sudo entry point of contract.
func (a *App) WasmSudo(contract crypto.Address, msg []byte) (*types.AppResponse, error) {
	return a.Sudo(types.ContractSudo{Contract: contract, Msg: msg})
}

// StateRoot is the Merkle root of the committed store.
func (a *App) StateRoot() (common.Hash, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return trie.Root(a.store.Committed())
}
