package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"chainsim/config"
	"chainsim/core"
	chainerrors "chainsim/core/errors"
	"chainsim/core/genesis"
	"chainsim/observability/logging"
	simotel "chainsim/observability/otel"
)

type report struct {
	ChainID   string          `json:"chainId"`
	Height    uint64          `json:"height"`
	Time      time.Time       `json:"time"`
	StateRoot string          `json:"stateRoot"`
	Query     json.RawMessage `json:"query,omitempty"`
}

func main() {
	configFile := flag.String("config", "./chainsim.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis spec (JSON, or YAML by extension)")
	blocks := flag.Uint64("blocks", 0, "Number of empty blocks to advance after genesis")
	query := flag.String("query", "", "State query as <namespace>/<path>, e.g. bank/supply/ustake")
	flag.Parse()

	logger := logging.Setup("chainsim", strings.TrimSpace(os.Getenv("CHAINSIM_ENV")))
	if err := run(logger, *configFile, *genesisFlag, *blocks, *query); err != nil {
		logger.Error("chainsim failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configFile, genesisPath string, blocks uint64, query string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := []core.Option{core.WithLogger(logging.New(cfg.Logging))}
	if cfg.Tracing.Enabled {
		if raw := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); raw != "" {
			headers := simotel.ParseHeaders(raw)
			for k, v := range cfg.Tracing.Headers {
				headers[k] = v
			}
			cfg.Tracing.Headers = headers
		}
		shutdown, err := simotel.Init(context.Background(), cfg.Tracing)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
		opts = append(opts,
			core.WithTracerProvider(otel.GetTracerProvider()),
			core.WithMeterProvider(otel.GetMeterProvider()),
		)
	}
	if trimmed := strings.TrimSpace(genesisPath); trimmed != "" {
		spec, err := genesis.Load(trimmed)
		if err != nil {
			return err
		}
		opts = append(opts, core.WithGenesis(spec))
	}

	app, err := core.NewApp(cfg, opts...)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	if blocks > 0 {
		hi, seconds := bits.Mul64(blocks, cfg.Block.BlockSeconds)
		if hi != 0 {
			return fmt.Errorf("advance %d blocks: %w", blocks, chainerrors.ErrInvalidBlockAdvance)
		}
		if _, err := app.AdvanceBlocks(blocks, seconds); err != nil {
			return fmt.Errorf("advance %d blocks: %w", blocks, err)
		}
	}

	root, err := app.StateRoot()
	if err != nil {
		return err
	}
	block := app.Block()
	out := report{ChainID: block.ChainID, Height: block.Height, Time: block.Time, StateRoot: root.Hex()}
	if query != "" {
		namespace, path, ok := strings.Cut(strings.Trim(query, "/"), "/")
		if !ok {
			return fmt.Errorf("query %q must be <namespace>/<path>", query)
		}
		res, err := app.QueryState(namespace, path)
		if err != nil {
			return fmt.Errorf("query %s: %w", query, err)
		}
		out.Query = res.Value
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
