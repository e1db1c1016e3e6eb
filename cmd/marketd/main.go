package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emojidao/double-market-1155/assets"
	"github.com/emojidao/double-market-1155/config"
	"github.com/emojidao/double-market-1155/gov"
	"github.com/emojidao/double-market-1155/ledger"
	"github.com/emojidao/double-market-1155/market"
	"github.com/emojidao/double-market-1155/observability"
	"github.com/emojidao/double-market-1155/observability/logging"
	"github.com/emojidao/double-market-1155/observability/otel"
	"github.com/emojidao/double-market-1155/rentalconfig"
	"github.com/emojidao/double-market-1155/rights"
	"github.com/emojidao/double-market-1155/storage"
)

const (
	otelEndpointEnv = "DOUBLE_OTEL_ENDPOINT"
	envEnv          = "DOUBLE_ENV"
)

func main() {
	configFile := flag.String("config", "./market.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envEnv))
	logger := logging.Setup("marketd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if endpoint := strings.TrimSpace(os.Getenv(otelEndpointEnv)); endpoint != "" {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "marketd",
			Environment: env,
			Endpoint:    endpoint,
			Insecure:    true,
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", logging.MaskValue(cfg.DataDir))
		os.Exit(1)
	}
	defer db.Close()

	node, err := buildNode(cfg, db)
	if err != nil {
		logger.Error("failed to wire market", "error", err)
		os.Exit(1)
	}
	logger.Info("market node ready",
		"operation", "startup",
		"fee_bps", fmt.Sprintf("%d", node.engine.MarketFeeBps()),
		logging.MaskField("beneficiary", cfg.MarketBeneficiary),
		logging.MaskField("vault", cfg.VaultAddress),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
}

// marketNode bundles the wired engines of one process.
type marketNode struct {
	engine *market.Engine
	book   *market.OrderBook
}

func buildNode(cfg *config.Config, db storage.Database) (*marketNode, error) {
	parse := func(name, value string, fallback [20]byte) ([20]byte, error) {
		if strings.TrimSpace(value) == "" {
			return fallback, nil
		}
		addr, err := config.ParseAddress(value)
		if err != nil {
			return addr, fmt.Errorf("%s: %w", name, err)
		}
		return addr, nil
	}

	// Placeholder roles for local runs; production deployments set every
	// address explicitly.
	var defaultRole [20]byte
	defaultRole[19] = 0x01

	owner, err := parse("OwnerAddress", cfg.OwnerAddress, defaultRole)
	if err != nil {
		return nil, err
	}
	admin, err := parse("AdminAddress", cfg.AdminAddress, owner)
	if err != nil {
		return nil, err
	}
	superAdmin, err := parse("ConfigSuperAdmin", cfg.ConfigSuperAdmin, owner)
	if err != nil {
		return nil, err
	}
	var defaultMarket [20]byte
	defaultMarket[19] = 0xff
	marketAddr, err := parse("MarketAddress", cfg.MarketAddress, defaultMarket)
	if err != nil {
		return nil, err
	}
	var defaultVault [20]byte
	defaultVault[19] = 0xfe
	vault, err := parse("VaultAddress", cfg.VaultAddress, defaultVault)
	if err != nil {
		return nil, err
	}
	beneficiary, err := parse("MarketBeneficiary", cfg.MarketBeneficiary, owner)
	if err != nil {
		return nil, err
	}

	state := storage.NewState(db)
	governance := gov.New(owner, admin)

	led := ledger.New(vault)
	led.SetState(state)

	registry := rights.NewRegistry(cfg.RecordSlotLimit)
	registry.SetState(state)

	configs := rentalconfig.NewStore(superAdmin)
	configs.SetState(state)

	custody := assets.NewBook(db, owner)
	metrics := observability.Market()

	engine := market.NewEngine(marketAddr, led, registry, custody, configs, governance)
	engine.SetState(state)
	engine.SetEmitter(nil)
	engine.SetMetrics(metrics)
	if err := engine.SetMarketFee(admin, cfg.MarketFeeBps); err != nil {
		return nil, err
	}
	if err := engine.SetMarketBeneficiary(owner, beneficiary); err != nil {
		return nil, err
	}
	if err := engine.SetMaxIndate(admin, cfg.MaxIndate); err != nil {
		return nil, err
	}

	book := market.NewOrderBook(marketAddr, led, state, custody, configs, governance)
	book.SetState(state)
	book.SetEmitter(nil)
	book.SetMetrics(metrics)
	if err := book.SetMarketFee(admin, cfg.MarketFeeBps); err != nil {
		return nil, err
	}
	if err := book.SetMarketBeneficiary(owner, beneficiary); err != nil {
		return nil, err
	}
	if err := book.SetMaxIndate(admin, cfg.MaxIndate); err != nil {
		return nil, err
	}

	return &marketNode{engine: engine, book: book}, nil
}
