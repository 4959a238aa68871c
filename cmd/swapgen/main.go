// Swap generator service.
// Runs the buy and sell loops behind an HTTP control API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gateway-fm/swapgen/internal/account"
	"github.com/gateway-fm/swapgen/internal/config"
	"github.com/gateway-fm/swapgen/internal/delivery"
	"github.com/gateway-fm/swapgen/internal/metrics"
	"github.com/gateway-fm/swapgen/internal/pattern"
	"github.com/gateway-fm/swapgen/internal/pipeline"
	"github.com/gateway-fm/swapgen/internal/pricemon"
	"github.com/gateway-fm/swapgen/internal/relay"
	"github.com/gateway-fm/swapgen/internal/rpc"
	"github.com/gateway-fm/swapgen/internal/storage"
	"github.com/gateway-fm/swapgen/internal/swap"
	"github.com/gateway-fm/swapgen/internal/trader"
	"github.com/gateway-fm/swapgen/internal/transport"
	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("swapgen failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(levelName, file string) *slog.Logger {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if file != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	mint, err := cfg.Mint()
	if err != nil {
		return err
	}

	keys, err := account.LoadDir(cfg.WalletDir, logger)
	if err != nil {
		return err
	}
	pool, err := account.NewPoolFromKeys(keys, account.PoolConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("wallet pool: %w", err)
	}
	logger.Info("loaded wallets", "count", pool.Len(), "dir", cfg.WalletDir)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := metrics.NewPrometheusMetrics(reg)
	latency := metrics.NewStrategyLatency()

	var client rpc.Client
	if cfg.Paper {
		client = rpc.NewPaperClient(rpc.PaperConfig{Latency: 50 * time.Millisecond, Logger: logger})
		logger.Warn("paper mode: transactions are signed but never broadcast")
	} else {
		rpcCfg := rpc.DefaultClientConfig(cfg.RPCURL)
		rpcCfg.Logger = logger
		sc := rpc.NewSolanaClient(rpcCfg)
		defer sc.Close()
		client = sc
	}

	delivCfg := delivery.Config{
		RPC:         client,
		TipLamports: cfg.RelayTipLamports,
		Metrics:     promMetrics,
		Latency:     latency,
		Logger:      logger,
	}
	if cfg.RelayURL != "" {
		tip, err := cfg.TipAccount()
		if err != nil {
			return err
		}
		delivCfg.TipAccount = tip
		delivCfg.Relay = relay.NewClient(relay.Config{
			URL:               cfg.RelayURL,
			APIKey:            cfg.RelayAPIKey,
			RequestsPerSecond: cfg.RelayRPS,
			Logger:            logger,
		})
	}
	deliverer := delivery.New(delivCfg)

	pipe := pipeline.New(pipeline.Config{
		Builder:   swap.NewPaperBuilder(swap.PaperConfig{Logger: logger}),
		Deliverer: deliverer,
		Logger:    logger,
	})

	monitor := pricemon.New(pricemon.Config{
		Threshold: cfg.PriceRiseThreshold,
		Logger:    logger,
	})

	var (
		journal  *storage.SQLiteJournal
		sessions trader.SessionStore
		history  transport.JournalAPI
	)
	if cfg.DatabasePath != "" {
		journal, err = storage.NewSQLiteJournal(cfg.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer journal.Close()
		sessions, history = journal, journal
		logger.Info("initialized journal", "path", cfg.DatabasePath)
	}

	tr, err := trader.New(trader.Config{
		Trading:  cfg.Trading,
		Mint:     mint,
		Pool:     pool,
		Monitor:  monitor,
		Executor: pipe,
		Pacers:   pattern.NewRegistry(),
		PacerConfig: pattern.Config{
			ActiveDuration: cfg.ActiveDuration(),
			SlowDuration:   cfg.SlowDuration(),
			Logger:         logger,
		},
		Sessions:   sessions,
		BypassHold: cfg.BypassHold,
		Metrics:    promMetrics,
		Latency:    latency,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	recorderDone := make(chan struct{})
	if journal != nil {
		recCtx, cancelRec := context.WithCancel(context.Background())
		defer cancelRec()
		rec := storage.NewRecorder(journal, tr, logger)
		go func() {
			defer close(recorderDone)
			if err := rec.Run(recCtx); err != nil {
				logger.Error("trade recorder stopped", "error", err)
			}
		}()
		// Cancelled after the trader has finished so the last events land.
		defer func() {
			cancelRec()
			<-recorderDone
		}()
	}

	api := transport.NewServer(transport.ServerConfig{
		Trader:             tr,
		Wallets:            pool,
		Journal:            history,
		Health:             client,
		Gatherer:           reg,
		BaseContext:        ctx,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             logger,
	})
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if cfg.AutoStart {
		if err := tr.Start(ctx, ptypes.StartRequest{}); err != nil {
			return fmt.Errorf("autostart: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-serveErr:
		if err != nil {
			tr.Stop()
			tr.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	tr.Stop()
	tr.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	logger.Info("stopped", "status", tr.Status().Status)
	return nil
}
