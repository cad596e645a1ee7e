package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"barsim/internal/app"
	"barsim/internal/domain"
	"barsim/internal/engine"
	"barsim/internal/feed"
	"barsim/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Diagnostics Server
	diag := app.NewDiagServer(cfg.Diagnostics.Addr, bootstrap.Storage)
	diag.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := diag.Stop(shutdownCtx); err != nil {
			slog.Warn("diagnostics shutdown failed", slog.Any("error", err))
		}
	}()

	var err error
	switch {
	case cfg.Data.CSVPath != "":
		err = runSweep(ctx, bootstrap)
	case cfg.Data.WSURL != "":
		err = runStreaming(ctx, bootstrap, diag)
	default:
		slog.Error("no data source configured: set data.csv_path or data.ws_url")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}

	snap := infra.GlobalMetrics.Snapshot()
	slog.Info("done",
		slog.Uint64("bars", snap.BarsProcessed),
		slog.Uint64("fills", snap.OrdersFilled),
		slog.Uint64("trades", snap.TradesClosed),
		slog.Uint64("runs", snap.RunsCompleted),
	)
}

// runSweep replays a CSV history across the configured iteration count.
func runSweep(ctx context.Context, bootstrap *app.Bootstrap) error {
	cfg := bootstrap.Config

	bars, err := feed.LoadCSV(cfg.Data.CSVPath, cfg.Run.Symbol)
	if err != nil {
		return err
	}
	slog.Info("history loaded",
		slog.String("path", cfg.Data.CSVPath),
		slog.Int("bars", len(bars)),
	)

	runs, err := bootstrap.BuildRuns(bars)
	if err != nil {
		return err
	}

	started := time.Now()
	results, err := engine.RunAll(ctx, runs, cfg.Run.Workers)
	if err != nil {
		return err
	}
	slog.Info("sweep finished",
		slog.Int("runs", len(results)),
		slog.Duration("elapsed", time.Since(started)),
	)

	return bootstrap.PersistResults(results)
}

// runStreaming drives a single engine from live closed candles until the
// process is signalled, then persists whatever accumulated.
func runStreaming(ctx context.Context, bootstrap *app.Bootstrap, diag *app.DiagServer) error {
	cfg := bootstrap.Config

	ec, err := bootstrap.EngineConfig()
	if err != nil {
		return err
	}
	ec.RunID = cfg.Run.ID
	ec.Seed = engine.SeedFor(cfg.Run.ID, cfg.Run.Symbol, 0)

	eng, err := engine.New(ec)
	if err != nil {
		return err
	}

	barChan := make(chan domain.Bar, 256)
	worker := feed.NewWSWorker(cfg.Data.WSURL, []string{cfg.Run.Symbol}, barChan)
	if err := worker.Connect(ctx); err != nil {
		return err
	}
	defer worker.Disconnect()
	diag.SetStreamProbe(worker.IsConnected)
	slog.Info("streaming started", slog.String("url", cfg.Data.WSURL))

	var result *engine.Result
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case bar := <-barChan:
			if bar.Symbol != cfg.Run.Symbol {
				continue
			}
			if err := eng.ProcessBar(bar); err != nil {
				return err
			}
		}
	}

	result = eng.Snapshot()
	infra.GlobalMetrics.RecordRunCompleted()
	return bootstrap.PersistResults([]*engine.Result{result})
}
