package app

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"barsim/internal/domain"
	"barsim/internal/engine"
	"barsim/internal/infra"
	"barsim/internal/infra/storage"
	"barsim/internal/maintain"
	"barsim/internal/sim"
	"barsim/internal/strategy"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Digest  string
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB).
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("database initialized", slog.String("path", cfg.Storage.Path))

	// 4. Config digest, stored with each run so results stay attributable.
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(raw)
	b.Digest = hex.EncodeToString(sum[:])

	return nil
}

// EngineConfig assembles a per-run engine configuration from the loaded
// file. Each call builds a fresh strategy instance; strategies keep state
// and must never be shared between parallel runs.
func (b *Bootstrap) EngineConfig() (engine.Config, error) {
	cfg := b.Config

	rounding, err := domain.ParseRoundingPolicy(cfg.Instrument.Rounding)
	if err != nil {
		return engine.Config{}, err
	}
	path, err := sim.ParsePathPolicy(cfg.Simulator.PathPolicy)
	if err != nil {
		return engine.Config{}, err
	}
	remainder, err := sim.ParseRemainderPolicy(cfg.Simulator.RemainderPolicy)
	if err != nil {
		return engine.Config{}, err
	}
	slip, err := sim.BuildSlippage(
		cfg.Simulator.Slippage.Model,
		infra.Dec(cfg.Simulator.Slippage.Amount),
		infra.Dec(cfg.Simulator.Slippage.Bps),
		infra.Dec(cfg.Simulator.Slippage.ATRFraction),
		infra.Dec(cfg.Simulator.Slippage.ImpactCoeff),
	)
	if err != nil {
		return engine.Config{}, err
	}

	pol := strategy.NewSMACrossPolicy(
		cfg.Run.Symbol,
		cfg.Strategy.ShortPeriod,
		cfg.Strategy.LongPeriod,
		infra.Dec(cfg.Strategy.Qty),
		infra.Dec(cfg.Strategy.StopPct),
		infra.Dec(cfg.Strategy.TargetPct),
	)

	return engine.Config{
		Symbol:      cfg.Run.Symbol,
		InitialCash: infra.Dec(cfg.Run.InitialCash),
		Instrument: domain.Instrument{
			Symbol:   cfg.Run.Symbol,
			TickSize: infra.Dec(cfg.Instrument.TickSize),
			LotSize:  infra.Dec(cfg.Instrument.LotSize),
		},
		Rounding: rounding,
		Sim: sim.Config{
			Path:             path,
			Slippage:         slip,
			Commission:       sim.CommissionModel{PerFill: infra.Dec(cfg.Simulator.Commission.PerFill), Bps: infra.Dec(cfg.Simulator.Commission.Bps)},
			ParticipationCap: infra.Dec(cfg.Simulator.ParticipationCap),
			Remainder:        remainder,
			ImprovementBps:   infra.Dec(cfg.Simulator.ImprovementBps),
		},
		Maintainer: maintain.Config{
			TrailMult:   infra.Dec(cfg.Maintainer.TrailATRMult),
			MaxHoldBars: cfg.Maintainer.MaxHoldBars,
		},
		ATRPeriod: cfg.Maintainer.ATRPeriod,
		JitterBps: infra.Dec(cfg.Simulator.Slippage.JitterBps),
		Policy:    pol,
	}, nil
}

// BuildRuns expands the configured iteration count into sweep tasks over a
// shared, read-only bar slice.
func (b *Bootstrap) BuildRuns(bars []domain.Bar) ([]engine.Run, error) {
	cfg := b.Config
	iters := cfg.Run.Iterations
	if iters <= 0 {
		iters = 1
	}

	runs := make([]engine.Run, 0, iters)
	for i := 0; i < iters; i++ {
		ec, err := b.EngineConfig()
		if err != nil {
			return nil, err
		}
		runs = append(runs, engine.Run{
			ID:        fmt.Sprintf("%s-%03d", cfg.Run.ID, i),
			Symbol:    cfg.Run.Symbol,
			Iteration: i,
			Config:    ec,
			Bars:      bars,
		})
	}
	return runs, nil
}

// PersistResults writes every run's audit trail to storage.
func (b *Bootstrap) PersistResults(results []*engine.Result) error {
	for _, res := range results {
		if res == nil {
			continue
		}
		rec := &storage.RunRecord{
			ID:           res.RunID,
			Symbol:       res.Symbol,
			Seed:         res.Seed,
			ConfigDigest: b.Digest,
			FinalEquity:  res.FinalEquity.String(),
		}
		if err := b.Storage.SaveRun(rec, res.Fills, res.Trades, res.Equity); err != nil {
			return fmt.Errorf("persist run %s: %w", res.RunID, err)
		}
	}
	return nil
}
