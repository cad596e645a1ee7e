package infra

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the simulator. Decimal-valued fields are
// carried as strings in yaml and parsed during Validate.
type Config struct {
	Run struct {
		ID          string `yaml:"id"`
		Symbol      string `yaml:"symbol"`
		InitialCash string `yaml:"initial_cash"`
		Iterations  int    `yaml:"iterations"`
		Workers     int    `yaml:"workers"`
	} `yaml:"run"`

	Data struct {
		CSVPath string `yaml:"csv_path"`
		WSURL   string `yaml:"ws_url"`
	} `yaml:"data"`

	Instrument struct {
		TickSize string `yaml:"tick_size"`
		LotSize  string `yaml:"lot_size"`
		Rounding string `yaml:"rounding"`
	} `yaml:"instrument"`

	Simulator struct {
		PathPolicy       string `yaml:"path_policy"`
		ParticipationCap string `yaml:"participation_cap"`
		RemainderPolicy  string `yaml:"remainder_policy"`
		ImprovementBps   string `yaml:"limit_improvement_bps"`
		Slippage         struct {
			Model       string `yaml:"model"` // fixed | vol_scaled | none
			Amount      string `yaml:"amount"`
			Bps         string `yaml:"bps"`
			ATRFraction string `yaml:"atr_fraction"`
			ImpactCoeff string `yaml:"impact_coeff"`
			JitterBps   string `yaml:"jitter_bps"`
		} `yaml:"slippage"`
		Commission struct {
			PerFill string `yaml:"per_fill"`
			Bps     string `yaml:"bps"`
		} `yaml:"commission"`
	} `yaml:"simulator"`

	Maintainer struct {
		TrailATRMult string `yaml:"trail_atr_mult"`
		ATRPeriod    int    `yaml:"atr_period"`
		MaxHoldBars  int    `yaml:"max_hold_bars"`
	} `yaml:"maintainer"`

	Strategy struct {
		ShortPeriod int    `yaml:"short_period"`
		LongPeriod  int    `yaml:"long_period"`
		Qty         string `yaml:"qty"`
		StopPct     string `yaml:"stop_pct"`
		TargetPct   string `yaml:"target_pct"`
	} `yaml:"strategy"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Diagnostics struct {
		Addr string `yaml:"addr"`
	} `yaml:"diagnostics"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and validates the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// overrideWithEnv lets the environment override file settings.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("BARSIM_CSV_PATH"); v != "" {
		cfg.Data.CSVPath = v
	}
	if v := os.Getenv("BARSIM_WS_URL"); v != "" {
		cfg.Data.WSURL = v
	}
	if v := os.Getenv("BARSIM_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("BARSIM_DIAG_ADDR"); v != "" {
		cfg.Diagnostics.Addr = v
	}
}

// Dec parses a decimal setting that Validate already checked. Empty means zero.
func Dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(s)
}

func checkDec(field, s string) error {
	if s == "" {
		return nil
	}
	if _, err := decimal.NewFromString(s); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Run.Symbol == "" {
		return fmt.Errorf("run.symbol is required")
	}
	if c.Run.InitialCash == "" {
		return fmt.Errorf("run.initial_cash is required")
	}
	if c.Data.CSVPath == "" && c.Data.WSURL == "" {
		return fmt.Errorf("either data.csv_path or data.ws_url is required")
	}
	if c.Run.Iterations < 0 || c.Run.Workers < 0 {
		return fmt.Errorf("run.iterations and run.workers must not be negative")
	}
	if c.Strategy.LongPeriod > 0 && c.Strategy.ShortPeriod >= c.Strategy.LongPeriod {
		return fmt.Errorf("strategy.short_period must be less than strategy.long_period")
	}

	decFields := map[string]string{
		"run.initial_cash":                      c.Run.InitialCash,
		"instrument.tick_size":                  c.Instrument.TickSize,
		"instrument.lot_size":                   c.Instrument.LotSize,
		"simulator.participation_cap":           c.Simulator.ParticipationCap,
		"simulator.limit_improvement_bps":       c.Simulator.ImprovementBps,
		"simulator.slippage.amount":             c.Simulator.Slippage.Amount,
		"simulator.slippage.bps":                c.Simulator.Slippage.Bps,
		"simulator.slippage.atr_fraction":       c.Simulator.Slippage.ATRFraction,
		"simulator.slippage.impact_coeff":       c.Simulator.Slippage.ImpactCoeff,
		"simulator.slippage.jitter_bps":         c.Simulator.Slippage.JitterBps,
		"simulator.commission.per_fill":         c.Simulator.Commission.PerFill,
		"simulator.commission.bps":              c.Simulator.Commission.Bps,
		"maintainer.trail_atr_mult":             c.Maintainer.TrailATRMult,
		"strategy.qty":                          c.Strategy.Qty,
		"strategy.stop_pct":                     c.Strategy.StopPct,
		"strategy.target_pct":                   c.Strategy.TargetPct,
	}
	for field, v := range decFields {
		if err := checkDec(field, v); err != nil {
			return err
		}
	}

	if cap := c.Simulator.ParticipationCap; cap != "" {
		d := Dec(cap)
		if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("simulator.participation_cap must be within [0, 1]")
		}
	}
	return nil
}
