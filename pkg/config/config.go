// Package config loads engine configuration from the environment, with
// an optional .env file for local runs.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the engine binary. envPrefix keeps the
// variables namespaced when the process shares an environment with
// other services.
type Config struct {
	Name     string `env:"NAME" envDefault:"hft-engine"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Symbols    []string `env:"SYMBOLS" envSeparator:"," envDefault:"BTC-USD,ETH-USD"`
	MaxSymbols int      `env:"MAX_SYMBOLS" envDefault:"256"`

	// skip or cancel-resting
	SelfTradePolicy string `env:"SELF_TRADE_POLICY" envDefault:"skip"`

	EventBufferSize int `env:"EVENT_BUFFER_SIZE" envDefault:"65536"`
	// drop-oldest or block
	EventPolicy      string        `env:"EVENT_POLICY" envDefault:"drop-oldest"`
	EventBlockBudget time.Duration `env:"EVENT_BLOCK_BUDGET" envDefault:"50us"`

	RiskEnabled bool          `env:"RISK_ENABLED" envDefault:"true"`
	RiskBudget  time.Duration `env:"RISK_BUDGET" envDefault:"100us"`
	// fail-closed or fail-open
	RiskTimeoutPolicy string `env:"RISK_TIMEOUT_POLICY" envDefault:"fail-closed"`
	MaxOrderSize      string `env:"MAX_ORDER_SIZE" envDefault:"0"`
	MaxNotional       string `env:"MAX_NOTIONAL" envDefault:"0"`

	ProfilingEnabled bool   `env:"PROFILING_ENABLED" envDefault:"true"`
	MetricsAddr      string `env:"METRICS_ADDR" envDefault:":9100"`

	// Benchmark-driver knobs.
	BenchOrders  int           `env:"BENCH_ORDERS" envDefault:"1000000"`
	BenchWorkers int           `env:"BENCH_WORKERS" envDefault:"0"` // 0 = NumCPU
	BenchReport  time.Duration `env:"BENCH_REPORT_INTERVAL" envDefault:"5s"`
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "HFT_"}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.MaxSymbols <= 0 {
		return nil, fmt.Errorf("config: MAX_SYMBOLS must be positive")
	}
	if cfg.EventBufferSize <= 0 {
		return nil, fmt.Errorf("config: EVENT_BUFFER_SIZE must be positive")
	}
	return cfg, nil
}
