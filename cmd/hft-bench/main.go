// hft-bench drives the matching engine with synthetic order flow and
// reports throughput and pipeline latency. Configuration comes from the
// environment (HFT_* variables, .env supported); flags override the
// workload knobs for quick runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/luxfi/log"
	metrics "github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/hft/pkg/config"
	"github.com/luxfi/hft/pkg/events"
	"github.com/luxfi/hft/pkg/fixed"
	"github.com/luxfi/hft/pkg/latency"
	"github.com/luxfi/hft/pkg/lob"
	"github.com/luxfi/hft/pkg/risk"
)

func main() {
	orders := flag.Int("orders", 0, "orders to submit (0 = HFT_BENCH_ORDERS)")
	workers := flag.Int("workers", 0, "submitter goroutines (0 = HFT_BENCH_WORKERS, then NumCPU)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *orders > 0 {
		cfg.BenchOrders = *orders
	}
	if *workers > 0 {
		cfg.BenchWorkers = *workers
	}
	if cfg.BenchWorkers <= 0 {
		cfg.BenchWorkers = runtime.NumCPU()
	}

	logger := log.NewLogger(cfg.Name)

	// Exported operational metrics; the prometheus-backed counters are
	// write-only, so the reporting loop keeps its own atomics.
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry("hft", reg)
	orderCounter := m.NewCounter("orders_processed_total", "Orders submitted to the engine.")
	tradeCounter := m.NewCounter("trades_matched_total", "Trades produced by matching.")
	rejectCounter := m.NewCounter("orders_rejected_total", "Orders rejected by validation or risk.")
	submitHist := m.NewHistogram("submit_seconds", "SubmitOrder wall time.",
		prometheus.ExponentialBuckets(1e-6, 2, 20))

	var ordersSubmitted, ordersRejected, tradesSeen uint64

	var profiler *latency.Recorder
	if cfg.ProfilingEnabled {
		profiler = latency.NewRecorder()
		logger.Info("latency profiling enabled", "clock_overhead_ns", profiler.Overhead())
	}

	var consultant *risk.Consultant
	if cfg.RiskEnabled {
		limits := risk.NewLimits()
		if limits.MaxOrderSize, err = fixed.Parse(cfg.MaxOrderSize); err != nil {
			logger.Error("invalid HFT_MAX_ORDER_SIZE", "value", cfg.MaxOrderSize, "error", err)
			os.Exit(1)
		}
		if limits.MaxNotional, err = fixed.Parse(cfg.MaxNotional); err != nil {
			logger.Error("invalid HFT_MAX_NOTIONAL", "value", cfg.MaxNotional, "error", err)
			os.Exit(1)
		}
		consultant = risk.NewConsultant(limits, cfg.RiskBudget,
			risk.ParseTimeoutPolicy(cfg.RiskTimeoutPolicy), logger)
	}

	engine := lob.NewEngine(lob.EngineConfig{
		MaxSymbols:  cfg.MaxSymbols,
		SelfTrade:   lob.ParseSelfTradePolicy(cfg.SelfTradePolicy),
		EventBuffer: cfg.EventBufferSize,
		EventPolicy: events.ParsePolicy(cfg.EventPolicy),
		EventBudget: cfg.EventBlockBudget,
	}, logger, consultant, profiler)

	for _, sym := range cfg.Symbols {
		if _, err := engine.AddSymbol(sym); err != nil {
			logger.Error("failed to add symbol", "symbol", sym, "error", err)
			os.Exit(1)
		}
	}

	if cfg.ProfilingEnabled {
		if err := reg.Register(latency.NewCollector(profiler, "hft", engine.DroppedEvents)); err != nil {
			logger.Error("failed to register latency collector", "error", err)
			os.Exit(1)
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.HandlerFor(reg))
			logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Drain the event stream; the bench only counts trades, a real
	// deployment would fan these out to market data and persistence.
	go func() {
		for ev := range engine.Events() {
			if ev.Type == lob.EventTradeExecuted {
				tradeCounter.Inc()
				atomic.AddUint64(&tradesSeen, 1)
			}
		}
	}()

	go func() {
		t := time.NewTicker(cfg.BenchReport)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				kv := []interface{}{
					"orders", atomic.LoadUint64(&ordersSubmitted),
					"trades", atomic.LoadUint64(&tradesSeen),
					"rejected", atomic.LoadUint64(&ordersRejected),
					"dropped_events", engine.DroppedEvents(),
				}
				if profiler != nil {
					total := profiler.Total()
					kv = append(kv,
						"p50_ns", total.Percentile(0.5),
						"p99_ns", total.Percentile(0.99))
				}
				logger.Info("progress", kv...)
			}
		}
	}()

	logger.Info("starting benchmark",
		"orders", cfg.BenchOrders,
		"workers", cfg.BenchWorkers,
		"symbols", len(cfg.Symbols),
		"self_trade_policy", cfg.SelfTradePolicy,
		"risk_enabled", cfg.RiskEnabled)

	perWorker := cfg.BenchOrders / cfg.BenchWorkers
	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < cfg.BenchWorkers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(id) + 1))
			owner := fmt.Sprintf("trader-%d", id)
			for n := 0; n < perWorker; n++ {
				select {
				case <-ctx.Done():
					return
				default:
				}
				side := lob.Buy
				if rng.Intn(2) == 1 {
					side = lob.Sell
				}
				// Prices walk a band around 50000 so flow both rests
				// and crosses.
				price := fixed.FromRaw((50_000 + int64(rng.Intn(201)) - 100) * fixed.Scale)
				qty := fixed.FromRaw(int64(rng.Intn(100)+1) * fixed.Scale / 100)

				t0 := time.Now()
				_, err := engine.SubmitOrder(ctx, lob.OrderRequest{
					Symbol:      cfg.Symbols[rng.Intn(len(cfg.Symbols))],
					Side:        side,
					Price:       price,
					Quantity:    qty,
					Owner:       owner,
					TimeInForce: lob.GTC,
				})
				submitHist.Observe(time.Since(t0).Seconds())
				orderCounter.Inc()
				atomic.AddUint64(&ordersSubmitted, 1)
				if err != nil {
					rejectCounter.Inc()
					atomic.AddUint64(&ordersRejected, 1)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	submitted := atomic.LoadUint64(&ordersSubmitted)
	logger.Info("benchmark complete",
		"orders", submitted,
		"trades", engine.Trades(),
		"rejected", atomic.LoadUint64(&ordersRejected),
		"dropped_events", engine.DroppedEvents(),
		"elapsed", elapsed.String(),
		"orders_per_sec", float64(submitted)/elapsed.Seconds())

	if profiler != nil {
		total := profiler.Total()
		logger.Info("pipeline latency (ns, bucket upper bounds)",
			"p50", total.Percentile(0.5),
			"p99", total.Percentile(0.99),
			"max", total.Max(),
			"samples", total.Count())
		for _, cp := range []latency.Checkpoint{
			latency.Validated, latency.RiskChecked, latency.Matched,
			latency.BookUpdated, latency.Published,
		} {
			h := profiler.Stage(cp)
			if h.Count() == 0 {
				continue
			}
			logger.Info("stage latency",
				"stage", cp.String(),
				"p50_ns", h.Percentile(0.5),
				"p99_ns", h.Percentile(0.99),
				"mean_ns", h.Mean())
		}
	}
}
