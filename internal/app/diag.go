package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"barsim/internal/infra"
	"barsim/internal/infra/storage"
)

var promOnce sync.Once

// registerPromMetrics bridges the internal counters into the Prometheus
// registry. GaugeFunc reads the atomic snapshot on every scrape, so there
// is no copy loop to keep in sync.
func registerPromMetrics() {
	promOnce.Do(func() {
		gauge := func(name, help string, read func(infra.MetricsSnapshot) uint64) {
			promauto.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "barsim",
				Name:      name,
				Help:      help,
			}, func() float64 {
				return float64(read(infra.GlobalMetrics.Snapshot()))
			})
		}
		gauge("bars_processed_total", "Bars processed across all runs", func(s infra.MetricsSnapshot) uint64 { return s.BarsProcessed })
		gauge("void_bars_total", "Void bars skipped", func(s infra.MetricsSnapshot) uint64 { return s.VoidBars })
		gauge("orders_submitted_total", "Orders accepted into ledgers", func(s infra.MetricsSnapshot) uint64 { return s.OrdersSubmitted })
		gauge("orders_filled_total", "Orders filled", func(s infra.MetricsSnapshot) uint64 { return s.OrdersFilled })
		gauge("gap_fills_total", "Fills executed under the gap rule", func(s infra.MetricsSnapshot) uint64 { return s.GapFills })
		gauge("partial_fills_total", "Fills capped by the liquidity budget", func(s infra.MetricsSnapshot) uint64 { return s.PartialFills })
		gauge("trades_closed_total", "Closed trade lots", func(s infra.MetricsSnapshot) uint64 { return s.TradesClosed })
		gauge("intents_rejected_total", "Strategy intents rejected", func(s infra.MetricsSnapshot) uint64 { return s.IntentsRejected })
		gauge("runs_completed_total", "Completed backtest runs", func(s infra.MetricsSnapshot) uint64 { return s.RunsCompleted })
		gauge("errors_total", "Errors observed", func(s infra.MetricsSnapshot) uint64 { return s.ErrorsTotal })
	})
}

// DiagServer serves health, results and Prometheus metrics for operators.
// It is read-only; results are whatever storage holds at request time.
type DiagServer struct {
	store  *storage.Storage
	srv    *http.Server
	stream func() bool // feed connectivity probe, nil outside streaming mode
}

// SetStreamProbe wires a feed connectivity check into /healthz.
func (d *DiagServer) SetStreamProbe(probe func() bool) { d.stream = probe }

// NewDiagServer builds the diagnostics HTTP server on addr.
func NewDiagServer(addr string, store *storage.Storage) *DiagServer {
	d := &DiagServer{store: store}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", d.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/runs", d.handleRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/fills", d.handleFills).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/trades", d.handleTrades).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/equity", d.handleEquity).Methods(http.MethodGet)

	registerPromMetrics()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	d.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return d
}

// Start serves in the background until Stop.
func (d *DiagServer) Start() {
	go func() {
		slog.Info("diagnostics server started", slog.String("addr", d.srv.Addr))
		if err := d.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("diagnostics server failed", slog.Any("error", err))
		}
	}()
}

// Stop shuts the server down gracefully.
func (d *DiagServer) Stop(ctx context.Context) error {
	return d.srv.Shutdown(ctx)
}

func (d *DiagServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if d.stream != nil {
		resp["stream_connected"] = d.stream()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *DiagServer) handleRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := d.store.ListRuns()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (d *DiagServer) handleFills(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	fills, err := d.store.FillsForRun(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, fills)
}

func (d *DiagServer) handleTrades(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	trades, err := d.store.TradesForRun(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (d *DiagServer) handleEquity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	points, err := d.store.EquityForRun(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", slog.Any("error", err))
	}
}
