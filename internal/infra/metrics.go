package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without touching the hotpath's
// determinism. Uses atomic operations for thread-safety across parallel runs.
type Metrics struct {
	// Counters
	barsProcessed   atomic.Uint64
	voidBars        atomic.Uint64
	ordersSubmitted atomic.Uint64
	ordersFilled    atomic.Uint64
	gapFills        atomic.Uint64
	partialFills    atomic.Uint64
	tradesClosed    atomic.Uint64
	intentsRejected atomic.Uint64
	runsCompleted   atomic.Uint64
	errorsTotal     atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordBar records one processed bar, void or not.
func (m *Metrics) RecordBar(void bool) {
	m.barsProcessed.Add(1)
	if void {
		m.voidBars.Add(1)
	}
}

// RecordOrderSubmitted records an order entering the ledger.
func (m *Metrics) RecordOrderSubmitted() {
	m.ordersSubmitted.Add(1)
}

// RecordFill records a fill, flagging gap fills and liquidity shortfalls.
func (m *Metrics) RecordFill(gapped, partial bool) {
	m.ordersFilled.Add(1)
	if gapped {
		m.gapFills.Add(1)
	}
	if partial {
		m.partialFills.Add(1)
	}
}

// RecordTradeClosed records a closed lot.
func (m *Metrics) RecordTradeClosed() {
	m.tradesClosed.Add(1)
}

// RecordIntentRejected records a blocked intent.
func (m *Metrics) RecordIntentRejected() {
	m.intentsRejected.Add(1)
}

// RecordRunCompleted records a finished backtest run.
func (m *Metrics) RecordRunCompleted() {
	m.runsCompleted.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	BarsProcessed   uint64
	VoidBars        uint64
	OrdersSubmitted uint64
	OrdersFilled    uint64
	GapFills        uint64
	PartialFills    uint64
	TradesClosed    uint64
	IntentsRejected uint64
	RunsCompleted   uint64
	ErrorsTotal     uint64
	Timestamp       time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		BarsProcessed:   m.barsProcessed.Load(),
		VoidBars:        m.voidBars.Load(),
		OrdersSubmitted: m.ordersSubmitted.Load(),
		OrdersFilled:    m.ordersFilled.Load(),
		GapFills:        m.gapFills.Load(),
		PartialFills:    m.partialFills.Load(),
		TradesClosed:    m.tradesClosed.Load(),
		IntentsRejected: m.intentsRejected.Load(),
		RunsCompleted:   m.runsCompleted.Load(),
		ErrorsTotal:     m.errorsTotal.Load(),
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.barsProcessed.Store(0)
	m.voidBars.Store(0)
	m.ordersSubmitted.Store(0)
	m.ordersFilled.Store(0)
	m.gapFills.Store(0)
	m.partialFills.Store(0)
	m.tradesClosed.Store(0)
	m.intentsRejected.Store(0)
	m.runsCompleted.Store(0)
	m.errorsTotal.Store(0)
}
