package infra

import (
	"sync"
	"testing"
)

func TestMetricsSnapshot(t *testing.T) {
	m := &Metrics{}

	m.RecordBar(false)
	m.RecordBar(true)
	m.RecordOrderSubmitted()
	m.RecordFill(true, false)
	m.RecordFill(false, true)
	m.RecordTradeClosed()
	m.RecordIntentRejected()
	m.RecordRunCompleted()
	m.RecordError()

	s := m.Snapshot()
	if s.BarsProcessed != 2 || s.VoidBars != 1 {
		t.Errorf("bar counters wrong: %+v", s)
	}
	if s.OrdersFilled != 2 || s.GapFills != 1 || s.PartialFills != 1 {
		t.Errorf("fill counters wrong: %+v", s)
	}
	if s.TradesClosed != 1 || s.IntentsRejected != 1 || s.RunsCompleted != 1 || s.ErrorsTotal != 1 {
		t.Errorf("counters wrong: %+v", s)
	}

	m.Reset()
	if s := m.Snapshot(); s.BarsProcessed != 0 || s.OrdersFilled != 0 {
		t.Errorf("reset incomplete: %+v", s)
	}
}

func TestMetricsConcurrent(t *testing.T) {
	m := &Metrics{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.RecordBar(false)
				m.RecordFill(false, false)
			}
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	if s.BarsProcessed != 8000 || s.OrdersFilled != 8000 {
		t.Errorf("lost updates under concurrency: %+v", s)
	}
}
