package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"barsim/internal/domain"
)

// Run is one independent backtest: its own configuration, dataset slice and
// private ledgers. Runs share no mutable state, so a sweep is
// embarrassingly parallel.
type Run struct {
	ID        string
	Symbol    string
	Iteration int
	Config    Config
	Bars      []domain.Bar
}

// SeedFor derives a task seed purely from the run identity. It is
// independent of scheduling order, so the same configuration produces
// bit-identical fills no matter how many workers process the sweep.
func SeedFor(runID, symbol string, iteration int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", runID, symbol, iteration)
	return h.Sum64()
}

// RunAll executes runs across the given number of workers. Results come
// back indexed by input position regardless of completion order. The first
// error cancels the remaining work.
func RunAll(ctx context.Context, runs []Run, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(runs) {
		workers = len(runs)
	}

	results := make([]*Result, len(runs))
	errs := make([]error, len(runs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = execute(runs[i])
			}
		}()
	}

feed:
	for i := range runs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", runs[i].ID, err)
		}
	}
	return results, nil
}

func execute(r Run) (*Result, error) {
	cfg := r.Config
	cfg.RunID = r.ID
	cfg.Symbol = r.Symbol
	cfg.Seed = SeedFor(r.ID, r.Symbol, r.Iteration)

	eng, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return eng.Run(r.Bars)
}
