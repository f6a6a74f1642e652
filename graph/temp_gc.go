package graph

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTempSweepInterval is used when no interval is configured.
const DefaultTempSweepInterval = 30 * time.Second

// TempGCStats describes one sweep of the temp pool.
type TempGCStats struct {
	Swept     int
	Remaining int
	Took      time.Duration
	At        time.Time
}

// TempGC reclaims temps released by finished processors. A timed sweep
// only runs while the Brain is quiescent; a tick that finds code running
// is deferred to the next one.
type TempGC struct {
	brain    *Brain
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	sweeps   atomic.Uint64
	deferred atomic.Uint64
	last     atomic.Pointer[TempGCStats]
}

// NewTempGC creates a sweeper for b. A non-positive interval selects
// DefaultTempSweepInterval.
func NewTempGC(b *Brain, interval time.Duration) *TempGC {
	if interval <= 0 {
		interval = DefaultTempSweepInterval
	}
	return &TempGC{brain: b, interval: interval}
}

// Start launches the sweep goroutine if it is not running.
func (gc *TempGC) Start() {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	gc.cancel, gc.done = cancel, make(chan struct{})
	go gc.run(ctx, gc.done)
}

// Stop ends the sweep goroutine and waits for it.
func (gc *TempGC) Stop() {
	gc.mu.Lock()
	cancel, done := gc.cancel, gc.done
	gc.cancel, gc.done = nil, nil
	gc.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (gc *TempGC) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			leave, ok := gc.brain.TryQuiesce()
			if !ok {
				gc.deferred.Add(1)
				continue
			}
			gc.sweep()
			leave()
		}
	}
}

// SweepNow waits for running code to leave the graph and sweeps. It must
// not be called while the caller holds Brain.Enter.
func (gc *TempGC) SweepNow() *TempGCStats {
	leave := gc.brain.Quiesce()
	defer leave()
	return gc.sweep()
}

// Sweeps returns how many sweeps have run.
func (gc *TempGC) Sweeps() uint64 { return gc.sweeps.Load() }

// Deferred returns how many timed sweeps were skipped because code was
// running.
func (gc *TempGC) Deferred() uint64 { return gc.deferred.Load() }

// Last returns the most recent sweep, or nil.
func (gc *TempGC) Last() *TempGCStats { return gc.last.Load() }

func (gc *TempGC) sweep() *TempGCStats {
	start := time.Now()
	pool := gc.brain.Temps()
	stats := &TempGCStats{At: start, Swept: pool.Sweep(), Remaining: pool.Count()}
	stats.Took = time.Since(start)

	gc.sweeps.Add(1)
	gc.last.Store(stats)
	if stats.Swept > 0 {
		gc.brain.log.Debugf("temp sweep reclaimed %d neurons, %d remain", stats.Swept, stats.Remaining)
	}
	return stats
}
