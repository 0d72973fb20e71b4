/*
scheduler.go - Periodic recurring-transaction sweep

PURPOSE:
  Periodically generates the transactions of every due recurring template,
  for every owner, so balances stay current without a client asking.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each owner is swept independently; a failing template is logged and
    retried on the next tick, the others still generate
  - At most one occurrence per template per sweep, so a template far
    behind catches up one period per tick

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: false, see config)

USAGE:
  scheduler := NewRecurringScheduler(handler.Recurring)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers_planning.go: ProcessRecurring endpoint (manual sweep, reports
    the next automatic one)
  - recurring/scheduler.go: ProcessAllDue
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/finance-engine/recurring"
)

// RecurringScheduler runs the recurring sweep on a ticker.
type RecurringScheduler struct {
	Recurring     *recurring.Scheduler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	// lastRun is guarded by runMu, not mu: Stop holds mu while the
	// goroutine finishes a sweep.
	runMu   sync.Mutex
	lastRun time.Time
}

// NewRecurringScheduler creates a new scheduler.
func NewRecurringScheduler(s *recurring.Scheduler) *RecurringScheduler {
	return &RecurringScheduler{
		Recurring:     s,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *RecurringScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan bool)
	rs.wg.Add(1)

	go rs.run()

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (rs *RecurringScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *RecurringScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndProcess()

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndProcess()
		case <-rs.stop:
			return
		}
	}
}

// checkAndProcess sweeps every owner and returns the number of generated
// and failed occurrences.
func (rs *RecurringScheduler) checkAndProcess() (generated, failed int) {
	ctx := context.Background()

	rs.runMu.Lock()
	rs.lastRun = time.Now()
	rs.runMu.Unlock()

	reports, err := rs.Recurring.ProcessAllDue(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing due recurring transactions: %v", err)
		return 0, 0
	}

	for _, report := range reports {
		generated += len(report.Generated)
		failed += len(report.Failed)
	}

	if generated > 0 || failed > 0 {
		log.Printf("[Scheduler] Completed: %d generated, %d failed across %d owners", generated, failed, len(reports))
	}
	return generated, failed
}

// RunNow triggers an immediate sweep (for testing/admin).
func (rs *RecurringScheduler) RunNow() (generated, failed int) {
	return rs.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur, or the
// zero time when the scheduler is not running.
func (rs *RecurringScheduler) GetNextRunTime() time.Time {
	rs.mu.Lock()
	running := rs.ticker != nil
	rs.mu.Unlock()
	if !running {
		return time.Time{}
	}

	rs.runMu.Lock()
	defer rs.runMu.Unlock()
	if rs.lastRun.IsZero() {
		return time.Now()
	}
	return rs.lastRun.Add(rs.CheckInterval)
}
