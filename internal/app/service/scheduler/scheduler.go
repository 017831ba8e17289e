package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelmarket/billing/internal/app/service/billing"
	"github.com/kestrelmarket/billing/pkg/config"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Billing is the slice of the billing service the sweep drives.
type Billing interface {
	ExpireDueSubscriptions(ctx context.Context) (expiredTrials, expiredActive int, err error)
	SendTrialExpiryReminders(ctx context.Context) (int, error)
	ProcessDuePayments(ctx context.Context) (int, error)
	ProcessAutoRenewals(ctx context.Context) (int, error)
	SuspendOverdueAccounts(ctx context.Context, overdueAfter time.Duration) (int, error)
	SchedulerSnapshot(ctx context.Context) (*billing.SchedulerSnapshot, error)
}

// Runner drives the periodic billing sweep. Each instance owns its own
// state, so tests can construct and tear down runners independently.
// Sweeps never overlap: a tick that arrives while one is in flight is
// dropped, not queued.
type Runner struct {
	billing      Billing
	log          *zap.SugaredLogger
	interval     time.Duration
	overdueAfter time.Duration

	mu       sync.Mutex
	started  bool
	sweeping bool
	cancel   context.CancelFunc
	done     chan struct{}

	lastSweepAt  time.Time
	lastDuration time.Duration
	lastErrors   []string
}

func NewRunner(cfg *config.Config, b Billing, log *zap.SugaredLogger) *Runner {
	return &Runner{
		billing:      b,
		log:          log,
		interval:     cfg.Scheduler.Interval,
		overdueAfter: cfg.Scheduler.OverdueAfter,
	}
}

// Start launches the sweep loop. The first sweep runs immediately rather
// than waiting a full interval. Calling Start on a started runner is a
// no-op.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.started = true
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx)
	r.log.Infow("billing scheduler started", "interval", r.interval)
}

// Stop cancels the loop and waits for any in-flight sweep to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	r.log.Infow("billing scheduler stopped")
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunSweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunSweep(ctx)
		}
	}
}

type taskResult struct {
	name  string
	count int
	err   error
}

// RunSweep executes one full pass: expiry, reminders, due payments,
// renewal catch-up and overdue suspension run concurrently, and a failure
// in one task never blocks the others.
func (r *Runner) RunSweep(ctx context.Context) {
	r.mu.Lock()
	if r.sweeping {
		r.mu.Unlock()
		r.log.Warnw("sweep already in progress, skipping")
		return
	}
	r.sweeping = true
	r.mu.Unlock()

	start := time.Now()
	results := make([]taskResult, 5)

	var wg sync.WaitGroup
	run := func(i int, name string, f func(context.Context) (int, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := f(ctx)
			results[i] = taskResult{name: name, count: n, err: err}
		}()
	}

	run(0, "expire_subscriptions", func(ctx context.Context) (int, error) {
		trials, actives, err := r.billing.ExpireDueSubscriptions(ctx)
		return trials + actives, err
	})
	run(1, "trial_reminders", r.billing.SendTrialExpiryReminders)
	run(2, "due_payments", r.billing.ProcessDuePayments)
	run(3, "auto_renewals", r.billing.ProcessAutoRenewals)
	run(4, "overdue_suspensions", func(ctx context.Context) (int, error) {
		return r.billing.SuspendOverdueAccounts(ctx, r.overdueAfter)
	})
	wg.Wait()

	elapsed := time.Since(start)
	for _, res := range results {
		if res.err != nil {
			r.log.Errorw("sweep task failed", "task", res.name, "err", res.err)
			continue
		}
		r.log.Infow("sweep task finished", "task", res.name, "processed", res.count)
	}

	r.mu.Lock()
	r.sweeping = false
	r.lastSweepAt = start
	r.lastDuration = elapsed
	r.lastErrors = lo.FilterMap(results, func(res taskResult, _ int) (string, bool) {
		if res.err == nil {
			return "", false
		}
		return res.name + ": " + res.err.Error(), true
	})
	r.mu.Unlock()

	r.log.Infow("sweep finished", "elapsed", elapsed)
}

// Health reports scheduler liveness plus lifecycle counts.
type Health struct {
	Running       bool                       `json:"running"`
	Interval      string                     `json:"interval"`
	LastSweepAt   *time.Time                 `json:"last_sweep_at,omitempty"`
	LastDuration  string                     `json:"last_duration,omitempty"`
	LastErrors    []string                   `json:"last_errors,omitempty"`
	Subscriptions *billing.SchedulerSnapshot `json:"subscriptions,omitempty"`
}

func (r *Runner) Health(ctx context.Context) (*Health, error) {
	r.mu.Lock()
	h := &Health{
		Running:    r.started,
		Interval:   r.interval.String(),
		LastErrors: r.lastErrors,
	}
	if !r.lastSweepAt.IsZero() {
		at := r.lastSweepAt
		h.LastSweepAt = &at
		h.LastDuration = r.lastDuration.String()
	}
	r.mu.Unlock()

	snap, err := r.billing.SchedulerSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	h.Subscriptions = snap
	return h, nil
}
