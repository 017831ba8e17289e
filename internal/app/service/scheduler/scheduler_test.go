package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kestrelmarket/billing/internal/app/service/billing"
	"github.com/kestrelmarket/billing/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBilling struct {
	mu        sync.Mutex
	calls     map[string]int
	expireErr error
	block     chan struct{}
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{calls: map[string]int{}}
}

func (f *fakeBilling) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeBilling) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBilling) ExpireDueSubscriptions(ctx context.Context) (int, int, error) {
	f.record("expire")
	if f.expireErr != nil {
		return 0, 0, f.expireErr
	}
	return 2, 1, nil
}

func (f *fakeBilling) SendTrialExpiryReminders(ctx context.Context) (int, error) {
	f.record("reminders")
	if f.block != nil {
		<-f.block
	}
	return 3, nil
}

func (f *fakeBilling) ProcessDuePayments(ctx context.Context) (int, error) {
	f.record("due")
	return 1, nil
}

func (f *fakeBilling) ProcessAutoRenewals(ctx context.Context) (int, error) {
	f.record("renewals")
	return 1, nil
}

func (f *fakeBilling) SuspendOverdueAccounts(ctx context.Context, overdueAfter time.Duration) (int, error) {
	f.record("overdue")
	return 0, nil
}

func (f *fakeBilling) SchedulerSnapshot(ctx context.Context) (*billing.SchedulerSnapshot, error) {
	return &billing.SchedulerSnapshot{ActiveSubscriptions: 5}, nil
}

func testRunner(b Billing) *Runner {
	cfg := &config.Config{}
	cfg.Scheduler.Interval = time.Hour
	cfg.Scheduler.OverdueAfter = 7 * 24 * time.Hour
	return NewRunner(cfg, b, zap.NewNop().Sugar())
}

func TestRunSweep_RunsAllTasks(t *testing.T) {
	b := newFakeBilling()
	r := testRunner(b)
	r.RunSweep(context.Background())

	for _, task := range []string{"expire", "reminders", "due", "renewals", "overdue"} {
		require.Equal(t, 1, b.count(task), "task %s", task)
	}
}

func TestRunSweep_TaskFailureDoesNotBlockOthers(t *testing.T) {
	b := newFakeBilling()
	b.expireErr = errors.New("db down")
	r := testRunner(b)
	r.RunSweep(context.Background())

	require.Equal(t, 1, b.count("reminders"))
	require.Equal(t, 1, b.count("due"))
	require.Equal(t, 1, b.count("renewals"))
	require.Equal(t, 1, b.count("overdue"))

	h, err := r.Health(context.Background())
	require.NoError(t, err)
	require.Len(t, h.LastErrors, 1)
	require.Contains(t, h.LastErrors[0], "db down")
}

func TestRunSweep_OverlappingSweepIsDropped(t *testing.T) {
	b := newFakeBilling()
	b.block = make(chan struct{})
	r := testRunner(b)

	done := make(chan struct{})
	go func() {
		r.RunSweep(context.Background())
		close(done)
	}()

	// Wait until the first sweep is parked inside a task, then try again.
	require.Eventually(t, func() bool { return b.count("reminders") == 1 }, time.Second, time.Millisecond)
	r.RunSweep(context.Background())
	require.Equal(t, 1, b.count("reminders"))

	close(b.block)
	<-done
	require.Equal(t, 1, b.count("expire"))
}

func TestStartStop(t *testing.T) {
	b := newFakeBilling()
	r := testRunner(b)

	r.Start()
	r.Start() // second call is a no-op

	// The first sweep fires immediately, not after the first interval.
	require.Eventually(t, func() bool { return b.count("expire") >= 1 }, time.Second, time.Millisecond)

	r.Stop()
	r.Stop() // idempotent

	after := b.count("expire")
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, after, b.count("expire"))
}

func TestHealth(t *testing.T) {
	b := newFakeBilling()
	r := testRunner(b)

	h, err := r.Health(context.Background())
	require.NoError(t, err)
	require.False(t, h.Running)
	require.Nil(t, h.LastSweepAt)
	require.EqualValues(t, 5, h.Subscriptions.ActiveSubscriptions)

	r.RunSweep(context.Background())
	h, err = r.Health(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h.LastSweepAt)
	require.Empty(t, h.LastErrors)
}
