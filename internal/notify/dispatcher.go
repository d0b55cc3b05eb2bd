package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franchiseos/leadhub/internal/config"
	"github.com/franchiseos/leadhub/internal/leads"
)

var (
	// ErrQueueFull is returned when a notification was dropped because every
	// queue slot was taken.
	ErrQueueFull = errors.New("notification queue is full")
	// ErrDispatcherStopped is returned for notifications enqueued after Stop.
	ErrDispatcherStopped = errors.New("notification dispatcher stopped")
)

type job struct {
	assigneeID string
	summary    leads.LeadSummary
}

// Dispatcher is a bounded queue in front of a leads.Notifier. Enqueueing
// never blocks; a full queue drops the notification with a warning.
type Dispatcher struct {
	next    leads.Notifier
	logger  *slog.Logger
	workers int
	timeout time.Duration

	mu      sync.RWMutex
	queue   chan job
	started bool
	stopped bool
	wg      sync.WaitGroup

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewDispatcher(log *slog.Logger, next leads.Notifier, cfg config.NotifyConfig) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = config.DefaultNotifyQueueSize
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = config.DefaultNotifyWorkers
	}
	return &Dispatcher{
		next:    next,
		logger:  log.With(slog.String("component", "notify_dispatcher")),
		workers: workers,
		timeout: cfg.TimeoutDuration(),
		queue:   make(chan job, size),
	}
}

// Start launches the worker pool. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	d.logger.Info("notification dispatcher started", slog.Int("workers", d.workers), slog.Int("queue", cap(d.queue)))
}

// Stop closes the queue and waits for the workers to drain it or for ctx to
// expire, whichever comes first.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("notification dispatcher stopped before draining", slog.Int("pending", len(d.queue)))
		return ctx.Err()
	}
}

// Notify implements leads.Notifier by enqueueing the notification.
func (d *Dispatcher) Notify(_ context.Context, assigneeID string, summary leads.LeadSummary) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- job{assigneeID: assigneeID, summary: summary}:
		return nil
	default:
		d.dropped.Add(1)
		d.logger.Warn("notification dropped, queue full",
			slog.String("lead_id", summary.LeadID),
			slog.String("assignee_id", assigneeID),
		)
		return ErrQueueFull
	}
}

// Stats reports delivery counters since start.
func (d *Dispatcher) Stats() (delivered, failed, dropped int64) {
	return d.delivered.Load(), d.failed.Load(), d.dropped.Load()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.next.Notify(ctx, j.assigneeID, j.summary); err != nil {
		d.failed.Add(1)
		level := slog.LevelWarn
		if errors.Is(err, ErrUnreachable) {
			level = slog.LevelInfo
		}
		d.logger.Log(ctx, level, "lead notification failed",
			slog.String("lead_id", j.summary.LeadID),
			slog.String("assignee_id", j.assigneeID),
			slog.Any("error", err),
		)
		return
	}
	d.delivered.Add(1)
}
