package writequeue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"leadrouting_backend/platform/config"
	"leadrouting_backend/platform/logger"
)

// rateWindow is the sliding window the dispatch ceiling applies to.
const rateWindow = time.Minute

// Clock abstracts time so the scheduler is deterministic under test.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Call is one outbound write operation.
type Call func(ctx context.Context) error

// Result is the structured outcome of a task, returned instead of thrown
// even after retry exhaustion.
type Result struct {
	Success    bool       `json:"success"`
	Attempts   int        `json:"attempts"`
	DurationMs int64      `json:"durationMs"`
	Err        *TaskError `json:"error,omitempty"`
}

// Ticket resolves once its task has run to completion. Tasks sharing a
// dedupe key share one ticket and therefore one outcome.
type Ticket struct {
	done   chan struct{}
	result Result
}

func newTicket() *Ticket {
	return &Ticket{done: make(chan struct{})}
}

// Wait blocks until the task completes or the caller's context is done.
func (t *Ticket) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Done exposes the completion channel for select-based callers.
func (t *Ticket) Done() <-chan struct{} { return t.done }

func (t *Ticket) resolve(res Result) {
	t.result = res
	close(t.done)
}

// Options configure a single enqueue.
type Options struct {
	// Priority orders pending tasks; higher dispatches first. Equal
	// priorities preserve submission order.
	Priority int
	// DedupeKey collapses concurrent identical operations onto one task
	// while the first is still pending.
	DedupeKey string
}

type task struct {
	call       Call
	priority   int
	seq        uint64
	dedupeKey  string
	ticket     *Ticket
	enqueuedAt time.Time
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*task)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Metrics is a live snapshot of queue counters.
type Metrics struct {
	TotalRequests      int64   `json:"totalRequests"`
	SuccessfulRequests int64   `json:"successfulRequests"`
	FailedRequests     int64   `json:"failedRequests"`
	RetriedRequests    int64   `json:"retriedRequests"`
	QueueSize          int     `json:"queueSize"`
	AverageWaitTimeMs  float64 `json:"averageWaitTime"`
	RequestsPerMinute  int     `json:"requestsPerMinute"`
}

// Queue is a single-loop outbound write scheduler. Exactly one processing
// goroutine dispatches tasks, which keeps the rate limit correct without
// cross-worker coordination. Its state is process-local; exactly-once apply
// semantics come from the persistent apply guard, not from here.
type Queue struct {
	ceiling int
	policy  RetryPolicy
	clock   Clock
	log     *logger.Logger

	mu        sync.Mutex
	pending   taskHeap
	byKey     map[string]*Ticket
	seq       uint64
	window    []time.Time
	wake      chan struct{}

	total     int64
	succeeded int64
	failed    int64
	retried   int64
	waitSum   time.Duration
	waitCount int64
}

// New creates a queue with the given per-minute dispatch ceiling. The
// ceiling should sit below the platform's documented limit as a safety
// margin.
func New(ceiling int, policy RetryPolicy, clock Clock, log *logger.Logger) *Queue {
	if ceiling < 1 {
		ceiling = 1
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Queue{
		ceiling: ceiling,
		policy:  policy,
		clock:   clock,
		log:     log,
		byKey:   make(map[string]*Ticket),
		wake:    make(chan struct{}, 1),
	}
}

// NewFromConfig builds a queue from application configuration.
func NewFromConfig(cfg config.WriteQueueConfig, log *logger.Logger) *Queue {
	policy := RetryPolicy{
		MaxAttempts: cfg.GetWriteMaxAttempts(),
		BaseDelay:   cfg.GetWriteBaseDelay(),
		Multiplier:  cfg.GetWriteBackoffMultiplier(),
		MaxDelay:    cfg.GetWriteMaxDelay(),
	}
	if policy.MaxAttempts < 1 {
		policy = DefaultRetryPolicy()
	}
	return New(cfg.GetWriteRatePerMinute(), policy, SystemClock(), log)
}

// Enqueue submits a task. When opts.DedupeKey matches a still-pending task,
// the existing ticket is returned and no new task is created.
func (q *Queue) Enqueue(call Call, opts Options) *Ticket {
	q.mu.Lock()
	if opts.DedupeKey != "" {
		if existing, ok := q.byKey[opts.DedupeKey]; ok {
			q.mu.Unlock()
			return existing
		}
	}

	t := &task{
		call:       call,
		priority:   opts.Priority,
		seq:        q.seq,
		dedupeKey:  opts.DedupeKey,
		ticket:     newTicket(),
		enqueuedAt: q.clock.Now(),
	}
	q.seq++
	heap.Push(&q.pending, t)
	if opts.DedupeKey != "" {
		q.byKey[opts.DedupeKey] = t.ticket
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return t.ticket
}

// Run is the single cooperative processing loop. It returns when ctx is
// done, resolving any still-pending tickets with a shutdown failure.
// Queued and in-flight tasks cannot otherwise be cancelled.
func (q *Queue) Run(ctx context.Context) {
	for {
		t := q.next(ctx)
		if t == nil {
			q.drain()
			return
		}

		waited := q.clock.Now().Sub(t.enqueuedAt)
		res := q.process(ctx, t)
		q.complete(t, res, waited)
	}
}

func (q *Queue) next(ctx context.Context) *task {
	for {
		if ctx.Err() != nil {
			return nil
		}
		q.mu.Lock()
		if q.pending.Len() > 0 {
			t := heap.Pop(&q.pending).(*task)
			q.mu.Unlock()
			return t
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil
		}
	}
}

func (q *Queue) process(ctx context.Context, t *task) Result {
	start := q.clock.Now()
	attempts := 0
	var lastErr *TaskError

	for attempts < q.policy.MaxAttempts {
		if !q.waitForSlot(ctx) {
			lastErr = &TaskError{Message: "queue shut down", Code: CodeShutdown, Retryable: false}
			break
		}
		attempts++

		err := t.call(ctx)
		if err == nil {
			return Result{
				Success:    true,
				Attempts:   attempts,
				DurationMs: q.clock.Now().Sub(start).Milliseconds(),
			}
		}

		taskErr, hint := classify(err)
		lastErr = taskErr
		if !taskErr.Retryable || attempts >= q.policy.MaxAttempts {
			break
		}

		q.mu.Lock()
		q.retried++
		q.mu.Unlock()

		delay := q.policy.NextDelay(attempts)
		if taskErr.Code == CodeRateLimited && hint > 0 {
			delay = hint
		}
		if q.log != nil {
			q.log.QueueWait("retry_backoff", delay.Milliseconds(), q.Metrics().QueueSize)
		}
		select {
		case <-q.clock.After(delay):
		case <-ctx.Done():
			return Result{
				Success:    false,
				Attempts:   attempts,
				DurationMs: q.clock.Now().Sub(start).Milliseconds(),
				Err:        &TaskError{Message: "queue shut down", Code: CodeShutdown, Retryable: false},
			}
		}
	}

	return Result{
		Success:    false,
		Attempts:   attempts,
		DurationMs: q.clock.Now().Sub(start).Milliseconds(),
		Err:        lastErr,
	}
}

// waitForSlot blocks until the sliding window has room, then reserves a
// dispatch timestamp. Returns false only on shutdown.
func (q *Queue) waitForSlot(ctx context.Context) bool {
	for {
		q.mu.Lock()
		now := q.clock.Now()
		q.pruneWindowLocked(now)
		if len(q.window) < q.ceiling {
			q.window = append(q.window, now)
			q.mu.Unlock()
			return true
		}
		wait := q.window[0].Add(rateWindow).Sub(now)
		depth := q.pending.Len()
		q.mu.Unlock()

		if q.log != nil {
			q.log.QueueWait("rate_limit", wait.Milliseconds(), depth)
		}
		select {
		case <-q.clock.After(wait):
		case <-ctx.Done():
			return false
		}
	}
}

func (q *Queue) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	idx := 0
	for idx < len(q.window) && !q.window[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		q.window = append(q.window[:0], q.window[idx:]...)
	}
}

func (q *Queue) complete(t *task, res Result, waited time.Duration) {
	q.mu.Lock()
	q.total++
	if res.Success {
		q.succeeded++
	} else {
		q.failed++
	}
	q.waitSum += waited
	q.waitCount++
	if t.dedupeKey != "" {
		delete(q.byKey, t.dedupeKey)
	}
	q.mu.Unlock()

	t.ticket.resolve(res)
}

// drain fails everything still pending at shutdown.
func (q *Queue) drain() {
	q.mu.Lock()
	remaining := make([]*task, 0, q.pending.Len())
	for q.pending.Len() > 0 {
		remaining = append(remaining, heap.Pop(&q.pending).(*task))
	}
	q.byKey = make(map[string]*Ticket)
	q.failed += int64(len(remaining))
	q.total += int64(len(remaining))
	q.mu.Unlock()

	for _, t := range remaining {
		t.ticket.resolve(Result{
			Success: false,
			Err:     &TaskError{Message: "queue shut down", Code: CodeShutdown, Retryable: false},
		})
	}
}

// Metrics returns a live counter snapshot.
func (q *Queue) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneWindowLocked(q.clock.Now())

	var avgWait float64
	if q.waitCount > 0 {
		avgWait = float64(q.waitSum.Milliseconds()) / float64(q.waitCount)
	}
	return Metrics{
		TotalRequests:      q.total,
		SuccessfulRequests: q.succeeded,
		FailedRequests:     q.failed,
		RetriedRequests:    q.retried,
		QueueSize:          q.pending.Len(),
		AverageWaitTimeMs:  avgWait,
		RequestsPerMinute:  len(q.window),
	}
}
