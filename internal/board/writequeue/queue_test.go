package writequeue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadrouting_backend/internal/board"
)

// fakeClock advances instantly on After, so rate waits and backoffs resolve
// without real timers while timestamps still move forward.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func newTestQueue(ceiling int, policy RetryPolicy, clock Clock) *Queue {
	return New(ceiling, policy, clock, nil)
}

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
}

func runQueue(t *testing.T, q *Queue) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("queue did not stop")
		}
	}
}

func TestEnqueueSuccess(t *testing.T) {
	q := newTestQueue(100, fastPolicy(3), newFakeClock())
	stop := runQueue(t, q)
	defer stop()

	calls := 0
	ticket := q.Enqueue(func(ctx context.Context) error {
		calls++
		return nil
	}, Options{})

	res, err := ticket.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !res.Success || res.Attempts != 1 || calls != 1 {
		t.Fatalf("result = %+v, calls = %d", res, calls)
	}

	m := q.Metrics()
	if m.TotalRequests != 1 || m.SuccessfulRequests != 1 || m.FailedRequests != 0 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestRetryExhaustionReturnsStructuredResult(t *testing.T) {
	q := newTestQueue(100, fastPolicy(3), newFakeClock())
	stop := runQueue(t, q)
	defer stop()

	calls := 0
	ticket := q.Enqueue(func(ctx context.Context) error {
		calls++
		return &board.APIError{StatusCode: 503, Message: "unavailable"}
	}, Options{})

	res, err := ticket.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Attempts != 3 || calls != 3 {
		t.Fatalf("attempts = %d, calls = %d, want 3", res.Attempts, calls)
	}
	if res.Err == nil || res.Err.Code != CodeServerError {
		t.Fatalf("err = %+v, want SERVER_ERROR", res.Err)
	}

	if m := q.Metrics(); m.RetriedRequests != 2 || m.FailedRequests != 1 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestFatalClientErrorDoesNotRetry(t *testing.T) {
	q := newTestQueue(100, fastPolicy(5), newFakeClock())
	stop := runQueue(t, q)
	defer stop()

	calls := 0
	ticket := q.Enqueue(func(ctx context.Context) error {
		calls++
		return &board.APIError{StatusCode: 403, Message: "forbidden"}
	}, Options{})

	res, _ := ticket.Wait(context.Background())
	if res.Success || res.Attempts != 1 || calls != 1 {
		t.Fatalf("result = %+v, calls = %d, want a single fatal attempt", res, calls)
	}
	if res.Err.Code != CodeClientError || res.Err.Retryable {
		t.Fatalf("err = %+v, want non-retryable CLIENT_ERROR", res.Err)
	}
}

func TestRateCeilingDelaysDispatch(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	q := newTestQueue(2, fastPolicy(1), clock)
	stop := runQueue(t, q)
	defer stop()

	var mu sync.Mutex
	var dispatched []time.Time
	call := func(ctx context.Context) error {
		mu.Lock()
		dispatched = append(dispatched, clock.Now())
		mu.Unlock()
		return nil
	}

	tickets := []*Ticket{
		q.Enqueue(call, Options{}),
		q.Enqueue(call, Options{}),
		q.Enqueue(call, Options{}),
	}
	for _, ticket := range tickets {
		if _, err := ticket.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dispatched) != 3 {
		t.Fatalf("dispatched = %d, want 3", len(dispatched))
	}
	// First two fit the window, the third must wait for it to slide.
	if gap := dispatched[2].Sub(start); gap < time.Minute {
		t.Fatalf("third dispatch after %v, want >= 1m", gap)
	}
	if gap := dispatched[1].Sub(start); gap >= time.Minute {
		t.Fatalf("second dispatch should not have waited, waited %v", gap)
	}
}

func TestRetryAfterHintOverridesBackoff(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(100, fastPolicy(3), clock)
	stop := runQueue(t, q)
	defer stop()

	var mu sync.Mutex
	var attempts []time.Time
	ticket := q.Enqueue(func(ctx context.Context) error {
		mu.Lock()
		attempts = append(attempts, clock.Now())
		n := len(attempts)
		mu.Unlock()
		if n == 1 {
			return &board.APIError{StatusCode: 429, Message: "slow down", RetryAfter: 7 * time.Second}
		}
		return nil
	}, Options{})

	res, _ := ticket.Wait(context.Background())
	if !res.Success || res.Attempts != 2 {
		t.Fatalf("result = %+v, want success on attempt 2", res)
	}

	mu.Lock()
	defer mu.Unlock()
	if gap := attempts[1].Sub(attempts[0]); gap != 7*time.Second {
		t.Fatalf("retry gap = %v, want the server's 7s hint", gap)
	}
}

func TestDedupeSharesOneTicket(t *testing.T) {
	q := newTestQueue(100, fastPolicy(3), newFakeClock())

	calls := 0
	call := func(ctx context.Context) error {
		calls++
		return nil
	}
	first := q.Enqueue(call, Options{DedupeKey: "apply::k1"})
	second := q.Enqueue(call, Options{DedupeKey: "apply::k1"})
	other := q.Enqueue(call, Options{DedupeKey: "apply::k2"})

	if first != second {
		t.Fatal("same dedupe key must share one ticket")
	}
	if first == other {
		t.Fatal("different dedupe keys must not share tickets")
	}

	stop := runQueue(t, q)
	defer stop()

	if _, err := first.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if _, err := other.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (deduped pair runs once)", calls)
	}

	// Completion clears the key: a later enqueue runs again.
	third := q.Enqueue(call, Options{DedupeKey: "apply::k1"})
	if third == first {
		t.Fatal("completed key must not dedupe against a finished task")
	}
}

func TestPriorityOrdersPendingTasks(t *testing.T) {
	q := newTestQueue(100, fastPolicy(1), newFakeClock())

	var mu sync.Mutex
	var order []string
	enqueue := func(name string, priority int) *Ticket {
		return q.Enqueue(func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}, Options{Priority: priority})
	}

	// All pending before the loop starts, so ordering is purely the heap's.
	tickets := []*Ticket{
		enqueue("low", 0),
		enqueue("high-a", 10),
		enqueue("high-b", 10),
		enqueue("mid", 5),
	}

	stop := runQueue(t, q)
	defer stop()
	for _, ticket := range tickets {
		if _, err := ticket.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high-a", "high-b", "mid", "low"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdownFailsPendingTickets(t *testing.T) {
	q := newTestQueue(100, fastPolicy(3), newFakeClock())

	ticket := q.Enqueue(func(ctx context.Context) error { return nil }, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Run(ctx)

	res, err := ticket.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.Success || res.Err == nil || res.Err.Code != CodeShutdown {
		t.Fatalf("result = %+v, want SHUTDOWN failure", res)
	}
}

// stalledClock never fires After, so backoff waits resolve only on shutdown.
type stalledClock struct{}

func (stalledClock) Now() time.Time                       { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
func (stalledClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

func TestShutdownDuringBackoffKeepsAttemptCount(t *testing.T) {
	q := newTestQueue(100, fastPolicy(5), stalledClock{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	// The task cancels the queue from inside its first attempt, so the loop
	// is parked in the retry backoff when shutdown lands.
	ticket := q.Enqueue(func(context.Context) error {
		cancel()
		return &board.APIError{StatusCode: 503, Message: "unavailable"}
	}, Options{})

	res, err := ticket.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not stop")
	}

	if res.Success || res.Err == nil || res.Err.Code != CodeShutdown {
		t.Fatalf("result = %+v, want SHUTDOWN failure", res)
	}
	if res.Attempts != 1 {
		t.Fatalf("attempts = %d, want the one attempt that actually ran", res.Attempts)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"rate limited", &board.APIError{StatusCode: 429}, CodeRateLimited, true},
		{"bad request", &board.APIError{StatusCode: 400}, CodeClientError, false},
		{"not found", &board.APIError{StatusCode: 404}, CodeClientError, false},
		{"server error", &board.APIError{StatusCode: 500}, CodeServerError, true},
		{"deadline", context.DeadlineExceeded, CodeTimeout, true},
		{"plain", errors.New("connection refused"), CodeNetwork, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			taskErr, _ := classify(tc.err)
			if taskErr.Code != tc.code || taskErr.Retryable != tc.retryable {
				t.Fatalf("classify = %+v, want code %s retryable %v", taskErr, tc.code, tc.retryable)
			}
		})
	}
}

func TestNextDelayBackoffSchedule(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, Multiplier: 2, MaxDelay: 3 * time.Second}
	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		3 * time.Second, // capped
		3 * time.Second,
	}
	for attempt, expected := range want {
		if got := policy.NextDelay(attempt + 1); got != expected {
			t.Fatalf("NextDelay(%d) = %v, want %v", attempt+1, got, expected)
		}
	}
}
