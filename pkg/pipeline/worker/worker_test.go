package worker_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/palantir/contact-enrichment/pkg/pipeline/core"
	"github.com/palantir/contact-enrichment/pkg/pipeline/worker"
)

func TestProcessAll_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, id string) (string, error) {
		if calls.Add(1) <= 2 {
			return "", &core.TransientError{Err: errors.New("database is locked")}
		}
		return "enriched:" + id, nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"c-1"}, fn, worker.Options{
		Workers:        1,
		MaxRetries:     3,
		RequestTimeout: time.Second,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 output, got %d", len(out))
	}
	if out[0].Err != nil || out[0].Output != "enriched:c-1" {
		t.Fatalf("unexpected output: %#v", out[0])
	}
	if out[0].Attempts != 3 || calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d (calls %d)", out[0].Attempts, calls.Load())
	}
}

func TestProcessAll_DoesNotRetryPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		return "", errors.New("permanent")
	}

	out, err := worker.ProcessAll(context.Background(), []string{"c-1"}, fn, worker.Options{
		Workers:        1,
		MaxRetries:     10,
		BackoffInitial: time.Millisecond,
		BackoffMax:     time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Err == nil || out[0].Err.Error() != "permanent" {
		t.Fatalf("unexpected output: %#v", out[0])
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestProcessAll_RespectsPerErrorRetryCap(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		return "", &core.LimitedTransientError{Err: errors.New("busy"), ExtraRetries: 1}
	}

	out, err := worker.ProcessAll(context.Background(), []string{"c-1"}, fn, worker.Options{
		Workers:        1,
		MaxRetries:     10,
		BackoffInitial: time.Millisecond,
		BackoffMax:     time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Err == nil {
		t.Fatalf("expected error output, got %#v", out[0])
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls (1 initial + 1 retry), got %d", calls.Load())
	}
}

type committedErr struct{ err error }

func (e committedErr) Error() string   { return e.err.Error() }
func (e committedErr) Unwrap() error   { return e.err }
func (e committedErr) Retryable() bool { return false }

func TestProcessAll_RetryableFalseOverridesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		return "", committedErr{err: fmt.Errorf("round 2: %w", context.DeadlineExceeded)}
	}

	out, err := worker.ProcessAll(context.Background(), []string{"c-1"}, fn, worker.Options{
		Workers:        1,
		MaxRetries:     3,
		BackoffInitial: time.Millisecond,
		BackoffMax:     time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Err == nil {
		t.Fatalf("expected error output, got %#v", out[0])
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
	if core.IsTransient(committedErr{err: core.Transient(errors.New("busy"))}) {
		t.Fatalf("expected permanent error to win over transient marker")
	}
}

func TestProcessAll_FailFastStops(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, id string) (string, error) {
		calls.Add(1)
		if id == "bad" {
			return "", errors.New("boom")
		}
		t.Errorf("unexpected call for %q", id)
		return "", nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"bad", "good"}, fn, worker.Options{
		Workers:       1,
		FailurePolicy: worker.FailurePolicyFailFast,
	})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom error, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil output on fail-fast, got %#v", out)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestProcessAll_PartialOutputContinues(t *testing.T) {
	t.Parallel()

	fn := func(_ context.Context, id string) (string, error) {
		if id == "bad" {
			return "", errors.New("boom")
		}
		return "ok", nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"bad", "good"}, fn, worker.Options{Workers: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(out))
	}
	if out[0].Err == nil || out[0].Index != 0 {
		t.Fatalf("unexpected out[0]: %#v", out[0])
	}
	if out[1].Err != nil || out[1].Output != "ok" || out[1].Index != 1 {
		t.Fatalf("unexpected out[1]: %#v", out[1])
	}
}

func TestProcessAll_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inflight, peak atomic.Int32
	fn := func(_ context.Context, id string) (string, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return id, nil
	}

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	out, err := worker.ProcessAll(context.Background(), ids, fn, worker.Options{Workers: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range out {
		if r.Output != ids[i] {
			t.Fatalf("output %d out of order: %#v", i, r)
		}
	}
	if peak.Load() > 3 {
		t.Fatalf("expected at most 3 concurrent calls, saw %d", peak.Load())
	}
}

func TestProcessAllWithCallback_CompletesInCompletionOrder(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	fn := func(_ context.Context, id string) (string, error) {
		if id == "slow" {
			<-release
		}
		return id, nil
	}

	var mu sync.Mutex
	var seen []string
	_, err := worker.ProcessAllWithCallback(
		context.Background(),
		[]string{"slow", "fast"},
		fn,
		func(res worker.Result[string, string]) error {
			mu.Lock()
			seen = append(seen, res.Input)
			mu.Unlock()
			if res.Input == "fast" {
				close(release)
			}
			return nil
		},
		worker.Options{Workers: 2},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(seen, []string{"fast", "slow"}) {
		t.Fatalf("unexpected callback order: %v", seen)
	}
}

func TestProcessAllWithCallback_CallbackErrorStopsRun(t *testing.T) {
	t.Parallel()

	callbackErr := errors.New("callback failed")
	_, err := worker.ProcessAllWithCallback(
		context.Background(),
		[]string{"c-1"},
		func(_ context.Context, id string) (string, error) { return id, nil },
		func(worker.Result[string, string]) error { return callbackErr },
		worker.Options{Workers: 1},
	)
	if !errors.Is(err, callbackErr) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestProcessAll_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := worker.ProcessAll(ctx, []string{"c-1"}, func(context.Context, string) (string, error) {
		t.Error("processor should not run")
		return "", nil
	}, worker.Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
