package assistant

import (
	"context"
	"errors"
	"testing"
	"time"
)

// instantSleep records requested sleeps without actually waiting.
func instantSleep(slept *int) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*slept++
		return ctx.Err()
	}
}

func TestPollerStopsOnDone(t *testing.T) {
	p := newPoller(time.Second, 10)
	var slept int
	p.sleep = instantSleep(&slept)

	probes := 0
	err := p.wait(context.Background(), func(ctx context.Context) (bool, error) {
		probes++
		return probes == 3, nil
	})
	if err != nil {
		t.Fatalf("wait() failed: %v", err)
	}
	if probes != 3 {
		t.Errorf("probes: got %d, want 3", probes)
	}
	// No sleep before the first probe.
	if slept != 2 {
		t.Errorf("sleeps: got %d, want 2", slept)
	}
}

func TestPollerBudgetExhausted(t *testing.T) {
	p := newPoller(time.Second, 4)
	var slept int
	p.sleep = instantSleep(&slept)

	probes := 0
	err := p.wait(context.Background(), func(ctx context.Context) (bool, error) {
		probes++
		return false, nil
	})
	if !errors.Is(err, ErrPollBudgetExhausted) {
		t.Errorf("got %v, want ErrPollBudgetExhausted", err)
	}
	if probes != 4 {
		t.Errorf("probes: got %d, want 4", probes)
	}
}

func TestPollerProbeErrorStopsImmediately(t *testing.T) {
	p := newPoller(time.Second, 10)
	var slept int
	p.sleep = instantSleep(&slept)

	wantErr := errors.New("remote unavailable")
	probes := 0
	err := p.wait(context.Background(), func(ctx context.Context) (bool, error) {
		probes++
		return false, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want probe error", err)
	}
	if probes != 1 {
		t.Errorf("probes after error: got %d, want 1", probes)
	}
}

func TestPollerCancellation(t *testing.T) {
	p := newPoller(time.Millisecond, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	probes := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.wait(ctx, func(ctx context.Context) (bool, error) {
		probes++
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if probes >= 1000 {
		t.Error("poll loop did not stop on cancellation")
	}
}
