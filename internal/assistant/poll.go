package assistant

import (
	"context"
	"errors"
	"time"
)

// ErrPollBudgetExhausted is returned when the poll budget runs out before
// the probed operation reaches a terminal state.
var ErrPollBudgetExhausted = errors.New("poll budget exhausted")

// poller runs a fixed-interval, bounded status poll. Both the file-attach
// wait and the run wait use it, so the bounds live in one place. sleep is
// injectable for tests; the zero value uses a real timer.
type poller struct {
	interval    time.Duration
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

func newPoller(interval time.Duration, maxAttempts int) *poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &poller{
		interval:    interval,
		maxAttempts: maxAttempts,
		sleep:       sleepCtx,
	}
}

// wait calls probe up to maxAttempts times, sleeping the interval between
// attempts. probe returns done=true to stop with success; a probe error
// stops immediately. Exhausting the budget returns ErrPollBudgetExhausted,
// and context cancellation wins over both.
func (p *poller) wait(ctx context.Context, probe func(ctx context.Context) (done bool, err error)) error {
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.interval); err != nil {
				return err
			}
		}

		done, err := probe(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return ErrPollBudgetExhausted
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
