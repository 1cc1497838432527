package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Afeter8/Fed.80/panel/internal/backoff"
	"github.com/Afeter8/Fed.80/panel/internal/inflight"
	"github.com/Afeter8/Fed.80/pkg/logger"
)

// RefreshFunc performs one status poll
type RefreshFunc func(ctx context.Context) error

// Cycle describes one finished poll
type Cycle struct {
	N    int
	Err  error
	Next time.Duration
}

// Watcher polls the fleet status on a fixed interval. After a failed poll the
// next one waits an exponential backoff instead, so an unreachable backend is
// not hammered; a failed poll is never repeated straight away.
type Watcher struct {
	refresh  RefreshFunc
	interval time.Duration
	backoff  *backoff.Backoff
	onCycle  func(Cycle)

	updateIntervalCh chan time.Duration
}

func New(refresh RefreshFunc, interval time.Duration, onCycle func(Cycle)) *Watcher {
	return &Watcher{
		refresh:          refresh,
		interval:         interval,
		backoff:          backoff.New(1*time.Second, 5*time.Minute, 2.0),
		onCycle:          onCycle,
		updateIntervalCh: make(chan time.Duration, 1),
	}
}

// SetInterval changes the poll interval from the next cycle on
func (w *Watcher) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case w.updateIntervalCh <- d:
	default:
	}
}

// Start polls immediately and then keeps polling until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %v", w.interval)
	}
	logger.Log.Infof("Watching status every %v", w.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Watch stopped")
			return nil

		case newInterval := <-w.updateIntervalCh:
			logger.Log.Infof("Updating watch interval to %v", newInterval)
			w.interval = newInterval
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(newInterval)

		case <-timer.C:
			n++
			err := w.refresh(ctx)
			next := w.interval

			switch {
			case err == nil:
				w.backoff.Reset()
			case errors.Is(err, inflight.ErrSuperseded), ctx.Err() != nil:
			default:
				next = w.backoff.Next()
				logger.Log.Warnf("Status poll %d failed (%d in a row), next poll in %v: %v",
					n, w.backoff.Failures(), next, err)
			}

			if ctx.Err() != nil {
				return nil
			}
			if w.onCycle != nil {
				w.onCycle(Cycle{N: n, Err: err, Next: next})
			}
			timer.Reset(next)
		}
	}
}
