package clock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultTickInterval = time.Second

type TickerParams struct {
	Interval time.Duration
	// Now supplies local time; time.Now when nil.
	Now    func() time.Time
	Logger *zap.Logger
}

// Ticker republishes the extrapolated site time on a fixed interval,
// independently of when anchors arrive.
type Ticker struct {
	clock    *Clock
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger

	mut     sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

func NewTicker(c *Clock, params TickerParams) *Ticker {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	interval := params.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Ticker{
		clock:    c,
		interval: interval,
		now:      now,
		log:      logger.With(zap.String("component", "ClockTicker")),
	}
}

// Start publishes once immediately and then on every tick until Stop or ctx
// cancellation. A ticker can be started once.
func (t *Ticker) Start(ctx context.Context, publish func(time.Time)) error {
	t.mut.Lock()
	defer t.mut.Unlock()

	if t.cancel != nil || t.stopped {
		return fmt.Errorf("clock ticker already started or stopped")
	}

	tickCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		tk := time.NewTicker(t.interval)
		defer tk.Stop()

		publish(t.clock.Now(t.now()))
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-tk.C:
				publish(t.clock.Now(t.now()))
			}
		}
	}()

	t.log.Debug("Clock ticker started", zap.Duration("interval", t.interval))
	return nil
}

// Stop cancels the tick task and waits for it. Safe to call repeatedly.
func (t *Ticker) Stop() {
	t.mut.Lock()
	cancel := t.cancel
	alreadyStopped := t.stopped
	t.stopped = true
	t.mut.Unlock()

	if alreadyStopped || cancel == nil {
		return
	}
	cancel()
	t.wg.Wait()
	t.log.Debug("Clock ticker stopped")
}
