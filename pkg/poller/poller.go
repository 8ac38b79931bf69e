package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	telemetryerrors "github.com/nj-vs-vh/tunka-telemetry-server/pkg/errors"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/metrics"
	"go.uber.org/zap"
)

// FetchFunc performs one poll. It must honor ctx cancellation.
type FetchFunc[T any] func(ctx context.Context) (T, error)

type PollerParams struct {
	// Name labels log lines and metrics, e.g. "conditions".
	Name string

	// OnError, if set, is called from the poller goroutine after each failed
	// fetch. The schedule continues regardless.
	OnError func(error)

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Poller runs one fetch immediately and then once per interval until stopped.
// A failed fetch is logged and counted; the last successful result is kept.
type Poller[T any] struct {
	name    string
	onError func(error)
	log     *zap.Logger
	metrics *metrics.Metrics

	mut_latest sync.RWMutex
	latest     T
	hasLatest  bool

	mut_run sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New[T any](params PollerParams) *Poller[T] {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	name := params.Name
	if name == "" {
		name = "poller"
	}

	return &Poller[T]{
		name:    name,
		onError: params.OnError,
		log:     logger.With(zap.String("component", "Poller"), zap.String("poller", name)),
		metrics: params.Metrics,
	}
}

// Start schedules the fetches. onResult is called from the poller goroutine,
// only for successful fetches, and never after Stop returns.
func (p *Poller[T]) Start(ctx context.Context, fetch FetchFunc[T], interval time.Duration, onResult func(T)) error {
	if interval <= 0 {
		return errors.New("poll interval must be positive")
	}

	p.mut_run.Lock()
	defer p.mut_run.Unlock()

	if p.started || p.stopped {
		return errors.New("poller already started or stopped")
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(runCtx, fetch, interval, onResult)
	}()

	return nil
}

func (p *Poller[T]) loop(ctx context.Context, fetch FetchFunc[T], interval time.Duration, onResult func(T)) {
	p.log.Info("Starting poll loop", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.poll(ctx, fetch, onResult)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("Poll loop stopped")
			return
		case <-ticker.C:
			p.poll(ctx, fetch, onResult)
		}
	}
}

func (p *Poller[T]) poll(ctx context.Context, fetch FetchFunc[T], onResult func(T)) {
	result, err := fetch(ctx)
	if ctx.Err() != nil {
		// Stopped mid-fetch; whatever came back is no longer wanted.
		return
	}
	if err != nil {
		err = telemetryerrors.Categorize(err, telemetryerrors.CategoryPoll)
		p.log.Warn("Poll failed, keeping last result", zap.Error(err))
		p.metrics.IncPoll(p.name, false)
		if p.onError != nil {
			p.onError(err)
		}
		return
	}

	p.metrics.IncPoll(p.name, true)

	func() {
		p.mut_latest.Lock()
		defer p.mut_latest.Unlock()
		p.latest = result
		p.hasLatest = true
	}()

	if onResult != nil {
		onResult(result)
	}
}

// Latest returns the last successful result, if any.
func (p *Poller[T]) Latest() (T, bool) {
	p.mut_latest.RLock()
	defer p.mut_latest.RUnlock()
	return p.latest, p.hasLatest
}

// Stop cancels the schedule and waits for an in-flight fetch to return.
// Safe to call more than once, and before Start.
func (p *Poller[T]) Stop() {
	p.mut_run.Lock()
	p.stopped = true
	cancel := p.cancel
	p.mut_run.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}
