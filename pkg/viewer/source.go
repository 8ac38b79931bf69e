package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/message"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/metrics"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/poller"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/transport"
	"go.uber.org/zap"
)

// FeedSource produces the camera feed as stream events. *transport.StreamClient
// is the streaming implementation; pollSource covers the polling endpoints.
type FeedSource interface {
	Open(ctx context.Context) error
	Events() <-chan transport.StreamEvent
	Close() error
}

type pollSourceParams struct {
	FetchMetadata poller.FetchFunc[*message.Metadata]
	FetchImage    poller.FetchFunc[[]byte]
	Interval      time.Duration

	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// pollSource polls the latest shot metadata and, whenever the shot changes,
// fetches its image. Each new shot comes out as a metadata message followed by
// its image, the same sequence the stream delivers. An unavailable document
// comes out as standalone metadata.
type pollSource struct {
	params pollSourceParams
	poller *poller.Poller[*message.Metadata]
	events chan transport.StreamEvent
	log    *zap.Logger

	mut_lifecycle sync.Mutex
	opened        bool
	closed        bool
	ctx           context.Context
	cancel        context.CancelFunc

	// Owned by the poller goroutine.
	state       transport.ConnectionState
	seenAny     bool
	lastShot    time.Time
	hadMetadata bool
}

func newPollSource(params pollSourceParams) *pollSource {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if params.Now == nil {
		params.Now = time.Now
	}

	s := &pollSource{
		params: params,
		events: make(chan transport.StreamEvent, transport.DefaultEventBuffer),
		log:    logger.With(zap.String("component", "PollSource")),
		state:  transport.Disconnected,
	}
	s.poller = poller.New[*message.Metadata](poller.PollerParams{
		Name:    "latest-shot-metadata",
		OnError: s.onError,
		Logger:  logger,
		Metrics: params.Metrics,
	})
	return s
}

func (s *pollSource) Events() <-chan transport.StreamEvent {
	return s.events
}

func (s *pollSource) Open(ctx context.Context) error {
	s.mut_lifecycle.Lock()
	defer s.mut_lifecycle.Unlock()

	if s.closed {
		return &transport.ClientClosedError{}
	}
	if s.opened {
		return &transport.ClientAlreadyOpenError{}
	}
	s.opened = true

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.setState(transport.Connecting)

	return s.poller.Start(s.ctx, s.params.FetchMetadata, s.params.Interval, s.onMetadata)
}

func (s *pollSource) Close() error {
	s.mut_lifecycle.Lock()
	alreadyClosed := s.closed
	s.closed = true
	cancel := s.cancel
	s.mut_lifecycle.Unlock()

	if alreadyClosed {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	s.poller.Stop()

	select {
	case s.events <- transport.StreamEvent{State: transport.Disconnected}:
	default:
	}
	close(s.events)
	return nil
}

func (s *pollSource) onError(err error) {
	if s.state != transport.Reconnecting {
		s.log.Warn("Shot metadata endpoint unreachable", zap.Error(err))
	}
	s.setState(transport.Reconnecting)
}

func (s *pollSource) onMetadata(m *message.Metadata) {
	s.setState(transport.Connected)

	if m == nil {
		if s.hadMetadata || !s.seenAny {
			s.seenAny = true
			s.hadMetadata = false
			// No shot, so no image will follow.
			s.emit(transport.StreamEvent{Message: ptr(message.NewStandaloneMetadataMessage(nil, s.params.Now())), State: transport.Connected})
		}
		return
	}

	if s.hadMetadata && m.ShotDatetime.Equal(s.lastShot) {
		return
	}

	// The shot is only marked seen once its image is in hand, so a failed
	// image fetch is retried on the next poll.
	image, err := s.params.FetchImage(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			s.log.Warn("Failed to fetch latest shot image", zap.Error(err))
			s.params.Metrics.IncPoll("latest-shot", false)
		}
		return
	}
	s.params.Metrics.IncPoll("latest-shot", true)

	s.seenAny = true
	s.hadMetadata = true
	s.lastShot = m.ShotDatetime

	now := s.params.Now()
	if !s.emit(transport.StreamEvent{Message: ptr(message.NewMetadataMessage(m, now)), State: transport.Connected}) {
		return
	}
	s.emit(transport.StreamEvent{Message: ptr(message.NewBinaryMessage(image, now)), State: transport.Connected})
}

func (s *pollSource) setState(state transport.ConnectionState) {
	if s.state == state {
		return
	}
	s.state = state
	s.params.Metrics.SetConnectionState(int(state))
	s.emit(transport.StreamEvent{State: state})
}

func (s *pollSource) emit(ev transport.StreamEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func ptr[T any](v T) *T {
	return &v
}
