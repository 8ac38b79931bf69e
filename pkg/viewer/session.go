package viewer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nj-vs-vh/tunka-telemetry-server/internal"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/clock"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/frame"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/message"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/metrics"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/poller"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/staleness"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/transport"
	"go.uber.org/zap"
)

type Mode string

const (
	ModeStream Mode = "stream"
	ModePoll   Mode = "poll"
)

const (
	DefaultConditionsInterval = 30 * time.Second
	DefaultMetadataInterval   = time.Second
	DefaultSiteName           = "Irkutsk"
)

type SessionParams struct {
	Mode Mode

	StreamURL string
	Dialer    *websocket.Dialer

	ConditionsURL      string
	ConditionsInterval time.Duration

	MetadataURL      string
	ImageURL         string
	MetadataInterval time.Duration

	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration

	TickInterval time.Duration
	Tolerance    time.Duration

	// Location is the site time zone, used for naive backend timestamps and
	// for the operator texts.
	Location *time.Location
	SiteName string

	HTTPClient *http.Client
	Store      *internal.SnapshotStore[Snapshot]
	Images     *frame.ImageStore

	// Source replaces the feed built from Mode, mostly for tests.
	Source FeedSource
	// FetchConditions replaces the HTTP fetch of ConditionsURL.
	FetchConditions poller.FetchFunc[*message.ObservationConditions]

	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Session wires the feed, the frame assembler, the site clock and the
// conditions poller together. A single event loop owns all display state and
// publishes a new Snapshot to the store after every change.
type Session struct {
	params SessionParams

	source          FeedSource
	assembler       *frame.Assembler
	clock           *clock.Clock
	ticker          *clock.Ticker
	conditions      *poller.Poller[*message.ObservationConditions]
	fetchConditions poller.FetchFunc[*message.ObservationConditions]
	store           *internal.SnapshotStore[Snapshot]

	ticks        chan struct{}
	conditionsCh chan *message.ObservationConditions

	mut_run sync.Mutex
	ran     bool

	// Owned by the event loop.
	connection     transport.ConnectionState
	feedStarted    bool
	update         frame.Update
	lastConditions *message.ObservationConditions

	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewSession(params SessionParams) (*Session, error) {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if params.Mode == "" {
		params.Mode = ModeStream
	}
	if params.Location == nil {
		params.Location = time.UTC
	}
	if params.SiteName == "" {
		params.SiteName = DefaultSiteName
	}
	if params.ConditionsInterval <= 0 {
		params.ConditionsInterval = DefaultConditionsInterval
	}
	if params.MetadataInterval <= 0 {
		params.MetadataInterval = DefaultMetadataInterval
	}
	if params.Tolerance <= 0 {
		params.Tolerance = staleness.DefaultTolerance
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.HTTPClient == nil {
		params.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if params.Store == nil {
		params.Store = internal.CreateSnapshotStore[Snapshot](0)
	}
	if params.Images == nil {
		params.Images = frame.NewImageStore()
	}

	parser := message.Parser{Location: params.Location}

	source := params.Source
	if source == nil {
		switch params.Mode {
		case ModeStream:
			if params.StreamURL == "" {
				return nil, errors.New("stream mode requires a stream URL")
			}
			source = transport.NewStreamClient(transport.StreamClientParams{
				URL:                   params.StreamURL,
				Dialer:                params.Dialer,
				ReconnectInitialDelay: params.ReconnectInitialDelay,
				ReconnectMaxDelay:     params.ReconnectMaxDelay,
				Parser:                parser,
				Now:                   params.Now,
				Logger:                logger,
				Metrics:               params.Metrics,
			})
		case ModePoll:
			if params.MetadataURL == "" || params.ImageURL == "" {
				return nil, errors.New("poll mode requires metadata and image URLs")
			}
			source = newPollSource(pollSourceParams{
				FetchMetadata: poller.Fetch(params.HTTPClient, params.MetadataURL, parser.ParseMetadata),
				FetchImage:    poller.FetchBytes(params.HTTPClient, params.ImageURL),
				Interval:      params.MetadataInterval,
				Now:           params.Now,
				Logger:        logger,
				Metrics:       params.Metrics,
			})
		default:
			return nil, fmt.Errorf("unknown feed mode %q", params.Mode)
		}
	}

	fetchConditions := params.FetchConditions
	if fetchConditions == nil {
		if params.ConditionsURL == "" {
			return nil, errors.New("observation conditions URL is required")
		}
		fetchConditions = poller.Fetch(params.HTTPClient, params.ConditionsURL, parser.ParseConditions)
	}

	siteClock := clock.New(logger)

	return &Session{
		params: params,

		source: source,
		assembler: frame.NewAssembler(frame.AssemblerParams{
			Images: params.Images,
			Logger: logger,
		}),
		clock: siteClock,
		ticker: clock.NewTicker(siteClock, clock.TickerParams{
			Interval: params.TickInterval,
			Now:      params.Now,
			Logger:   logger,
		}),
		conditions: poller.New[*message.ObservationConditions](poller.PollerParams{
			Name:    "observation-conditions",
			Logger:  logger,
			Metrics: params.Metrics,
		}),
		fetchConditions: fetchConditions,
		store:           params.Store,

		ticks:        make(chan struct{}, 1),
		conditionsCh: make(chan *message.ObservationConditions, 1),

		connection: transport.Disconnected,

		log:     logger.With(zap.String("component", "ViewerSession")),
		metrics: params.Metrics,
	}, nil
}

func (s *Session) Store() *internal.SnapshotStore[Snapshot] {
	return s.store
}

func (s *Session) Images() *frame.ImageStore {
	return s.assembler.Images()
}

// Run blocks until ctx is done, then tears down every component. A session
// runs once.
func (s *Session) Run(ctx context.Context) error {
	s.mut_run.Lock()
	if s.ran {
		s.mut_run.Unlock()
		return errors.New("viewer session already ran")
	}
	s.ran = true
	s.mut_run.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.ticker.Stop()
		s.conditions.Stop()
		s.source.Close()
		s.assembler.Release()
		s.log.Info("Viewer session stopped")
	}()

	s.log.Info("Starting viewer session", zap.String("mode", string(s.params.Mode)))

	if err := s.source.Open(runCtx); err != nil {
		return fmt.Errorf("opening camera feed: %w", err)
	}

	err := s.conditions.Start(runCtx, s.fetchConditions, s.params.ConditionsInterval, func(c *message.ObservationConditions) {
		s.clock.OnSync(c.LocalTime, s.params.Now())
		select {
		case s.conditionsCh <- c:
		case <-runCtx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("starting conditions poller: %w", err)
	}

	err = s.ticker.Start(runCtx, func(time.Time) {
		select {
		case s.ticks <- struct{}{}:
		default:
			// A publish is already queued.
		}
	})
	if err != nil {
		return fmt.Errorf("starting clock ticker: %w", err)
	}

	s.publish(s.clock.Now(s.params.Now()))

	events := s.source.Events()
	for {
		select {
		case <-runCtx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if s.onStreamEvent(ev) {
				s.publish(s.clock.Now(s.params.Now()))
			}
		case <-s.ticks:
			// The tick only triggers a publish. Its reading may be older than
			// one already published from another event.
			s.publish(s.clock.Now(s.params.Now()))
		case c := <-s.conditionsCh:
			s.lastConditions = c
			s.publish(s.clock.Now(s.params.Now()))
		}
	}
}

// onStreamEvent reports whether the display state changed.
func (s *Session) onStreamEvent(ev transport.StreamEvent) bool {
	if ev.IsStateChange() {
		s.connection = ev.State
		if ev.State == transport.Reconnecting {
			s.update = s.assembler.ConnectionLost()
		}
		return true
	}

	msg := *ev.Message
	update, err := s.assembler.OnMessage(msg)
	if err != nil {
		s.log.Warn("Dropping camera feed message", zap.Stringer("kind", msg.Kind), zap.String("wsConnId", ev.ConnId), zap.Error(err))
		s.metrics.IncStreamMalformed()
		return false
	}

	s.feedStarted = true
	s.update = update
	if msg.Kind == message.KindBinaryPayload {
		s.metrics.IncFramesAssembled()
	}
	return true
}

func (s *Session) publish(siteTime time.Time) {
	now := s.params.Now()

	snap := Snapshot{
		Mode:         s.params.Mode,
		Connection:   s.connection,
		FeedStarted:  s.feedStarted,
		Metadata:     s.update.Frame.Metadata,
		Image:        s.update.Frame.Image,
		ImageLoading: s.update.ImageLoading,
		SiteTime:     siteTime,
		Conditions:   s.lastConditions,
		UpdatedAt:    now,
	}

	if snap.SiteTimeKnown() {
		snap.SyncedAgo = s.clock.SinceSync(now)
		s.metrics.SetClockSyncAge(snap.SyncedAgo.Seconds())
	}

	if m := snap.Metadata; m != nil {
		reference := siteTime
		if reference.IsZero() {
			reference = now
		}
		st := staleness.Evaluate(m.ShotDatetime, m.PeriodDuration(), reference, s.params.Tolerance)
		snap.Staleness = &st
		s.metrics.SetFrameLate(st.LateBy.Seconds())
	}

	snap.Texts = RenderTexts(snap, s.params.SiteName, s.params.Location)
	s.store.Publish(snap)
}
