package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/looplab/fsm"
	telemetryerrors "github.com/nj-vs-vh/tunka-telemetry-server/pkg/errors"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/message"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/metrics"
	utils "github.com/nj-vs-vh/tunka-telemetry-server/pkg/util"
	"go.uber.org/zap"
)

const (
	DefaultReconnectInitialDelay = time.Second
	DefaultReconnectMaxDelay     = 30 * time.Second
	DefaultEventBuffer           = 64
	DefaultMaxReadMessageSize    = 64 << 20
)

// StreamEvent is either a classified message (Message != nil) or a change of
// connection state. State is the connection state when the event was emitted.
type StreamEvent struct {
	Message *message.InboundMessage
	State   ConnectionState
	ConnId  string
}

func (e StreamEvent) IsStateChange() bool {
	return e.Message == nil
}

type StreamClientParams struct {
	URL    string
	Dialer *websocket.Dialer
	Header http.Header

	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration

	MaxReadMessageSize int64
	EventBuffer        int

	Parser  message.Parser
	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type ClientClosedError struct{}

func (e *ClientClosedError) Error() string {
	return "Stream client is closed"
}

type ClientAlreadyOpenError struct{}

func (e *ClientAlreadyOpenError) Error() string {
	return "Stream client is already open"
}

// StreamClient keeps a websocket connection to the camera feed open,
// reconnecting with exponential backoff until closed. Everything it observes
// comes out of Events() in order.
type StreamClient struct {
	params StreamClientParams
	dialer *websocket.Dialer

	machine *fsm.FSM
	backoff *backoff.ExponentialBackOff
	events  chan StreamEvent

	mut_lifecycle sync.Mutex
	opened        bool
	closed        bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	log       *zap.Logger
	metrics   *metrics.Metrics
	stringGen *utils.RandomStringGenerator
}

func NewStreamClient(params StreamClientParams) *StreamClient {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	log := logger.With(zap.String("component", "StreamClient"), zap.String("url", params.URL))

	if params.ReconnectInitialDelay <= 0 {
		params.ReconnectInitialDelay = DefaultReconnectInitialDelay
	}
	if params.ReconnectMaxDelay <= 0 {
		params.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if params.MaxReadMessageSize <= 0 {
		params.MaxReadMessageSize = DefaultMaxReadMessageSize
	}
	if params.EventBuffer <= 0 {
		params.EventBuffer = DefaultEventBuffer
	}
	if params.Now == nil {
		params.Now = time.Now
	}

	dialer := params.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = params.ReconnectInitialDelay
	b.MaxInterval = params.ReconnectMaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return &StreamClient{
		params:  params,
		dialer:  dialer,
		machine: newConnectionFSM(log),
		backoff: b,
		events:  make(chan StreamEvent, params.EventBuffer),

		log:       log,
		metrics:   params.Metrics,
		stringGen: utils.CreateRandomstringGenerator(time.Now().UnixMicro()),
	}
}

// Events is closed once the client has shut down.
func (c *StreamClient) Events() <-chan StreamEvent {
	return c.events
}

func (c *StreamClient) State() ConnectionState {
	return parseConnectionState(c.machine.Current())
}

// Open starts the connection loop. The client runs until Close is called or
// ctx is done.
func (c *StreamClient) Open(ctx context.Context) error {
	c.mut_lifecycle.Lock()
	defer c.mut_lifecycle.Unlock()

	if c.closed {
		return &ClientClosedError{}
	}
	if c.opened {
		return &ClientAlreadyOpenError{}
	}

	if _, err := fire(ctx, c.machine, eventOpen); err != nil {
		return err
	}
	c.opened = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(runCtx)
	}()

	return nil
}

// Close stops reconnecting, closes the socket and waits for the connection
// loop to exit. Safe to call more than once.
func (c *StreamClient) Close() error {
	c.mut_lifecycle.Lock()
	alreadyClosed := c.closed
	c.closed = true
	cancel := c.cancel
	opened := c.opened
	c.mut_lifecycle.Unlock()

	if alreadyClosed {
		c.wg.Wait()
		return nil
	}

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	if !opened {
		close(c.events)
	}
	return nil
}

func (c *StreamClient) run(ctx context.Context) {
	defer close(c.events)
	defer c.finish()

	c.publishState(ctx, "")

	for {
		connId := c.stringGen.GetRandomString(6)
		log := c.log.With(zap.String("wsConnId", connId))

		conn, err := c.dial(ctx, log)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("Failed to connect to camera feed", zap.Error(err))
		} else {
			c.backoff.Reset()
			c.transition(ctx, eventHandshake, connId)
			log.Info("Connected to camera feed")

			c.readLoop(ctx, conn, connId, log)
			if ctx.Err() != nil {
				return
			}
		}

		c.transition(ctx, eventConnectionLost, connId)
		c.metrics.IncStreamReconnects()

		if !c.waitReconnect(ctx, log) {
			return
		}
		c.transition(ctx, eventRetry, "")
	}
}

func (c *StreamClient) dial(ctx context.Context, log *zap.Logger) (*websocket.Conn, error) {
	log.Debug("Dialing camera feed")
	conn, resp, err := c.dialer.DialContext(ctx, c.params.URL, c.params.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, telemetryerrors.Categorize(err, telemetryerrors.CategoryTransport)
	}
	conn.SetReadLimit(c.params.MaxReadMessageSize)
	return conn, nil
}

func (c *StreamClient) readLoop(ctx context.Context, conn *websocket.Conn, connId string, log *zap.Logger) {
	done := make(chan struct{})
	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			log.Info("Closing camera feed connection")
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	defer func() {
		close(done)
		wg.Wait()
		conn.Close()
	}()

	expectedCloseErrors := []int{websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived}
	for {
		msgType, payload, msgErr := conn.ReadMessage()
		if msgErr != nil {
			if ctx.Err() != nil {
				return
			}

			if websocket.IsCloseError(msgErr, expectedCloseErrors...) {
				if closeError, ok := msgErr.(*websocket.CloseError); ok {
					log.Info("Camera feed closed the connection", zap.Int("closeCode", closeError.Code), zap.String("closeMsg", closeError.Text))
				} else {
					log.Info("Camera feed closed the connection")
				}
				return
			}

			if websocket.IsUnexpectedCloseError(msgErr, expectedCloseErrors...) {
				log.Warn("Camera feed connection closed unexpectedly", zap.Error(msgErr))
				return
			}

			if strings.Contains(msgErr.Error(), "use of closed network connection") {
				log.Info("Camera feed connection closed locally")
				return
			}

			log.Warn("Camera feed read failed", zap.Error(msgErr))
			return
		}

		msg, err := c.classify(msgType, payload)
		if err != nil {
			log.Warn("Dropping camera feed message", zap.Error(err), zap.Int("size", len(payload)))
			c.metrics.IncStreamMalformed()
			continue
		}

		c.metrics.IncStreamMessage(msg.Kind.String())
		if !c.emit(ctx, StreamEvent{Message: &msg, State: Connected, ConnId: connId}) {
			return
		}
	}
}

func (c *StreamClient) classify(msgType int, payload []byte) (message.InboundMessage, error) {
	receivedAt := c.params.Now()

	switch msgType {
	case websocket.BinaryMessage:
		return message.NewBinaryMessage(payload, receivedAt), nil
	case websocket.TextMessage:
		metadata, err := c.params.Parser.ParseMetadata(payload)
		if err != nil {
			return message.InboundMessage{}, err
		}
		return message.NewMetadataMessage(metadata, receivedAt), nil
	}

	return message.InboundMessage{}, telemetryerrors.Categorize(
		&telemetryerrors.UnexpectedMessageType{MessageType: msgType},
		telemetryerrors.CategoryMalformed)
}

func (c *StreamClient) waitReconnect(ctx context.Context, log *zap.Logger) bool {
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = c.params.ReconnectMaxDelay
	}
	log.Info("Reconnecting to camera feed", zap.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *StreamClient) transition(ctx context.Context, event string, connId string) {
	changed, err := fire(ctx, c.machine, event)
	if err != nil {
		c.log.Error("Connection state machine rejected event", zap.String("event", event), zap.Error(err))
		return
	}
	if changed {
		c.publishState(ctx, connId)
	}
}

func (c *StreamClient) publishState(ctx context.Context, connId string) {
	state := c.State()
	c.metrics.SetConnectionState(int(state))
	c.emit(ctx, StreamEvent{State: state, ConnId: connId})
}

// finish moves the machine to Disconnected and makes a best effort to tell the
// consumer, who may already have stopped reading.
func (c *StreamClient) finish() {
	if _, err := fire(context.Background(), c.machine, eventClose); err != nil {
		c.log.Error("Failed to mark stream client disconnected", zap.Error(err))
	}
	c.metrics.SetConnectionState(int(Disconnected))

	select {
	case c.events <- StreamEvent{State: Disconnected}:
	default:
	}
	c.log.Info("Stream client stopped")
}

func (c *StreamClient) emit(ctx context.Context, ev StreamEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
