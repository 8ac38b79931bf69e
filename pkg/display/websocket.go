package display

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	utils "github.com/nj-vs-vh/tunka-telemetry-server/pkg/util"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// checkOrigin rejects denylisted origins, then allows everything or only the
// allowlist. Non-browser clients send no Origin and are let through.
func checkOrigin(r *http.Request, params ServerParams) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if utils.Contains(origin, params.DenylistedOrigins) {
		return false
	}

	if params.AllowAllOrigins {
		return true
	}

	return utils.Contains(origin, params.AllowlistedOrigins)
}

// onWsRequest handles GET /ws/state: every new snapshot is pushed as a JSON
// text message. Slow clients skip intermediate snapshots.
func (s *Server) onWsRequest(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(
		zap.String("wsConnId", s.stringGen.GetRandomString(6)),
	)

	sub, err := s.params.Store.Subscribe()
	if err != nil {
		log.Warn("Refusing display subscription", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	defer s.params.Store.Unsubscribe(sub.Id)

	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade HTTP request to WebSocket connection", zap.Error(err))
		return
	}
	defer c.Close()

	log.Info("Display subscriber connected")
	s.metrics.AddDisplaySubscribers(1)
	defer s.metrics.AddDisplaySubscribers(-1)

	// Incoming messages are ignored; the read loop only notices the close.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					log.Warn("Display subscriber closed unexpectedly", zap.Error(err))
				}
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	shutdown := s.shutdownSignal()
	for {
		select {
		case <-clientGone:
			log.Info("Display subscriber disconnected")
			return
		case <-shutdown:
			c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteTimeout))
			return
		case <-ping.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				log.Info("Display subscriber ping failed", zap.Error(err))
				return
			}
		case snap, ok := <-sub.Updates:
			if !ok {
				c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "viewer stopped"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			payload, err := json.Marshal(newStateView(snap))
			if err != nil {
				log.Error("Failed to encode snapshot", zap.Error(err))
				continue
			}
			c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Info("Display subscriber write failed", zap.Error(err))
				return
			}
		}
	}
}
