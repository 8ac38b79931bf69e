package display

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nj-vs-vh/tunka-telemetry-server/internal"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/frame"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/logging"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/metrics"
	utils "github.com/nj-vs-vh/tunka-telemetry-server/pkg/util"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/viewer"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type ServerParams struct {
	ListenAddress string

	AllowAllOrigins    bool
	AllowlistedOrigins []string
	DenylistedOrigins  []string

	Store   *internal.SnapshotStore[viewer.Snapshot]
	Images  *frame.ImageStore
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Server exposes the latest viewer snapshot over HTTP and a push websocket.
type Server struct {
	params   ServerParams
	upgrader *websocket.Upgrader
	router   chi.Router

	mut_shutdown sync.RWMutex
	shutdown     <-chan struct{}

	log       *zap.Logger
	metrics   *metrics.Metrics
	stringGen *utils.RandomStringGenerator
}

func NewServer(params ServerParams) (*Server, error) {
	if params.Store == nil {
		return nil, errors.New("display server requires a snapshot store")
	}
	if params.Images == nil {
		return nil, errors.New("display server requires an image store")
	}

	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	s := &Server{
		params: params,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, params)
			},
		},
		shutdown: make(chan struct{}),

		log:       logger.With(zap.String("component", "DisplayServer")),
		metrics:   params.Metrics,
		stringGen: utils.CreateRandomstringGenerator(time.Now().UnixMicro()),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(logging.RequestLogger(s.log))
	r.Use(metrics.RequestMiddleware(s.metrics))

	r.Get("/healthz", s.getHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.getState)
		r.Get("/frame/{imageID}", s.getFrame)
	})
	r.Get("/ws/state", s.onWsRequest)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) shutdownSignal() <-chan struct{} {
	s.mut_shutdown.RLock()
	defer s.mut_shutdown.RUnlock()
	return s.shutdown
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write(payload)
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	snap, version := s.params.Store.Latest()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"connection": snap.Connection,
		"version":    version,
	})
}

// getState handles GET /api/state.
func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	snap, version := s.params.Store.Latest()
	if version == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": viewer.TextLoading})
		return
	}
	writeJSON(w, http.StatusOK, newStateView(snap))
}

// getFrame handles GET /api/frame/{imageID}. Superseded frames are gone.
func (s *Server) getFrame(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "imageID"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	data, ref, ok := s.params.Images.Get(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", ref.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	shutdown := make(chan struct{})
	s.mut_shutdown.Lock()
	s.shutdown = shutdown
	s.mut_shutdown.Unlock()

	server := &http.Server{
		Addr:              s.params.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()

		s.log.Sugar().Infof("Starting display server at %s", s.params.ListenAddress)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Unexpected display server close!", zap.Error(err))
			serveErr <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	close(shutdown)

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownRelease()
	s.log.Info("Attempting to trigger shutdown of display server")

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		s.log.Error("Failed to gracefully shut down display server", zap.Error(shutdownErr))
		if err == nil {
			err = shutdownErr
		}
	} else {
		s.log.Info("Successfully shutdown display server")
	}

	wg.Wait()
	return err
}
