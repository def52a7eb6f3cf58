package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

// RunPath is the route starting a run
const RunPath = "/run"

type runResponse struct {
	Seed int64 `json:"seed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes a Resource over HTTP
type Server struct {
	resource *Resource
	log      log.Logger
	server   *http.Server
	listener net.Listener
	limiter  *rate.Limiter
}

// NewServer creates a server for the resource
func NewServer(resource *Resource, logger log.Logger) *Server {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	s := &Server{resource: resource, log: logger}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// WithRateLimit rejects run requests above limit per second with 429.
// A non-positive limit disables limiting.
func (s *Server) WithRateLimit(limit float64, burst int) *Server {
	if limit <= 0 {
		s.limiter = nil
		return s
	}
	if burst < 1 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	return s
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(RunPath, s.handleRun).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

// Start listens on addr and serves in the background
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = l
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Trigger server stopped", "err", err)
		}
	}()
	s.log.Info("Trigger server started", "addr", l.Addr().String())
	return nil
}

// Addr returns the address the server listens on
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many run requests"})
		return
	}
	q := r.URL.Query()
	req := Request{
		Filters:  q.Get("filters"),
		Category: q.Get("category"),
		Options:  q.Get("options"),
	}
	if raw := q.Get("seed"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid seed: " + raw})
			return
		}
		req.Seed = &seed
	}

	// a run outlives the request that started it
	seed, err := s.resource.Run(context.WithoutCancel(r.Context()), req)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidOptions):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case err != nil:
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		s.writeJSON(w, http.StatusOK, runResponse{Seed: seed})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Failed to write response", "err", err)
	}
}
