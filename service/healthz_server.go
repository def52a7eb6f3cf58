package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// HealthzServer answers health checks with the state of the reporter
type HealthzServer struct {
	ctx    context.Context
	server *http.Server
	log    log.Logger

	mu      sync.RWMutex
	running func() bool
}

type healthzResponse struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
}

// SetRunning installs the check reporting whether a test run is in progress
func (h *HealthzServer) SetRunning(running func() bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = running
}

func (h *HealthzServer) Handler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(hdlr)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	h.server = &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	if h.log != nil {
		h.log.Trace("Received health check request", "path", r.URL.Path)
	}
	resp := healthzResponse{Status: "ok"}
	h.mu.RLock()
	if h.running != nil {
		resp.Running = h.running()
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}
