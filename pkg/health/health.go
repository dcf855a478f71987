// Package health serves liveness endpoints for container orchestration.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

type Server struct {
	srv   *http.Server
	ready atomic.Bool
}

func NewServer(addr string) *Server {
	s := &Server{}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("starting"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetReady flips the /ready endpoint once the event queue is registered.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start blocks serving until Stop is called; it returns
// http.ErrServerClosed on clean shutdown.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
