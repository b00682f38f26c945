// Package ops serves the operator endpoints: Prometheus metrics, the JSON
// status report and a websocket stream of that report.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fmradiod/internal/device"
	"github.com/fmradiod/internal/radio"
	"github.com/fmradiod/internal/status"
)

// StatusSource yields the current radio snapshot.
type StatusSource interface {
	Status(ctx context.Context) (radio.Status, error)
}

// Config configures the ops server.
type Config struct {
	Host           string
	Port           int
	StreamInterval time.Duration
}

// Server is the ops HTTP server.
type Server struct {
	cfg      Config
	source   StatusSource
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	http     *http.Server

	done     chan struct{}
	doneOnce sync.Once
}

// NewServer creates the server. A nil gatherer leaves /metrics unregistered.
func NewServer(cfg Config, source StatusSource, gatherer prometheus.Gatherer) *Server {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = time.Second
	}
	s := &Server{
		cfg:      cfg,
		source:   source,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 8192,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the endpoint mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/stream", s.handleStream)
	return mux
}

// ListenAndServe serves until Shutdown.
func (s *Server) ListenAndServe() error {
	log.Printf("Ops server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open streams and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.http.Shutdown(ctx)
}

func (s *Server) report(ctx context.Context) (status.Report, error) {
	st, err := s.source.Status(ctx)
	if err != nil {
		return status.Report{}, err
	}
	return status.NewReport(st), nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	rep, err := s.report(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": device.Code(err)})
		return
	}
	json.NewEncoder(w).Encode(rep)
}

// handleStream pushes the report every StreamInterval until the client goes
// away or the server shuts down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Ops: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Reads only serve to notice the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()

	for {
		rep, err := s.report(r.Context())
		var msg any = rep
		if err != nil {
			msg = map[string]string{"error": device.Code(err)}
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}

		select {
		case <-ticker.C:
		case <-gone:
			return
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
