// Package monitor serves the harness monitoring HTTP surface: health,
// prometheus metrics, a JSON progress snapshot and a websocket progress
// feed.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quantlab/stratrun/internal/harness"
	"github.com/quantlab/stratrun/internal/telemetry"
)

// Server exposes sweep progress over HTTP and websocket
type Server struct {
	addr      string
	collector *telemetry.Collector

	mu          sync.RWMutex
	latest      harness.ProgressEvent
	subscribers map[chan harness.ProgressEvent]struct{}

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer creates a monitoring server bound to addr
func NewServer(addr string, collector *telemetry.Collector) *Server {
	return &Server{
		addr:        addr,
		collector:   collector,
		subscribers: make(map[chan harness.ProgressEvent]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Publish records a progress event and fans it out to websocket
// subscribers. Safe for concurrent use; this is the harness OnProgress
// callback.
func (s *Server) Publish(event harness.ProgressEvent) {
	s.mu.Lock()
	s.latest = event
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Slow subscriber, drop the event rather than block the sweep
		}
	}
	s.mu.Unlock()
}

// Start runs the HTTP server until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/progress", s.handleProgress).Methods(http.MethodGet)
	router.HandleFunc("/ws/progress", s.handleProgressFeed)
	if s.collector != nil {
		router.Handle("/metrics", s.collector.Handler()).Methods(http.MethodGet)
	}

	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Monitor server shutdown failed")
		}
	}()

	log.Info().Str("addr", s.addr).Msg("Monitor server listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(latest)
}

// handleProgressFeed streams progress events to a websocket client until
// it disconnects
func (s *Server) handleProgressFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	events := make(chan harness.ProgressEvent, 16)
	s.mu.Lock()
	s.subscribers[events] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subscribers, events)
		s.mu.Unlock()
	}()

	// Read pump: inbound payloads are discarded, but the read surfaces a
	// disconnect even while no events are flowing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-events:
			if err := conn.WriteJSON(event); err != nil {
				log.Debug().Err(err).Msg("Websocket write failed, dropping subscriber")
				return
			}
		case <-gone:
			return
		}
	}
}
