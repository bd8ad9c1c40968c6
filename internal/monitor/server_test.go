package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/quantlab/stratrun/internal/harness"
	"github.com/quantlab/stratrun/internal/telemetry"
)

func testRouter(s *Server) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/progress", s.handleProgress).Methods(http.MethodGet)
	if s.collector != nil {
		router.Handle("/metrics", s.collector.Handler()).Methods(http.MethodGet)
	}
	return router
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(":0", telemetry.NewCollector())
	ts := httptest.NewServer(testRouter(server))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Bad health payload: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %q", body["status"])
	}
}

func TestProgressReturnsLatestEvent(t *testing.T) {
	server := NewServer(":0", nil)
	ts := httptest.NewServer(testRouter(server))
	defer ts.Close()

	server.Publish(harness.ProgressEvent{
		RunID:     "run-1",
		Completed: 3,
		Total:     10,
		Status:    "ok",
		Timestamp: time.Now(),
	})

	resp, err := http.Get(ts.URL + "/progress")
	if err != nil {
		t.Fatalf("Progress request failed: %v", err)
	}
	defer resp.Body.Close()

	var event harness.ProgressEvent
	if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
		t.Fatalf("Bad progress payload: %v", err)
	}
	if event.RunID != "run-1" || event.Completed != 3 || event.Total != 10 {
		t.Errorf("Unexpected event %+v", event)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	collector := telemetry.NewCollector()
	collector.CacheHits.Inc()

	server := NewServer(":0", collector)
	ts := httptest.NewServer(testRouter(server))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("Metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /metrics, got %d", resp.StatusCode)
	}
}

func (s *Server) subscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

func TestWebsocketDisconnectReleasesSubscriber(t *testing.T) {
	server := NewServer(":0", nil)
	router := mux.NewRouter()
	router.HandleFunc("/ws/progress", server.handleProgressFeed)
	ts := httptest.NewServer(router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Websocket dial failed: %v", err)
	}

	waitFor := func(want int, what string) {
		deadline := time.Now().Add(2 * time.Second)
		for server.subscriberCount() != want {
			if time.Now().After(deadline) {
				t.Fatalf("Timed out waiting for %s (subscribers=%d)", what, server.subscriberCount())
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	waitFor(1, "subscriber registration")

	// Close with no events in flight: the server must still notice
	conn.Close()
	waitFor(0, "subscriber removal after disconnect")
}

func TestPublishWithoutSubscribers(t *testing.T) {
	server := NewServer(":0", nil)
	// Must not block or panic with no websocket subscribers attached
	for i := 0; i < 100; i++ {
		server.Publish(harness.ProgressEvent{Completed: i, Total: 100})
	}
}
