// mail-sink is a local stand-in for a provider send API: it accepts the
// same POST /send payload the HTTP transport emits, optionally failing
// the first N requests to exercise worker retries.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/jin09/BulkMail/internal/config"
)

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sink struct {
	failFirstN int
	delay      time.Duration

	mu       sync.Mutex
	reqCount int
}

func main() {
	cfg := config.FromEnv()
	s := &sink{
		failFirstN: cfg.Sink.FailFirstN,
		delay:      time.Duration(cfg.Sink.ResponseDelayMS) * time.Millisecond,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/send", s.handleSend)

	log.Printf("mail-sink listening on %s (fail_first_n=%d delay=%s)", cfg.Sink.Port, s.failFirstN, s.delay)
	log.Fatal(http.ListenAndServe(cfg.Sink.Port, mux))
}

func (s *sink) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if req.To == "" {
		http.Error(w, "missing recipient", http.StatusUnprocessableEntity)
		return
	}

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.reqCount++
	n := s.reqCount
	s.mu.Unlock()

	// Simulate flakiness: first N requests -> 503
	if n <= s.failFirstN {
		log.Printf("FAILING (%d/%d) to=%s subject=%q", n, s.failFirstN, req.To, truncate(req.Subject, 80))
		http.Error(w, "temporary failure", http.StatusServiceUnavailable)
		return
	}

	log.Printf("mail-sink OK to=%s subject=%q body=%q", req.To, truncate(req.Subject, 80), truncate(req.Body, 160))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"accepted":true}`))
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
