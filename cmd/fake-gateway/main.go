// fake-gateway mimics the WhatsApp message gateway for local development.
// It accepts sends, optionally fails the first N requests to exercise the
// retry path, and keeps received messages in memory for inspection.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

type message struct {
	Phone      string    `json:"phone"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"received_at"`
}

var (
	failFirstN = 0

	mu       sync.Mutex
	reqCount = 0
	received []message
)

func main() {
	// Parse fail first settings
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failFirstN = n
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("POST /send", handleSend)
	mux.HandleFunc("GET /messages", handleMessages)

	addr := ":8090"
	if v := os.Getenv("GATEWAY_PORT"); v != "" {
		addr = ":" + v
	}
	log.Printf("fake-gateway listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleSend(w http.ResponseWriter, r *http.Request) {
	var m message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if m.Phone == "" || m.Message == "" {
		http.Error(w, "phone and message are required", http.StatusBadRequest)
		return
	}

	mu.Lock()
	reqCount++
	count := reqCount
	mu.Unlock()

	// Simulate flakiness: first N requests -> 500
	if count <= failFirstN {
		log.Printf("FAILING (%d/%d) phone=%s body=%s", count, failFirstN, m.Phone, truncate(m.Message, 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	m.ReceivedAt = time.Now().UTC()
	mu.Lock()
	received = append(received, m)
	mu.Unlock()

	log.Printf("fake-gateway OK phone=%s body=%q", m.Phone, truncate(m.Message, 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"sent"}`))
}

func handleMessages(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	out := make([]message, len(received))
	copy(out, received)
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
