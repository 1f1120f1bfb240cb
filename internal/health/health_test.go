package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apporte/notify/internal/store"
)

type fakeCounter struct {
	counts *store.HealthCounts
	err    error
}

func (f *fakeCounter) HealthCounts(_ context.Context) (*store.HealthCounts, error) {
	return f.counts, f.err
}

func TestHealthUpWithCounts(t *testing.T) {
	counter := &fakeCounter{counts: &store.HealthCounts{Total: 10, Sent: 8, Error: 1, Pending: 1}}
	handler := HTTPHandler(nil, counter)

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != "UP" || !st.Database {
		t.Errorf("status = %+v", st)
	}
	if st.Counts == nil || st.Counts.Total != 10 {
		t.Errorf("counts = %+v", st.Counts)
	}
}

func TestHealthCountsUnavailable(t *testing.T) {
	handler := HTTPHandler(nil, &fakeCounter{err: errors.New("db slow")})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, counts failure must not mark the service down", w.Code)
	}
	var st Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != "UP" || st.Counts != nil || st.Message == "" {
		t.Errorf("status = %+v", st)
	}
}
