package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apporte/notify/internal/store"
)

// Counter provides the record breakdown for the health payload.
type Counter interface {
	HealthCounts(ctx context.Context) (*store.HealthCounts, error)
}

type Status struct {
	Status    string              `json:"status"` // UP or DOWN
	Timestamp time.Time           `json:"timestamp"`
	Database  bool                `json:"database"`
	Counts    *store.HealthCounts `json:"notifications,omitempty"`
	Message   string              `json:"message,omitempty"`
}

// HTTPHandler returns an HTTP handler that reports service health: database
// reachability plus record counts by status.
func HTTPHandler(pool *pgxpool.Pool, counter Counter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{Status: "UP", Timestamp: time.Now().UTC(), Database: true}

		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				st.Status = "DOWN"
				st.Database = false
				st.Message = "db ping failed"
			}
		}

		if st.Database && counter != nil {
			counts, err := counter.HealthCounts(ctx)
			if err != nil {
				st.Message = "record counts unavailable"
			} else {
				st.Counts = counts
			}
		}

		if st.Status != "UP" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
