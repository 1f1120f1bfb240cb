// Package api fronts the dispatch core with a JSON-over-HTTP surface.
// Inbound requests are queued to NSQ for the worker; retries run inline so
// their outcome maps onto the response status.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/apporte/notify/internal/dispatch"
	"github.com/apporte/notify/internal/logging"
	"github.com/apporte/notify/internal/notification"
	"github.com/apporte/notify/internal/store"
	"github.com/apporte/notify/internal/tracing"
)

// Publisher enqueues a task body on a topic. Satisfied by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Retrier runs the retry path of the dispatch engine.
type Retrier interface {
	Retry(ctx context.Context, id int64) error
}

// RecordReader is the read/housekeeping surface over delivery records.
type RecordReader interface {
	FindRecord(ctx context.Context, id int64) (*notification.Record, error)
	ListRecords(ctx context.Context, f store.Filter) ([]notification.Record, error)
	CountRecords(ctx context.Context, f store.Filter) (int64, error)
	DeleteRecord(ctx context.Context, id int64) error
	Statistics(ctx context.Context, windowDays int) (*store.Statistics, error)
}

// Server holds the HTTP handlers for the produced API surface.
type Server struct {
	records RecordReader
	retrier Retrier
	prod    Publisher
	topic   string
	log     *logging.Logger
}

// NewServer wires the API server.
func NewServer(records RecordReader, retrier Retrier, prod Publisher, topic string) *Server {
	return &Server{
		records: records,
		retrier: retrier,
		prod:    prod,
		topic:   topic,
		log:     logging.New("notify-api"),
	}
}

// Register attaches all routes to the mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/notifications", s.handleEnqueue)
	mux.HandleFunc("POST /v1/notifications/{id}/retry", s.handleRetry)
	mux.HandleFunc("GET /v1/notifications/{id}", s.handleGet)
	mux.HandleFunc("GET /v1/notifications", s.handleList)
	mux.HandleFunc("DELETE /v1/notifications/{id}", s.handleDelete)
	mux.HandleFunc("GET /v1/users/{id}/notifications", s.handleUserList)
	mux.HandleFunc("GET /v1/statistics", s.handleStatistics)
}

// handleEnqueue validates the request and publishes it for the worker.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "api.EnqueueNotification")
	defer span.End()

	var req notification.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	span.SetAttributes(attribute.String("event_type", req.EventType))

	task := notification.NewTask(req, tracing.PropagateTraceToNSQ(ctx))
	body, err := json.Marshal(task)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode task failed")
		return
	}
	if err := s.prod.Publish(s.topic, body); err != nil {
		tracing.SetSpanError(ctx, err)
		s.log.WithContext(ctx).WithError(err).Error("task publish failed")
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}

	s.log.WithContext(ctx).WithEventType(req.EventType).Info("notification request queued")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "queued",
		"event_type": req.EventType,
	})
}

// handleRetry runs the retry path inline and maps the engine's error
// taxonomy onto HTTP status codes.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "api.RetryNotification")
	defer span.End()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	err = s.retrier.Retry(ctx, id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "sent"})
	case errors.Is(err, dispatch.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrMalformedSnapshot):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		tracing.SetSpanError(ctx, err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	rec, err := s.records.FindRecord(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.records.ListRecords(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.records.CountRecords(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"records": records,
	})
}

func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.UserID = r.PathValue("id")

	records, err := s.records.ListRecords(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	if err := s.records.DeleteRecord(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = d
	}

	stats, err := s.records.Statistics(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// filterFromQuery parses the common list/count filter parameters.
func filterFromQuery(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		Status:    q.Get("status"),
		Channel:   q.Get("channel"),
		EventType: q.Get("event_type"),
	}

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid start timestamp, want RFC3339")
		}
		f.Start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid end timestamp, want RFC3339")
		}
		f.End = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("invalid limit")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("invalid offset")
		}
		f.Offset = n
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
