package store

import (
	"context"
	"fmt"
	"time"
)

// Statistics is a read-only aggregation over delivery records within a time
// window. Derived entirely from the records table; no engine state involved.
type Statistics struct {
	PeriodDays  int              `json:"period_days"`
	Since       time.Time        `json:"since"`
	Total       int64            `json:"total"`
	Sent        int64            `json:"sent"`
	Error       int64            `json:"error"`
	Pending     int64            `json:"pending"`
	SuccessRate string           `json:"success_rate"`
	ByChannel   map[string]int64 `json:"by_channel"`
	ByEventType map[string]int64 `json:"by_event_type"`
	ByDay       map[string]int64 `json:"by_day"`
}

// HealthCounts is the record breakdown reported by the health endpoint.
type HealthCounts struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Error   int64 `json:"error"`
}

// Statistics aggregates record counts for the last windowDays days.
func (s *Store) Statistics(ctx context.Context, windowDays int) (*Statistics, error) {
	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	stats := &Statistics{
		PeriodDays:  windowDays,
		Since:       since,
		ByChannel:   map[string]int64{},
		ByEventType: map[string]int64{},
		ByDay:       map[string]int64{},
	}

	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM notify.notifications
		WHERE created_at >= $1
		GROUP BY status`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.Total += n
		switch status {
		case "sent":
			stats.Sent = n
		case "error":
			stats.Error = n
		case "pending":
			stats.Pending = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		stats.SuccessRate = fmt.Sprintf("%.1f%%", float64(stats.Sent)/float64(stats.Total)*100)
	} else {
		stats.SuccessRate = "0%"
	}

	if err := s.groupCounts(ctx, `
		SELECT channel, COUNT(*)
		FROM notify.notifications
		WHERE created_at >= $1
		GROUP BY channel`, since, stats.ByChannel); err != nil {
		return nil, err
	}

	if err := s.groupCounts(ctx, `
		SELECT event_type, COUNT(*)
		FROM notify.notifications
		WHERE created_at >= $1
		GROUP BY event_type
		ORDER BY COUNT(*) DESC
		LIMIT 5`, since, stats.ByEventType); err != nil {
		return nil, err
	}

	if err := s.groupCounts(ctx, `
		SELECT to_char(created_at, 'YYYY-MM-DD'), COUNT(*)
		FROM notify.notifications
		WHERE created_at >= $1
		GROUP BY 1`, since, stats.ByDay); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *Store) groupCounts(ctx context.Context, query string, since time.Time, into map[string]int64) error {
	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

// HealthCounts returns all-time record counts by status.
func (s *Store) HealthCounts(ctx context.Context) (*HealthCounts, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM notify.notifications
		GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hc := &HealthCounts{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		hc.Total += n
		switch status {
		case "pending":
			hc.Pending = n
		case "sent":
			hc.Sent = n
		case "error":
			hc.Error = n
		}
	}
	return hc, rows.Err()
}
