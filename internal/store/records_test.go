package store

import (
	"reflect"
	"testing"
	"time"
)

func TestFilterWhere(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		f          Filter
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "empty",
			f:          Filter{},
			wantClause: "1=1",
			wantArgs:   nil,
		},
		{
			name:       "status only",
			f:          Filter{Status: "error"},
			wantClause: "1=1 AND status = $1",
			wantArgs:   []any{"error"},
		},
		{
			name:       "status and channel",
			f:          Filter{Status: "sent", Channel: "email"},
			wantClause: "1=1 AND status = $1 AND channel = $2",
			wantArgs:   []any{"sent", "email"},
		},
		{
			name:       "user and window",
			f:          Filter{UserID: "user-1", Start: start, End: end},
			wantClause: "1=1 AND user_id = $1 AND created_at >= $2 AND created_at <= $3",
			wantArgs:   []any{"user-1", start, end},
		},
		{
			name:       "everything",
			f:          Filter{Status: "error", Channel: "whatsapp", EventType: "STATUS_UPDATE", UserID: "u", Start: start},
			wantClause: "1=1 AND status = $1 AND channel = $2 AND event_type = $3 AND user_id = $4 AND created_at >= $5",
			wantArgs:   []any{"error", "whatsapp", "STATUS_UPDATE", "u", start},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clause, args := tc.f.where()
			if clause != tc.wantClause {
				t.Errorf("clause = %q, want %q", clause, tc.wantClause)
			}
			if !reflect.DeepEqual(args, tc.wantArgs) {
				t.Errorf("args = %v, want %v", args, tc.wantArgs)
			}
		})
	}
}

func TestUserStale(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	u := User{LastSync: now.Add(-30 * time.Minute)}
	if u.Stale(now, time.Hour) {
		t.Error("recently synced user should not be stale")
	}
	if !u.Stale(now, 10*time.Minute) {
		t.Error("user past the TTL should be stale")
	}
	if !(&User{}).Stale(now, time.Hour) {
		t.Error("never-synced user should always be stale")
	}
	if u.Stale(now.Add(-25*time.Minute), 10*time.Minute) {
		t.Error("staleness must follow the reference time, not the wall clock")
	}
}
