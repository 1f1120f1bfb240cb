package notification

import "time"

// Status is the lifecycle state of a delivery record. Transitions are
// monotonic per record: pending -> sent|error, and error -> retrying -> sent|error.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusError    Status = "error"
	StatusRetrying Status = "retrying"
)

// Record is one persisted delivery attempt: one recipient over one channel.
// The Payload snapshot carries everything needed to resend without re-running
// recipient resolution.
type Record struct {
	ID           int64      `json:"id"`
	UserID       string     `json:"user_id"`
	EventType    string     `json:"event_type"`
	Channel      string     `json:"channel"`
	Status       Status     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Payload      []byte     `json:"payload,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

// NewRecord builds a pending record for one (recipient, channel) pair and
// captures the single-channel payload snapshot.
func NewRecord(rcpt Recipient, req *Request, channel string) (*Record, error) {
	snap := NewSnapshot(rcpt, req)
	payload, err := snap.Encode()
	if err != nil {
		return nil, err
	}
	return &Record{
		UserID:    rcpt.UserID,
		EventType: req.EventType,
		Channel:   channel,
		Status:    StatusPending,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// MarkSent records a successful send.
func (r *Record) MarkSent() {
	now := time.Now().UTC()
	r.Status = StatusSent
	r.SentAt = &now
	r.ErrorMessage = ""
}

// MarkError records a failed send with the failure reason.
func (r *Record) MarkError(reason string) {
	r.Status = StatusError
	r.ErrorMessage = reason
}

// MarkRetrying flags the record as being retried. The error message is
// cleared so that a subsequent failure reflects the latest attempt only.
func (r *Record) MarkRetrying() {
	r.Status = StatusRetrying
	r.ErrorMessage = ""
}

// Terminal reports whether the record has reached a final state.
func (r *Record) Terminal() bool {
	return r.Status == StatusSent || r.Status == StatusError
}
