package notification

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotVersion is the current payload snapshot schema version.
const SnapshotVersion = 1

// Snapshot is the serialized copy of a resolved recipient plus the
// originating event, stored on each delivery record. It is always
// single-channel: the channel lives on the record, not in the snapshot.
type Snapshot struct {
	Version       int                `json:"version"`
	Recipient     *RecipientSnapshot `json:"recipient"`
	Event         EventSnapshot      `json:"event"`
	RetryAttempts int                `json:"retry_attempts"`
	CreatedAt     time.Time          `json:"created_at"`
}

// RecipientSnapshot mirrors Recipient field-for-field so the snapshot schema
// is explicit rather than an open map.
type RecipientSnapshot struct {
	UserID        string         `json:"user_id"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone,omitempty"`
	Name          string         `json:"name,omitempty"`
	RecipientType string         `json:"recipient_type"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// EventSnapshot captures the event fields of the originating request.
type EventSnapshot struct {
	Type       string         `json:"type"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewSnapshot captures the recipient and event data needed to resend later.
func NewSnapshot(rcpt Recipient, req *Request) Snapshot {
	now := time.Now().UTC()
	return Snapshot{
		Version: SnapshotVersion,
		Recipient: &RecipientSnapshot{
			UserID:        rcpt.UserID,
			Email:         rcpt.Email,
			Phone:         rcpt.Phone,
			Name:          rcpt.Name,
			RecipientType: rcpt.RecipientType,
			Metadata:      rcpt.Metadata,
		},
		Event: EventSnapshot{
			Type:       req.EventType,
			EntityType: req.EntityType,
			EntityID:   req.EntityID,
			Context:    req.Context,
			Timestamp:  now,
		},
		CreatedAt: now,
	}
}

// Encode serializes the snapshot for storage.
func (s Snapshot) Encode() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// DecodeSnapshot parses a stored snapshot payload.
func DecodeSnapshot(payload []byte) (Snapshot, error) {
	var s Snapshot
	if len(payload) == 0 {
		return s, fmt.Errorf("decode snapshot: empty payload")
	}
	if err := json.Unmarshal(payload, &s); err != nil {
		return s, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// RebuildRecipient reconstructs the recipient captured at send time. The
// record's user id fills in if the snapshot predates the user_id field.
func (s Snapshot) RebuildRecipient(rec *Record) Recipient {
	rcpt := Recipient{
		UserID:        s.Recipient.UserID,
		Email:         s.Recipient.Email,
		Phone:         s.Recipient.Phone,
		Name:          s.Recipient.Name,
		RecipientType: s.Recipient.RecipientType,
		Metadata:      s.Recipient.Metadata,
	}
	if rcpt.UserID == "" {
		rcpt.UserID = rec.UserID
	}
	return rcpt
}

// RebuildRequest reconstructs a minimal single-channel request sufficient to
// resend on the record's channel. Missing event fields use documented
// defaults: entity type "user", entity id from the record, empty context.
func (s Snapshot) RebuildRequest(rec *Record) *Request {
	entityType := s.Event.EntityType
	if entityType == "" {
		entityType = "user"
	}
	entityID := s.Event.EntityID
	if entityID == "" {
		entityID = rec.UserID
	}
	ctx := s.Event.Context
	if ctx == nil {
		ctx = map[string]any{}
	}
	return &Request{
		EventType:      rec.EventType,
		EntityType:     entityType,
		EntityID:       entityID,
		Channels:       []string{rec.Channel},
		RecipientTypes: []string{RecipientManual},
		Context:        ctx,
	}
}
