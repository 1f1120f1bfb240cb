package notification

import (
	"testing"
	"time"
)

func testRecipient() Recipient {
	return Recipient{
		UserID:        "user-1",
		Email:         "user1@example.com",
		Phone:         "+4915112345678",
		Name:          "User One",
		RecipientType: RecipientProjectOwner,
	}
}

func testRequest() *Request {
	return &Request{
		EventType:      "PROJECT_READY_REVIEW",
		EntityType:     "project",
		EntityID:       "proj-42",
		Channels:       []string{ChannelEmail, ChannelWhatsApp},
		RecipientTypes: []string{RecipientProjectOwner},
		Context:        map[string]any{"projectTitle": "Website Redesign"},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := NewSnapshot(testRecipient(), testRequest())

	b, err := snap.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeSnapshot(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != SnapshotVersion {
		t.Errorf("version = %d, want %d", got.Version, SnapshotVersion)
	}
	if got.Recipient == nil {
		t.Fatal("recipient missing after round trip")
	}
	if got.Recipient.Email != "user1@example.com" {
		t.Errorf("recipient email = %q", got.Recipient.Email)
	}
	if got.Event.Type != "PROJECT_READY_REVIEW" {
		t.Errorf("event type = %q", got.Event.Type)
	}
	if got.Event.EntityID != "proj-42" {
		t.Errorf("entity id = %q", got.Event.EntityID)
	}
}

func TestDecodeSnapshotErrors(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"not json", []byte("{not json")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeSnapshot(tc.payload); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestRebuildRecipientFillsUserIDFromRecord(t *testing.T) {
	snap := Snapshot{
		Version:   SnapshotVersion,
		Recipient: &RecipientSnapshot{Email: "old@example.com", RecipientType: RecipientManual},
	}
	rec := &Record{UserID: "user-7", Channel: ChannelEmail, EventType: "STATUS_UPDATE"}

	rcpt := snap.RebuildRecipient(rec)
	if rcpt.UserID != "user-7" {
		t.Errorf("user id = %q, want user-7", rcpt.UserID)
	}
	if rcpt.Email != "old@example.com" {
		t.Errorf("email = %q", rcpt.Email)
	}
}

func TestRebuildRequestDefaults(t *testing.T) {
	snap := Snapshot{
		Version:   SnapshotVersion,
		Recipient: &RecipientSnapshot{UserID: "user-7", Email: "u@example.com", RecipientType: RecipientManual},
	}
	rec := &Record{
		UserID:    "user-7",
		EventType: "STATUS_UPDATE",
		Channel:   ChannelWhatsApp,
		CreatedAt: time.Now(),
	}

	req := snap.RebuildRequest(rec)
	if req.EventType != "STATUS_UPDATE" {
		t.Errorf("event type = %q", req.EventType)
	}
	if req.EntityType != "user" {
		t.Errorf("entity type = %q, want user", req.EntityType)
	}
	if req.EntityID != "user-7" {
		t.Errorf("entity id = %q, want user-7", req.EntityID)
	}
	if len(req.Channels) != 1 || req.Channels[0] != ChannelWhatsApp {
		t.Errorf("channels = %v, want [whatsapp]", req.Channels)
	}
	if len(req.RecipientTypes) != 1 || req.RecipientTypes[0] != RecipientManual {
		t.Errorf("recipient types = %v, want [manual]", req.RecipientTypes)
	}
	if req.Context == nil {
		t.Error("context should default to an empty map")
	}
}

func TestRebuildRequestKeepsSnapshotEventFields(t *testing.T) {
	snap := NewSnapshot(testRecipient(), testRequest())
	rec := &Record{UserID: "user-1", EventType: "PROJECT_READY_REVIEW", Channel: ChannelEmail}

	req := snap.RebuildRequest(rec)
	if req.EntityType != "project" {
		t.Errorf("entity type = %q, want project", req.EntityType)
	}
	if req.EntityID != "proj-42" {
		t.Errorf("entity id = %q, want proj-42", req.EntityID)
	}
	if req.Context["projectTitle"] != "Website Redesign" {
		t.Errorf("context lost: %v", req.Context)
	}
}
