package notification

import "testing"

func TestNewRecordIsPendingWithSnapshot(t *testing.T) {
	rec, err := NewRecord(testRecipient(), testRequest(), ChannelEmail)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if rec.Status != StatusPending {
		t.Errorf("status = %q, want pending", rec.Status)
	}
	if rec.UserID != "user-1" {
		t.Errorf("user id = %q", rec.UserID)
	}
	if rec.Channel != ChannelEmail {
		t.Errorf("channel = %q", rec.Channel)
	}
	if len(rec.Payload) == 0 {
		t.Fatal("payload snapshot missing")
	}

	snap, err := DecodeSnapshot(rec.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if snap.Recipient == nil || snap.Recipient.UserID != "user-1" {
		t.Errorf("snapshot recipient = %+v", snap.Recipient)
	}
}

func TestRecordLifecycle(t *testing.T) {
	rec, err := NewRecord(testRecipient(), testRequest(), ChannelEmail)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	rec.MarkError("smtp send: connection refused")
	if rec.Status != StatusError {
		t.Errorf("status = %q, want error", rec.Status)
	}
	if rec.ErrorMessage == "" {
		t.Error("error message missing")
	}
	if !rec.Terminal() {
		t.Error("error should be terminal")
	}

	rec.MarkRetrying()
	if rec.Status != StatusRetrying {
		t.Errorf("status = %q, want retrying", rec.Status)
	}
	if rec.ErrorMessage != "" {
		t.Error("retrying should clear the error message")
	}
	if rec.Terminal() {
		t.Error("retrying is not terminal")
	}

	rec.MarkSent()
	if rec.Status != StatusSent {
		t.Errorf("status = %q, want sent", rec.Status)
	}
	if rec.SentAt == nil {
		t.Error("sent_at missing")
	}
	if !rec.Terminal() {
		t.Error("sent should be terminal")
	}
}
