package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apporte/notify/internal/notification"
)

func waRecipient() notification.Recipient {
	return notification.Recipient{
		UserID:        "user-1",
		Email:         "user1@example.com",
		Phone:         "+4915112345678",
		Name:          "User One",
		RecipientType: notification.RecipientManual,
	}
}

func waRequest() *notification.Request {
	return &notification.Request{
		EventType:      "STATUS_UPDATE",
		EntityID:       "proj-42",
		Channels:       []string{notification.ChannelWhatsApp},
		RecipientTypes: []string{notification.RecipientManual},
		Context:        map[string]any{"projectTitle": "Website Redesign"},
	}
}

func TestWhatsAppSend(t *testing.T) {
	var got gatewayMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWhatsAppSender(srv.URL, true, 5*time.Second, "https://app.apporte.com", NewTemplateStore())
	if err := s.Send(context.Background(), waRecipient(), waRequest()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got.Phone != "+4915112345678" {
		t.Errorf("phone = %q", got.Phone)
	}
	if !strings.Contains(got.Message, "Website Redesign") {
		t.Errorf("message = %q, want project title", got.Message)
	}
	if !strings.Contains(got.Message, "https://app.apporte.com/projects/proj-42") {
		t.Errorf("message = %q, want project URL", got.Message)
	}
}

func TestWhatsAppDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway must not be called when disabled")
	}))
	defer srv.Close()

	s := NewWhatsAppSender(srv.URL, false, 5*time.Second, "https://app.apporte.com", NewTemplateStore())
	if err := s.Send(context.Background(), waRecipient(), waRequest()); err != nil {
		t.Errorf("disabled send should be a no-op, got %v", err)
	}
}

func TestWhatsAppNoPhone(t *testing.T) {
	s := NewWhatsAppSender("http://gateway", true, 5*time.Second, "https://app.apporte.com", NewTemplateStore())
	rcpt := waRecipient()
	rcpt.Phone = ""
	if err := s.Send(context.Background(), rcpt, waRequest()); err == nil {
		t.Fatal("expected error for phoneless recipient")
	}
}

func TestWhatsAppGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewWhatsAppSender(srv.URL, true, 5*time.Second, "https://app.apporte.com", NewTemplateStore())
	err := s.Send(context.Background(), waRecipient(), waRequest())
	if err == nil || !strings.Contains(err.Error(), "http 500") {
		t.Errorf("err = %v, want gateway http error", err)
	}
}

func TestMaskPhone(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"+4915112345678", "**********5678"},
		{"1234", "****"},
		{"12", "**"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := MaskPhone(tc.in); got != tc.want {
			t.Errorf("MaskPhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
