package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/apporte/notify/internal/logging"
	"github.com/apporte/notify/internal/notification"
)

// WhatsAppSender delivers notifications through the WhatsApp message
// gateway's HTTP API.
type WhatsAppSender struct {
	GatewayURL string
	Enabled    bool
	Templates  *TemplateStore
	AppURL     string

	http *http.Client
	log  *logging.Logger
}

// NewWhatsAppSender wires a gateway client.
func NewWhatsAppSender(gatewayURL string, enabled bool, timeout time.Duration, appURL string, templates *TemplateStore) *WhatsAppSender {
	return &WhatsAppSender{
		GatewayURL: strings.TrimRight(gatewayURL, "/"),
		Enabled:    enabled,
		Templates:  templates,
		AppURL:     appURL,
		http:       &http.Client{Timeout: timeout},
		log:        logging.New("notify-whatsapp"),
	}
}

// Name returns the channel token this sender covers.
func (w *WhatsAppSender) Name() string {
	return notification.ChannelWhatsApp
}

// gatewayMessage is the gateway's send request body.
type gatewayMessage struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Send renders the message and posts it to the gateway.
func (w *WhatsAppSender) Send(ctx context.Context, rcpt notification.Recipient, req *notification.Request) error {
	if !w.Enabled {
		w.log.WithContext(ctx).WithUser(rcpt.UserID).
			WithField("phone", MaskPhone(rcpt.Phone)).Warn("whatsapp disabled, message not sent")
		return nil
	}
	if !rcpt.HasPhone() {
		return fmt.Errorf("recipient has no phone number")
	}

	body, err := w.Templates.Render(w.Templates.templateKey("whatsapp", req.EventType), map[string]any{
		"Name":         rcpt.DisplayName(),
		"ProjectTitle": projectTitle(req),
		"ProjectURL":   strings.TrimRight(w.AppURL, "/") + "/projects/" + req.EntityID,
	})
	if err != nil {
		return fmt.Errorf("render whatsapp body: %w", err)
	}

	payload, err := json.Marshal(gatewayMessage{Phone: rcpt.Phone, Message: body})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.GatewayURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway send: http %d", resp.StatusCode)
	}

	w.log.WithContext(ctx).WithUser(rcpt.UserID).WithEventType(req.EventType).
		WithField("phone", MaskPhone(rcpt.Phone)).Info("whatsapp message sent")
	return nil
}

func projectTitle(req *notification.Request) string {
	if v, ok := req.Context["projectTitle"]; ok {
		return fmt.Sprint(v)
	}
	return req.EntityID
}

// MaskPhone hides all but the last four digits of a phone number for logs.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
