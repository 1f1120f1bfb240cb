package channel

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/apporte/notify/internal/logging"
	"github.com/apporte/notify/internal/notification"
)

// sendMailHook allows tests to override SMTP sending behavior.
var sendMailHook = smtp.SendMail

// EmailSender delivers notifications over SMTP.
type EmailSender struct {
	Host      string
	Port      int
	User      string
	Pass      string
	From      string
	AppURL    string
	Templates *TemplateStore

	log *logging.Logger
}

// NewEmailSender wires an SMTP sender with the given template store.
func NewEmailSender(host string, port int, user, pass, from, appURL string, templates *TemplateStore) *EmailSender {
	return &EmailSender{
		Host:      host,
		Port:      port,
		User:      user,
		Pass:      pass,
		From:      from,
		AppURL:    appURL,
		Templates: templates,
		log:       logging.New("notify-email"),
	}
}

// Name returns the channel token this sender covers.
func (e *EmailSender) Name() string {
	return notification.ChannelEmail
}

// Send renders the body for the event type and delivers it to the
// recipient's address.
func (e *EmailSender) Send(ctx context.Context, rcpt notification.Recipient, req *notification.Request) error {
	_ = ctx // net/smtp has no context support; the transport timeout is the cutoff
	if rcpt.Email == "" {
		return fmt.Errorf("recipient has no email address")
	}

	subject := subjectFor(req.EventType, req.EntityID)
	body, err := e.Templates.Render(e.Templates.templateKey("email", req.EventType), e.templateData(rcpt, req))
	if err != nil {
		return fmt.Errorf("render email body: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", e.Host, e.Port)
	var auth smtp.Auth
	if e.User != "" {
		auth = smtp.PlainAuth("", e.User, e.Pass, e.Host)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", e.From, rcpt.Email, subject, body)

	if err := sendMailHook(addr, auth, e.From, []string{rcpt.Email}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	e.log.WithContext(ctx).WithUser(rcpt.UserID).WithEventType(req.EventType).
		WithField("to", rcpt.Email).Info("email sent")
	return nil
}

func (e *EmailSender) templateData(rcpt notification.Recipient, req *notification.Request) map[string]any {
	data := map[string]any{
		"Name":         rcpt.DisplayName(),
		"ProjectTitle": req.EntityID,
		"FromColumn":   "",
		"ToColumn":     "",
		"ProjectURL":   strings.TrimRight(e.AppURL, "/") + "/projects/" + req.EntityID,
	}
	for _, key := range []string{"projectTitle", "fromColumn", "toColumn"} {
		if v, ok := req.Context[key]; ok {
			switch key {
			case "projectTitle":
				data["ProjectTitle"] = fmt.Sprint(v)
			case "fromColumn":
				data["FromColumn"] = fmt.Sprint(v)
			case "toColumn":
				data["ToColumn"] = fmt.Sprint(v)
			}
		}
	}
	return data
}

// subjectFor derives the mail subject from the event type.
func subjectFor(eventType, entityID string) string {
	switch strings.ToUpper(eventType) {
	case "PROJECT_APPROVAL", "PROJECT_READY_REVIEW":
		return "Your project is ready for review - " + entityID
	case "TASK_ASSIGNMENT":
		return "New task assigned - " + entityID
	case "DEADLINE_REMINDER":
		return "Deadline reminder - " + entityID
	case "STATUS_UPDATE":
		return "Status update - " + entityID
	default:
		return "Notification - " + entityID
	}
}
