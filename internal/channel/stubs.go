package channel

import (
	"context"

	"github.com/apporte/notify/internal/logging"
	"github.com/apporte/notify/internal/notification"
)

// SMSSender is a stub: it logs the intent and reports success. A real SMS
// provider integration slots in behind the same interface.
type SMSSender struct {
	log *logging.Logger
}

func NewSMSSender() *SMSSender {
	return &SMSSender{log: logging.New("notify-sms")}
}

func (s *SMSSender) Name() string {
	return notification.ChannelSMS
}

func (s *SMSSender) Send(ctx context.Context, rcpt notification.Recipient, req *notification.Request) error {
	s.log.WithContext(ctx).WithUser(rcpt.UserID).WithEventType(req.EventType).
		WithField("phone", MaskPhone(rcpt.Phone)).Info("sms notification would be sent")
	return nil
}

// InAppSender is a stub: it logs the intent and reports success.
type InAppSender struct {
	log *logging.Logger
}

func NewInAppSender() *InAppSender {
	return &InAppSender{log: logging.New("notify-inapp")}
}

func (s *InAppSender) Name() string {
	return notification.ChannelInApp
}

func (s *InAppSender) Send(ctx context.Context, rcpt notification.Recipient, req *notification.Request) error {
	s.log.WithContext(ctx).WithUser(rcpt.UserID).WithEventType(req.EventType).
		WithField("email", rcpt.Email).Info("in-app notification would be sent")
	return nil
}
