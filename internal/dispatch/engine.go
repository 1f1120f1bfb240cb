// Package dispatch is the notification dispatch engine: it resolves
// recipients, fans a request out over the (recipient, channel) cross
// product, persists one delivery record per pair, and reconstructs failed
// records for retry from their payload snapshots.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/apporte/notify/internal/channel"
	"github.com/apporte/notify/internal/logging"
	"github.com/apporte/notify/internal/metrics"
	"github.com/apporte/notify/internal/notification"
	"github.com/apporte/notify/internal/tracing"
)

// Resolver produces concrete recipients for a request.
type Resolver interface {
	Resolve(ctx context.Context, req *notification.Request) ([]notification.Recipient, error)
}

// RecordStore persists delivery records. FindRecord returns (nil, nil) when
// the id is unknown.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec *notification.Record) error
	UpdateRecord(ctx context.Context, rec *notification.Record) error
	FindRecord(ctx context.Context, id int64) (*notification.Record, error)
}

// Engine coordinates resolution, fan-out, sending and record persistence.
type Engine struct {
	resolver Resolver
	senders  *channel.Registry
	store    RecordStore
	log      *logging.Logger
}

// NewEngine wires the dispatch engine.
func NewEngine(resolver Resolver, senders *channel.Registry, store RecordStore) *Engine {
	return &Engine{
		resolver: resolver,
		senders:  senders,
		store:    store,
		log:      logging.New("notify-dispatch"),
	}
}

// Process handles one inbound notification request. It fails only when the
// request is structurally invalid or resolution itself fails; individual
// send failures are recorded on their delivery records and never abort the
// loop. One delivery record is created per valid (recipient, channel) pair.
func (e *Engine) Process(ctx context.Context, req *notification.Request) error {
	ctx, span := tracing.StartSpan(ctx, "dispatch.Process",
		attribute.String("event_type", req.EventType),
		attribute.String("entity_id", req.EntityID),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		tracing.SetSpanError(ctx, err)
		return fmt.Errorf("invalid request: %w", err)
	}

	recipients, err := e.resolver.Resolve(ctx, req)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return fmt.Errorf("resolve recipients: %w", err)
	}
	span.SetAttributes(attribute.Int("recipients", len(recipients)))

	for _, rcpt := range recipients {
		if !rcpt.Valid() {
			e.log.WithContext(ctx).WithUser(rcpt.UserID).
				WithField("recipient", rcpt.String()).Warn("skipping invalid recipient")
			continue
		}
		for _, ch := range req.Channels {
			e.dispatchPair(ctx, rcpt, req, ch)
		}
	}

	metrics.RecordRequest(req.EventType)
	e.log.WithContext(ctx).WithEventType(req.EventType).Info("notification request processed")
	return nil
}

// dispatchPair creates, sends and persists the record for one
// (recipient, channel) pair. Each pair is independent: a crash mid-loop
// leaves other pairs untouched, never a partially written record.
func (e *Engine) dispatchPair(ctx context.Context, rcpt notification.Recipient, req *notification.Request, ch string) {
	rec, err := notification.NewRecord(rcpt, req, ch)
	if err != nil {
		e.log.WithContext(ctx).WithError(err).WithUser(rcpt.UserID).WithChannel(ch).Error("snapshot encode failed")
		return
	}

	start := time.Now()
	e.deliver(ctx, rec, rcpt, req)
	latency := time.Since(start)

	if err := e.store.CreateRecord(ctx, rec); err != nil {
		tracing.SetSpanError(ctx, err)
		e.log.WithContext(ctx).WithError(err).WithUser(rcpt.UserID).WithChannel(ch).Error("record create failed")
		return
	}

	metrics.RecordDelivery(ch, string(rec.Status), latency)
	entry := e.log.WithContext(ctx).WithRecord(rec.ID).WithUser(rcpt.UserID).WithChannel(ch).WithEventType(req.EventType)
	if rec.Status == notification.StatusSent {
		entry.Info("notification sent")
	} else {
		entry.WithField("reason", rec.ErrorMessage).Error("notification send failed")
	}
}

// deliver runs the per-channel send step and folds the outcome into the
// record: sent with a timestamp, or error with the failure reason.
func (e *Engine) deliver(ctx context.Context, rec *notification.Record, rcpt notification.Recipient, req *notification.Request) {
	if err := e.send(ctx, rec.Channel, rcpt, req); err != nil {
		rec.MarkError(err.Error())
		return
	}
	rec.MarkSent()
}

// send validates channel requirements and invokes the matching sender.
// A whatsapp send to a phoneless recipient fails here without the sender
// ever being invoked.
func (e *Engine) send(ctx context.Context, ch string, rcpt notification.Recipient, req *notification.Request) error {
	if ch == notification.ChannelWhatsApp && !rcpt.HasPhone() {
		return fmt.Errorf("recipient %s has no phone number", rcpt.UserID)
	}

	sender, ok := e.senders.Get(ch)
	if !ok {
		return fmt.Errorf("unsupported channel: %s", ch)
	}

	if err := sender.Send(ctx, rcpt, req); err != nil {
		return fmt.Errorf("send via %s: %w", ch, err)
	}
	return nil
}

// Retry reconstructs a failed record from its payload snapshot and resends
// it on the record's channel, mutating the same record in place. The
// retrying status is persisted before the resend as an observability
// checkpoint, not a commit to success.
func (e *Engine) Retry(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "dispatch.Retry", attribute.Int64("record_id", id))
	defer span.End()

	rec, err := e.store.FindRecord(ctx, id)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return fmt.Errorf("load record %d: %w", id, err)
	}
	if rec == nil {
		metrics.RecordRetry("not_found")
		return fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	if rec.Status != notification.StatusError {
		metrics.RecordRetry("invalid_state")
		return fmt.Errorf("record %d has status %q: %w", id, rec.Status, ErrInvalidState)
	}

	rec.MarkRetrying()
	if err := e.store.UpdateRecord(ctx, rec); err != nil {
		tracing.SetSpanError(ctx, err)
		return fmt.Errorf("mark record %d retrying: %w", id, err)
	}

	snap, err := notification.DecodeSnapshot(rec.Payload)
	if err != nil || snap.Recipient == nil {
		reason := "missing recipient data in payload"
		if err != nil {
			reason = err.Error()
		}
		rec.MarkError("retry failed: " + reason)
		if uerr := e.store.UpdateRecord(ctx, rec); uerr != nil {
			e.log.WithContext(ctx).WithError(uerr).WithRecord(id).Error("record update failed")
		}
		metrics.RecordRetry("malformed_snapshot")
		return fmt.Errorf("record %d: %s: %w", id, reason, ErrMalformedSnapshot)
	}

	rcpt := snap.RebuildRecipient(rec)
	req := snap.RebuildRequest(rec)

	e.deliver(ctx, rec, rcpt, req)
	if err := e.store.UpdateRecord(ctx, rec); err != nil {
		tracing.SetSpanError(ctx, err)
		return fmt.Errorf("persist retry outcome for record %d: %w", id, err)
	}

	if rec.Status == notification.StatusError {
		metrics.RecordRetry("error")
		return fmt.Errorf("retry of record %d failed: %s", id, rec.ErrorMessage)
	}

	metrics.RecordRetry("sent")
	e.log.WithContext(ctx).WithRecord(id).WithChannel(rec.Channel).Info("record retried successfully")
	return nil
}
